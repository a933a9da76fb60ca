package device

import (
	"runtime"
	"strings"
)

// Format is the stream layout a backend opens.
type Format struct {
	InputSampleRate  int
	InputChannels    int
	OutputSampleRate int
	OutputChannels   int
	PeriodMs         int
}

// Backend is the platform audio API. Callbacks run on backend-owned threads:
// capture delivers interleaved samples that are only valid during the call,
// playback must fill its whole buffer.
type Backend interface {
	Start(format Format, input InputDevice, capture func([]int16), playback func([]int16)) error
	Close() error
	InputDevices() ([]InputDevice, error)
}

const voiceRouteMarker = "(Voice)"

// SelectInputDevice picks the capture endpoint: the voice route on Android,
// otherwise the system default, otherwise the first device listed.
func SelectInputDevice(devices []InputDevice) (InputDevice, bool) {
	return selectInputDevice(devices, runtime.GOOS)
}

func selectInputDevice(devices []InputDevice, goos string) (InputDevice, bool) {
	if goos == "android" {
		for _, d := range devices {
			if strings.Contains(d.Name, voiceRouteMarker) {
				return d, true
			}
		}
		return InputDevice{}, false
	}
	for _, d := range devices {
		if d.IsDefault {
			return d, true
		}
	}
	if len(devices) > 0 {
		return devices[0], true
	}
	return InputDevice{}, false
}
