// Package device is the full-duplex audio device: fixed-size capture frames
// in, variable-size playback writes out, plus spectrum taps, volume and
// input device selection.
package device

import (
	"context"

	verrors "github.com/realtime-ai/voice-client/pkg/errors"
)

const (
	// InputFrameSizeMs is the duration of one InputData frame.
	InputFrameSizeMs = 30
	// SpectrumWindowSize is the analysis window of the spectrum taps.
	SpectrumWindowSize = 1024

	RecorderBufferSec = 2
	InputBufferSec    = 8
	PlayerBufferSec   = 8

	// DefaultVolume is the output volume before any SetOutputVolume call.
	DefaultVolume = 50
)

var (
	ErrNoInputDevice = verrors.New(verrors.KindConfig, "device.select", "microphone not found")
	ErrNotStarted    = verrors.New(verrors.KindIO, "device", "device not started")
)

// InputDevice describes one capture endpoint.
type InputDevice struct {
	ID         string
	Name       string
	IsDefault  bool
	SampleRate int
	Channels   int
}

// Device is the capability set the orchestrator drives.
//
// Update and the data calls run on the tick. Process runs on the worker,
// never concurrently with the tick's data calls.
type Device interface {
	Start(ctx context.Context) error
	Close() error

	// Update runs on the tick: playback underrun detection.
	Update()
	// Process runs on the worker: capture ingestion and echo cancellation.
	Process()

	// InputData fills dst with one frame. On a shortfall dst is zeroed and
	// false is returned; nothing is consumed.
	InputData(dst []int16) bool
	OutputData(src []int16)
	GetOutputLeftBuffer() int
	GetInputSpectrum(fft bool) ([]float32, bool)
	GetOutputSpectrum(fft bool) ([]float32, bool)

	SetOutputVolume(volume int)
	OutputVolume() int
	EnableInput(enable bool)
	EnableOutput(enable bool)
	GetInputDevice() (InputDevice, bool)

	InputSampleRate() int
	OutputSampleRate() int
	InputChannels() int
	OutputChannels() int
	// InputFrameSize is samples per InputData frame across all channels.
	InputFrameSize() int
}
