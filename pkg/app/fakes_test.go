package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/realtime-ai/voice-client/pkg/audio"
	"github.com/realtime-ai/voice-client/pkg/codec"
	"github.com/realtime-ai/voice-client/pkg/device"
	"github.com/realtime-ai/voice-client/pkg/ota"
)

// fakeDevice queues capture frames pushed by the test and records playback.
type fakeDevice struct {
	mu       sync.Mutex
	inRate   int
	outRate  int
	hasInput bool
	frames   [][]int16
	output   []int16
	left     int
	volume   int
	started  bool
	closed   bool
	process  int
}

var _ device.Device = (*fakeDevice)(nil)

func newFakeDevice(inRate, outRate int) *fakeDevice {
	return &fakeDevice{inRate: inRate, outRate: outRate, hasInput: true, volume: 50}
}

func (d *fakeDevice) Start(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.started = true
	return nil
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *fakeDevice) Update() {}

func (d *fakeDevice) Process() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.process++
}

// push queues one capture frame at level v.
func (d *fakeDevice) push(v int16) {
	frame := make([]int16, d.InputFrameSize())
	for i := range frame {
		frame[i] = v
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frames = append(d.frames, frame)
}

func (d *fakeDevice) InputData(dst []int16) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.frames) == 0 {
		clear(dst)
		return false
	}
	copy(dst, d.frames[0])
	d.frames = d.frames[1:]
	return true
}

func (d *fakeDevice) OutputData(src []int16) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.output = append(d.output, src...)
}

func (d *fakeDevice) played() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.output)
}

func (d *fakeDevice) processCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.process
}

func (d *fakeDevice) GetOutputLeftBuffer() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.left
}

func (d *fakeDevice) GetInputSpectrum(bool) ([]float32, bool)  { return nil, false }
func (d *fakeDevice) GetOutputSpectrum(bool) ([]float32, bool) { return nil, false }

func (d *fakeDevice) SetOutputVolume(volume int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.volume = volume
}

func (d *fakeDevice) OutputVolume() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.volume
}

func (d *fakeDevice) EnableInput(bool)  {}
func (d *fakeDevice) EnableOutput(bool) {}

func (d *fakeDevice) GetInputDevice() (device.InputDevice, bool) {
	if !d.hasInput {
		return device.InputDevice{}, false
	}
	return device.InputDevice{ID: "fake", Name: "fake", IsDefault: true}, true
}

func (d *fakeDevice) InputSampleRate() int  { return d.inRate }
func (d *fakeDevice) OutputSampleRate() int { return d.outRate }
func (d *fakeDevice) InputChannels() int    { return 1 }
func (d *fakeDevice) OutputChannels() int   { return 1 }
func (d *fakeDevice) InputFrameSize() int   { return d.inRate / 1000 * device.InputFrameSizeMs }

// fakeEncoder emits one one-byte packet per complete frame. firstReset is
// the reset count seen when the first packet went out.
type fakeEncoder struct {
	frame      int
	staged     int
	resets     int
	packets    int
	firstReset int
	resetErr   error
}

func (e *fakeEncoder) Encode(pcm []int16, onPacket func([]byte)) error {
	e.staged += len(pcm)
	for e.staged >= e.frame {
		e.staged -= e.frame
		if e.packets == 0 {
			e.firstReset = e.resets
		}
		e.packets++
		onPacket([]byte{0x01})
	}
	return nil
}

func (e *fakeEncoder) ResetState() error {
	e.staged = 0
	e.resets++
	return e.resetErr
}

func (e *fakeEncoder) FrameSize() int { return e.frame }
func (e *fakeEncoder) Close()         {}

// fakeDecoder expands every non-empty packet into one silent frame.
type fakeDecoder struct {
	cfg        codec.Config
	resets     int
	decoded    int
	firstReset int
}

func (d *fakeDecoder) Decode(packet []byte) ([]int16, error) {
	if len(packet) == 0 {
		return nil, codec.ErrDecode
	}
	if d.decoded == 0 {
		d.firstReset = d.resets
	}
	d.decoded++
	return make([]int16, d.cfg.FrameSize()), nil
}

func (d *fakeDecoder) ResetState() error { d.resets++; return nil }
func (d *fakeDecoder) SampleRate() int   { return d.cfg.SampleRate }
func (d *fakeDecoder) Channels() int     { return d.cfg.Channels }
func (d *fakeDecoder) Close()            {}

// fakeDisplay records notifications.
type fakeDisplay struct {
	mu            sync.Mutex
	notifications []string
	closed        bool
}

func (d *fakeDisplay) Start(context.Context) error { return nil }
func (d *fakeDisplay) Update(time.Duration)        {}

func (d *fakeDisplay) ShowNotification(msg string, _ time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notifications = append(d.notifications, msg)
}

func (d *fakeDisplay) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *fakeDisplay) last() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.notifications) == 0 {
		return ""
	}
	return d.notifications[len(d.notifications)-1]
}

// fakeChecker replays scripted version check results, repeating the last.
type fakeChecker struct {
	results []*ota.Result
	errs    []error
	calls   int
}

var errCheckFailed = errors.New("check failed")

func (c *fakeChecker) CheckVersion(context.Context) (*ota.Result, error) {
	i := min(c.calls, len(c.results)-1)
	c.calls++
	return c.results[i], c.errs[i]
}

// fakeClock is advanced by the test.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// toneClip returns a 16 kHz clip of n samples.
func toneClip(n int) *audio.Clip {
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = 1000
	}
	return &audio.Clip{Name: "tone", Samples: samples, SampleRate: 16000}
}
