package device

import (
	"errors"
	"sync"
)

// ManualBackend is driven by the caller instead of a sound card. Tests and
// headless runs push capture samples and pull playback buffers explicitly.
type ManualBackend struct {
	mu       sync.Mutex
	devices  []InputDevice
	format   Format
	capture  func([]int16)
	playback func([]int16)
	started  bool
	closed   bool
}

var _ Backend = (*ManualBackend)(nil)

// NewManualBackend creates a backend exposing the given input devices.
// With no devices a single default "manual" device is listed.
func NewManualBackend(devices ...InputDevice) *ManualBackend {
	if len(devices) == 0 {
		devices = []InputDevice{{ID: "manual", Name: "manual", IsDefault: true}}
	}
	return &ManualBackend{devices: devices}
}

func (b *ManualBackend) Start(format Format, _ InputDevice, capture func([]int16), playback func([]int16)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errors.New("manual backend closed")
	}
	b.format = format
	b.capture = capture
	b.playback = playback
	b.started = true
	return nil
}

func (b *ManualBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.started = false
	b.closed = true
	return nil
}

func (b *ManualBackend) InputDevices() ([]InputDevice, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]InputDevice(nil), b.devices...), nil
}

// Capture delivers samples as if the microphone produced them.
func (b *ManualBackend) Capture(samples []int16) bool {
	b.mu.Lock()
	cb := b.capture
	started := b.started
	b.mu.Unlock()
	if !started || cb == nil {
		return false
	}
	cb(samples)
	return true
}

// Play pulls n samples as if the speaker consumed them.
func (b *ManualBackend) Play(n int) []int16 {
	b.mu.Lock()
	cb := b.playback
	started := b.started
	b.mu.Unlock()
	out := make([]int16, n)
	if started && cb != nil {
		cb(out)
	}
	return out
}

// Started reports whether Start succeeded and Close has not run.
func (b *ManualBackend) Started() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.started
}
