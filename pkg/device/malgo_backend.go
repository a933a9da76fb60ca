package device

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"go.uber.org/zap"

	"github.com/realtime-ai/voice-client/pkg/logger"
)

// MalgoBackend opens one capture and one playback device through miniaudio.
type MalgoBackend struct {
	mu       sync.Mutex
	ctx      *malgo.AllocatedContext
	capture  *malgo.Device
	playback *malgo.Device
	ids      map[string]malgo.DeviceID
	log      *zap.Logger

	captureBuf  []int16
	playbackBuf []int16
}

var _ Backend = (*MalgoBackend)(nil)

// NewMalgoBackend initialises the miniaudio context.
func NewMalgoBackend(l *zap.Logger) (*MalgoBackend, error) {
	log := logger.Or(l, "malgo")
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		log.Debug(message)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize context: %w", err)
	}
	return &MalgoBackend{
		ctx: ctx,
		ids: make(map[string]malgo.DeviceID),
		log: log,
	}, nil
}

// InputDevices lists capture devices with their native format where the
// driver reports one.
func (b *MalgoBackend) InputDevices() ([]InputDevice, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	infos, err := b.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("list capture devices: %w", err)
	}

	result := make([]InputDevice, 0, len(infos))
	for _, info := range infos {
		dev := InputDevice{
			ID:        info.ID.String(),
			Name:      info.Name(),
			IsDefault: info.IsDefault != 0,
		}
		if full, err := b.ctx.DeviceInfo(malgo.Capture, info.ID, malgo.Shared); err == nil && len(full.Formats) > 0 {
			dev.SampleRate = int(full.Formats[0].SampleRate)
			dev.Channels = int(full.Formats[0].Channels)
		}
		b.ids[dev.ID] = info.ID
		result = append(result, dev)
	}
	return result, nil
}

func (b *MalgoBackend) Start(format Format, input InputDevice, capture func([]int16), playback func([]int16)) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	captureConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	captureConfig.PeriodSizeInMilliseconds = uint32(format.PeriodMs)
	captureConfig.Capture.Format = malgo.FormatS16
	captureConfig.Capture.Channels = uint32(format.InputChannels)
	captureConfig.SampleRate = uint32(format.InputSampleRate)
	captureConfig.Alsa.NoMMap = 1
	if id, ok := b.ids[input.ID]; ok {
		captureConfig.Capture.DeviceID = id.Pointer()
	}

	var err error
	b.capture, err = malgo.InitDevice(b.ctx.Context, captureConfig, malgo.DeviceCallbacks{
		Data: func(_, inputSamples []byte, _ uint32) {
			// 回调线程独占 captureBuf
			n := len(inputSamples) / 2
			if cap(b.captureBuf) < n {
				b.captureBuf = make([]int16, n)
			}
			buf := b.captureBuf[:n]
			for i := range buf {
				buf[i] = int16(binary.LittleEndian.Uint16(inputSamples[i*2:]))
			}
			capture(buf)
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize capture device: %w", err)
	}

	playbackConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	playbackConfig.PeriodSizeInMilliseconds = uint32(format.PeriodMs)
	playbackConfig.Playback.Format = malgo.FormatS16
	playbackConfig.Playback.Channels = uint32(format.OutputChannels)
	playbackConfig.SampleRate = uint32(format.OutputSampleRate)
	playbackConfig.Alsa.NoMMap = 1

	b.playback, err = malgo.InitDevice(b.ctx.Context, playbackConfig, malgo.DeviceCallbacks{
		Data: func(outputSamples, _ []byte, _ uint32) {
			n := len(outputSamples) / 2
			if cap(b.playbackBuf) < n {
				b.playbackBuf = make([]int16, n)
			}
			buf := b.playbackBuf[:n]
			playback(buf)
			for i, s := range buf {
				binary.LittleEndian.PutUint16(outputSamples[i*2:], uint16(s))
			}
		},
	})
	if err != nil {
		b.uninitDevices()
		return fmt.Errorf("failed to initialize playback device: %w", err)
	}

	if err := b.capture.Start(); err != nil {
		b.uninitDevices()
		return fmt.Errorf("failed to start capture device: %w", err)
	}
	if err := b.playback.Start(); err != nil {
		b.uninitDevices()
		return fmt.Errorf("failed to start playback device: %w", err)
	}

	b.log.Info("malgo devices started",
		zap.String("capture", input.Name),
		zap.Int("inputRate", format.InputSampleRate),
		zap.Int("outputRate", format.OutputSampleRate))
	return nil
}

func (b *MalgoBackend) uninitDevices() {
	if b.capture != nil {
		_ = b.capture.Stop()
		b.capture.Uninit()
		b.capture = nil
	}
	if b.playback != nil {
		_ = b.playback.Stop()
		b.playback.Uninit()
		b.playback = nil
	}
}

// Close stops both devices and releases the context.
func (b *MalgoBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.uninitDevices()
	if b.ctx != nil {
		_ = b.ctx.Uninit()
		b.ctx.Free()
		b.ctx = nil
	}
	return nil
}
