package codec

import (
	"fmt"
	"runtime"

	"github.com/hraban/opus"
	"github.com/realtime-ai/voice-client/pkg/audio"
	verrors "github.com/realtime-ai/voice-client/pkg/errors"
)

const (
	encoderComplexity = 5
	minEncoderStaging = 4096
)

// OpusEncoder is an Encoder backed by libopus in VoIP mode with DTX on.
type OpusEncoder struct {
	cfg     Config
	enc     *opus.Encoder
	staging *audio.RingBuffer[int16] // Bounded, at least two frames
	frame   []int16
	packet  []byte
}

// NewOpusEncoder creates an encoder. Failure is fatal for the caller.
func NewOpusEncoder(cfg Config) (*OpusEncoder, error) {
	if cfg.FrameSize() <= 0 {
		return nil, verrors.New(verrors.KindCodec, "opus.new_encoder", fmt.Sprintf("invalid config %+v", cfg))
	}
	enc, err := opus.NewEncoder(cfg.SampleRate, cfg.Channels, opus.AppVoIP)
	if err != nil {
		return nil, verrors.Wrap(verrors.KindCodec, "opus.new_encoder", "failed to create audio encoder", err)
	}

	e := &OpusEncoder{
		cfg:     cfg,
		enc:     enc,
		staging: audio.NewRingBuffer[int16](max(minEncoderStaging, 2*cfg.FrameSize()), audio.Bounded),
		frame:   make([]int16, cfg.FrameSize()),
		packet:  make([]byte, MaxPacketSize),
	}
	if err := e.applySettings(); err != nil {
		return nil, err
	}
	runtime.SetFinalizer(e, (*OpusEncoder).Close)
	return e, nil
}

func (e *OpusEncoder) applySettings() error {
	if err := e.enc.SetDTX(true); err != nil {
		return verrors.Wrap(verrors.KindCodec, "opus.set_dtx", "failed to enable DTX", err)
	}
	if err := e.enc.SetComplexity(encoderComplexity); err != nil {
		return verrors.Wrap(verrors.KindCodec, "opus.set_complexity", "failed to set complexity", err)
	}
	return nil
}

// Encode stages pcm in pieces no larger than the free staging space and
// drains whole frames between pieces, so input of any length is accepted.
func (e *OpusEncoder) Encode(pcm []int16, onPacket func([]byte)) error {
	if e.enc == nil {
		return ErrClosed
	}
	for len(pcm) > 0 {
		n := min(len(pcm), e.staging.Free())
		e.staging.Write(pcm[:n])
		pcm = pcm[n:]
		for e.staging.Read(e.frame) {
			size, err := e.enc.Encode(e.frame, e.packet)
			if err != nil {
				return verrors.Wrap(verrors.KindCodec, "opus.encode", "encode frame", err)
			}
			onPacket(e.packet[:size])
		}
	}
	return nil
}

// ResetState re-initialises the handle in place and drops staged samples,
// so nothing from the previous turn reaches the next one.
func (e *OpusEncoder) ResetState() error {
	if e.enc == nil {
		return ErrClosed
	}
	e.staging.Clear()
	if err := e.enc.Init(e.cfg.SampleRate, e.cfg.Channels, opus.AppVoIP); err != nil {
		return verrors.Wrap(verrors.KindCodec, "opus.reset_encoder", "failed to reset audio encoder", err)
	}
	return e.applySettings()
}

func (e *OpusEncoder) FrameSize() int {
	return e.cfg.FrameSize()
}

func (e *OpusEncoder) Config() Config {
	return e.cfg
}

// Close releases the handle. Safe to call more than once.
func (e *OpusEncoder) Close() {
	if e.enc == nil {
		return
	}
	e.enc = nil
	runtime.SetFinalizer(e, nil)
}
