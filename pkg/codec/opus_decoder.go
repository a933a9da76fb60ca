package codec

import (
	"fmt"
	"runtime"

	"github.com/hraban/opus"
	verrors "github.com/realtime-ai/voice-client/pkg/errors"
)

// OpusDecoder is a Decoder backed by libopus.
type OpusDecoder struct {
	cfg   Config
	dec   *opus.Decoder
	frame []int16
}

// NewOpusDecoder creates a decoder that yields cfg.FrameSize() samples per packet.
func NewOpusDecoder(cfg Config) (*OpusDecoder, error) {
	if cfg.FrameSize() <= 0 {
		return nil, verrors.New(verrors.KindCodec, "opus.new_decoder", fmt.Sprintf("invalid config %+v", cfg))
	}
	dec, err := opus.NewDecoder(cfg.SampleRate, cfg.Channels)
	if err != nil {
		return nil, verrors.Wrap(verrors.KindCodec, "opus.new_decoder", "failed to create audio decoder", err)
	}
	d := &OpusDecoder{
		cfg:   cfg,
		dec:   dec,
		frame: make([]int16, cfg.FrameSize()),
	}
	runtime.SetFinalizer(d, (*OpusDecoder).Close)
	return d, nil
}

// Decode fills exactly one frame. Short packets are zero-padded to the frame
// length. The result is reused by the next call.
func (d *OpusDecoder) Decode(packet []byte) ([]int16, error) {
	if d.dec == nil {
		return nil, ErrClosed
	}
	if len(packet) == 0 {
		return nil, fmt.Errorf("%w: empty packet", ErrDecode)
	}
	n, err := d.dec.Decode(packet, d.frame)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	clear(d.frame[n*d.cfg.Channels:])
	return d.frame, nil
}

func (d *OpusDecoder) ResetState() error {
	if d.dec == nil {
		return ErrClosed
	}
	if err := d.dec.Init(d.cfg.SampleRate, d.cfg.Channels); err != nil {
		return verrors.Wrap(verrors.KindCodec, "opus.reset_decoder", "failed to reset audio decoder", err)
	}
	return nil
}

func (d *OpusDecoder) SampleRate() int {
	return d.cfg.SampleRate
}

func (d *OpusDecoder) Channels() int {
	return d.cfg.Channels
}

func (d *OpusDecoder) Config() Config {
	return d.cfg
}

func (d *OpusDecoder) Close() {
	if d.dec == nil {
		return
	}
	d.dec = nil
	runtime.SetFinalizer(d, nil)
}
