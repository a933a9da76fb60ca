// Package codec wraps the speech codec used on the wire.
//
// Encoder and Decoder own one native codec handle each. Handles are reset in
// place at turn boundaries and recreated only when the sample rate or
// channel count changes. Close releases the handle; a finalizer backs it up.
package codec

import (
	verrors "github.com/realtime-ai/voice-client/pkg/errors"
)

// MaxPacketSize bounds a single encoded packet.
const MaxPacketSize = 1500

var (
	// ErrDecode marks a malformed packet. The frame is dropped, the stream goes on.
	ErrDecode = verrors.New(verrors.KindCodec, "decode", "malformed packet")
	ErrClosed = verrors.New(verrors.KindCodec, "codec", "codec is closed")
)

// Encoder compresses PCM into packets of a fixed frame duration.
type Encoder interface {
	// Encode stages pcm and emits one onPacket call per complete frame.
	// The packet slice is reused after onPacket returns.
	Encode(pcm []int16, onPacket func([]byte)) error
	// ResetState clears the codec history at a turn boundary.
	ResetState() error
	FrameSize() int
	Close()
}

// Decoder expands one packet into exactly one frame of PCM.
type Decoder interface {
	Decode(packet []byte) ([]int16, error)
	ResetState() error
	SampleRate() int
	Channels() int
	Close()
}

// Config keys a codec handle.
type Config struct {
	SampleRate      int
	Channels        int
	FrameDurationMs int
}

// FrameSize returns samples per frame across all channels.
func (c Config) FrameSize() int {
	return c.SampleRate / 1000 * c.FrameDurationMs * c.Channels
}
