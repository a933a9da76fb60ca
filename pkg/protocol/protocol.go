// Package protocol is the client side of the voice session protocol:
// JSON control messages plus one opus packet per binary frame.
package protocol

import (
	"context"

	"github.com/realtime-ai/voice-client/pkg/talk"
)

// Protocol is a session transport. Handler callbacks run on transport
// goroutines.
type Protocol interface {
	Start()
	// OpenAudioChannel connects and completes the hello handshake.
	OpenAudioChannel(ctx context.Context) bool
	CloseAudioChannel()
	IsAudioChannelOpened() bool

	SendAudio(packet []byte) error
	SendAbortSpeaking(reason talk.AbortReason) error
	SendWakeWordDetected(text string) error
	SendStartListening(mode talk.ListeningMode) error
	SendStopListening() error
	SendIotDescriptors(descriptors []byte) error
	SendIotStates(states []byte) error

	ServerSampleRate() int
	SessionID() string
	SetHandler(h Handler)
	Close() error
}

// Handler receives inbound traffic and channel events.
type Handler interface {
	OnIncomingAudio(packet []byte)
	OnIncomingJSON(msg *Message)
	OnAudioChannelOpened()
	OnAudioChannelClosed()
	OnNetworkError(err error)
}

// NopHandler ignores everything.
type NopHandler struct{}

func (NopHandler) OnIncomingAudio([]byte)  {}
func (NopHandler) OnIncomingJSON(*Message) {}
func (NopHandler) OnAudioChannelOpened()   {}
func (NopHandler) OnAudioChannelClosed()   {}
func (NopHandler) OnNetworkError(error)    {}
