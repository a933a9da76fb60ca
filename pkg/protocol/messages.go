package protocol

import (
	"encoding/json"

	"github.com/bytedance/sonic"

	verrors "github.com/realtime-ai/voice-client/pkg/errors"
	"github.com/realtime-ai/voice-client/pkg/talk"
)

// Protocol constants.
const (
	ProtocolVersion = 1
	TransportName   = "websocket"
	AudioFormat     = "opus"

	// ClientSampleRate is the rate of audio sent upstream.
	ClientSampleRate = 16000
	ClientChannels   = 1
)

// Inbound message types.
const (
	TypeHello = "hello"
	TypeTTS   = "tts"
	TypeSTT   = "stt"
	TypeLLM   = "llm"
	TypeIoT   = "iot"
	TypeAlert = "alert"
)

// TTS states.
const (
	TTSStart         = "start"
	TTSStop          = "stop"
	TTSSentenceStart = "sentence_start"
)

// AudioParams describes an audio stream in a hello message.
type AudioParams struct {
	Format        string `json:"format"`
	SampleRate    int    `json:"sample_rate"`
	Channels      int    `json:"channels"`
	FrameDuration int    `json:"frame_duration,omitempty"`
}

// Message is an inbound JSON message. Fields not used by a type are empty.
type Message struct {
	Type        string            `json:"type"`
	SessionID   string            `json:"session_id,omitempty"`
	Transport   string            `json:"transport,omitempty"`
	AudioParams *AudioParams      `json:"audio_params,omitempty"`
	State       string            `json:"state,omitempty"`
	Text        string            `json:"text,omitempty"`
	Emotion     string            `json:"emotion,omitempty"`
	Status      string            `json:"status,omitempty"`
	Message     string            `json:"message,omitempty"`
	Commands    []json.RawMessage `json:"commands,omitempty"`

	// Raw is the message as received.
	Raw []byte `json:"-"`
}

// ParseMessage decodes one text frame.
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := sonic.Unmarshal(data, &msg); err != nil {
		return nil, verrors.Wrap(verrors.KindCodec, "protocol.parse", "invalid message", err)
	}
	if msg.Type == "" {
		return nil, verrors.New(verrors.KindCodec, "protocol.parse", "message without type")
	}
	msg.Raw = data
	return &msg, nil
}

type helloMessage struct {
	Type        string      `json:"type"`
	Version     int         `json:"version"`
	Transport   string      `json:"transport"`
	AudioParams AudioParams `json:"audio_params"`
}

type abortMessage struct {
	SessionID string `json:"session_id"`
	Type      string `json:"type"`
	Reason    string `json:"reason,omitempty"`
}

type listenMessage struct {
	SessionID string `json:"session_id"`
	Type      string `json:"type"`
	State     string `json:"state"`
	Mode      string `json:"mode,omitempty"`
	Text      string `json:"text,omitempty"`
}

type iotMessage struct {
	SessionID   string          `json:"session_id"`
	Type        string          `json:"type"`
	Update      bool            `json:"update"`
	Descriptors json.RawMessage `json:"descriptors,omitempty"`
	States      json.RawMessage `json:"states,omitempty"`
}

// EncodeHello builds the client hello for frames of frameMs milliseconds.
func EncodeHello(frameMs int) ([]byte, error) {
	return sonic.Marshal(helloMessage{
		Type:      TypeHello,
		Version:   ProtocolVersion,
		Transport: TransportName,
		AudioParams: AudioParams{
			Format:        AudioFormat,
			SampleRate:    ClientSampleRate,
			Channels:      ClientChannels,
			FrameDuration: frameMs,
		},
	})
}

func encodeAbort(sessionID string, reason talk.AbortReason) ([]byte, error) {
	return sonic.Marshal(abortMessage{SessionID: sessionID, Type: "abort", Reason: reason.String()})
}

func encodeListen(sessionID, state, mode, text string) ([]byte, error) {
	return sonic.Marshal(listenMessage{SessionID: sessionID, Type: "listen", State: state, Mode: mode, Text: text})
}

func encodeIot(sessionID string, descriptors, states []byte) ([]byte, error) {
	return sonic.Marshal(iotMessage{
		SessionID:   sessionID,
		Type:        TypeIoT,
		Update:      true,
		Descriptors: descriptors,
		States:      states,
	})
}
