package protocol

import (
	"context"
	"sync"

	"github.com/realtime-ai/voice-client/pkg/talk"
)

// MockProtocol records outbound traffic and lets callers inject inbound
// traffic. The zero value is closed; OpenResult controls OpenAudioChannel.
type MockProtocol struct {
	mu sync.Mutex

	OpenResult bool
	SampleRate int
	Session    string

	open    bool
	handler Handler

	OpenCalls  int
	CloseCalls int
	Sent       []string // control messages, e.g. "listen:start:auto"
	Audio      [][]byte
}

var _ Protocol = (*MockProtocol)(nil)

// NewMockProtocol returns a mock whose channel opens successfully.
func NewMockProtocol() *MockProtocol {
	return &MockProtocol{OpenResult: true, SampleRate: 24000, Session: "mock", handler: NopHandler{}}
}

func (m *MockProtocol) Start() {}

func (m *MockProtocol) OpenAudioChannel(context.Context) bool {
	m.mu.Lock()
	m.OpenCalls++
	ok := m.OpenResult
	m.open = ok
	h := m.handler
	m.mu.Unlock()
	if ok {
		h.OnAudioChannelOpened()
	}
	return ok
}

func (m *MockProtocol) CloseAudioChannel() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CloseCalls++
	m.open = false
}

func (m *MockProtocol) IsAudioChannelOpened() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

func (m *MockProtocol) record(msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, msg)
	return nil
}

func (m *MockProtocol) SendAudio(packet []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Audio = append(m.Audio, append([]byte(nil), packet...))
	return nil
}

func (m *MockProtocol) SendAbortSpeaking(reason talk.AbortReason) error {
	return m.record("abort:" + reason.String())
}

func (m *MockProtocol) SendWakeWordDetected(text string) error {
	return m.record("listen:detect:" + text)
}

func (m *MockProtocol) SendStartListening(mode talk.ListeningMode) error {
	return m.record("listen:start:" + mode.String())
}

func (m *MockProtocol) SendStopListening() error {
	return m.record("listen:stop")
}

func (m *MockProtocol) SendIotDescriptors(descriptors []byte) error {
	return m.record("iot:descriptors:" + string(descriptors))
}

func (m *MockProtocol) SendIotStates(states []byte) error {
	return m.record("iot:states:" + string(states))
}

func (m *MockProtocol) ServerSampleRate() int { return m.SampleRate }
func (m *MockProtocol) SessionID() string     { return m.Session }

func (m *MockProtocol) SetHandler(h Handler) {
	if h == nil {
		h = NopHandler{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = h
}

func (m *MockProtocol) Close() error {
	m.CloseAudioChannel()
	return nil
}

// SentMessages returns a copy of the recorded control messages.
func (m *MockProtocol) SentMessages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Sent...)
}

// AudioCount returns the number of audio packets sent.
func (m *MockProtocol) AudioCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Audio)
}

func (m *MockProtocol) getHandler() Handler {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handler
}

// EmitJSON delivers an inbound JSON message.
func (m *MockProtocol) EmitJSON(raw string) error {
	msg, err := ParseMessage([]byte(raw))
	if err != nil {
		return err
	}
	m.getHandler().OnIncomingJSON(msg)
	return nil
}

// EmitAudio delivers an inbound audio packet.
func (m *MockProtocol) EmitAudio(packet []byte) {
	m.getHandler().OnIncomingAudio(packet)
}

// EmitClosed simulates the server closing the channel.
func (m *MockProtocol) EmitClosed() {
	m.mu.Lock()
	m.open = false
	m.mu.Unlock()
	m.getHandler().OnAudioChannelClosed()
}

// SetOpen forces the channel state without callbacks.
func (m *MockProtocol) SetOpen(open bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open = open
}
