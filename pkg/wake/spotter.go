package wake

import (
	"sync"

	verrors "github.com/realtime-ai/voice-client/pkg/errors"
)

// ErrNotBuilt is returned by NewSherpaSpotter in binaries built without kws.
var ErrNotBuilt = verrors.New(verrors.KindConfig, "wake.spotter", "keyword spotting not built, rebuild with -tags kws")

// KeywordSpotter is a streaming keyword detector with a single stream.
type KeywordSpotter interface {
	// AcceptWaveform queues normalised samples for decoding.
	AcceptWaveform(sampleRate int, samples []float32)
	// IsReady reports whether enough audio is queued for a Decode step.
	IsReady() bool
	Decode()
	// Keyword returns the keyword found by the last Decode, or "".
	Keyword() string
	// Reset restarts the stream after a detection.
	Reset()
	Close() error
}

// MockSpotter reports a scripted keyword once enough samples arrived.
type MockSpotter struct {
	mu       sync.Mutex
	keyword  string
	after    int
	received int
	fired    bool
	found    string

	ResetCount int
	Closed     bool
}

var _ KeywordSpotter = (*MockSpotter)(nil)

// NewMockSpotter fires keyword after the given number of samples. An
// empty keyword never fires.
func NewMockSpotter(keyword string, afterSamples int) *MockSpotter {
	return &MockSpotter{keyword: keyword, after: afterSamples}
}

func (m *MockSpotter) AcceptWaveform(_ int, samples []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.received += len(samples)
}

func (m *MockSpotter) IsReady() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.keyword != "" && !m.fired && m.received >= m.after
}

func (m *MockSpotter) Decode() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.found = m.keyword
	m.fired = true
}

func (m *MockSpotter) Keyword() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.found
}

func (m *MockSpotter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.found = ""
	m.received = 0
	m.ResetCount++
}

// Rearm lets the spotter fire again.
func (m *MockSpotter) Rearm() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fired = false
}

func (m *MockSpotter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}
