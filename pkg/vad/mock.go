package vad

import "sync"

// MockDetector returns scripted probabilities and records every call.
type MockDetector struct {
	// InferFunc decides the probability; nil scores every window 0.
	InferFunc func(samples []float32) (float32, error)

	InferCalls   [][]float32
	ResetCount   int
	DestroyCount int

	mu sync.Mutex
}

var _ DetectorInterface = (*MockDetector)(nil)

func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// NewMockDetectorWithProb scores every window prob.
func NewMockDetectorWithProb(prob float32) *MockDetector {
	return &MockDetector{
		InferFunc: func([]float32) (float32, error) { return prob, nil },
	}
}

// NewMockDetectorWithSequence returns probs in order, cycling at the end.
func NewMockDetectorWithSequence(probs []float32) *MockDetector {
	idx := 0
	return &MockDetector{
		InferFunc: func([]float32) (float32, error) {
			if len(probs) == 0 {
				return 0, nil
			}
			p := probs[idx]
			idx = (idx + 1) % len(probs)
			return p, nil
		},
	}
}

// NewMockDetectorByLevel scores a window 1 when its first sample is
// non-zero, which lets tests script speech directly in the waveform.
func NewMockDetectorByLevel() *MockDetector {
	return &MockDetector{
		InferFunc: func(samples []float32) (float32, error) {
			if len(samples) > 0 && samples[0] != 0 {
				return 1, nil
			}
			return 0, nil
		},
	}
}

func (m *MockDetector) Infer(samples []float32) (float32, error) {
	m.mu.Lock()
	m.InferCalls = append(m.InferCalls, append([]float32(nil), samples...))
	fn := m.InferFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(samples)
	}
	return 0, nil
}

func (m *MockDetector) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ResetCount++
	return nil
}

func (m *MockDetector) Destroy() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DestroyCount++
	return nil
}

// CallCount returns the number of Infer calls so far.
func (m *MockDetector) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.InferCalls)
}
