//go:build !vad

package vad

// Without the vad build tag the Silero detectors are unavailable and their
// constructors fail with ErrNotBuilt. EnergyDetector covers that case.

func InitRuntime(string) error { return ErrNotBuilt }
func DestroyRuntime() error    { return nil }

type Detector struct{}

var _ DetectorInterface = (*Detector)(nil)

func NewDetector(DetectorConfig) (*Detector, error) { return nil, ErrNotBuilt }

func (*Detector) Infer([]float32) (float32, error) { return 0, ErrNotBuilt }
func (*Detector) Reset() error                     { return ErrNotBuilt }
func (*Detector) Destroy() error                   { return nil }

type SpeechGate struct{}

var _ DetectorInterface = (*SpeechGate)(nil)

func NewSpeechGate(DetectorConfig) (*SpeechGate, error) { return nil, ErrNotBuilt }

func (*SpeechGate) Infer([]float32) (float32, error) { return 0, ErrNotBuilt }
func (*SpeechGate) Reset() error                     { return ErrNotBuilt }
func (*SpeechGate) Destroy() error                   { return nil }
