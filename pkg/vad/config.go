package vad

import (
	"fmt"

	"go.uber.org/zap"
)

// LogLevel is the onnxruntime logging level.
type LogLevel int

const (
	LogLevelVerbose LogLevel = iota + 1
	LogLevelInfo
	LogLevelWarn
	LogLevelError
	LogLevelFatal
)

// DetectorConfig configures the Silero detectors.
type DetectorConfig struct {
	// ModelPath is the silero_vad.onnx file.
	ModelPath string
	// SampleRate must be 8000 or 16000.
	SampleRate int
	// Threshold is only used by SpeechGate; Detector returns raw scores.
	Threshold float32
	// MinSilenceDurationMs is only used by SpeechGate.
	MinSilenceDurationMs int
	LogLevel             LogLevel

	Logger *zap.Logger
}

// IsValid validates the configuration.
func (c DetectorConfig) IsValid() error {
	if c.ModelPath == "" {
		return fmt.Errorf("%w: model path is empty", ErrInvalidConfig)
	}
	if c.SampleRate != 8000 && c.SampleRate != 16000 {
		return fmt.Errorf("%w: sample rate %d, want 8000 or 16000", ErrInvalidConfig, c.SampleRate)
	}
	return nil
}

// WindowSize returns the samples Silero scores per call at the configured rate.
func (c DetectorConfig) WindowSize() int {
	if c.SampleRate == 8000 {
		return 256
	}
	return 512
}

func (c DetectorConfig) contextSize() int {
	if c.SampleRate == 8000 {
		return 32
	}
	return 64
}
