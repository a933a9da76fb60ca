//go:build vad

package vad

import (
	"fmt"

	"github.com/streamer45/silero-vad-go/speech"
)

// SpeechGate adapts the packaged silero-vad-go detector to
// DetectorInterface. silero-vad-go runs its own hysteresis and reports
// segment edges; the gate turns those edges back into a 0/1 score so the
// Segmenter can consume it like any other detector.
type SpeechGate struct {
	detector *speech.Detector
	window   int
	speaking bool
}

var _ DetectorInterface = (*SpeechGate)(nil)

// NewSpeechGate loads the model through silero-vad-go.
func NewSpeechGate(cfg DetectorConfig) (*SpeechGate, error) {
	if err := cfg.IsValid(); err != nil {
		return nil, err
	}
	threshold := cfg.Threshold
	if threshold == 0 {
		threshold = 0.5
	}
	minSilence := cfg.MinSilenceDurationMs
	if minSilence == 0 {
		minSilence = 100
	}

	d, err := speech.NewDetector(speech.DetectorConfig{
		ModelPath:            cfg.ModelPath,
		SampleRate:           cfg.SampleRate,
		Threshold:            threshold,
		MinSilenceDurationMs: minSilence,
	})
	if err != nil {
		return nil, fmt.Errorf("create silero-vad-go detector: %w", err)
	}
	return &SpeechGate{detector: d, window: cfg.WindowSize()}, nil
}

func (g *SpeechGate) Infer(samples []float32) (float32, error) {
	if g.detector == nil {
		return 0, ErrDestroyed
	}
	if len(samples) < g.window {
		return 0, fmt.Errorf("%w: got %d, want at least %d", ErrWindowSize, len(samples), g.window)
	}

	segments, err := g.detector.Detect(samples)
	if err != nil {
		return 0, fmt.Errorf("silero-vad-go detect: %w", err)
	}
	for _, seg := range segments {
		// 只有起点的段表示语音仍在继续
		g.speaking = seg.SpeechEndAt == 0
	}
	if g.speaking {
		return 1, nil
	}
	return 0, nil
}

func (g *SpeechGate) Reset() error {
	if g.detector == nil {
		return ErrDestroyed
	}
	g.speaking = false
	return g.detector.Reset()
}

func (g *SpeechGate) Destroy() error {
	if g.detector == nil {
		return nil
	}
	err := g.detector.Destroy()
	g.detector = nil
	return err
}
