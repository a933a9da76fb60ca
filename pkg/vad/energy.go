package vad

import (
	"math"
)

// Default RMS levels for 16-bit speech normalised to [-1, 1].
const (
	DefaultSilenceLevel = 0.008
	DefaultSpeechLevel  = 0.03
)

// EnergyDetector scores a window by its RMS level. Levels at or below
// SilenceLevel score 0, levels at or above SpeechLevel score 1, and the
// range between is linear. Hysteresis lives in the Segmenter.
type EnergyDetector struct {
	SilenceLevel float64
	SpeechLevel  float64
}

var _ DetectorInterface = (*EnergyDetector)(nil)

// NewEnergyDetector returns a detector with the default levels.
func NewEnergyDetector() *EnergyDetector {
	return &EnergyDetector{
		SilenceLevel: DefaultSilenceLevel,
		SpeechLevel:  DefaultSpeechLevel,
	}
}

func (d *EnergyDetector) Infer(samples []float32) (float32, error) {
	if len(samples) == 0 {
		return 0, nil
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	level := math.Sqrt(sum / float64(len(samples)))

	span := d.SpeechLevel - d.SilenceLevel
	if span <= 0 {
		if level >= d.SpeechLevel {
			return 1, nil
		}
		return 0, nil
	}
	p := (level - d.SilenceLevel) / span
	return float32(min(max(p, 0), 1)), nil
}

func (d *EnergyDetector) Reset() error   { return nil }
func (d *EnergyDetector) Destroy() error { return nil }
