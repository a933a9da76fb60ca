//go:build vad

package vad

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func getModelPath(t *testing.T) string {
	for _, p := range []string{
		os.Getenv("SILERO_VAD_MODEL"),
		"../../models/silero_vad.onnx",
		"/tmp/silero_vad.onnx",
	} {
		if p == "" {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			continue
		}
		if _, err := os.Stat(abs); err == nil {
			return abs
		}
	}
	t.Skip("silero_vad.onnx model not found, skipping test")
	return ""
}

func TestDetectorInfer(t *testing.T) {
	d, err := NewDetector(DetectorConfig{ModelPath: getModelPath(t), SampleRate: 16000})
	if err != nil {
		t.Fatalf("NewDetector() error = %v", err)
	}
	defer d.Destroy()

	prob, err := d.Infer(make([]float32, 512))
	if err != nil {
		t.Fatalf("Infer() error = %v", err)
	}
	if prob < 0 || prob > 1 {
		t.Errorf("Infer() probability = %v, want in [0, 1]", prob)
	}

	if _, err := d.Infer(make([]float32, 100)); !errors.Is(err, ErrWindowSize) {
		t.Errorf("Infer() short window error = %v, want ErrWindowSize", err)
	}
}

func TestDetectorResetIsDeterministic(t *testing.T) {
	d, err := NewDetector(DetectorConfig{ModelPath: getModelPath(t), SampleRate: 16000})
	if err != nil {
		t.Fatalf("NewDetector() error = %v", err)
	}
	defer d.Destroy()

	window := make([]float32, 512)
	for i := range window {
		window[i] = float32(0.3 * math.Sin(2*math.Pi*220*float64(i)/16000))
	}

	first, _ := d.Infer(window)
	d.Infer(window)
	if err := d.Reset(); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	again, _ := d.Infer(window)
	if first != again {
		t.Errorf("score after Reset = %v, want %v", again, first)
	}
}

func TestDetectorDestroyTwice(t *testing.T) {
	d, err := NewDetector(DetectorConfig{ModelPath: getModelPath(t), SampleRate: 16000})
	if err != nil {
		t.Fatalf("NewDetector() error = %v", err)
	}
	if err := d.Destroy(); err != nil {
		t.Fatalf("Destroy() error = %v", err)
	}
	if err := d.Destroy(); err != nil {
		t.Errorf("second Destroy() error = %v", err)
	}
	if _, err := d.Infer(make([]float32, 512)); !errors.Is(err, ErrDestroyed) {
		t.Errorf("Infer() after Destroy error = %v", err)
	}
}

func TestSpeechGateSilence(t *testing.T) {
	g, err := NewSpeechGate(DetectorConfig{ModelPath: getModelPath(t), SampleRate: 16000})
	if err != nil {
		t.Fatalf("NewSpeechGate() error = %v", err)
	}
	defer g.Destroy()

	for i := 0; i < 10; i++ {
		prob, err := g.Infer(make([]float32, 512))
		if err != nil {
			t.Fatalf("Infer() error = %v", err)
		}
		if prob != 0 {
			t.Fatalf("silence scored %v", prob)
		}
	}
}
