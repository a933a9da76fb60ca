package vad

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockDetector(t *testing.T) {
	t.Run("default scores zero", func(t *testing.T) {
		m := NewMockDetector()
		p, err := m.Infer([]float32{0.1, 0.2})
		require.NoError(t, err)
		assert.Zero(t, p)
	})

	t.Run("records calls", func(t *testing.T) {
		m := NewMockDetector()
		buf := []float32{0.1, 0.2}
		m.Infer(buf)
		buf[0] = 9
		m.Infer([]float32{0.3})

		assert.Equal(t, 2, m.CallCount())
		assert.Equal(t, []float32{0.1, 0.2}, m.InferCalls[0])
	})

	t.Run("sequence cycles", func(t *testing.T) {
		m := NewMockDetectorWithSequence([]float32{0.1, 0.9})
		var got []float32
		for i := 0; i < 3; i++ {
			p, _ := m.Infer(nil)
			got = append(got, p)
		}
		assert.Equal(t, []float32{0.1, 0.9, 0.1}, got)
	})

	t.Run("by level", func(t *testing.T) {
		m := NewMockDetectorByLevel()
		p, _ := m.Infer([]float32{0.5, 0})
		assert.Equal(t, float32(1), p)
		p, _ = m.Infer([]float32{0, 0.5})
		assert.Zero(t, p)
	})

	t.Run("errors propagate", func(t *testing.T) {
		boom := errors.New("boom")
		m := &MockDetector{InferFunc: func([]float32) (float32, error) { return 0, boom }}
		_, err := m.Infer(nil)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("reset and destroy counts", func(t *testing.T) {
		m := NewMockDetectorWithProb(0.4)
		m.Reset()
		m.Reset()
		m.Destroy()
		assert.Equal(t, 2, m.ResetCount)
		assert.Equal(t, 1, m.DestroyCount)
	})
}
