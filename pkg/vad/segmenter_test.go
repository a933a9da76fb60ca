package vad

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// windows builds n windows of 512 samples at level v
func windows(n int, v float32) []float32 {
	out := make([]float32, n*DefaultWindowSize)
	for i := range out {
		out[i] = v
	}
	return out
}

func newTestSegmenter(t *testing.T) (*Segmenter, *MockDetector) {
	t.Helper()
	det := NewMockDetectorByLevel()
	s, err := NewSegmenter(DefaultSegmenterConfig(16000), det)
	require.NoError(t, err)
	return s, det
}

func TestSegmenter_DetectsOneUtterance(t *testing.T) {
	s, _ := newTestSegmenter(t)

	require.NoError(t, s.AcceptWaveform(windows(10, 0)))
	assert.False(t, s.IsSpeechDetected())

	// MinSpeechDuration is 4000 samples: the eighth window triggers
	require.NoError(t, s.AcceptWaveform(windows(7, 0.5)))
	assert.False(t, s.IsSpeechDetected())
	require.NoError(t, s.AcceptWaveform(windows(13, 0.5)))
	assert.True(t, s.IsSpeechDetected())
	assert.True(t, s.IsEmpty())

	// 8000 samples of silence close it: sixteen windows
	require.NoError(t, s.AcceptWaveform(windows(15, 0)))
	assert.True(t, s.IsSpeechDetected())
	require.NoError(t, s.AcceptWaveform(windows(5, 0)))
	assert.False(t, s.IsSpeechDetected())

	require.False(t, s.IsEmpty())
	seg := s.Front()
	// pre-roll reaches 2 windows + MinSpeech before the triggering window
	assert.Equal(t, 18*512-2*512-4000, seg.Start)
	assert.Len(t, seg.Samples, 46*512-seg.Start)

	onset := 10*512 - seg.Start
	assert.Zero(t, seg.Samples[onset-1])
	assert.Equal(t, float32(0.5), seg.Samples[onset])

	s.Pop()
	assert.True(t, s.IsEmpty())
}

func TestSegmenter_ShortBurstIgnored(t *testing.T) {
	s, _ := newTestSegmenter(t)

	require.NoError(t, s.AcceptWaveform(windows(5, 0.5)))
	require.NoError(t, s.AcceptWaveform(windows(40, 0)))
	s.Flush()
	assert.True(t, s.IsEmpty())
}

func TestSegmenter_FlushClosesOpenSegment(t *testing.T) {
	s, _ := newTestSegmenter(t)

	require.NoError(t, s.AcceptWaveform(windows(12, 0.5)))
	require.True(t, s.IsSpeechDetected())

	s.Flush()
	assert.False(t, s.IsSpeechDetected())
	require.False(t, s.IsEmpty())
	assert.Equal(t, 0, s.Front().Start)
	assert.Len(t, s.Front().Samples, 12*512)

	// flushing again is a no-op
	s.Flush()
	s.Pop()
	assert.True(t, s.IsEmpty())
}

func TestSegmenter_LongSpeechIsSplitAndBounded(t *testing.T) {
	s, _ := newTestSegmenter(t)

	require.NoError(t, s.AcceptWaveform(windows(100, 0.5)))
	s.Flush()

	// the first 63 windows (>= 2s) were cut as one segment, then dropped
	// because unread segments are bounded to 2s in total
	require.False(t, s.IsEmpty())
	seg := s.Front()
	assert.Equal(t, 63*512, seg.Start)
	assert.Len(t, seg.Samples, 37*512)
	s.Pop()
	assert.True(t, s.IsEmpty())
}

func TestSegmenter_CarriesPartialWindows(t *testing.T) {
	s, det := newTestSegmenter(t)

	require.NoError(t, s.AcceptWaveform(make([]float32, 300)))
	assert.Equal(t, 0, det.CallCount())
	require.NoError(t, s.AcceptWaveform(make([]float32, 300)))
	assert.Equal(t, 1, det.CallCount())
	assert.Len(t, det.InferCalls[0], 512)
}

func TestSegmenter_DetectorError(t *testing.T) {
	boom := errors.New("boom")
	det := &MockDetector{InferFunc: func([]float32) (float32, error) { return 0, boom }}
	s, err := NewSegmenter(DefaultSegmenterConfig(16000), det)
	require.NoError(t, err)

	assert.ErrorIs(t, s.AcceptWaveform(windows(2, 0.5)), boom)
}

func TestSegmenter_ClearAndReset(t *testing.T) {
	s, det := newTestSegmenter(t)

	require.NoError(t, s.AcceptWaveform(windows(12, 0.5)))
	s.Flush()
	require.NoError(t, s.AcceptWaveform(windows(12, 0.5)))
	require.True(t, s.IsSpeechDetected())

	s.Clear()
	assert.True(t, s.IsEmpty())
	assert.True(t, s.IsSpeechDetected(), "Clear keeps the open segment")

	require.NoError(t, s.Reset())
	assert.False(t, s.IsSpeechDetected())
	assert.Equal(t, 1, det.ResetCount)

	// indices restart after Reset
	require.NoError(t, s.AcceptWaveform(windows(8, 0.5)))
	s.Flush()
	assert.Equal(t, 0, s.Front().Start)
}

func TestNewSegmenter_InvalidConfig(t *testing.T) {
	cfg := DefaultSegmenterConfig(16000)
	cfg.Threshold = 0
	_, err := NewSegmenter(cfg, NewMockDetector())
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewSegmenter(DefaultSegmenterConfig(0), NewMockDetector())
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewSegmenter(DefaultSegmenterConfig(16000), nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
