package vad

import (
	"fmt"
)

// Segmenter defaults, tuned for wake-word barge-in at 16 kHz.
const (
	DefaultWindowSize         = 512
	DefaultThreshold          = 0.75
	DefaultMinSpeechDuration  = 0.25
	DefaultMinSilenceDuration = 0.5
	DefaultBufferSizeSec      = 2.0

	// a triggered stream stays in speech until the score drops this far
	// below the threshold
	releaseMargin = 0.15
)

// SegmenterConfig configures a Segmenter. Durations are in seconds.
type SegmenterConfig struct {
	SampleRate         int
	WindowSize         int
	Threshold          float32
	MinSpeechDuration  float64
	MinSilenceDuration float64
	// BufferSizeSec bounds both the length of one segment and the total
	// audio queued in unread segments.
	BufferSizeSec float64
}

// DefaultSegmenterConfig returns the defaults for sampleRate.
func DefaultSegmenterConfig(sampleRate int) SegmenterConfig {
	return SegmenterConfig{
		SampleRate:         sampleRate,
		WindowSize:         DefaultWindowSize,
		Threshold:          DefaultThreshold,
		MinSpeechDuration:  DefaultMinSpeechDuration,
		MinSilenceDuration: DefaultMinSilenceDuration,
		BufferSizeSec:      DefaultBufferSizeSec,
	}
}

// MinSpeechSamples is MinSpeechDuration in samples.
func (c SegmenterConfig) MinSpeechSamples() int {
	return int(c.MinSpeechDuration * float64(c.SampleRate))
}

func (c SegmenterConfig) validate() error {
	if c.SampleRate <= 0 || c.WindowSize <= 0 {
		return fmt.Errorf("%w: sample rate %d, window %d", ErrInvalidConfig, c.SampleRate, c.WindowSize)
	}
	if c.Threshold <= 0 || c.Threshold > 1 {
		return fmt.Errorf("%w: threshold %.2f", ErrInvalidConfig, c.Threshold)
	}
	if c.BufferSizeSec <= 0 {
		return fmt.Errorf("%w: buffer size %.2fs", ErrInvalidConfig, c.BufferSizeSec)
	}
	return nil
}

// Segment is one detected stretch of speech. Start is the absolute sample
// index of Samples[0] since the last Reset.
type Segment struct {
	Start   int
	Samples []float32
}

// Segmenter accumulates speech segments from a detector.
//
// Samples are scored one window at a time. While idle only a short
// pre-roll of history is kept; when speech triggers, the segment starts
// two windows plus MinSpeechDuration before the triggering window, so the
// part of the utterance spent satisfying MinSpeechDuration is not lost.
//
// Segmenter is not safe for concurrent use.
type Segmenter struct {
	cfg      SegmenterConfig
	detector DetectorInterface

	pending []float32

	// history of scored samples; head is the absolute index of buf[0]
	buf  []float32
	head int
	// start of the open segment, -1 when none
	start int

	triggered bool
	speechRun int
	silentRun int

	segments []Segment
	queued   int
}

// NewSegmenter creates a segmenter over detector.
func NewSegmenter(cfg SegmenterConfig, detector DetectorInterface) (*Segmenter, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if detector == nil {
		return nil, fmt.Errorf("%w: nil detector", ErrInvalidConfig)
	}
	return &Segmenter{
		cfg:      cfg,
		detector: detector,
		pending:  make([]float32, 0, cfg.WindowSize*2),
		start:    -1,
	}, nil
}

// Config returns the configuration the segmenter was built with.
func (s *Segmenter) Config() SegmenterConfig {
	return s.cfg
}

// AcceptWaveform scores every complete window in samples, carrying any
// remainder into the next call. A detector error aborts the call; windows
// scored before it are kept.
func (s *Segmenter) AcceptWaveform(samples []float32) error {
	s.pending = append(s.pending, samples...)

	w := s.cfg.WindowSize
	consumed := 0
	defer func() {
		n := copy(s.pending, s.pending[consumed:])
		s.pending = s.pending[:n]
	}()

	for len(s.pending)-consumed >= w {
		window := s.pending[consumed : consumed+w]
		prob, err := s.detector.Infer(window)
		if err != nil {
			return err
		}
		consumed += w

		speech := s.score(prob)
		s.buf = append(s.buf, window...)
		s.advance(speech)
	}
	return nil
}

// score applies hysteresis to one window probability.
func (s *Segmenter) score(prob float32) bool {
	w := s.cfg.WindowSize
	if !s.triggered {
		if prob > s.cfg.Threshold {
			s.speechRun += w
			if s.speechRun >= s.cfg.MinSpeechSamples() {
				s.triggered = true
				s.silentRun = 0
			}
		} else {
			s.speechRun = 0
		}
		return s.triggered
	}

	if prob > s.cfg.Threshold-releaseMargin {
		s.silentRun = 0
		return true
	}
	s.silentRun += w
	if float64(s.silentRun) < s.cfg.MinSilenceDuration*float64(s.cfg.SampleRate) {
		return true
	}
	s.triggered = false
	s.speechRun = 0
	s.silentRun = 0
	return false
}

func (s *Segmenter) advance(speech bool) {
	tail := s.head + len(s.buf)
	maxSegment := s.maxSamples()

	if speech {
		if s.start < 0 {
			s.start = max(tail-2*s.cfg.WindowSize-s.cfg.MinSpeechSamples(), s.head)
		} else if tail-s.start >= maxSegment {
			// 超长语音按缓冲区大小切段
			s.emit(s.start, tail)
			s.start = tail
		}
		s.compact(s.start)
		return
	}

	if s.start >= 0 {
		s.emit(s.start, tail)
		s.start = -1
	}
	s.compact(tail - 2*s.cfg.WindowSize - s.cfg.MinSpeechSamples())
}

// compact drops history before absolute index keep.
func (s *Segmenter) compact(keep int) {
	drop := keep - s.head
	if drop <= 0 {
		return
	}
	drop = min(drop, len(s.buf))
	n := copy(s.buf, s.buf[drop:])
	s.buf = s.buf[:n]
	s.head += drop
}

func (s *Segmenter) emit(from, to int) {
	if to <= from {
		return
	}
	samples := make([]float32, to-from)
	copy(samples, s.buf[from-s.head:to-s.head])
	s.segments = append(s.segments, Segment{Start: from, Samples: samples})
	s.queued += len(samples)

	// unread segments are bounded; the oldest go first
	for s.queued > s.maxSamples() && len(s.segments) > 1 {
		s.queued -= len(s.segments[0].Samples)
		s.segments = s.segments[1:]
	}
}

func (s *Segmenter) maxSamples() int {
	return int(s.cfg.BufferSizeSec * float64(s.cfg.SampleRate))
}

// IsSpeechDetected reports whether a segment is open.
func (s *Segmenter) IsSpeechDetected() bool {
	return s.start >= 0
}

// Flush closes the open segment, if any, and queues it.
func (s *Segmenter) Flush() {
	if s.start < 0 {
		return
	}
	s.emit(s.start, s.head+len(s.buf))
	s.start = -1
}

// IsEmpty reports whether no segment is queued.
func (s *Segmenter) IsEmpty() bool {
	return len(s.segments) == 0
}

// Front returns the oldest queued segment. It panics when IsEmpty.
func (s *Segmenter) Front() Segment {
	return s.segments[0]
}

// Pop discards the oldest queued segment.
func (s *Segmenter) Pop() {
	if len(s.segments) == 0 {
		return
	}
	s.queued -= len(s.segments[0].Samples)
	s.segments[0] = Segment{}
	s.segments = s.segments[1:]
}

// Clear discards every queued segment.
func (s *Segmenter) Clear() {
	s.segments = nil
	s.queued = 0
}

// Reset returns the segmenter and its detector to the initial state. Queued
// segments are kept; call Clear to drop them.
func (s *Segmenter) Reset() error {
	s.pending = s.pending[:0]
	s.buf = s.buf[:0]
	s.head = 0
	s.start = -1
	s.triggered = false
	s.speechRun = 0
	s.silentRun = 0
	return s.detector.Reset()
}
