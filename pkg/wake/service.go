// Package wake runs wake-word spotting and voice activity detection over
// the capture stream.
//
// Feed is called from the frame tick with every captured frame. A
// background loop polls the detectors every PollInterval and raises
// OnVadStateChanged on each voice edge and OnWakeWordDetected once per
// keyword. Callbacks run on the loop goroutine; consumers that own state
// marshal them onto their own goroutine.
package wake

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/realtime-ai/voice-client/pkg/audio"
	verrors "github.com/realtime-ai/voice-client/pkg/errors"
	"github.com/realtime-ai/voice-client/pkg/logger"
	"github.com/realtime-ai/voice-client/pkg/vad"
)

const (
	DefaultPollInterval  = 100 * time.Millisecond
	DefaultTrimThreshold = 64

	errorLogInterval = time.Second
)

// Config configures a Service.
type Config struct {
	SampleRate int
	Segmenter  vad.SegmenterConfig
	// TrimThreshold is the near-silence level stripped from both ends of the
	// VAD buffer.
	TrimThreshold int
	PollInterval  time.Duration
	Logger        *zap.Logger
}

// DefaultConfig returns the defaults for sampleRate.
func DefaultConfig(sampleRate int) Config {
	return Config{
		SampleRate:    sampleRate,
		Segmenter:     vad.DefaultSegmenterConfig(sampleRate),
		TrimThreshold: DefaultTrimThreshold,
		PollInterval:  DefaultPollInterval,
	}
}

// Service combines a vad.Segmenter with an optional KeywordSpotter.
type Service struct {
	cfg Config
	log *zap.Logger

	// mu guards the segmenter, the spotter and the conversion buffers.
	// Feed, the poll loop and the VAD buffer calls all take it.
	mu       sync.Mutex
	detector vad.DetectorInterface
	seg      *vad.Segmenter
	spotter  KeywordSpotter
	floats   []float32
	pcm      []int16
	lastErr  time.Time

	running  atomic.Bool
	voice    atomic.Bool
	lastWake atomic.Value // string

	cancel context.CancelFunc
	done   chan struct{}

	handlersMu sync.RWMutex
	onVad      []func(bool)
	onWake     []func(string)
}

// New creates a stopped service. spotter may be nil, in which case only
// voice activity is reported. The service owns both detectors.
func New(cfg Config, detector vad.DetectorInterface, spotter KeywordSpotter) (*Service, error) {
	if cfg.SampleRate <= 0 {
		return nil, verrors.New(verrors.KindConfig, "wake.new", "invalid sample rate")
	}
	if cfg.Segmenter.SampleRate == 0 {
		cfg.Segmenter = vad.DefaultSegmenterConfig(cfg.SampleRate)
	}
	if cfg.TrimThreshold <= 0 {
		cfg.TrimThreshold = DefaultTrimThreshold
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	seg, err := vad.NewSegmenter(cfg.Segmenter, detector)
	if err != nil {
		return nil, verrors.Wrap(verrors.KindConfig, "wake.new", "create segmenter", err)
	}

	s := &Service{
		cfg:      cfg,
		log:      logger.Or(cfg.Logger, "wake"),
		detector: detector,
		seg:      seg,
		spotter:  spotter,
	}
	s.lastWake.Store("")
	return s, nil
}

// OnVadStateChanged registers fn for voice onset (true) and release (false).
func (s *Service) OnVadStateChanged(fn func(bool)) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	s.onVad = append(s.onVad, fn)
}

// OnWakeWordDetected registers fn for detected keywords.
func (s *Service) OnWakeWordDetected(fn func(string)) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	s.onWake = append(s.onWake, fn)
}

// Start resets the detectors and starts the poll loop. Starting a running
// service is a no-op.
func (s *Service) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.running.CompareAndSwap(false, true) {
		return nil
	}

	s.mu.Lock()
	if err := s.seg.Reset(); err != nil {
		s.log.Warn("reset vad", zap.Error(err))
	}
	s.seg.Clear()
	if s.spotter != nil {
		s.spotter.Reset()
	}
	s.mu.Unlock()
	s.voice.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)

	s.log.Info("wake service started", zap.Bool("keywords", s.spotter != nil))
	return nil
}

// Stop ends the poll loop and waits for it. Safe to call repeatedly.
func (s *Service) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	s.cancel()
	<-s.done
	s.log.Info("wake service stopped")
}

// Close stops the service and releases the detectors.
func (s *Service) Close() error {
	s.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	if s.detector != nil {
		err = s.detector.Destroy()
		s.detector = nil
	}
	if s.spotter != nil {
		if cerr := s.spotter.Close(); err == nil {
			err = cerr
		}
		s.spotter = nil
	}
	return err
}

func (s *Service) IsRunning() bool {
	return s.running.Load()
}

// IsVoiceDetected returns the voice state seen by the last poll.
func (s *Service) IsVoiceDetected() bool {
	return s.voice.Load()
}

// LastWakeWord returns the most recent keyword, or "".
func (s *Service) LastWakeWord() string {
	return s.lastWake.Load().(string)
}

// Feed pushes captured samples into both detectors. Ignored while stopped.
func (s *Service) Feed(samples []int16) {
	if !s.running.Load() || len(samples) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if cap(s.floats) < len(samples) {
		s.floats = make([]float32, len(samples))
	}
	floats := s.floats[:len(samples)]
	audio.Int16ToFloat32(samples, floats)

	if err := s.seg.AcceptWaveform(floats); err != nil {
		s.logError("vad accept waveform", err)
	}
	if s.spotter != nil {
		s.spotter.AcceptWaveform(s.cfg.SampleRate, floats)
	}
}

func (s *Service) logError(msg string, err error) {
	if time.Since(s.lastErr) < errorLogInterval {
		return
	}
	s.lastErr = time.Now()
	s.log.Warn(msg, zap.Error(err))
}

func (s *Service) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		s.poll()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Service) poll() {
	s.mu.Lock()
	voice := s.seg.IsSpeechDetected()
	keyword := ""
	if s.spotter != nil {
		for s.spotter.IsReady() {
			s.spotter.Decode()
			if kw := s.spotter.Keyword(); kw != "" {
				s.spotter.Reset()
				keyword = kw
				break
			}
		}
	}
	s.mu.Unlock()

	if s.voice.Swap(voice) != voice {
		s.log.Debug("vad", zap.Bool("voice", voice))
		s.handlersMu.RLock()
		handlers := s.onVad
		s.handlersMu.RUnlock()
		for _, fn := range handlers {
			fn(voice)
		}
	}

	if keyword != "" {
		s.lastWake.Store(keyword)
		s.log.Info("wake word detected", zap.String("keyword", keyword))
		s.handlersMu.RLock()
		handlers := s.onWake
		s.handlersMu.RUnlock()
		for _, fn := range handlers {
			fn(keyword)
		}
	}
}

// ReadVadBuffer flushes the segmenter and copies every queued segment into
// buf, trimmed of near-silence at both ends. Audio shorter than the minimum
// speech duration counts as nothing: the VAD buffer is cleared and 0 is
// returned. On return buf holds exactly the returned number of samples.
func (s *Service) ReadVadBuffer(buf *audio.ScratchBuffer[int16]) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf.Clear()
	s.seg.Flush()
	for !s.seg.IsEmpty() {
		samples := s.seg.Front().Samples
		if cap(s.pcm) < len(samples) {
			s.pcm = make([]int16, len(samples))
		}
		pcm := s.pcm[:len(samples)]
		audio.Float32ToInt16(samples, pcm)
		buf.Write(pcm)
		s.seg.Pop()
	}

	n := audio.Trim(buf.Read(), s.cfg.TrimThreshold)
	if n < s.cfg.Segmenter.MinSpeechSamples() {
		s.clearLocked()
		buf.Clear()
		return 0
	}
	buf.SetCount(n)
	return n
}

// ClearVadBuffer drops queued segments and resets the segmenter.
func (s *Service) ClearVadBuffer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
}

func (s *Service) clearLocked() {
	s.seg.Clear()
	if err := s.seg.Reset(); err != nil {
		s.logError("reset vad", err)
	}
}
