// Package aec removes the device's own playback from its capture.
//
// A Processor sees two streams in 10 ms chunks: the reverse stream (what was
// just rendered) and the forward stream (what was just captured). For each
// capture chunk the caller feeds the matching render chunk first, then sets
// the delay hint, then processes the capture chunk in place.
//
// The forward path is high-pass, then an NLMS adaptive echo canceller driven
// by the reverse history, then a noise gate.
package aec

import (
	"fmt"
	"sync"

	"github.com/realtime-ai/voice-client/pkg/audio"
	verrors "github.com/realtime-ai/voice-client/pkg/errors"
)

// StreamConfig describes one side of the processor.
type StreamConfig struct {
	SampleRate int
	Channels   int
}

// ChunkSize returns samples per 10 ms chunk across all channels.
func (c StreamConfig) ChunkSize() int {
	return c.SampleRate / 100 * c.Channels
}

// NoiseSuppressionLevel selects how hard the gate attenuates noise-only frames.
type NoiseSuppressionLevel int

const (
	NoiseSuppressionOff NoiseSuppressionLevel = iota
	NoiseSuppressionLow
	NoiseSuppressionModerate
	NoiseSuppressionHigh
	NoiseSuppressionVeryHigh
)

func (l NoiseSuppressionLevel) attenuation() float64 {
	switch l {
	case NoiseSuppressionLow:
		return 0.5
	case NoiseSuppressionModerate:
		return 0.3
	case NoiseSuppressionHigh:
		return 0.15
	case NoiseSuppressionVeryHigh:
		return 0.05
	default:
		return 1
	}
}

// ParseNoiseSuppressionLevel maps a config string to a level.
func ParseNoiseSuppressionLevel(s string) (NoiseSuppressionLevel, error) {
	switch s {
	case "", "off":
		return NoiseSuppressionOff, nil
	case "low":
		return NoiseSuppressionLow, nil
	case "moderate":
		return NoiseSuppressionModerate, nil
	case "high":
		return NoiseSuppressionHigh, nil
	case "very_high":
		return NoiseSuppressionVeryHigh, nil
	}
	return NoiseSuppressionOff, fmt.Errorf("unknown noise suppression level %q", s)
}

// Options toggles the processing stages.
type Options struct {
	EchoCancellation bool
	NoiseSuppression NoiseSuppressionLevel
	HighPass         bool
	// FilterLengthMs is the echo tail the adaptive filter can model.
	FilterLengthMs int
	// StepSize is the NLMS adaptation rate in (0, 1].
	StepSize float64
}

// DefaultOptions enables every stage with high noise suppression.
func DefaultOptions() Options {
	return Options{
		EchoCancellation: true,
		NoiseSuppression: NoiseSuppressionHigh,
		HighPass:         true,
		FilterLengthMs:   32,
		StepSize:         0.3,
	}
}

const (
	highPassCutoffHz = 80
	maxDelayMs       = 500
	powerEpsilon     = 1e-6
)

var (
	ErrChunkSize = verrors.New(verrors.KindIO, "aec.process", "chunk is not 10ms")
	ErrClosed    = verrors.New(verrors.KindResource, "aec.process", "processor is closed")
)

// Processor is safe for use from one goroutine at a time; a mutex guards
// Close against a concurrent Process call from the device worker.
type Processor struct {
	mu      sync.Mutex
	closed  bool
	forward StreamConfig
	reverse StreamConfig
	opts    Options

	fwdChunk int // mono samples per forward chunk
	revChunk int

	revResampler audio.Resampler
	revMono      []int16

	// far-end history at the forward rate, newest chunk at the end
	hist       []float64
	taps       []float64
	maxDelay   int
	delay      int
	hasReverse bool

	highPass *biquad
	gate     *noiseGate
	frame    []float64
}

// New creates a processor for the given capture (forward) and render (reverse) formats.
func New(forward, reverse StreamConfig, opts Options) (*Processor, error) {
	if forward.SampleRate < 100 || forward.Channels <= 0 || reverse.SampleRate < 100 || reverse.Channels <= 0 {
		return nil, verrors.New(verrors.KindConfig, "aec.new",
			fmt.Sprintf("invalid stream config forward=%+v reverse=%+v", forward, reverse))
	}
	if opts.FilterLengthMs <= 0 {
		opts.FilterLengthMs = DefaultOptions().FilterLengthMs
	}
	if opts.StepSize <= 0 || opts.StepSize > 1 {
		opts.StepSize = DefaultOptions().StepSize
	}

	p := &Processor{
		forward:  forward,
		reverse:  reverse,
		opts:     opts,
		fwdChunk: forward.SampleRate / 100,
		revChunk: reverse.SampleRate / 100,
		highPass: newHighPass(forward.SampleRate, highPassCutoffHz),
		gate:     newNoiseGate(opts.NoiseSuppression),
	}
	p.revMono = make([]int16, p.revChunk)
	p.frame = make([]float64, p.fwdChunk)

	resampler, err := audio.NewResampler(reverse.SampleRate, forward.SampleRate)
	if err != nil {
		return nil, verrors.Wrap(verrors.KindConfig, "aec.new", "reverse resampler", err)
	}
	p.revResampler = resampler

	taps := forward.SampleRate * opts.FilterLengthMs / 1000
	p.maxDelay = forward.SampleRate * maxDelayMs / 1000
	p.taps = make([]float64, taps)
	p.hist = make([]float64, p.maxDelay+taps+p.fwdChunk)
	return p, nil
}

func (p *Processor) Forward() StreamConfig { return p.forward }
func (p *Processor) Reverse() StreamConfig { return p.reverse }

// ProcessReverseStream feeds one 10 ms chunk of rendered audio. The chunk is
// not modified.
func (p *Processor) ProcessReverseStream(chunk []int16) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	if len(chunk) != p.reverse.ChunkSize() {
		return fmt.Errorf("%w: reverse got %d want %d", ErrChunkSize, len(chunk), p.reverse.ChunkSize())
	}

	downmixInto(p.revMono, chunk, p.reverse.Channels)
	far, err := p.revResampler.Process(p.revMono)
	if err != nil {
		return verrors.Wrap(verrors.KindIO, "aec.reverse", "resample reverse stream", err)
	}

	p.pushFar(func(dst []float64) {
		n := copy16(dst, far)
		clear(dst[n:])
	})
	p.hasReverse = true
	return nil
}

// SetStreamDelayMs hints how far the capture lags the render feed.
func (p *Processor) SetStreamDelayMs(ms int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delay = min(max(ms, 0)*p.forward.SampleRate/1000, p.maxDelay)
}

// ProcessStream processes one 10 ms capture chunk in place. On error the
// chunk is left untouched.
func (p *Processor) ProcessStream(chunk []int16) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	if len(chunk) != p.forward.ChunkSize() {
		return fmt.Errorf("%w: forward got %d want %d", ErrChunkSize, len(chunk), p.forward.ChunkSize())
	}

	// no render since the last capture chunk: the far end was silent
	if !p.hasReverse {
		p.pushFar(func(dst []float64) { clear(dst) })
	}
	p.hasReverse = false

	ch := p.forward.Channels
	for i := 0; i < p.fwdChunk; i++ {
		var sum float64
		for c := 0; c < ch; c++ {
			sum += float64(chunk[i*ch+c])
		}
		x := sum / float64(ch) / 32768
		if p.opts.HighPass {
			x = p.highPass.process(x)
		}
		p.frame[i] = x
	}

	if p.opts.EchoCancellation {
		p.cancelEcho(p.frame)
	}
	p.gate.process(p.frame)

	for i, v := range p.frame {
		s := toInt16(v * 32768)
		for c := 0; c < ch; c++ {
			chunk[i*ch+c] = s
		}
	}
	return nil
}

// cancelEcho runs NLMS over the frame. Far sample aligned with near sample n
// sits at base+n-delay in the history; tap k reaches k samples further back.
func (p *Processor) cancelEcho(near []float64) {
	base := len(p.hist) - p.fwdChunk - p.delay
	mu := p.opts.StepSize
	for n := range near {
		end := base + n
		var estimate, power float64
		for k, w := range p.taps {
			x := p.hist[end-k]
			estimate += w * x
			power += x * x
		}
		e := near[n] - estimate
		if power > powerEpsilon {
			g := mu * e / (power + powerEpsilon)
			for k := range p.taps {
				p.taps[k] += g * p.hist[end-k]
			}
		}
		near[n] = e
	}
}

func (p *Processor) pushFar(fill func(dst []float64)) {
	copy(p.hist, p.hist[p.fwdChunk:])
	fill(p.hist[len(p.hist)-p.fwdChunk:])
}

// Reset drops the adaptive state and history.
func (p *Processor) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	clear(p.taps)
	clear(p.hist)
	p.highPass.reset()
	p.gate = newNoiseGate(p.opts.NoiseSuppression)
	p.hasReverse = false
	_ = p.revResampler.Configure(p.reverse.SampleRate, p.forward.SampleRate)
}

// Close releases the processor. Safe to call more than once.
func (p *Processor) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.revResampler.Close()
}

func downmixInto(dst, src []int16, channels int) {
	if channels == 1 {
		copy(dst, src)
		return
	}
	for i := range dst {
		var sum int32
		for c := 0; c < channels; c++ {
			sum += int32(src[i*channels+c])
		}
		dst[i] = int16(sum / int32(channels))
	}
}

func copy16(dst []float64, src []int16) int {
	n := min(len(dst), len(src))
	for i := 0; i < n; i++ {
		dst[i] = float64(src[i]) / 32768
	}
	return n
}

func toInt16(v float64) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
