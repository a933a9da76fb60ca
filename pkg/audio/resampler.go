package audio

import (
	"fmt"
)

// Resampler converts 16-bit mono PCM between two sample rates.
//
// Output length is always GetOutputSamples(len(in)), so callers can size
// frames without inspecting the result.
type Resampler interface {
	// Configure sets the rates and discards all filter memory.
	Configure(inRate, outRate int) error
	GetOutputSamples(n int) int
	// Process converts one block. The returned slice may alias internal
	// storage and is only valid until the next call.
	Process(in []int16) ([]int16, error)
	InputSampleRate() int
	OutputSampleRate() int
	Close()
}

// outputSamples is the length law shared by every backend: floor(n·out/in).
func outputSamples(n, inRate, outRate int) int {
	if inRate <= 0 || outRate <= 0 || n <= 0 {
		return 0
	}
	return int(int64(n) * int64(outRate) / int64(inRate))
}

const maxBoxTaps = 8

// LinearResampler is a pure Go resampler using integer-phase linear
// interpolation. When downsampling, a box FIR of ceil(in/out) taps runs first
// as a crude anti-alias filter. All arithmetic is integer, so identical input
// after Configure always yields identical output.
type LinearResampler struct {
	inRate  int
	outRate int

	taps    int
	history []int32 // last taps-1 inputs of the previous block

	filtered []int32
	out      *ScratchBuffer[int16]
}

// NewLinearResampler creates a resampler configured for inRate → outRate.
func NewLinearResampler(inRate, outRate int) (*LinearResampler, error) {
	r := &LinearResampler{out: NewScratchBuffer[int16](1024)}
	if err := r.Configure(inRate, outRate); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *LinearResampler) Configure(inRate, outRate int) error {
	if inRate <= 0 || outRate <= 0 {
		r.inRate, r.outRate = 0, 0
		return fmt.Errorf("%w: %d -> %d", ErrInvalidRate, inRate, outRate)
	}
	r.inRate = inRate
	r.outRate = outRate

	r.taps = 1
	if inRate > outRate {
		r.taps = min((inRate+outRate-1)/outRate, maxBoxTaps)
	}
	r.history = make([]int32, r.taps-1)
	if r.out == nil {
		r.out = NewScratchBuffer[int16](1024)
	}
	r.out.Clear()
	return nil
}

func (r *LinearResampler) GetOutputSamples(n int) int {
	return outputSamples(n, r.inRate, r.outRate)
}

func (r *LinearResampler) InputSampleRate() int  { return r.inRate }
func (r *LinearResampler) OutputSampleRate() int { return r.outRate }

func (r *LinearResampler) Process(in []int16) ([]int16, error) {
	if r.inRate == 0 {
		return nil, ErrNotConfigured
	}
	n := len(in)
	outN := r.GetOutputSamples(n)
	dst := r.out.Ensure(outN)
	if n == 0 {
		return dst, nil
	}
	if r.inRate == r.outRate {
		copy(dst, in)
		return dst, nil
	}

	x := r.filter(in)

	// Output i sits at input position i·in/out. Interpolate towards the next
	// sample; the final position of a block holds its last value.
	in64, out64 := int64(r.inRate), int64(r.outRate)
	for i := 0; i < outN; i++ {
		pos := int64(i) * in64
		idx := int(pos / out64)
		frac := pos % out64

		a := x[idx]
		b := a
		if idx+1 < n {
			b = x[idx+1]
		}
		v := int64(a) + (int64(b-a)*frac)/out64
		dst[i] = clamp16(v)
	}
	return dst, nil
}

// filter runs the box FIR over in, using carried history across blocks.
func (r *LinearResampler) filter(in []int16) []int32 {
	if cap(r.filtered) < len(in) {
		r.filtered = make([]int32, len(in))
	}
	x := r.filtered[:len(in)]

	if r.taps == 1 {
		for i, s := range in {
			x[i] = int32(s)
		}
		return x
	}

	h := len(r.history)
	taps := int32(r.taps)
	for i := range in {
		var sum int32
		for k := 0; k < r.taps; k++ {
			j := i - k
			if j >= 0 {
				sum += int32(in[j])
			} else {
				sum += r.history[h+j]
			}
		}
		x[i] = sum / taps
	}

	// carry the newest taps-1 inputs
	if len(in) >= h {
		for k := 0; k < h; k++ {
			r.history[k] = int32(in[len(in)-h+k])
		}
	} else {
		shift := len(in)
		copy(r.history, r.history[shift:])
		for k := 0; k < shift; k++ {
			r.history[h-shift+k] = int32(in[k])
		}
	}
	return x
}

func (r *LinearResampler) Close() {
	r.inRate, r.outRate = 0, 0
}

func clamp16(v int64) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
