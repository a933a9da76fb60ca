package audio

import (
	"math"
	"math/bits"
)

// SpectrumAnalyzer computes windowed FFT magnitudes over a fixed window.
// Buffers are allocated once; Analyze does not allocate.
type SpectrumAnalyzer struct {
	size     int
	window   []float64
	re, im   []float64
	cos, sin []float64
	rev      []int
	spectrum []float32
}

// NewSpectrumAnalyzer creates an analyzer for windowSize samples. The size is
// rounded up to a power of two.
func NewSpectrumAnalyzer(windowSize int) *SpectrumAnalyzer {
	if windowSize < 2 {
		windowSize = 2
	}
	size := 1 << bits.Len(uint(windowSize-1))

	a := &SpectrumAnalyzer{
		size:     size,
		window:   make([]float64, size),
		re:       make([]float64, size),
		im:       make([]float64, size),
		cos:      make([]float64, size/2),
		sin:      make([]float64, size/2),
		rev:      make([]int, size),
		spectrum: make([]float32, size/2),
	}

	// 汉宁窗
	for i := range a.window {
		a.window[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(size-1)))
	}
	for k := range a.cos {
		angle := -2 * math.Pi * float64(k) / float64(size)
		a.cos[k] = math.Cos(angle)
		a.sin[k] = math.Sin(angle)
	}
	shift := bits.UintSize - bits.Len(uint(size-1))
	for i := range a.rev {
		a.rev[i] = int(bits.Reverse(uint(i)) >> shift)
	}
	return a
}

// WindowSize returns the analysis window length in samples.
func (a *SpectrumAnalyzer) WindowSize() int {
	return a.size
}

// Analyze windows the first WindowSize samples of pcm and returns
// WindowSize/2 magnitude bins normalised by the window length. It returns
// false when pcm is shorter than the window. The result aliases internal
// storage until the next call.
func (a *SpectrumAnalyzer) Analyze(pcm []int16) ([]float32, bool) {
	if len(pcm) < a.size {
		return nil, false
	}

	for i := 0; i < a.size; i++ {
		j := a.rev[i]
		a.re[j] = float64(pcm[i]) / math.MaxInt16 * a.window[i]
		a.im[j] = 0
	}

	// iterative radix-2
	for span := 2; span <= a.size; span <<= 1 {
		half := span >> 1
		step := a.size / span
		for start := 0; start < a.size; start += span {
			for k := 0; k < half; k++ {
				wr, wi := a.cos[k*step], a.sin[k*step]
				p, q := start+k, start+k+half
				tr := wr*a.re[q] - wi*a.im[q]
				ti := wr*a.im[q] + wi*a.re[q]
				a.re[q], a.im[q] = a.re[p]-tr, a.im[p]-ti
				a.re[p], a.im[p] = a.re[p]+tr, a.im[p]+ti
			}
		}
	}

	for i := range a.spectrum {
		a.spectrum[i] = float32(math.Hypot(a.re[i], a.im[i]) / float64(a.size))
	}
	return a.spectrum, true
}
