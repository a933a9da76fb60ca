package aec

import "math"

// biquad is a direct form I second-order section.
type biquad struct {
	b0, b1, b2, a1, a2 float64
	x1, x2, y1, y2     float64
}

const butterworthQ = 1 / math.Sqrt2

// newHighPass returns a Butterworth high-pass at cutoff Hz (RBJ cookbook).
func newHighPass(sampleRate int, cutoff float64) *biquad {
	w0 := 2 * math.Pi * cutoff / float64(sampleRate)
	alpha := math.Sin(w0) / (2 * butterworthQ)
	cos := math.Cos(w0)
	a0 := 1 + alpha
	return &biquad{
		b0: (1 + cos) / 2 / a0,
		b1: -(1 + cos) / a0,
		b2: (1 + cos) / 2 / a0,
		a1: -2 * cos / a0,
		a2: (1 - alpha) / a0,
	}
}

func (f *biquad) process(x float64) float64 {
	y := f.b0*x + f.b1*f.x1 + f.b2*f.x2 - f.a1*f.y1 - f.a2*f.y2
	f.x2, f.x1 = f.x1, x
	f.y2, f.y1 = f.y1, y
	return y
}

func (f *biquad) reset() {
	f.x1, f.x2, f.y1, f.y2 = 0, 0, 0, 0
}

// noiseGate attenuates frames whose energy sits near the tracked noise floor.
// The floor follows the minimum frame energy and creeps up slowly so it can
// recover after loud passages.
type noiseGate struct {
	floor       float64
	attenuation float64
	gain        float64
}

const (
	floorRise    = 1.02
	floorMinimum = 1e-7
	gateRatio    = 3.0
	gainSmooth   = 0.5
)

func newNoiseGate(level NoiseSuppressionLevel) *noiseGate {
	return &noiseGate{attenuation: level.attenuation(), gain: 1}
}

// process scales frame in place and returns the gain used.
func (g *noiseGate) process(frame []float64) float64 {
	if g.attenuation >= 1 || len(frame) == 0 {
		return 1
	}

	var energy float64
	for _, v := range frame {
		energy += v * v
	}
	energy /= float64(len(frame))

	if g.floor == 0 || energy < g.floor {
		g.floor = max(energy, floorMinimum)
	} else {
		g.floor *= floorRise
	}

	target := 1.0
	if energy < g.floor*gateRatio {
		target = g.attenuation
	}
	start := g.gain
	g.gain = gainSmooth*g.gain + (1-gainSmooth)*target

	// ramp across the frame to avoid zipper noise
	n := float64(len(frame))
	for i := range frame {
		frame[i] *= start + (g.gain-start)*float64(i+1)/n
	}
	return g.gain
}
