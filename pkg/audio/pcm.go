package audio

import (
	"encoding/binary"
	"math"
)

const (
	// BytesPerSample is the size of one 16-bit PCM sample.
	BytesPerSample = 2
)

// FrameSamples returns the sample count of one frame:
// sampleRate/1000 × durationMs × channels.
func FrameSamples(sampleRate, durationMs, channels int) int {
	return sampleRate / 1000 * durationMs * channels
}

// Repeat returns v modulo n in [0, n). n == 0 returns v unchanged.
func Repeat(v, n int) int {
	if n == 0 {
		return v
	}
	v %= n
	if v < 0 {
		v += n
	}
	return v
}

// Int16ToFloat32 converts PCM16 samples to [-1, 1] floats. dst must be at
// least as long as src.
func Int16ToFloat32(src []int16, dst []float32) {
	for i, s := range src {
		dst[i] = float32(s) / math.MaxInt16
	}
}

// Float32ToInt16 converts [-1, 1] floats to PCM16, clamping out-of-range input.
func Float32ToInt16(src []float32, dst []int16) {
	for i, f := range src {
		v := f * math.MaxInt16
		if v > math.MaxInt16 {
			v = math.MaxInt16
		} else if v < math.MinInt16 {
			v = math.MinInt16
		}
		dst[i] = int16(v)
	}
}

// Trim strips leading and trailing samples whose magnitude is at most
// threshold, moves the remainder to the front of samples and returns its
// length.
func Trim(samples []int16, threshold int) int {
	loud := func(s int16) bool {
		v := int(s)
		return v < -threshold || v > threshold
	}

	start := 0
	for start < len(samples) && !loud(samples[start]) {
		start++
	}
	if start == len(samples) {
		return 0
	}
	end := len(samples) - 1
	for end > start && !loud(samples[end]) {
		end--
	}

	n := end - start + 1
	copy(samples, samples[start:end+1])
	return n
}

// RMS returns the root mean square of samples normalised to [0, 1].
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s) / math.MaxInt16
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// BytesToInt16 decodes little-endian PCM16. A trailing odd byte is ignored.
func BytesToInt16(data []byte) []int16 {
	out := make([]int16, len(data)/BytesPerSample)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return out
}

// Int16ToBytes encodes PCM16 as little-endian bytes.
func Int16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// ApplyVolume scales samples in place by volume/100, saturating.
func ApplyVolume(samples []int16, volume int) {
	if volume >= 100 {
		return
	}
	if volume <= 0 {
		clear(samples)
		return
	}
	for i, s := range samples {
		samples[i] = int16(int32(s) * int32(volume) / 100)
	}
}
