//go:build !ffmpeg

package audio

// NewResampler returns the default resampler backend for this build.
func NewResampler(inRate, outRate int) (Resampler, error) {
	return NewLinearResampler(inRate, outRate)
}
