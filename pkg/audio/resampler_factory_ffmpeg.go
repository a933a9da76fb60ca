//go:build ffmpeg

package audio

// NewResampler returns the libswresample backend when built with -tags ffmpeg.
func NewResampler(inRate, outRate int) (Resampler, error) {
	return NewFFmpegResampler(inRate, outRate)
}
