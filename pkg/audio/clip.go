package audio

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hajimehoshi/go-mp3"
	"github.com/youpy/go-wav"
)

// Clip is a fully decoded mono PCM16 clip.
type Clip struct {
	Name       string
	Samples    []int16
	SampleRate int
}

// Duration returns the playback length of the clip.
func (c *Clip) Duration() time.Duration {
	if c == nil || c.SampleRate == 0 {
		return 0
	}
	return time.Duration(len(c.Samples)) * time.Second / time.Duration(c.SampleRate)
}

// LoadClip reads and decodes an mp3 or wav file, downmixed to mono.
func LoadClip(path string) (*Clip, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read clip %s: %w", path, err)
	}
	clip, err := DecodeClip(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("decode clip %s: %w", path, err)
	}
	clip.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return clip, nil
}

// DecodeClip decodes an in-memory clip. format is a file extension
// (".mp3", ".wav", with or without the dot).
func DecodeClip(data []byte, format string) (*Clip, error) {
	switch strings.ToLower(strings.TrimPrefix(format, ".")) {
	case "mp3":
		return decodeMP3(data)
	case "wav":
		return decodeWAV(data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedClip, format)
	}
}

// go-mp3 always yields 16-bit little-endian stereo.
func decodeMP3(data []byte) (*Clip, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	pcm, err := io.ReadAll(dec)
	if err != nil {
		return nil, err
	}
	return &Clip{
		Samples:    downmix(BytesToInt16(pcm), 2),
		SampleRate: dec.SampleRate(),
	}, nil
}

func decodeWAV(data []byte) (*Clip, error) {
	r := wav.NewReader(bytes.NewReader(data))
	format, err := r.Format()
	if err != nil {
		return nil, err
	}
	if format.BitsPerSample != 16 {
		return nil, fmt.Errorf("%w: %d-bit wav", ErrUnsupportedClip, format.BitsPerSample)
	}

	var pcm bytes.Buffer
	buf := make([]byte, 8192)
	for {
		n, err := r.Read(buf)
		pcm.Write(buf[:n])
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}

	return &Clip{
		Samples:    downmix(BytesToInt16(pcm.Bytes()), int(format.NumChannels)),
		SampleRate: int(format.SampleRate),
	}, nil
}

func downmix(samples []int16, channels int) []int16 {
	if channels <= 1 {
		return samples
	}
	out := make([]int16, len(samples)/channels)
	for i := range out {
		var sum int32
		for c := 0; c < channels; c++ {
			sum += int32(samples[i*channels+c])
		}
		out[i] = int16(sum / int32(channels))
	}
	return out
}
