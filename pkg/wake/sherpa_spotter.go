//go:build kws

package wake

import (
	"fmt"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"
)

// SherpaSpotter runs sherpa-onnx keyword spotting on one stream.
type SherpaSpotter struct {
	kws    *sherpa.KeywordSpotter
	stream *sherpa.OnlineStream
	result string
}

var _ KeywordSpotter = (*SherpaSpotter)(nil)

// NewSherpaSpotter loads the transducer and keywords file.
func NewSherpaSpotter(cfg SherpaConfig) (KeywordSpotter, error) {
	if cfg.Encoder == "" || cfg.Decoder == "" || cfg.Joiner == "" || cfg.Tokens == "" {
		return nil, fmt.Errorf("sherpa spotter: encoder, decoder, joiner and tokens are required")
	}
	if cfg.NumThreads <= 0 {
		cfg.NumThreads = 1
	}
	if cfg.Provider == "" {
		cfg.Provider = "cpu"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}

	c := sherpa.KeywordSpotterConfig{}
	c.FeatConfig.SampleRate = cfg.SampleRate
	c.FeatConfig.FeatureDim = 80
	c.ModelConfig.Transducer.Encoder = cfg.Encoder
	c.ModelConfig.Transducer.Decoder = cfg.Decoder
	c.ModelConfig.Transducer.Joiner = cfg.Joiner
	c.ModelConfig.Tokens = cfg.Tokens
	c.ModelConfig.NumThreads = cfg.NumThreads
	c.ModelConfig.Provider = cfg.Provider
	c.KeywordsFile = cfg.KeywordsFile

	kws := sherpa.NewKeywordSpotter(&c)
	if kws == nil {
		return nil, fmt.Errorf("sherpa spotter: failed to load model %s", cfg.Encoder)
	}
	return &SherpaSpotter{kws: kws, stream: sherpa.NewKeywordStream(kws)}, nil
}

func (s *SherpaSpotter) AcceptWaveform(sampleRate int, samples []float32) {
	s.stream.AcceptWaveform(sampleRate, samples)
}

func (s *SherpaSpotter) IsReady() bool {
	return s.kws.IsReady(s.stream)
}

func (s *SherpaSpotter) Decode() {
	s.kws.Decode(s.stream)
	s.result = s.kws.GetResult(s.stream).Keyword
}

func (s *SherpaSpotter) Keyword() string {
	return s.result
}

func (s *SherpaSpotter) Reset() {
	s.kws.Reset(s.stream)
	s.result = ""
}

func (s *SherpaSpotter) Close() error {
	if s.stream != nil {
		sherpa.DeleteOnlineStream(s.stream)
		s.stream = nil
	}
	if s.kws != nil {
		sherpa.DeleteKeywordSpotter(s.kws)
		s.kws = nil
	}
	return nil
}
