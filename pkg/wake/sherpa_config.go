package wake

// SherpaConfig points at a sherpa-onnx keyword spotting transducer.
type SherpaConfig struct {
	Encoder      string `yaml:"encoder"`
	Decoder      string `yaml:"decoder"`
	Joiner       string `yaml:"joiner"`
	Tokens       string `yaml:"tokens"`
	KeywordsFile string `yaml:"keywords_file"`
	NumThreads   int    `yaml:"num_threads"`
	Provider     string `yaml:"provider"`
	SampleRate   int    `yaml:"-"`
}
