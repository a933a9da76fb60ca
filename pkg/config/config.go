// Package config loads the client configuration: a YAML file, optional
// .env file and VOICE_* environment overrides, validated once at start.
package config

import (
	"time"

	"github.com/realtime-ai/voice-client/pkg/logger"
	"github.com/realtime-ai/voice-client/pkg/wake"
)

// Config is the root configuration document.
type Config struct {
	Audio    AudioConfig    `yaml:"audio"`
	Wake     WakeConfig     `yaml:"wake"`
	Protocol ProtocolConfig `yaml:"protocol"`
	OTA      OTAConfig      `yaml:"ota"`
	Dances   []DanceConfig  `yaml:"dances"`
	Display  DisplayConfig  `yaml:"display"`
	Log      logger.Config  `yaml:"log"`
	Trace    TraceConfig    `yaml:"trace"`
	Metrics  MetricsConfig  `yaml:"metrics"`

	// TickInterval is the period of the frame tick.
	TickInterval time.Duration `yaml:"tick_interval"`
}

// AudioConfig configures the duplex device and the codec.
type AudioConfig struct {
	// Backend is "malgo" for the sound card or "manual" for headless runs.
	Backend          string `yaml:"backend"`
	InputSampleRate  int    `yaml:"input_sample_rate"`
	InputChannels    int    `yaml:"input_channels"`
	OutputSampleRate int    `yaml:"output_sample_rate"`
	OutputChannels   int    `yaml:"output_channels"`
	// ServerInputSampleRate is the rate of audio sent upstream.
	ServerInputSampleRate int `yaml:"server_input_sample_rate"`
	FrameDurationMs       int `yaml:"frame_duration_ms"`
	Volume                int `yaml:"volume"`

	EchoCancellation bool   `yaml:"echo_cancellation"`
	NoiseSuppression string `yaml:"noise_suppression"` // off | low | moderate | high | very_high
	// Resampler is "linear" or "ffmpeg" (requires the ffmpeg build tag).
	Resampler string `yaml:"resampler"`
}

// WakeConfig configures wake-word spotting, VAD and barge-in.
type WakeConfig struct {
	Enabled bool `yaml:"enabled"`
	// BreakMode selects how the user interrupts a reply:
	// none | keyword | vad | free.
	BreakMode string `yaml:"break_mode"`

	VADEngine       string  `yaml:"vad_engine"` // energy | silero | silero-go
	VADModelPath    string  `yaml:"vad_model_path"`
	VADThreshold    float32 `yaml:"vad_threshold"`
	MinSpeechMs     int     `yaml:"min_speech_ms"`
	MinSilenceMs    int     `yaml:"min_silence_ms"`
	TrimThreshold   int     `yaml:"trim_threshold"`
	ONNXRuntimePath string  `yaml:"onnxruntime_path"`

	Keywords wake.SherpaConfig `yaml:"keywords"`
}

// ProtocolConfig configures the websocket session.
type ProtocolConfig struct {
	URL              string        `yaml:"url"`
	AccessToken      string        `yaml:"access_token"`
	DeviceID         string        `yaml:"device_id"`
	ClientID         string        `yaml:"client_id"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	ChannelTimeout   time.Duration `yaml:"channel_timeout"`
}

// OTAConfig configures the version check. An empty URL skips it.
type OTAConfig struct {
	URL           string        `yaml:"url"`
	BoardName     string        `yaml:"board_name"`
	Version       string        `yaml:"version"`
	MaxRetries    int           `yaml:"max_retries"`
	RetryInterval time.Duration `yaml:"retry_interval"`
}

// DanceConfig names one dance clip (mp3 or wav).
type DanceConfig struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

// DisplayConfig selects the display.
type DisplayConfig struct {
	Kind string `yaml:"kind"` // console | none
}

// TraceConfig configures the tracer provider.
type TraceConfig struct {
	Exporter     string  `yaml:"exporter"` // stdout | otlp | none
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// MetricsConfig configures the Prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Audio: AudioConfig{
			Backend:               "malgo",
			InputSampleRate:       16000,
			InputChannels:         1,
			OutputSampleRate:      24000,
			OutputChannels:        1,
			ServerInputSampleRate: 16000,
			FrameDurationMs:       60,
			Volume:                70,
			EchoCancellation:      true,
			NoiseSuppression:      "moderate",
			Resampler:             "linear",
		},
		Wake: WakeConfig{
			Enabled:       true,
			BreakMode:     "keyword",
			VADEngine:     "energy",
			VADThreshold:  0.5,
			MinSpeechMs:   250,
			MinSilenceMs:  500,
			TrimThreshold: 64,
			Keywords: wake.SherpaConfig{
				NumThreads: 1,
				Provider:   "cpu",
			},
		},
		Protocol: ProtocolConfig{
			HandshakeTimeout: 10 * time.Second,
			ChannelTimeout:   120 * time.Second,
		},
		OTA: OTAConfig{
			BoardName:     "voice-client",
			Version:       "1.0.0",
			MaxRetries:    100,
			RetryInterval: 3 * time.Second,
		},
		Display: DisplayConfig{Kind: "console"},
		Log:     logger.DefaultConfig(),
		Trace: TraceConfig{
			Exporter:     "none",
			OTLPEndpoint: "localhost:4317",
			SamplingRate: 1.0,
		},
		TickInterval: 30 * time.Millisecond,
	}
}
