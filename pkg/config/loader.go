package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/realtime-ai/voice-client/pkg/aec"
	"github.com/realtime-ai/voice-client/pkg/logger"
	"github.com/realtime-ai/voice-client/pkg/vad"
)

// Environment overrides.
const (
	EnvWSURL       = "VOICE_WS_URL"
	EnvWSToken     = "VOICE_WS_TOKEN"
	EnvDeviceID    = "VOICE_DEVICE_ID"
	EnvClientID    = "VOICE_CLIENT_ID"
	EnvOTAURL      = "VOICE_OTA_URL"
	EnvLogLevel    = "VOICE_LOG_LEVEL"
	EnvMetricsAddr = "VOICE_METRICS_ADDR"
	EnvTraceExport = "TRACE_EXPORTER"
)

var (
	validBreakModes = []string{"none", "keyword", "vad", "free"}
	validBackends   = []string{"malgo", "manual"}
	validResamplers = []string{"linear", "ffmpeg"}
	validDisplays   = []string{"console", "none"}
	validExporters  = []string{"stdout", "otlp", "none"}
	validFrameMs    = []int{10, 20, 40, 60, 80, 100, 120}
)

// Load reads the YAML file at path over the defaults, applies environment
// overrides, fills the device identity and validates the result. An empty
// path uses the defaults alone.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("config: open %q: %w", path, err)
		}
		defer f.Close()

		if err := decode(f, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %q: %w", path, err)
		}
	}

	ApplyEnv(cfg, os.Getenv)
	FillIdentity(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r over the defaults and
// validates it. No environment is consulted.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	if err := decode(r, cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config: decode yaml: %w", err)
	}
	return nil
}

// LoadDotEnv loads .env files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config: load %q: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides cfg from getenv. Empty values are ignored.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&cfg.Protocol.URL, EnvWSURL)
	set(&cfg.Protocol.AccessToken, EnvWSToken)
	set(&cfg.Protocol.DeviceID, EnvDeviceID)
	set(&cfg.Protocol.ClientID, EnvClientID)
	set(&cfg.OTA.URL, EnvOTAURL)
	set(&cfg.Log.Level, EnvLogLevel)
	set(&cfg.Metrics.Addr, EnvMetricsAddr)
	set(&cfg.Trace.Exporter, EnvTraceExport)
}

// FillIdentity sets a missing device id from the first hardware address and
// a missing client id to a random UUID. Both live for this process only.
func FillIdentity(cfg *Config) {
	if cfg.Protocol.DeviceID == "" {
		cfg.Protocol.DeviceID = macAddress()
	}
	if cfg.Protocol.ClientID == "" {
		cfg.Protocol.ClientID = uuid.NewString()
	}
}

func macAddress() string {
	ifaces, err := net.Interfaces()
	if err == nil {
		for _, iface := range ifaces {
			if iface.Flags&net.FlagLoopback != 0 || len(iface.HardwareAddr) != 6 {
				continue
			}
			return iface.HardwareAddr.String()
		}
	}
	// 无网卡时用随机 UUID 的前 6 字节
	id := uuid.New()
	return net.HardwareAddr(id[:6]).String()
}

// Validate checks that cfg is coherent. It returns a joined error listing
// every failure.
func Validate(cfg *Config) error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	a := cfg.Audio
	if !slices.Contains(validBackends, a.Backend) {
		fail("audio.backend %q is invalid; valid values: %s", a.Backend, strings.Join(validBackends, ", "))
	}
	if a.InputSampleRate <= 0 || a.OutputSampleRate <= 0 || a.ServerInputSampleRate <= 0 {
		fail("audio sample rates must be positive")
	}
	if a.InputChannels <= 0 || a.OutputChannels <= 0 {
		fail("audio channels must be positive")
	}
	if !slices.Contains(validFrameMs, a.FrameDurationMs) {
		fail("audio.frame_duration_ms %d is not an opus frame duration", a.FrameDurationMs)
	}
	if a.Volume < 0 || a.Volume > 100 {
		fail("audio.volume %d must be within [0, 100]", a.Volume)
	}
	if _, err := aec.ParseNoiseSuppressionLevel(a.NoiseSuppression); err != nil {
		fail("audio.noise_suppression: %w", err)
	}
	if !slices.Contains(validResamplers, a.Resampler) {
		fail("audio.resampler %q is invalid; valid values: %s", a.Resampler, strings.Join(validResamplers, ", "))
	}

	w := cfg.Wake
	if !slices.Contains(validBreakModes, w.BreakMode) {
		fail("wake.break_mode %q is invalid; valid values: %s", w.BreakMode, strings.Join(validBreakModes, ", "))
	}
	engine, err := vad.ParseEngine(w.VADEngine)
	if err != nil {
		fail("wake.vad_engine: %w", err)
	} else if engine != vad.EngineEnergy && w.Enabled && w.VADModelPath == "" {
		fail("wake.vad_model_path is required for the %s engine", engine)
	}
	if w.VADThreshold <= 0 || w.VADThreshold > 1 {
		fail("wake.vad_threshold %.2f must be within (0, 1]", w.VADThreshold)
	}
	if w.MinSpeechMs < 0 || w.MinSilenceMs < 0 || w.TrimThreshold < 0 {
		fail("wake durations and trim threshold must not be negative")
	}

	if cfg.Protocol.HandshakeTimeout <= 0 || cfg.Protocol.ChannelTimeout <= 0 {
		fail("protocol timeouts must be positive")
	}
	if cfg.OTA.URL != "" && (cfg.OTA.MaxRetries <= 0 || cfg.OTA.RetryInterval <= 0) {
		fail("ota.max_retries and ota.retry_interval must be positive")
	}

	seen := make(map[string]bool, len(cfg.Dances))
	for i, d := range cfg.Dances {
		switch {
		case d.Name == "":
			fail("dances[%d].name is empty", i)
		case seen[d.Name]:
			fail("dances[%d].name %q is duplicated", i, d.Name)
		case d.Path == "":
			fail("dances[%d].path is empty", i)
		}
		seen[d.Name] = true
	}

	if !slices.Contains(validDisplays, cfg.Display.Kind) {
		fail("display.kind %q is invalid; valid values: %s", cfg.Display.Kind, strings.Join(validDisplays, ", "))
	}
	if _, err := logger.ParseLevel(cfg.Log.Level); err != nil {
		fail("log.level: %w", err)
	}
	if !slices.Contains(validExporters, cfg.Trace.Exporter) {
		fail("trace.exporter %q is invalid; valid values: %s", cfg.Trace.Exporter, strings.Join(validExporters, ", "))
	}
	if cfg.TickInterval <= 0 {
		fail("tick_interval must be positive")
	}

	return errors.Join(errs...)
}
