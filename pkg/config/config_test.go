package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	require.NoError(t, Validate(Default()))
}

func TestLoadFromReader(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(`
audio:
  backend: manual
  output_sample_rate: 48000
  frame_duration_ms: 20
wake:
  break_mode: free
  keywords:
    encoder: enc.onnx
protocol:
  url: wss://example.com/v1/
  handshake_timeout: 5s
dances:
  - name: 机械舞
    path: clips/robot.mp3
tick_interval: 20ms
`))
	require.NoError(t, err)

	assert.Equal(t, "manual", cfg.Audio.Backend)
	assert.Equal(t, 48000, cfg.Audio.OutputSampleRate)
	assert.Equal(t, 16000, cfg.Audio.InputSampleRate, "defaults are kept")
	assert.Equal(t, 20, cfg.Audio.FrameDurationMs)
	assert.Equal(t, "free", cfg.Wake.BreakMode)
	assert.Equal(t, "enc.onnx", cfg.Wake.Keywords.Encoder)
	assert.Equal(t, 1, cfg.Wake.Keywords.NumThreads)
	assert.Equal(t, 5*time.Second, cfg.Protocol.HandshakeTimeout)
	assert.Equal(t, 120*time.Second, cfg.Protocol.ChannelTimeout)
	require.Len(t, cfg.Dances, 1)
	assert.Equal(t, "机械舞", cfg.Dances[0].Name)
	assert.Equal(t, 20*time.Millisecond, cfg.TickInterval)
}

func TestLoadFromReader_Empty(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("audio:\n  sample_rate: 16000\n"))
	assert.Error(t, err)
}

func TestValidate_JoinsErrors(t *testing.T) {
	cfg := Default()
	cfg.Audio.FrameDurationMs = 30
	cfg.Audio.Volume = 101
	cfg.Wake.BreakMode = "shout"
	cfg.Wake.VADEngine = "silero"
	cfg.Dances = []DanceConfig{{Name: "a", Path: "a.mp3"}, {Name: "a", Path: "b.mp3"}}
	cfg.TickInterval = 0

	err := Validate(cfg)
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{
		"audio.frame_duration_ms 30",
		"audio.volume 101",
		`wake.break_mode "shout"`,
		"wake.vad_model_path is required",
		`dances[1].name "a" is duplicated`,
		"tick_interval",
	} {
		assert.Contains(t, msg, want)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvWSURL:       "ws://override/",
		EnvWSToken:     "secret",
		EnvDeviceID:    "11:22:33:44:55:66",
		EnvLogLevel:    "debug",
		EnvTraceExport: "stdout",
		EnvClientID:    "  ",
	}
	cfg := Default()
	cfg.Protocol.ClientID = "keep"
	ApplyEnv(cfg, func(k string) string { return env[k] })

	assert.Equal(t, "ws://override/", cfg.Protocol.URL)
	assert.Equal(t, "secret", cfg.Protocol.AccessToken)
	assert.Equal(t, "11:22:33:44:55:66", cfg.Protocol.DeviceID)
	assert.Equal(t, "keep", cfg.Protocol.ClientID)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "stdout", cfg.Trace.Exporter)
}

func TestFillIdentity(t *testing.T) {
	cfg := Default()
	FillIdentity(cfg)
	assert.Len(t, cfg.Protocol.DeviceID, len("aa:bb:cc:dd:ee:ff"))
	assert.Len(t, cfg.Protocol.ClientID, 36)

	cfg.Protocol.ClientID = "fixed"
	FillIdentity(cfg)
	assert.Equal(t, "fixed", cfg.Protocol.ClientID)
}

func TestLoad_FileAndDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("protocol:\n  url: ws://file/\n"), 0o600))
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte(EnvWSToken+"=from-dotenv\n"), 0o600))

	t.Setenv(EnvWSToken, "")
	require.NoError(t, os.Unsetenv(EnvWSToken))
	require.NoError(t, LoadDotEnv(envPath, filepath.Join(dir, "missing.env")))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ws://file/", cfg.Protocol.URL)
	assert.Equal(t, "from-dotenv", cfg.Protocol.AccessToken)
	assert.NotEmpty(t, cfg.Protocol.ClientID)

	_, err = Load(filepath.Join(dir, "nope.yaml"))
	assert.Error(t, err)
}
