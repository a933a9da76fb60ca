package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"debug", zapcore.DebugLevel, false},
		{" WARN ", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"loud", zapcore.InfoLevel, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewWritesFile(t *testing.T) {
	prev := zap.L()
	defer zap.ReplaceGlobals(prev)

	path := filepath.Join(t.TempDir(), "client.log")
	cfg := DefaultConfig()
	cfg.File = path

	log, err := New(cfg)
	require.NoError(t, err)
	log.Info("hello", zap.String("k", "v"))
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Format = "xml"
	_, err := New(cfg)
	assert.Error(t, err)
}
