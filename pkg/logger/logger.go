// Package logger builds the process-wide zap logger.
//
// Components receive a *zap.Logger through their config structs and fall
// back to zap.L() when none is given, so New must run before anything else
// logs if the global logger should carry the configured level and sinks.
package logger

import (
	"fmt"
	"os"
	"strings"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls the level, encoding and optional rotating file sink.
type Config struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // console | json
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// DefaultConfig logs info and above to stderr in console format.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "console",
		MaxSizeMB:  20,
		MaxBackups: 3,
		MaxAgeDays: 7,
	}
}

// ParseLevel maps a level name to a zapcore level.
func ParseLevel(level string) (zapcore.Level, error) {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(level)))); err != nil {
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return l, nil
}

// New builds a logger from cfg and installs it as the zap global.
func New(cfg Config) (*zap.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	switch cfg.Format {
	case "", "console":
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	case "json":
		encoder = zapcore.NewJSONEncoder(encCfg)
	default:
		return nil, fmt.Errorf("invalid log format %q", cfg.Format)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), level),
	}

	if cfg.File != "" {
		// 文件日志统一用 JSON，便于后续检索
		fileEncCfg := zap.NewProductionEncoderConfig()
		fileEncCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileEncCfg), zapcore.AddSync(rotator), level))
	}

	log := zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	zap.ReplaceGlobals(log)
	return log, nil
}

// Or returns l, or the global logger when l is nil, named for a component.
func Or(l *zap.Logger, name string) *zap.Logger {
	if l == nil {
		l = zap.L()
	}
	return l.Named(name)
}
