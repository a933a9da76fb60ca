package audio

import (
	verrors "github.com/realtime-ai/voice-client/pkg/errors"
)

var (
	// ErrNotConfigured 重采样器未配置
	ErrNotConfigured = verrors.New(verrors.KindConfig, "resampler.process", "resampler not configured")
	// ErrInvalidRate 采样率无效
	ErrInvalidRate = verrors.New(verrors.KindConfig, "resampler.configure", "invalid sample rate")
	// ErrUnsupportedClip 不支持的音频格式
	ErrUnsupportedClip = verrors.New(verrors.KindIO, "clip.decode", "unsupported clip format")
)
