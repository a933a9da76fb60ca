package vad

import (
	verrors "github.com/realtime-ai/voice-client/pkg/errors"
)

var (
	// ErrNotBuilt 二进制未启用 vad 构建标签
	ErrNotBuilt = verrors.New(verrors.KindConfig, "vad.new", "silero support not built, rebuild with -tags vad")
	// ErrWindowSize 输入窗口长度不匹配
	ErrWindowSize = verrors.New(verrors.KindIO, "vad.infer", "unexpected window size")
	// ErrInvalidConfig 配置无效
	ErrInvalidConfig = verrors.New(verrors.KindConfig, "vad.new", "invalid vad config")
	// ErrDestroyed 检测器已释放
	ErrDestroyed = verrors.New(verrors.KindResource, "vad.infer", "detector destroyed")
)
