package iot

import (
	verrors "github.com/realtime-ai/voice-client/pkg/errors"
)

var (
	// ErrThingNotFound 设备不存在
	ErrThingNotFound = verrors.New(verrors.KindDomain, "iot.invoke", "thing not found")
	// ErrMethodNotFound 方法不存在
	ErrMethodNotFound = verrors.New(verrors.KindDomain, "iot.invoke", "method not found")
	// ErrMissingParameter 缺少必填参数
	ErrMissingParameter = verrors.New(verrors.KindDomain, "iot.invoke", "missing parameter")
	// ErrParameterType 参数类型不匹配
	ErrParameterType = verrors.New(verrors.KindDomain, "iot.invoke", "parameter type mismatch")
	// ErrInvalidCommand 命令格式错误
	ErrInvalidCommand = verrors.New(verrors.KindDomain, "iot.invoke", "invalid command")
)
