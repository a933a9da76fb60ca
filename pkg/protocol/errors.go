package protocol

import (
	verrors "github.com/realtime-ai/voice-client/pkg/errors"
)

var (
	// ErrNotConnected 连接未建立
	ErrNotConnected = verrors.New(verrors.KindNetwork, "protocol.send", "websocket is not connected")
	// ErrHandshakeTimeout 握手超时
	ErrHandshakeTimeout = verrors.New(verrors.KindNetwork, "protocol.open", "server hello timed out")
	// ErrUnsupportedTransport 服务端传输类型不支持
	ErrUnsupportedTransport = verrors.New(verrors.KindNetwork, "protocol.hello", "unsupported transport")
	// ErrMissingConfig 连接参数缺失
	ErrMissingConfig = verrors.New(verrors.KindConfig, "protocol.open", "url, token, device id and client id are required")
	// ErrSendQueueFull 发送队列已满
	ErrSendQueueFull = verrors.New(verrors.KindResource, "protocol.send", "send queue full")
)
