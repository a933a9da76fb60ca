// Package ota checks the firmware/version endpoint, which also hands out
// device activation codes.
package ota

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	verrors "github.com/realtime-ai/voice-client/pkg/errors"
	"github.com/realtime-ai/voice-client/pkg/logger"
)

const (
	DefaultTimeout       = 5 * time.Second
	DefaultMaxRetries    = 100
	DefaultRetryInterval = 3 * time.Second
	DefaultLanguage      = "zh-CN"

	minURLLength = 10
)

var (
	// ErrNoURL 未配置检查地址
	ErrNoURL = verrors.New(verrors.KindConfig, "ota.check", "check version url is not properly set")
	// ErrNoFirmware 响应缺少 firmware.version
	ErrNoFirmware = verrors.New(verrors.KindNetwork, "ota.check", "response has no firmware version")
)

// Result is a successful check.
type Result struct {
	FirmwareVersion   string
	FirmwareURL       string
	ActivationCode    string
	ActivationMessage string
	// WebSocketURL and WebSocketToken are set when the server assigns a
	// session endpoint.
	WebSocketURL   string
	WebSocketToken string
}

// NeedsActivation reports whether the device must be activated first.
func (r *Result) NeedsActivation() bool {
	return r.ActivationCode != ""
}

// Checker performs one version check.
type Checker interface {
	CheckVersion(ctx context.Context) (*Result, error)
}

// Config configures a Client.
type Config struct {
	URL       string
	DeviceID  string
	ClientID  string
	BoardName string
	Version   string
	Language  string
	Timeout   time.Duration
	Logger    *zap.Logger
}

// Client is a Checker over HTTP.
type Client struct {
	cfg  Config
	http *resty.Client
	log  *zap.Logger
}

var _ Checker = (*Client)(nil)

func NewClient(cfg Config) *Client {
	if cfg.Language == "" {
		cfg.Language = DefaultLanguage
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	http := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("Device-Id", cfg.DeviceID).
		SetHeader("Client-Id", cfg.ClientID).
		SetHeader("Accept-Language", cfg.Language).
		SetHeader("User-Agent", cfg.BoardName+"/"+cfg.Version).
		SetHeader("Content-Type", "application/json").
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal)
	return &Client{cfg: cfg, http: http, log: logger.Or(cfg.Logger, "ota")}
}

type postData struct {
	MacAddress  string      `json:"mac_address"`
	UUID        string      `json:"uuid"`
	Application application `json:"application"`
	Board       board       `json:"board"`
}

type application struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type board struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

type response struct {
	Firmware *struct {
		Version string `json:"version"`
		URL     string `json:"url"`
	} `json:"firmware"`
	Activation *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"activation"`
	WebSocket *struct {
		URL   string `json:"url"`
		Token string `json:"token"`
	} `json:"websocket"`
}

// CheckVersion posts the device description and parses the reply. A reply
// without firmware.version is a failure.
func (c *Client) CheckVersion(ctx context.Context) (*Result, error) {
	if len(c.cfg.URL) < minURLLength {
		return nil, ErrNoURL
	}

	var body response
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(postData{
			MacAddress:  c.cfg.DeviceID,
			UUID:        c.cfg.ClientID,
			Application: application{Name: c.cfg.BoardName, Version: c.cfg.Version},
			Board:       board{Type: c.cfg.BoardName, Name: c.cfg.BoardName},
		}).
		SetResult(&body).
		Post(c.cfg.URL)
	if err != nil {
		return nil, verrors.Wrap(verrors.KindNetwork, "ota.check", "post "+c.cfg.URL, err)
	}
	if resp.IsError() {
		return nil, verrors.New(verrors.KindNetwork, "ota.check", fmt.Sprintf("HTTP %d", resp.StatusCode()))
	}
	c.log.Debug("ota response", zap.ByteString("body", resp.Body()))

	if body.Firmware == nil || body.Firmware.Version == "" {
		return nil, ErrNoFirmware
	}

	res := &Result{
		FirmwareVersion: body.Firmware.Version,
		FirmwareURL:     body.Firmware.URL,
	}
	if body.Activation != nil {
		res.ActivationCode = body.Activation.Code
		res.ActivationMessage = body.Activation.Message
	}
	if body.WebSocket != nil {
		res.WebSocketURL = body.WebSocket.URL
		res.WebSocketToken = body.WebSocket.Token
	}
	return res, nil
}
