package protocol

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	verrors "github.com/realtime-ai/voice-client/pkg/errors"
	"github.com/realtime-ai/voice-client/pkg/logger"
	"github.com/realtime-ai/voice-client/pkg/talk"
)

const (
	DefaultWSWriteWait     = 10 * time.Second
	DefaultWSPongWait      = 60 * time.Second
	DefaultWSPingPeriod    = 54 * time.Second // Must be less than pongWait
	DefaultHelloTimeout    = 10 * time.Second
	DefaultChannelTimeout  = 120 * time.Second
	DefaultSendQueueSize   = 128
	DefaultFrameDurationMs = 60
)

// WebSocketConfig holds configuration for the WebSocket transport.
type WebSocketConfig struct {
	URL         string
	AccessToken string
	DeviceID    string
	ClientID    string

	FrameDurationMs int

	// HelloTimeout bounds the wait for the server hello.
	HelloTimeout time.Duration
	// ChannelTimeout is how long the channel counts as open without any
	// inbound JSON.
	ChannelTimeout time.Duration

	WriteWait  time.Duration
	PongWait   time.Duration
	PingPeriod time.Duration
	QueueSize  int

	Logger *zap.Logger
}

func (c *WebSocketConfig) applyDefaults() {
	if c.FrameDurationMs <= 0 {
		c.FrameDurationMs = DefaultFrameDurationMs
	}
	if c.HelloTimeout <= 0 {
		c.HelloTimeout = DefaultHelloTimeout
	}
	if c.ChannelTimeout <= 0 {
		c.ChannelTimeout = DefaultChannelTimeout
	}
	if c.WriteWait <= 0 {
		c.WriteWait = DefaultWSWriteWait
	}
	if c.PongWait <= 0 {
		c.PongWait = DefaultWSPongWait
	}
	if c.PingPeriod <= 0 || c.PingPeriod >= c.PongWait {
		c.PingPeriod = c.PongWait * 9 / 10
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultSendQueueSize
	}
}

type outbound struct {
	messageType int
	data        []byte
}

// wsSession is one dialed connection and its pumps.
type wsSession struct {
	conn   *websocket.Conn
	out    chan outbound
	hello  chan error
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// WebSocket is a Protocol over a single gorilla/websocket connection.
type WebSocket struct {
	cfg    WebSocketConfig
	log    *zap.Logger
	dialer *websocket.Dialer

	// openMu serializes OpenAudioChannel and CloseAudioChannel.
	openMu sync.Mutex
	sess   atomic.Pointer[wsSession]

	connected   atomic.Bool
	channelOpen atomic.Bool
	errored     atomic.Bool
	lastJSON    atomic.Int64 // unix nanos

	serverSampleRate atomic.Int32
	sessionID        atomic.Value // string

	handlerMu sync.RWMutex
	handler   Handler

	lastDrop atomic.Int64
}

var _ Protocol = (*WebSocket)(nil)

// NewWebSocket creates a disconnected transport.
func NewWebSocket(cfg WebSocketConfig) *WebSocket {
	cfg.applyDefaults()
	w := &WebSocket{
		cfg: cfg,
		log: logger.Or(cfg.Logger, "protocol"),
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HelloTimeout,
		},
		handler: NopHandler{},
	}
	w.sessionID.Store("")
	w.serverSampleRate.Store(ClientSampleRate)
	return w
}

// Start is a no-op: the connection is dialed by OpenAudioChannel.
func (w *WebSocket) Start() {}

func (w *WebSocket) SetHandler(h Handler) {
	if h == nil {
		h = NopHandler{}
	}
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.handler = h
}

func (w *WebSocket) getHandler() Handler {
	w.handlerMu.RLock()
	defer w.handlerMu.RUnlock()
	return w.handler
}

func (w *WebSocket) ServerSampleRate() int {
	return int(w.serverSampleRate.Load())
}

func (w *WebSocket) SessionID() string {
	return w.sessionID.Load().(string)
}

// OpenAudioChannel dials the server, sends the client hello and waits for
// the server hello. Any previous connection is closed first.
func (w *WebSocket) OpenAudioChannel(ctx context.Context) bool {
	if err := w.open(ctx); err != nil {
		w.log.Error("open audio channel", zap.Error(err))
		return false
	}
	return true
}

func (w *WebSocket) open(ctx context.Context) error {
	cfg := w.cfg
	if cfg.URL == "" || cfg.AccessToken == "" || cfg.DeviceID == "" || cfg.ClientID == "" {
		return ErrMissingConfig
	}

	w.openMu.Lock()
	defer w.openMu.Unlock()

	w.closeSession()
	w.errored.Store(false)
	w.lastJSON.Store(0)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+cfg.AccessToken)
	header.Set("Protocol-Version", "1")
	header.Set("Device-Id", cfg.DeviceID)
	header.Set("Client-Id", cfg.ClientID)

	conn, resp, err := w.dialer.DialContext(ctx, cfg.URL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		w.setError(verrors.Wrap(verrors.KindNetwork, "protocol.open", "dial "+cfg.URL, err))
		return err
	}

	sctx, cancel := context.WithCancel(context.Background())
	s := &wsSession{
		conn:   conn,
		out:    make(chan outbound, cfg.QueueSize),
		hello:  make(chan error, 1),
		ctx:    sctx,
		cancel: cancel,
	}
	w.sess.Store(s)
	w.connected.Store(true)
	w.log.Info("websocket connected", zap.String("url", cfg.URL))

	conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	})

	s.wg.Add(3)
	go w.readPump(s)
	go w.writePump(s)
	go w.pingPump(s)

	hello, err := EncodeHello(cfg.FrameDurationMs)
	if err != nil {
		return err
	}
	if err := w.enqueue(websocket.TextMessage, hello); err != nil {
		return err
	}

	timer := time.NewTimer(cfg.HelloTimeout)
	defer timer.Stop()
	select {
	case err := <-s.hello:
		if err != nil {
			w.closeSession()
		}
		return err
	case <-timer.C:
		w.closeSession()
		return ErrHandshakeTimeout
	case <-ctx.Done():
		w.closeSession()
		return ctx.Err()
	}
}

// CloseAudioChannel closes the connection without raising
// OnAudioChannelClosed.
func (w *WebSocket) CloseAudioChannel() {
	w.openMu.Lock()
	defer w.openMu.Unlock()
	w.closeSession()
}

// Close releases the connection.
func (w *WebSocket) Close() error {
	w.CloseAudioChannel()
	return nil
}

func (w *WebSocket) closeSession() {
	s := w.sess.Swap(nil)
	w.connected.Store(false)
	w.channelOpen.Store(false)
	if s == nil {
		return
	}
	s.cancel()
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(w.cfg.WriteWait))
	s.conn.Close()
	s.wg.Wait()
	w.log.Info("websocket closed")
}

// IsAudioChannelOpened reports whether the channel is connected, handshaken,
// error free and has heard from the server within ChannelTimeout.
func (w *WebSocket) IsAudioChannelOpened() bool {
	if !w.connected.Load() || !w.channelOpen.Load() || w.errored.Load() {
		return false
	}
	return !w.isTimeout()
}

func (w *WebSocket) isTimeout() bool {
	last := w.lastJSON.Load()
	if last == 0 {
		return false
	}
	if time.Since(time.Unix(0, last)) > w.cfg.ChannelTimeout {
		w.log.Warn("channel timeout", zap.Duration("silence", time.Since(time.Unix(0, last))))
		return true
	}
	return false
}

func (w *WebSocket) setError(err error) {
	w.errored.Store(true)
	w.getHandler().OnNetworkError(err)
}

func (w *WebSocket) readPump(s *wsSession) {
	defer s.wg.Done()
	defer s.cancel()

	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.ctx.Err() != nil {
				// closed locally
				return
			}
			w.connected.Store(false)
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				w.log.Info("websocket closed by server", zap.Int("code", closeErr.Code))
				w.channelOpen.Store(false)
				w.getHandler().OnAudioChannelClosed()
			} else {
				w.log.Warn("websocket read error", zap.Error(err))
				w.setError(verrors.Wrap(verrors.KindNetwork, "protocol.read", "read failed", err))
			}
			select {
			case s.hello <- verrors.Wrap(verrors.KindNetwork, "protocol.open", "connection lost", err):
			default:
			}
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(w.cfg.PongWait))

		switch mt {
		case websocket.BinaryMessage:
			if w.channelOpen.Load() {
				w.getHandler().OnIncomingAudio(data)
			}
		case websocket.TextMessage:
			w.handleText(s, data)
		}
	}
}

func (w *WebSocket) handleText(s *wsSession, data []byte) {
	msg, err := ParseMessage(data)
	if err != nil {
		w.log.Warn("drop message", zap.Error(err), zap.ByteString("data", data))
		return
	}
	w.lastJSON.Store(time.Now().UnixNano())

	if msg.Type == TypeHello {
		w.handleServerHello(s, msg)
		return
	}
	w.getHandler().OnIncomingJSON(msg)
}

func (w *WebSocket) handleServerHello(s *wsSession, msg *Message) {
	if msg.Transport != TransportName {
		err := fmt.Errorf("%w: %q", ErrUnsupportedTransport, msg.Transport)
		w.setError(err)
		select {
		case s.hello <- err:
		default:
		}
		return
	}

	rate := ClientSampleRate
	if msg.AudioParams != nil && msg.AudioParams.SampleRate > 0 {
		rate = msg.AudioParams.SampleRate
	}
	w.serverSampleRate.Store(int32(rate))
	w.sessionID.Store(msg.SessionID)
	w.channelOpen.Store(true)
	w.log.Info("audio channel opened",
		zap.String("session_id", msg.SessionID),
		zap.Int("server_sample_rate", rate))

	w.getHandler().OnAudioChannelOpened()
	select {
	case s.hello <- nil:
	default:
	}
}

func (w *WebSocket) writePump(s *wsSession) {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case msg := <-s.out:
			s.conn.SetWriteDeadline(time.Now().Add(w.cfg.WriteWait))
			if err := s.conn.WriteMessage(msg.messageType, msg.data); err != nil {
				if s.ctx.Err() == nil {
					w.log.Warn("websocket write error", zap.Error(err))
					w.setError(verrors.Wrap(verrors.KindNetwork, "protocol.write", "write failed", err))
				}
				return
			}
		}
	}
}

func (w *WebSocket) pingPump(s *wsSession) {
	defer s.wg.Done()

	ticker := time.NewTicker(w.cfg.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(w.cfg.WriteWait)); err != nil {
				w.log.Debug("ping failed", zap.Error(err))
				return
			}
		}
	}
}

// enqueue hands data to the write pump. A full queue drops the message.
func (w *WebSocket) enqueue(messageType int, data []byte) error {
	s := w.sess.Load()
	if s == nil || !w.connected.Load() {
		w.setError(ErrNotConnected)
		return ErrNotConnected
	}
	select {
	case s.out <- outbound{messageType: messageType, data: data}:
		return nil
	case <-s.ctx.Done():
		return ErrNotConnected
	default:
		// 队列满时丢弃，日志限频
		now := time.Now().UnixNano()
		if last := w.lastDrop.Load(); now-last > int64(time.Second) && w.lastDrop.CompareAndSwap(last, now) {
			w.log.Warn("send queue full, dropping message")
		}
		return ErrSendQueueFull
	}
}

func (w *WebSocket) sendText(data []byte, err error) error {
	if err != nil {
		return verrors.Wrap(verrors.KindCodec, "protocol.send", "encode message", err)
	}
	return w.enqueue(websocket.TextMessage, data)
}

// SendAudio sends a copy of one encoded packet; callers may reuse packet.
// It is dropped while the channel is not open.
func (w *WebSocket) SendAudio(packet []byte) error {
	if !w.channelOpen.Load() {
		return ErrNotConnected
	}
	return w.enqueue(websocket.BinaryMessage, append([]byte(nil), packet...))
}

func (w *WebSocket) SendAbortSpeaking(reason talk.AbortReason) error {
	return w.sendText(encodeAbort(w.SessionID(), reason))
}

func (w *WebSocket) SendWakeWordDetected(text string) error {
	return w.sendText(encodeListen(w.SessionID(), "detect", "", text))
}

func (w *WebSocket) SendStartListening(mode talk.ListeningMode) error {
	return w.sendText(encodeListen(w.SessionID(), "start", mode.String(), ""))
}

func (w *WebSocket) SendStopListening() error {
	return w.sendText(encodeListen(w.SessionID(), "stop", "", ""))
}

func (w *WebSocket) SendIotDescriptors(descriptors []byte) error {
	return w.sendText(encodeIot(w.SessionID(), descriptors, nil))
}

func (w *WebSocket) SendIotStates(states []byte) error {
	return w.sendText(encodeIot(w.SessionID(), nil, states))
}
