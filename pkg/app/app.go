// Package app is the session orchestrator. It owns the conversation state
// and drives the device, the codec, the wake service and the protocol from
// a single frame tick.
//
// Only the tick goroutine touches App state. Protocol, wake-service and
// loader goroutines hand their results over with Post; the exported
// control methods (ToggleChatState, AbortSpeaking, Dance, ...) must run on
// the tick as well, so callers on other goroutines wrap them in Post.
package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	evbus "github.com/asaskevich/EventBus"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/realtime-ai/voice-client/pkg/audio"
	"github.com/realtime-ai/voice-client/pkg/codec"
	"github.com/realtime-ai/voice-client/pkg/device"
	"github.com/realtime-ai/voice-client/pkg/display"
	verrors "github.com/realtime-ai/voice-client/pkg/errors"
	"github.com/realtime-ai/voice-client/pkg/iot"
	"github.com/realtime-ai/voice-client/pkg/logger"
	"github.com/realtime-ai/voice-client/pkg/metrics"
	"github.com/realtime-ai/voice-client/pkg/ota"
	"github.com/realtime-ai/voice-client/pkg/protocol"
	"github.com/realtime-ai/voice-client/pkg/talk"
	"github.com/realtime-ai/voice-client/pkg/wake"
)

const (
	DefaultTickInterval     = 30 * time.Millisecond
	DefaultFrameDurationMs  = 60
	DefaultServerSampleRate = 16000

	// clips are played at 16 kHz in 60 ms fragments
	clipSampleRate = 16000
	clipFrameMs    = 60

	// capture is muted this long after a VAD barge-in so the tail of the
	// reply does not leak into the next turn
	vadAbortSilence = 1000 * time.Millisecond

	// barge-in speech held for the next turn in the Free break mode
	maxFreeBuffer = 10 * time.Second

	notificationDuration = 3 * time.Second
	errorLogInterval     = time.Second
)

// User-facing messages.
const (
	MsgConnectFailed    = "connect failed"
	MsgConnectionClosed = "connection closed"
	MsgActivationFailed = "activation failed"
	MsgMicNotFound      = "microphone not found"
	MsgActivationCode   = "activation code received"
)

var (
	ErrActivationFailed = verrors.New(verrors.KindNetwork, "app.activate", "activation failed")
	ErrMissingDevice    = verrors.New(verrors.KindConfig, "app.new", "device is required")
	ErrMissingProtocol  = verrors.New(verrors.KindConfig, "app.new", "protocol is required")
)

// BreakMode selects how the user interrupts a reply.
type BreakMode int

const (
	// BreakNone never interrupts from audio.
	BreakNone BreakMode = iota
	// BreakKeyword interrupts on a wake word.
	BreakKeyword
	// BreakVAD interrupts on voice onset and mutes capture briefly.
	BreakVAD
	// BreakFree interrupts on voice onset and forwards the interrupting
	// speech as the start of the next turn.
	BreakFree
)

var breakModeNames = [...]string{
	BreakNone:    "none",
	BreakKeyword: "keyword",
	BreakVAD:     "vad",
	BreakFree:    "free",
}

func (m BreakMode) String() string {
	if m >= 0 && int(m) < len(breakModeNames) {
		return breakModeNames[m]
	}
	return fmt.Sprintf("break_mode(%d)", int(m))
}

// ParseBreakMode accepts the names none, keyword, vad and free.
func ParseBreakMode(s string) (BreakMode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for m, name := range breakModeNames {
		if s == name {
			return BreakMode(m), nil
		}
	}
	if s == "" {
		return BreakNone, nil
	}
	return BreakNone, fmt.Errorf("unknown break mode %q", s)
}

// Config configures an App.
type Config struct {
	// ServerInputSampleRate is the rate of audio sent upstream.
	ServerInputSampleRate int
	FrameDurationMs       int
	BreakMode             BreakMode
	TickInterval          time.Duration

	// Dances maps a dance name to its clip file.
	Dances map[string]string

	OTAMaxRetries    int
	OTARetryInterval time.Duration

	// ProtocolURL and OTAURL only label spans.
	ProtocolURL string
	OTAURL      string

	Logger *zap.Logger
}

// Deps are the collaborators of an App. Device and Protocol are required.
// The App owns every dependency and releases it when Run returns.
type Deps struct {
	Device   device.Device
	Protocol protocol.Protocol
	// Wake is optional; without it there is no wake word and no barge-in.
	Wake *wake.Service
	// OTA is optional; without it the version check is skipped.
	OTA     ota.Checker
	Display display.Display
	Things  *iot.Manager
	Metrics *metrics.Metrics
	Bus     evbus.Bus

	NewEncoder   func(codec.Config) (codec.Encoder, error)
	NewDecoder   func(codec.Config) (codec.Decoder, error)
	NewResampler func(inRate, outRate int) (audio.Resampler, error)
	LoadClip     func(path string) (*audio.Clip, error)
	Now          func() time.Time
}

// App is the session orchestrator.
type App struct {
	cfg Config
	log *zap.Logger

	talk    *talk.Talk
	dev     device.Device
	proto   protocol.Protocol
	wake    *wake.Service
	ota     ota.Checker
	display display.Display
	things  *iot.Manager
	metrics *metrics.Metrics

	newEncoder   func(codec.Config) (codec.Encoder, error)
	newDecoder   func(codec.Config) (codec.Decoder, error)
	newResampler func(inRate, outRate int) (audio.Resampler, error)
	loadClip     func(path string) (*audio.Clip, error)
	now          func() time.Time

	postMu sync.Mutex
	posted []func()
	queue  []func()

	ctx context.Context

	// worker handshake; nil when Process runs inline
	work        chan struct{}
	workDone    chan struct{}
	workPending bool

	// everything below is owned by the tick
	listeningMode   talk.ListeningMode
	aborted         bool
	voiceDetected   bool
	vadSilenceUntil time.Time
	opening         bool

	encoder         codec.Encoder
	decoder         codec.Decoder
	decodeRate      int
	inputResampler  audio.Resampler
	outputResampler audio.Resampler
	clipResampler   audio.Resampler
	inputFrame      []int16
	freeBuffer      *audio.ScratchBuffer[int16]
	vadBuffer       *audio.ScratchBuffer[int16]

	clipReader   audio.ClipReader
	clipReadTime int
	danceCancel  context.CancelFunc
	danceTimer   *time.Timer
	danceSpan    trace.Span
	turnSpan     trace.Span

	lastErrLog time.Time
}

// New wires an App. Nothing is started until Run.
func New(cfg Config, deps Deps) (*App, error) {
	if deps.Device == nil {
		return nil, ErrMissingDevice
	}
	if deps.Protocol == nil {
		return nil, ErrMissingProtocol
	}
	if cfg.ServerInputSampleRate <= 0 {
		cfg.ServerInputSampleRate = DefaultServerSampleRate
	}
	if cfg.FrameDurationMs <= 0 {
		cfg.FrameDurationMs = DefaultFrameDurationMs
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.OTAMaxRetries <= 0 {
		cfg.OTAMaxRetries = ota.DefaultMaxRetries
	}
	if cfg.OTARetryInterval <= 0 {
		cfg.OTARetryInterval = ota.DefaultRetryInterval
	}

	a := &App{
		cfg:          cfg,
		log:          logger.Or(cfg.Logger, "app"),
		talk:         talk.New(deps.Bus),
		dev:          deps.Device,
		proto:        deps.Protocol,
		wake:         deps.Wake,
		ota:          deps.OTA,
		display:      deps.Display,
		things:       deps.Things,
		metrics:      deps.Metrics,
		newEncoder:   deps.NewEncoder,
		newDecoder:   deps.NewDecoder,
		newResampler: deps.NewResampler,
		loadClip:     deps.LoadClip,
		now:          deps.Now,
		ctx:          context.Background(),
		freeBuffer:   audio.NewScratchBuffer[int16](0),
		vadBuffer:    audio.NewScratchBuffer[int16](0),
	}
	if a.display == nil {
		a.display = display.Nop{}
	}
	if a.things == nil {
		a.things = iot.NewManager(cfg.Logger)
	}
	if a.metrics == nil {
		a.metrics = metrics.Nop()
	}
	if a.newEncoder == nil {
		a.newEncoder = func(c codec.Config) (codec.Encoder, error) { return codec.NewOpusEncoder(c) }
	}
	if a.newDecoder == nil {
		a.newDecoder = func(c codec.Config) (codec.Decoder, error) { return codec.NewOpusDecoder(c) }
	}
	if a.newResampler == nil {
		a.newResampler = audio.NewResampler
	}
	if a.loadClip == nil {
		a.loadClip = audio.LoadClip
	}
	if a.now == nil {
		a.now = time.Now
	}

	a.talk.OnStateUpdate(a.onStateUpdate)
	return a, nil
}

// Talk returns the conversation state. Read it from any goroutine; only
// the tick writes it.
func (a *App) Talk() *talk.Talk {
	return a.talk
}

// Post queues fn to run on the next tick. It never blocks, so protocol and
// wake callbacks may call it while the tick waits on them.
func (a *App) Post(fn func()) {
	a.postMu.Lock()
	a.posted = append(a.posted, fn)
	a.postMu.Unlock()
}

// drainPosted runs everything posted before the call. Work posted while
// draining waits for the next tick.
func (a *App) drainPosted() {
	a.postMu.Lock()
	a.queue, a.posted = a.posted, a.queue[:0]
	a.postMu.Unlock()

	for i, fn := range a.queue {
		fn()
		a.queue[i] = nil
	}
}

func (a *App) notify(msg string) {
	a.display.ShowNotification(msg, notificationDuration)
}

// logError rate-limits errors from the audio path.
func (a *App) logError(msg string, err error) {
	now := a.now()
	if now.Sub(a.lastErrLog) < errorLogInterval {
		return
	}
	a.lastErrLog = now
	a.log.Warn(msg, zap.Error(err))
}
