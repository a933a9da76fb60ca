package display

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	evbus "github.com/asaskevich/EventBus"
	"go.uber.org/zap"

	"github.com/realtime-ai/voice-client/pkg/logger"
	"github.com/realtime-ai/voice-client/pkg/talk"
)

const DefaultNotificationDuration = 3 * time.Second

// Console prints talk changes and notifications as text lines.
type Console struct {
	w   io.Writer
	bus evbus.Bus
	log *zap.Logger

	mu           sync.Mutex
	notification string
	notifyLeft   time.Duration
	started      bool

	onState   func(talk.State)
	onEmotion func(string)
	onChat    func(string)
	onInfo    func(string)
}

var _ Display = (*Console)(nil)

// NewConsole writes to w whatever is published on bus.
func NewConsole(w io.Writer, bus evbus.Bus, log *zap.Logger) *Console {
	c := &Console{w: w, bus: bus, log: logger.Or(log, "display")}
	c.onState = func(s talk.State) { c.printf("state", "%s", s) }
	c.onEmotion = func(e string) { c.printf("emotion", "%s", e) }
	c.onChat = func(msg string) {
		if msg != "" {
			c.printf("chat", "%s", msg)
		}
	}
	c.onInfo = func(msg string) {
		if msg != "" {
			c.printf("info", "%s", msg)
		}
	}
	return c
}

// Start subscribes to the talk topics.
func (c *Console) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return nil
	}

	subs := []struct {
		topic string
		fn    any
	}{
		{talk.TopicState, c.onState},
		{talk.TopicEmotion, c.onEmotion},
		{talk.TopicChat, c.onChat},
		{talk.TopicInfo, c.onInfo},
	}
	for i, s := range subs {
		// transactional keeps each topic in publish order
		if err := c.bus.SubscribeAsync(s.topic, s.fn, true); err != nil {
			for _, prev := range subs[:i] {
				_ = c.bus.Unsubscribe(prev.topic, prev.fn)
			}
			return fmt.Errorf("subscribe %s: %w", s.topic, err)
		}
	}
	c.started = true
	return ctx.Err()
}

// Update expires the current notification.
func (c *Console) Update(dt time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.notification == "" {
		return
	}
	c.notifyLeft -= dt
	if c.notifyLeft <= 0 {
		c.notification = ""
		c.notifyLeft = 0
	}
}

// ShowNotification prints msg and keeps it current for d.
func (c *Console) ShowNotification(msg string, d time.Duration) {
	if d <= 0 {
		d = DefaultNotificationDuration
	}
	c.mu.Lock()
	c.notification = msg
	c.notifyLeft = d
	c.mu.Unlock()
	c.printf("notice", "%s", msg)
}

// Notification returns the notification still on screen, or "".
func (c *Console) Notification() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.notification
}

// Close unsubscribes and waits for pending prints.
func (c *Console) Close() error {
	c.mu.Lock()
	started := c.started
	c.started = false
	c.mu.Unlock()
	if !started {
		return nil
	}

	_ = c.bus.Unsubscribe(talk.TopicState, c.onState)
	_ = c.bus.Unsubscribe(talk.TopicEmotion, c.onEmotion)
	_ = c.bus.Unsubscribe(talk.TopicChat, c.onChat)
	_ = c.bus.Unsubscribe(talk.TopicInfo, c.onInfo)
	c.bus.WaitAsync()
	return nil
}

func (c *Console) printf(kind, format string, args ...any) {
	line := fmt.Sprintf("%s %-7s "+format+"\n", append([]any{time.Now().Format("15:04:05"), kind}, args...)...)
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := io.WriteString(c.w, line); err != nil {
		c.log.Debug("console write", zap.Error(err))
	}
}
