// Package talk holds the conversation state shown to the user.
//
// Talk has a single writer, the frame tick. Observers registered with the
// On* methods run synchronously on that goroutine, in registration order,
// exactly once per change. Every change is also published on an EventBus
// so consumers on other goroutines, such as a display, can subscribe
// asynchronously.
package talk

import (
	"sync"

	evbus "github.com/asaskevich/EventBus"
)

// EventBus topics.
const (
	TopicState   = "talk:state"
	TopicEmotion = "talk:emotion"
	TopicChat    = "talk:chat"
	TopicInfo    = "talk:info"
)

const (
	EmotionNeutral = "neutral"
	EmotionHappy   = "happy"
	EmotionSleep   = "sleep"
)

type Talk struct {
	bus evbus.Bus

	mu      sync.RWMutex
	state   State
	emotion string
	chat    string
	info    string

	onState   []func(State)
	onEmotion []func(string)
	onChat    []func(string)
	onInfo    []func(string)
}

// New creates a Talk in StateUnknown with the sleep emotion. A nil bus
// gets a private one.
func New(bus evbus.Bus) *Talk {
	if bus == nil {
		bus = evbus.New()
	}
	return &Talk{bus: bus, emotion: EmotionSleep}
}

// Bus returns the bus changes are published on.
func (t *Talk) Bus() evbus.Bus {
	return t.bus
}

func (t *Talk) OnStateUpdate(fn func(State))    { t.onState = append(t.onState, fn) }
func (t *Talk) OnEmotionUpdate(fn func(string)) { t.onEmotion = append(t.onEmotion, fn) }
func (t *Talk) OnChatUpdate(fn func(string))    { t.onChat = append(t.onChat, fn) }
func (t *Talk) OnInfoUpdate(fn func(string))    { t.onInfo = append(t.onInfo, fn) }

func (t *Talk) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// SetState changes the state. Entering Listening shows the neutral emotion,
// Dancing the happy one, and anything but Speaking goes back to sleep. The
// info line is cleared. Observers see the emotion and info changes first,
// then the state change.
func (t *Talk) SetState(s State) {
	t.mu.Lock()
	if t.state == s {
		t.mu.Unlock()
		return
	}
	t.state = s
	t.mu.Unlock()

	switch s {
	case StateListening:
		t.SetEmotion(EmotionNeutral)
	case StateDancing:
		t.SetEmotion(EmotionHappy)
	case StateSpeaking:
	default:
		t.SetEmotion(EmotionSleep)
	}
	t.SetInfo("")

	for _, fn := range t.onState {
		fn(s)
	}
	t.bus.Publish(TopicState, s)
}

// IsReady reports whether the conversation can accept user actions.
func (t *Talk) IsReady() bool {
	switch t.State() {
	case StateIdle, StateConnecting, StateListening, StateSpeaking, StateDancing:
		return true
	}
	return false
}

func (t *Talk) Emotion() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.emotion
}

func (t *Talk) SetEmotion(emotion string) {
	if !t.swap(&t.emotion, emotion) {
		return
	}
	for _, fn := range t.onEmotion {
		fn(emotion)
	}
	t.bus.Publish(TopicEmotion, emotion)
}

func (t *Talk) Chat() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.chat
}

func (t *Talk) SetChat(chat string) {
	if !t.swap(&t.chat, chat) {
		return
	}
	for _, fn := range t.onChat {
		fn(chat)
	}
	t.bus.Publish(TopicChat, chat)
}

func (t *Talk) Info() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.info
}

func (t *Talk) SetInfo(info string) {
	if !t.swap(&t.info, info) {
		return
	}
	for _, fn := range t.onInfo {
		fn(info)
	}
	t.bus.Publish(TopicInfo, info)
}

// swap stores v in *field and reports whether it changed.
func (t *Talk) swap(field *string, v string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if *field == v {
		return false
	}
	*field = v
	return true
}
