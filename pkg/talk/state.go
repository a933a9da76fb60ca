package talk

import (
	"fmt"
	"strings"
)

// State is the conversation state.
type State int

const (
	StateUnknown State = iota
	StateStarting
	StateIdle
	StateConnecting
	StateListening
	StateSpeaking
	StateActivating
	StateError
	StateDancing
)

var stateNames = [...]string{
	StateUnknown:    "unknown",
	StateStarting:   "starting",
	StateIdle:       "idle",
	StateConnecting: "connecting",
	StateListening:  "listening",
	StateSpeaking:   "speaking",
	StateActivating: "activating",
	StateError:      "error",
	StateDancing:    "dancing",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ListeningMode decides who ends a listening turn.
type ListeningMode int

const (
	// AutoStop lets the server end the turn on its own voice detection.
	AutoStop ListeningMode = iota
	// ManualStop ends the turn only when the client sends listen stop.
	ManualStop
)

// String returns the wire value.
func (m ListeningMode) String() string {
	if m == ManualStop {
		return "manual"
	}
	return "auto"
}

// ParseListeningMode accepts the wire values "auto" and "manual".
func ParseListeningMode(s string) (ListeningMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return AutoStop, nil
	case "manual":
		return ManualStop, nil
	default:
		return AutoStop, fmt.Errorf("unknown listening mode %q", s)
	}
}

// AbortReason is sent with an abort message.
type AbortReason int

const (
	AbortNone AbortReason = iota
	AbortWakeWordDetected
)

// String returns the wire value; AbortNone has none.
func (r AbortReason) String() string {
	if r == AbortWakeWordDetected {
		return "wake_word_detected"
	}
	return ""
}
