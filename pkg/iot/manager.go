package iot

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/realtime-ai/voice-client/pkg/logger"
)

// 状态比对依赖稳定的键顺序
var stdJSON = sonic.ConfigStd

// Command is one inbound invocation.
type Command struct {
	Name       string `json:"name"`
	Method     string `json:"method"`
	Parameters Params `json:"parameters,omitempty"`
}

// Manager owns the registered things and tracks the last reported states.
type Manager struct {
	log *zap.Logger

	mu         sync.Mutex
	things     []*Thing
	lastStates map[string]string
}

func NewManager(log *zap.Logger) *Manager {
	return &Manager{
		log:        logger.Or(log, "iot"),
		lastStates: make(map[string]string),
	}
}

// AddThing registers t. Things are reported in registration order.
func (m *Manager) AddThing(t *Thing) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.things = append(m.things, t)
}

// Thing returns the thing called name, or nil.
func (m *Manager) Thing(name string) *Thing {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.find(name)
}

func (m *Manager) find(name string) *Thing {
	for _, t := range m.things {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// DescriptorsJSON returns the descriptors of every thing as a JSON array.
func (m *Manager) DescriptorsJSON() ([]byte, error) {
	m.mu.Lock()
	things := append([]*Thing(nil), m.things...)
	m.mu.Unlock()

	descriptors := make([]thingDescriptor, 0, len(things))
	for _, t := range things {
		descriptors = append(descriptors, t.descriptor())
	}
	return stdJSON.Marshal(descriptors)
}

// StatesJSON returns the states of every thing as a JSON array. With delta
// set only things whose state changed since the last delta call are
// included, and changed reports whether there were any. A full call resets
// the tracking, so the next delta reports everything.
func (m *Manager) StatesJSON(delta bool) (states []byte, changed bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !delta {
		clear(m.lastStates)
	}

	out := make([]json.RawMessage, 0, len(m.things))
	for _, t := range m.things {
		raw, err := stdJSON.Marshal(t.state())
		if err != nil {
			return nil, false, fmt.Errorf("marshal %s state: %w", t.Name, err)
		}
		if delta {
			if last, ok := m.lastStates[t.Name]; ok && last == string(raw) {
				continue
			}
			changed = true
			m.lastStates[t.Name] = string(raw)
		}
		out = append(out, raw)
	}

	states, err = stdJSON.Marshal(out)
	return states, changed, err
}

// Invoke decodes one command and calls the named thing's method.
func (m *Manager) Invoke(command []byte) error {
	var cmd Command
	if err := sonic.Unmarshal(command, &cmd); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	if cmd.Name == "" {
		return fmt.Errorf("%w: command must contain a name", ErrInvalidCommand)
	}

	m.mu.Lock()
	t := m.find(cmd.Name)
	m.mu.Unlock()
	if t == nil {
		return fmt.Errorf("%w: %s", ErrThingNotFound, cmd.Name)
	}

	m.log.Info("invoke", zap.String("thing", cmd.Name), zap.String("method", cmd.Method))
	if err := t.Invoke(cmd.Method, cmd.Parameters); err != nil {
		m.log.Warn("invoke failed", zap.String("thing", cmd.Name), zap.Error(err))
		return err
	}
	return nil
}
