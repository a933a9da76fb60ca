// Package iot exposes local capabilities ("things") to the server: each
// thing publishes a descriptor of its properties and methods, reports its
// property values as state, and accepts method invocations.
package iot

import (
	"fmt"
	"math"
	"sync"
)

// ValueType is the wire type of a property or parameter.
type ValueType string

const (
	TypeBoolean ValueType = "boolean"
	TypeNumber  ValueType = "number"
	TypeString  ValueType = "string"
)

// Property is a readable value of a thing.
type Property struct {
	Name        string
	Description string
	Type        ValueType
	Get         func() any
}

// Parameter describes one method argument.
type Parameter struct {
	Name        string
	Description string
	Type        ValueType
	Required    bool
}

// Method is an invocable action of a thing.
type Method struct {
	Name        string
	Description string
	Parameters  []Parameter
	Invoke      func(Params) error
}

// Params holds decoded method arguments.
type Params map[string]any

// String returns the named string argument.
func (p Params) String(name string) (string, error) {
	v, ok := p[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingParameter, name)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s is %T", ErrParameterType, name, v)
	}
	return s, nil
}

// Int returns the named numeric argument rounded to an int.
func (p Params) Int(name string) (int, error) {
	v, ok := p[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingParameter, name)
	}
	switch n := v.(type) {
	case float64:
		return int(math.Round(n)), nil
	case int:
		return n, nil
	case int64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("%w: %s is %T", ErrParameterType, name, v)
	}
}

// Bool returns the named boolean argument.
func (p Params) Bool(name string) (bool, error) {
	v, ok := p[name]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrMissingParameter, name)
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %s is %T", ErrParameterType, name, v)
	}
	return b, nil
}

// Thing is a named set of properties and methods.
type Thing struct {
	Name        string
	Description string

	mu         sync.RWMutex
	properties []Property
	methods    []Method
}

func NewThing(name, description string) *Thing {
	return &Thing{Name: name, Description: description}
}

// AddProperty registers a property; a property with the same name is replaced.
func (t *Thing) AddProperty(p Property) *Thing {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.properties {
		if t.properties[i].Name == p.Name {
			t.properties[i] = p
			return t
		}
	}
	t.properties = append(t.properties, p)
	return t
}

// AddMethod registers a method; a method with the same name is replaced.
func (t *Thing) AddMethod(m Method) *Thing {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.methods {
		if t.methods[i].Name == m.Name {
			t.methods[i] = m
			return t
		}
	}
	t.methods = append(t.methods, m)
	return t
}

type typeDescriptor struct {
	Description string    `json:"description"`
	Type        ValueType `json:"type"`
}

type methodDescriptor struct {
	Description string                    `json:"description"`
	Parameters  map[string]typeDescriptor `json:"parameters"`
}

type thingDescriptor struct {
	Name        string                      `json:"name"`
	Description string                      `json:"description"`
	Properties  map[string]typeDescriptor   `json:"properties"`
	Methods     map[string]methodDescriptor `json:"methods"`
}

type thingState struct {
	Name  string         `json:"name"`
	State map[string]any `json:"state"`
}

func (t *Thing) descriptor() thingDescriptor {
	t.mu.RLock()
	defer t.mu.RUnlock()

	d := thingDescriptor{
		Name:        t.Name,
		Description: t.Description,
		Properties:  make(map[string]typeDescriptor, len(t.properties)),
		Methods:     make(map[string]methodDescriptor, len(t.methods)),
	}
	for _, p := range t.properties {
		d.Properties[p.Name] = typeDescriptor{Description: p.Description, Type: p.Type}
	}
	for _, m := range t.methods {
		params := make(map[string]typeDescriptor, len(m.Parameters))
		for _, p := range m.Parameters {
			params[p.Name] = typeDescriptor{Description: p.Description, Type: p.Type}
		}
		d.Methods[m.Name] = methodDescriptor{Description: m.Description, Parameters: params}
	}
	return d
}

func (t *Thing) state() thingState {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s := thingState{Name: t.Name, State: make(map[string]any, len(t.properties))}
	for _, p := range t.properties {
		s.State[p.Name] = p.Get()
	}
	return s
}

// Invoke calls method with params after checking required arguments and
// their types.
func (t *Thing) Invoke(method string, params Params) error {
	t.mu.RLock()
	var m *Method
	for i := range t.methods {
		if t.methods[i].Name == method {
			m = &t.methods[i]
			break
		}
	}
	t.mu.RUnlock()
	if m == nil {
		return fmt.Errorf("%w: %s.%s", ErrMethodNotFound, t.Name, method)
	}

	for _, p := range m.Parameters {
		v, ok := params[p.Name]
		if !ok {
			if p.Required {
				return fmt.Errorf("%w: %s", ErrMissingParameter, p.Name)
			}
			continue
		}
		if !matchType(p.Type, v) {
			return fmt.Errorf("%w: %s wants %s, got %T", ErrParameterType, p.Name, p.Type, v)
		}
	}
	return m.Invoke(params)
}

func matchType(t ValueType, v any) bool {
	switch t {
	case TypeBoolean:
		_, ok := v.(bool)
		return ok
	case TypeNumber:
		switch v.(type) {
		case float64, int, int64:
			return true
		}
		return false
	case TypeString:
		_, ok := v.(string)
		return ok
	}
	return true
}
