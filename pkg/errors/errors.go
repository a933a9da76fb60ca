// Package errors defines the typed error taxonomy shared by the voice client.
//
// Every failure that crosses a package boundary is tagged with a Kind so the
// orchestrator can decide how to react without string matching:
//
//	KindIO        transient device/transport I/O, logged and skipped
//	KindCodec     codec construction (fatal) or per-packet decode (recoverable)
//	KindConfig    bad configuration or missing device, surfaces as the Error state
//	KindNetwork   handshake timeout, unexpected close, silence timeout
//	KindResource  buffer overflow and exhausted capacity
//	KindDomain    invalid state transitions and bad inbound commands
package errors

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindIO       Kind = "io"
	KindCodec    Kind = "codec"
	KindConfig   Kind = "config"
	KindNetwork  Kind = "network"
	KindResource Kind = "resource"
	KindDomain   Kind = "domain"
	KindUnknown  Kind = "unknown"
)

type Error struct {
	Kind    Kind
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Kind, e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Kind, e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Wrap tags err with kind. An error that is already typed keeps its original kind.
func Wrap(kind Kind, op, message string, err error) error {
	if err == nil {
		return nil
	}

	var typed *Error
	if errors.As(err, &typed) {
		return err
	}

	return &Error{
		Kind:    kind,
		Op:      op,
		Message: message,
		Cause:   err,
	}
}

func New(kind Kind, op, message string) error {
	return &Error{
		Kind:    kind,
		Op:      op,
		Message: message,
	}
}

// IsKind reports whether the first typed error in the chain has the given kind.
func IsKind(err error, kind Kind) bool {
	var target *Error
	if errors.As(err, &target) {
		return target.Kind == kind
	}
	return false
}

// KindOf returns the kind of the first typed error in the chain, or KindUnknown.
func KindOf(err error) Kind {
	var target *Error
	if errors.As(err, &target) {
		return target.Kind
	}
	return KindUnknown
}

// Is and As re-export the standard helpers so callers need a single import.
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }
