package xmsg

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedData is matched by every reconstitution failure.
	ErrMalformedData = errors.New("xmsg: malformed message data")
	// ErrUnresolvedHandler is matched when a registered handler id cannot be resolved.
	ErrUnresolvedHandler = errors.New("xmsg: unresolved handler")

	ErrBusClosed                   = errors.New("xmsg: bus is closed")
	ErrQueueFull                   = errors.New("xmsg: dispatch queue is full")
	ErrNilMessage                  = errors.New("xmsg: message must not be nil")
	ErrInvalidKind                 = errors.New("xmsg: message kind must not be empty")
	ErrHandlerPanic                = errors.New("xmsg: handler panic")
	ErrNoResolverConfigured        = errors.New("xmsg: no handler resolver configured")
	ErrObserverPoolShutdownTimeout = errors.New("xmsg: observer pool shutdown timeout")
)

// MalformedDataError names the message data field that was missing or invalid.
type MalformedDataError struct {
	Field  string
	Reason string
}

func (e *MalformedDataError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("xmsg: message data must contain %s", e.Field)
	}
	return fmt.Sprintf("xmsg: message data field %s: %s", e.Field, e.Reason)
}

func (e *MalformedDataError) Is(target error) bool { return target == ErrMalformedData }

// UnresolvedHandlerError reports a resolver failure for a mapped kind.
type UnresolvedHandlerError struct {
	Kind Kind
	ID   HandlerID
	Err  error
}

func (e *UnresolvedHandlerError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("xmsg: handler %q for kind %q could not be resolved", e.ID, e.Kind)
	}
	return fmt.Sprintf("xmsg: handler %q for kind %q could not be resolved: %v", e.ID, e.Kind, e.Err)
}

func (e *UnresolvedHandlerError) Unwrap() error { return e.Err }

func (e *UnresolvedHandlerError) Is(target error) bool { return target == ErrUnresolvedHandler }

// ErrUnknownStore is returned by NewStore for an unregistered store name.
type ErrUnknownStore struct{ name string }

func (e ErrUnknownStore) Error() string { return fmt.Sprintf("xmsg: unknown store: %s", e.name) }
