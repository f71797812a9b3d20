package xmsg

import (
	"context"
)

// HandlerID names a handler resolvable by a HandlerResolver.
type HandlerID string

// Handler processes messages of one kind. A returned error propagates
// unchanged to the Dispatch caller.
type Handler interface {
	Handle(ctx context.Context, msg *Message) error
}

// HandlerFunc is an Adapter that lets a plain function satisfy Handler.
type HandlerFunc func(ctx context.Context, msg *Message) error

func (f HandlerFunc) Handle(ctx context.Context, msg *Message) error { return f(ctx, msg) }

// HandlerResolver turns a handler id into a live handler. It is consulted on
// every routed message.
type HandlerResolver interface {
	Resolve(id HandlerID) (Handler, error)
}

// Middleware composes processing concerns around a resolved Handler.
type Middleware func(next Handler) Handler

// MessageRouter is what the Bus drains into.
type MessageRouter interface {
	Route(ctx context.Context, msg *Message) error
}

// Observer receives bus lifecycle events. Implementations should be non-blocking.
type Observer interface {
	OnEvent(e Event)
}

// Store persists and reloads messages across process lifetimes. It is a seam
// for storage collaborators; the bus itself never persists.
type Store interface {
	// Append stores msgs in order.
	Append(ctx context.Context, msgs ...*Message) error
	// Load reconstitutes stored messages in append order and calls fn for each.
	// A non-nil error from fn stops the iteration and is returned.
	Load(ctx context.Context, fn func(*Message) error) error
	// Close releases resources.
	Close(ctx context.Context) error
}

// Codec is the Strategy for encoding envelopes in stores.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// HealthChecker provides health status for production monitoring.
type HealthChecker interface {
	Health(ctx context.Context) HealthStatus
}

// API represents the complete bus surface.
type API interface {
	Dispatch(ctx context.Context, msg *Message) error
	Flush(ctx context.Context) error
	Pending() int
	Discard() []*Message
	Router() *Router
	Close(ctx context.Context) error
	GetMetrics() Metrics
	Health(ctx context.Context) HealthStatus
	AddObserver(obs Observer)
	RemoveObserver(obs Observer)
}

var _ API = (*Bus)(nil)
var _ MessageRouter = (*Router)(nil)
