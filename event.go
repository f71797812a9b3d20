package xmsg

import (
	"time"
)

// EventType enumerates bus lifecycle events for the Observer pattern.
type EventType string

const (
	// Enqueued fires when Dispatch appends a message to the queue.
	Enqueued   EventType = "enqueued"
	RouteStart EventType = "route_start"
	RouteDone  EventType = "route_done"
	// Unrouted fires when a message's kind has no registered handler.
	Unrouted EventType = "unrouted"
	Error    EventType = "error"
)

// Event carries telemetry for observers.
type Event struct {
	Type      EventType
	Kind      Kind
	MessageID string
	HandlerID HandlerID
	Pending   int
	Duration  time.Duration
	Err       error

	// Internal: attached for async dispatch
	observers []Observer
}
