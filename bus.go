package xmsg

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

var _ HealthChecker = (*Bus)(nil)

type drainState uint8

const (
	stateIdle drainState = iota
	stateDraining
)

// Bus queues messages and feeds them one at a time, in FIFO order, to its Router.
// At most one drain loop runs per Bus: a Dispatch that arrives while a loop is
// active (re-entrant from a handler, or from another goroutine) only enqueues.
type Bus struct {
	router     *Router
	clock      xclock.Clock
	logger     *xlog.Logger
	maxPending int

	mu    sync.Mutex
	queue []*Message
	state drainState

	observerPool *ObserverPool
	observersMu  sync.RWMutex
	observers    []Observer

	metrics   *busMetrics
	closed    atomic.Bool
	closeOnce sync.Once
}

// busMetrics uses lock-free atomics.
type busMetrics struct {
	dispatched atomic.Uint64
	routed     atomic.Uint64
	unrouted   atomic.Uint64
	failed     atomic.Uint64
	rejected   atomic.Uint64
	routeNs    atomic.Int64
}

// Router returns the router the bus drains into, for registration.
func (b *Bus) Router() *Router { return b.router }

// Dispatch appends msg to the queue and, unless a drain loop is already
// active, drains the queue on the calling goroutine before returning.
//
// If routing fails the error is returned to the caller that owns the drain
// loop; messages behind the failed one stay queued and are routed by the
// next Dispatch or Flush.
func (b *Bus) Dispatch(ctx context.Context, msg *Message) error {
	if b.closed.Load() {
		return ErrBusClosed
	}
	if msg == nil {
		return ErrNilMessage
	}
	if msg.Kind() == "" {
		return ErrInvalidKind
	}

	b.mu.Lock()
	if b.maxPending > 0 && len(b.queue) >= b.maxPending {
		b.mu.Unlock()
		b.metrics.rejected.Add(1)
		return ErrQueueFull
	}
	b.queue = append(b.queue, msg)
	pending := len(b.queue)
	active := b.state == stateDraining
	if !active {
		b.state = stateDraining
	}
	b.mu.Unlock()

	b.metrics.dispatched.Add(1)
	b.notifyAsync(Event{Type: Enqueued, Kind: msg.Kind(), MessageID: msg.ID(), Pending: pending})

	if active {
		return nil
	}
	return b.drain(ctx)
}

// Flush drains messages left queued by an earlier failure. It is a no-op
// when the queue is empty or a drain loop is already active.
func (b *Bus) Flush(ctx context.Context) error {
	if b.closed.Load() {
		return ErrBusClosed
	}
	b.mu.Lock()
	if b.state == stateDraining || len(b.queue) == 0 {
		b.mu.Unlock()
		return nil
	}
	b.state = stateDraining
	b.mu.Unlock()
	return b.drain(ctx)
}

// drain runs the loop. The caller must have moved the state to draining.
func (b *Bus) drain(ctx context.Context) error {
	released := false
	defer func() {
		if !released {
			b.mu.Lock()
			b.state = stateIdle
			b.mu.Unlock()
		}
	}()

	hctx := InjectAll(ctx, b, b.logger, b.clock)
	for {
		b.mu.Lock()
		if len(b.queue) == 0 {
			b.state = stateIdle
			released = true
			b.mu.Unlock()
			return nil
		}
		msg := b.queue[0]
		b.queue[0] = nil
		b.queue = b.queue[1:]
		b.mu.Unlock()

		if err := b.routeOne(hctx, msg); err != nil {
			return err
		}
	}
}

func (b *Bus) routeOne(ctx context.Context, msg *Message) error {
	start := b.clock.Now()
	b.notifyAsync(Event{Type: RouteStart, Kind: msg.Kind(), MessageID: msg.ID()})

	id, mapped, err := b.router.route(ctx, msg)
	if !mapped && err == nil {
		b.metrics.unrouted.Add(1)
		b.notifyAsync(Event{Type: Unrouted, Kind: msg.Kind(), MessageID: msg.ID()})
		return nil
	}

	duration := b.clock.Since(start)
	b.recordRouteTime(duration.Nanoseconds())

	if err != nil {
		b.metrics.failed.Add(1)
		b.notifyAsync(Event{
			Type:      Error,
			Kind:      msg.Kind(),
			MessageID: msg.ID(),
			HandlerID: id,
			Duration:  duration,
			Err:       err,
		})
		return err
	}

	b.metrics.routed.Add(1)
	b.notifyAsync(Event{
		Type:      RouteDone,
		Kind:      msg.Kind(),
		MessageID: msg.ID(),
		HandlerID: id,
		Duration:  duration,
	})
	return nil
}

// Pending returns the number of queued, not yet routed messages.
func (b *Bus) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Discard removes and returns every queued message. An active drain loop
// stops after the message it is currently routing.
func (b *Bus) Discard() []*Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.queue
	b.queue = nil
	return out
}

// GetMetrics returns current bus metrics.
func (b *Bus) GetMetrics() Metrics {
	var dropped uint64
	if b.observerPool != nil {
		dropped = b.observerPool.Stats().Dropped
	}
	return Metrics{
		Dispatched:     b.metrics.dispatched.Load(),
		Routed:         b.metrics.routed.Load(),
		Unrouted:       b.metrics.unrouted.Load(),
		Failed:         b.metrics.failed.Load(),
		Rejected:       b.metrics.rejected.Load(),
		Pending:        b.Pending(),
		EventsDropped:  dropped,
		AvgRouteTimeMs: float64(b.metrics.routeNs.Load()) / 1e6,
	}
}

// Health reports degraded when more than 5% of routed messages failed or the
// backlog is at its bound.
func (b *Bus) Health(ctx context.Context) HealthStatus {
	now := b.clock.Now()
	if b.closed.Load() {
		return HealthStatus{
			Status:    "unhealthy",
			Timestamp: now,
			Message:   "bus is closed",
		}
	}

	metrics := b.GetMetrics()
	status := "healthy"
	msg := ""

	attempts := metrics.Routed + metrics.Failed
	if metrics.Failed > 0 && attempts > 0 {
		if float64(metrics.Failed)/float64(attempts) > 0.05 {
			status = "degraded"
			msg = "handler failure rate above 5%"
		}
	}
	if b.maxPending > 0 && metrics.Pending >= b.maxPending {
		status = "degraded"
		msg = "dispatch queue is full"
	}

	return HealthStatus{
		Status:    status,
		Metrics:   metrics,
		Timestamp: now,
		Message:   msg,
	}
}

// Close makes further dispatches fail with ErrBusClosed and stops the
// observer pool. Queued messages are left in place; see Discard.
func (b *Bus) Close(ctx context.Context) error {
	var closeErr error

	b.closeOnce.Do(func() {
		b.closed.Store(true)

		if b.observerPool != nil {
			timeout := 5 * time.Second
			if dl, ok := ctx.Deadline(); ok {
				timeout = time.Until(dl)
			}
			if err := b.observerPool.Close(timeout); err != nil {
				b.logger.Warn().Err(err).Msg("xmsg: observer pool shutdown timeout")
				closeErr = err
			}
		}
	})

	return closeErr
}

// AddObserver registers an observer (thread-safe).
func (b *Bus) AddObserver(obs Observer) {
	if obs == nil {
		return
	}
	b.observersMu.Lock()
	b.observers = append(b.observers, obs)
	b.observersMu.Unlock()
}

// RemoveObserver removes an observer.
func (b *Bus) RemoveObserver(obs Observer) {
	if obs == nil {
		return
	}
	b.observersMu.Lock()
	defer b.observersMu.Unlock()

	for i, o := range b.observers {
		if o == obs {
			b.observers = append(b.observers[:i], b.observers[i+1:]...)
			break
		}
	}
}

// notifyAsync hands e to the observer pool when one is configured, and
// calls observers inline otherwise.
func (b *Bus) notifyAsync(e Event) {
	b.observersMu.RLock()
	if len(b.observers) == 0 {
		b.observersMu.RUnlock()
		return
	}
	observers := make([]Observer, len(b.observers))
	copy(observers, b.observers)
	b.observersMu.RUnlock()

	if b.observerPool != nil {
		b.observerPool.Notify(e, observers)
		return
	}
	for _, o := range observers {
		o.OnEvent(e)
	}
}

// recordRouteTime keeps an exponential moving average of route durations.
func (b *Bus) recordRouteTime(ns int64) {
	const alpha = 0.2
	current := b.metrics.routeNs.Load()
	if current == 0 {
		b.metrics.routeNs.Store(ns)
		return
	}
	b.metrics.routeNs.Store(int64(float64(ns)*alpha + float64(current)*(1-alpha)))
}
