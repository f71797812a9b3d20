package xmsg

import (
	"context"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

// BusBuilder constructs Bus instances (Builder pattern).
type BusBuilder struct {
	router   *Router
	resolver HandlerResolver
	routes   map[Kind]HandlerID

	middlewares []Middleware
	observers   []Observer
	logger      *xlog.Logger
	clock       xclock.Clock
	maxPending  int

	poolWorkers int
	poolBuffer  int
}

// NewBusBuilder returns a new builder with an unbounded queue and inline observers.
func NewBusBuilder() *BusBuilder {
	return &BusBuilder{routes: make(map[Kind]HandlerID)}
}

// WithRouter uses a ready Router; WithResolver, WithRoute and WithMiddleware
// then apply to it.
func (bb *BusBuilder) WithRouter(r *Router) *BusBuilder {
	bb.router = r
	return bb
}

// WithResolver sets the HandlerResolver for a router created by Build.
func (bb *BusBuilder) WithResolver(r HandlerResolver) *BusBuilder {
	bb.resolver = r
	return bb
}

// WithRoute registers kind → id at build time.
func (bb *BusBuilder) WithRoute(kind Kind, id HandlerID) *BusBuilder {
	bb.routes[kind] = id
	return bb
}

func (bb *BusBuilder) WithMiddleware(mw ...Middleware) *BusBuilder {
	if len(mw) == 0 {
		return bb
	}
	bb.middlewares = append(bb.middlewares, mw...)
	return bb
}

func (bb *BusBuilder) WithObserver(obs ...Observer) *BusBuilder {
	for _, o := range obs {
		if o != nil {
			bb.observers = append(bb.observers, o)
		}
	}
	return bb
}

// WithObserverPool delivers observer events asynchronously.
func (bb *BusBuilder) WithObserverPool(workers, bufferSize int) *BusBuilder {
	bb.poolWorkers = workers
	bb.poolBuffer = bufferSize
	return bb
}

func (bb *BusBuilder) WithLogger(l *xlog.Logger) *BusBuilder {
	bb.logger = l
	return bb
}

func (bb *BusBuilder) WithClock(c xclock.Clock) *BusBuilder {
	bb.clock = c
	return bb
}

// WithMaxPending bounds the queue; Dispatch rejects with ErrQueueFull beyond n.
// Zero means unbounded.
func (bb *BusBuilder) WithMaxPending(n int) *BusBuilder {
	if n >= 0 {
		bb.maxPending = n
	}
	return bb
}

func (bb *BusBuilder) Build() (*Bus, error) {
	r := bb.router
	if r == nil {
		if bb.resolver == nil {
			return nil, ErrNoResolverConfigured
		}
		r = NewRouter(bb.resolver)
	} else if bb.resolver != nil {
		r.SetResolver(bb.resolver)
	}
	for kind, id := range bb.routes {
		if err := r.Register(kind, id); err != nil {
			return nil, err
		}
	}
	if len(bb.middlewares) > 0 {
		r.Use(bb.middlewares...)
	}

	clk := bb.clock
	if clk == nil {
		clk = xclock.Default()
	}
	lg := bb.logger
	if lg == nil {
		lg = xlog.Default()
	}

	b := &Bus{
		router:     r,
		clock:      clk,
		logger:     lg,
		maxPending: bb.maxPending,
		metrics:    &busMetrics{},
	}
	if bb.poolWorkers > 0 || bb.poolBuffer > 0 {
		b.observerPool = NewObserverPool(context.Background(), bb.poolWorkers, bb.poolBuffer)
	}

	// Attach logging observer first unless one was supplied.
	hasLoggingObserver := false
	for _, o := range bb.observers {
		if _, ok := o.(LoggingObserver); ok {
			hasLoggingObserver = true
			break
		}
	}
	if !hasLoggingObserver {
		b.AddObserver(LoggingObserver{Logger: lg})
	}
	for _, o := range bb.observers {
		b.AddObserver(o)
	}

	return b, nil
}

// New constructs a Bus via Builder and returns a close func for convenience.
func New(init func(b *BusBuilder)) (*Bus, func() error, error) {
	b := NewBusBuilder()
	if init != nil {
		init(b)
	}
	bus, err := b.Build()
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() error { return bus.Close(context.Background()) }
	return bus, closeFn, nil
}
