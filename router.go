package xmsg

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// Router maps message kinds to handler ids and invokes the resolved handler.
// The table is safe to read while registration happens on another goroutine.
type Router struct {
	resolver HandlerResolver

	mu          sync.RWMutex
	routes      map[Kind]HandlerID
	middlewares []Middleware
}

// NewRouter returns a Router resolving handlers through resolver.
func NewRouter(resolver HandlerResolver, mws ...Middleware) *Router {
	return &Router{
		resolver:    resolver,
		routes:      make(map[Kind]HandlerID),
		middlewares: mws,
	}
}

// Register maps kind to handler id. A later registration for the same kind wins.
func (r *Router) Register(kind Kind, id HandlerID) error {
	if kind == "" {
		return ErrInvalidKind
	}
	if id == "" {
		return errors.New("xmsg: handler id must not be empty")
	}
	r.mu.Lock()
	r.routes[kind] = id
	r.mu.Unlock()
	return nil
}

// Unregister removes the mapping for kind and reports whether one existed.
func (r *Router) Unregister(kind Kind) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.routes[kind]; !ok {
		return false
	}
	delete(r.routes, kind)
	return true
}

// Lookup returns the handler id registered for kind.
func (r *Router) Lookup(kind Kind) (HandlerID, bool) {
	r.mu.RLock()
	id, ok := r.routes[kind]
	r.mu.RUnlock()
	return id, ok
}

// Kinds returns the registered kinds, sorted.
func (r *Router) Kinds() []Kind {
	r.mu.RLock()
	kinds := make([]Kind, 0, len(r.routes))
	for k := range r.routes {
		kinds = append(kinds, k)
	}
	r.mu.RUnlock()
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Use appends middlewares wrapped around every resolved handler.
func (r *Router) Use(mws ...Middleware) {
	r.mu.Lock()
	r.middlewares = append(r.middlewares, mws...)
	r.mu.Unlock()
}

// Route invokes the handler registered for msg's kind on the calling goroutine.
// An unregistered kind is a silent no-op. The handler's error is returned unchanged.
func (r *Router) Route(ctx context.Context, msg *Message) error {
	_, _, err := r.route(ctx, msg)
	return err
}

// route reports the handler id and whether msg's kind was mapped.
// SetResolver replaces the resolver consulted for subsequent routes.
// It is safe to call while the router is in use.
func (r *Router) SetResolver(resolver HandlerResolver) {
	r.mu.Lock()
	r.resolver = resolver
	r.mu.Unlock()
}

func (r *Router) route(ctx context.Context, msg *Message) (HandlerID, bool, error) {
	if msg == nil {
		return "", false, ErrNilMessage
	}

	r.mu.RLock()
	id, ok := r.routes[msg.Kind()]
	mws := r.middlewares
	resolver := r.resolver
	r.mu.RUnlock()
	if !ok {
		return "", false, nil
	}

	if resolver == nil {
		return id, true, &UnresolvedHandlerError{Kind: msg.Kind(), ID: id, Err: ErrNoResolverConfigured}
	}
	h, err := resolver.Resolve(id)
	if err != nil {
		if errors.Is(err, ErrUnresolvedHandler) {
			return id, true, err
		}
		return id, true, &UnresolvedHandlerError{Kind: msg.Kind(), ID: id, Err: err}
	}
	if h == nil {
		return id, true, &UnresolvedHandlerError{Kind: msg.Kind(), ID: id}
	}

	return id, true, Chain(h, mws...).Handle(ctx, msg)
}
