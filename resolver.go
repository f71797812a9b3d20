package xmsg

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ResolverFunc is an Adapter that lets a factory function satisfy HandlerResolver.
type ResolverFunc func(id HandlerID) (Handler, error)

func (f ResolverFunc) Resolve(id HandlerID) (Handler, error) { return f(id) }

// HandlerMap is a HandlerResolver backed by a map of ready handler instances.
// Safe for concurrent use.
type HandlerMap struct {
	mu       sync.RWMutex
	handlers map[HandlerID]Handler
}

// NewHandlerMap returns an empty HandlerMap.
func NewHandlerMap() *HandlerMap {
	return &HandlerMap{handlers: make(map[HandlerID]Handler)}
}

// Set binds id to h, replacing any earlier binding.
func (hm *HandlerMap) Set(id HandlerID, h Handler) error {
	if id == "" {
		return errors.New("xmsg: handler id must not be empty")
	}
	if h == nil {
		return errors.New("xmsg: handler must not be nil")
	}
	hm.mu.Lock()
	hm.handlers[id] = h
	hm.mu.Unlock()
	return nil
}

// SetFunc binds id to a plain function.
func (hm *HandlerMap) SetFunc(id HandlerID, fn func(ctx context.Context, msg *Message) error) error {
	return hm.Set(id, HandlerFunc(fn))
}

// Delete removes the binding for id.
func (hm *HandlerMap) Delete(id HandlerID) {
	hm.mu.Lock()
	delete(hm.handlers, id)
	hm.mu.Unlock()
}

// Resolve implements HandlerResolver.
func (hm *HandlerMap) Resolve(id HandlerID) (Handler, error) {
	hm.mu.RLock()
	h, ok := hm.handlers[id]
	hm.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no handler bound to %q", id)
	}
	return h, nil
}

// CachingResolver memoizes a resolver that is expensive and idempotent.
// Failed resolutions are not cached.
type CachingResolver struct {
	next  HandlerResolver
	cache sync.Map // HandlerID -> Handler
}

// NewCachingResolver wraps next.
func NewCachingResolver(next HandlerResolver) *CachingResolver {
	return &CachingResolver{next: next}
}

// Resolve implements HandlerResolver.
func (c *CachingResolver) Resolve(id HandlerID) (Handler, error) {
	if h, ok := c.cache.Load(id); ok {
		return h.(Handler), nil
	}
	h, err := c.next.Resolve(id)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, fmt.Errorf("resolver returned nil handler for %q", id)
	}
	actual, _ := c.cache.LoadOrStore(id, h)
	return actual.(Handler), nil
}

// Forget drops the cached handler for id.
func (c *CachingResolver) Forget(id HandlerID) { c.cache.Delete(id) }
