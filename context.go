package xmsg

import (
	"context"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

// ctxKey is the base for all context keys in xmsg (prevents collisions).
type ctxKey string

const (
	busCtxKey    ctxKey = "xmsg:bus"
	loggerCtxKey ctxKey = "xmsg:logger"
	clockCtxKey  ctxKey = "xmsg:clock"
)

// injectBus attaches the draining Bus so handlers can dispatch follow-up messages.
func injectBus(ctx context.Context, b *Bus) context.Context {
	if b == nil {
		return ctx
	}
	return context.WithValue(ctx, busCtxKey, b)
}

// BusFromContext returns the Bus that is routing the current message.
func BusFromContext(ctx context.Context) (*Bus, bool) {
	if v := ctx.Value(busCtxKey); v != nil {
		if b, ok := v.(*Bus); ok && b != nil {
			return b, true
		}
	}
	return nil, false
}

func injectLogger(ctx context.Context, l *xlog.Logger) context.Context {
	if l == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerCtxKey, l)
}

func LoggerFromContext(ctx context.Context) (*xlog.Logger, bool) {
	if v := ctx.Value(loggerCtxKey); v != nil {
		if l, ok := v.(*xlog.Logger); ok && l != nil {
			return l, true
		}
	}
	return nil, false
}

func injectClock(ctx context.Context, c xclock.Clock) context.Context {
	if c == nil {
		return ctx
	}
	return context.WithValue(ctx, clockCtxKey, c)
}

func ClockFromContext(ctx context.Context) (xclock.Clock, bool) {
	if v := ctx.Value(clockCtxKey); v != nil {
		if c, ok := v.(xclock.Clock); ok && c != nil {
			return c, true
		}
	}
	return nil, false
}

// clockOrDefault returns the clock injected into ctx, falling back to xclock.Default().
func clockOrDefault(ctx context.Context) xclock.Clock {
	if c, ok := ClockFromContext(ctx); ok {
		return c
	}
	return xclock.Default()
}

// InjectAll is a convenience helper to inject all standard dependencies.
func InjectAll(ctx context.Context, b *Bus, logger *xlog.Logger, clock xclock.Clock) context.Context {
	ctx = injectBus(ctx, b)
	ctx = injectLogger(ctx, logger)
	ctx = injectClock(ctx, clock)
	return ctx
}
