package xmsg

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/trickstertwo/xlog"
)

// RetryConfig controls retry behavior for RetryMiddleware.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts including the first execution.
	MaxAttempts int
	// Backoff computes the base wait before the next attempt.
	Backoff func(attempt int) time.Duration
	// RetryIf, when provided, returns true if the error should be retried.
	// If nil, all errors are retried (bounded by MaxAttempts).
	RetryIf func(err error) bool
	// Jitter adds up to [0, Jitter] random delay to the base backoff.
	Jitter time.Duration
}

// RetryMiddleware re-invokes a failing handler in place. The drain loop waits
// for the final attempt; the last error is returned unchanged.
func RetryMiddleware(cfg RetryConfig) Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, msg *Message) error {
			var lastErr error
			attempts := cfg.MaxAttempts
			if attempts < 1 {
				attempts = 1
			}
			shouldRetry := cfg.RetryIf
			if shouldRetry == nil {
				shouldRetry = func(error) bool { return true }
			}
			for i := 1; i <= attempts; i++ {
				lastErr = next.Handle(ctx, msg)
				if lastErr == nil {
					return nil
				}
				if errors.Is(ctx.Err(), context.Canceled) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
					return lastErr
				}
				if i == attempts || !shouldRetry(lastErr) {
					return lastErr
				}
				if cfg.Backoff != nil {
					wait := cfg.Backoff(i)
					if cfg.Jitter > 0 {
						wait += time.Duration(rand.Int63n(int64(cfg.Jitter)))
					}
					select {
					case <-ctx.Done():
						return lastErr
					case <-time.After(wait):
					}
				}
			}
			return lastErr
		})
	}
}

// RecoveryMiddleware converts handler panics into errors matching ErrHandlerPanic.
// Without it a panic unwinds through Dispatch; the bus stays usable either way.
func RecoveryMiddleware() Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, msg *Message) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
				}
			}()
			return next.Handle(ctx, msg)
		})
	}
}

// JournalMiddleware appends every successfully handled message to store.
func JournalMiddleware(store Store) Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, msg *Message) error {
			if err := next.Handle(ctx, msg); err != nil {
				return err
			}
			if err := store.Append(ctx, msg); err != nil {
				return fmt.Errorf("xmsg: journal %s: %w", msg.ID(), err)
			}
			return nil
		})
	}
}

// LoggingMiddleware logs handler start and completion at debug level.
// Durations are measured with the clock the bus injects into ctx.
func LoggingMiddleware(l *xlog.Logger) Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, msg *Message) error {
			clk := clockOrDefault(ctx)
			start := clk.Now()
			l.Debug().
				Str("kind", string(msg.Kind())).
				Str("id", msg.ID()).
				Msg("handler start")

			err := next.Handle(ctx, msg)

			l.Debug().
				Str("kind", string(msg.Kind())).
				Str("id", msg.ID()).
				Dur("dur", clk.Since(start)).
				Err(err).
				Msg("handler done")
			return err
		})
	}
}

// Chain composes middlewares around a handler in order.
func Chain(h Handler, mws ...Middleware) Handler {
	if len(mws) == 0 {
		return h
	}
	wrapped := h
	// Apply in reverse so that first middleware wraps last.
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] == nil {
			continue
		}
		wrapped = mws[i](wrapped)
	}
	return wrapped
}
