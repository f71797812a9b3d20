package xmsg

import (
	"github.com/trickstertwo/xlog"
)

// ObserverFunc is an Adapter that lets a plain function satisfy Observer.
type ObserverFunc func(e Event)

func (f ObserverFunc) OnEvent(e Event) { f(e) }

// LoggingObserver is an Adapter that emits bus events via xlog.
// Handler failures are logged at warn level; the error itself still reaches
// the Dispatch caller.
type LoggingObserver struct {
	Logger *xlog.Logger
}

func (o LoggingObserver) OnEvent(e Event) {
	if o.Logger == nil {
		return
	}
	switch e.Type {
	case Error:
		o.Logger.Warn().
			Str("type", string(e.Type)).
			Str("kind", string(e.Kind)).
			Str("message_id", e.MessageID).
			Str("handler", string(e.HandlerID)).
			Err(e.Err).
			Msg("xmsg event")
	case RouteDone:
		o.Logger.Debug().
			Str("type", string(e.Type)).
			Str("kind", string(e.Kind)).
			Str("message_id", e.MessageID).
			Str("handler", string(e.HandlerID)).
			Dur("duration", e.Duration).
			Msg("xmsg event")
	default:
		o.Logger.Debug().
			Str("type", string(e.Type)).
			Str("kind", string(e.Kind)).
			Str("message_id", e.MessageID).
			Msg("xmsg event")
	}
}
