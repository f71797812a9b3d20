package redisstream

import (
	"fmt"

	"github.com/trickstertwo/xmsg"
)

const StoreName = "redis-streams"

func init() {
	if err := xmsg.RegisterStore(StoreName, func(cfg map[string]any) (xmsg.Store, error) {
		return NewStore(ConfigFromMap(cfg))
	}); err != nil {
		panic(fmt.Errorf("xmsg: failed to register store %q: %w", StoreName, err))
	}
}

// Use opens a Redis Streams store through the registry and panics if Redis
// is unreachable (for services whose journal must be available at startup).
func Use(cfg Config) xmsg.Store {
	s, err := xmsg.NewStore(StoreName, cfg.toMap())
	if err != nil {
		panic(fmt.Errorf("redisstream.Use: %w", err))
	}
	return s
}
