package memory

import (
	"fmt"

	"github.com/trickstertwo/xmsg"
)

// Use opens a memory store through the registry, the same way a config-driven
// caller would, and panics if that fails.
//
// Example:
//
//	journal := memory.Use(memory.Config{MaxLen: 10_000})
//	bus, _ := xmsg.NewBusBuilder().
//	    WithResolver(handlers).
//	    WithMiddleware(xmsg.JournalMiddleware(journal)).
//	    Build()
func Use(cfg Config) xmsg.Store {
	s, err := xmsg.NewStore(StoreName, cfg.toMap())
	if err != nil {
		panic(fmt.Errorf("memory.Use: %w", err))
	}
	return s
}
