package xmsg

import (
	"context"
	"fmt"
)

// Replay loads every message from store in append order and dispatches it on
// bus. It returns how many messages were dispatched. Reconstitution failures
// from the store and routing failures stop the replay.
func Replay(ctx context.Context, store Store, bus *Bus) (int, error) {
	n := 0
	err := store.Load(ctx, func(msg *Message) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := bus.Dispatch(ctx, msg); err != nil {
			return fmt.Errorf("xmsg: replay %s: %w", msg.ID(), err)
		}
		n++
		return nil
	})
	return n, err
}
