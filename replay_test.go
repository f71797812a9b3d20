package xmsg_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trickstertwo/xmsg"
	"github.com/trickstertwo/xmsg/adapter/memory"
)

func TestReplay_JournalThenReplayInOrder(t *testing.T) {
	journal := memory.Use(memory.Config{})
	t.Cleanup(func() { _ = journal.Close(context.Background()) })

	live := xmsg.NewHandlerMap()
	require.NoError(t, live.SetFunc("step", func(ctx context.Context, msg *xmsg.Message) error {
		if msg.Payload().String("name") == "first" {
			return dispatchFrom(ctx, step("second"))
		}
		return nil
	}))
	bus := newTestBus(t, live, func(b *xmsg.BusBuilder) {
		b.WithRoute("Step", "step").WithMiddleware(xmsg.JournalMiddleware(journal))
	})
	first := step("first")
	require.NoError(t, bus.Dispatch(context.Background(), first))

	replayed := xmsg.NewHandlerMap()
	var seen []*xmsg.Message
	require.NoError(t, replayed.SetFunc("step", func(_ context.Context, msg *xmsg.Message) error {
		seen = append(seen, msg)
		return nil
	}))
	target := newTestBus(t, replayed, func(b *xmsg.BusBuilder) { b.WithRoute("Step", "step") })

	n, err := xmsg.Replay(context.Background(), journal, target)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, seen, 2)
	assert.True(t, first.Equal(seen[0]))
	assert.Equal(t, "second", seen[1].Payload().String("name"))
}

func TestReplay_StopsOnHandlerError(t *testing.T) {
	store := &sliceStore{}
	require.NoError(t, store.Append(context.Background(), step("a"), step("b")))

	errFail := errors.New("fail")
	handlers := xmsg.NewHandlerMap()
	require.NoError(t, handlers.SetFunc("step", func(context.Context, *xmsg.Message) error { return errFail }))
	bus := newTestBus(t, handlers, func(b *xmsg.BusBuilder) { b.WithRoute("Step", "step") })

	n, err := xmsg.Replay(context.Background(), store, bus)
	assert.ErrorIs(t, err, errFail)
	assert.Equal(t, 0, n)
}

func TestStoreRegistry(t *testing.T) {
	assert.Contains(t, xmsg.Stores(), memory.StoreName)

	_, err := xmsg.NewStore("does-not-exist", nil)
	require.Error(t, err)
	var unknown xmsg.ErrUnknownStore
	assert.ErrorAs(t, err, &unknown)
}
