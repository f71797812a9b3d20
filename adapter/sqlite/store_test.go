package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trickstertwo/xmsg"
)

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func TestStore_AppendLoadPreservesOrder(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	placed := xmsg.Kind("OrderPlaced").New(xmsg.NewValues("orderId", "42", "total", "19.90"), xmsg.NewValues("tenant", "acme"))
	shipped := xmsg.Kind("OrderShipped").New(xmsg.NewValues("orderId", "42"), xmsg.NewValues())
	require.NoError(t, s.Append(ctx, placed, shipped))

	var got []*xmsg.Message
	require.NoError(t, s.Load(ctx, func(m *xmsg.Message) error {
		got = append(got, m)
		return nil
	}))
	require.Len(t, got, 2)
	assert.True(t, placed.Equal(got[0]))
	assert.True(t, shipped.Equal(got[1]))
	assert.Equal(t, []string{"orderId", "total"}, got[0].Payload().Keys())
	assert.Equal(t, 0, got[1].Metadata().Len())
	assert.False(t, got[1].Metadata().IsZero())
}

func TestStore_LoadKeepsNumbersAndNesting(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	msg := xmsg.Kind("OrderPlaced").New(
		xmsg.NewValues("qty", 3, "nested", xmsg.NewValues("a", 1), "price", 19.9),
		xmsg.NewValues("attempt", 2),
	).WithVersion(5)
	require.NoError(t, s.Append(ctx, msg))

	var back *xmsg.Message
	require.NoError(t, s.Load(ctx, func(m *xmsg.Message) error {
		back = m
		return nil
	}))
	require.NotNil(t, back)
	assert.True(t, msg.Equal(back))
	assert.Equal(t, []string{"qty", "nested", "price"}, back.Payload().Keys())
}

func TestStore_History(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	m := xmsg.Kind("Account").New(xmsg.NewValues("balance", "10"), xmsg.NewValues())
	other := xmsg.Kind("Account").New(xmsg.NewValues("balance", "0"), xmsg.NewValues())
	require.NoError(t, s.Append(ctx, m.WithVersion(2), other, m, m.WithVersion(1)))

	hist, err := s.History(ctx, m.ID())
	require.NoError(t, err)
	require.Len(t, hist, 3)
	for i, h := range hist {
		assert.Equal(t, m.ID(), h.ID())
		assert.Equal(t, uint64(i), h.Version())
		assert.True(t, m.CreatedAt().Equal(h.CreatedAt()))
	}

	none, err := s.History(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStore_LoadMayAppend(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, xmsg.Kind("Step").New(xmsg.NewValues("n", "1"), xmsg.NewValues())))

	visited := 0
	require.NoError(t, s.Load(ctx, func(m *xmsg.Message) error {
		visited++
		return s.Append(ctx, m.WithVersion(1))
	}))
	assert.Equal(t, 1, visited)

	total := 0
	require.NoError(t, s.Load(ctx, func(*xmsg.Message) error {
		total++
		return nil
	}))
	assert.Equal(t, 2, total)
}

func TestDecodeRow_Malformed(t *testing.T) {
	_, err := decodeRow("Step", "id", 1, 0, `not json`, `{}`)
	assert.ErrorIs(t, err, xmsg.ErrMalformedData)

	_, err = decodeRow("Step", "id", 1, 0, `null`, `{}`)
	var mde *xmsg.MalformedDataError
	require.ErrorAs(t, err, &mde)
	assert.Equal(t, xmsg.FieldPayload, mde.Field)

	_, err = decodeRow("Step", "", 1, 0, `{}`, `{}`)
	require.ErrorAs(t, err, &mde)
	assert.Equal(t, xmsg.FieldID, mde.Field)
}

func TestOpen_FileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "journal.db")
	ctx := context.Background()

	s, err := Open(ctx, path)
	require.NoError(t, err)
	msg := xmsg.Kind("Step").New(xmsg.NewValues("n", "1"), xmsg.NewValues())
	require.NoError(t, s.Append(ctx, msg))
	require.NoError(t, s.Close(ctx))

	reopened, err := Open(ctx, path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close(ctx) }()

	hist, err := reopened.History(ctx, msg.ID())
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.True(t, msg.Equal(hist[0]))
}

func TestRegistry(t *testing.T) {
	_, err := xmsg.NewStore(StoreName, map[string]any{})
	assert.Error(t, err)

	s, err := xmsg.NewStore(StoreName, map[string]any{"path": MemoryPath})
	require.NoError(t, err)
	assert.NoError(t, s.Close(context.Background()))
}
