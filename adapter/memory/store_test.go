package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trickstertwo/xmsg"
)

func newMsg(name string) *xmsg.Message {
	return xmsg.Kind("Step").New(xmsg.NewValues("name", name), xmsg.NewValues("tenant", "acme"))
}

func TestStore_AppendLoadRoundTrip(t *testing.T) {
	s, err := NewStore(Config{})
	require.NoError(t, err)
	ctx := context.Background()

	a, b := newMsg("a"), newMsg("b").WithVersion(4)
	require.NoError(t, s.Append(ctx, a, nil, b))
	assert.Equal(t, 2, s.Len())

	var got []*xmsg.Message
	require.NoError(t, s.Load(ctx, func(m *xmsg.Message) error {
		got = append(got, m)
		return nil
	}))
	require.Len(t, got, 2)
	assert.True(t, a.Equal(got[0]))
	assert.True(t, b.Equal(got[1]))
	assert.Equal(t, uint64(4), got[1].Version())

	st := s.Stats()
	assert.Equal(t, uint64(2), st.Appended)
	assert.Equal(t, uint64(2), st.Loaded)
}

func TestStore_LoadKeepsNumbersAndNesting(t *testing.T) {
	s, err := NewStore(Config{})
	require.NoError(t, err)
	ctx := context.Background()

	msg := xmsg.Kind("OrderPlaced").New(
		xmsg.NewValues("qty", 3, "nested", xmsg.NewValues("a", 1)),
		xmsg.NewValues("attempt", 2),
	)
	require.NoError(t, s.Append(ctx, msg))

	var back *xmsg.Message
	require.NoError(t, s.Load(ctx, func(m *xmsg.Message) error {
		back = m
		return nil
	}))
	require.NotNil(t, back)
	assert.True(t, msg.Equal(back))
	qty, ok := back.Payload().Int64("qty")
	require.True(t, ok)
	assert.Equal(t, int64(3), qty)
}

func TestStore_MaxLenTrimsOldest(t *testing.T) {
	s, err := NewStore(Config{MaxLen: 2})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, newMsg("1"), newMsg("2"), newMsg("3")))
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, uint64(1), s.Stats().Trimmed)

	var names []string
	require.NoError(t, s.Load(ctx, func(m *xmsg.Message) error {
		names = append(names, m.Payload().String("name"))
		return nil
	}))
	assert.Equal(t, []string{"2", "3"}, names)
}

func TestStore_LoadMayAppend(t *testing.T) {
	s, err := NewStore(Config{})
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, newMsg("a")))

	visited := 0
	require.NoError(t, s.Load(ctx, func(m *xmsg.Message) error {
		visited++
		return s.Append(ctx, m.WithVersion(m.Version()+1))
	}))
	assert.Equal(t, 1, visited)
	assert.Equal(t, 2, s.Len())
}

func TestStore_Closed(t *testing.T) {
	s, err := NewStore(Config{})
	require.NoError(t, err)
	require.NoError(t, s.Close(context.Background()))
	require.NoError(t, s.Close(context.Background()))

	assert.ErrorIs(t, s.Append(context.Background(), newMsg("a")), ErrClosed)
	assert.ErrorIs(t, s.Load(context.Background(), func(*xmsg.Message) error { return nil }), ErrClosed)
}

func TestStore_UnknownCodec(t *testing.T) {
	_, err := NewStore(Config{Codec: "msgpack"})
	assert.Error(t, err)
}

func TestConfigFromMap(t *testing.T) {
	c := ConfigFromMap(map[string]any{"max_len": float64(10)})
	assert.Equal(t, Config{Codec: "json", MaxLen: 10}, c)

	c = ConfigFromMap(map[string]any{"max_len": -3, "codec": ""})
	assert.Equal(t, Config{Codec: "json", MaxLen: 0}, c)

	assert.Equal(t, c, ConfigFromMap(c.toMap()))
}

func TestUse_RegistersThroughFactory(t *testing.T) {
	s := Use(Config{MaxLen: 5})
	defer func() { _ = s.Close(context.Background()) }()
	_, ok := s.(*Store)
	assert.True(t, ok)

	viaRegistry, err := xmsg.NewStore(StoreName, map[string]any{})
	require.NoError(t, err)
	assert.IsType(t, &Store{}, viaRegistry)
}
