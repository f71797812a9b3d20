package xmsg_test

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xmsg"
)

const orderPlaced xmsg.Kind = "OrderPlaced"

func sampleData() xmsg.Data {
	return xmsg.Data{
		ID:        "6f1c2d9e-8a43-4c57-9d1e-2b7f3a1c0e55",
		CreatedAt: time.Date(2024, 3, 1, 12, 30, 15, 123456000, time.UTC),
		Version:   3,
		Payload:   xmsg.NewValues("orderId", "42", "total", "19.90"),
		Metadata:  xmsg.NewValues("correlationId", "c-1", "causationId", "c-0"),
	}
}

func TestKindNew_AssignsIdentityAndDefaults(t *testing.T) {
	before := time.Now().UTC().Truncate(time.Microsecond)
	m := orderPlaced.New(xmsg.NewValues("orderId", "42"), xmsg.Values{})
	after := time.Now().UTC()

	assert.Equal(t, orderPlaced, m.Kind())
	assert.Len(t, m.ID(), 36)
	assert.Equal(t, uint64(0), m.Version())
	assert.Equal(t, "42", m.Payload().String("orderId"))
	assert.False(t, m.Metadata().IsZero(), "absent metadata becomes empty")
	assert.Equal(t, 0, m.Metadata().Len())

	assert.False(t, m.CreatedAt().Before(before))
	assert.False(t, m.CreatedAt().After(after))
	assert.Equal(t, 0, m.CreatedAt().Nanosecond()%1000, "microsecond precision")
	assert.Equal(t, time.UTC, m.CreatedAt().Location())
}

func TestKindNew_UniqueIdentifiers(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id := orderPlaced.New(xmsg.NewValues(), xmsg.NewValues()).ID()
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
}

func TestFactory_UsesInjectedClock(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 30, 15, 123456789, time.UTC)
	f := xmsg.NewFactory(xclock.NewFrozen(at))
	m := f.Create("Ping", xmsg.Values{}, xmsg.Values{})

	assert.Equal(t, time.Date(2024, 3, 1, 12, 30, 15, 123456000, time.UTC), m.CreatedAt())
	assert.Equal(t, time.UTC, m.CreatedAt().Location())
	assert.NotEmpty(t, m.ID())
}

func TestFactory_NormalizesZoneToUTC(t *testing.T) {
	cet := time.FixedZone("CET", 3600)
	f := xmsg.NewFactory(xclock.NewFrozen(time.Date(2024, 3, 1, 13, 30, 15, 999999999, cet)))
	m := f.Create("Ping", xmsg.NewValues(), xmsg.NewValues())

	assert.Equal(t, time.Date(2024, 3, 1, 12, 30, 15, 999999000, time.UTC), m.CreatedAt())
}

func TestRecreate_RoundTrip(t *testing.T) {
	d := sampleData()
	m, err := orderPlaced.Recreate(d)
	require.NoError(t, err)

	assert.True(t, d.Equal(m.Data()))
	assert.Equal(t, d.ID, m.ID())
	assert.True(t, d.CreatedAt.Equal(m.CreatedAt()))
	assert.Equal(t, d.Version, m.Version())
	assert.True(t, d.Payload.Equal(m.Payload()))
	assert.True(t, d.Metadata.Equal(m.Metadata()))
}

func TestRecreate_InverseOfData(t *testing.T) {
	m := orderPlaced.New(xmsg.NewValues("orderId", "42"), xmsg.NewValues("tenant", "acme"))
	back, err := m.Kind().Recreate(m.Data())
	require.NoError(t, err)
	assert.True(t, m.Equal(back))
	assert.True(t, m.Data().Equal(back.Data()))
}

func TestRecreate_MissingFields(t *testing.T) {
	tests := []struct {
		name  string
		field string
		edit  func(d *xmsg.Data)
	}{
		{"id", xmsg.FieldID, func(d *xmsg.Data) { d.ID = "" }},
		{"createdAt", xmsg.FieldCreatedAt, func(d *xmsg.Data) { d.CreatedAt = time.Time{} }},
		{"payload", xmsg.FieldPayload, func(d *xmsg.Data) { d.Payload = xmsg.Values{} }},
		{"metadata", xmsg.FieldMetadata, func(d *xmsg.Data) { d.Metadata = xmsg.Values{} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := sampleData()
			tt.edit(&d)
			m, err := orderPlaced.Recreate(d)
			require.Error(t, err)
			assert.Nil(t, m)
			assert.ErrorIs(t, err, xmsg.ErrMalformedData)

			var mde *xmsg.MalformedDataError
			require.ErrorAs(t, err, &mde)
			assert.Equal(t, tt.field, mde.Field)
		})
	}
}

func TestRecreate_EmptyKind(t *testing.T) {
	_, err := xmsg.Kind("").Recreate(sampleData())
	assert.ErrorIs(t, err, xmsg.ErrInvalidKind)
}

func TestDataFromMap_EachFieldRequired(t *testing.T) {
	fields := []string{xmsg.FieldID, xmsg.FieldCreatedAt, xmsg.FieldVersion, xmsg.FieldPayload, xmsg.FieldMetadata}
	for _, field := range fields {
		t.Run(field, func(t *testing.T) {
			raw := sampleData().Map()
			delete(raw, field)

			_, err := xmsg.DataFromMap(raw)
			require.Error(t, err)
			assert.ErrorIs(t, err, xmsg.ErrMalformedData)

			var mde *xmsg.MalformedDataError
			require.ErrorAs(t, err, &mde)
			assert.Equal(t, field, mde.Field)
		})
	}
}

func TestDataFromMap_RoundTrip(t *testing.T) {
	d := sampleData()
	got, err := xmsg.DataFromMap(d.Map())
	require.NoError(t, err)
	assert.True(t, d.Equal(got))
}

func TestDataFromMap_PlainTypes(t *testing.T) {
	got, err := xmsg.DataFromMap(map[string]any{
		"id":        "abc",
		"createdAt": "2024-03-01T12:30:15.123456Z",
		"version":   2,
		"payload":   map[string]any{"orderId": "42"},
		"metadata":  map[string]any{},
	})
	require.NoError(t, err)
	assert.Equal(t, "abc", got.ID)
	assert.Equal(t, 123456000, got.CreatedAt.Nanosecond())
	assert.Equal(t, uint64(2), got.Version)
	assert.Equal(t, "42", got.Payload.String("orderId"))
	assert.Equal(t, 0, got.Metadata.Len())

	_, err = xmsg.DataFromMap(map[string]any{
		"id": "abc", "createdAt": time.Now(), "version": -1,
		"payload": map[string]any{}, "metadata": map[string]any{},
	})
	assert.ErrorIs(t, err, xmsg.ErrMalformedData)

	_, err = xmsg.DataFromMap(map[string]any{
		"id": "abc", "createdAt": time.Now(), "version": 0,
		"payload": map[string]any{"bad": math.Inf(1)}, "metadata": map[string]any{},
	})
	var mde *xmsg.MalformedDataError
	require.ErrorAs(t, err, &mde)
	assert.Equal(t, xmsg.FieldPayload, mde.Field)
}

func TestDataJSON_RoundTrip(t *testing.T) {
	d := sampleData()
	b, err := json.Marshal(d)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"id": "6f1c2d9e-8a43-4c57-9d1e-2b7f3a1c0e55",
		"createdAt": "2024-03-01T12:30:15.123456Z",
		"version": 3,
		"payload": {"orderId": "42", "total": "19.90"},
		"metadata": {"correlationId": "c-1", "causationId": "c-0"}
	}`, string(b))

	var got xmsg.Data
	require.NoError(t, json.Unmarshal(b, &got))
	assert.True(t, d.Equal(got))
}

func TestDataJSON_EachFieldRequired(t *testing.T) {
	fields := []string{xmsg.FieldID, xmsg.FieldCreatedAt, xmsg.FieldVersion, xmsg.FieldPayload, xmsg.FieldMetadata}
	full, err := json.Marshal(sampleData())
	require.NoError(t, err)

	for _, field := range fields {
		t.Run(field, func(t *testing.T) {
			var doc map[string]json.RawMessage
			require.NoError(t, json.Unmarshal(full, &doc))
			delete(doc, field)
			b, err := json.Marshal(doc)
			require.NoError(t, err)

			var d xmsg.Data
			err = json.Unmarshal(b, &d)
			require.Error(t, err)
			assert.ErrorIs(t, err, xmsg.ErrMalformedData)
		})
	}
}

func TestWithVersion_PreservesIdentity(t *testing.T) {
	m := orderPlaced.New(xmsg.NewValues("orderId", "42"), xmsg.NewValues())
	for _, v := range []uint64{0, 1, 7, 1 << 40} {
		c := m.WithVersion(v)
		assert.Equal(t, m.ID(), c.ID())
		assert.True(t, m.CreatedAt().Equal(c.CreatedAt()))
		assert.Equal(t, v, c.Version())
		assert.Equal(t, m.Kind(), c.Kind())
		assert.True(t, m.Payload().Equal(c.Payload()))
	}
	assert.Equal(t, uint64(0), m.Version(), "original untouched")
	assert.NotSame(t, m, m.WithVersion(0))
}

func TestWithVersion_EmptyKind(t *testing.T) {
	m := xmsg.Kind("").New(xmsg.NewValues(), xmsg.NewValues())
	var c *xmsg.Message
	require.NotPanics(t, func() { c = m.WithVersion(1) })
	assert.Equal(t, m.ID(), c.ID())
	assert.Equal(t, xmsg.Kind(""), c.Kind())
	assert.Equal(t, uint64(1), c.Version())
}

func TestWithVersion_ZeroTimeClock(t *testing.T) {
	f := xmsg.NewFactory(xclock.NewFrozen(time.Time{}))
	m := f.Create(orderPlaced, xmsg.NewValues("orderId", "42"), xmsg.NewValues())
	var c *xmsg.Message
	require.NotPanics(t, func() { c = m.WithVersion(2) })
	assert.True(t, c.CreatedAt().IsZero())
	assert.Equal(t, uint64(2), c.Version())
	assert.True(t, m.Payload().Equal(c.Payload()))
}

func TestMessageEqual(t *testing.T) {
	m := orderPlaced.New(xmsg.NewValues("orderId", "42"), xmsg.NewValues())
	assert.True(t, m.Equal(m.WithVersion(0)))
	assert.False(t, m.Equal(m.WithVersion(1)))
	assert.False(t, m.Equal(nil))

	other, err := xmsg.Kind("OrderCancelled").Recreate(m.Data())
	require.NoError(t, err)
	assert.False(t, m.Equal(other))
}
