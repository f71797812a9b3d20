package xmsg

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/trickstertwo/xclock"
)

// Kind identifies a message type. Routing is keyed by Kind.
type Kind string

// Data field names, shared by the JSON form and the plain map form.
const (
	FieldID        = "id"
	FieldCreatedAt = "createdAt"
	FieldVersion   = "version"
	FieldPayload   = "payload"
	FieldMetadata  = "metadata"
)

// Message is an immutable, identified, versioned unit of data routed through the bus.
// Create one with Kind.New or Factory.Create; rebuild a captured one with Kind.Recreate.
type Message struct {
	kind      Kind
	id        string
	createdAt time.Time
	version   uint64
	payload   Values
	metadata  Values
}

// Data is the plain five-field representation of a Message.
// Recreate(m.Data()) reproduces m field for field.
type Data struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	Version   uint64    `json:"version"`
	Payload   Values    `json:"payload"`
	Metadata  Values    `json:"metadata"`
}

func (m *Message) Kind() Kind           { return m.kind }
func (m *Message) ID() string           { return m.id }
func (m *Message) CreatedAt() time.Time { return m.createdAt }
func (m *Message) Version() uint64      { return m.version }
func (m *Message) Payload() Values      { return m.payload }
func (m *Message) Metadata() Values     { return m.metadata }

// Data returns the plain representation of m.
func (m *Message) Data() Data {
	return Data{
		ID:        m.id,
		CreatedAt: m.createdAt,
		Version:   m.version,
		Payload:   m.payload,
		Metadata:  m.metadata,
	}
}

// WithVersion returns a copy of m carrying version v. Identity, timestamp,
// payload and metadata are shared with m.
func (m *Message) WithVersion(v uint64) *Message {
	c := *m
	c.version = v
	return &c
}

// Equal compares kind and all five data fields.
func (m *Message) Equal(o *Message) bool {
	if m == nil || o == nil {
		return m == o
	}
	return m.kind == o.kind &&
		m.id == o.id &&
		m.createdAt.Equal(o.createdAt) &&
		m.version == o.version &&
		m.payload.Equal(o.payload) &&
		m.metadata.Equal(o.metadata)
}

func (m *Message) String() string {
	return fmt.Sprintf("%s{id=%s v=%d}", m.kind, m.id, m.version)
}

// New creates a message of kind k with a fresh identifier and the current time,
// using the default factory.
func (k Kind) New(payload, metadata Values) *Message {
	return defaultFactory.Create(k, payload, metadata)
}

// Recreate rebuilds a message of kind k from previously captured data,
// preserving its identifier, timestamp and version.
func (k Kind) Recreate(d Data) (*Message, error) {
	if k == "" {
		return nil, ErrInvalidKind
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &Message{
		kind:      k,
		id:        d.ID,
		createdAt: d.CreatedAt,
		version:   d.Version,
		payload:   d.Payload,
		metadata:  d.Metadata,
	}, nil
}

// Validate reports the first missing field of d.
// Version has no absent state in this form; see DataFromMap and UnmarshalJSON.
func (d Data) Validate() error {
	switch {
	case d.ID == "":
		return &MalformedDataError{Field: FieldID}
	case d.CreatedAt.IsZero():
		return &MalformedDataError{Field: FieldCreatedAt}
	case d.Payload.IsZero():
		return &MalformedDataError{Field: FieldPayload}
	case d.Metadata.IsZero():
		return &MalformedDataError{Field: FieldMetadata}
	}
	return nil
}

// UnmarshalJSON decodes the wire form and rejects documents missing any field.
func (d *Data) UnmarshalJSON(b []byte) error {
	var aux struct {
		ID        *string    `json:"id"`
		CreatedAt *time.Time `json:"createdAt"`
		Version   *uint64    `json:"version"`
		Payload   Values     `json:"payload"`
		Metadata  Values     `json:"metadata"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedData, err)
	}
	switch {
	case aux.ID == nil:
		return &MalformedDataError{Field: FieldID}
	case aux.CreatedAt == nil:
		return &MalformedDataError{Field: FieldCreatedAt}
	case aux.Version == nil:
		return &MalformedDataError{Field: FieldVersion}
	}
	out := Data{
		ID:        *aux.ID,
		CreatedAt: *aux.CreatedAt,
		Version:   *aux.Version,
		Payload:   aux.Payload,
		Metadata:  aux.Metadata,
	}
	if err := out.Validate(); err != nil {
		return err
	}
	*d = out
	return nil
}

// Map returns d as a plain map keyed by the Field* names.
func (d Data) Map() map[string]any {
	return map[string]any{
		FieldID:        d.ID,
		FieldCreatedAt: d.CreatedAt,
		FieldVersion:   d.Version,
		FieldPayload:   d.Payload,
		FieldMetadata:  d.Metadata,
	}
}

// Equal compares all five fields; timestamps compare as instants.
func (d Data) Equal(o Data) bool {
	return d.ID == o.ID &&
		d.CreatedAt.Equal(o.CreatedAt) &&
		d.Version == o.Version &&
		d.Payload.Equal(o.Payload) &&
		d.Metadata.Equal(o.Metadata)
}

// DataFromMap converts a plain map into Data. Every Field* key must be present.
// createdAt may be a time.Time or an RFC 3339 string; payload and metadata may
// be Values or map[string]any.
func DataFromMap(m map[string]any) (Data, error) {
	for _, f := range []string{FieldID, FieldCreatedAt, FieldVersion, FieldPayload, FieldMetadata} {
		if v, ok := m[f]; !ok || v == nil {
			return Data{}, &MalformedDataError{Field: f}
		}
	}

	var d Data
	id, ok := m[FieldID].(string)
	if !ok {
		return Data{}, &MalformedDataError{Field: FieldID, Reason: fmt.Sprintf("want string, got %T", m[FieldID])}
	}
	d.ID = id

	switch t := m[FieldCreatedAt].(type) {
	case time.Time:
		d.CreatedAt = t
	case string:
		p, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return Data{}, &MalformedDataError{Field: FieldCreatedAt, Reason: err.Error()}
		}
		d.CreatedAt = p
	default:
		return Data{}, &MalformedDataError{Field: FieldCreatedAt, Reason: fmt.Sprintf("want time, got %T", t)}
	}

	v, err := toVersion(m[FieldVersion])
	if err != nil {
		return Data{}, &MalformedDataError{Field: FieldVersion, Reason: err.Error()}
	}
	d.Version = v

	if d.Payload, err = toValues(m[FieldPayload]); err != nil {
		return Data{}, &MalformedDataError{Field: FieldPayload, Reason: err.Error()}
	}
	if d.Metadata, err = toValues(m[FieldMetadata]); err != nil {
		return Data{}, &MalformedDataError{Field: FieldMetadata, Reason: err.Error()}
	}
	return d, d.Validate()
}

func toVersion(v any) (uint64, error) {
	switch n := v.(type) {
	case uint64:
		return n, nil
	case uint:
		return uint64(n), nil
	case uint32:
		return uint64(n), nil
	case int:
		if n < 0 {
			return 0, fmt.Errorf("negative version %d", n)
		}
		return uint64(n), nil
	case int64:
		if n < 0 {
			return 0, fmt.Errorf("negative version %d", n)
		}
		return uint64(n), nil
	case float64:
		if n < 0 || n != float64(uint64(n)) {
			return 0, fmt.Errorf("invalid version %v", n)
		}
		return uint64(n), nil
	case json.Number:
		return strconv.ParseUint(n.String(), 10, 64)
	case string:
		return strconv.ParseUint(n, 10, 64)
	}
	return 0, fmt.Errorf("want integer, got %T", v)
}

func toValues(v any) (Values, error) {
	switch t := v.(type) {
	case Values:
		if t.IsZero() {
			return Values{}, fmt.Errorf("absent")
		}
		return t, nil
	case map[string]any:
		if t == nil {
			return Values{}, fmt.Errorf("absent")
		}
		return valuesFromMap(t)
	}
	return Values{}, fmt.Errorf("want mapping, got %T", v)
}

// Factory mints new messages from an injected clock and identifier source.
type Factory struct {
	clock xclock.Clock
	newID func() string
}

// NewFactory returns a Factory using clock (xclock.Default() when nil) and UUIDv4 identifiers.
func NewFactory(clock xclock.Clock) *Factory {
	if clock == nil {
		clock = xclock.Default()
	}
	return &Factory{clock: clock, newID: func() string { return uuid.NewString() }}
}

// Create returns a new version-0 message of the given kind. Absent payload or
// metadata become empty mappings.
func (f *Factory) Create(kind Kind, payload, metadata Values) *Message {
	if payload.IsZero() {
		payload = NewValues()
	}
	if metadata.IsZero() {
		metadata = NewValues()
	}
	return &Message{
		kind:      kind,
		id:        f.newID(),
		createdAt: f.clock.Now().UTC().Truncate(time.Microsecond),
		payload:   payload,
		metadata:  metadata,
	}
}

var defaultFactory = NewFactory(nil)
