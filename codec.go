package xmsg

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// JSONCodec is the default JSON implementation.
type JSONCodec struct{}

func (JSONCodec) Marshal(v any) ([]byte, error)   { return json.Marshal(v) }
func (JSONCodec) Unmarshal(b []byte, v any) error { return json.Unmarshal(b, v) }
func (JSONCodec) Name() string                    { return "json" }

// CodecFactory constructs codecs via Factory pattern.
type CodecFactory func() Codec

var (
	codecRegistryMu sync.RWMutex
	codecRegistry   = map[string]CodecFactory{
		"json": func() Codec { return JSONCodec{} },
	}
)

// RegisterCodec registers a codec factory by name.
func RegisterCodec(name string, factory CodecFactory) error {
	if name == "" {
		return errors.New("codec name must not be empty")
	}
	if factory == nil {
		return errors.New("codec factory must not be nil")
	}
	codecRegistryMu.Lock()
	codecRegistry[name] = factory
	codecRegistryMu.Unlock()
	return nil
}

// NewCodec constructs a codec by name or returns an error.
func NewCodec(name string) (Codec, error) {
	codecRegistryMu.RLock()
	f, ok := codecRegistry[name]
	codecRegistryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("codec %q not registered", name)
	}
	return f(), nil
}

// Envelope is what storage collaborators persist: the message kind plus its
// plain data, enough to call Kind.Recreate on load.
type Envelope struct {
	Kind Kind `json:"kind"`
	Data Data `json:"data"`
}

// Seal captures msg as an Envelope.
func Seal(msg *Message) Envelope {
	return Envelope{Kind: msg.Kind(), Data: msg.Data()}
}

// Open reconstitutes the enveloped message.
func (e Envelope) Open() (*Message, error) {
	return e.Kind.Recreate(e.Data)
}

// EncodeMessage encodes msg's envelope with c.
func EncodeMessage(c Codec, msg *Message) ([]byte, error) {
	if msg == nil {
		return nil, ErrNilMessage
	}
	return c.Marshal(Seal(msg))
}

// DecodeMessage decodes an envelope with c and reconstitutes the message.
// Missing data fields surface as errors matching ErrMalformedData.
func DecodeMessage(c Codec, b []byte) (*Message, error) {
	var env Envelope
	if err := c.Unmarshal(b, &env); err != nil {
		var mde *MalformedDataError
		if errors.As(err, &mde) || errors.Is(err, ErrMalformedData) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedData, err)
	}
	return env.Open()
}

// DecodePayload converts msg's payload into a typed value through JSON.
func DecodePayload[T any](msg *Message) (T, error) {
	var v T
	b, err := json.Marshal(msg.Payload())
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(b, &v); err != nil {
		return v, err
	}
	return v, nil
}
