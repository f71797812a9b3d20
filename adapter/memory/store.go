package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/trickstertwo/xmsg"
)

const StoreName = "memory"

func init() {
	if err := xmsg.RegisterStore(StoreName, func(cfg map[string]any) (xmsg.Store, error) {
		return NewStore(ConfigFromMap(cfg))
	}); err != nil {
		panic(fmt.Errorf("xmsg/memory: failed to register store: %w", err))
	}
}

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("memory store is closed")

// Config controls memory store behavior.
type Config struct {
	// Codec names the envelope codec (default: "json").
	Codec string
	// MaxLen keeps only the newest MaxLen entries (default: 0 = unbounded).
	MaxLen int
}

func ConfigFromMap(cfg map[string]any) Config {
	getInt := func(k string, d int) int {
		switch v := cfg[k].(type) {
		case int:
			return v
		case int32:
			return int(v)
		case int64:
			return int(v)
		case float64:
			return int(v)
		default:
			return d
		}
	}
	getString := func(k, d string) string {
		if v, ok := cfg[k].(string); ok && v != "" {
			return v
		}
		return d
	}

	return Config{
		Codec:  getString("codec", "json"),
		MaxLen: maxInt(0, getInt("max_len", 0)),
	}
}

// toMap converts Config to the generic map expected by the store factory.
func (c Config) toMap() map[string]any {
	return map[string]any{
		"codec":   c.Codec,
		"max_len": c.MaxLen,
	}
}

// Store implements xmsg.Store on an in-process slice of encoded envelopes.
// Messages go through the codec on the way in and out, so loading exercises
// the same reconstitution path as a real backend. Dev/testing only.
type Store struct {
	cfg   Config
	codec xmsg.Codec

	mu      sync.RWMutex
	entries [][]byte

	closed atomic.Bool

	metrics *storeMetrics
}

type storeMetrics struct {
	appended atomic.Uint64
	loaded   atomic.Uint64
	trimmed  atomic.Uint64
}

var _ xmsg.Store = (*Store)(nil)

// NewStore creates a new in-memory store.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Codec == "" {
		cfg.Codec = "json"
	}
	c, err := xmsg.NewCodec(cfg.Codec)
	if err != nil {
		return nil, err
	}
	return &Store{
		cfg:     cfg,
		codec:   c,
		metrics: &storeMetrics{},
	}, nil
}

// Append encodes and stores msgs in order. Nothing is stored if any message
// fails to encode.
func (s *Store) Append(ctx context.Context, msgs ...*xmsg.Message) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if len(msgs) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	encoded := make([][]byte, 0, len(msgs))
	for _, m := range msgs {
		if m == nil {
			continue
		}
		b, err := xmsg.EncodeMessage(s.codec, m)
		if err != nil {
			return fmt.Errorf("encode %s: %w", m.ID(), err)
		}
		encoded = append(encoded, b)
	}

	s.mu.Lock()
	s.entries = append(s.entries, encoded...)
	if s.cfg.MaxLen > 0 && len(s.entries) > s.cfg.MaxLen {
		drop := len(s.entries) - s.cfg.MaxLen
		s.entries = append([][]byte(nil), s.entries[drop:]...)
		s.metrics.trimmed.Add(uint64(drop))
	}
	s.mu.Unlock()

	s.metrics.appended.Add(uint64(len(encoded)))
	return nil
}

// Load decodes a snapshot of the stored entries in order. fn may append to
// the store; new entries are not visited by this call.
func (s *Store) Load(ctx context.Context, fn func(*xmsg.Message) error) error {
	if s.closed.Load() {
		return ErrClosed
	}

	s.mu.RLock()
	snapshot := make([][]byte, len(s.entries))
	copy(snapshot, s.entries)
	s.mu.RUnlock()

	for i, b := range snapshot {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg, err := xmsg.DecodeMessage(s.codec, b)
		if err != nil {
			return fmt.Errorf("decode entry %d: %w", i, err)
		}
		s.metrics.loaded.Add(1)
		if err := fn(msg); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close releases the stored entries.
func (s *Store) Close(_ context.Context) error {
	if s.closed.Swap(true) {
		return nil
	}
	s.mu.Lock()
	s.entries = nil
	s.mu.Unlock()
	return nil
}

// Stats returns store telemetry.
type Stats struct {
	Appended uint64
	Loaded   uint64
	Trimmed  uint64
}

// Stats returns current store metrics.
func (s *Store) Stats() Stats {
	return Stats{
		Appended: s.metrics.appended.Load(),
		Loaded:   s.metrics.loaded.Load(),
		Trimmed:  s.metrics.trimmed.Load(),
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
