package redisstream

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
	"github.com/trickstertwo/xmsg"
)

// Store implements xmsg.Store on a single Redis stream.
type Store struct {
	cfg    Config
	client *redis.Client

	closeOnce sync.Once

	appended atomic.Uint64
	loaded   atomic.Uint64
}

var _ xmsg.Store = (*Store)(nil)

// NewStore connects to Redis and verifies the connection with PING.
func NewStore(cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = Defaults().DialTimeout
	}
	opts := &redis.Options{
		Addr:        cfg.Addr,
		Username:    cfg.Username,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	}
	if cfg.TLS {
		opts.TLSConfig = &tls.Config{
			MinVersion:    tls.VersionTLS12,
			ServerName:    cfg.TLSServerName,
			Renegotiation: tls.RenegotiateNever,
		}
	}
	client := redis.NewClient(opts)
	if err := ping(client, cfg); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &Store{cfg: cfg, client: client}, nil
}

// NewStoreWithClient wraps an existing client; the store owns it from then on.
func NewStoreWithClient(cfg Config, client *redis.Client) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Store{cfg: cfg, client: client}, nil
}

// Append adds one stream entry per message in a single pipeline.
func (s *Store) Append(ctx context.Context, msgs ...*xmsg.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	pipe := s.client.Pipeline()
	n := 0
	for _, m := range msgs {
		if m == nil {
			continue
		}
		vals, err := encodeEntry(m)
		if err != nil {
			return fmt.Errorf("encode %s: %w", m.ID(), err)
		}
		args := &redis.XAddArgs{
			Stream: s.cfg.Stream,
			ID:     "*",
			Values: vals,
		}
		if s.cfg.MaxLenApprox > 0 {
			args.MaxLen = s.cfg.MaxLenApprox
			args.Approx = true
		}
		pipe.XAdd(ctx, args)
		n++
	}
	if n == 0 {
		return nil
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("xadd %s: %w", s.cfg.Stream, err)
	}
	s.appended.Add(uint64(n))
	return nil
}

// Load pages through the stream with XRANGE and reconstitutes each entry.
func (s *Store) Load(ctx context.Context, fn func(*xmsg.Message) error) error {
	start := "-"
	for {
		entries, err := s.client.XRangeN(ctx, s.cfg.Stream, start, "+", int64(s.cfg.PageSize)).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil
			}
			return fmt.Errorf("xrange %s: %w", s.cfg.Stream, err)
		}
		for _, e := range entries {
			msg, err := decodeEntry(e.Values)
			if err != nil {
				return fmt.Errorf("decode entry %s: %w", e.ID, err)
			}
			s.loaded.Add(1)
			if err := fn(msg); err != nil {
				return err
			}
		}
		if len(entries) < s.cfg.PageSize {
			return nil
		}
		// exclusive start, Redis >= 6.2
		start = "(" + entries[len(entries)-1].ID
	}
}

// Len returns the stream length.
func (s *Store) Len(ctx context.Context) (int64, error) {
	return s.client.XLen(ctx, s.cfg.Stream).Result()
}

// Trim drops all but the newest maxLen entries.
func (s *Store) Trim(ctx context.Context, maxLen int64) error {
	return s.client.XTrimMaxLen(ctx, s.cfg.Stream, maxLen).Err()
}

// Stats returns store telemetry.
type Stats struct {
	Appended uint64
	Loaded   uint64
}

// Stats returns current store counters.
func (s *Store) Stats() Stats {
	return Stats{Appended: s.appended.Load(), Loaded: s.loaded.Load()}
}

// Close releases the Redis client.
func (s *Store) Close(_ context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		err = s.client.Close()
	})
	return err
}

func ping(c *redis.Client, cfg Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	res, err := c.Ping(ctx).Result()
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return fmt.Errorf("redis ping timeout: %w", err)
		}
		return err
	}
	if strings.ToUpper(res) != "PONG" {
		return fmt.Errorf("unexpected redis ping result: %s", res)
	}
	return nil
}
