package redisstream

import (
	"fmt"
	"time"
)

// Config for the Redis Streams store.
type Config struct {
	// Connection
	Addr          string
	Username      string
	Password      string
	DB            int
	TLS           bool
	TLSServerName string
	DialTimeout   time.Duration

	// Stream management
	Stream       string
	PageSize     int
	MaxLenApprox int64
}

// Defaults returns a Config with production-safe defaults.
func Defaults() Config {
	return Config{
		Addr:        "127.0.0.1:6379",
		DialTimeout: 2 * time.Second,
		Stream:      "xmsg:journal",
		PageSize:    512,
	}
}

// Validate checks Config for production readiness.
func (c Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("config: addr required")
	}
	if c.Stream == "" {
		return fmt.Errorf("config: stream required")
	}
	if c.PageSize < 1 {
		return fmt.Errorf("config: page_size must be >= 1, got %d", c.PageSize)
	}
	if c.MaxLenApprox < 0 {
		return fmt.Errorf("config: max_len_approx must be >= 0, got %d", c.MaxLenApprox)
	}
	return nil
}

// toMap converts Config to generic map for the store factory.
func (c Config) toMap() map[string]any {
	return map[string]any{
		"addr":            c.Addr,
		"username":        c.Username,
		"password":        c.Password,
		"db":              c.DB,
		"tls":             c.TLS,
		"tls_server_name": c.TLSServerName,
		"dial_timeout":    c.DialTimeout,
		"stream":          c.Stream,
		"page_size":       c.PageSize,
		"max_len_approx":  c.MaxLenApprox,
	}
}

// ConfigFromMap safely converts generic map to Config with defaults.
func ConfigFromMap(m map[string]any) Config {
	c := Defaults()

	if v, ok := m["addr"].(string); ok && v != "" {
		c.Addr = v
	}
	if v, ok := m["username"].(string); ok {
		c.Username = v
	}
	if v, ok := m["password"].(string); ok {
		c.Password = v
	}
	if v, ok := toInt64(m["db"]); ok {
		c.DB = int(v)
	}
	if v, ok := m["tls"].(bool); ok {
		c.TLS = v
	}
	if v, ok := m["tls_server_name"].(string); ok {
		c.TLSServerName = v
	}
	switch v := m["dial_timeout"].(type) {
	case time.Duration:
		if v > 0 {
			c.DialTimeout = v
		}
	case string:
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.DialTimeout = d
		}
	}
	if v, ok := m["stream"].(string); ok && v != "" {
		c.Stream = v
	}
	if v, ok := toInt64(m["page_size"]); ok && v > 0 {
		c.PageSize = int(v)
	}
	if v, ok := toInt64(m["max_len_approx"]); ok && v > 0 {
		c.MaxLenApprox = v
	}

	return c
}
