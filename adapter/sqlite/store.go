// Package sqlite provides a SQLite journal store for xmsg.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/trickstertwo/xmsg"
)

const StoreName = "sqlite"

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

func init() {
	if err := xmsg.RegisterStore(StoreName, func(cfg map[string]any) (xmsg.Store, error) {
		path, _ := cfg["path"].(string)
		if path == "" {
			return nil, fmt.Errorf("xmsg/sqlite: path required")
		}
		return Open(context.Background(), path)
	}); err != nil {
		panic(fmt.Errorf("xmsg/sqlite: failed to register store: %w", err))
	}
}

const schema = `CREATE TABLE IF NOT EXISTS messages (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    kind TEXT NOT NULL,
    message_id TEXT NOT NULL,
    created_at_us INTEGER NOT NULL,
    version INTEGER NOT NULL,
    payload TEXT NOT NULL,
    metadata TEXT NOT NULL,
    stored_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_messages_message_id ON messages (message_id, version);`

// Store journals messages into a SQLite table.
type Store struct {
	db *sql.DB
}

var _ xmsg.Store = (*Store)(nil)

// Open establishes a SQLite connection and ensures the schema exists.
func Open(ctx context.Context, path string) (*Store, error) {
	if path != MemoryPath {
		expanded, err := expandPath(path)
		if err != nil {
			return nil, fmt.Errorf("expand path: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
			return nil, fmt.Errorf("ensure database directory: %w", err)
		}
		path = expanded
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; also keeps one in-memory database alive
	db.SetConnMaxLifetime(0)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Append inserts msgs in one transaction.
func (s *Store) Append(ctx context.Context, msgs ...*xmsg.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO messages
        (kind, message_id, created_at_us, version, payload, metadata)
        VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, m := range msgs {
		if m == nil {
			continue
		}
		payload, err := json.Marshal(m.Payload())
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("encode payload %s: %w", m.ID(), err)
		}
		metadata, err := json.Marshal(m.Metadata())
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("encode metadata %s: %w", m.ID(), err)
		}
		if _, err := stmt.ExecContext(ctx,
			string(m.Kind()), m.ID(), m.CreatedAt().UnixMicro(), int64(m.Version()),
			string(payload), string(metadata),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert %s: %w", m.ID(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Load reads every row in insertion order. Rows are buffered before fn runs,
// so fn may append to the same store.
func (s *Store) Load(ctx context.Context, fn func(*xmsg.Message) error) error {
	msgs, err := s.query(ctx, `SELECT kind, message_id, created_at_us, version, payload, metadata
        FROM messages ORDER BY seq`)
	if err != nil {
		return err
	}
	for _, m := range msgs {
		if err := fn(m); err != nil {
			return err
		}
	}
	return nil
}

// History returns every stored version of one message, oldest version first.
func (s *Store) History(ctx context.Context, messageID string) ([]*xmsg.Message, error) {
	return s.query(ctx, `SELECT kind, message_id, created_at_us, version, payload, metadata
        FROM messages WHERE message_id = ? ORDER BY version, seq`, messageID)
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]*xmsg.Message, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []*xmsg.Message
	for rows.Next() {
		var (
			kind, id, payload, metadata string
			createdUs, version          int64
		)
		if err := rows.Scan(&kind, &id, &createdUs, &version, &payload, &metadata); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg, err := decodeRow(kind, id, createdUs, version, payload, metadata)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", id, err)
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return out, nil
}

func decodeRow(kind, id string, createdUs, version int64, payload, metadata string) (*xmsg.Message, error) {
	var p, md xmsg.Values
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return nil, &xmsg.MalformedDataError{Field: xmsg.FieldPayload, Reason: err.Error()}
	}
	if err := json.Unmarshal([]byte(metadata), &md); err != nil {
		return nil, &xmsg.MalformedDataError{Field: xmsg.FieldMetadata, Reason: err.Error()}
	}
	if version < 0 {
		return nil, &xmsg.MalformedDataError{Field: xmsg.FieldVersion, Reason: "negative"}
	}
	return xmsg.Kind(kind).Recreate(xmsg.Data{
		ID:        id,
		CreatedAt: time.UnixMicro(createdUs).UTC(),
		Version:   uint64(version),
		Payload:   p,
		Metadata:  md,
	})
}

// Close shuts down the underlying connection pool.
func (s *Store) Close(ctx context.Context) error {
	closeCh := make(chan error, 1)
	go func() { closeCh <- s.db.Close() }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-closeCh:
		return err
	}
}

func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[2:])
	}
	return filepath.Abs(path)
}
