package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLite is a Gateway backed by a single SQLite database file. Writes
// run inside transactions guarded by a process-level mutex, so the
// version check and the write commit atomically.
type SQLite struct {
	conn *sql.DB
	path string
	mu   sync.RWMutex
}

// Open opens (or creates) the document store at the given path.
// WAL mode is enabled for concurrent reads.
func Open(path string) (*SQLite, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	s := &SQLite{conn: conn, path: path}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// migrate applies the document schema.
func (s *SQLite) migrate() error {
	_, err := s.conn.Exec(`
		CREATE TABLE IF NOT EXISTS documents (
			collection TEXT NOT NULL,
			key        TEXT NOT NULL,
			data       TEXT NOT NULL,
			version    INTEGER NOT NULL,
			updated_at DATETIME NOT NULL,
			PRIMARY KEY (collection, key)
		);
		CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection);
	`)
	if err != nil {
		return fmt.Errorf("create documents table: %w", err)
	}
	return nil
}

// Path returns the path to the database file.
func (s *SQLite) Path() string {
	return s.path
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}

// Ping verifies the store is reachable.
func (s *SQLite) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn.PingContext(ctx)
}

// Get returns the document at (collection, key), or ErrNotFound.
func (s *SQLite) Get(ctx context.Context, collection, key string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.conn.QueryRowContext(ctx, `
		SELECT data, version, updated_at FROM documents
		WHERE collection = ? AND key = ?
	`, collection, key)

	var (
		data      string
		version   int64
		updatedAt string
	)
	if err := row.Scan(&data, &version, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return Document{}, ErrNotFound
		}
		return Document{}, fmt.Errorf("get %s/%s: %w", collection, key, err)
	}

	ts, err := parseTime(updatedAt)
	if err != nil {
		return Document{}, fmt.Errorf("parse updated_at for %s/%s: %w", collection, key, err)
	}

	return Document{
		Collection: collection,
		Key:        key,
		Data:       json.RawMessage(data),
		Version:    version,
		UpdatedAt:  ts,
	}, nil
}

// Upsert writes a document with optimistic concurrency. The version
// check and the write happen in one transaction under the write lock;
// a concurrent writer that read the same version loses with
// ErrVersionConflict and must reread.
func (s *SQLite) Upsert(ctx context.Context, collection, key string, data json.RawMessage, expectedVersion int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var current int64
	row := tx.QueryRowContext(ctx, `
		SELECT version FROM documents WHERE collection = ? AND key = ?
	`, collection, key)
	err = row.Scan(&current)
	exists := err == nil
	if err != nil && err != sql.ErrNoRows {
		return 0, fmt.Errorf("read current version of %s/%s: %w", collection, key, err)
	}

	switch {
	case !exists && expectedVersion > 0:
		return 0, fmt.Errorf("upsert %s/%s expected version %d: %w", collection, key, expectedVersion, ErrVersionConflict)
	case exists && expectedVersion != AnyVersion && expectedVersion != current:
		return 0, fmt.Errorf("upsert %s/%s expected version %d, have %d: %w", collection, key, expectedVersion, current, ErrVersionConflict)
	}

	next := current + 1
	now := formatTime(time.Now())
	if exists {
		_, err = tx.ExecContext(ctx, `
			UPDATE documents SET data = ?, version = ?, updated_at = ?
			WHERE collection = ? AND key = ?
		`, string(data), next, now, collection, key)
	} else {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO documents (collection, key, data, version, updated_at)
			VALUES (?, ?, ?, ?, ?)
		`, collection, key, string(data), next, now)
	}
	if err != nil {
		return 0, fmt.Errorf("write %s/%s: %w", collection, key, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit %s/%s: %w", collection, key, err)
	}
	return next, nil
}

// Query returns documents in a collection ordered by key.
func (s *SQLite) Query(ctx context.Context, collection string, f Filter, limit, offset int) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT key, data, version, updated_at FROM documents
		WHERE collection = ?
	`
	args := []any{collection}
	if f.KeyPrefix != "" {
		query += ` AND key LIKE ? ESCAPE '\'`
		args = append(args, escapeLike(f.KeyPrefix)+"%")
	}
	query += " ORDER BY key"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	} else if offset > 0 {
		query += " LIMIT -1"
	}
	if offset > 0 {
		query += " OFFSET ?"
		args = append(args, offset)
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var (
			key       string
			data      string
			version   int64
			updatedAt string
		)
		if err := rows.Scan(&key, &data, &version, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", collection, err)
		}
		ts, err := parseTime(updatedAt)
		if err != nil {
			return nil, fmt.Errorf("parse updated_at for %s/%s: %w", collection, key, err)
		}
		docs = append(docs, Document{
			Collection: collection,
			Key:        key,
			Data:       json.RawMessage(data),
			Version:    version,
			UpdatedAt:  ts,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s rows: %w", collection, err)
	}
	return docs, nil
}

// escapeLike escapes LIKE wildcards in a literal prefix.
func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}

// formatTime formats a time.Time for SQLite storage.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime parses a time string from SQLite.
func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// Verify SQLite implements Gateway at compile time.
var _ Gateway = (*SQLite)(nil)
