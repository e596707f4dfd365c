// Package litekv is an embedded SQLite implementation of the kv backend
// contract.
//
// It backs the CLI's local mode and integration-style tests: same
// revision semantics as the broker-backed store (per-bucket append-only
// log, strictly increasing revisions, retained history, purge
// truncation), with watch delivery implemented as an in-process fan-out
// after commit. It is not a network store and never reports connectivity
// transitions.
package litekv

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/twinview/twinview/internal/kv"
)

//go:embed schema.sql
var schemaSQL string

var _ kv.Store = (*Store)(nil)

// Store is a SQLite-backed kv.Store.
type Store struct {
	db  *sql.DB
	hub *hub
}

// Open creates or opens a litekv database at the given path.
// Use ":memory:" for an ephemeral store.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// This function is idempotent - safe to call multiple times.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db, hub: newHub()}, nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// Bucket implements kv.Store.
func (s *Store) Bucket(ctx context.Context, name string) (kv.Bucket, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM buckets WHERE name = ?`, name).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("bucket lookup: %w", err)
	}
	if exists == 0 {
		return nil, kv.ErrBucketNotFound
	}
	return &Bucket{store: s, name: name}, nil
}

// CreateBucket implements kv.Store. Idempotent.
func (s *Store) CreateBucket(ctx context.Context, name, description string) (kv.Bucket, error) {
	if name == "" {
		return nil, fmt.Errorf("empty bucket name")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO buckets (name, description, created_at) VALUES (?, ?, ?)
		 ON CONFLICT (name) DO NOTHING`,
		name, description, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("bucket create: %w", err)
	}
	return &Bucket{store: s, name: name}, nil
}

// Close implements kv.Store. Open watchers are closed.
func (s *Store) Close() error {
	s.hub.closeAll()
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// nextRevision returns the bucket's next revision inside a transaction.
func nextRevision(ctx context.Context, tx *sql.Tx, bucket string) (uint64, error) {
	var rev uint64
	err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(revision), 0) + 1 FROM entries WHERE bucket = ?`,
		bucket).Scan(&rev)
	if err != nil {
		return 0, fmt.Errorf("next revision: %w", err)
	}
	return rev, nil
}

// scanEntry reads one entries row into a kv.Entry.
func scanEntry(rows interface {
	Scan(dest ...any) error
}, key string) (kv.Entry, error) {
	var (
		e       kv.Entry
		op      string
		value   []byte
		created string
	)
	e.Key = key
	if err := rows.Scan(&e.Revision, &op, &value, &created); err != nil {
		return kv.Entry{}, err
	}
	e.Operation = kv.Operation(op)
	e.Raw = value
	e.Value = kv.Decode(value)
	if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
		e.Created = ts
	}
	return e, nil
}

// errNoRows reports whether err is the no-rows sentinel.
func errNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
