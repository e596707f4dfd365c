package litekv

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/twinview/twinview/internal/kv"
	"github.com/twinview/twinview/internal/match"
)

var _ kv.Bucket = (*Bucket)(nil)

// Bucket is a handle to one litekv bucket.
type Bucket struct {
	store *Store
	name  string
}

// Name implements kv.Bucket.
func (b *Bucket) Name() string { return b.name }

// Get implements kv.Bucket. The live value is the highest-revision row;
// a tombstone there means the key is not found.
func (b *Bucket) Get(ctx context.Context, key string) (kv.Entry, error) {
	row := b.store.db.QueryRowContext(ctx,
		`SELECT revision, operation, value, created_at
		 FROM entries
		 WHERE bucket = ? AND key = ?
		 ORDER BY revision DESC
		 LIMIT 1`,
		b.name, key)

	e, err := scanEntry(row, key)
	if errNoRows(err) {
		return kv.Entry{}, kv.ErrKeyNotFound
	}
	if err != nil {
		return kv.Entry{}, fmt.Errorf("get %q: %w", key, err)
	}
	if !e.Live() {
		return kv.Entry{}, kv.ErrKeyNotFound
	}
	return e, nil
}

// Put implements kv.Bucket. The committed write is fanned out to open
// watchers.
func (b *Bucket) Put(ctx context.Context, key string, value []byte) (uint64, error) {
	return b.append(ctx, key, value, kv.OpPut)
}

// Delete implements kv.Bucket.
func (b *Bucket) Delete(ctx context.Context, key string) (uint64, error) {
	return b.append(ctx, key, nil, kv.OpDelete)
}

// Purge removes a key's retained history and appends a purge marker.
// Not part of the kv.Bucket contract; exposed for the CLI.
func (b *Bucket) Purge(ctx context.Context, key string) (uint64, error) {
	tx, err := b.store.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("purge begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM entries WHERE bucket = ? AND key = ?`, b.name, key); err != nil {
		return 0, fmt.Errorf("purge delete: %w", err)
	}

	rev, e, err := b.insert(ctx, tx, key, nil, kv.OpPurge)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("purge commit: %w", err)
	}
	b.store.hub.publish(b.name, e)
	return rev, nil
}

// List implements kv.Bucket.
func (b *Bucket) List(ctx context.Context, filter string) ([]kv.Entry, error) {
	rows, err := b.store.db.QueryContext(ctx,
		`SELECT e.key, e.revision, e.operation, e.value, e.created_at
		 FROM entries e
		 JOIN (
		     SELECT key, MAX(revision) AS maxrev
		     FROM entries
		     WHERE bucket = ?
		     GROUP BY key
		 ) latest ON e.key = latest.key AND e.revision = latest.maxrev
		 WHERE e.bucket = ? AND e.operation = 'PUT'
		 ORDER BY e.key ASC`,
		b.name, b.name)
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	defer rows.Close()

	var out []kv.Entry
	for rows.Next() {
		var (
			e       kv.Entry
			op      string
			value   []byte
			created string
		)
		if err := rows.Scan(&e.Key, &e.Revision, &op, &value, &created); err != nil {
			return nil, fmt.Errorf("list scan: %w", err)
		}
		if !match.Match(filter, e.Key) {
			continue
		}
		e.Operation = kv.Operation(op)
		e.Raw = value
		e.Value = kv.Decode(value)
		if ts, perr := time.Parse(time.RFC3339Nano, created); perr == nil {
			e.Created = ts
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list iterate: %w", err)
	}
	return out, nil
}

// Watch implements kv.Bucket. Delivery starts with the first write
// committed after the call.
func (b *Bucket) Watch(ctx context.Context, filter string) (kv.Watcher, error) {
	return b.store.hub.subscribe(ctx, b.name, filter), nil
}

// History implements kv.Bucket.
func (b *Bucket) History(ctx context.Context, key string) ([]kv.Entry, error) {
	rows, err := b.store.db.QueryContext(ctx,
		`SELECT revision, operation, value, created_at
		 FROM entries
		 WHERE bucket = ? AND key = ?
		 ORDER BY revision ASC`,
		b.name, key)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	defer rows.Close()

	var out []kv.Entry
	for rows.Next() {
		e, err := scanEntry(rows, key)
		if err != nil {
			return nil, fmt.Errorf("history scan: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history iterate: %w", err)
	}
	return out, nil
}

// append inserts one log row and fans it out after commit.
func (b *Bucket) append(ctx context.Context, key string, value []byte, op kv.Operation) (uint64, error) {
	tx, err := b.store.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("append begin: %w", err)
	}
	defer tx.Rollback()

	rev, e, err := b.insert(ctx, tx, key, value, op)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("append commit: %w", err)
	}
	b.store.hub.publish(b.name, e)
	return rev, nil
}

// insert assigns the next revision and writes one log row within tx.
func (b *Bucket) insert(ctx context.Context, tx *sql.Tx, key string, value []byte, op kv.Operation) (uint64, kv.Entry, error) {
	rev, err := nextRevision(ctx, tx, b.name)
	if err != nil {
		return 0, kv.Entry{}, err
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO entries (bucket, revision, key, operation, value, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		b.name, rev, key, string(op), value, now.Format(time.RFC3339Nano))
	if err != nil {
		return 0, kv.Entry{}, fmt.Errorf("insert entry: %w", err)
	}

	e := kv.Entry{
		Key:       key,
		Raw:       value,
		Value:     kv.Decode(value),
		Revision:  rev,
		Operation: op,
		Created:   now,
	}
	return rev, e, nil
}
