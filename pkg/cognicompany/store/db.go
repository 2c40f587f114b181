// Package store persists channel configurations, users and tasks in SQLite.
// Every record lives in a named bucket of one key/value table; writes are
// single-row upserts, so each key is updated atomically.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a key has no record.
var ErrNotFound = errors.New("not found")

// DB is the SQLite handle shared by all buckets.
type DB struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path. ":memory:" opens a
// private in-memory database.
func Open(path string) (*DB, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database dir: %w", err)
		}
		dsn = path + "?_busy_timeout=5000&_journal_mode=WAL"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One writer at a time; also keeps ":memory:" on a single connection.
	db.SetMaxOpenConns(1)

	d := &DB{db: db}
	if err := d.init(); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

// Ping checks that the database is reachable.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS kv (
		bucket TEXT NOT NULL,
		key TEXT NOT NULL,
		value BLOB NOT NULL,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (bucket, key)
	);
	`
	if _, err := d.db.Exec(schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// Bucket returns the named key space.
func (d *DB) Bucket(name string) *Bucket {
	return &Bucket{db: d.db, name: name}
}

// Bucket is a key space inside the kv table.
type Bucket struct {
	db   *sql.DB
	name string
}

// Get returns the value stored under key or ErrNotFound.
func (b *Bucket) Get(ctx context.Context, key string) ([]byte, error) {
	var val []byte
	err := b.db.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE bucket = ? AND key = ?`, b.name, key,
	).Scan(&val)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s/%s: %w", b.name, key, err)
	}
	return val, nil
}

// Put stores val under key, replacing any previous value.
func (b *Bucket) Put(ctx context.Context, key string, val []byte) error {
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO kv (bucket, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(bucket, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, b.name, key, val, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("writing %s/%s: %w", b.name, key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (b *Bucket) Delete(ctx context.Context, key string) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM kv WHERE bucket = ? AND key = ?`, b.name, key); err != nil {
		return fmt.Errorf("deleting %s/%s: %w", b.name, key, err)
	}
	return nil
}

// ForEach calls fn for every record in key order. Iteration stops at the
// first error returned by fn.
func (b *Bucket) ForEach(ctx context.Context, fn func(key string, val []byte) error) error {
	rows, err := b.db.QueryContext(ctx, `SELECT key, value FROM kv WHERE bucket = ? ORDER BY key`, b.name)
	if err != nil {
		return fmt.Errorf("scanning %s: %w", b.name, err)
	}
	defer rows.Close()

	// Collect first so fn may use the database while iterating.
	type record struct {
		key string
		val []byte
	}
	var records []record
	for rows.Next() {
		var r record
		if err := rows.Scan(&r.key, &r.val); err != nil {
			return fmt.Errorf("scanning %s: %w", b.name, err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("scanning %s: %w", b.name, err)
	}
	rows.Close()

	for _, r := range records {
		if err := fn(r.key, r.val); err != nil {
			return err
		}
	}
	return nil
}
