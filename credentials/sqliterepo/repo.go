// Package sqliterepo persists session credentials in a local SQLite database so a
// signed-in session survives process restarts.
package sqliterepo

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jrsteele09/retail-session/credentials"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const (
	// dirPermissions is the permission mode for the database directory.
	dirPermissions = 0o700

	// filePermissions is the permission mode for the database file.
	filePermissions = 0o600

	// busyTimeoutMS is how long a writer waits for a lock before failing.
	busyTimeoutMS = 5000

	// connectionTimeout bounds the connectivity check in Open.
	connectionTimeout = 5 * time.Second
)

const schema = `CREATE TABLE IF NOT EXISTS credentials (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
)`

var _ credentials.Repo = (*Repo)(nil)

// Repo is a credentials.Repo backed by a single SQLite table.
type Repo struct {
	db      *sql.DB
	nowFunc func() time.Time
}

// Open creates the database file (and its directory) at path and prepares the schema.
func Open(ctx context.Context, path string) (*Repo, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("credential database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), dirPermissions); err != nil {
		return nil, fmt.Errorf("creating credential database directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL&_synchronous=FULL", path, busyTimeoutMS)
	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening credential database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite only supports one writer

	pingCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connecting to credential database: %w", err)
	}

	if err := os.Chmod(path, filePermissions); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("setting credential database permissions: %w", err)
	}

	repo, err := New(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// New wraps an open database and ensures the schema exists.
func New(ctx context.Context, db *sql.DB) (*Repo, error) {
	if db == nil {
		return nil, fmt.Errorf("[sqliterepo.New] db is required")
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("creating credentials table: %w", err)
	}
	return &Repo{db: db, nowFunc: time.Now}, nil
}

// Close closes the underlying database.
func (r *Repo) Close() error {
	return r.db.Close()
}

func (r *Repo) Get(ctx context.Context, keys ...string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}

	rows, err := r.db.QueryContext(ctx, "SELECT key, value FROM credentials WHERE key IN ("+placeholders+")", args...)
	if err != nil {
		return nil, fmt.Errorf("querying credentials: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scanning credential: %w", err)
		}
		out[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating credentials: %w", err)
	}
	return out, nil
}

func (r *Repo) Put(ctx context.Context, values map[string]string) error {
	now := r.nowFunc().Unix()
	return r.inTx(ctx, func(tx *sql.Tx) error {
		for _, k := range sortedKeys(values) {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO credentials (key, value, updated_at) VALUES (?, ?, ?)
				 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
				k, values[k], now)
			if err != nil {
				return fmt.Errorf("writing %s: %w", k, err)
			}
		}
		return nil
	})
}

func (r *Repo) Delete(ctx context.Context, keys ...string) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		for _, k := range keys {
			if _, err := tx.ExecContext(ctx, "DELETE FROM credentials WHERE key = ?", k); err != nil {
				return fmt.Errorf("deleting %s: %w", k, err)
			}
		}
		return nil
	})
}

func (r *Repo) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
