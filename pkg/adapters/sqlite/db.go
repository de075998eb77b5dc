// Package sqlite stores tradeflow documents in a single SQLite file.
// Leagues and workflows share one table keyed by (namespace, id).
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	namespace  TEXT    NOT NULL,
	id         TEXT    NOT NULL,
	body       BLOB    NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (namespace, id)
);
`

// DB is an open SQLite database shared by the namespaced stores.
type DB struct {
	sqlDB *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
// The special path ":memory:" opens a private in-memory database.
func Open(ctx context.Context, path string) (*DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := ":memory:"
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	}

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if path == ":memory:" {
		// Each connection to :memory: is a fresh database.
		sqlDB.SetMaxOpenConns(1)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.ExecContext(ctx, schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &DB{sqlDB: sqlDB}, nil
}

// Close releases the SQLite connection.
func (d *DB) Close() error {
	if d == nil || d.sqlDB == nil {
		return nil
	}
	return d.sqlDB.Close()
}
