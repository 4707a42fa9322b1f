// Package store provides the relational storage layer behind a single
// polymorphic Engine interface. Two implementations exist: an embedded
// sqlite engine serialized on one connection, and a pooled Postgres engine.
// Callers write queries with '?' placeholders and never branch on the
// concrete engine; placeholder and result-shape differences are normalized
// internally.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/brunogleite/cro-analyzer-backend/internal/config"
)

// ErrNoRows is returned by QueryRow when no row matches.
var ErrNoRows = errors.New("store: no rows in result set")

// ExecResult reports the outcome of a mutating statement. LastInsertID is
// only populated by engines that support it (sqlite); inserts that need a
// generated id portably should use QueryRow with RETURNING.
type ExecResult struct {
	RowsAffected int64
	LastInsertID int64
}

// Engine is the three-operation storage contract shared by both backends,
// plus the introspection and lifecycle primitives the migration runner and
// health probe need.
type Engine interface {
	// Name identifies the engine: "sqlite" or "postgres".
	Name() string

	// Exec runs a mutating statement.
	Exec(ctx context.Context, query string, args ...any) (ExecResult, error)

	// Query runs a read statement and returns ordered rows.
	Query(ctx context.Context, query string, args ...any) ([]Row, error)

	// QueryRow runs a read statement and returns the first row,
	// or ErrNoRows when there is none.
	QueryRow(ctx context.Context, query string, args ...any) (Row, error)

	// WithTx runs fn inside a transaction. The Engine passed to fn executes
	// against that transaction; it is rolled back when fn errors.
	WithTx(ctx context.Context, fn func(tx Engine) error) error

	// TableExists reports whether a table is present in the schema.
	TableExists(ctx context.Context, name string) (bool, error)

	// ColumnExists reports whether a column is present on a table.
	ColumnExists(ctx context.Context, table, column string) (bool, error)

	// Ping verifies the connection with a round trip.
	Ping(ctx context.Context) error

	// Close releases the connection or pool.
	Close() error
}

// Open connects the engine selected by the configuration and verifies the
// connection with a ping. It does not run migrations; see Migrate.
func Open(ctx context.Context, cfg config.DBConfig) (Engine, error) {
	switch cfg.Engine {
	case "postgres":
		eng, err := OpenPostgres(ctx, cfg.Postgres.DSN())
		if err != nil {
			return nil, fmt.Errorf("open postgres engine: %w", err)
		}
		return eng, nil
	default:
		eng, err := OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite engine: %w", err)
		}
		return eng, nil
	}
}
