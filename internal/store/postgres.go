package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgxQuerier is the pgxpool.Pool subset the engine needs. pgxmock satisfies
// the same interface, which is how the engine is unit tested.
type pgxQuerier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresEngine is the client/server engine backed by a bounded pgx pool.
type PostgresEngine struct {
	pool pgxQuerier
}

// OpenPostgres connects a pool for the given DSN and verifies it.
// Pool bounds travel in the DSN (pool_max_conns / pool_min_conns).
func OpenPostgres(ctx context.Context, dsn string) (*PostgresEngine, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	eng := &PostgresEngine{pool: pool}
	if err := eng.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return eng, nil
}

// NewPostgresWithPool wraps an existing pool-shaped dependency (pgxmock in tests).
func NewPostgresWithPool(pool pgxQuerier) *PostgresEngine {
	return &PostgresEngine{pool: pool}
}

// Name identifies the engine.
func (e *PostgresEngine) Name() string { return "postgres" }

// Exec runs a mutating statement. Postgres has no last-insert-id; callers
// needing a generated id use QueryRow with RETURNING.
func (e *PostgresEngine) Exec(ctx context.Context, query string, args ...any) (ExecResult, error) {
	tag, err := e.pool.Exec(ctx, Rebind(query), args...)
	if err != nil {
		return ExecResult{}, fmt.Errorf("exec: %w", err)
	}
	return ExecResult{RowsAffected: tag.RowsAffected()}, nil
}

// Query runs a read statement and returns ordered rows.
func (e *PostgresEngine) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	rows, err := e.pool.Query(ctx, Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	return collectPgxRows(rows)
}

// QueryRow returns the first row or ErrNoRows.
func (e *PostgresEngine) QueryRow(ctx context.Context, query string, args ...any) (Row, error) {
	return firstRow(e.Query(ctx, query, args...))
}

// WithTx runs fn inside a transaction; Postgres DDL is transactional, so
// migration steps running here are atomic.
func (e *PostgresEngine) WithTx(ctx context.Context, fn func(tx Engine) error) error {
	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin postgres tx: %w", err)
	}
	if err := fn(&postgresTx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return fmt.Errorf("rollback after %w: %v", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit postgres tx: %w", err)
	}
	return nil
}

// TableExists consults information_schema.
func (e *PostgresEngine) TableExists(ctx context.Context, name string) (bool, error) {
	return pgTableExists(ctx, e, name)
}

// ColumnExists consults information_schema.
func (e *PostgresEngine) ColumnExists(ctx context.Context, table, column string) (bool, error) {
	return pgColumnExists(ctx, e, table, column)
}

// Ping verifies the pool with a round trip.
func (e *PostgresEngine) Ping(ctx context.Context) error {
	if err := e.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close releases the pool.
func (e *PostgresEngine) Close() error {
	e.pool.Close()
	return nil
}

// postgresTx adapts pgx.Tx to the Engine interface for WithTx callbacks.
type postgresTx struct {
	tx pgx.Tx
}

func (t *postgresTx) Name() string { return "postgres" }

func (t *postgresTx) Exec(ctx context.Context, query string, args ...any) (ExecResult, error) {
	tag, err := t.tx.Exec(ctx, Rebind(query), args...)
	if err != nil {
		return ExecResult{}, fmt.Errorf("exec: %w", err)
	}
	return ExecResult{RowsAffected: tag.RowsAffected()}, nil
}

func (t *postgresTx) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	rows, err := t.tx.Query(ctx, Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	return collectPgxRows(rows)
}

func (t *postgresTx) QueryRow(ctx context.Context, query string, args ...any) (Row, error) {
	return firstRow(t.Query(ctx, query, args...))
}

func (t *postgresTx) WithTx(_ context.Context, fn func(tx Engine) error) error {
	return fn(t)
}

func (t *postgresTx) TableExists(ctx context.Context, name string) (bool, error) {
	return pgTableExists(ctx, t, name)
}

func (t *postgresTx) ColumnExists(ctx context.Context, table, column string) (bool, error) {
	return pgColumnExists(ctx, t, table, column)
}

func (t *postgresTx) Ping(context.Context) error { return nil }
func (t *postgresTx) Close() error               { return nil }

func pgTableExists(ctx context.Context, eng Engine, name string) (bool, error) {
	row, err := eng.QueryRow(ctx, `
		SELECT 1 AS present FROM information_schema.tables
		WHERE table_schema = 'public' AND table_name = ?`, name)
	if errors.Is(err, ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return row != nil, nil
}

func pgColumnExists(ctx context.Context, eng Engine, table, column string) (bool, error) {
	row, err := eng.QueryRow(ctx, `
		SELECT 1 AS present FROM information_schema.columns
		WHERE table_schema = 'public' AND table_name = ? AND column_name = ?`, table, column)
	if errors.Is(err, ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return row != nil, nil
}

func collectPgxRows(rows pgx.Rows) ([]Row, error) {
	defer rows.Close()

	var out []Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("row values: %w", err)
		}
		fields := rows.FieldDescriptions()
		row := make(Row, len(fields))
		for i, fd := range fields {
			row[string(fd.Name)] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// Rebind rewrites '?' placeholders to Postgres-style $1..$n, leaving
// quoted literals untouched.
func Rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
