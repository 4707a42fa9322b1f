package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3" // sqlite driver
)

// SQLiteEngine is the embedded-file engine. All access is serialized through
// a single connection; durability and isolation are delegated to sqlite.
type SQLiteEngine struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database file at path, enables
// foreign keys, and verifies the connection.
func OpenSQLite(ctx context.Context, path string) (*SQLiteEngine, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	eng := &SQLiteEngine{db: db}
	if err := eng.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return eng, nil
}

// NewSQLiteWithDB wraps an existing database handle. Used by tests to drive
// the engine with sqlmock or an in-memory database.
func NewSQLiteWithDB(db *sql.DB) *SQLiteEngine {
	return &SQLiteEngine{db: db}
}

// Name identifies the engine.
func (e *SQLiteEngine) Name() string { return "sqlite" }

// Exec runs a mutating statement.
func (e *SQLiteEngine) Exec(ctx context.Context, query string, args ...any) (ExecResult, error) {
	return sqlExec(ctx, e.db, query, args...)
}

// Query runs a read statement and returns ordered rows.
func (e *SQLiteEngine) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	return sqlQuery(ctx, e.db, query, args...)
}

// QueryRow returns the first row or ErrNoRows.
func (e *SQLiteEngine) QueryRow(ctx context.Context, query string, args ...any) (Row, error) {
	return firstRow(sqlQuery(ctx, e.db, query, args...))
}

// WithTx runs fn inside a transaction. Sqlite DDL participates in
// transactions, so migration steps running here are atomic.
func (e *SQLiteEngine) WithTx(ctx context.Context, fn func(tx Engine) error) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin sqlite tx: %w", err)
	}
	if err := fn(&sqliteTx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback after %w: %v", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit sqlite tx: %w", err)
	}
	return nil
}

// TableExists checks sqlite_master for the table.
func (e *SQLiteEngine) TableExists(ctx context.Context, name string) (bool, error) {
	row, err := e.QueryRow(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, name)
	if errors.Is(err, ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return row != nil, nil
}

// ColumnExists inspects the table via PRAGMA table_info.
func (e *SQLiteEngine) ColumnExists(ctx context.Context, table, column string) (bool, error) {
	rows, err := e.Query(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	for _, r := range rows {
		if r.String("name") == column {
			return true, nil
		}
	}
	return false, nil
}

// Ping verifies the connection with a round trip.
func (e *SQLiteEngine) Ping(ctx context.Context) error {
	if err := e.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}
	return nil
}

// Close releases the connection.
func (e *SQLiteEngine) Close() error {
	if err := e.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}

// sqliteTx adapts *sql.Tx to the Engine interface for WithTx callbacks.
type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) Name() string { return "sqlite" }

func (t *sqliteTx) Exec(ctx context.Context, query string, args ...any) (ExecResult, error) {
	return sqlExec(ctx, t.tx, query, args...)
}

func (t *sqliteTx) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	return sqlQuery(ctx, t.tx, query, args...)
}

func (t *sqliteTx) QueryRow(ctx context.Context, query string, args ...any) (Row, error) {
	return firstRow(sqlQuery(ctx, t.tx, query, args...))
}

// WithTx on an open transaction just runs fn in the same transaction;
// sqlite has no savepoint support here.
func (t *sqliteTx) WithTx(_ context.Context, fn func(tx Engine) error) error {
	return fn(t)
}

func (t *sqliteTx) TableExists(ctx context.Context, name string) (bool, error) {
	row, err := t.QueryRow(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, name)
	if errors.Is(err, ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return row != nil, nil
}

func (t *sqliteTx) ColumnExists(ctx context.Context, table, column string) (bool, error) {
	rows, err := t.Query(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	for _, r := range rows {
		if r.String("name") == column {
			return true, nil
		}
	}
	return false, nil
}

func (t *sqliteTx) Ping(context.Context) error { return nil }
func (t *sqliteTx) Close() error               { return nil }

// sqlRunner is the database/sql subset shared by *sql.DB and *sql.Tx.
type sqlRunner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func sqlExec(ctx context.Context, run sqlRunner, query string, args ...any) (ExecResult, error) {
	res, err := run.ExecContext(ctx, query, args...)
	if err != nil {
		return ExecResult{}, fmt.Errorf("exec: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return ExecResult{}, fmt.Errorf("rows affected: %w", err)
	}
	// LastInsertId is best effort; not every statement generates one.
	lastID, _ := res.LastInsertId()
	return ExecResult{RowsAffected: affected, LastInsertID: lastID}, nil
}

func sqlQuery(ctx context.Context, run sqlRunner, query string, args ...any) ([]Row, error) {
	rows, err := run.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}

	var out []Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		row := make(Row, len(cols))
		for i, col := range cols {
			row[col] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

func firstRow(rows []Row, err error) (Row, error) {
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNoRows
	}
	return rows[0], nil
}
