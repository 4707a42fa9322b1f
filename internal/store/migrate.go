package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Migration is one versioned schema change. Run receives an Engine bound to
// the transaction for that version where the engine supports transactional
// DDL (both sqlite and Postgres do).
type Migration struct {
	Version int
	Name    string
	Run     func(ctx context.Context, eng Engine) error
}

// Migrations is the ordered schema bring-up list. Every step is idempotent,
// so re-running the full list against an already-migrated database is a no-op.
var Migrations = []Migration{
	{Version: 1, Name: "create_users", Run: migrateUsers},
	{Version: 2, Name: "create_analyses", Run: migrateAnalyses},
	{Version: 3, Name: "analyses_ownership", Run: migrateAnalysesOwnership},
}

// Migrate applies all unapplied migrations in order, one transaction per
// version. Any failure aborts startup; nothing later is attempted.
func Migrate(ctx context.Context, eng Engine, logger *zap.Logger) error {
	if err := ensureMigrationsTable(ctx, eng); err != nil {
		return err
	}
	applied, err := appliedVersions(ctx, eng)
	if err != nil {
		return err
	}
	for _, m := range Migrations {
		if applied[m.Version] {
			continue
		}
		logger.Info("applying migration",
			zap.Int("version", m.Version), zap.String("name", m.Name))
		err := eng.WithTx(ctx, func(tx Engine) error {
			if err := m.Run(ctx, tx); err != nil {
				return err
			}
			_, err := tx.Exec(ctx,
				`INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)`,
				m.Version, m.Name, time.Now().UTC())
			return err
		})
		if err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
		}
	}
	return nil
}

func ensureMigrationsTable(ctx context.Context, eng Engine) error {
	_, err := eng.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	return nil
}

func appliedVersions(ctx context.Context, eng Engine) (map[int]bool, error) {
	rows, err := eng.Query(ctx, `SELECT version FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	applied := make(map[int]bool, len(rows))
	for _, r := range rows {
		applied[int(r.Int64("version"))] = true
	}
	return applied, nil
}

func migrateUsers(ctx context.Context, eng Engine) error {
	var ddl string
	if eng.Name() == "postgres" {
		ddl = `
			CREATE TABLE IF NOT EXISTS users (
				id BIGSERIAL PRIMARY KEY,
				email TEXT NOT NULL UNIQUE,
				password_hash TEXT NOT NULL,
				first_name TEXT NOT NULL DEFAULT '',
				last_name TEXT NOT NULL DEFAULT '',
				role TEXT NOT NULL DEFAULT 'user',
				is_active BOOLEAN NOT NULL DEFAULT TRUE,
				last_login_at TIMESTAMPTZ,
				created_at TIMESTAMPTZ NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL
			)`
	} else {
		ddl = `
			CREATE TABLE IF NOT EXISTS users (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				email TEXT NOT NULL UNIQUE,
				password_hash TEXT NOT NULL,
				first_name TEXT NOT NULL DEFAULT '',
				last_name TEXT NOT NULL DEFAULT '',
				role TEXT NOT NULL DEFAULT 'user',
				is_active BOOLEAN NOT NULL DEFAULT 1,
				last_login_at DATETIME,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL
			)`
	}
	if _, err := eng.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create users: %w", err)
	}
	for _, idx := range []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users (email)`,
		`CREATE INDEX IF NOT EXISTS idx_users_role ON users (role)`,
		`CREATE INDEX IF NOT EXISTS idx_users_active ON users (is_active)`,
	} {
		if _, err := eng.Exec(ctx, idx); err != nil {
			return fmt.Errorf("create users index: %w", err)
		}
	}
	return nil
}

func analysesDDL(engine string) string {
	if engine == "postgres" {
		return `
			CREATE TABLE IF NOT EXISTS analyses (
				id BIGSERIAL PRIMARY KEY,
				user_id BIGINT NOT NULL REFERENCES users (id) ON DELETE CASCADE,
				url TEXT NOT NULL,
				title TEXT,
				analysis_text TEXT NOT NULL DEFAULT '',
				pdf_path TEXT,
				metadata TEXT NOT NULL DEFAULT '{}',
				status TEXT NOT NULL DEFAULT 'pending',
				error_message TEXT,
				created_at TIMESTAMPTZ NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL
			)`
	}
	return `
		CREATE TABLE IF NOT EXISTS analyses (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL REFERENCES users (id) ON DELETE CASCADE,
			url TEXT NOT NULL,
			title TEXT,
			analysis_text TEXT NOT NULL DEFAULT '',
			pdf_path TEXT,
			metadata TEXT NOT NULL DEFAULT '{}',
			status TEXT NOT NULL DEFAULT 'pending',
			error_message TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`
}

func migrateAnalyses(ctx context.Context, eng Engine) error {
	// IF NOT EXISTS keeps a pre-ownership legacy table untouched here;
	// version 3 brings it up to shape.
	if _, err := eng.Exec(ctx, analysesDDL(eng.Name())); err != nil {
		return fmt.Errorf("create analyses: %w", err)
	}
	for _, idx := range []string{
		`CREATE INDEX IF NOT EXISTS idx_analyses_status ON analyses (status)`,
		`CREATE INDEX IF NOT EXISTS idx_analyses_created_at ON analyses (created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_analyses_url ON analyses (url)`,
	} {
		if _, err := eng.Exec(ctx, idx); err != nil {
			return fmt.Errorf("create analyses index: %w", err)
		}
	}
	return nil
}

// migrateAnalysesOwnership adds the user_id ownership column to a legacy
// analyses table. Pre-existing rows are assigned to the first user by
// creation order, or to a freshly synthesized admin when no user exists.
// The embedded engine rewrites the table; Postgres alters it in place.
func migrateAnalysesOwnership(ctx context.Context, eng Engine) error {
	hasColumn, err := eng.ColumnExists(ctx, "analyses", "user_id")
	if err != nil {
		return err
	}
	if !hasColumn {
		ownerID, err := defaultOwnerID(ctx, eng)
		if err != nil {
			return err
		}
		if eng.Name() == "postgres" {
			err = addOwnershipInPlace(ctx, eng, ownerID)
		} else {
			err = rewriteWithOwnership(ctx, eng, ownerID)
		}
		if err != nil {
			return err
		}
	}
	if _, err := eng.Exec(ctx,
		`CREATE INDEX IF NOT EXISTS idx_analyses_user_id ON analyses (user_id)`); err != nil {
		return fmt.Errorf("create ownership index: %w", err)
	}
	return nil
}

func defaultOwnerID(ctx context.Context, eng Engine) (int64, error) {
	row, err := eng.QueryRow(ctx,
		`SELECT id FROM users ORDER BY created_at ASC, id ASC LIMIT 1`)
	if err == nil {
		return row.Int64("id"), nil
	}
	if !errors.Is(err, ErrNoRows) {
		return 0, fmt.Errorf("find default owner: %w", err)
	}
	return synthesizeAdmin(ctx, eng)
}

// synthesizeAdmin bootstraps an admin account to own orphaned rows. The
// password is random and unrecoverable; an operator resets it out of band.
func synthesizeAdmin(ctx context.Context, eng Engine) (int64, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return 0, fmt.Errorf("generate admin password: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(hex.EncodeToString(buf)), bcrypt.DefaultCost)
	if err != nil {
		return 0, fmt.Errorf("hash admin password: %w", err)
	}
	now := time.Now().UTC()
	row, err := eng.QueryRow(ctx, `
		INSERT INTO users (email, password_hash, first_name, last_name, role, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		"admin@localhost", string(hash), "Default", "Admin", "admin", true, now, now)
	if err != nil {
		return 0, fmt.Errorf("insert default admin: %w", err)
	}
	return row.Int64("id"), nil
}

func addOwnershipInPlace(ctx context.Context, eng Engine, ownerID int64) error {
	steps := []struct {
		sql  string
		args []any
	}{
		{sql: `ALTER TABLE analyses ADD COLUMN user_id BIGINT`},
		{sql: `UPDATE analyses SET user_id = ?`, args: []any{ownerID}},
		{sql: `ALTER TABLE analyses ALTER COLUMN user_id SET NOT NULL`},
		{sql: `ALTER TABLE analyses ADD CONSTRAINT fk_analyses_user
			FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE`},
	}
	for _, s := range steps {
		if _, err := eng.Exec(ctx, s.sql, s.args...); err != nil {
			return fmt.Errorf("ownership alter: %w", err)
		}
	}
	return nil
}

// rewriteWithOwnership exports every legacy row, recreates the table with
// the ownership column and foreign key, then reinserts the rows assigned to
// the default owner. It runs inside the per-version transaction, so an
// interruption rolls back rather than losing the exported rows.
func rewriteWithOwnership(ctx context.Context, eng Engine, ownerID int64) error {
	rows, err := eng.Query(ctx, `SELECT * FROM analyses ORDER BY id`)
	if err != nil {
		return fmt.Errorf("export legacy analyses: %w", err)
	}
	if _, err := eng.Exec(ctx, `DROP TABLE analyses`); err != nil {
		return fmt.Errorf("drop legacy analyses: %w", err)
	}
	if _, err := eng.Exec(ctx, analysesDDL(eng.Name())); err != nil {
		return fmt.Errorf("recreate analyses: %w", err)
	}
	if err := migrateAnalyses(ctx, eng); err != nil {
		return err
	}
	now := time.Now().UTC()
	for _, r := range rows {
		createdAt := r.Time("created_at")
		if createdAt.IsZero() {
			createdAt = now
		}
		updatedAt := r.Time("updated_at")
		if updatedAt.IsZero() {
			updatedAt = createdAt
		}
		metadata := r.String("metadata")
		if metadata == "" {
			metadata = "{}"
		}
		status := r.String("status")
		if status == "" {
			status = "pending"
		}
		// Nullable columns pass through raw so a legacy NULL stays NULL
		// instead of collapsing to the empty string.
		_, err := eng.Exec(ctx, `
			INSERT INTO analyses (id, user_id, url, title, analysis_text, pdf_path, metadata, status, error_message, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.Int64("id"), ownerID, r.String("url"), r["title"],
			r.String("analysis_text"), r["pdf_path"], metadata, status,
			r["error_message"], createdAt, updatedAt)
		if err != nil {
			return fmt.Errorf("reinsert analysis %d: %w", r.Int64("id"), err)
		}
	}
	return nil
}
