// Package repository implements data access for users and analyses on top
// of the store.Engine contract. Queries use '?' placeholders and never
// branch on the underlying engine.
package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/brunogleite/cro-analyzer-backend/internal/models"
	"github.com/brunogleite/cro-analyzer-backend/internal/store"
)

// bcryptCost is the fixed cost factor for password hashing.
const bcryptCost = 12

const userColumns = `id, email, password_hash, first_name, last_name, role, is_active, last_login_at, created_at, updated_at`

// Users persists user accounts.
type Users struct {
	eng store.Engine
}

// NewUsers constructs a Users repository bound to the engine.
func NewUsers(eng store.Engine) *Users {
	return &Users{eng: eng}
}

// CreateUserParams carries the fields for a new account.
type CreateUserParams struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      string
}

// Create inserts a new user with a freshly hashed password. Emails are
// normalized to lowercase; a duplicate surfaces as the engine's unique
// violation, which callers detect with store.IsUniqueViolation.
func (r *Users) Create(ctx context.Context, p CreateUserParams) (*models.User, error) {
	if p.Role == "" {
		p.Role = models.RoleUser
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(p.Password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	email := strings.ToLower(strings.TrimSpace(p.Email))
	now := time.Now().UTC()
	row, err := r.eng.QueryRow(ctx, `
		INSERT INTO users (email, password_hash, first_name, last_name, role, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING `+userColumns,
		email, string(hash), p.FirstName, p.LastName, p.Role, true, now, now)
	if err != nil {
		return nil, err
	}
	return scanUser(row), nil
}

// FindByID fetches one user; store.ErrNoRows when absent.
func (r *Users) FindByID(ctx context.Context, id int64) (*models.User, error) {
	row, err := r.eng.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	return scanUser(row), nil
}

// FindByEmail fetches one user by normalized email; store.ErrNoRows when absent.
func (r *Users) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	row, err := r.eng.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`,
		strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, err
	}
	return scanUser(row), nil
}

// UpdateLastLogin stamps the login and updated timestamps.
func (r *Users) UpdateLastLogin(ctx context.Context, id int64) error {
	now := time.Now().UTC()
	_, err := r.eng.Exec(ctx,
		`UPDATE users SET last_login_at = ?, updated_at = ? WHERE id = ?`, now, now, id)
	return err
}

// ChangePassword rehashes and stores a new password.
func (r *Users) ChangePassword(ctx context.Context, id int64, newPassword string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	_, err = r.eng.Exec(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		string(hash), time.Now().UTC(), id)
	return err
}

// VerifyPassword checks a candidate password against the stored hash.
// bcrypt's comparison is constant time.
func (r *Users) VerifyPassword(user *models.User, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) == nil
}

// UpdateUserParams is a partial patch; nil fields keep their prior values.
type UpdateUserParams struct {
	Email     *string
	FirstName *string
	LastName  *string
	Role      *string
	IsActive  *bool
}

// Update rewrites only the supplied fields and stamps updated_at.
func (r *Users) Update(ctx context.Context, id int64, p UpdateUserParams) (*models.User, error) {
	var (
		sets []string
		args []any
	)
	if p.Email != nil {
		sets = append(sets, "email = ?")
		args = append(args, strings.ToLower(strings.TrimSpace(*p.Email)))
	}
	if p.FirstName != nil {
		sets = append(sets, "first_name = ?")
		args = append(args, *p.FirstName)
	}
	if p.LastName != nil {
		sets = append(sets, "last_name = ?")
		args = append(args, *p.LastName)
	}
	if p.Role != nil {
		sets = append(sets, "role = ?")
		args = append(args, *p.Role)
	}
	if p.IsActive != nil {
		sets = append(sets, "is_active = ?")
		args = append(args, *p.IsActive)
	}
	if len(sets) == 0 {
		return r.FindByID(ctx, id)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC(), id)
	_, err := r.eng.Exec(ctx,
		`UPDATE users SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return nil, err
	}
	return r.FindByID(ctx, id)
}

// UserFilter narrows Find; zero values mean "no predicate".
type UserFilter struct {
	Role          string
	IsActive      *bool
	EmailContains string
	Limit         int
	Offset        int
}

// Find lists users newest-created-first.
func (r *Users) Find(ctx context.Context, f UserFilter) ([]*models.User, error) {
	var (
		where []string
		args  []any
	)
	if f.Role != "" {
		where = append(where, "role = ?")
		args = append(args, f.Role)
	}
	if f.IsActive != nil {
		where = append(where, "is_active = ?")
		args = append(args, *f.IsActive)
	}
	if f.EmailContains != "" {
		where = append(where, "email LIKE ?")
		args = append(args, "%"+strings.ToLower(f.EmailContains)+"%")
	}
	query := `SELECT ` + userColumns + ` FROM users`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
		if f.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, f.Offset)
		}
	}
	rows, err := r.eng.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	users := make([]*models.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, scanUser(row))
	}
	return users, nil
}

// Delete removes a user; analyses cascade via the foreign key.
func (r *Users) Delete(ctx context.Context, id int64) error {
	res, err := r.eng.Exec(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if res.RowsAffected == 0 {
		return store.ErrNoRows
	}
	return nil
}

func scanUser(row store.Row) *models.User {
	return &models.User{
		ID:           row.Int64("id"),
		Email:        row.String("email"),
		PasswordHash: row.String("password_hash"),
		FirstName:    row.String("first_name"),
		LastName:     row.String("last_name"),
		Role:         row.String("role"),
		IsActive:     row.Bool("is_active"),
		LastLoginAt:  row.TimePtr("last_login_at"),
		CreatedAt:    row.Time("created_at"),
		UpdatedAt:    row.Time("updated_at"),
	}
}
