package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brunogleite/cro-analyzer-backend/internal/models"
	"github.com/brunogleite/cro-analyzer-backend/internal/store"
)

func TestUsersCreateNormalizesEmailAndHashes(t *testing.T) {
	t.Parallel()

	users := NewUsers(newTestEngine(t))
	u, err := users.Create(context.Background(), CreateUserParams{
		Email:    "  Alice@Example.COM ",
		Password: "correct-horse",
	})
	require.NoError(t, err)

	require.Equal(t, "alice@example.com", u.Email)
	require.Equal(t, models.RoleUser, u.Role)
	require.True(t, u.IsActive)
	require.Nil(t, u.LastLoginAt)
	require.NotEqual(t, "correct-horse", u.PasswordHash)
	require.True(t, users.VerifyPassword(u, "correct-horse"))
	require.False(t, users.VerifyPassword(u, "wrong"))
}

func TestUsersCreateDuplicateEmailIsUniqueViolation(t *testing.T) {
	t.Parallel()

	users := NewUsers(newTestEngine(t))
	createTestUser(t, users, "dup@example.com")

	_, err := users.Create(context.Background(), CreateUserParams{
		Email:    "DUP@example.com",
		Password: "another-pass",
	})
	require.Error(t, err)
	require.True(t, store.IsUniqueViolation(err))
}

func TestUsersFindByEmailCaseInsensitive(t *testing.T) {
	t.Parallel()

	users := NewUsers(newTestEngine(t))
	created := createTestUser(t, users, "bob@example.com")

	found, err := users.FindByEmail(context.Background(), "BOB@Example.com")
	require.NoError(t, err)
	require.Equal(t, created.ID, found.ID)

	_, err = users.FindByEmail(context.Background(), "nobody@example.com")
	require.ErrorIs(t, err, store.ErrNoRows)
}

func TestUsersUpdateLastLogin(t *testing.T) {
	t.Parallel()

	users := NewUsers(newTestEngine(t))
	u := createTestUser(t, users, "c@example.com")
	require.Nil(t, u.LastLoginAt)

	require.NoError(t, users.UpdateLastLogin(context.Background(), u.ID))

	after, err := users.FindByID(context.Background(), u.ID)
	require.NoError(t, err)
	require.NotNil(t, after.LastLoginAt)
}

func TestUsersPartialUpdatePreservesOtherFields(t *testing.T) {
	t.Parallel()

	users := NewUsers(newTestEngine(t))
	u, err := users.Create(context.Background(), CreateUserParams{
		Email:     "d@example.com",
		Password:  "correct-horse",
		FirstName: "Dana",
		LastName:  "Original",
	})
	require.NoError(t, err)

	last := "Updated"
	after, err := users.Update(context.Background(), u.ID, UpdateUserParams{LastName: &last})
	require.NoError(t, err)

	require.Equal(t, "Dana", after.FirstName)
	require.Equal(t, "Updated", after.LastName)
	require.Equal(t, "d@example.com", after.Email)
	require.True(t, after.IsActive)
}

func TestUsersDeactivate(t *testing.T) {
	t.Parallel()

	users := NewUsers(newTestEngine(t))
	u := createTestUser(t, users, "e@example.com")

	inactive := false
	after, err := users.Update(context.Background(), u.ID, UpdateUserParams{IsActive: &inactive})
	require.NoError(t, err)
	require.False(t, after.IsActive)
}

func TestUsersChangePassword(t *testing.T) {
	t.Parallel()

	users := NewUsers(newTestEngine(t))
	u := createTestUser(t, users, "f@example.com")

	require.NoError(t, users.ChangePassword(context.Background(), u.ID, "new-password"))

	after, err := users.FindByID(context.Background(), u.ID)
	require.NoError(t, err)
	require.True(t, users.VerifyPassword(after, "new-password"))
	require.False(t, users.VerifyPassword(after, "correct-horse"))
}

func TestUsersFindFilters(t *testing.T) {
	t.Parallel()

	users := NewUsers(newTestEngine(t))
	createTestUser(t, users, "admin-person@example.com")
	regular := createTestUser(t, users, "regular@example.com")

	role := models.RoleAdmin
	_, err := users.Update(context.Background(), regular.ID, UpdateUserParams{Role: &role})
	require.NoError(t, err)

	admins, err := users.Find(context.Background(), UserFilter{Role: models.RoleAdmin})
	require.NoError(t, err)
	require.Len(t, admins, 1)
	require.Equal(t, regular.ID, admins[0].ID)

	matched, err := users.Find(context.Background(), UserFilter{EmailContains: "admin-person"})
	require.NoError(t, err)
	require.Len(t, matched, 1)

	limited, err := users.Find(context.Background(), UserFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
}

func TestUsersDeleteCascadesAnalyses(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t)
	users := NewUsers(eng)
	analyses := NewAnalyses(eng)

	u := createTestUser(t, users, "g@example.com")
	a, err := analyses.Create(context.Background(), u.ID, "https://example.com")
	require.NoError(t, err)

	require.NoError(t, users.Delete(context.Background(), u.ID))

	_, err = analyses.FindByID(context.Background(), a.ID)
	require.ErrorIs(t, err, store.ErrNoRows)

	require.ErrorIs(t, users.Delete(context.Background(), u.ID), store.ErrNoRows)
}
