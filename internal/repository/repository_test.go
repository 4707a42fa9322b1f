package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/brunogleite/cro-analyzer-backend/internal/models"
	"github.com/brunogleite/cro-analyzer-backend/internal/store"
)

func newTestEngine(t *testing.T) store.Engine {
	t.Helper()
	ctx := context.Background()
	eng, err := store.OpenSQLite(ctx, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	require.NoError(t, store.Migrate(ctx, eng, zap.NewNop()))
	return eng
}

func createTestUser(t *testing.T, users *Users, email string) *models.User {
	t.Helper()
	u, err := users.Create(context.Background(), CreateUserParams{
		Email:    email,
		Password: "correct-horse",
	})
	require.NoError(t, err)
	return u
}
