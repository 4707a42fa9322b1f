package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brunogleite/cro-analyzer-backend/internal/models"
	"github.com/brunogleite/cro-analyzer-backend/internal/store"
)

func strptr(s string) *string { return &s }

func TestAnalysesCreateStartsPending(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t)
	u := createTestUser(t, NewUsers(eng), "a@example.com")
	analyses := NewAnalyses(eng)

	a, err := analyses.Create(context.Background(), u.ID, "https://example.com/landing")
	require.NoError(t, err)

	require.Equal(t, models.StatusPending, a.Status)
	require.Equal(t, u.ID, a.UserID)
	require.Equal(t, "https://example.com/landing", a.URL)
	require.Equal(t, models.AnalysisMetadata{}, a.Metadata)
	require.False(t, a.CreatedAt.IsZero())
}

func TestAnalysesStatusNeverRegresses(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t)
	u := createTestUser(t, NewUsers(eng), "b@example.com")
	analyses := NewAnalyses(eng)
	ctx := context.Background()

	a, err := analyses.Create(ctx, u.ID, "https://example.com")
	require.NoError(t, err)

	a, err = analyses.Update(ctx, a.ID, UpdateAnalysisParams{Status: strptr(models.StatusProcessing)})
	require.NoError(t, err)
	require.Equal(t, models.StatusProcessing, a.Status)

	// Backwards is rejected.
	_, err = analyses.Update(ctx, a.ID, UpdateAnalysisParams{Status: strptr(models.StatusPending)})
	require.ErrorIs(t, err, ErrInvalidTransition)

	a, err = analyses.Update(ctx, a.ID, UpdateAnalysisParams{Status: strptr(models.StatusCompleted)})
	require.NoError(t, err)

	// Terminal states reject further movement.
	_, err = analyses.Update(ctx, a.ID, UpdateAnalysisParams{Status: strptr(models.StatusFailed)})
	require.ErrorIs(t, err, ErrInvalidTransition)

	// Same-status patch is a no-op, not an error.
	_, err = analyses.Update(ctx, a.ID, UpdateAnalysisParams{Status: strptr(models.StatusCompleted)})
	require.NoError(t, err)
}

func TestAnalysesPendingCannotSkipToCompleted(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t)
	u := createTestUser(t, NewUsers(eng), "c@example.com")
	analyses := NewAnalyses(eng)
	ctx := context.Background()

	a, err := analyses.Create(ctx, u.ID, "https://example.com")
	require.NoError(t, err)

	_, err = analyses.Update(ctx, a.ID, UpdateAnalysisParams{Status: strptr(models.StatusCompleted)})
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestAnalysesMetadataMergesAcrossUpdates(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t)
	u := createTestUser(t, NewUsers(eng), "d@example.com")
	analyses := NewAnalyses(eng)
	ctx := context.Background()

	a, err := analyses.Create(ctx, u.ID, "https://example.com")
	require.NoError(t, err)

	_, err = analyses.Update(ctx, a.ID, UpdateAnalysisParams{
		Metadata: &models.AnalysisMetadata{PageSizeBytes: 4096, LoadTimeMs: 1200},
	})
	require.NoError(t, err)

	after, err := analyses.Update(ctx, a.ID, UpdateAnalysisParams{
		Metadata: &models.AnalysisMetadata{WordCount: 300, TokenCount: 1100},
	})
	require.NoError(t, err)

	require.Equal(t, int64(4096), after.Metadata.PageSizeBytes)
	require.Equal(t, int64(1200), after.Metadata.LoadTimeMs)
	require.Equal(t, 300, after.Metadata.WordCount)
	require.Equal(t, 1100, after.Metadata.TokenCount)
}

func TestAnalysesPartialUpdatePreservesFields(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t)
	u := createTestUser(t, NewUsers(eng), "e@example.com")
	analyses := NewAnalyses(eng)
	ctx := context.Background()

	a, err := analyses.Create(ctx, u.ID, "https://example.com")
	require.NoError(t, err)

	_, err = analyses.Update(ctx, a.ID, UpdateAnalysisParams{Title: strptr("Landing Page")})
	require.NoError(t, err)
	after, err := analyses.Update(ctx, a.ID, UpdateAnalysisParams{
		AnalysisText: strptr("Full analysis text."),
	})
	require.NoError(t, err)

	require.Equal(t, "Landing Page", after.Title)
	require.Equal(t, "Full analysis text.", after.AnalysisText)
	require.Equal(t, "https://example.com", after.URL)
}

func TestAnalysesFindFilters(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t)
	users := NewUsers(eng)
	alice := createTestUser(t, users, "alice@example.com")
	bob := createTestUser(t, users, "bob@example.com")
	analyses := NewAnalyses(eng)
	ctx := context.Background()

	_, err := analyses.Create(ctx, alice.ID, "https://alice.example.com/one")
	require.NoError(t, err)
	_, err = analyses.Create(ctx, alice.ID, "https://alice.example.com/two")
	require.NoError(t, err)
	_, err = analyses.Create(ctx, bob.ID, "https://bob.example.com")
	require.NoError(t, err)

	mine, err := analyses.Find(ctx, AnalysisFilter{UserID: alice.ID})
	require.NoError(t, err)
	require.Len(t, mine, 2)

	byURL, err := analyses.Find(ctx, AnalysisFilter{URLContains: "bob.example"})
	require.NoError(t, err)
	require.Len(t, byURL, 1)
	require.Equal(t, bob.ID, byURL[0].UserID)

	pending, err := analyses.Find(ctx, AnalysisFilter{Status: models.StatusPending})
	require.NoError(t, err)
	require.Len(t, pending, 3)

	limited, err := analyses.Find(ctx, AnalysisFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, limited, 2)
}

func TestAnalysesStatsEmptyTableAllZeros(t *testing.T) {
	t.Parallel()

	analyses := NewAnalyses(newTestEngine(t))
	stats, err := analyses.GetStats(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, &models.AnalysisStats{}, stats)
}

func TestAnalysesStatsCountsAndScope(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t)
	users := NewUsers(eng)
	alice := createTestUser(t, users, "alice@example.com")
	bob := createTestUser(t, users, "bob@example.com")
	analyses := NewAnalyses(eng)
	ctx := context.Background()

	a1, err := analyses.Create(ctx, alice.ID, "https://a.example.com")
	require.NoError(t, err)
	_, err = analyses.Update(ctx, a1.ID, UpdateAnalysisParams{Status: strptr(models.StatusProcessing)})
	require.NoError(t, err)
	_, err = analyses.Update(ctx, a1.ID, UpdateAnalysisParams{Status: strptr(models.StatusCompleted)})
	require.NoError(t, err)

	a2, err := analyses.Create(ctx, alice.ID, "https://a.example.com/2")
	require.NoError(t, err)
	_, err = analyses.Update(ctx, a2.ID, UpdateAnalysisParams{Status: strptr(models.StatusFailed)})
	require.NoError(t, err)

	_, err = analyses.Create(ctx, bob.ID, "https://b.example.com")
	require.NoError(t, err)

	all, err := analyses.GetStats(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, int64(3), all.Total)
	require.Equal(t, int64(1), all.Completed)
	require.Equal(t, int64(1), all.Failed)
	require.Equal(t, int64(1), all.Pending)
	require.GreaterOrEqual(t, all.AvgDurationSeconds, 0.0)

	mine, err := analyses.GetStats(ctx, bob.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), mine.Total)
	require.Equal(t, int64(1), mine.Pending)
	require.Equal(t, int64(0), mine.Completed)
}

func TestAnalysesDeleteMissing(t *testing.T) {
	t.Parallel()

	analyses := NewAnalyses(newTestEngine(t))
	require.ErrorIs(t, analyses.Delete(context.Background(), 99), store.ErrNoRows)
}
