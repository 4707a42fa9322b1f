package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/brunogleite/cro-analyzer-backend/internal/llm"
	"github.com/brunogleite/cro-analyzer-backend/internal/models"
	"github.com/brunogleite/cro-analyzer-backend/internal/repository"
	"github.com/brunogleite/cro-analyzer-backend/internal/scraper"
	"github.com/brunogleite/cro-analyzer-backend/internal/store"
)

type fakeScraper struct {
	capture *scraper.PageCapture
	err     error
}

func (f *fakeScraper) Scrape(_ context.Context, url string) (*scraper.PageCapture, error) {
	if f.err != nil {
		return nil, f.err
	}
	c := *f.capture
	c.URL = url
	return &c, nil
}

type fakeAnalyzer struct {
	result *llm.Result
	err    error
}

func (f *fakeAnalyzer) Analyze(context.Context, llm.Input) (*llm.Result, error) {
	return f.result, f.err
}

type fakeRenderer struct {
	err error
}

func (f *fakeRenderer) Render(string, string, string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []byte("%PDF-fake"), nil
}

type fakeStorage struct {
	saved map[string][]byte
	err   error
}

func (f *fakeStorage) Save(_ context.Context, name string, data []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.saved == nil {
		f.saved = map[string][]byte{}
	}
	f.saved[name] = data
	return "stored/" + name, nil
}

func (f *fakeStorage) Close() error { return nil }

type fakePublisher struct {
	published []string
}

func (f *fakePublisher) Publish(_ context.Context, _ int64, status string) error {
	f.published = append(f.published, status)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

type analysisFixture struct {
	svc       *AnalysisService
	repo      *repository.Analyses
	scraper   *fakeScraper
	analyzer  *fakeAnalyzer
	renderer  *fakeRenderer
	storage   *fakeStorage
	publisher *fakePublisher
	user      *models.User
	admin     *models.User
}

func newAnalysisFixture(t *testing.T) *analysisFixture {
	t.Helper()
	ctx := context.Background()
	eng, err := store.OpenSQLite(ctx, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	require.NoError(t, store.Migrate(ctx, eng, zap.NewNop()))

	users := repository.NewUsers(eng)
	user, err := users.Create(ctx, repository.CreateUserParams{
		Email: "owner@example.com", Password: "long-enough-pass",
	})
	require.NoError(t, err)
	admin, err := users.Create(ctx, repository.CreateUserParams{
		Email: "admin@example.com", Password: "long-enough-pass", Role: models.RoleAdmin,
	})
	require.NoError(t, err)

	f := &analysisFixture{
		repo: repository.NewAnalyses(eng),
		scraper: &fakeScraper{capture: &scraper.PageCapture{
			Title:         "Landing Page",
			HTML:          "<html><body>Buy now</body></html>",
			Text:          "Buy now",
			Screenshot:    []byte{0x89, 0x50, 0x4e, 0x47},
			PageSizeBytes: 1024,
			LoadTimeMs:    800,
		}},
		analyzer: &fakeAnalyzer{result: &llm.Result{
			Analysis:   "The CTA needs to move above the fold.",
			WordCount:  2,
			TokenCount: 150,
		}},
		renderer:  &fakeRenderer{},
		storage:   &fakeStorage{},
		publisher: &fakePublisher{},
		user:      user,
		admin:     admin,
	}
	f.svc = NewAnalysisService(
		f.repo, f.scraper, f.analyzer, f.renderer, f.storage, f.publisher, zap.NewNop())
	return f
}

func TestAnalyzeHappyPath(t *testing.T) {
	t.Parallel()

	f := newAnalysisFixture(t)
	ctx := context.Background()

	rec, err := f.svc.Analyze(ctx, f.user, "https://example.com/landing")
	require.NoError(t, err)

	require.Equal(t, models.StatusCompleted, rec.Status)
	require.Equal(t, f.user.ID, rec.UserID)
	require.Equal(t, "Landing Page", rec.Title)
	require.Equal(t, "The CTA needs to move above the fold.", rec.AnalysisText)
	require.Contains(t, rec.PDFPath, "reports/analysis_")
	require.Empty(t, rec.ErrorMessage)

	require.Equal(t, 2, rec.Metadata.WordCount)
	require.Equal(t, 150, rec.Metadata.TokenCount)
	require.Equal(t, int64(1024), rec.Metadata.PageSizeBytes)
	require.Equal(t, int64(800), rec.Metadata.LoadTimeMs)
	require.Contains(t, rec.Metadata.ScreenshotPath, "screenshots/analysis_")

	require.Len(t, f.storage.saved, 2)
	require.Equal(t, []string{models.StatusCompleted}, f.publisher.published)
}

func TestAnalyzeInvalidURL(t *testing.T) {
	t.Parallel()

	f := newAnalysisFixture(t)
	ctx := context.Background()

	for _, raw := range []string{"", "   ", "ftp://example.com", "example.com", "https://"} {
		_, err := f.svc.Analyze(ctx, f.user, raw)
		require.ErrorIs(t, err, ErrInvalidInput, "url %q", raw)
	}

	// No record is created for rejected input.
	recs, err := f.repo.Find(ctx, repository.AnalysisFilter{})
	require.NoError(t, err)
	require.Empty(t, recs)
}

func TestAnalyzeScrapeFailureMarksFailed(t *testing.T) {
	t.Parallel()

	f := newAnalysisFixture(t)
	f.scraper.err = errors.New("net::ERR_NAME_NOT_RESOLVED")
	ctx := context.Background()

	_, err := f.svc.Analyze(ctx, f.user, "https://broken.example.com")
	require.Error(t, err)

	recs, err := f.repo.Find(ctx, repository.AnalysisFilter{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, models.StatusFailed, recs[0].Status)
	require.Contains(t, recs[0].ErrorMessage, "ERR_NAME_NOT_RESOLVED")
	require.Equal(t, []string{models.StatusFailed}, f.publisher.published)
}

func TestAnalyzeLLMFailureMarksFailed(t *testing.T) {
	t.Parallel()

	f := newAnalysisFixture(t)
	f.analyzer.err = errors.New("rate limited")
	ctx := context.Background()

	_, err := f.svc.Analyze(ctx, f.user, "https://example.com")
	require.Error(t, err)

	recs, err := f.repo.Find(ctx, repository.AnalysisFilter{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, models.StatusFailed, recs[0].Status)
	// The scrape already landed before the failure.
	require.Equal(t, "Landing Page", recs[0].Title)
	require.Equal(t, int64(1024), recs[0].Metadata.PageSizeBytes)
}

func TestAnalyzeReportFailureMarksFailed(t *testing.T) {
	t.Parallel()

	f := newAnalysisFixture(t)
	f.renderer.err = errors.New("render exploded")
	ctx := context.Background()

	_, err := f.svc.Analyze(ctx, f.user, "https://example.com")
	require.Error(t, err)

	recs, err := f.repo.Find(ctx, repository.AnalysisFilter{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, models.StatusFailed, recs[0].Status)
	require.Equal(t, "The CTA needs to move above the fold.", recs[0].AnalysisText)
}

func TestGetEnforcesOwnership(t *testing.T) {
	t.Parallel()

	f := newAnalysisFixture(t)
	ctx := context.Background()

	rec, err := f.svc.Analyze(ctx, f.user, "https://example.com")
	require.NoError(t, err)

	other := &models.User{ID: 999, Role: models.RoleUser}
	_, err = f.svc.Get(ctx, other, rec.ID)
	require.ErrorIs(t, err, ErrForbidden)

	// Admins see everything.
	got, err := f.svc.Get(ctx, f.admin, rec.ID)
	require.NoError(t, err)
	require.Equal(t, rec.ID, got.ID)

	_, err = f.svc.Get(ctx, f.user, 12345)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListPinsNonAdminsToOwnRecords(t *testing.T) {
	t.Parallel()

	f := newAnalysisFixture(t)
	ctx := context.Background()

	_, err := f.svc.Analyze(ctx, f.user, "https://example.com/mine")
	require.NoError(t, err)
	_, err = f.svc.Analyze(ctx, f.admin, "https://example.com/admins")
	require.NoError(t, err)

	// A non-admin asking for someone else's records still gets their own.
	mine, err := f.svc.List(ctx, f.user, repository.AnalysisFilter{UserID: f.admin.ID})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	require.Equal(t, f.user.ID, mine[0].UserID)

	all, err := f.svc.List(ctx, f.admin, repository.AnalysisFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestStatsScopedByRole(t *testing.T) {
	t.Parallel()

	f := newAnalysisFixture(t)
	ctx := context.Background()

	_, err := f.svc.Analyze(ctx, f.user, "https://example.com/one")
	require.NoError(t, err)
	_, err = f.svc.Analyze(ctx, f.admin, "https://example.com/two")
	require.NoError(t, err)

	mine, err := f.svc.Stats(ctx, f.user)
	require.NoError(t, err)
	require.Equal(t, int64(1), mine.Total)

	all, err := f.svc.Stats(ctx, f.admin)
	require.NoError(t, err)
	require.Equal(t, int64(2), all.Total)
}

func TestDeleteEnforcesOwnership(t *testing.T) {
	t.Parallel()

	f := newAnalysisFixture(t)
	ctx := context.Background()

	rec, err := f.svc.Analyze(ctx, f.user, "https://example.com")
	require.NoError(t, err)

	other := &models.User{ID: 999, Role: models.RoleUser}
	require.ErrorIs(t, f.svc.Delete(ctx, other, rec.ID), ErrForbidden)
	require.NoError(t, f.svc.Delete(ctx, f.user, rec.ID))
	require.ErrorIs(t, f.svc.Delete(ctx, f.user, rec.ID), ErrNotFound)
}
