package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/brunogleite/cro-analyzer-backend/internal/llm"
	"github.com/brunogleite/cro-analyzer-backend/internal/metrics"
	"github.com/brunogleite/cro-analyzer-backend/internal/models"
	"github.com/brunogleite/cro-analyzer-backend/internal/notify"
	"github.com/brunogleite/cro-analyzer-backend/internal/report"
	"github.com/brunogleite/cro-analyzer-backend/internal/repository"
	"github.com/brunogleite/cro-analyzer-backend/internal/scraper"
	"github.com/brunogleite/cro-analyzer-backend/internal/storage"
	"github.com/brunogleite/cro-analyzer-backend/internal/store"
)

// PageScraper fetches a rendered page. Satisfied by both the headless
// browser and the static HTTP fetcher.
type PageScraper interface {
	Scrape(ctx context.Context, url string) (*scraper.PageCapture, error)
}

// AnalysisService runs the scrape, analyze, and report pipeline and
// mediates access to stored analyses.
type AnalysisService struct {
	analyses  *repository.Analyses
	scraper   PageScraper
	analyzer  llm.Analyzer
	renderer  report.Renderer
	artifacts storage.Provider
	publisher notify.Publisher
	logger    *zap.Logger
}

// NewAnalysisService wires the pipeline dependencies.
func NewAnalysisService(
	analyses *repository.Analyses,
	pages PageScraper,
	analyzer llm.Analyzer,
	renderer report.Renderer,
	artifacts storage.Provider,
	publisher notify.Publisher,
	logger *zap.Logger,
) *AnalysisService {
	return &AnalysisService{
		analyses:  analyses,
		scraper:   pages,
		analyzer:  analyzer,
		renderer:  renderer,
		artifacts: artifacts,
		publisher: publisher,
		logger:    logger,
	}
}

// Analyze runs the full pipeline for one URL on behalf of a user. The
// record is created up front so every stage failure leaves a failed row
// behind rather than silence.
func (s *AnalysisService) Analyze(ctx context.Context, user *models.User, rawURL string) (*models.Analysis, error) {
	target, err := validateURL(rawURL)
	if err != nil {
		return nil, err
	}

	rec, err := s.analyses.Create(ctx, user.ID, target)
	if err != nil {
		return nil, fmt.Errorf("create analysis: %w", err)
	}
	log := s.logger.With(zap.Int64("analysis_id", rec.ID), zap.String("url", target))

	if rec, err = s.setStatus(ctx, rec.ID, models.StatusProcessing); err != nil {
		return nil, err
	}

	capture, err := s.runScrape(ctx, rec.ID, target, log)
	if err != nil {
		return nil, s.fail(ctx, rec.ID, "scrape", err, log)
	}

	result, err := s.runLLM(ctx, rec.ID, target, capture, log)
	if err != nil {
		return nil, s.fail(ctx, rec.ID, "analyze", err, log)
	}

	if err := s.runReport(ctx, rec.ID, capture, result, log); err != nil {
		return nil, s.fail(ctx, rec.ID, "report", err, log)
	}

	rec, err = s.setStatus(ctx, rec.ID, models.StatusCompleted)
	if err != nil {
		return nil, err
	}
	metrics.ObserveAnalysis(models.StatusCompleted)
	s.notifyStatus(rec.ID, models.StatusCompleted)
	log.Info("analysis completed",
		zap.Int("word_count", result.WordCount),
		zap.Int("token_count", result.TokenCount))
	return rec, nil
}

func (s *AnalysisService) runScrape(ctx context.Context, id int64, target string, log *zap.Logger) (*scraper.PageCapture, error) {
	start := time.Now()
	capture, err := s.scraper.Scrape(ctx, target)
	metrics.ObserveStage("scrape", time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("scrape %s: %w", target, err)
	}

	meta := models.AnalysisMetadata{
		PageSizeBytes: capture.PageSizeBytes,
		LoadTimeMs:    capture.LoadTimeMs,
	}
	if len(capture.Screenshot) > 0 {
		name := fmt.Sprintf("screenshots/analysis_%d.png", id)
		path, saveErr := s.artifacts.Save(ctx, name, capture.Screenshot)
		if saveErr != nil {
			// The screenshot is illustrative; losing it does not fail the run.
			log.Warn("save screenshot", zap.Error(saveErr))
		} else {
			meta.ScreenshotPath = path
		}
	}

	title := capture.Title
	if _, err := s.analyses.Update(ctx, id, repository.UpdateAnalysisParams{
		Title:    &title,
		Metadata: &meta,
	}); err != nil {
		return nil, fmt.Errorf("record page capture: %w", err)
	}
	return capture, nil
}

func (s *AnalysisService) runLLM(ctx context.Context, id int64, target string, capture *scraper.PageCapture, log *zap.Logger) (*llm.Result, error) {
	start := time.Now()
	result, err := s.analyzer.Analyze(ctx, llm.Input{
		URL:  target,
		Text: capture.Text,
		HTML: capture.HTML,
	})
	metrics.ObserveStage("analyze", time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("analyze content: %w", err)
	}

	meta := models.AnalysisMetadata{
		WordCount:  result.WordCount,
		TokenCount: result.TokenCount,
	}
	if _, err := s.analyses.Update(ctx, id, repository.UpdateAnalysisParams{
		AnalysisText: &result.Analysis,
		Metadata:     &meta,
	}); err != nil {
		return nil, fmt.Errorf("record analysis text: %w", err)
	}
	return result, nil
}

func (s *AnalysisService) runReport(ctx context.Context, id int64, capture *scraper.PageCapture, result *llm.Result, log *zap.Logger) error {
	start := time.Now()
	title := capture.Title
	if title == "" {
		title = capture.URL
	}
	pdf, err := s.renderer.Render(title, capture.URL, result.Analysis)
	metrics.ObserveStage("report", time.Since(start))
	if err != nil {
		return fmt.Errorf("render report: %w", err)
	}

	name := fmt.Sprintf("reports/analysis_%d.pdf", id)
	path, err := s.artifacts.Save(ctx, name, pdf)
	if err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	if _, err := s.analyses.Update(ctx, id, repository.UpdateAnalysisParams{
		PDFPath: &path,
	}); err != nil {
		return fmt.Errorf("record report path: %w", err)
	}
	return nil
}

// fail marks the record failed with the stage error and returns the
// original error for the caller.
func (s *AnalysisService) fail(ctx context.Context, id int64, stage string, cause error, log *zap.Logger) error {
	log.Error("analysis stage failed", zap.String("stage", stage), zap.Error(cause))
	status := models.StatusFailed
	msg := cause.Error()
	if _, err := s.analyses.Update(ctx, id, repository.UpdateAnalysisParams{
		Status:       &status,
		ErrorMessage: &msg,
	}); err != nil {
		log.Error("mark analysis failed", zap.Error(err))
	}
	metrics.ObserveAnalysis(models.StatusFailed)
	s.notifyStatus(id, models.StatusFailed)
	return cause
}

func (s *AnalysisService) setStatus(ctx context.Context, id int64, status string) (*models.Analysis, error) {
	rec, err := s.analyses.Update(ctx, id, repository.UpdateAnalysisParams{Status: &status})
	if err != nil {
		return nil, fmt.Errorf("set status %s: %w", status, err)
	}
	return rec, nil
}

func (s *AnalysisService) notifyStatus(id int64, status string) {
	// Publishing is decoupled from the request lifetime.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.publisher.Publish(ctx, id, status); err != nil {
		s.logger.Warn("publish status", zap.Int64("analysis_id", id), zap.Error(err))
	}
}

// Get returns one analysis; non-admins can only see their own.
func (s *AnalysisService) Get(ctx context.Context, user *models.User, id int64) (*models.Analysis, error) {
	rec, err := s.analyses.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find analysis: %w", err)
	}
	if rec.UserID != user.ID && !user.IsAdmin() {
		return nil, ErrForbidden
	}
	return rec, nil
}

// List returns analyses matching the filter. Non-admins are pinned to
// their own records regardless of the requested filter.
func (s *AnalysisService) List(ctx context.Context, user *models.User, filter repository.AnalysisFilter) ([]*models.Analysis, error) {
	if !user.IsAdmin() {
		filter.UserID = user.ID
	}
	recs, err := s.analyses.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	return recs, nil
}

// Stats aggregates counts and durations; non-admins see only their own.
func (s *AnalysisService) Stats(ctx context.Context, user *models.User) (*models.AnalysisStats, error) {
	var scope int64
	if !user.IsAdmin() {
		scope = user.ID
	}
	stats, err := s.analyses.GetStats(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("analysis stats: %w", err)
	}
	return stats, nil
}

// Delete removes an analysis record; non-admins can only delete their own.
func (s *AnalysisService) Delete(ctx context.Context, user *models.User, id int64) error {
	rec, err := s.analyses.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("find analysis: %w", err)
	}
	if rec.UserID != user.ID && !user.IsAdmin() {
		return ErrForbidden
	}
	if err := s.analyses.Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("delete analysis: %w", err)
	}
	return nil
}

func validateURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: url is required", ErrInvalidInput)
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: url must be absolute http(s)", ErrInvalidInput)
	}
	return u.String(), nil
}
