package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/brunogleite/cro-analyzer-backend/internal/models"
	"github.com/brunogleite/cro-analyzer-backend/internal/store"
)

// ErrInvalidTransition rejects a status change that would move backwards.
var ErrInvalidTransition = errors.New("repository: invalid status transition")

const analysisColumns = `id, user_id, url, title, analysis_text, pdf_path, metadata, status, error_message, created_at, updated_at`

// Analyses persists analysis records.
type Analyses struct {
	eng store.Engine
}

// NewAnalyses constructs an Analyses repository bound to the engine.
func NewAnalyses(eng store.Engine) *Analyses {
	return &Analyses{eng: eng}
}

// Create inserts a pending record for the given owner and URL.
func (r *Analyses) Create(ctx context.Context, userID int64, url string) (*models.Analysis, error) {
	now := time.Now().UTC()
	row, err := r.eng.QueryRow(ctx, `
		INSERT INTO analyses (user_id, url, metadata, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING `+analysisColumns,
		userID, url, "{}", models.StatusPending, now, now)
	if err != nil {
		return nil, err
	}
	return scanAnalysis(row)
}

// FindByID fetches one record; store.ErrNoRows when absent.
func (r *Analyses) FindByID(ctx context.Context, id int64) (*models.Analysis, error) {
	row, err := r.eng.QueryRow(ctx,
		`SELECT `+analysisColumns+` FROM analyses WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	return scanAnalysis(row)
}

// UpdateAnalysisParams is a partial patch; nil fields keep their prior
// values, and Metadata overlays rather than replaces the stored blob.
type UpdateAnalysisParams struct {
	Title        *string
	AnalysisText *string
	PDFPath      *string
	Status       *string
	ErrorMessage *string
	Metadata     *models.AnalysisMetadata
}

// Update applies a partial patch. Status changes are validated against the
// forward-only lifecycle, and every update stamps updated_at.
func (r *Analyses) Update(ctx context.Context, id int64, p UpdateAnalysisParams) (*models.Analysis, error) {
	current, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	var (
		sets []string
		args []any
	)
	if p.Status != nil && *p.Status != current.Status {
		if !models.CanTransition(current.Status, *p.Status) {
			return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, *p.Status)
		}
		sets = append(sets, "status = ?")
		args = append(args, *p.Status)
	}
	if p.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *p.Title)
	}
	if p.AnalysisText != nil {
		sets = append(sets, "analysis_text = ?")
		args = append(args, *p.AnalysisText)
	}
	if p.PDFPath != nil {
		sets = append(sets, "pdf_path = ?")
		args = append(args, *p.PDFPath)
	}
	if p.ErrorMessage != nil {
		sets = append(sets, "error_message = ?")
		args = append(args, *p.ErrorMessage)
	}
	if p.Metadata != nil {
		merged, err := models.MergeMetadata(current.Metadata, *p.Metadata)
		if err != nil {
			return nil, err
		}
		encoded, err := merged.Encode()
		if err != nil {
			return nil, err
		}
		sets = append(sets, "metadata = ?")
		args = append(args, encoded)
	}
	if len(sets) == 0 {
		return current, nil
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC(), id)
	if _, err := r.eng.Exec(ctx,
		`UPDATE analyses SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...); err != nil {
		return nil, err
	}
	return r.FindByID(ctx, id)
}

// AnalysisFilter narrows Find; zero values mean "no predicate".
type AnalysisFilter struct {
	UserID      int64
	Status      string
	URLContains string
	Limit       int
	Offset      int
}

// Find lists records newest-created-first.
func (r *Analyses) Find(ctx context.Context, f AnalysisFilter) ([]*models.Analysis, error) {
	var (
		where []string
		args  []any
	)
	if f.UserID != 0 {
		where = append(where, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.URLContains != "" {
		where = append(where, "url LIKE ?")
		args = append(args, "%"+f.URLContains+"%")
	}
	query := `SELECT ` + analysisColumns + ` FROM analyses`
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
	out := make([]*models.Analysis, 0, len(rows))
	for _, row := range rows {
		a, err := scanAnalysis(row)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// GetStats aggregates counts per status plus the mean wall-clock duration
// between creation and completion for completed rows. userID zero means all
// users. An empty table yields all zeros.
func (r *Analyses) GetStats(ctx context.Context, userID int64) (*models.AnalysisStats, error) {
	var (
		where string
		args  []any
	)
	if userID != 0 {
		where = ` WHERE user_id = ?`
		args = append(args, userID)
	}

	stats := &models.AnalysisStats{}
	rows, err := r.eng.Query(ctx,
		`SELECT status, COUNT(*) AS n FROM analyses`+where+` GROUP BY status`, args...)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		n := row.Int64("n")
		stats.Total += n
		switch row.String("status") {
		case models.StatusPending:
			stats.Pending = n
		case models.StatusProcessing:
			stats.Processing = n
		case models.StatusCompleted:
			stats.Completed = n
		case models.StatusFailed:
			stats.Failed = n
		}
	}

	// Average in Go rather than SQL: epoch arithmetic differs per engine.
	completedWhere := ` WHERE status = ?`
	completedArgs := []any{models.StatusCompleted}
	if userID != 0 {
		completedWhere += ` AND user_id = ?`
		completedArgs = append(completedArgs, userID)
	}
	completed, err := r.eng.Query(ctx,
		`SELECT created_at, updated_at FROM analyses`+completedWhere, completedArgs...)
	if err != nil {
		return nil, err
	}
	if len(completed) > 0 {
		var total float64
		for _, row := range completed {
			total += row.Time("updated_at").Sub(row.Time("created_at")).Seconds()
		}
		stats.AvgDurationSeconds = total / float64(len(completed))
	}
	return stats, nil
}

// Delete removes a record.
func (r *Analyses) Delete(ctx context.Context, id int64) error {
	res, err := r.eng.Exec(ctx, `DELETE FROM analyses WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if res.RowsAffected == 0 {
		return store.ErrNoRows
	}
	return nil
}

func scanAnalysis(row store.Row) (*models.Analysis, error) {
	meta, err := models.DecodeMetadata(row.String("metadata"))
	if err != nil {
		return nil, err
	}
	return &models.Analysis{
		ID:           row.Int64("id"),
		UserID:       row.Int64("user_id"),
		URL:          row.String("url"),
		Title:        row.String("title"),
		AnalysisText: row.String("analysis_text"),
		PDFPath:      row.String("pdf_path"),
		Metadata:     meta,
		Status:       row.String("status"),
		ErrorMessage: row.String("error_message"),
		CreatedAt:    row.Time("created_at"),
		UpdatedAt:    row.Time("updated_at"),
	}, nil
}
