// Package models defines the persisted entities of the analyzer service.
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Roles assignable to a user account.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Analysis lifecycle statuses. Transitions move strictly forward;
// failed is reachable from any non-terminal state.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// CanTransition reports whether an analysis may move from one status to another.
func CanTransition(from, to string) bool {
	if from == to {
		return true
	}
	switch from {
	case StatusPending:
		return to == StatusProcessing || to == StatusFailed
	case StatusProcessing:
		return to == StatusCompleted || to == StatusFailed
	default:
		// completed and failed are terminal
		return false
	}
}

// User is an identity record. The password hash is never serialized.
type User struct {
	ID           int64      `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	Role         string     `json:"role"`
	IsActive     bool       `json:"is_active"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// IsAdmin reports whether the user carries the admin role.
func (u *User) IsAdmin() bool { return u.Role == RoleAdmin }

// Analysis is one scrape-analyze-report cycle for a URL, owned by a user.
type Analysis struct {
	ID           int64            `json:"id"`
	UserID       int64            `json:"user_id"`
	URL          string           `json:"url"`
	Title        string           `json:"title,omitempty"`
	AnalysisText string           `json:"analysis_text,omitempty"`
	PDFPath      string           `json:"pdf_path,omitempty"`
	Metadata     AnalysisMetadata `json:"metadata"`
	Status       string           `json:"status"`
	ErrorMessage string           `json:"error_message,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// AnalysisMetadata is the flexible per-analysis metadata blob, serialized as
// JSON text in the store. All fields are omitempty so that a partial patch
// overlays rather than erases previously recorded values.
type AnalysisMetadata struct {
	WordCount      int    `json:"word_count,omitempty"`
	TokenCount     int    `json:"token_count,omitempty"`
	PageSizeBytes  int64  `json:"page_size_bytes,omitempty"`
	LoadTimeMs     int64  `json:"load_time_ms,omitempty"`
	ScreenshotPath string `json:"screenshot_path,omitempty"`
}

// Encode serializes the metadata to its stored text form.
func (m AnalysisMetadata) Encode() (string, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(b), nil
}

// DecodeMetadata parses the stored text form. Empty input yields a zero value.
func DecodeMetadata(raw string) (AnalysisMetadata, error) {
	var m AnalysisMetadata
	if raw == "" {
		return m, nil
	}
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return AnalysisMetadata{}, fmt.Errorf("decode metadata: %w", err)
	}
	return m, nil
}

// MergeMetadata overlays patch on top of base: keys present in the patch win,
// keys absent from the patch keep their base value.
func MergeMetadata(base, patch AnalysisMetadata) (AnalysisMetadata, error) {
	baseRaw, err := json.Marshal(base)
	if err != nil {
		return AnalysisMetadata{}, fmt.Errorf("merge metadata: %w", err)
	}
	patchRaw, err := json.Marshal(patch)
	if err != nil {
		return AnalysisMetadata{}, fmt.Errorf("merge metadata: %w", err)
	}
	merged := map[string]any{}
	if err := json.Unmarshal(baseRaw, &merged); err != nil {
		return AnalysisMetadata{}, fmt.Errorf("merge metadata: %w", err)
	}
	overlay := map[string]any{}
	if err := json.Unmarshal(patchRaw, &overlay); err != nil {
		return AnalysisMetadata{}, fmt.Errorf("merge metadata: %w", err)
	}
	for k, v := range overlay {
		merged[k] = v
	}
	out, err := json.Marshal(merged)
	if err != nil {
		return AnalysisMetadata{}, fmt.Errorf("merge metadata: %w", err)
	}
	var result AnalysisMetadata
	if err := json.Unmarshal(out, &result); err != nil {
		return AnalysisMetadata{}, fmt.Errorf("merge metadata: %w", err)
	}
	return result, nil
}

// AnalysisStats aggregates the analyses table.
type AnalysisStats struct {
	Total              int64   `json:"total"`
	Pending            int64   `json:"pending"`
	Processing         int64   `json:"processing"`
	Completed          int64   `json:"completed"`
	Failed             int64   `json:"failed"`
	AvgDurationSeconds float64 `json:"avg_duration_seconds"`
}
