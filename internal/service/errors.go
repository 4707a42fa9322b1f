// Package service implements the application logic between the HTTP layer
// and the repositories: account management, token verification, and the
// scrape-analyze-render pipeline.
package service

import "errors"

// Sentinel errors mapped onto the HTTP taxonomy by the API layer.
var (
	// ErrInvalidInput marks missing or malformed request input (400).
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidCredentials marks a failed email/password check (401).
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAccountDisabled marks a login attempt on a deactivated account (401).
	ErrAccountDisabled = errors.New("account is deactivated")

	// ErrInvalidToken marks an unverifiable, expired, or revoked token (401).
	ErrInvalidToken = errors.New("invalid or expired token")

	// ErrForbidden marks an authorization failure (403).
	ErrForbidden = errors.New("access denied")

	// ErrNotFound marks a missing entity (404).
	ErrNotFound = errors.New("not found")

	// ErrEmailTaken marks a duplicate registration (409).
	ErrEmailTaken = errors.New("email is already registered")
)
