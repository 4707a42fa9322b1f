// Package notify publishes analysis completion notifications. The
// abstraction keeps the pipeline independent of a concrete broker; the
// default provider discards notifications.
package notify

import "context"

// Publisher announces that an analysis reached a terminal state.
type Publisher interface {
	// Publish sends a message identifying the analysis and its status.
	Publish(ctx context.Context, analysisID int64, status string) error

	// Close cleans up any client connections.
	Close() error
}

// NoOpPublisher discards notifications.
type NoOpPublisher struct{}

// Publish for NoOpPublisher does nothing.
func (n *NoOpPublisher) Publish(context.Context, int64, string) error { return nil }

// Close for NoOpPublisher does nothing.
func (n *NoOpPublisher) Close() error { return nil }
