// Package storage defines the blob provider used for generated artifacts
// (PDF reports, screenshots). The interface decouples the pipeline from a
// concrete backend: local filesystem by default, GCS in deployments that
// want durable artifact storage, noop for tests.
package storage

import "context"

// Provider persists an artifact under a name and returns its location
// (a filesystem path or an object URI).
type Provider interface {
	// Save writes data under objectName and returns where it landed.
	Save(ctx context.Context, objectName string, data []byte) (string, error)

	// Close releases any client resources.
	Close() error
}

// NoOpProvider discards artifacts. Useful in tests and dry runs.
type NoOpProvider struct{}

// Save for NoOpProvider discards the data and returns a placeholder location.
func (n *NoOpProvider) Save(_ context.Context, objectName string, _ []byte) (string, error) {
	return "noop://" + objectName, nil
}

// Close for NoOpProvider does nothing.
func (n *NoOpProvider) Close() error { return nil }
