package notify

import (
	"context"
	"fmt"
	"strconv"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
)

// PubSub publishes completion notifications to a GCP Pub/Sub topic.
// Authentication uses Application Default Credentials.
type PubSub struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	logger *zap.Logger
}

// NewPubSub creates the client and fails fast when the topic is missing.
func NewPubSub(ctx context.Context, projectID, topicID string, logger *zap.Logger) (*PubSub, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("close pubsub client after topic check failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("check pubsub topic %q: %w", topicID, err)
	}
	if !exists {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("close pubsub client after topic check failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("pubsub topic %q does not exist in project %q", topicID, projectID)
	}
	return &PubSub{client: client, topic: topic, logger: logger}, nil
}

// Publish sends a fire-and-forget message; the client batches and retries
// in the background.
func (p *PubSub) Publish(ctx context.Context, analysisID int64, status string) error {
	id := strconv.FormatInt(analysisID, 10)
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data: []byte(id),
		Attributes: map[string]string{
			"analysis_id": id,
			"status":      status,
		},
	})
	_ = result // fire and forget; delivery is asynchronous
	return nil
}

// Close stops the topic publisher and closes the client.
func (p *PubSub) Close() error {
	p.topic.Stop()
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
