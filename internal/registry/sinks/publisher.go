package sinks

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/progressd/internal/registry"
)

// PublisherSink fans finished-task notifications out to a message topic so
// downstream consumers can react without polling the API.
type PublisherSink struct {
	publisher registry.Publisher
	topic     string
	logger    *zap.Logger
}

// NewPublisherSink constructs a PublisherSink for the given topic.
func NewPublisherSink(publisher registry.Publisher, topic string, logger *zap.Logger) *PublisherSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PublisherSink{publisher: publisher, topic: topic, logger: logger}
}

// Consume publishes a notification payload. A missing topic or publisher
// disables the sink.
func (s *PublisherSink) Consume(ctx context.Context, rec registry.Record) error {
	if s == nil || s.publisher == nil || s.topic == "" {
		return nil
	}
	payload := map[string]any{
		"task_id":     rec.TaskID.String(),
		"name":        rec.Name,
		"started_at":  rec.StartedAt.Format(time.RFC3339),
		"finished_at": rec.FinishedAt.Format(time.RFC3339),
		"elapsed_ms":  rec.Elapsed().Milliseconds(),
		"steps":       len(rec.Durations),
	}
	id, err := s.publisher.Publish(ctx, s.topic, payload)
	if err != nil {
		return fmt.Errorf("publish record: %w", err)
	}
	s.logger.Debug("record published",
		zap.String("task_id", rec.TaskID.String()),
		zap.String("message_id", id),
	)
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PublisherSink) Close(context.Context) error {
	return nil
}
