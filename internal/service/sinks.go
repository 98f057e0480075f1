package service

import (
	"context"

	rediscommon "cuida-monitor/common/redis"
	"cuida-monitor/internal/models"
	"cuida-monitor/internal/notifier"
)

// StreamSink appends accepted events to a Redis Stream for downstream
// consumers.
type StreamSink struct {
	client *rediscommon.Client
	stream string
	maxLen int64
}

// NewStreamSink creates a sink publishing to stream (capped at maxLen, 0 = unbounded).
func NewStreamSink(client *rediscommon.Client, stream string, maxLen int64) *StreamSink {
	return &StreamSink{client: client, stream: stream, maxLen: maxLen}
}

func (s *StreamSink) Name() string { return "redis_stream" }

func (s *StreamSink) Publish(ctx context.Context, event *models.Event) error {
	_, err := rediscommon.PublishJSONToStream(ctx, s.client, s.stream, s.maxLen, event)
	return err
}

// WebhookSink forwards fall and panic events to the caregiver webhook.
type WebhookSink struct {
	notifier *notifier.WebhookNotifier
}

func NewWebhookSink(n *notifier.WebhookNotifier) *WebhookSink {
	return &WebhookSink{notifier: n}
}

func (s *WebhookSink) Name() string { return "webhook" }

func (s *WebhookSink) Publish(ctx context.Context, event *models.Event) error {
	return s.notifier.Notify(ctx, event)
}
