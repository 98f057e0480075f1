package notifier

import (
	"context"
	"fmt"
	"time"

	"cuida-monitor/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Alert is the JSON body posted to the caregiver webhook.
type Alert struct {
	EventID           string  `json:"event_id"`
	Key               int64   `json:"key"`
	OccurredAt        string  `json:"occurred_at"`
	Kind              string  `json:"kind"`
	Latitude          float64 `json:"latitude"`
	Longitude         float64 `json:"longitude"`
	AccelerationLabel string  `json:"acceleration_label"`
	DeviceID          string  `json:"device_id,omitempty"`
	MapURL            string  `json:"map_url"`
}

// WebhookNotifier posts fall and panic alerts to an HTTP endpoint.
type WebhookNotifier struct {
	httpClient *resty.Client
	url        string
	logger     *zap.Logger
}

// NewWebhookNotifier creates a notifier posting to url.
func NewWebhookNotifier(url string, timeout time.Duration, logger *zap.Logger) *WebhookNotifier {
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &WebhookNotifier{
		httpClient: client,
		url:        url,
		logger:     logger,
	}
}

// NewAlert builds the webhook body for event.
func NewAlert(event *models.Event) Alert {
	return Alert{
		EventID:           event.EventID,
		Key:               event.Timestamp,
		OccurredAt:        time.Unix(event.Timestamp, 0).UTC().Format(time.RFC3339),
		Kind:              string(event.Kind),
		Latitude:          event.Latitude,
		Longitude:         event.Longitude,
		AccelerationLabel: event.AccelerationLabel,
		DeviceID:          event.DeviceID,
		MapURL:            fmt.Sprintf("https://www.google.com/maps/search/?api=1&query=%g,%g", event.Latitude, event.Longitude),
	}
}

// Notify posts an alert for falls and panics; other kinds are ignored.
func (n *WebhookNotifier) Notify(ctx context.Context, event *models.Event) error {
	if !event.IsFall() && !event.IsPanic() {
		return nil
	}

	resp, err := n.httpClient.R().
		SetContext(ctx).
		SetBody(NewAlert(event)).
		Post(n.url)
	if err != nil {
		return fmt.Errorf("failed to call webhook: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode())
	}

	n.logger.Info("Sent safety alert",
		zap.String("event_id", event.EventID),
		zap.Int64("key", event.Timestamp),
		zap.String("kind", string(event.Kind)),
	)
	return nil
}
