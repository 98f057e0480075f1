package repository

import (
	"context"
	"errors"

	"cuida-monitor/internal/models"
)

// ErrStoreUnavailable wraps failures talking to the durable store.
var ErrStoreUnavailable = errors.New("event store unavailable")

// EventsRepository is the durable store of safety events (source of truth).
type EventsRepository interface {
	// ListAscending returns every stored event, oldest timestamp first.
	ListAscending(ctx context.Context) ([]models.Event, error)

	// CreateEvent commits one event atomically. On error nothing is stored.
	CreateEvent(ctx context.Context, event *models.Event) error
}
