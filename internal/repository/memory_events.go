package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"cuida-monitor/internal/models"
)

// MemoryEventsRepo keeps events in process memory. Used when the database is
// disabled or unreachable at startup so the service still runs in dev.
type MemoryEventsRepo struct {
	mu     sync.RWMutex
	events []models.Event
}

func NewMemoryEventsRepo() *MemoryEventsRepo {
	return &MemoryEventsRepo{}
}

func (r *MemoryEventsRepo) ListAscending(_ context.Context) ([]models.Event, error) {
	r.mu.RLock()
	out := make([]models.Event, len(r.events))
	copy(out, r.events)
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out, nil
}

func (r *MemoryEventsRepo) CreateEvent(ctx context.Context, event *models.Event) error {
	if event == nil {
		return fmt.Errorf("event is required")
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	r.mu.Lock()
	r.events = append(r.events, *event)
	r.mu.Unlock()
	return nil
}
