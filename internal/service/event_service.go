package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cuida-monitor/internal/index"
	"cuida-monitor/internal/metrics"
	"cuida-monitor/internal/models"
	"cuida-monitor/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Sink receives every event after it has been committed and indexed.
type Sink interface {
	Name() string
	Publish(ctx context.Context, event *models.Event) error
}

// CacheInvalidator is told when the stored history changes.
type CacheInvalidator interface {
	Invalidate(ctx context.Context)
}

// EventService owns the write-through path: store first, index second.
type EventService struct {
	idx     *index.Chronological
	repo    repository.EventsRepository
	sinks   []Sink
	cache   CacheInvalidator // may be nil
	metrics *metrics.Metrics // may be nil
	logger  *zap.Logger

	now   func() time.Time
	newID func() string

	fanoutTimeout time.Duration
	fanoutWG      sync.WaitGroup

	// writeMu keeps index mutation order equal to store commit order.
	writeMu sync.Mutex
}

// EventServiceOption configures an EventService.
type EventServiceOption func(*EventService)

// WithSinks adds post-commit sinks.
func WithSinks(sinks ...Sink) EventServiceOption {
	return func(s *EventService) { s.sinks = append(s.sinks, sinks...) }
}

// WithCacheInvalidator registers the analysis cache.
func WithCacheInvalidator(c CacheInvalidator) EventServiceOption {
	return func(s *EventService) { s.cache = c }
}

// WithMetrics enables Prometheus accounting.
func WithMetrics(m *metrics.Metrics) EventServiceOption {
	return func(s *EventService) { s.metrics = m }
}

// WithFanoutTimeout bounds each post-commit fan-out (all sinks of one event).
func WithFanoutTimeout(d time.Duration) EventServiceOption {
	return func(s *EventService) {
		if d > 0 {
			s.fanoutTimeout = d
		}
	}
}

// WithClock overrides the acceptance clock.
func WithClock(now func() time.Time) EventServiceOption {
	return func(s *EventService) { s.now = now }
}

// NewEventService creates the ingestion service around an existing index.
func NewEventService(idx *index.Chronological, repo repository.EventsRepository, logger *zap.Logger, opts ...EventServiceOption) *EventService {
	s := &EventService{
		idx:    idx,
		repo:   repo,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,

		fanoutTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Index returns the index served by this service.
func (s *EventService) Index() *index.Chronological {
	return s.idx
}

// Rehydrate replays the store into a fresh tree and swaps it in. On failure
// the index keeps its previous contents (empty at startup) and the error is
// returned for the caller to log.
func (s *EventService) Rehydrate(ctx context.Context) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	events, err := s.repo.ListAscending(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load events for rehydration: %w", err)
	}

	entries := make([]index.Entry, 0, len(events))
	for i := range events {
		entries = append(entries, index.Entry{Key: events[i].Timestamp, Data: events[i].EventData})
	}
	skipped := s.idx.Rebuild(entries)

	if s.metrics != nil {
		s.metrics.RehydrateEvents.Set(float64(len(entries)))
		s.metrics.RehydrateSkipped.Set(float64(skipped))
	}
	s.logger.Info("Rehydrated event index",
		zap.Int("stored_events", len(entries)),
		zap.Int("indexed", s.idx.Len()),
		zap.Int("skipped_duplicates", skipped),
		zap.Int("height", s.idx.Height()),
	)
	return len(entries), nil
}

// Ingest validates req, commits it to the store and inserts it into the
// index. The returned event carries the server-assigned key. Errors wrap
// models.ErrValidation or repository.ErrStoreUnavailable.
func (s *EventService) Ingest(ctx context.Context, source string, req *models.ReportEventRequest) (*models.Event, error) {
	data, err := req.Normalize()
	if err != nil {
		s.count(source, "rejected")
		return nil, err
	}

	event, err := s.commit(ctx, req.DeviceID, data)
	if err != nil {
		s.count(source, "store_error")
		s.logger.Error("Failed to store event",
			zap.String("source", source),
			zap.String("kind", string(data.Kind)),
			zap.Error(err),
		)
		return nil, err
	}
	s.count(source, "accepted")

	s.logger.Info("Event accepted",
		zap.String("source", source),
		zap.String("event_id", event.EventID),
		zap.Int64("key", event.Timestamp),
		zap.String("kind", string(event.Kind)),
		zap.String("device_id", event.DeviceID),
	)

	s.startFanout(ctx, event)
	if s.cache != nil {
		s.cache.Invalidate(ctx)
	}
	return event, nil
}

func (s *EventService) commit(ctx context.Context, deviceID string, data models.EventData) (*models.Event, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	now := s.now()
	event := &models.Event{
		EventID:   s.newID(),
		Timestamp: now.Unix(),
		DeviceID:  deviceID,
		EventData: data,
		CreatedAt: now.UTC(),
	}
	if err := s.repo.CreateEvent(ctx, event); err != nil {
		if !errors.Is(err, repository.ErrStoreUnavailable) {
			err = fmt.Errorf("%w: %v", repository.ErrStoreUnavailable, err)
		}
		return nil, err
	}
	s.idx.Insert(event.Timestamp, event.EventData)
	return event, nil
}

// startFanout publishes event to the sinks in the background. The request
// context's values are kept but not its cancellation; the fan-out has its
// own deadline.
func (s *EventService) startFanout(ctx context.Context, event *models.Event) {
	if len(s.sinks) == 0 {
		return
	}
	s.fanoutWG.Add(1)
	go func() {
		defer s.fanoutWG.Done()
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.fanoutTimeout)
		defer cancel()
		s.fanout(fctx, event)
	}()
}

// WaitFanout blocks until in-flight fan-outs finish or ctx is done.
func (s *EventService) WaitFanout(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.fanoutWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// fanout runs after commit; failures are logged and counted only.
func (s *EventService) fanout(ctx context.Context, event *models.Event) {
	for _, sink := range s.sinks {
		if err := sink.Publish(ctx, event); err != nil {
			if s.metrics != nil {
				s.metrics.FanoutFailures.WithLabelValues(sink.Name()).Inc()
			}
			s.logger.Warn("Event fan-out failed",
				zap.String("sink", sink.Name()),
				zap.String("event_id", event.EventID),
				zap.Error(err),
			)
		}
	}
}

// List returns the indexed events ascending and their count.
func (s *EventService) List() ([]index.Entry, int) {
	entries := s.idx.AllSorted()
	return entries, len(entries)
}

// Stats reports the index shape.
func (s *EventService) Stats() index.Stats {
	return s.idx.Stats()
}

func (s *EventService) count(source, result string) {
	if s.metrics == nil {
		return
	}
	s.metrics.IngestTotal.WithLabelValues(source, result).Inc()
}
