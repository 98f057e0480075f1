package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"cuida-monitor/internal/models"
	"cuida-monitor/internal/store"

	"go.uber.org/zap"
)

// HistorySource yields the full durable history, oldest first.
type HistorySource interface {
	ListAscending(ctx context.Context) ([]models.Event, error)
}

// Service computes summaries from the durable store and caches them in KV.
type Service struct {
	source   HistorySource
	kv       store.KV // nil disables caching
	rules    Rules
	cacheKey string
	cacheTTL time.Duration
	now      func() time.Time
	logger   *zap.Logger

	// generation is bumped by Invalidate; a summary computed under an older
	// generation is returned but not cached.
	generation atomic.Uint64
}

// NewService creates a summary service. kv may be nil.
func NewService(source HistorySource, kv store.KV, rules Rules, cacheKey string, cacheTTL time.Duration, logger *zap.Logger) *Service {
	return &Service{
		source:   source,
		kv:       kv,
		rules:    rules,
		cacheKey: cacheKey,
		cacheTTL: cacheTTL,
		now:      time.Now,
		logger:   logger,
	}
}

// Summary returns the cached summary if present, otherwise recomputes it.
// Cache failures are logged and never fail the call.
func (s *Service) Summary(ctx context.Context) (*Summary, error) {
	if cached, ok := s.fromCache(ctx); ok {
		return cached, nil
	}

	gen := s.generation.Load()
	events, err := s.source.ListAscending(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load event history: %w", err)
	}

	summary := Analyze(events, s.now(), s.rules)
	if s.generation.Load() == gen {
		s.toCache(ctx, &summary)
	}
	return &summary, nil
}

// Invalidate drops the cached summary after new events are stored.
func (s *Service) Invalidate(ctx context.Context) {
	s.generation.Add(1)
	if s.kv == nil {
		return
	}
	if err := s.kv.Delete(ctx, s.cacheKey); err != nil {
		s.logger.Warn("Failed to invalidate analysis cache",
			zap.String("key", s.cacheKey),
			zap.Error(err),
		)
	}
}

func (s *Service) fromCache(ctx context.Context) (*Summary, bool) {
	if s.kv == nil {
		return nil, false
	}
	val, err := s.kv.Get(ctx, s.cacheKey)
	if err != nil {
		if !errors.Is(err, store.ErrMiss) {
			s.logger.Warn("Failed to read analysis cache", zap.Error(err))
		}
		return nil, false
	}

	var summary Summary
	if err := json.Unmarshal([]byte(val), &summary); err != nil {
		s.logger.Warn("Discarding corrupt analysis cache entry", zap.Error(err))
		return nil, false
	}
	return &summary, true
}

func (s *Service) toCache(ctx context.Context, summary *Summary) {
	if s.kv == nil || s.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(summary)
	if err != nil {
		s.logger.Warn("Failed to marshal analysis summary", zap.Error(err))
		return
	}
	if err := s.kv.Set(ctx, s.cacheKey, string(data), s.cacheTTL); err != nil {
		s.logger.Warn("Failed to write analysis cache", zap.Error(err))
	}
}
