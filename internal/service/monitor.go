package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cuida-monitor/common/database"
	mqttcommon "cuida-monitor/common/mqtt"
	rediscommon "cuida-monitor/common/redis"
	"cuida-monitor/internal/analysis"
	"cuida-monitor/internal/config"
	"cuida-monitor/internal/consumer"
	httpapi "cuida-monitor/internal/http"
	"cuida-monitor/internal/index"
	"cuida-monitor/internal/metrics"
	"cuida-monitor/internal/notifier"
	"cuida-monitor/internal/repository"
	"cuida-monitor/internal/store"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// MonitorService wires the store, index, analysis, fan-out and transports.
type MonitorService struct {
	config *config.Config
	logger *zap.Logger

	db          *sql.DB             // nil when running on the memory store
	redisClient *rediscommon.Client // nil when Redis is disabled or unreachable
	mqttClient  *mqttcommon.Client  // nil when MQTT is disabled

	registry *prometheus.Registry
	index    *index.Chronological
	events   *EventService
	analysis *analysis.Service
	consumer *consumer.MQTTConsumer
	limiter  *httpapi.RateLimiter
	router   *httpapi.Router
	server   *Server

	errCh chan error
}

// NewMonitorService connects the backing services and builds the component
// graph. The database and Redis are optional: failures fall back to the
// memory store and to running without cache/stream. MQTT, when enabled, must
// connect.
func NewMonitorService(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*MonitorService, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	s := &MonitorService{
		config:   cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
		errCh:    make(chan error, 1),
	}
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// 1. durable store
	repo := s.openRepository(ctx)

	// 2. Redis (analysis cache + event stream)
	var kv store.KV
	if cfg.RedisEnabled {
		client := rediscommon.NewRedisClient(&cfg.Redis)
		if err := rediscommon.Ping(ctx, client); err != nil {
			logger.Warn("Redis enabled but unreachable, running without cache and stream", zap.Error(err))
			_ = rediscommon.Close(client)
		} else {
			s.redisClient = client
			kv = store.NewRedisKV(client)
			logger.Info("Redis enabled", zap.String("addr", cfg.Redis.Addr))
		}
	}

	// 3. index + metrics
	s.index = index.New(index.WithDuplicateHook(func(key int64) {
		logger.Warn("Duplicate timestamp dropped from index", zap.Int64("key", key))
	}))
	m := metrics.New(s.registry, s.index)

	// 4. analysis
	rules := analysis.DefaultRules()
	rules.Location = loc
	s.analysis = analysis.NewService(repo, kv, rules,
		cfg.Analysis.CacheKey, time.Duration(cfg.Analysis.CacheTTL)*time.Second, logger)

	// 5. ingestion + fan-out
	var sinks []Sink
	if s.redisClient != nil && cfg.Events.Stream != "" {
		sinks = append(sinks, NewStreamSink(s.redisClient, cfg.Events.Stream, cfg.Events.StreamMaxLen))
	}
	if cfg.Webhook.URL != "" {
		n := notifier.NewWebhookNotifier(cfg.Webhook.URL, time.Duration(cfg.Webhook.Timeout)*time.Second, logger)
		sinks = append(sinks, NewWebhookSink(n))
	}
	s.events = NewEventService(s.index, repo, logger,
		WithSinks(sinks...),
		WithCacheInvalidator(s.analysis),
		WithMetrics(m),
		WithFanoutTimeout(time.Duration(cfg.Events.FanoutTimeout)*time.Second),
	)

	// 6. MQTT
	if cfg.MQTT.Enabled {
		client, err := mqttcommon.NewClient(&cfg.MQTT.MQTTConfig, logger)
		if err != nil {
			s.closeBackends()
			return nil, fmt.Errorf("failed to connect MQTT: %w", err)
		}
		s.mqttClient = client
		s.consumer = consumer.NewMQTTConsumer(client, cfg.MQTT.Topic, cfg.MQTT.QoS, s.events, logger)
	}

	// 7. HTTP
	if cfg.RateLimit.RPS > 0 {
		s.limiter = httpapi.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	}
	s.router = httpapi.NewRouter(logger)
	s.router.RegisterEventRoutes(
		httpapi.NewEventHandler(s.events, s.analysis, loc, cfg.HTTP.MaxBodyBytes, logger),
		s.limiter,
	)
	s.router.RegisterMetricsRoute(s.registry)
	s.router.RegisterDashboard()
	s.server = NewServer(cfg.HTTP.Addr, s.router, logger)

	return s, nil
}

func (s *MonitorService) openRepository(ctx context.Context) repository.EventsRepository {
	if !s.config.DBEnabled {
		s.logger.Warn("DB disabled, using in-memory event store")
		return repository.NewMemoryEventsRepo()
	}

	db, err := database.NewPostgresDB(ctx, &s.config.Database)
	if err != nil {
		s.logger.Warn("DB enabled but connection failed, falling back to in-memory event store", zap.Error(err))
		return repository.NewMemoryEventsRepo()
	}
	if err := repository.EnsureSchema(ctx, db); err != nil {
		s.logger.Warn("Failed to ensure schema, falling back to in-memory event store", zap.Error(err))
		_ = database.Close(db)
		return repository.NewMemoryEventsRepo()
	}

	s.db = db
	s.logger.Info("DB enabled for cuida-monitor",
		zap.String("host", s.config.Database.Host),
		zap.String("database", s.config.Database.Database),
	)
	return repository.NewPostgresEventsRepo(db, s.logger)
}

// Handler returns the HTTP handler (router) of the service.
func (s *MonitorService) Handler() http.Handler {
	return s.router
}

// Start rehydrates the index, subscribes to MQTT and starts the HTTP server
// in the background. Server failures are reported on Errors.
func (s *MonitorService) Start(ctx context.Context) error {
	if _, err := s.events.Rehydrate(ctx); err != nil {
		s.logger.Warn("Index rehydration failed, starting with an empty index", zap.Error(err))
	}

	if s.consumer != nil {
		if err := s.consumer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start MQTT consumer: %w", err)
		}
	}

	go func() {
		if err := s.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.errCh <- err
		}
	}()
	return nil
}

// Errors delivers fatal server errors.
func (s *MonitorService) Errors() <-chan error {
	return s.errCh
}

// Stop shuts the HTTP server down and closes every backend.
func (s *MonitorService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping cuida-monitor")

	var stopErr error
	if err := s.server.Stop(ctx); err != nil {
		s.logger.Error("Failed to stop HTTP server", zap.Error(err))
		stopErr = err
	}
	if s.consumer != nil {
		_ = s.consumer.Stop()
	}
	if err := s.events.WaitFanout(ctx); err != nil {
		s.logger.Warn("Shutdown before event fan-out finished", zap.Error(err))
	}
	if s.limiter != nil {
		s.limiter.Stop()
	}
	s.closeBackends()
	return stopErr
}

func (s *MonitorService) closeBackends() {
	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}
	if err := rediscommon.Close(s.redisClient); err != nil {
		s.logger.Error("Failed to close redis", zap.Error(err))
	}
	if err := database.Close(s.db); err != nil {
		s.logger.Error("Failed to close database", zap.Error(err))
	}
}
