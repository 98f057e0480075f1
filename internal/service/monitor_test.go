package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cuida-monitor/internal/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func loadTestConfig(t *testing.T, redisAddr string) *config.Config {
	t.Helper()
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("DB_ENABLED", "false")
	t.Setenv("HTTP_ADDR", "127.0.0.1:0")
	if redisAddr == "" {
		t.Setenv("REDIS_ENABLED", "false")
	} else {
		t.Setenv("REDIS_ENABLED", "true")
		t.Setenv("REDIS_ADDR", redisAddr)
	}
	cfg, err := config.Load()
	require.NoError(t, err)
	return cfg
}

type envelope struct {
	Code   int             `json:"code"`
	Result json.RawMessage `json:"result"`
}

func call(t *testing.T, h http.Handler, method, path, body string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w.Code, env
}

func TestMonitorService_MemoryStoreEndToEnd(t *testing.T) {
	cfg := loadTestConfig(t, "")
	svc, err := NewMonitorService(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, svc.Start(context.Background()))
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = svc.Stop(ctx)
	}()

	h := svc.Handler()

	status, env := call(t, h, http.MethodGet, "/api/events", "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"events":[],"total":0}`, string(env.Result))

	status, _ = call(t, h, http.MethodPost, "/api/events", `{"kind":"fall","latitude":-23.5,"longitude":-46.6}`)
	require.Equal(t, http.StatusCreated, status)

	status, env = call(t, h, http.MethodGet, "/api/events", "")
	require.Equal(t, http.StatusOK, status)
	var page struct {
		Events []struct {
			Key  int64 `json:"key"`
			Data struct {
				Kind              string `json:"kind"`
				AccelerationLabel string `json:"acceleration_label"`
			} `json:"data"`
		} `json:"events"`
		Total int `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Result, &page))
	require.Equal(t, 1, page.Total)
	assert.Equal(t, "fall", page.Events[0].Data.Kind)
	assert.Equal(t, "unknown", page.Events[0].Data.AccelerationLabel)

	status, _ = call(t, h, http.MethodPost, "/api/events", `{"kind":"fall"}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, env = call(t, h, http.MethodGet, "/api/analysis", "")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(env.Result), `"falls":1`)

	status, _ = call(t, h, http.MethodPost, "/api/index/rebuild", "")
	assert.Equal(t, http.StatusOK, status)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, w.Body.String(), `cuida_events_ingested_total{result="accepted",source="http"} 1`)
	assert.Contains(t, w.Body.String(), "cuida_index_size 1")
}

func TestMonitorService_RedisStreamAndCache(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := loadTestConfig(t, mr.Addr())

	svc, err := NewMonitorService(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, svc.redisClient)
	defer func() { _ = svc.Stop(context.Background()) }()

	h := svc.Handler()

	status, _ := call(t, h, http.MethodGet, "/api/analysis", "")
	require.Equal(t, http.StatusOK, status)
	assert.True(t, mr.Exists(cfg.Analysis.CacheKey), "summary cached")

	status, _ = call(t, h, http.MethodPost, "/api/reportar_evento", `{"tipo_evento":"queda","latitude":1,"longitude":2,"aceleracao":"2.5g"}`)
	require.Equal(t, http.StatusCreated, status)

	assert.False(t, mr.Exists(cfg.Analysis.CacheKey), "ingest invalidates the summary")
	require.NoError(t, svc.events.WaitFanout(context.Background()))

	entries, err := mr.Stream(cfg.Events.Stream)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Values, "data")
}

func TestMonitorService_RedisUnreachableFallsBack(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := loadTestConfig(t, addr)
	svc, err := NewMonitorService(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer func() { _ = svc.Stop(context.Background()) }()

	assert.Nil(t, svc.redisClient)
	status, _ := call(t, svc.Handler(), http.MethodPost, "/api/events", `{"kind":"panic","latitude":0,"longitude":0}`)
	assert.Equal(t, http.StatusCreated, status)
}

func TestMonitorService_InvalidTimezone(t *testing.T) {
	cfg := loadTestConfig(t, "")
	cfg.Analysis.Timezone = "Nowhere/Invalid"

	_, err := NewMonitorService(context.Background(), cfg, zap.NewNop())
	assert.Error(t, err)
}
