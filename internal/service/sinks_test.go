package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cuida-monitor/internal/models"
	"cuida-monitor/internal/notifier"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testEvent() *models.Event {
	return &models.Event{
		EventID:   "3f1c",
		Timestamp: 1700000000,
		DeviceID:  "pendant-1",
		EventData: models.EventData{Kind: models.KindFall, Latitude: -23.5, Longitude: -46.6, AccelerationLabel: "2.7g"},
	}
}

func TestStreamSink_Publish(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	sink := NewStreamSink(client, "cuida:events:stream", 100)
	assert.Equal(t, "redis_stream", sink.Name())
	require.NoError(t, sink.Publish(context.Background(), testEvent()))

	msgs, err := client.XRange(context.Background(), "cuida:events:stream", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	var got models.Event
	require.NoError(t, json.Unmarshal([]byte(msgs[0].Values["data"].(string)), &got))
	assert.Equal(t, "3f1c", got.EventID)
	assert.Equal(t, int64(1700000000), got.Timestamp)
	assert.Equal(t, models.KindFall, got.Kind)
}

func TestStreamSink_RedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	sink := NewStreamSink(client, "cuida:events:stream", 0)
	assert.Error(t, sink.Publish(context.Background(), testEvent()))
}

func TestWebhookSink_Publish(t *testing.T) {
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink := NewWebhookSink(notifier.NewWebhookNotifier(srv.URL, time.Second, zap.NewNop()))
	assert.Equal(t, "webhook", sink.Name())
	require.NoError(t, sink.Publish(context.Background(), testEvent()))

	var alert notifier.Alert
	require.NoError(t, json.Unmarshal(body, &alert))
	assert.Equal(t, "fall", alert.Kind)
	assert.Equal(t, "pendant-1", alert.DeviceID)
}
