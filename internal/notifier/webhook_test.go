package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cuida-monitor/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testEvent(kind models.Kind) *models.Event {
	return &models.Event{
		EventID:   "e-1",
		Timestamp: 1700000000,
		DeviceID:  "esp32-01",
		EventData: models.EventData{
			Kind:              kind,
			Latitude:          -23.55,
			Longitude:         -46.63,
			AccelerationLabel: "3.4g",
		},
	}
}

func TestNotify_PostsAlert(t *testing.T) {
	var got Alert
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, time.Second, zap.NewNop())
	require.NoError(t, n.Notify(context.Background(), testEvent(models.KindFall)))

	assert.Equal(t, "e-1", got.EventID)
	assert.Equal(t, int64(1700000000), got.Key)
	assert.Equal(t, "2023-11-14T22:13:20Z", got.OccurredAt)
	assert.Equal(t, "fall", got.Kind)
	assert.Equal(t, "esp32-01", got.DeviceID)
	assert.Equal(t, "https://www.google.com/maps/search/?api=1&query=-23.55,-46.63", got.MapURL)
}

func TestNotify_SkipsOtherKinds(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, time.Second, zap.NewNop())
	require.NoError(t, n.Notify(context.Background(), testEvent("inactivity")))
	assert.False(t, called)
}

func TestNotify_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, time.Second, zap.NewNop())
	err := n.Notify(context.Background(), testEvent(models.KindPanic))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
