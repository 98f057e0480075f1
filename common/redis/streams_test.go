package redis

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) *redis.Client {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestPublishToStream_StringifiesValues(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()

	id, err := PublishToStream(ctx, client, "test:stream", 0, map[string]interface{}{
		"kind":  "fall",
		"key":   int64(1700000000),
		"lat":   -23.5,
		"alert": true,
		"tags":  []string{"a", "b"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	msgs, err := client.XRange(ctx, "test:stream", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "fall", msgs[0].Values["kind"])
	assert.Equal(t, "1700000000", msgs[0].Values["key"])
	assert.Equal(t, "-23.5", msgs[0].Values["lat"])
	assert.Equal(t, "true", msgs[0].Values["alert"])
	assert.Equal(t, `["a","b"]`, msgs[0].Values["tags"])
}

func TestPublishJSONToStream(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()

	_, err := PublishJSONToStream(ctx, client, "test:json", 100, map[string]any{"key": 42})
	require.NoError(t, err)

	msgs, err := client.XRange(ctx, "test:json", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(msgs[0].Values["data"].(string)), &decoded))
	assert.Equal(t, float64(42), decoded["key"])
	assert.NotEmpty(t, msgs[0].Values["timestamp"])
}
