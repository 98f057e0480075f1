package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestKV(t *testing.T) (*miniredis.Miniredis, *RedisKV) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisKV(client)
}

func TestRedisKV_GetMiss(t *testing.T) {
	_, kv := setupTestKV(t)

	_, err := kv.Get(context.Background(), "absent")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestRedisKV_SetGetExpire(t *testing.T) {
	mr, kv := setupTestKV(t)
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, "cuida:analysis:summary", `{"total":3}`, 30*time.Second))

	val, err := kv.Get(ctx, "cuida:analysis:summary")
	require.NoError(t, err)
	assert.Equal(t, `{"total":3}`, val)

	mr.FastForward(31 * time.Second)
	_, err = kv.Get(ctx, "cuida:analysis:summary")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestRedisKV_Delete(t *testing.T) {
	_, kv := setupTestKV(t)
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, "k", "v", time.Minute))
	require.NoError(t, kv.Delete(ctx, "k", "other"))
	require.NoError(t, kv.Delete(ctx))

	_, err := kv.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
}
