package cache

import (
	"context"
	"os"
	"testing"
	"time"

	redisclient "github.com/ghxstship/search-service/internal/infrastructure/clients/redis"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisAdapter_Integration(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}

	client := redisclient.NewClientFromRedis(redis.NewClient(&redis.Options{Addr: addr}))
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)
	prefix := "test:" + uuid.New().String() + ":"

	_, found, err := adapter.Get(ctx, prefix+"missing")
	require.NoError(t, err)
	assert.False(t, found, "a miss is not an error")

	require.NoError(t, adapter.Set(ctx, prefix+"a", []byte("1"), time.Minute))
	require.NoError(t, adapter.Set(ctx, prefix+"b", []byte("2"), time.Minute))
	require.NoError(t, adapter.Set(ctx, "other:"+prefix, []byte("3"), time.Minute))

	value, found, err := adapter.Get(ctx, prefix+"a")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("1"), value)

	require.NoError(t, adapter.DeletePrefix(ctx, prefix))

	_, found, _ = adapter.Get(ctx, prefix+"b")
	assert.False(t, found)
	_, found, _ = adapter.Get(ctx, "other:"+prefix)
	assert.True(t, found, "keys outside the prefix survive")
	require.NoError(t, client.Client().Del(ctx, "other:"+prefix).Err())
}
