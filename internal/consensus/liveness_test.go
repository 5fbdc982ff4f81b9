package consensus

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupLivenessCache(t *testing.T, ttl time.Duration) (*LivenessCache, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewLivenessCache(client, ttl), mr
}

func TestLivenessCache(t *testing.T) {
	ctx := context.Background()

	t.Run("miss on unknown endpoint", func(t *testing.T) {
		cache, _ := setupLivenessCache(t, time.Minute)

		_, known := cache.Get(ctx, "https://rpc.example")
		assert.False(t, known)
	})

	t.Run("remembers alive endpoint", func(t *testing.T) {
		cache, _ := setupLivenessCache(t, time.Minute)

		require.NoError(t, cache.Set(ctx, "https://rpc.example", true))

		alive, known := cache.Get(ctx, "https://rpc.example")
		assert.True(t, known)
		assert.True(t, alive)
	})

	t.Run("remembers dead endpoint", func(t *testing.T) {
		cache, _ := setupLivenessCache(t, time.Minute)

		require.NoError(t, cache.Set(ctx, "https://rpc.example", false))

		alive, known := cache.Get(ctx, "https://rpc.example")
		assert.True(t, known)
		assert.False(t, alive)
	})

	t.Run("entries expire after the TTL", func(t *testing.T) {
		cache, mr := setupLivenessCache(t, time.Minute)

		require.NoError(t, cache.Set(ctx, "https://rpc.example", true))
		mr.FastForward(2 * time.Minute)

		_, known := cache.Get(ctx, "https://rpc.example")
		assert.False(t, known)
	})

	t.Run("keys are normalized", func(t *testing.T) {
		cache, _ := setupLivenessCache(t, time.Minute)

		require.NoError(t, cache.Set(ctx, "  https://rpc.example ", true))

		alive, known := cache.Get(ctx, "https://rpc.example")
		assert.True(t, known)
		assert.True(t, alive)
	})
}
