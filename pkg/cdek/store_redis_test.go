package cdek_test

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/cdek/pkg/cdek"
)

// unreachableRedis points at a port nothing listens on.
func unreachableRedis(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisTokenStore_Key(t *testing.T) {
	store := cdek.NewRedisTokenStore(unreachableRedis(t), "acme")
	assert.Equal(t, "cdek:token:acme", store.Key())
}

func TestRedisTokenStore_Errors(t *testing.T) {
	store := cdek.NewRedisTokenStore(unreachableRedis(t), "acme")
	ctx := context.Background()

	_, err := store.Load(ctx)
	assert.ErrorContains(t, err, "loading token from redis")

	err = store.Save(ctx, &cdek.Token{AccessToken: "t", ExpiresAt: time.Now().Add(time.Hour)})
	assert.ErrorContains(t, err, "saving token to redis")

	err = store.Clear(ctx)
	assert.ErrorContains(t, err, "clearing token in redis")
}

func TestRedisTokenStore_SkipsExpiredToken(t *testing.T) {
	store := cdek.NewRedisTokenStore(unreachableRedis(t), "acme")

	err := store.Save(context.Background(), &cdek.Token{AccessToken: "t", ExpiresAt: time.Now().Add(-time.Second)})
	assert.NoError(t, err)
}

func TestAuthGate_StoreFailureFallsBack(t *testing.T) {
	api := newFakeAPI(t)
	api.handle("GET /v2/location/regions", emptyRegions)
	store := cdek.NewRedisTokenStore(unreachableRedis(t), testAccount)
	client := newTestClient(t, api, func(c *cdek.Config) { c.TokenStore = store })

	regions, err := client.GetRegions(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, regions)
	assert.Equal(t, int32(1), api.tokenCalls.Load())
}

func TestMemoryTokenStore(t *testing.T) {
	store := cdek.NewMemoryTokenStore()
	ctx := context.Background()

	tok, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, tok)

	saved := &cdek.Token{AccessToken: "abc"}
	require.NoError(t, store.Save(ctx, saved))
	tok, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Same(t, saved, tok)

	require.NoError(t, store.Clear(ctx))
	tok, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, tok)
}
