package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type profile struct {
	Name     string
	PhotoURL string
}

func newTestCache(t *testing.T) *RedisCache {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return NewRedisCache(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
}

func TestSetThenGet(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	require.NoError(t, c.Set(ctx, "profile:u1", profile{Name: "Ana", PhotoURL: "https://img/ana"}, time.Minute))

	var got profile
	found, err := c.Get(ctx, "profile:u1", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "Ana", got.Name)
}

func TestGetMiss(t *testing.T) {
	c := newTestCache(t)
	var got profile
	found, err := c.Get(context.Background(), "profile:none", &got)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, got.Name)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)
	require.NoError(t, c.Set(ctx, "k", profile{Name: "x"}, time.Minute))
	require.NoError(t, c.Delete(ctx, "k"))
	require.NoError(t, c.Delete(ctx, "k"))

	var got profile
	found, err := c.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, found)
}
