package session

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStore_SaveLoadRemove(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	ctx := context.Background()
	store := NewRedisStore(rdb, "")

	token, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, token)

	require.NoError(t, store.Save(ctx, "t1"))
	stored, err := mr.Get(DefaultRedisKey)
	require.NoError(t, err)
	assert.Equal(t, "t1", stored)

	token, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "t1", token)

	require.NoError(t, store.Remove(ctx))
	assert.False(t, mr.Exists(DefaultRedisKey))
}

func TestRedisStore_CustomKeyAndDial(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	ctx := context.Background()
	rdb, err := DialRedis(ctx, mr.Addr())
	require.NoError(t, err)
	defer func() { _ = rdb.Close() }()

	store := NewRedisStore(rdb, "team:token")
	require.NoError(t, store.Save(ctx, "shared"))
	assert.True(t, mr.Exists("team:token"))

	rdb2, err := DialRedis(ctx, "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	defer func() { _ = rdb2.Close() }()
	token, err := NewRedisStore(rdb2, "team:token").Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "shared", token)
}

func TestDialRedis_FailsWhenUnreachable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	_, err = DialRedis(context.Background(), addr)
	assert.Error(t, err)
}
