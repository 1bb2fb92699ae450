package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exercise(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, CurrentUserKey)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, CurrentUserKey, `{"id":"1"}`))
	v, ok, err := s.Get(ctx, CurrentUserKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"id":"1"}`, v)

	require.NoError(t, s.Remove(ctx, CurrentUserKey))
	_, ok, err = s.Get(ctx, CurrentUserKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemory(t *testing.T) {
	exercise(t, NewMemory())
}

func TestRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	s := NewRedis(client, "test:", time.Hour)
	exercise(t, s)

	require.NoError(t, s.Set(context.Background(), "k", "v"))
	assert.True(t, mr.Exists("test:k"))
	assert.Equal(t, time.Hour, mr.TTL("test:k"))
}

func TestRedisWithoutClient(t *testing.T) {
	s := NewRedis(nil, "", 0)
	_, _, err := s.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestScopedIsolatesClients(t *testing.T) {
	ctx := context.Background()
	shared := NewMemory()
	a := Scoped(shared, "a")
	b := Scoped(shared, "b")

	require.NoError(t, a.Set(ctx, CurrentUserKey, "alice"))
	_, ok, err := b.Get(ctx, CurrentUserKey)
	require.NoError(t, err)
	assert.False(t, ok)

	exercise(t, b)
	v, ok, _ := a.Get(ctx, CurrentUserKey)
	assert.True(t, ok)
	assert.Equal(t, "alice", v)
}
