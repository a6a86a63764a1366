package sessionmap

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/browsergrid/gridcore/internal/gridtypes"

	"github.com/stretchr/testify/assert"
)

func setupMiniRedis(t *testing.T) (*miniredis.Miniredis, *Redis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, NewRedis(client)
}

func TestRedisAddGetRemove(t *testing.T) {
	_, m := setupMiniRedis(t)
	ctx := context.Background()

	sid := gridtypes.NewSessionID()
	require.NoError(t, m.Add(ctx, sid, "http://node-1:4444"))

	uri, err := m.GetURI(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, "http://node-1:4444", uri)

	require.NoError(t, m.Remove(ctx, sid))

	_, err = m.GetURI(ctx, sid)
	var notFound *gridtypes.NoSuchSession
	assert.True(t, errors.As(err, &notFound))
}

func TestRedisAddDuplicateFailsAtomically(t *testing.T) {
	_, m := setupMiniRedis(t)
	ctx := context.Background()
	sid := gridtypes.NewSessionID()

	require.NoError(t, m.Add(ctx, sid, "http://node-1:4444"))

	err := m.Add(ctx, sid, "http://node-2:4444")
	var exists *gridtypes.SessionExists
	require.Error(t, err)
	assert.True(t, errors.As(err, &exists))

	uri, err := m.GetURI(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, "http://node-1:4444", uri, "a failed Add must not overwrite the existing binding")
}

func TestRedisRemoveIsIdempotent(t *testing.T) {
	_, m := setupMiniRedis(t)
	ctx := context.Background()
	sid := gridtypes.NewSessionID()

	assert.NoError(t, m.Remove(ctx, sid))
	assert.NoError(t, m.Remove(ctx, sid))
}

func TestRedisReady(t *testing.T) {
	mr, m := setupMiniRedis(t)
	assert.True(t, m.Ready(context.Background()))

	mr.Close()
	assert.False(t, m.Ready(context.Background()))
}
