package sessionmap

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/browsergrid/gridcore/internal/gridtypes"
)

const keyPrefix = "session:"

// Redis is a Map backend delegating the session binding to a shared Redis
// instance, so the binding outlives a single distributor process and can
// be shared by multiple distributor replicas.
type Redis struct {
	client *redis.Client
}

// NewRedis wraps an already-constructed client. Connection lifecycle
// (dial options, auth, pool sizing) is the caller's concern, set up at
// process start the way cmd/distributor's main does it.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func sessionKey(id gridtypes.SessionID) string {
	return keyPrefix + string(id)
}

// Add implements Map using SET NX, so the existence check and the write
// are atomic on the Redis server rather than racing two round trips.
func (r *Redis) Add(ctx context.Context, sessionID gridtypes.SessionID, nodeURI string) error {
	ok, err := r.client.SetNX(ctx, sessionKey(sessionID), nodeURI, 0).Result()
	if err != nil {
		return &gridtypes.Transport{Op: "sessionmap.Add", Err: err}
	}
	if !ok {
		return &gridtypes.SessionExists{SessionID: sessionID}
	}
	return nil
}

// GetURI implements Map.
func (r *Redis) GetURI(ctx context.Context, sessionID gridtypes.SessionID) (string, error) {
	uri, err := r.client.Get(ctx, sessionKey(sessionID)).Result()
	if err == redis.Nil {
		return "", &gridtypes.NoSuchSession{SessionID: sessionID}
	}
	if err != nil {
		return "", &gridtypes.Transport{Op: "sessionmap.GetURI", Err: err}
	}
	return uri, nil
}

// Remove implements Map.
func (r *Redis) Remove(ctx context.Context, sessionID gridtypes.SessionID) error {
	if err := r.client.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		return &gridtypes.Transport{Op: "sessionmap.Remove", Err: err}
	}
	return nil
}

// Ready implements Map by pinging the Redis connection.
func (r *Redis) Ready(ctx context.Context) bool {
	return r.client.Ping(ctx).Err() == nil
}

// NewClient is a convenience constructor for cmd/distributor's main,
// mirroring the connection settings the pack's Redis-backed cache uses.
func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}
