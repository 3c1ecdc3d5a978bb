package presence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// presence key: im:presence:<identity>, value: node id, TTL bounds how long a
// crashed node can keep a user looking online.
func presenceKey(identity string) string { return "im:presence:" + identity }

// Delete only if this node still owns the key; a reconnect on another node
// must not be wiped by our late disconnect.
var offlineScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisMirror struct {
	client *redis.Client
	nodeID string
	ttl    time.Duration
}

// NewRedisMirror connects to redisURL (redis://...) and verifies it with a
// ping.
func NewRedisMirror(ctx context.Context, redisURL, nodeID string, ttl time.Duration) (*RedisMirror, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisMirror{client: client, nodeID: nodeID, ttl: ttl}, nil
}

// Online marks identity as served by this node and renews the TTL.
func (m *RedisMirror) Online(ctx context.Context, identity string) error {
	return m.client.Set(ctx, presenceKey(identity), m.nodeID, m.ttl).Err()
}

func (m *RedisMirror) Offline(ctx context.Context, identity string) error {
	return offlineScript.Run(ctx, m.client, []string{presenceKey(identity)}, m.nodeID).Err()
}

func (m *RedisMirror) IsOnline(ctx context.Context, identity string) (bool, error) {
	err := m.client.Get(ctx, presenceKey(identity)).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (m *RedisMirror) Close() error {
	return m.client.Close()
}
