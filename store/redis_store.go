package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	fieldLastPingAt = "lastPingAt"
	fieldStatus     = "status"
)

// RedisStore keeps session records as redis hashes under <namespace>:session:<id>.
type RedisStore struct {
	client    redis.UniversalClient
	namespace string
	ttl       time.Duration
}

// NewRedisStore creates a redis backed store. A positive ttl expires idle records.
func NewRedisStore(client redis.UniversalClient, namespace string, ttl time.Duration) *RedisStore {
	if namespace == "" {
		namespace = "mcpgw"
	}
	return &RedisStore{client: client, namespace: namespace, ttl: ttl}
}

func (s *RedisStore) key(id string) string {
	return s.namespace + ":session:" + id
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Session, bool, error) {
	values, err := s.client.HGetAll(ctx, s.key(id)).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to load session %v: %w", id, err)
	}
	if len(values) == 0 {
		return nil, false, nil
	}
	ret := &Session{ID: id, Status: Status(values[fieldStatus])}
	if raw := values[fieldLastPingAt]; raw != "" {
		if ret.LastPingAt, err = time.Parse(time.RFC3339Nano, raw); err != nil {
			return nil, false, fmt.Errorf("invalid %v for session %v: %w", fieldLastPingAt, id, err)
		}
	}
	return ret, true, nil
}

func (s *RedisStore) Touch(ctx context.Context, id string, at time.Time) error {
	key := s.key(id)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fieldLastPingAt, at.UTC().Format(time.RFC3339Nano))
		pipe.HSetNX(ctx, key, fieldStatus, string(StatusActive))
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to touch session %v: %w", id, err)
	}
	return nil
}

func (s *RedisStore) SetStatus(ctx context.Context, id string, status Status) error {
	if err := s.client.HSet(ctx, s.key(id), fieldStatus, string(status)).Err(); err != nil {
		return fmt.Errorf("failed to set session %v status: %w", id, err)
	}
	return nil
}
