package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/example/photolabel/internal/workflow"
)

// RedisStore keeps sessions in Redis so the service can run more than one
// replica behind a balancer. Expiry is delegated to Redis TTLs; orphaned
// spool files are covered by the spool sweep.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an already-connected client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func sessionKey(id string) string {
	return fmt.Sprintf("session:%s", id)
}

// Save implements Store.
func (r *RedisStore) Save(ctx context.Context, s *workflow.Session, ttl time.Duration) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, sessionKey(s.ID), payload, ttl).Err()
}

// Get implements Store.
func (r *RedisStore) Get(ctx context.Context, id string) (*workflow.Session, error) {
	payload, err := r.client.Get(ctx, sessionKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var s workflow.Session
	if err := json.Unmarshal([]byte(payload), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Delete implements Store.
func (r *RedisStore) Delete(ctx context.Context, id string) error {
	return r.client.Del(ctx, sessionKey(id)).Err()
}
