package sessionstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"github.com/oakridge/school-admin/identity-access-service/internal/config"
	"github.com/oakridge/school-admin/identity-access-service/internal/core/domain"
	"github.com/oakridge/school-admin/identity-access-service/internal/core/ports"
)

const keyPrefix = "session:"

// Client is the subset of redis command surface the store needs. Satisfied
// by *redis.Client and by the in-memory fake in tests.
type Client interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisStore mirrors session snapshots to Redis with a TTL, protected by a
// circuit breaker so a Redis outage degrades to in-process-only sessions
// instead of failing every request.
type RedisStore struct {
	client Client
	cb     *gobreaker.CircuitBreaker
}

var _ ports.SessionStore = (*RedisStore)(nil)

func NewRedisStore(client Client) *RedisStore {
	return &RedisStore{
		client: client,
		cb:     config.NewCircuitBreaker("Redis-Auth"),
	}
}

func (s *RedisStore) Save(ctx context.Context, sess domain.Session, ttl time.Duration) error {
	if sess.ID == "" {
		return errors.New("session id cannot be empty")
	}
	if ttl <= 0 {
		return errors.New("session ttl must be positive")
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	_, err = s.cb.Execute(func() (interface{}, error) {
		return nil, s.client.Set(ctx, keyPrefix+sess.ID, string(data), ttl).Err()
	})
	return err
}

func (s *RedisStore) Get(ctx context.Context, id string) (domain.Session, error) {
	if id == "" {
		return domain.Session{}, ports.ErrSessionNotFound
	}

	res, err := s.cb.Execute(func() (interface{}, error) {
		data, err := s.client.Get(ctx, keyPrefix+id).Result()
		if errors.Is(err, redis.Nil) {
			return nil, ports.ErrSessionNotFound
		}
		return data, err
	})
	if err != nil {
		return domain.Session{}, err
	}

	var sess domain.Session
	if err := json.Unmarshal([]byte(res.(string)), &sess); err != nil {
		return domain.Session{}, fmt.Errorf("unmarshal session: %w", err)
	}
	return sess, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.client.Del(ctx, keyPrefix+id).Err()
	})
	return err
}
