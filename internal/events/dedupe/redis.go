package dedupe

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"vendcore/pkg/domain"
)

// RedisStore shares seen-event IDs across service instances. SET NX is the
// atomic check-and-set; the TTL bounds memory since redeliveries only happen
// within the outbox retry horizon.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if prefix == "" {
		prefix = "vendcore:seen"
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}, nil
}

var _ SeenStore = (*RedisStore)(nil)

func (s *RedisStore) FirstSeen(ctx context.Context, eventID domain.EventID) (bool, error) {
	first, err := s.client.SetNX(ctx, s.key(eventID), 1, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedupe check: %w", err)
	}
	return first, nil
}

func (s *RedisStore) Forget(ctx context.Context, eventID domain.EventID) error {
	if err := s.client.Del(ctx, s.key(eventID)).Err(); err != nil {
		return fmt.Errorf("release dedupe claim: %w", err)
	}
	return nil
}

func (s *RedisStore) key(eventID domain.EventID) string {
	return fmt.Sprintf("%s:%s", s.prefix, eventID.String())
}
