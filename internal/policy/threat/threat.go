// Package threat keeps a per-student threat indicator. Unsafe uploads and
// policy alerts raise it; reviewers read it alongside the application.
package threat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	id "scholarship/pkg/domain"
)

const (
	keyPrefix  = "scholarship:threat:"
	defaultTTL = 90 * 24 * time.Hour
)

// InMemory counts elevations per student.
type InMemory struct {
	mu     sync.Mutex
	levels map[id.UserID]int64
}

func NewInMemory() *InMemory {
	return &InMemory{levels: make(map[id.UserID]int64)}
}

func (s *InMemory) Elevate(_ context.Context, studentID id.UserID, _ string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.levels[studentID]++
	return s.levels[studentID], nil
}

func (s *InMemory) Level(_ context.Context, studentID id.UserID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.levels[studentID], nil
}

// RedisStore keeps the indicator in a counter that decays after ttl without
// further elevations.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedis(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Elevate(ctx context.Context, studentID id.UserID, _ string) (int64, error) {
	key := keyPrefix + studentID.String()
	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("elevate threat indicator: %w", err)
	}
	return incr.Val(), nil
}

func (s *RedisStore) Level(ctx context.Context, studentID id.UserID) (int64, error) {
	n, err := s.client.Get(ctx, keyPrefix+studentID.String()).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read threat indicator: %w", err)
	}
	return n, nil
}
