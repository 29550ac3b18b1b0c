package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ncnu-assistant/dormmail-backend/models"
	"github.com/ncnu-assistant/dormmail-backend/shared"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "dormmail:response:"

// RedisResponseStore shares cached responses between instances through redis.
// Expiry is delegated to redis key TTLs.
type RedisResponseStore struct {
	client *redis.Client
}

// NewRedisClient opens a client for the configured redis
func NewRedisClient(cfg shared.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// NewRedisResponseStore wraps an existing client
func NewRedisResponseStore(client *redis.Client) *RedisResponseStore {
	return &RedisResponseStore{client: client}
}

// Get implements ResponseStore
func (s *RedisResponseStore) Get(ctx context.Context, key string) (*models.CachedResponse, bool, error) {
	payload, err := s.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}

	var response models.CachedResponse
	if err := json.Unmarshal(payload, &response); err != nil {
		return nil, false, fmt.Errorf("decode cached response %s: %w", key, err)
	}
	if response.IsExpired() {
		return nil, false, nil
	}
	return &response, true, nil
}

// Set implements ResponseStore
func (s *RedisResponseStore) Set(ctx context.Context, key string, response *models.CachedResponse, ttl time.Duration) error {
	payload, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("encode cached response %s: %w", key, err)
	}
	if err := s.client.Set(ctx, redisKeyPrefix+key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// DeleteExpired is a no-op; redis evicts expired keys itself
func (s *RedisResponseStore) DeleteExpired(ctx context.Context) (int, error) {
	return 0, nil
}

// Size counts the response keys currently held in redis
func (s *RedisResponseStore) Size(ctx context.Context) (int, error) {
	count := 0
	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("redis scan: %w", err)
	}
	return count, nil
}

// Close releases the redis connection pool
func (s *RedisResponseStore) Close() error {
	return s.client.Close()
}
