package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// QuotaResult describes one fixed-window quota check
type QuotaResult struct {
	Limit     int64
	Remaining int64
	ResetIn   time.Duration
	Exceeded  bool
}

// QuotaStore counts requests per key over a fixed window
type QuotaStore interface {
	CheckQuota(ctx context.Context, key string, limit int64, window time.Duration) (*QuotaResult, error)
}

// RedisService provides the Redis connection used for per-agent quotas and
// webhook delivery de-duplication
type RedisService struct {
	client *redis.Client
	mu     sync.RWMutex
}

// NewRedisService connects to Redis and verifies the connection
func NewRedisService(redisURL string) (*RedisService, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.PoolSize = 10
	opts.MinIdleConns = 2
	opts.MaxRetries = 3
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Println("✅ [REDIS] Connection established")
	return &RedisService{client: client}, nil
}

// NewRedisServiceFromClient wraps an existing client
func NewRedisServiceFromClient(client *redis.Client) *RedisService {
	return &RedisService{client: client}
}

// Close closes the Redis connection
func (r *RedisService) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Ping checks if Redis is healthy
func (r *RedisService) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// CheckQuota increments the counter for key and reports whether the limit is
// exceeded. The window starts at the first request.
func (r *RedisService) CheckQuota(ctx context.Context, key string, limit int64, window time.Duration) (*QuotaResult, error) {
	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return nil, err
	}

	if count == 1 {
		if err := r.client.Expire(ctx, key, window).Err(); err != nil {
			return nil, err
		}
	}

	ttl, err := r.client.TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		ttl = window
	}

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}

	return &QuotaResult{
		Limit:     limit,
		Remaining: remaining,
		ResetIn:   ttl,
		Exceeded:  count > limit,
	}, nil
}

// ClaimDelivery records a webhook delivery id. It returns false when the id
// was already seen within ttl.
func (r *RedisService) ClaimDelivery(ctx context.Context, deliveryID string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, "webhook:delivery:"+deliveryID, time.Now().Unix(), ttl).Result()
}

// ReleaseDelivery forgets a claimed delivery so a redelivery is processed again
func (r *RedisService) ReleaseDelivery(ctx context.Context, deliveryID string) error {
	return r.client.Del(ctx, "webhook:delivery:"+deliveryID).Err()
}
