package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

func NewRedisClient(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return client, nil
}

// RedisRateLimiter is a fixed-window limiter shared by every instance that
// talks to the same Redis.
type RedisRateLimiter struct {
	Client *redis.Client
	prefix string
	limit  int
	window time.Duration
}

func NewRedisRateLimiter(client *redis.Client, prefix string, limit int, window time.Duration) *RedisRateLimiter {
	return &RedisRateLimiter{Client: client, prefix: prefix, limit: limit, window: window}
}

func (l *RedisRateLimiter) Window() time.Duration {
	return l.window
}

func (l *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	redisKey := fmt.Sprintf("ratelimit:%s:%s", l.prefix, key)

	var incr *redis.IntCmd
	_, err := l.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, redisKey, 0, l.window)
		incr = pipe.Incr(ctx, redisKey)
		return nil
	})
	if err != nil {
		return false, 0, fmt.Errorf("failed to count request in redis: %w", err)
	}

	if incr.Val() <= int64(l.limit) {
		return true, 0, nil
	}

	ttl, err := l.Client.PTTL(ctx, redisKey).Result()
	if err != nil {
		return false, 0, fmt.Errorf("failed to read rate limit ttl from redis: %w", err)
	}
	if ttl < 0 {
		ttl = l.window
	}
	return false, ttl, nil
}

// RedisSessionSet records processed payment sessions with a TTL so the set
// bounds itself.
type RedisSessionSet struct {
	Client *redis.Client
	ttl    time.Duration
}

func NewRedisSessionSet(client *redis.Client, ttl time.Duration) *RedisSessionSet {
	return &RedisSessionSet{Client: client, ttl: ttl}
}

func (s *RedisSessionSet) Seen(ctx context.Context, sessionID string) (bool, error) {
	n, err := s.Client.Exists(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check session in redis: %w", err)
	}
	return n > 0, nil
}

func (s *RedisSessionSet) Mark(ctx context.Context, sessionID string) error {
	if err := s.Client.Set(ctx, sessionKey(sessionID), time.Now().Unix(), s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to mark session in redis: %w", err)
	}
	return nil
}

func sessionKey(sessionID string) string {
	return fmt.Sprintf("processed_session:%s", sessionID)
}
