package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"spextract/logging"
)

const redisKeyPrefix = "spextract:refresh_token:"

// RedisConfig configures the Redis connection.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// TTL bounds how long an unused token is kept. Zero keeps it forever.
	TTL time.Duration
}

// RedisStore keeps the refresh token under a prefixed key so several
// extractor configurations can share one Redis.
type RedisStore struct {
	client goredis.UniversalClient
	key    string
	ttl    time.Duration
	logger *logging.Logger
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig, key string) (*RedisStore, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Addr, err)
	}
	return NewRedisStoreWithClient(client, key, cfg.TTL), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client goredis.UniversalClient, key string, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		key:    redisKeyPrefix + key,
		ttl:    ttl,
		logger: logging.Default().WithComponent("token_store"),
	}
}

// LoadRefreshToken returns the stored token or "" when the key is absent.
func (s *RedisStore) LoadRefreshToken(ctx context.Context) (string, error) {
	token, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load refresh token: %w", err)
	}
	return token, nil
}

// SaveRefreshToken stores the token, refreshing the TTL.
func (s *RedisStore) SaveRefreshToken(ctx context.Context, token string) error {
	if token == "" {
		return errors.New("refusing to store an empty refresh token")
	}
	if err := s.client.Set(ctx, s.key, token, s.ttl).Err(); err != nil {
		return fmt.Errorf("save refresh token: %w", err)
	}
	s.logger.Security("Refresh token persisted", "backend", "redis", "key", s.key)
	return nil
}

// Close releases the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
