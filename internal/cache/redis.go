package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"botfleet-api/internal/logging"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

var releaseIfUnchangedScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

// RedisConfig holds configuration for the Redis cache.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// RedisCache is a guard store shared by every API replica pointing at the same Redis.
type RedisCache struct {
	client    *redis.Client
	keyPrefix string
	logger    *log.Logger
}

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     20,
		MinIdleConns: 2,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// NewRedisCache wraps an existing client. Keys are namespaced by cfg.KeyPrefix.
func NewRedisCache(client *redis.Client, cfg RedisConfig, logger *log.Logger) *RedisCache {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "botfleet:cache"
	}
	c := &RedisCache{
		client:    client,
		keyPrefix: prefix,
		logger:    logging.Component(logger, "RedisCache"),
	}
	c.logger.Info("started", "db", cfg.DB, "prefix", prefix)
	return c
}

func (c *RedisCache) key(k string) string {
	return c.keyPrefix + ":" + k
}

// SetNX stores the value unless the key exists.
func (c *RedisCache) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, c.key(key), value, ttl).Result()
}

// Release deletes key if it still holds value.
func (c *RedisCache) Release(ctx context.Context, key string, value []byte) error {
	err := releaseIfUnchangedScript.Run(ctx, c.client, []string{c.key(key)}, value).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

// Close closes the underlying client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

var _ Cache = (*RedisCache)(nil)
