package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// RedisClient defines the interface for Redis operations.
type RedisClient interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Ping(ctx context.Context) error
	Close() error
}

// URLCache loads and stores discovered target URLs keyed by target name.
type URLCache interface {
	Load(ctx context.Context) (map[string]string, error)
	Store(ctx context.Context, urls map[string]string) error
}

// RedisURLCacheConfig configures the Redis-backed URL cache.
type RedisURLCacheConfig struct {
	Prefix string
	TTL    time.Duration // 0 keeps entries forever
}

// DefaultRedisURLCacheConfig returns a default configuration.
func DefaultRedisURLCacheConfig() RedisURLCacheConfig {
	return RedisURLCacheConfig{
		Prefix: "wealth-advisors",
		TTL:    30 * 24 * time.Hour,
	}
}

// RedisURLCache shares discovered URLs between crawler processes. The whole
// map lives under one key.
type RedisURLCache struct {
	client RedisClient
	config RedisURLCacheConfig
	logger *slog.Logger
}

// NewRedisURLCache creates a Redis-backed URL cache.
func NewRedisURLCache(client RedisClient, config RedisURLCacheConfig, logger *slog.Logger) *RedisURLCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisURLCache{
		client: client,
		config: config,
		logger: logger.With("component", "url_cache"),
	}
}

func (c *RedisURLCache) key() string {
	return fmt.Sprintf("%s:discovered_urls", c.config.Prefix)
}

// Load returns the cached URLs. A missing key is an empty cache.
func (c *RedisURLCache) Load(ctx context.Context) (map[string]string, error) {
	data, err := c.client.Get(ctx, c.key())
	if errors.Is(err, ErrCacheMiss) {
		c.logger.Debug("url cache miss", "key", c.key())
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read url cache: %w", err)
	}

	urls := map[string]string{}
	if err := json.Unmarshal([]byte(data), &urls); err != nil {
		return nil, fmt.Errorf("failed to decode url cache: %w", err)
	}
	c.logger.Debug("url cache hit", "key", c.key(), "urls", len(urls))
	return urls, nil
}

// Store replaces the cached map with urls.
func (c *RedisURLCache) Store(ctx context.Context, urls map[string]string) error {
	if urls == nil {
		urls = map[string]string{}
	}
	data, err := json.Marshal(urls)
	if err != nil {
		return fmt.Errorf("failed to encode url cache: %w", err)
	}
	if err := c.client.Set(ctx, c.key(), data, c.config.TTL); err != nil {
		return fmt.Errorf("failed to write url cache: %w", err)
	}

	c.logger.Debug("url cache stored", "key", c.key(), "urls", len(urls), "ttl", c.config.TTL)
	return nil
}

// Clear removes the cached URLs.
func (c *RedisURLCache) Clear(ctx context.Context) error {
	return c.client.Del(ctx, c.key())
}

// MultiURLCache layers several caches. Load merges them with earlier caches
// taking precedence; Store writes to all of them.
type MultiURLCache []URLCache

func (m MultiURLCache) Load(ctx context.Context) (map[string]string, error) {
	urls := map[string]string{}
	var errs []error
	for i := len(m) - 1; i >= 0; i-- {
		loaded, err := m[i].Load(ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for target, url := range loaded {
			urls[target] = url
		}
	}
	return urls, errors.Join(errs...)
}

func (m MultiURLCache) Store(ctx context.Context, urls map[string]string) error {
	var errs []error
	for _, c := range m {
		if err := c.Store(ctx, urls); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
