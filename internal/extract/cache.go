package extract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// MetadataCache stores fetched page metadata by URL.
// A miss returns (Metadata{}, false, nil).
type MetadataCache interface {
	Get(ctx context.Context, url string) (Metadata, bool, error)
	Set(ctx context.Context, url string, m Metadata) error
}

const cacheKeyPrefix = "mindbase:meta:"

// RedisCache is a MetadataCache backed by Redis with a fixed TTL.
type RedisCache struct {
	rdb *goredis.Client
	ttl time.Duration
}

// NewRedisCache connects to redisURL (redis://[user:pass@]host:port/db) and pings it.
func NewRedisCache(ctx context.Context, redisURL string, ttl time.Duration) (*RedisCache, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second

	rdb := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisCache{rdb: rdb, ttl: ttl}, nil
}

// Get returns cached metadata for url.
func (c *RedisCache) Get(ctx context.Context, url string) (Metadata, bool, error) {
	raw, err := c.rdb.Get(ctx, cacheKey(url)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return Metadata{}, false, nil
	}
	if err != nil {
		return Metadata{}, false, fmt.Errorf("redis get: %w", err)
	}
	var m Metadata
	if err := json.Unmarshal(raw, &m); err != nil {
		return Metadata{}, false, fmt.Errorf("decode cached metadata: %w", err)
	}
	return m, true, nil
}

// Set stores metadata for url.
func (c *RedisCache) Set(ctx context.Context, url string, m Metadata) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := c.rdb.Set(ctx, cacheKey(url), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (c *RedisCache) Close() error {
	return c.rdb.Close()
}

func cacheKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}
