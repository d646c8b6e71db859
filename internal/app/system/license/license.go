// Package license answers whether the deployment holds a valid license key.
package license

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/dalemusser/stratabook/internal/app/system/timeouts"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultCacheTTL is used when Config.CacheTTL is zero.
const DefaultCacheTTL = time.Hour

const cacheKeyPrefix = "stratabook:license:"

// Cache stores license verdicts between checks.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// Config configures a Checker.
type Config struct {
	Key      string
	URL      string
	CacheTTL time.Duration
}

// Checker verifies the license key against the license server.
type Checker struct {
	cfg    Config
	client *http.Client
	cache  Cache
	log    *zap.Logger
}

// NewChecker creates a Checker. cache may be nil, in which case every call
// asks the license server.
func NewChecker(cfg Config, cache Cache, log *zap.Logger) *Checker {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	return &Checker{
		cfg:    cfg,
		client: &http.Client{Timeout: timeouts.External()},
		cache:  cache,
		log:    log,
	}
}

// Valid reports whether the configured key is valid. An empty key, an
// unreachable server, or an unexpected answer all count as invalid.
func (c *Checker) Valid(ctx context.Context) bool {
	if c.cfg.Key == "" || c.cfg.URL == "" {
		return false
	}
	key := cacheKey(c.cfg.Key)

	if c.cache != nil {
		v, ok, err := c.cache.Get(ctx, key)
		if err != nil {
			c.log.Warn("license cache read failed", zap.Error(err))
		} else if ok {
			return v == "1"
		}
	}

	valid, err := c.fetch(ctx)
	if err != nil {
		c.log.Error("license check failed", zap.Error(err))
		return false
	}
	c.store(ctx, key, valid)
	return valid
}

// Refresh asks the license server and overwrites the cached verdict.
func (c *Checker) Refresh(ctx context.Context) error {
	if c.cfg.Key == "" || c.cfg.URL == "" {
		return nil
	}
	valid, err := c.fetch(ctx)
	if err != nil {
		return err
	}
	c.store(ctx, cacheKey(c.cfg.Key), valid)
	return nil
}

// cacheKey names the cache entry for a license key by its SHA-256 digest so
// the key itself never appears in the cache keyspace.
func cacheKey(licenseKey string) string {
	sum := sha256.Sum256([]byte(licenseKey))
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}

func (c *Checker) store(ctx context.Context, key string, valid bool) {
	if c.cache == nil {
		return
	}
	v := "0"
	if valid {
		v = "1"
	}
	if err := c.cache.Set(ctx, key, v, c.cfg.CacheTTL); err != nil {
		c.log.Warn("license cache write failed", zap.Error(err))
	}
}

type verdict struct {
	Valid bool `json:"valid"`
}

func (c *Checker) fetch(ctx context.Context) (bool, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return false, fmt.Errorf("parse license url: %w", err)
	}
	q := u.Query()
	q.Set("key", c.cfg.Key)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return false, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("license request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("license server returned %d", resp.StatusCode)
	}
	var v verdict
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&v); err != nil {
		return false, fmt.Errorf("decode license response: %w", err)
	}
	return v.Valid, nil
}

// RedisCache adapts a go-redis client to Cache.
type RedisCache struct {
	client redis.UniversalClient
}

// NewRedisCache wraps client.
func NewRedisCache(client redis.UniversalClient) *RedisCache {
	return &RedisCache{client: client}
}

func (r *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}
