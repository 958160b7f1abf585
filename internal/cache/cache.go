// Package cache provides Redis-based caching for hot level data
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/savegress/dosetrack/internal/config"
	"github.com/savegress/dosetrack/pkg/models"
)

// TTLCurve bounds how long a sampled curve may be served stale
const TTLCurve = 1 * time.Minute

// Cache provides Redis-based caching operations
type Cache struct {
	client      *redis.Client
	keyPrefix   string
	snapshotTTL time.Duration
	enabled     bool
}

// New creates a new Cache instance. An empty Redis URL disables caching;
// every operation then becomes a no-op.
func New(cfg config.RedisConfig, snapshotTTL time.Duration) (*Cache, error) {
	if cfg.URL == "" {
		return &Cache{enabled: false}, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &Cache{
		client:      client,
		keyPrefix:   "dosetrack",
		snapshotTTL: snapshotTTL,
		enabled:     true,
	}, nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// IsEnabled returns whether caching is enabled
func (c *Cache) IsEnabled() bool {
	return c.enabled
}

// key generates a cache key with prefix
func (c *Cache) key(parts ...string) string {
	key := c.keyPrefix
	for _, part := range parts {
		key += ":" + part
	}
	return key
}

// Get retrieves a value from cache
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) error {
	if !c.enabled {
		return redis.Nil
	}

	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		return err
	}

	return json.Unmarshal(data, dest)
}

// Set stores a value in cache with TTL
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !c.enabled {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	return c.client.Set(ctx, c.key(key), data, ttl).Err()
}

// Delete removes values from cache
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if !c.enabled || len(keys) == 0 {
		return nil
	}

	fullKeys := make([]string, len(keys))
	for i, k := range keys {
		fullKeys[i] = c.key(k)
	}

	return c.client.Del(ctx, fullKeys...).Err()
}

// DeletePattern removes all keys matching a pattern
func (c *Cache) DeletePattern(ctx context.Context, pattern string) error {
	if !c.enabled {
		return nil
	}

	iter := c.client.Scan(ctx, 0, c.key(pattern), 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}

	if len(keys) > 0 {
		return c.client.Del(ctx, keys...).Err()
	}
	return nil
}

// Snapshot caching

// GetSnapshot retrieves the latest level snapshot from cache
func (c *Cache) GetSnapshot(ctx context.Context) (*models.LevelSnapshot, error) {
	var snap models.LevelSnapshot
	if err := c.Get(ctx, "snapshot", &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// SetSnapshot stores the latest level snapshot in cache
func (c *Cache) SetSnapshot(ctx context.Context, snap *models.LevelSnapshot) error {
	return c.Set(ctx, "snapshot", snap, c.snapshotTTL)
}

// Curve caching

func curveKey(from, to time.Time, step time.Duration, unit string) string {
	return fmt.Sprintf("curve:%d:%d:%d:%s", from.Unix(), to.Unix(), int64(step.Seconds()), unit)
}

// GetCurve retrieves a sampled curve from cache
func (c *Cache) GetCurve(ctx context.Context, from, to time.Time, step time.Duration, unit string) ([]models.CurvePoint, error) {
	var points []models.CurvePoint
	if err := c.Get(ctx, curveKey(from, to, step, unit), &points); err != nil {
		return nil, err
	}
	return points, nil
}

// SetCurve stores a sampled curve in cache
func (c *Cache) SetCurve(ctx context.Context, from, to time.Time, step time.Duration, unit string, points []models.CurvePoint) error {
	return c.Set(ctx, curveKey(from, to, step, unit), points, TTLCurve)
}

// InvalidateCurves drops all cached curves, called after any dose, test,
// or schedule mutation.
func (c *Cache) InvalidateCurves(ctx context.Context) error {
	return c.DeletePattern(ctx, "curve:*")
}
