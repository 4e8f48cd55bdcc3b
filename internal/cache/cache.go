package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"pricefeed/internal/config"
	"pricefeed/internal/model"
)

// hashKey is the single Redis hash holding all latest prices.
const hashKey = "latest_prices"

// Errors
var (
	// ErrNotFound means the asset has no usable cached price: unknown id,
	// never fetched, or the hash expired / was released.
	ErrNotFound = errors.New("price not found in cache")
)

// Cache is the write-through latest-price store.
type Cache struct {
	client *redis.Client
	logger *slog.Logger

	// active is false until Init seeds the keyspace, and again after
	// Release. Reads while inactive report ErrNotFound.
	active atomic.Bool
}

// New connects to Redis and verifies the connection.
func New(cfg config.RedisConfig, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Cache{
		client: client,
		logger: logger,
	}, nil
}

// Init seeds a null entry for every known asset so "known but unfetched"
// is distinguishable from "unknown asset", and activates reads.
func (c *Cache) Init(ctx context.Context, assets []model.Asset) error {
	fields := make(map[string]any, len(assets))
	for _, a := range assets {
		data, err := json.Marshal(model.CacheEntry{AssetID: a.ID})
		if err != nil {
			return fmt.Errorf("marshal seed entry: %w", err)
		}
		fields[a.ID] = data
	}

	if err := c.client.HSet(ctx, hashKey, fields).Err(); err != nil {
		return fmt.Errorf("seed cache: %w", err)
	}

	c.active.Store(true)
	c.logger.Info("cache initialized", "assets", len(assets))
	return nil
}

// Release drops the keyspace and deactivates reads. Called when leaving
// live mode.
func (c *Cache) Release(ctx context.Context) error {
	c.active.Store(false)
	if err := c.client.Del(ctx, hashKey).Err(); err != nil {
		return fmt.Errorf("drop cache key: %w", err)
	}
	c.logger.Info("cache released")
	return nil
}

// WriteBatch upserts all observations in one pipeline, then resets the
// whole-hash TTL. Last write wins; the single-writer scheduler makes
// conflict detection unnecessary.
func (c *Cache) WriteBatch(ctx context.Context, observations []model.PriceObservation, ttl time.Duration) error {
	if len(observations) == 0 {
		return nil
	}

	pipe := c.client.Pipeline()
	for _, obs := range observations {
		data, err := json.Marshal(entryFromObservation(obs))
		if err != nil {
			return fmt.Errorf("marshal entry: %w", err)
		}
		pipe.HSet(ctx, hashKey, obs.AssetID, data)
	}
	pipe.Expire(ctx, hashKey, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache batch write: %w", err)
	}

	c.logger.Debug("cache batch written", "count", len(observations), "ttl", ttl)
	return nil
}

// Write upserts a single observation and resets the TTL. Used by the
// on-demand fetch path; same write-through policy as a cycle.
func (c *Cache) Write(ctx context.Context, obs model.PriceObservation, ttl time.Duration) error {
	return c.WriteBatch(ctx, []model.PriceObservation{obs}, ttl)
}

// Read returns the cached observation for an asset. ErrNotFound covers
// every unusable case: inactive cache, expired hash, unknown asset, or
// a seeded entry that was never written.
func (c *Cache) Read(ctx context.Context, assetID string) (model.PriceObservation, error) {
	if !c.active.Load() {
		return model.PriceObservation{}, ErrNotFound
	}

	data, err := c.client.HGet(ctx, hashKey, assetID).Result()
	if errors.Is(err, redis.Nil) {
		return model.PriceObservation{}, ErrNotFound
	}
	if err != nil {
		return model.PriceObservation{}, fmt.Errorf("cache read: %w", err)
	}

	var entry model.CacheEntry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		return model.PriceObservation{}, fmt.Errorf("unmarshal entry: %w", err)
	}
	if entry.Price == nil || entry.ObservedAt == nil {
		return model.PriceObservation{}, ErrNotFound
	}

	return model.PriceObservation{
		AssetID:    entry.AssetID,
		Price:      *entry.Price,
		ObservedAt: *entry.ObservedAt,
	}, nil
}

// Ping verifies the backend connection.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	c.active.Store(false)
	return c.client.Close()
}

func entryFromObservation(obs model.PriceObservation) model.CacheEntry {
	price := obs.Price
	at := obs.ObservedAt
	return model.CacheEntry{
		AssetID:    obs.AssetID,
		Price:      &price,
		ObservedAt: &at,
	}
}
