package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/maltedev/catalog-enricher/internal/models"
	"github.com/maltedev/catalog-enricher/internal/scraper"
)

const (
	keyPrefix  = "catalog:lookup:"
	DefaultTTL = 24 * time.Hour
)

// RedisClient is the subset of *redis.Client the cache needs.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// LookupCache remembers successful lookups by product name. Records that
// carry an error are never stored, so a failed lookup is retried next time.
type LookupCache struct {
	next   scraper.Lookuper
	redis  RedisClient
	ttl    time.Duration
	logger *slog.Logger
}

func NewLookupCache(next scraper.Lookuper, client RedisClient, ttl time.Duration, logger *slog.Logger) *LookupCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &LookupCache{
		next:   next,
		redis:  client,
		ttl:    ttl,
		logger: logger.With("component", "lookup_cache"),
	}
}

// Key derives the cache key of a product name. Case and surrounding
// whitespace do not matter.
func Key(itemName string) string {
	sum := sha1.Sum([]byte(strings.ToLower(strings.TrimSpace(itemName))))
	return keyPrefix + hex.EncodeToString(sum[:])
}

func (c *LookupCache) Lookup(ctx context.Context, itemName string) models.AttributeRecord {
	key := Key(itemName)

	if rec, ok := c.get(ctx, key); ok {
		c.logger.Debug("cache hit", "item", itemName)
		return rec
	}

	rec := c.next.Lookup(ctx, itemName)
	if rec.Error == "" {
		c.set(ctx, key, rec)
	}
	return rec
}

func (c *LookupCache) get(ctx context.Context, key string) (models.AttributeRecord, bool) {
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("cache read failed", "key", key, "error", err)
		}
		return models.AttributeRecord{}, false
	}

	var rec models.AttributeRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		c.logger.Warn("discarding corrupt cache entry", "key", key, "error", err)
		return models.AttributeRecord{}, false
	}
	rec.Normalize()
	return rec, true
}

func (c *LookupCache) set(ctx context.Context, key string, rec models.AttributeRecord) {
	data, err := json.Marshal(rec)
	if err != nil {
		c.logger.Warn("failed to encode record", "key", key, "error", err)
		return
	}
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("cache write failed", "key", key, "error", fmt.Errorf("set: %w", err))
	}
}
