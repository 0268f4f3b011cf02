package resultcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/toonrelay/pipeline/internal/model"
	"github.com/toonrelay/pipeline/internal/pipelineerr"
)

const resultKeyPrefix = "toonrelay:result:"

// Cache caches finished ChapterResults keyed by fingerprint. It also hands
// out the per-fingerprint Lock (see lock.go): same Redis connection,
// separate key prefix and separate TTL, per the spec's "share a store but
// are logically independent" guidance.
type Cache struct {
	client  *redis.Client
	ttl     time.Duration // result TTL, default 30 days
	lockTTL time.Duration // lock TTL, default 1 hour
}

// NewCache wraps a Redis client with the pipeline's result-cache key
// convention, result TTL, and lock TTL.
func NewCache(client *redis.Client, ttl, lockTTL time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl, lockTTL: lockTTL}
}

func resultKey(fp model.Fingerprint) string {
	return resultKeyPrefix + fp.Key()
}

// Get returns the cached result for fp, or (nil, nil) on a cache miss.
func (c *Cache) Get(ctx context.Context, fp model.Fingerprint) (*model.ChapterResult, error) {
	raw, err := c.client.Get(ctx, resultKey(fp)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, pipelineerr.New(pipelineerr.KindStorage, "resultcache.Get", err)
	}

	var result model.ChapterResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, pipelineerr.New(pipelineerr.KindStorage, "resultcache.Get", fmt.Errorf("decode cached result: %w", err))
	}
	return &result, nil
}

// Set stores result under fp's key with the cache's configured TTL.
func (c *Cache) Set(ctx context.Context, fp model.Fingerprint, result *model.ChapterResult) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return pipelineerr.New(pipelineerr.KindInvariant, "resultcache.Set", fmt.Errorf("encode result: %w", err))
	}
	if err := c.client.Set(ctx, resultKey(fp), raw, c.ttl).Err(); err != nil {
		return pipelineerr.New(pipelineerr.KindStorage, "resultcache.Set", err)
	}
	return nil
}

// Delete removes a single fingerprint's cached result.
func (c *Cache) Delete(ctx context.Context, fp model.Fingerprint) error {
	if err := c.client.Del(ctx, resultKey(fp)).Err(); err != nil {
		return pipelineerr.New(pipelineerr.KindStorage, "resultcache.Delete", err)
	}
	return nil
}

// InvalidateSeries drops every cached result whose chapter URL belongs to
// seriesURLPrefix. Redis has no native "delete by field" so this scans keys
// by pattern, matching the cache invalidation sweep the reference
// implementation runs after a series is re-published under a new glossary.
func (c *Cache) InvalidateSeries(ctx context.Context, seriesURLPrefix string) (int, error) {
	var cursor uint64
	deleted := 0
	pattern := resultKeyPrefix + "*"

	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return deleted, pipelineerr.New(pipelineerr.KindStorage, "resultcache.InvalidateSeries", err)
		}

		for _, key := range keys {
			raw, err := c.client.Get(ctx, key).Bytes()
			if err != nil {
				continue
			}
			var result model.ChapterResult
			if err := json.Unmarshal(raw, &result); err != nil {
				continue
			}
			if !matchesSeriesPrefix(result.Fingerprint.ChapterURL, seriesURLPrefix) {
				continue
			}
			if err := c.client.Del(ctx, key).Err(); err == nil {
				deleted++
			}
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}
	return deleted, nil
}

func matchesSeriesPrefix(chapterURL, seriesURLPrefix string) bool {
	if seriesURLPrefix == "" {
		return false
	}
	return len(chapterURL) >= len(seriesURLPrefix) && chapterURL[:len(seriesURLPrefix)] == seriesURLPrefix
}
