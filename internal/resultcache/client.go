// Package resultcache stores finished ChapterResults in Redis, keyed by
// fingerprint, and provides the distributed lock the chapter pipeline takes
// around a fingerprint's build. The pipeline is fail-open: a worker that
// finds the lock held builds anyway, so the lock alone does not stop two
// workers translating the same fingerprint at once.
package resultcache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	dialTimeout  = 3 * time.Second
	readTimeout  = 2 * time.Second
	writeTimeout = 2 * time.Second
	pingTimeout  = 2 * time.Second
)

// NewClient parses a Redis URL and returns a ready-to-use client, pinging it
// once so startup fails fast on a bad connection string.
func NewClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("resultcache: invalid redis url: %w", err)
	}

	options.PoolSize = 10
	options.MinIdleConns = 2
	options.MaxIdleConns = 5
	options.DialTimeout = dialTimeout
	options.ReadTimeout = readTimeout
	options.WriteTimeout = writeTimeout

	client := redis.NewClient(options)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("resultcache: ping failed: %w", err)
	}

	return client, nil
}
