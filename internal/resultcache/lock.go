package resultcache

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/toonrelay/pipeline/internal/model"
	"github.com/toonrelay/pipeline/internal/pipelineerr"
)

const lockKeyPrefix = "toonrelay:lock:"

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
else
  return 0
end
`)

// Lock is a held distributed lock for one fingerprint. Release is
// idempotent and safe to call via defer.
type Lock struct {
	cache *Cache
	key   string
	token string
}

func lockKey(fp model.Fingerprint) string {
	return lockKeyPrefix + fp.Key()
}

// TryLock attempts to acquire the fingerprint's lock with the cache's TTL.
// It returns (nil, nil) if another worker already holds it — callers treat
// that as "already in progress", not an error. A Redis outage fails open:
// the caller proceeds without a lock rather than blocking the whole
// pipeline on a down cache.
func (c *Cache) TryLock(ctx context.Context, fp model.Fingerprint) (*Lock, error) {
	token, err := randomToken()
	if err != nil {
		return nil, pipelineerr.New(pipelineerr.KindInvariant, "resultcache.TryLock", err)
	}

	key := lockKey(fp)
	ok, err := c.client.SetNX(ctx, key, token, c.lockTTL).Result()
	if err != nil {
		// Fail open: a cache outage must not stop chapters from being
		// processed, only widen the window for duplicate work.
		return &Lock{cache: c, key: key, token: ""}, nil
	}
	if !ok {
		return nil, nil
	}
	return &Lock{cache: c, key: key, token: token}, nil
}

// Release drops the lock if this Lock still holds it. It is a no-op for a
// fail-open lock (acquired during a cache outage) or one already released.
func (l *Lock) Release(ctx context.Context) error {
	if l == nil || l.token == "" {
		return nil
	}
	err := releaseScript.Run(ctx, l.cache.client, []string{l.key}, l.token).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return pipelineerr.New(pipelineerr.KindStorage, "resultcache.Release", err)
	}
	return nil
}

func randomToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// Extend refreshes the lock's TTL, used by long-running chapter jobs that
// would otherwise outlive the lock.
func (l *Lock) Extend(ctx context.Context, ttl time.Duration) error {
	if l == nil || l.token == "" {
		return nil
	}
	ok, err := l.cache.client.Expire(ctx, l.key, ttl).Result()
	if err != nil {
		return pipelineerr.New(pipelineerr.KindStorage, "resultcache.Extend", err)
	}
	if !ok {
		return pipelineerr.Wrap(pipelineerr.KindConflict, "resultcache.Extend", "lock no longer held")
	}
	return nil
}
