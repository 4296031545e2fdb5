package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/johnwmail/pasties/models"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	cacheKeyPrefix = "pasties:paste:"
	cacheGenPrefix = "pasties:gen:"
)

// cacheClient is the part of *redis.Client the cache needs
type cacheClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// CachedStore puts a Redis read-through cache in front of another store.
// Only GetByURL is served from Redis; every write drops the cached copy.
// View counts of a cached paste may lag by up to the TTL.
//
// Every invalidation bumps a per URL generation counter. A reader that
// filled the cache while the generation moved drops its entry again, so a
// write racing a read cannot leave the old paste cached.
type CachedStore struct {
	next   PasteStore
	client cacheClient
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedStore wraps next with a Redis client built from opt
func NewCachedStore(next PasteStore, opt *redis.Options, ttl time.Duration, logger *zap.Logger) *CachedStore {
	return newCachedStoreWithClient(next, redis.NewClient(opt), ttl, logger)
}

func newCachedStoreWithClient(next PasteStore, client cacheClient, ttl time.Duration, logger *zap.Logger) *CachedStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedStore{next: next, client: client, ttl: ttl, logger: logger}
}

func cacheKey(url string) string {
	return cacheKeyPrefix + url
}

func cacheGenKey(url string) string {
	return cacheGenPrefix + url
}

// generation returns the invalidation counter of url, 0 when unset
func (c *CachedStore) generation(ctx context.Context, url string) (int64, error) {
	gen, err := c.client.Get(ctx, cacheGenKey(url)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// invalidate bumps the generation before deleting, which fill relies on
func (c *CachedStore) invalidate(ctx context.Context, urls ...string) {
	keys := make([]string, 0, len(urls))
	for _, url := range urls {
		genKey := cacheGenKey(url)
		if err := c.client.Incr(ctx, genKey).Err(); err != nil {
			c.logger.Warn("cache generation bump failed", zap.String("url", url), zap.Error(err))
		} else {
			_ = c.client.Expire(ctx, genKey, c.ttl+time.Hour).Err()
		}
		keys = append(keys, cacheKey(url))
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("cache invalidation failed", zap.Strings("urls", urls), zap.Error(err))
	}
}

// fill caches paste unless url was invalidated since gen was read
func (c *CachedStore) fill(ctx context.Context, url string, gen int64, paste *models.Paste) {
	data, err := json.Marshal(paste)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, cacheKey(url), data, c.ttl).Err(); err != nil {
		c.logger.Warn("cache write failed", zap.String("url", url), zap.Error(err))
		return
	}

	now, err := c.generation(ctx, url)
	if err != nil || now != gen {
		if derr := c.client.Del(ctx, cacheKey(url)).Err(); derr != nil {
			c.logger.Warn("dropping raced cache entry failed", zap.String("url", url), zap.Error(derr))
		}
	}
}

func (c *CachedStore) Create(ctx context.Context, paste *models.Paste) error {
	if err := c.next.Create(ctx, paste); err != nil {
		return err
	}
	c.invalidate(ctx, paste.URL)
	return nil
}

// GetByURL answers from Redis when possible. Redis failures fall through to
// the wrapped store.
func (c *CachedStore) GetByURL(ctx context.Context, url string) (*models.Paste, error) {
	raw, err := c.client.Get(ctx, cacheKey(url)).Bytes()
	switch {
	case err == nil:
		var paste models.Paste
		if jerr := json.Unmarshal(raw, &paste); jerr == nil {
			return &paste, nil
		}
		c.logger.Warn("dropping corrupt cache entry", zap.String("url", url))
		c.invalidate(ctx, url)
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("cache read failed", zap.String("url", url), zap.Error(err))
	}

	gen, genErr := c.generation(ctx, url)

	paste, err := c.next.GetByURL(ctx, url)
	if err != nil {
		return nil, err
	}

	if genErr == nil {
		c.fill(ctx, url, gen, paste)
	}
	return paste, nil
}

func (c *CachedStore) Exists(ctx context.Context, url string) (bool, error) {
	return c.next.Exists(ctx, url)
}

func (c *CachedStore) Update(ctx context.Context, oldURL string, paste *models.Paste) error {
	err := c.next.Update(ctx, oldURL, paste)
	c.invalidate(ctx, oldURL, paste.URL)
	return err
}

func (c *CachedStore) Delete(ctx context.Context, url string) error {
	err := c.next.Delete(ctx, url)
	c.invalidate(ctx, url)
	return err
}

func (c *CachedStore) IncrementViews(ctx context.Context, url string) error {
	return c.next.IncrementViews(ctx, url)
}

func (c *CachedStore) List(ctx context.Context, opts models.ListOptions) ([]*models.Paste, error) {
	return c.next.List(ctx, opts)
}

// DeleteExpired leaves cached copies alone; readers still check expiry and
// delete through this store, which drops them.
func (c *CachedStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return c.next.DeleteExpired(ctx, now)
}

func (c *CachedStore) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return err
	}
	return c.next.Ping(ctx)
}

func (c *CachedStore) Close() error {
	return errors.Join(c.client.Close(), c.next.Close())
}
