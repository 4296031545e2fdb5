package storage

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/johnwmail/pasties/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeRedis keeps values in a map; ttl is ignored
type fakeRedis struct {
	mu     sync.Mutex
	values map[string]string
	broken bool
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: make(map[string]string)}
}

var errRedisDown = errors.New("connection refused")

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.broken {
		return redis.NewStringResult("", errRedisDown)
	}
	v, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.broken {
		return redis.NewStatusResult("", errRedisDown)
	}
	switch v := value.(type) {
	case []byte:
		f.values[key] = string(v)
	case string:
		f.values[key] = v
	}
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()

	var n int64
	for _, k := range keys {
		if _, ok := f.values[k]; ok {
			delete(f.values, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeRedis) Incr(_ context.Context, key string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.broken {
		return redis.NewIntResult(0, errRedisDown)
	}
	n, _ := strconv.ParseInt(f.values[key], 10, 64)
	n++
	f.values[key] = strconv.FormatInt(n, 10)
	return redis.NewIntResult(n, nil)
}

func (f *fakeRedis) Expire(_ context.Context, _ string, _ time.Duration) *redis.BoolCmd {
	return redis.NewBoolResult(!f.broken, nil)
}

func (f *fakeRedis) Ping(_ context.Context) *redis.StatusCmd {
	if f.broken {
		return redis.NewStatusResult("", errRedisDown)
	}
	return redis.NewStatusResult("PONG", nil)
}

func (f *fakeRedis) Close() error { return nil }

func TestCachedStore_Contract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) PasteStore {
		return newCachedStoreWithClient(NewMemoryStore(), newFakeRedis(), time.Minute, zap.NewNop())
	})
}

func TestCachedStore_ServesFromCache(t *testing.T) {
	backing := NewMemoryStore()
	cache := newFakeRedis()
	store := newCachedStoreWithClient(backing, cache, time.Minute, nil)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, testPaste("cached", "v1", time.Now())))

	got, err := store.GetByURL(ctx, "cached")
	require.NoError(t, err)
	assert.Equal(t, "v1", got.Content)
	assert.Contains(t, cache.values, cacheKey("cached"))

	// Bypass the decorator: the stale cached copy keeps being served
	require.NoError(t, backing.Delete(ctx, "cached"))
	got, err = store.GetByURL(ctx, "cached")
	require.NoError(t, err)
	assert.Equal(t, "v1", got.Content)

	// Writes through the decorator drop it
	require.ErrorIs(t, store.Delete(ctx, "cached"), ErrNotFound)
	_, err = store.GetByURL(ctx, "cached")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCachedStore_UpdateInvalidates(t *testing.T) {
	store := newCachedStoreWithClient(NewMemoryStore(), newFakeRedis(), time.Minute, nil)
	ctx := context.Background()

	p := testPaste("edit-me", "v1", time.Now())
	require.NoError(t, store.Create(ctx, p))
	_, err := store.GetByURL(ctx, "edit-me")
	require.NoError(t, err)

	p.Content = "v2"
	require.NoError(t, store.Update(ctx, "edit-me", p))

	got, err := store.GetByURL(ctx, "edit-me")
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Content)
}

// writeDuringRead runs onRead once, after the wrapped read and before the
// cache is filled
type writeDuringRead struct {
	PasteStore
	onRead func()
}

func (w *writeDuringRead) GetByURL(ctx context.Context, url string) (*models.Paste, error) {
	p, err := w.PasteStore.GetByURL(ctx, url)
	if w.onRead != nil {
		fn := w.onRead
		w.onRead = nil
		fn()
	}
	return p, err
}

func TestCachedStore_WriteRacingRead(t *testing.T) {
	backing := &writeDuringRead{PasteStore: NewMemoryStore()}
	store := newCachedStoreWithClient(backing, newFakeRedis(), time.Minute, nil)
	ctx := context.Background()

	p := testPaste("raced", "v1", time.Now())
	require.NoError(t, store.Create(ctx, p))

	backing.onRead = func() {
		updated := *p
		updated.Content = "v2"
		require.NoError(t, store.Update(ctx, "raced", &updated))
	}
	got, err := store.GetByURL(ctx, "raced")
	require.NoError(t, err)
	assert.Equal(t, "v1", got.Content, "the racing read returns what it loaded")

	got, err = store.GetByURL(ctx, "raced")
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Content, "the old copy must not stay cached")

	backing.onRead = func() { require.NoError(t, store.Delete(ctx, "raced")) }
	_, err = store.GetByURL(ctx, "raced")
	require.NoError(t, err)
	_, err = store.GetByURL(ctx, "raced")
	assert.ErrorIs(t, err, ErrNotFound, "a deleted paste must not stay cached")
}

func TestCachedStore_RedisDown(t *testing.T) {
	cache := newFakeRedis()
	cache.broken = true
	store := newCachedStoreWithClient(NewMemoryStore(), cache, time.Minute, nil)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, testPaste("fallback", "x", time.Now())))
	got, err := store.GetByURL(ctx, "fallback")
	require.NoError(t, err, "reads must fall through to the backing store")
	assert.Equal(t, "x", got.Content)

	assert.Error(t, store.Ping(ctx))
}

func TestCachedStore_CorruptEntry(t *testing.T) {
	cache := newFakeRedis()
	store := newCachedStoreWithClient(NewMemoryStore(), cache, time.Minute, nil)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, testPaste("corrupt", "x", time.Now())))
	cache.values[cacheKey("corrupt")] = "{not json"

	got, err := store.GetByURL(ctx, "corrupt")
	require.NoError(t, err)
	assert.Equal(t, "x", got.Content)
}
