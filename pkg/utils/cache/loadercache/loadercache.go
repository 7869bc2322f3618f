package loadercache

import (
	"context"
	"sync"
	"time"

	"github.com/enduroplan/fueltrace-service-go/log"
	"github.com/enduroplan/fueltrace-service-go/pkg/utils/cache"
)

// based on github.com/kittpat1413/go-common/framework/cache/localcache/localcache.go

type (
	Option[K comparable, V any] func(*loaderCache[K, V])

	// Loader fetches the value for a key on a cache miss.
	Loader[K comparable, V any] func(ctx context.Context, key K) (*V, error)

	entry[V any] struct {
		data     *V
		deadline time.Time
	}

	loaderCache[K comparable, V any] struct {
		mutex   sync.RWMutex
		entries map[K]entry[V]
		ttl     time.Duration
		loader  Loader[K, V]
		log     *log.Logger
	}
)

func WithExpiration[K comparable, V any](ttl time.Duration) Option[K, V] {
	return func(c *loaderCache[K, V]) {
		c.ttl = ttl
	}
}

func WithLoader[K comparable, V any](lf Loader[K, V]) Option[K, V] {
	return func(c *loaderCache[K, V]) {
		c.loader = lf
	}
}

func WithLogger[K comparable, V any](arg *log.Logger) Option[K, V] {
	return func(c *loaderCache[K, V]) {
		c.log = arg
	}
}

func New[K comparable, V any](opts ...Option[K, V]) cache.Cache[K, V] {
	ret := &loaderCache[K, V]{
		entries: make(map[K]entry[V]),
		ttl:     5 * time.Minute,
		log:     log.Default().Named("cache"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

func (c *loaderCache[K, V]) Get(ctx context.Context, key K) (*V, error) {
	c.mutex.RLock()
	e, ok := c.entries[key]
	c.mutex.RUnlock()
	if ok && time.Now().Before(e.deadline) {
		return e.data, nil
	}
	return c.load(ctx, key)
}

// load fetches the value and stores it. Concurrent loads of the same key
// are not coordinated, the later result wins.
func (c *loaderCache[K, V]) load(ctx context.Context, key K) (*V, error) {
	if c.loader == nil {
		return nil, cache.ErrCacheMiss
	}
	v, err := c.loader(ctx, key)
	c.log.Debug("loaderCache.load", log.Any("key", key))
	if err != nil {
		c.log.Error("error loading entry", log.ErrorField(err))
		return nil, err
	}
	c.mutex.Lock()
	c.entries[key] = entry[V]{data: v, deadline: time.Now().Add(c.ttl)}
	c.mutex.Unlock()
	return v, nil
}

func (c *loaderCache[K, V]) Invalidate(ctx context.Context, key K) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.log.Debug("Invalidate", log.Any("key", key))
	delete(c.entries, key)
}
