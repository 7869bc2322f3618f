package cache

import (
	"context"
	"errors"
)

// ErrCacheMiss is returned by Get when the key is unknown and no loader
// could provide a value.
var ErrCacheMiss = errors.New("cache miss")

// Cache is a minimal read-through cache. Implementations decide how
// values are loaded and when they expire.
// Interface design follows github.com/kittpat1413/go-common/framework/cache.
type Cache[K comparable, V any] interface {
	Get(ctx context.Context, key K) (*V, error)
	Invalidate(ctx context.Context, key K)
}
