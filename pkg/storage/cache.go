package storage

import (
	"sync"
	"time"

	"github.com/Yiling-J/theine-go"
)

const defaultMaxCacheSize = 10000

// InMemoryCache is a general purpose cache to store things in memory.
type InMemoryCache[T any] interface {
	// Get returns the value and true if the key exists and has not expired.
	Get(key string) (T, bool)
	Set(key string, value T, ttl time.Duration)
	Delete(key string)

	// Stop cleans resources.
	Stop()
}

// InMemoryLRUCache is a size bounded cache backed by theine.
type InMemoryLRUCache[T any] struct {
	cache       *theine.Cache[string, T]
	maxElements int64
	closeOnce   *sync.Once
}

type InMemoryLRUCacheOpt[T any] func(i *InMemoryLRUCache[T])

func WithMaxCacheSize[T any](maxElements int64) InMemoryLRUCacheOpt[T] {
	return func(i *InMemoryLRUCache[T]) {
		i.maxElements = maxElements
	}
}

var _ InMemoryCache[any] = (*InMemoryLRUCache[any])(nil)

func NewInMemoryLRUCache[T any](opts ...InMemoryLRUCacheOpt[T]) (*InMemoryLRUCache[T], error) {
	t := &InMemoryLRUCache[T]{
		maxElements: defaultMaxCacheSize,
		closeOnce:   &sync.Once{},
	}

	for _, opt := range opts {
		opt(t)
	}

	cache, err := theine.NewBuilder[string, T](t.maxElements).Build()
	if err != nil {
		return nil, err
	}
	t.cache = cache
	return t, nil
}

func (i *InMemoryLRUCache[T]) Get(key string) (T, bool) {
	return i.cache.Get(key)
}

// Set stores value. A zero ttl keeps the entry until it is evicted.
func (i *InMemoryLRUCache[T]) Set(key string, value T, ttl time.Duration) {
	if ttl > 0 {
		i.cache.SetWithTTL(key, value, 1, ttl)
		return
	}
	i.cache.Set(key, value, 1)
}

func (i *InMemoryLRUCache[T]) Delete(key string) {
	i.cache.Delete(key)
}

func (i *InMemoryLRUCache[T]) Stop() {
	i.closeOnce.Do(func() {
		i.cache.Close()
	})
}
