// Package cache keeps tagged reads until the invalidation bus drops them.
package cache

import (
	"context"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/punchamoorthee/coinledger/internal/invalidation"
)

// TagCache caches values of one tag by key. Failed fetches are never cached,
// so a read after an error always goes back to the source.
type TagCache[T any] struct {
	tag invalidation.Tag

	mu         sync.Mutex
	entries    map[string]T
	generation uint64

	group       singleflight.Group
	unsubscribe func()
}

// New creates a cache for tag and drops it whenever bus invalidates the tag.
func New[T any](tag invalidation.Tag, bus invalidation.Bus) *TagCache[T] {
	c := &TagCache[T]{tag: tag, entries: make(map[string]T)}
	if bus != nil {
		c.unsubscribe = bus.Subscribe(func(ev invalidation.Event) {
			if ev.Has(tag) {
				c.Purge()
			}
		})
	}
	return c
}

// Get returns the cached value for key or loads it with fetch.
func (c *TagCache[T]) Get(ctx context.Context, key string, fetch func(context.Context) (T, error)) (T, error) {
	c.mu.Lock()
	if v, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return v, nil
	}
	gen := c.generation
	c.mu.Unlock()

	v, err, _ := c.group.Do(key+"#"+strconv.FormatUint(gen, 10), func() (interface{}, error) {
		v, err := fetch(ctx)
		if err != nil {
			return v, err
		}
		c.mu.Lock()
		// A purge during the fetch means the value may predate the mutation.
		if c.generation == gen {
			c.entries[key] = v
		}
		c.mu.Unlock()
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	val, _ := v.(T)
	return val, nil
}

// Purge drops every entry.
func (c *TagCache[T]) Purge() {
	c.mu.Lock()
	c.entries = make(map[string]T)
	c.generation++
	c.mu.Unlock()
}

// Close detaches the cache from the bus.
func (c *TagCache[T]) Close() {
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
}
