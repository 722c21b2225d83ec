// Package invalidation announces that cached cart or coin views are stale.
package invalidation

import (
	"context"
	"slices"
	"sync"
)

// Tag names a family of cached reads.
type Tag string

const (
	TagCarts Tag = "carts"
	TagCoins Tag = "coins"
)

// RedemptionTags are published together after every successful commit or revert.
var RedemptionTags = []Tag{TagCarts, TagCoins}

// Event carries every tag invalidated by one mutation, delivered as a unit.
type Event struct {
	Tags   []Tag  `json:"tags"`
	Source string `json:"source,omitempty"`
}

// Has reports whether the event invalidates tag.
func (e Event) Has(tag Tag) bool {
	return slices.Contains(e.Tags, tag)
}

// Bus fans invalidation events out to subscribers.
type Bus interface {
	Invalidate(ctx context.Context, tags ...Tag) error
	// Subscribe registers fn and returns a function that unregisters it.
	Subscribe(fn func(Event)) (unsubscribe func())
}

// MemoryBus delivers events synchronously to in-process subscribers.
type MemoryBus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func(Event)
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[int]func(Event))}
}

func (b *MemoryBus) Invalidate(_ context.Context, tags ...Tag) error {
	if len(tags) == 0 {
		return nil
	}
	b.deliver(Event{Tags: slices.Clone(tags)})
	return nil
}

func (b *MemoryBus) deliver(ev Event) {
	b.mu.RLock()
	fns := make([]func(Event), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}

func (b *MemoryBus) Subscribe(fn func(Event)) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}
