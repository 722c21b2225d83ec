package checkout

import (
	"context"

	"github.com/punchamoorthee/coinledger/internal/cache"
	"github.com/punchamoorthee/coinledger/internal/domain"
	"github.com/punchamoorthee/coinledger/internal/invalidation"
)

// CachedCarts serves carts from the carts cache until the bus invalidates them.
type CachedCarts struct {
	source CartSource
	cache  *cache.TagCache[*domain.Cart]
}

func NewCachedCarts(source CartSource, bus invalidation.Bus) *CachedCarts {
	return &CachedCarts{source: source, cache: cache.New[*domain.Cart](invalidation.TagCarts, bus)}
}

func (c *CachedCarts) Cart(ctx context.Context, cartID string) (*domain.Cart, error) {
	return c.cache.Get(ctx, cartID, func(ctx context.Context) (*domain.Cart, error) {
		return c.source.Cart(ctx, cartID)
	})
}

// Purge drops every cached cart.
func (c *CachedCarts) Purge() { c.cache.Purge() }

func (c *CachedCarts) Close() { c.cache.Close() }
