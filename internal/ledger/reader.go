// Package ledger reads a customer's coin balance and history for display.
package ledger

import (
	"context"
	"errors"

	"github.com/punchamoorthee/coinledger/internal/cache"
	"github.com/punchamoorthee/coinledger/internal/domain"
	"github.com/punchamoorthee/coinledger/internal/invalidation"
	"github.com/punchamoorthee/coinledger/internal/logging"
)

// ErrUnauthenticated must be returned by a Source when no session is attached.
var ErrUnauthenticated = errors.New("customer is not authenticated")

// Source fetches the full balance and history snapshot.
type Source interface {
	CustomerPoints(ctx context.Context) (*domain.PointsSnapshot, error)
}

// Reader hides the coin feature instead of failing when the snapshot cannot be read.
type Reader struct {
	source Source
	cache  *cache.TagCache[*domain.PointsSnapshot]
	key    string
	isAuth func(error) bool
	logger logging.Logger
}

// NewReader wraps source. key identifies the session in the coins cache; bus may be nil
// to disable caching. isUnauthenticated recognises the source's "no session" error.
func NewReader(source Source, bus invalidation.Bus, key string, isUnauthenticated func(error) bool, logger logging.Logger) *Reader {
	r := &Reader{source: source, key: key, isAuth: isUnauthenticated, logger: logging.OrDiscard(logger)}
	if bus != nil {
		r.cache = cache.New[*domain.PointsSnapshot](invalidation.TagCoins, bus)
	}
	if r.isAuth == nil {
		r.isAuth = func(err error) bool { return errors.Is(err, ErrUnauthenticated) }
	}
	return r
}

// Snapshot returns the balance and history, or false when the feature is inactive.
// A failed read never falls back to an earlier snapshot.
func (r *Reader) Snapshot(ctx context.Context) (*domain.PointsSnapshot, bool) {
	var (
		snap *domain.PointsSnapshot
		err  error
	)
	if r.cache != nil {
		snap, err = r.cache.Get(ctx, r.key, r.source.CustomerPoints)
	} else {
		snap, err = r.source.CustomerPoints(ctx)
	}
	if err != nil {
		if !r.isAuth(err) {
			r.logger.WithError(err).Warn("coin balance unavailable, hiding coin features")
		}
		return nil, false
	}
	if snap == nil {
		return nil, false
	}
	return snap, true
}

// Balance returns the current balance, or false when unavailable.
func (r *Reader) Balance(ctx context.Context) (domain.PointBalance, bool) {
	snap, ok := r.Snapshot(ctx)
	if !ok {
		return domain.PointBalance{}, false
	}
	return domain.PointBalance{CustomerID: r.key, Balance: snap.Coins}, true
}

// History returns the transactions as delivered (newest first), or false when unavailable.
func (r *Reader) History(ctx context.Context) ([]domain.PointTransaction, bool) {
	snap, ok := r.Snapshot(ctx)
	if !ok {
		return nil, false
	}
	return snap.Transactions, true
}

// Purge drops the cached snapshot so the next read goes to the source.
func (r *Reader) Purge() {
	if r.cache != nil {
		r.cache.Purge()
	}
}

// Close detaches the reader's cache from the bus.
func (r *Reader) Close() {
	if r.cache != nil {
		r.cache.Close()
	}
}
