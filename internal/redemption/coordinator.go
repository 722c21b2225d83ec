// Package redemption moves a cart between unapplied and committed coin redemption.
package redemption

import (
	"context"
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/punchamoorthee/coinledger/internal/domain"
	"github.com/punchamoorthee/coinledger/internal/invalidation"
	"github.com/punchamoorthee/coinledger/internal/logging"
)

var operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "coinledger_redemption_operations_total",
	Help: "Commit and revert attempts, labeled by outcome",
}, []string{"op", "outcome"})

// Backend performs the durable mutations. Both calls return the updated cart.
type Backend interface {
	Authenticated(ctx context.Context) bool
	Redeem(ctx context.Context, cartID string, variantIDs []string) (*domain.Cart, error)
	RemoveRedemption(ctx context.Context, cartID string) (*domain.Cart, error)
}

// Coordinator serialises commit and revert per cart and announces every
// successful mutation on the invalidation bus.
type Coordinator struct {
	backend Backend
	bus     invalidation.Bus
	logger  logging.Logger

	mu       sync.Mutex
	inflight map[string]Op
}

func NewCoordinator(backend Backend, bus invalidation.Bus, logger logging.Logger) *Coordinator {
	if bus == nil {
		bus = invalidation.NewMemoryBus()
	}
	return &Coordinator{
		backend:  backend,
		bus:      bus,
		logger:   logging.OrDiscard(logger),
		inflight: make(map[string]Op),
	}
}

// Busy reports whether a commit or revert is outstanding for the cart.
// Views use it to disable the redemption controls.
func (c *Coordinator) Busy(cartID string) bool {
	_, ok := c.InFlight(cartID)
	return ok
}

// InFlight returns the outstanding operation for the cart, if any.
func (c *Coordinator) InFlight(cartID string) (Op, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	op, ok := c.inflight[cartID]
	return op, ok
}

func (c *Coordinator) acquire(cartID string, op Op) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.inflight[cartID]; busy {
		return false
	}
	c.inflight[cartID] = op
	return true
}

func (c *Coordinator) release(cartID string) {
	c.mu.Lock()
	delete(c.inflight, cartID)
	c.mu.Unlock()
}

// Commit redeems coins against the cart. variantIDs is the complete explicit
// selection; nil is sent as an empty list.
func (c *Coordinator) Commit(ctx context.Context, cartID string, variantIDs []string) (*domain.Cart, error) {
	if variantIDs == nil {
		variantIDs = []string{}
	}
	return c.run(ctx, OpCommit, cartID, func(ctx context.Context) (*domain.Cart, error) {
		return c.backend.Redeem(ctx, cartID, variantIDs)
	})
}

// Revert removes any committed redemption. A cart with nothing to remove is
// not an error. On success sel, when given, is cleared so stale choices are
// not offered again.
func (c *Coordinator) Revert(ctx context.Context, cartID string, sel *Selection) (*domain.Cart, error) {
	cart, err := c.run(ctx, OpRevert, cartID, func(ctx context.Context) (*domain.Cart, error) {
		cart, err := c.backend.RemoveRedemption(ctx, cartID)
		if errors.Is(err, ErrNothingToRemove) {
			return cart, nil
		}
		return cart, err
	})
	if err == nil && sel != nil {
		sel.Clear()
	}
	return cart, err
}

func (c *Coordinator) run(ctx context.Context, op Op, cartID string, call func(context.Context) (*domain.Cart, error)) (*domain.Cart, error) {
	log := c.logger.WithFields(logging.Fields{"cart_id": cartID, "op": string(op)})

	if !c.backend.Authenticated(ctx) {
		operationsTotal.WithLabelValues(string(op), "unauthenticated").Inc()
		return nil, &UnauthenticatedError{Op: op}
	}
	if !c.acquire(cartID, op) {
		operationsTotal.WithLabelValues(string(op), "busy").Inc()
		return nil, ErrBusy
	}
	defer c.release(cartID)

	// The mutation is durable; a caller going away must not abort it half way.
	detached := context.WithoutCancel(ctx)

	cart, err := call(detached)
	if err != nil {
		operationsTotal.WithLabelValues(string(op), "rejected").Inc()
		log.WithError(err).Warn("redemption mutation rejected")
		return nil, newRejected(op, err)
	}

	if err := c.bus.Invalidate(detached, invalidation.RedemptionTags...); err != nil {
		log.WithError(err).Error("failed to publish invalidation")
	}
	operationsTotal.WithLabelValues(string(op), "ok").Inc()
	log.WithField("points_cost", cart.PointsCost()).Info("redemption mutation applied")
	return cart, nil
}
