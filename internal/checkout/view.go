// Package checkout is the checkout summary: cart totals, the coin balance and
// the redemption control, kept consistent for as long as the view is open.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/punchamoorthee/coinledger/internal/domain"
	"github.com/punchamoorthee/coinledger/internal/invalidation"
	"github.com/punchamoorthee/coinledger/internal/ledger"
	"github.com/punchamoorthee/coinledger/internal/logging"
	"github.com/punchamoorthee/coinledger/internal/policy"
	"github.com/punchamoorthee/coinledger/internal/pricing"
	"github.com/punchamoorthee/coinledger/internal/redemption"
)

// ErrClosed is returned by operations on a view that has been closed.
var ErrClosed = errors.New("checkout view closed")

// CartSource retrieves the current cart.
type CartSource interface {
	Cart(ctx context.Context, cartID string) (*domain.Cart, error)
}

type purger interface{ Purge() }

type Deps struct {
	Carts             CartSource
	Policies          policy.Source
	Points            *ledger.Reader
	Coordinator       *redemption.Coordinator
	Bus               invalidation.Bus
	LookupConcurrency int
	Logger            logging.Logger
}

// Snapshot is everything one render needs. Fields are replaced together.
type Snapshot struct {
	Cart     *domain.Cart
	Policies policy.Policies
	Summary  pricing.Summary
	// Balance is nil when the coin feature is inactive for this view.
	Balance *int64
	Busy    bool
	// Error is the last commit or revert failure, shown near the control.
	Error string
}

func (s Snapshot) State() domain.RedemptionState { return s.Cart.State() }

// ShowRedemption reports whether the redemption control is rendered at all.
func (s Snapshot) ShowRedemption() bool { return s.Balance != nil }

// CanRedeem reports whether "Use Coins" is enabled.
func (s Snapshot) CanRedeem() bool {
	return s.Balance != nil && *s.Balance > 0 && s.State() == domain.StateUnapplied && !s.Busy
}

// CanRemove reports whether "Remove" is enabled.
func (s Snapshot) CanRemove() bool {
	return s.State() == domain.StateCommitted && !s.Busy
}

type View struct {
	cartID string
	deps   Deps
	logger logging.Logger
	sel    *redemption.Selection

	mu          sync.RWMutex
	snap        Snapshot
	applied     uint64
	closed      bool
	unsubscribe func()
	listeners   map[int]func()
	nextID      int

	seq atomic.Uint64
}

// Open mounts a view of the cart and performs the first load.
func Open(ctx context.Context, deps Deps, cartID string) (*View, error) {
	v := &View{
		cartID: cartID,
		deps:   deps,
		logger: logging.OrDiscard(deps.Logger).WithField("cart_id", cartID),
		sel:    redemption.NewSelection(),
	}
	// Subscribe before the first load so an invalidation during it triggers a reload.
	if deps.Bus != nil {
		v.unsubscribe = deps.Bus.Subscribe(v.onInvalidate)
	}
	if err := v.Refresh(ctx); err != nil {
		v.Close()
		return nil, err
	}
	return v, nil
}

func (v *View) onInvalidate(ev invalidation.Event) {
	if !ev.Has(invalidation.TagCarts) && !ev.Has(invalidation.TagCoins) {
		return
	}
	// Subscribers run in no fixed order; drop cached reads before reloading.
	if ev.Has(invalidation.TagCoins) && v.deps.Points != nil {
		v.deps.Points.Purge()
	}
	if p, ok := v.deps.Carts.(purger); ok && ev.Has(invalidation.TagCarts) {
		p.Purge()
	}
	go func() {
		if err := v.Refresh(context.Background()); err != nil && !errors.Is(err, ErrClosed) {
			v.logger.WithError(err).Warn("refresh after invalidation failed")
		}
	}()
}

// Refresh reloads the cart, the balance and a fresh set of policies.
func (v *View) Refresh(ctx context.Context) error {
	if v.isClosed() {
		return ErrClosed
	}
	n := v.seq.Add(1)

	var (
		cart    *domain.Cart
		balance *int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := v.deps.Carts.Cart(gctx, v.cartID)
		if err != nil {
			return fmt.Errorf("retrieve cart %s: %w", v.cartID, err)
		}
		cart = c
		return nil
	})
	if v.deps.Points != nil {
		g.Go(func() error {
			if bal, ok := v.deps.Points.Balance(gctx); ok {
				balance = &bal.Balance
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	resolver := policy.NewResolver(v.deps.Policies, v.deps.LookupConcurrency, v.logger)
	policies := resolver.Resolve(ctx, cart.VariantIDs())

	v.install(n, cart, policies, balance, true)
	return nil
}

// install swaps in a new snapshot unless the view is closed or a newer load already landed.
func (v *View) install(n uint64, cart *domain.Cart, policies policy.Policies, balance *int64, replaceBalance bool) {
	summary := pricing.Compute(cart, policies)
	if summary.Inconsistent {
		v.logger.WithFields(logging.Fields{
			"item_subtotal": cart.Totals.ItemSubtotal,
			"total":         cart.Totals.Total,
		}).Warn("cart totals went negative after removing coin items, clamped to zero")
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed || n < v.applied {
		return
	}
	v.applied = n
	v.sel.Retain(cart.VariantIDs())

	next := Snapshot{Cart: cart, Policies: policies, Summary: summary, Balance: v.snap.Balance, Error: v.snap.Error}
	if replaceBalance {
		next.Balance = balance
	}
	v.snap = next
	for _, fn := range v.listeners {
		go fn()
	}
}

// OnChange registers fn to run after every installed snapshot.
func (v *View) OnChange(fn func()) func() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.listeners == nil {
		v.listeners = make(map[int]func())
	}
	id := v.nextID
	v.nextID++
	v.listeners[id] = fn
	return func() {
		v.mu.Lock()
		delete(v.listeners, id)
		v.mu.Unlock()
	}
}

// Snapshot returns the current render state.
func (v *View) Snapshot() Snapshot {
	v.mu.RLock()
	s := v.snap
	v.mu.RUnlock()
	if v.deps.Coordinator != nil {
		s.Busy = v.deps.Coordinator.Busy(v.cartID)
	}
	return s
}

// IsSelected reports whether the variant is ticked for coins.
func (v *View) IsSelected(variantID string) bool { return v.sel.IsSelected(variantID) }

// SelectedIDs returns the variants the next commit will request.
func (v *View) SelectedIDs() []string { return v.sel.SelectedIDs() }

// Toggle flips a both-type variant in the selection. Other variants cannot be
// selected: points-only items are always redeemed and currency items never are.
func (v *View) Toggle(variantID string) (bool, error) {
	if v.isClosed() {
		return false, ErrClosed
	}
	s := v.Snapshot()
	if domain.EffectivePaymentType(s.Policies.For(variantID)) != domain.PaymentBoth {
		return false, fmt.Errorf("variant %s cannot be paid with coins by choice", variantID)
	}
	return v.sel.Toggle(variantID), nil
}

// LinePrice renders a line item. Both-type items show coins when a committed
// redemption covers them, or as a preview when they are selected.
func (v *View) LinePrice(item domain.LineItem) pricing.PriceView {
	s := v.Snapshot()
	inCoins := s.Cart.CoversVariant(item.VariantID) || v.sel.IsSelected(item.VariantID)
	return pricing.LinePrice(item, s.Policies.For(item.VariantID), inCoins)
}

// Commit redeems coins for the current selection.
func (v *View) Commit(ctx context.Context) error {
	if v.isClosed() {
		return ErrClosed
	}
	n := v.seq.Add(1)
	cart, err := v.deps.Coordinator.Commit(ctx, v.cartID, v.sel.SelectedIDs())
	return v.afterMutation(n, cart, err)
}

// Revert removes the committed redemption and clears the selection.
func (v *View) Revert(ctx context.Context) error {
	if v.isClosed() {
		return ErrClosed
	}
	n := v.seq.Add(1)
	cart, err := v.deps.Coordinator.Revert(ctx, v.cartID, v.sel)
	return v.afterMutation(n, cart, err)
}

func (v *View) afterMutation(n uint64, cart *domain.Cart, err error) error {
	if err != nil {
		v.mu.Lock()
		if !v.closed {
			v.snap.Error = redemption.Describe(err)
		}
		v.mu.Unlock()
		return err
	}

	v.mu.Lock()
	if !v.closed {
		v.snap.Error = ""
	}
	policies := v.snap.Policies
	v.mu.Unlock()

	if cart != nil {
		// The balance moved too; keep the old figure until the coins refresh lands.
		v.install(n, cart, policies, nil, false)
	}
	return nil
}

func (v *View) isClosed() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.closed
}

// Close unmounts the view. In-flight mutations still finish against the
// backend, but their results are no longer applied here.
func (v *View) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	unsubscribe := v.unsubscribe
	v.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	v.sel.Dispose()
}
