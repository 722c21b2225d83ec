package checkout

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/punchamoorthee/coinledger/internal/domain"
	"github.com/punchamoorthee/coinledger/internal/invalidation"
	"github.com/punchamoorthee/coinledger/internal/ledger"
	"github.com/punchamoorthee/coinledger/internal/pricing"
	"github.com/punchamoorthee/coinledger/internal/redemption"
)

func pp(v int64) *int64 { return &v }

// storefront is an in-memory backend serving carts, coins and policies.
type storefront struct {
	mu       sync.Mutex
	cart     domain.Cart
	balance  int64
	configs  map[string]*domain.VariantPointConfig
	pointsUp bool
	gate     chan struct{}
	cartErr  error
}

func newStorefront() *storefront {
	return &storefront{
		cart: domain.Cart{
			ID:           "cart_1",
			CurrencyCode: "usd",
			Items: []domain.LineItem{
				{ID: "li_1", VariantID: "v_cash", Quantity: 1, UnitPrice: 2000, Total: 2000},
				{ID: "li_2", VariantID: "v_coin", Quantity: 1, UnitPrice: 1500, Total: 1500},
				{ID: "li_3", VariantID: "v_both", Quantity: 2, UnitPrice: 500, Total: 1000},
			},
			Totals: domain.CartTotals{ItemSubtotal: 4500, Total: 4500},
		},
		balance:  5000,
		pointsUp: true,
		configs: map[string]*domain.VariantPointConfig{
			"v_coin": {VariantID: "v_coin", PaymentType: domain.PaymentPoints, PointPrice: pp(1200)},
			"v_both": {VariantID: "v_both", PaymentType: domain.PaymentBoth, PointPrice: pp(300)},
		},
	}
}

func (s *storefront) Cart(context.Context, string) (*domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cartErr != nil {
		return nil, s.cartErr
	}
	cp := s.cart
	return &cp, nil
}

func (s *storefront) CustomerPoints(context.Context) (*domain.PointsSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.pointsUp {
		return nil, ledger.ErrUnauthenticated
	}
	return &domain.PointsSnapshot{Coins: s.balance}, nil
}

func (s *storefront) VariantPointConfig(_ context.Context, id string) (*domain.VariantPointConfig, error) {
	return s.configs[id], nil
}

func (s *storefront) Authenticated(context.Context) bool { return true }

func (s *storefront) Redeem(_ context.Context, _ string, ids []string) (*domain.Cart, error) {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cost := int64(1200)
	for _, id := range ids {
		if id == "v_both" {
			cost += 600
		}
	}
	if cost > s.balance {
		return nil, errors.New("Insufficient coin balance")
	}
	s.balance -= cost
	s.cart.Metadata = domain.CartMetadata{PointsCost: &cost, PointsVariantIDs: slices.Clone(ids)}
	cp := s.cart
	return &cp, nil
}

func (s *storefront) RemoveRedemption(context.Context, string) (*domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cart.Metadata.PointsCost != nil {
		s.balance += *s.cart.Metadata.PointsCost
	}
	s.cart.Metadata = domain.CartMetadata{}
	cp := s.cart
	return &cp, nil
}

func openView(t *testing.T, sf *storefront) (*View, *invalidation.MemoryBus) {
	t.Helper()
	bus := invalidation.NewMemoryBus()
	reader := ledger.NewReader(sf, bus, "cus_1", nil, nil)
	t.Cleanup(reader.Close)
	v, err := Open(context.Background(), Deps{
		Carts:             sf,
		Policies:          sf,
		Points:            reader,
		Coordinator:       redemption.NewCoordinator(sf, bus, nil),
		Bus:               bus,
		LookupConcurrency: 4,
	}, "cart_1")
	require.NoError(t, err)
	t.Cleanup(v.Close)
	return v, bus
}

func TestOpenComputesInitialSummary(t *testing.T) {
	v, _ := openView(t, newStorefront())
	s := v.Snapshot()

	require.NotNil(t, s.Balance)
	assert.Equal(t, int64(5000), *s.Balance)
	assert.True(t, s.ShowRedemption())
	assert.True(t, s.CanRedeem())
	assert.False(t, s.CanRemove())
	assert.Equal(t, domain.StateUnapplied, s.State())

	assert.Equal(t, int64(1200), s.Summary.CoinOnlySubtotal)
	assert.Equal(t, int64(3000), s.Summary.CurrencySubtotal)
	assert.Equal(t, int64(3000), s.Summary.AdjustedTotal)
}

func TestOpenFailsWithoutCart(t *testing.T) {
	sf := newStorefront()
	sf.cartErr = errors.New("cart not found")
	_, err := Open(context.Background(), Deps{Carts: sf, Policies: sf}, "cart_1")
	assert.Error(t, err)
}

func TestRedemptionHiddenWithoutBalance(t *testing.T) {
	sf := newStorefront()
	sf.pointsUp = false
	v, _ := openView(t, sf)
	s := v.Snapshot()
	assert.False(t, s.ShowRedemption())
	assert.False(t, s.CanRedeem())
	// Totals still render.
	assert.Equal(t, int64(3000), s.Summary.AdjustedTotal)
}

func TestZeroBalanceDisablesUseCoins(t *testing.T) {
	sf := newStorefront()
	sf.balance = 0
	v, _ := openView(t, sf)
	s := v.Snapshot()
	assert.True(t, s.ShowRedemption())
	assert.False(t, s.CanRedeem())
}

func TestToggleOnlyBothTypeVariants(t *testing.T) {
	v, _ := openView(t, newStorefront())

	on, err := v.Toggle("v_both")
	require.NoError(t, err)
	assert.True(t, on)
	assert.Equal(t, []string{"v_both"}, v.SelectedIDs())

	_, err = v.Toggle("v_coin")
	assert.Error(t, err)
	_, err = v.Toggle("v_cash")
	assert.Error(t, err)

	price := v.LinePrice(domain.LineItem{VariantID: "v_both", Quantity: 2, Total: 1000})
	assert.True(t, price.ShowCoins)
	assert.True(t, price.StruckCurrency)
}

func TestCommitThenRevertRoundTrip(t *testing.T) {
	sf := newStorefront()
	v, _ := openView(t, sf)
	_, err := v.Toggle("v_both")
	require.NoError(t, err)

	require.NoError(t, v.Commit(context.Background()))
	s := v.Snapshot()
	assert.Equal(t, domain.StateCommitted, s.State())
	assert.True(t, s.CanRemove())
	assert.False(t, s.CanRedeem())
	assert.Equal(t, int64(1800), s.Summary.PointsApplied)
	row, ok := s.Summary.Row(pricing.RowCoinsApplied)
	require.True(t, ok)
	assert.Equal(t, int64(1800), row.Amounts[0].Value)

	require.Eventually(t, func() bool {
		b := v.Snapshot().Balance
		return b != nil && *b == 3200
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, v.Revert(context.Background()))
	assert.Equal(t, domain.StateUnapplied, v.Snapshot().State())
	assert.Empty(t, v.SelectedIDs())
	require.Eventually(t, func() bool {
		b := v.Snapshot().Balance
		return b != nil && *b == 5000
	}, time.Second, 5*time.Millisecond)
}

func TestCommitFailureKeepsStateAndShowsMessage(t *testing.T) {
	sf := newStorefront()
	sf.balance = 100
	v, _ := openView(t, sf)

	err := v.Commit(context.Background())
	require.Error(t, err)
	s := v.Snapshot()
	assert.Equal(t, "Insufficient coin balance", s.Error)
	assert.Equal(t, domain.StateUnapplied, s.State())
}

func TestOtherViewRefreshesOnInvalidation(t *testing.T) {
	sf := newStorefront()
	bus := invalidation.NewMemoryBus()
	coord := redemption.NewCoordinator(sf, bus, nil)
	deps := Deps{Carts: sf, Policies: sf, Coordinator: coord, Bus: bus}

	checkoutView, err := Open(context.Background(), deps, "cart_1")
	require.NoError(t, err)
	defer checkoutView.Close()
	sidebar, err := Open(context.Background(), deps, "cart_1")
	require.NoError(t, err)
	defer sidebar.Close()

	require.NoError(t, checkoutView.Commit(context.Background()))
	require.Eventually(t, func() bool {
		return sidebar.Snapshot().State() == domain.StateCommitted
	}, time.Second, 5*time.Millisecond)
}

func TestClosedViewDiscardsLateResult(t *testing.T) {
	sf := newStorefront()
	sf.gate = make(chan struct{})
	v, _ := openView(t, sf)
	before := v.Snapshot()

	done := make(chan error, 1)
	go func() { done <- v.Commit(context.Background()) }()
	require.Eventually(t, func() bool { return v.Snapshot().Busy }, time.Second, time.Millisecond)

	v.Close()
	close(sf.gate)
	require.NoError(t, <-done)

	// The backend committed, but the unmounted view keeps its last render.
	assert.Equal(t, domain.StateCommitted, sf.cart.State())
	assert.Equal(t, before.Summary, v.Snapshot().Summary)
	assert.ErrorIs(t, v.Refresh(context.Background()), ErrClosed)
	assert.ErrorIs(t, v.Commit(context.Background()), ErrClosed)
}

func TestOnChangeFiresAfterInvalidation(t *testing.T) {
	v, bus := openView(t, newStorefront())
	fired := make(chan struct{}, 4)
	unsubscribe := v.OnChange(func() { fired <- struct{}{} })
	defer unsubscribe()

	require.NoError(t, bus.Invalidate(context.Background(), invalidation.TagCarts))
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("no change notification after invalidation")
	}
}

func TestCommittedBothItemLineMatchesTotals(t *testing.T) {
	sf := newStorefront()
	cost := int64(1800)
	sf.cart.Metadata = domain.CartMetadata{PointsCost: &cost, PointsVariantIDs: []string{"v_coin", "v_both"}}
	v, _ := openView(t, sf)

	s := v.Snapshot()
	require.Equal(t, domain.StateCommitted, s.State())
	assert.Empty(t, v.SelectedIDs())
	for _, it := range s.Summary.Items {
		if it.VariantID == "v_both" {
			assert.Equal(t, pricing.SettlePoints, it.Settlement)
		}
	}

	price := v.LinePrice(s.Cart.Items[2])
	assert.True(t, price.ShowCoins)
	assert.Equal(t, int64(600), price.Coins)
	assert.False(t, price.ShowCurrency)
	assert.False(t, price.ShowAlternate)
	assert.NotContains(t, pricing.RenderPrice(price, "usd"), "or ")
}

// racingCarts changes the cart and announces it while the first load is in flight.
type racingCarts struct {
	*storefront
	bus  invalidation.Bus
	once sync.Once
}

func (r *racingCarts) Cart(ctx context.Context, id string) (*domain.Cart, error) {
	c, err := r.storefront.Cart(ctx, id)
	r.once.Do(func() {
		cost := int64(1200)
		r.storefront.mu.Lock()
		r.storefront.cart.Metadata = domain.CartMetadata{PointsCost: &cost}
		r.storefront.mu.Unlock()
		_ = r.bus.Invalidate(ctx, invalidation.RedemptionTags...)
	})
	return c, err
}

func TestInvalidationDuringOpenIsNotLost(t *testing.T) {
	sf := newStorefront()
	bus := invalidation.NewMemoryBus()
	carts := &racingCarts{storefront: sf, bus: bus}

	v, err := Open(context.Background(), Deps{
		Carts:       carts,
		Policies:    sf,
		Coordinator: redemption.NewCoordinator(sf, bus, nil),
		Bus:         bus,
	}, "cart_1")
	require.NoError(t, err)
	defer v.Close()

	require.Eventually(t, func() bool {
		return v.Snapshot().State() == domain.StateCommitted
	}, time.Second, 5*time.Millisecond)
}
