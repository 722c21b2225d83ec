package redemption

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/punchamoorthee/coinledger/internal/domain"
	"github.com/punchamoorthee/coinledger/internal/invalidation"
)

type describedErr struct{ msg string }

func (e describedErr) Error() string       { return "backend returned 422: " + e.msg }
func (e describedErr) Description() string { return e.msg }

// fakeBackend keeps one cart and a balance, applying the backend's atomic effects.
type fakeBackend struct {
	mu       sync.Mutex
	authed   bool
	cart     domain.Cart
	balance  int64
	ledger   []domain.PointTransaction
	price    int64
	rejectOn error
	gate     chan struct{}
	redeems  [][]string
	removes  int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{authed: true, cart: domain.Cart{ID: "cart_1"}, balance: 5000, price: 1200}
}

func (f *fakeBackend) Authenticated(context.Context) bool { return f.authed }

func (f *fakeBackend) Redeem(ctx context.Context, cartID string, variantIDs []string) (*domain.Cart, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.redeems = append(f.redeems, variantIDs)
	if f.rejectOn != nil {
		return nil, f.rejectOn
	}
	cost := f.price
	f.balance -= cost
	f.ledger = append(f.ledger, domain.PointTransaction{Type: domain.TransactionSpend, Points: cost})
	f.cart.Metadata.PointsCost = &cost
	cp := f.cart
	return &cp, nil
}

func (f *fakeBackend) RemoveRedemption(ctx context.Context, cartID string) (*domain.Cart, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removes++
	if f.rejectOn != nil {
		return nil, f.rejectOn
	}
	if f.cart.Metadata.PointsCost == nil {
		cp := f.cart
		return &cp, nil
	}
	cost := *f.cart.Metadata.PointsCost
	f.balance += cost
	f.ledger = append(f.ledger, domain.PointTransaction{Type: domain.TransactionAdjust, Points: cost})
	f.cart.Metadata.PointsCost = nil
	cp := f.cart
	return &cp, nil
}

type recordingBus struct {
	*invalidation.MemoryBus
	events []invalidation.Event
}

func newRecordingBus() *recordingBus {
	b := &recordingBus{MemoryBus: invalidation.NewMemoryBus()}
	b.Subscribe(func(ev invalidation.Event) { b.events = append(b.events, ev) })
	return b
}

func TestCommitAppliesAndInvalidatesBothTags(t *testing.T) {
	backend := newFakeBackend()
	bus := newRecordingBus()
	c := NewCoordinator(backend, bus, nil)

	cart, err := c.Commit(context.Background(), "cart_1", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCommitted, cart.State())
	assert.Equal(t, int64(1200), cart.PointsCost())

	// nil selection is sent as an explicit empty list.
	require.Len(t, backend.redeems, 1)
	assert.NotNil(t, backend.redeems[0])
	assert.Empty(t, backend.redeems[0])

	require.Len(t, bus.events, 1)
	assert.True(t, bus.events[0].Has(invalidation.TagCarts))
	assert.True(t, bus.events[0].Has(invalidation.TagCoins))

	require.Len(t, backend.ledger, 1)
	assert.Equal(t, domain.TransactionSpend, backend.ledger[0].Type)
	assert.Equal(t, int64(3800), backend.balance)
}

func TestCommitUnauthenticatedMakesNoCall(t *testing.T) {
	backend := newFakeBackend()
	backend.authed = false
	bus := newRecordingBus()
	c := NewCoordinator(backend, bus, nil)

	_, err := c.Commit(context.Background(), "cart_1", []string{"v1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.Equal(t, "You must be logged in to redeem coins", Describe(err))
	assert.Empty(t, backend.redeems)
	assert.Empty(t, bus.events)
	assert.Equal(t, domain.StateUnapplied, backend.cart.State())

	_, err = c.Revert(context.Background(), "cart_1", nil)
	assert.Equal(t, "You must be logged in to remove coins", Describe(err))
}

func TestCommitRejectionSurfacesBackendMessage(t *testing.T) {
	backend := newFakeBackend()
	backend.rejectOn = describedErr{msg: "Insufficient coin balance"}
	bus := newRecordingBus()
	c := NewCoordinator(backend, bus, nil)

	_, err := c.Commit(context.Background(), "cart_1", []string{"v1"})
	var rejected *RejectedError
	require.True(t, errors.As(err, &rejected))
	assert.Equal(t, OpCommit, rejected.Op)
	assert.Equal(t, "Insufficient coin balance", Describe(err))
	assert.Empty(t, bus.events)
	assert.False(t, c.Busy("cart_1"))
}

func TestRevertIsIdempotent(t *testing.T) {
	backend := newFakeBackend()
	c := NewCoordinator(backend, newRecordingBus(), nil)

	first, err := c.Revert(context.Background(), "cart_1", nil)
	require.NoError(t, err)
	second, err := c.Revert(context.Background(), "cart_1", nil)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, domain.StateUnapplied, second.State())
	assert.Empty(t, backend.ledger)
	assert.Equal(t, 2, backend.removes)
}

func TestRevertTreatsNothingToRemoveAsSuccess(t *testing.T) {
	backend := newFakeBackend()
	backend.rejectOn = ErrNothingToRemove
	c := NewCoordinator(backend, newRecordingBus(), nil)

	_, err := c.Revert(context.Background(), "cart_1", nil)
	assert.NoError(t, err)
}

func TestRevertClearsSelection(t *testing.T) {
	backend := newFakeBackend()
	c := NewCoordinator(backend, newRecordingBus(), nil)
	sel := NewSelection()
	sel.Toggle("v_both")

	_, err := c.Commit(context.Background(), "cart_1", sel.SelectedIDs())
	require.NoError(t, err)
	assert.True(t, sel.IsSelected("v_both"))

	_, err = c.Revert(context.Background(), "cart_1", sel)
	require.NoError(t, err)
	assert.Empty(t, sel.SelectedIDs())
	assert.Equal(t, int64(5000), backend.balance)
}

func TestRevertRejectionKeepsCommittedState(t *testing.T) {
	backend := newFakeBackend()
	c := NewCoordinator(backend, newRecordingBus(), nil)
	_, err := c.Commit(context.Background(), "cart_1", []string{})
	require.NoError(t, err)

	backend.rejectOn = describedErr{msg: "Order already placed"}
	sel := NewSelection()
	sel.Toggle("v1")
	_, err = c.Revert(context.Background(), "cart_1", sel)
	require.Error(t, err)
	assert.Equal(t, "Order already placed", Describe(err))
	assert.Equal(t, domain.StateCommitted, backend.cart.State())
	assert.True(t, sel.IsSelected("v1"))
}

func TestAtMostOneMutationInFlight(t *testing.T) {
	backend := newFakeBackend()
	backend.gate = make(chan struct{})
	c := NewCoordinator(backend, newRecordingBus(), nil)

	done := make(chan error, 1)
	go func() {
		_, err := c.Commit(context.Background(), "cart_1", []string{})
		done <- err
	}()

	require.Eventually(t, func() bool { return c.Busy("cart_1") }, time.Second, time.Millisecond)
	op, _ := c.InFlight("cart_1")
	assert.Equal(t, OpCommit, op)

	_, err := c.Revert(context.Background(), "cart_1", nil)
	assert.ErrorIs(t, err, ErrBusy)
	_, err = c.Commit(context.Background(), "cart_1", []string{})
	assert.ErrorIs(t, err, ErrBusy)

	// Another cart is independent.
	assert.False(t, c.Busy("cart_2"))

	close(backend.gate)
	require.NoError(t, <-done)
	assert.False(t, c.Busy("cart_1"))
	assert.Len(t, backend.redeems, 1)
}

func TestCommitSurvivesCallerCancellation(t *testing.T) {
	backend := newFakeBackend()
	backend.gate = make(chan struct{})
	c := NewCoordinator(backend, newRecordingBus(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Commit(ctx, "cart_1", []string{})
		done <- err
	}()
	require.Eventually(t, func() bool { return c.Busy("cart_1") }, time.Second, time.Millisecond)
	cancel()
	close(backend.gate)

	require.NoError(t, <-done)
	assert.Equal(t, domain.StateCommitted, backend.cart.State())
}
