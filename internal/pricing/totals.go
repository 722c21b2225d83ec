// Package pricing splits a cart between currency and coins.
//
// Compute is the single authority for cart totals wherever a cart is shown.
// It only reads the cart and the view's policies; it never mutates either.
package pricing

import (
	"github.com/punchamoorthee/coinledger/internal/domain"
	"github.com/punchamoorthee/coinledger/internal/policy"
)

// Settlement is the tender a line item is counted in for one computation.
type Settlement string

const (
	SettleCurrency Settlement = "currency"
	SettlePoints   Settlement = "points"
)

// ItemBreakdown is one line item's contribution to the totals.
type ItemBreakdown struct {
	ItemID      string
	VariantID   string
	PaymentType domain.PaymentType
	Settlement  Settlement

	// Exactly one of these is counted, according to Settlement.
	CurrencyAmount int64
	PointsAmount   int64

	// AlternatePoints is the "or N Coins" annotation on uncovered both-type items.
	// It never enters a total.
	AlternatePoints int64

	// CoveredByRedemption marks a both-type item settled by the committed redemption.
	CoveredByRedemption bool
}

// Summary is the result of one computation pass.
type Summary struct {
	CurrencyCode string
	Totals       domain.CartTotals
	State        domain.RedemptionState
	Items        []ItemBreakdown

	CoinOnlySubtotal       int64
	CoinItemsCurrencyTotal int64
	CurrencySubtotal       int64
	AdjustedTotal          int64

	// PointsApplied is the cost recorded at commit time, never re-derived.
	PointsApplied int64

	// Inconsistent is set when a raw subtotal or total went negative and was clamped.
	Inconsistent bool
}

// HasCoinOnlyItems reports whether any item is settled in coins.
func (s Summary) HasCoinOnlyItems() bool {
	return s.CoinOnlySubtotal > 0
}

// Compute classifies every line item and derives the display totals.
func Compute(cart *domain.Cart, policies policy.Policies) Summary {
	s := Summary{State: cart.State()}
	if cart == nil {
		return s
	}
	s.CurrencyCode = cart.CurrencyCode
	s.Totals = cart.Totals
	s.PointsApplied = cart.PointsCost()
	s.Items = make([]ItemBreakdown, 0, len(cart.Items))

	for _, item := range cart.Items {
		cfg := policies.For(item.VariantID)
		b := ItemBreakdown{
			ItemID:      item.ID,
			VariantID:   item.VariantID,
			PaymentType: domain.EffectivePaymentType(cfg),
			Settlement:  SettleCurrency,
		}

		switch {
		case cfg.PointsOnly():
			b.Settlement = SettlePoints
		case cfg.AcceptsPoints() && cart.CoversVariant(item.VariantID):
			b.Settlement = SettlePoints
			b.CoveredByRedemption = true
		case cfg.AcceptsPoints():
			b.AlternatePoints = cfg.Price() * item.Quantity
		}

		if b.Settlement == SettlePoints {
			b.PointsAmount = cfg.Price() * item.Quantity
			s.CoinOnlySubtotal += b.PointsAmount
			s.CoinItemsCurrencyTotal += item.Total
		} else {
			b.CurrencyAmount = item.Total
		}
		s.Items = append(s.Items, b)
	}

	s.CurrencySubtotal = cart.Totals.ItemSubtotal - s.CoinItemsCurrencyTotal
	s.AdjustedTotal = cart.Totals.Total - s.CoinItemsCurrencyTotal
	if s.CurrencySubtotal < 0 {
		s.CurrencySubtotal = 0
		s.Inconsistent = true
	}
	if s.AdjustedTotal < 0 {
		s.AdjustedTotal = 0
		s.Inconsistent = true
	}
	return s
}
