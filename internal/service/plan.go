package service

import (
	"fmt"
	"slices"

	"github.com/punchamoorthee/coinledger/internal/domain"
)

// Plan is the server-side pricing of a redemption.
type Plan struct {
	Cost int64
	// VariantIDs are every variant settled in coins, in cart order.
	VariantIDs []string
}

// PlanRedemption prices a redemption from the current policies. The selection
// only chooses among both-type items; it never sets a price. A nil selection
// takes every eligible item, an empty one takes points-only items alone.
func PlanRedemption(cart *domain.Cart, configs map[string]*domain.VariantPointConfig, selection *[]string) (Plan, error) {
	inCart := make(map[string]bool, len(cart.Items))
	for _, item := range cart.Items {
		inCart[item.VariantID] = true
	}

	if selection != nil {
		for _, id := range *selection {
			if !inCart[id] {
				return Plan{}, fmt.Errorf("%w: variant %s is not in the cart", ErrInvalidSelection, id)
			}
			if !configs[id].AcceptsPoints() {
				return Plan{}, fmt.Errorf("%w: variant %s cannot be paid with coins", ErrInvalidSelection, id)
			}
		}
	}

	var plan Plan
	for _, item := range cart.Items {
		cfg := configs[item.VariantID]
		settle := cfg.PointsOnly() ||
			(cfg.AcceptsPoints() && (selection == nil || slices.Contains(*selection, item.VariantID)))
		if !settle {
			continue
		}
		plan.Cost += cfg.Price() * item.Quantity
		if !slices.Contains(plan.VariantIDs, item.VariantID) {
			plan.VariantIDs = append(plan.VariantIDs, item.VariantID)
		}
	}
	if len(plan.VariantIDs) == 0 {
		return Plan{}, ErrNothingToRedeem
	}
	return plan, nil
}
