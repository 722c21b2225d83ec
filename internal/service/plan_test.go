package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/punchamoorthee/coinledger/internal/domain"
)

func pp(v int64) *int64 { return &v }

func planCart() *domain.Cart {
	return &domain.Cart{
		ID: "cart_1",
		Items: []domain.LineItem{
			{ID: "li_1", VariantID: "v_cash", Quantity: 1, Total: 2000},
			{ID: "li_2", VariantID: "v_coin", Quantity: 2, Total: 3000},
			{ID: "li_3", VariantID: "v_both", Quantity: 1, Total: 900},
			{ID: "li_4", VariantID: "v_both2", Quantity: 3, Total: 600},
		},
	}
}

func planConfigs() map[string]*domain.VariantPointConfig {
	return map[string]*domain.VariantPointConfig{
		"v_cash":  {VariantID: "v_cash", PaymentType: domain.PaymentCurrency},
		"v_coin":  {VariantID: "v_coin", PaymentType: domain.PaymentPoints, PointPrice: pp(1200)},
		"v_both":  {VariantID: "v_both", PaymentType: domain.PaymentBoth, PointPrice: pp(800)},
		"v_both2": {VariantID: "v_both2", PaymentType: domain.PaymentBoth, PointPrice: pp(100)},
	}
}

func TestPlanEmptySelectionTakesPointsOnlyItems(t *testing.T) {
	plan, err := PlanRedemption(planCart(), planConfigs(), &[]string{})
	require.NoError(t, err)
	assert.Equal(t, int64(2400), plan.Cost)
	assert.Equal(t, []string{"v_coin"}, plan.VariantIDs)
}

func TestPlanExplicitSelection(t *testing.T) {
	plan, err := PlanRedemption(planCart(), planConfigs(), &[]string{"v_both"})
	require.NoError(t, err)
	assert.Equal(t, int64(3200), plan.Cost)
	assert.Equal(t, []string{"v_coin", "v_both"}, plan.VariantIDs)
}

func TestPlanNilSelectionTakesEveryEligibleItem(t *testing.T) {
	plan, err := PlanRedemption(planCart(), planConfigs(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2400+800+300), plan.Cost)
	assert.Equal(t, []string{"v_coin", "v_both", "v_both2"}, plan.VariantIDs)
}

func TestPlanRejectsInvalidSelection(t *testing.T) {
	_, err := PlanRedemption(planCart(), planConfigs(), &[]string{"v_cash"})
	assert.ErrorIs(t, err, ErrInvalidSelection)

	_, err = PlanRedemption(planCart(), planConfigs(), &[]string{"v_elsewhere"})
	assert.ErrorIs(t, err, ErrInvalidSelection)
}

func TestPlanNothingToRedeem(t *testing.T) {
	cart := &domain.Cart{Items: []domain.LineItem{{VariantID: "v_cash", Quantity: 1, Total: 100}}}
	_, err := PlanRedemption(cart, planConfigs(), &[]string{})
	assert.ErrorIs(t, err, ErrNothingToRedeem)

	_, err = PlanRedemption(&domain.Cart{}, planConfigs(), nil)
	assert.ErrorIs(t, err, ErrNothingToRedeem)
}

func TestPlanUsesCurrentPriceNotSelection(t *testing.T) {
	configs := planConfigs()
	configs["v_both"].PointPrice = pp(950)
	plan, err := PlanRedemption(planCart(), configs, &[]string{"v_both"})
	require.NoError(t, err)
	assert.Equal(t, int64(2400+950), plan.Cost)
}

func TestPlanMissingConfigIsCurrency(t *testing.T) {
	configs := planConfigs()
	delete(configs, "v_coin")
	plan, err := PlanRedemption(planCart(), configs, &[]string{})
	assert.ErrorIs(t, err, ErrNothingToRedeem)
	assert.Zero(t, plan.Cost)
}
