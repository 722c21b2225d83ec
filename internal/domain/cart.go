package domain

import "slices"

// RedemptionState is the durable redemption state of a cart.
type RedemptionState string

const (
	StateUnapplied RedemptionState = "unapplied"
	StateCommitted RedemptionState = "committed"
)

// Metadata keys written by a redemption commit.
const (
	MetaPointsCost       = "points_cost"
	MetaPointsVariantIDs = "points_variant_ids"
)

// LineItem is read-only to the pricing engine. Amounts are minor units.
type LineItem struct {
	ID            string `json:"id"`
	VariantID     string `json:"variant_id"`
	Title         string `json:"title"`
	Quantity      int64  `json:"quantity"`
	UnitPrice     int64  `json:"unit_price"`
	Total         int64  `json:"total"`
	OriginalTotal int64  `json:"original_total"`
}

// CartTotals are the commerce backend's currency totals.
type CartTotals struct {
	ItemSubtotal     int64 `json:"item_subtotal"`
	ShippingSubtotal int64 `json:"shipping_subtotal"`
	TaxTotal         int64 `json:"tax_total"`
	DiscountSubtotal int64 `json:"discount_subtotal"`
	Total            int64 `json:"total"`
}

// CartMetadata holds the redemption fields the points backend attaches to a cart.
type CartMetadata struct {
	PointsCost       *int64   `json:"points_cost,omitempty"`
	PointsVariantIDs []string `json:"points_variant_ids,omitempty"`
}

type Cart struct {
	ID           string       `json:"id"`
	CustomerID   string       `json:"customer_id,omitempty"`
	CurrencyCode string       `json:"currency_code"`
	Items        []LineItem   `json:"items"`
	Totals       CartTotals   `json:"totals"`
	Metadata     CartMetadata `json:"metadata"`
}

// State derives the redemption state from the presence of points_cost.
func (c *Cart) State() RedemptionState {
	if c != nil && c.Metadata.PointsCost != nil {
		return StateCommitted
	}
	return StateUnapplied
}

// PointsCost returns the committed cost, or zero when unapplied.
func (c *Cart) PointsCost() int64 {
	if c == nil || c.Metadata.PointsCost == nil {
		return 0
	}
	return *c.Metadata.PointsCost
}

// CoversVariant reports whether the committed redemption settled the variant.
func (c *Cart) CoversVariant(variantID string) bool {
	if c.State() != StateCommitted {
		return false
	}
	return slices.Contains(c.Metadata.PointsVariantIDs, variantID)
}

// VariantIDs returns the distinct variant ids in item order.
func (c *Cart) VariantIDs() []string {
	seen := make(map[string]struct{}, len(c.Items))
	ids := make([]string, 0, len(c.Items))
	for _, item := range c.Items {
		if item.VariantID == "" {
			continue
		}
		if _, ok := seen[item.VariantID]; ok {
			continue
		}
		seen[item.VariantID] = struct{}{}
		ids = append(ids, item.VariantID)
	}
	return ids
}

// Customer is the authenticated storefront identity.
type Customer struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}
