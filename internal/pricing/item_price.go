package pricing

import (
	"math"

	"github.com/punchamoorthee/coinledger/internal/domain"
)

// PriceView describes how a single price cell renders.
type PriceView struct {
	// Coins is the primary coin price; zero with ShowCoins false means no coin price.
	Coins     int64
	ShowCoins bool

	Currency     int64
	ShowCurrency bool
	// StruckCurrency renders the currency figure struck through under the coin price.
	StruckCurrency bool

	Original   int64
	Reduced    bool
	PercentOff int64

	// Alternate is the informational "or N Coins" annotation.
	Alternate     int64
	ShowAlternate bool
}

// LinePrice renders a line item's total. selected is true for a both-type item
// the customer has ticked for coins or that a committed redemption covers; a
// ticked item is a preview and never changes the totals.
func LinePrice(item domain.LineItem, cfg *domain.VariantPointConfig, selected bool) PriceView {
	bothSelected := selected && domain.EffectivePaymentType(cfg) == domain.PaymentBoth

	if (cfg.PointsOnly() || bothSelected) && cfg.AcceptsPoints() {
		v := PriceView{Coins: cfg.Price() * item.Quantity, ShowCoins: true}
		if bothSelected {
			v.Currency = item.Total
			v.StruckCurrency = true
		}
		return v
	}

	v := PriceView{
		Currency:     item.Total,
		ShowCurrency: true,
		Original:     item.OriginalTotal,
		Reduced:      item.Total < item.OriginalTotal,
	}
	if v.Reduced {
		v.PercentOff = PercentageDiff(item.OriginalTotal, item.Total)
	}
	if cfg.AcceptsPoints() {
		v.Alternate = cfg.Price() * item.Quantity
		v.ShowAlternate = true
	}
	return v
}

// UnitPrice renders a line item's per-unit price.
func UnitPrice(item domain.LineItem, cfg *domain.VariantPointConfig) PriceView {
	if cfg.PointsOnly() {
		return PriceView{Coins: cfg.Price(), ShowCoins: true}
	}

	qty := item.Quantity
	if qty <= 0 {
		qty = 1
	}
	v := PriceView{
		Currency:     item.Total / qty,
		ShowCurrency: true,
		Original:     item.OriginalTotal / qty,
		Reduced:      item.Total < item.OriginalTotal,
	}
	if v.Reduced {
		v.PercentOff = PercentageDiff(item.OriginalTotal, item.Total)
	}
	if cfg.AcceptsPoints() {
		v.Alternate = cfg.Price()
		v.ShowAlternate = true
	}
	return v
}

// CatalogPrice is the commerce backend's price for a product or variant.
type CatalogPrice struct {
	Calculated int64
	Original   int64
	Sale       bool
}

// ProductPriceView describes the product page and product card price block.
type ProductPriceView struct {
	PriceView
	// FromPrefix prefixes the currency price with "From" when no variant is chosen.
	FromPrefix bool
}

// ProductPrice renders a product price given its first or chosen variant's policy.
// Coin-only variants show the coin price alone; both-type variants show the
// currency price with an "or N Coins" note.
func ProductPrice(cfg *domain.VariantPointConfig, price CatalogPrice, variantChosen bool) ProductPriceView {
	if cfg.PointsOnly() {
		return ProductPriceView{PriceView: PriceView{Coins: cfg.Price(), ShowCoins: true}}
	}

	v := ProductPriceView{FromPrefix: !variantChosen}
	v.Currency = price.Calculated
	v.ShowCurrency = true
	if price.Sale {
		v.Original = price.Original
		v.Reduced = true
		v.PercentOff = PercentageDiff(price.Original, price.Calculated)
	}
	if cfg.AcceptsPoints() {
		v.Alternate = cfg.Price()
		v.ShowAlternate = true
	}
	return v
}

// PercentageDiff is the rounded percentage reduction from original to current.
func PercentageDiff(original, current int64) int64 {
	if original == 0 {
		return 0
	}
	return int64(math.Round(float64(original-current) / float64(original) * 100))
}
