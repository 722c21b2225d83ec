package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/punchamoorthee/coinledger/internal/domain"
)

func TestLinePriceBothSelectedPreview(t *testing.T) {
	li := domain.LineItem{VariantID: "v_both", Quantity: 3, Total: 4500, OriginalTotal: 4500}
	both := cfg("v_both", domain.PaymentBoth, pp(300))

	v := LinePrice(li, both, true)
	assert.True(t, v.ShowCoins)
	assert.Equal(t, int64(900), v.Coins)
	assert.True(t, v.StruckCurrency)
	assert.Equal(t, int64(4500), v.Currency)
	assert.False(t, v.ShowCurrency)
	assert.False(t, v.ShowAlternate)

	// Selection on a currency-only item is ignored.
	v = LinePrice(li, cfg("v_both", domain.PaymentCurrency, nil), true)
	assert.False(t, v.ShowCoins)
	assert.True(t, v.ShowCurrency)
}

func TestLinePriceReduced(t *testing.T) {
	li := domain.LineItem{VariantID: "v1", Quantity: 1, Total: 750, OriginalTotal: 1000}
	v := LinePrice(li, nil, false)
	assert.True(t, v.Reduced)
	assert.Equal(t, int64(25), v.PercentOff)
	assert.Equal(t, int64(1000), v.Original)
}

func TestUnitPrice(t *testing.T) {
	li := domain.LineItem{VariantID: "v1", Quantity: 2, Total: 3000, OriginalTotal: 4000}

	v := UnitPrice(li, cfg("v1", domain.PaymentPoints, pp(500)))
	assert.Equal(t, PriceView{Coins: 500, ShowCoins: true}, v)

	v = UnitPrice(li, cfg("v1", domain.PaymentBoth, pp(200)))
	assert.Equal(t, int64(1500), v.Currency)
	assert.Equal(t, int64(2000), v.Original)
	assert.Equal(t, int64(25), v.PercentOff)
	assert.True(t, v.ShowAlternate)
	assert.Equal(t, int64(200), v.Alternate)
}

func TestProductPrice(t *testing.T) {
	price := CatalogPrice{Calculated: 1800, Original: 2000, Sale: true}

	v := ProductPrice(cfg("v1", domain.PaymentPoints, pp(700)), price, true)
	assert.False(t, v.ShowCurrency)
	assert.False(t, v.Reduced)
	assert.True(t, v.ShowCoins)
	assert.False(t, v.FromPrefix)

	v = ProductPrice(cfg("v1", domain.PaymentBoth, pp(700)), price, false)
	assert.True(t, v.ShowCurrency)
	assert.True(t, v.FromPrefix)
	assert.True(t, v.Reduced)
	assert.Equal(t, int64(10), v.PercentOff)
	assert.False(t, v.ShowCoins)
	assert.True(t, v.ShowAlternate)
	assert.Equal(t, int64(700), v.Alternate)

	v = ProductPrice(nil, price, true)
	assert.False(t, v.ShowCoins)
	assert.True(t, v.ShowCurrency)
}

func TestFormatCoins(t *testing.T) {
	assert.Equal(t, "1,200 Coins", FormatCoins(1200))
	assert.Equal(t, "500 Coins", FormatCoins(500))
	assert.Equal(t, "- 1,000 Coins", FormatAmount(Amount{Tender: TenderCoins, Value: 1000, Negative: true}, "usd"))
	assert.Equal(t, "$12.50", FormatCurrency(1250, "usd"))
	assert.Equal(t, "$1,234.56", FormatCurrency(123456, "usd"))
	assert.Equal(t, "-$5.00", FormatCurrency(-500, "usd"))
}

func TestRenderProductCard(t *testing.T) {
	both := ProductPrice(cfg("v1", domain.PaymentBoth, pp(300)), CatalogPrice{Calculated: 2000}, false)
	assert.True(t, both.FromPrefix)
	assert.Equal(t, "$20.00 or 300 Coins", RenderPrice(both.PriceView, "usd"))

	coinOnly := ProductPrice(cfg("v1", domain.PaymentPoints, pp(1200)), CatalogPrice{Calculated: 2000}, false)
	assert.False(t, coinOnly.FromPrefix)
	assert.Equal(t, "1,200 Coins", RenderPrice(coinOnly.PriceView, "usd"))

	cash := ProductPrice(nil, CatalogPrice{Calculated: 2000}, true)
	assert.Equal(t, "$20.00", RenderPrice(cash.PriceView, "usd"))
}

func TestPercentageDiff(t *testing.T) {
	assert.Equal(t, int64(0), PercentageDiff(0, 10))
	assert.Equal(t, int64(33), PercentageDiff(300, 200))
}
