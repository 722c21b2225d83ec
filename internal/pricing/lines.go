package pricing

// Tender is the unit an amount is displayed in.
type Tender string

const (
	TenderCurrency Tender = "currency"
	TenderCoins    Tender = "coins"
)

// Amount is one displayed figure.
type Amount struct {
	Tender   Tender
	Value    int64
	Negative bool
}

// Row is one labelled line of the totals block. A row may show a currency
// and a coin figure side by side for mixed carts.
type Row struct {
	Key     string
	Label   string
	Amounts []Amount
}

// Row keys.
const (
	RowSubtotal     = "subtotal"
	RowShipping     = "shipping"
	RowDiscount     = "discount"
	RowCoinsApplied = "coins_applied"
	RowTaxes        = "taxes"
	RowTotal        = "total"
)

// Lines is the render plan of the totals block. The total row is always present.
func (s Summary) Lines() []Row {
	rows := make([]Row, 0, 6)

	rows = append(rows, Row{
		Key:     RowSubtotal,
		Label:   "Subtotal (excl. shipping and taxes)",
		Amounts: s.split(s.CurrencySubtotal),
	})

	if s.CurrencySubtotal > 0 {
		rows = append(rows, Row{
			Key:     RowShipping,
			Label:   "Shipping",
			Amounts: []Amount{{Tender: TenderCurrency, Value: s.Totals.ShippingSubtotal}},
		})
	}
	if s.Totals.DiscountSubtotal != 0 {
		rows = append(rows, Row{
			Key:     RowDiscount,
			Label:   "Discount",
			Amounts: []Amount{{Tender: TenderCurrency, Value: s.Totals.DiscountSubtotal, Negative: true}},
		})
	}
	if s.PointsApplied > 0 {
		rows = append(rows, Row{
			Key:     RowCoinsApplied,
			Label:   "Coins Applied",
			Amounts: []Amount{{Tender: TenderCoins, Value: s.PointsApplied}},
		})
	}
	if s.CurrencySubtotal > 0 {
		rows = append(rows, Row{
			Key:     RowTaxes,
			Label:   "Taxes",
			Amounts: []Amount{{Tender: TenderCurrency, Value: s.Totals.TaxTotal}},
		})
	}

	rows = append(rows, Row{
		Key:     RowTotal,
		Label:   "Total",
		Amounts: s.split(s.AdjustedTotal),
	})
	return rows
}

// split shows the currency figure when positive, the coin figure when positive,
// and a zero currency figure when neither is.
func (s Summary) split(currency int64) []Amount {
	var out []Amount
	if currency > 0 {
		out = append(out, Amount{Tender: TenderCurrency, Value: currency})
	}
	if s.HasCoinOnlyItems() {
		out = append(out, Amount{Tender: TenderCoins, Value: s.CoinOnlySubtotal})
	}
	if len(out) == 0 {
		out = append(out, Amount{Tender: TenderCurrency, Value: 0})
	}
	return out
}

// Row returns the row with the given key.
func (s Summary) Row(key string) (Row, bool) {
	for _, r := range s.Lines() {
		if r.Key == key {
			return r, true
		}
	}
	return Row{}, false
}
