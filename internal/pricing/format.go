package pricing

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var printer = message.NewPrinter(language.English)

// FormatCoins renders a coin amount with thousands separators, e.g. "1,200 Coins".
func FormatCoins(n int64) string {
	return printer.Sprintf("%d Coins", n)
}

// FormatCurrency renders a minor-unit amount in the given ISO currency.
// Unknown codes fall back to two decimals and the upper-cased code.
func FormatCurrency(minor int64, code string) string {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return printer.Sprintf("%s %.2f", strings.ToUpper(code), float64(minor)/100)
	}
	scale, _ := currency.Standard.Rounding(unit)
	sign := ""
	if minor < 0 {
		sign, minor = "-", -minor
	}
	value := float64(minor)
	for i := 0; i < scale; i++ {
		value /= 10
	}
	// The x/text formatter always puts a space after the symbol.
	sym := printer.Sprint(currency.Symbol(unit))
	return sign + sym + printer.Sprint(number.Decimal(value, number.Scale(scale)))
}

// FormatAmount renders one displayed figure.
func FormatAmount(a Amount, code string) string {
	var s string
	if a.Tender == TenderCoins {
		s = FormatCoins(a.Value)
	} else {
		s = FormatCurrency(a.Value, code)
	}
	if a.Negative {
		return "- " + s
	}
	return s
}

// Render writes the totals block as plain text, one row per line.
func Render(w io.Writer, s Summary) error {
	for _, row := range s.Lines() {
		parts := make([]string, 0, len(row.Amounts))
		for _, a := range row.Amounts {
			parts = append(parts, FormatAmount(a, s.CurrencyCode))
		}
		if _, err := fmt.Fprintf(w, "%-38s %s\n", row.Label, strings.Join(parts, " + ")); err != nil {
			return err
		}
	}
	return nil
}

// RenderPrice renders a price cell as plain text.
func RenderPrice(v PriceView, code string) string {
	var parts []string
	if v.ShowCoins {
		parts = append(parts, FormatCoins(v.Coins))
	}
	if v.StruckCurrency {
		parts = append(parts, "~"+FormatCurrency(v.Currency, code)+"~")
	}
	if v.ShowCurrency {
		if v.Reduced {
			parts = append(parts, fmt.Sprintf("Original: ~%s~ -%d%%", FormatCurrency(v.Original, code), v.PercentOff))
		}
		parts = append(parts, FormatCurrency(v.Currency, code))
	}
	if v.ShowAlternate {
		parts = append(parts, "or "+FormatCoins(v.Alternate))
	}
	return strings.Join(parts, " ")
}
