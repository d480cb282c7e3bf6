package money

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Unit is one whole unit of currency. Amounts closer than this are treated as equal when
// comparing aggregated schedule values.
var Unit = decimal.NewFromInt(1)

var hundred = decimal.NewFromInt(100)

// Format renders an amount as a thousands-separated whole number (e.g. 1,234,568).
// Half values round to even, matching the display rules of the proposal sheets.
func Format(amount decimal.Decimal) string {
	return message.NewPrinter(language.English).Sprintf("%d", amount.RoundBank(0).IntPart())
}

// FormatPercent renders a ratio such as 0.4733 as "47%".
func FormatPercent(rate decimal.Decimal) string {
	return rate.Mul(hundred).RoundBank(0).String() + "%"
}

// Within reports whether a and b differ by strictly less than tolerance.
func Within(a, b, tolerance decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThan(tolerance)
}

// Sum adds the provided amounts.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}
