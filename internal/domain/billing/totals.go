package billing

import (
	"github.com/shopspring/decimal"
)

// MoneyScale is the number of decimal places kept for every monetary amount.
const MoneyScale = 2

var (
	hundred = decimal.NewFromInt(100)

	// DefaultTotalsTolerance is the divergence accepted between stored and
	// computed totals before a repair is considered necessary.
	DefaultTotalsTolerance = decimal.New(1, -MoneyScale)
)

// RoundMoney rounds to MoneyScale places, half away from zero.
// For the non-negative amounts billing deals with this is round-half-up.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyScale)
}

// NetPrice returns round(unit * quantity * (1 - discount/100), 2).
func NetPrice(unitPrice decimal.Decimal, quantity int, discountPercent decimal.Decimal) decimal.Decimal {
	gross := unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
	factor := decimal.NewFromInt(1).Sub(discountPercent.Div(hundred))
	return RoundMoney(gross.Mul(factor))
}

// DiscountAmount returns round(subtotal * discount/100, 2).
func DiscountAmount(subtotal, discountPercent decimal.Decimal) decimal.Decimal {
	return RoundMoney(subtotal.Mul(discountPercent).Div(hundred))
}

// Totals are the derived amounts of an invoice.
type Totals struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	Total          decimal.Decimal `json:"total"`
}

// ZeroTotals returns the totals of an invoice without items.
func ZeroTotals() Totals {
	return Totals{Subtotal: decimal.Zero, DiscountAmount: decimal.Zero, Total: decimal.Zero}
}

// ComputeTotals derives invoice totals from a fixed item set and the invoice
// level discount. Item net prices are derived from the item's own price
// fields so that stale stored net prices cannot leak into the sum.
func ComputeTotals(discountPercent decimal.Decimal, items []InvoiceItem) Totals {
	subtotal := decimal.Zero
	for i := range items {
		subtotal = subtotal.Add(items[i].ComputedNetPrice())
	}
	subtotal = RoundMoney(subtotal)
	discount := DiscountAmount(subtotal, discountPercent)
	return Totals{
		Subtotal:       subtotal,
		DiscountAmount: discount,
		Total:          RoundMoney(subtotal.Sub(discount)),
	}
}

// Equal reports whether both totals carry the same amounts.
func (t Totals) Equal(other Totals) bool {
	return t.Subtotal.Equal(other.Subtotal) &&
		t.DiscountAmount.Equal(other.DiscountAmount) &&
		t.Total.Equal(other.Total)
}

// DivergesFrom reports whether any stored amount differs from t by more than tolerance.
func (t Totals) DivergesFrom(stored Totals, tolerance decimal.Decimal) bool {
	exceeds := func(a, b decimal.Decimal) bool {
		return a.Sub(b).Abs().GreaterThan(tolerance)
	}
	return exceeds(t.Subtotal, stored.Subtotal) ||
		exceeds(t.DiscountAmount, stored.DiscountAmount) ||
		exceeds(t.Total, stored.Total)
}
