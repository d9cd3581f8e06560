// Package pricing derives cart subtotals and savings. Nothing here rounds;
// rounding happens once, in Format, when a value leaves the service.
package pricing

import (
	"github.com/fjod/go_cart/market/internal/domain"
	"github.com/shopspring/decimal"
)

type Line struct {
	Quantity        int
	DiscountedPrice decimal.Decimal
	NormalPrice     decimal.Decimal
}

type LineTotals struct {
	Subtotal decimal.Decimal
	Saving   decimal.Decimal
}

type Totals struct {
	Lines   []LineTotals
	Total   decimal.Decimal
	Savings decimal.Decimal
}

func LineFor(quantity int, p domain.Product) Line {
	return Line{
		Quantity:        quantity,
		DiscountedPrice: p.DiscountedPrice,
		NormalPrice:     p.NormalPrice,
	}
}

func LineSubtotal(l Line) decimal.Decimal {
	return l.DiscountedPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

func LineSaving(l Line) decimal.Decimal {
	return l.NormalPrice.Sub(l.DiscountedPrice).Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Compute returns per-line figures in input order plus the cart sums.
func Compute(lines []Line) Totals {
	totals := Totals{
		Lines:   make([]LineTotals, len(lines)),
		Total:   decimal.Zero,
		Savings: decimal.Zero,
	}
	for i, l := range lines {
		lt := LineTotals{Subtotal: LineSubtotal(l), Saving: LineSaving(l)}
		totals.Lines[i] = lt
		totals.Total = totals.Total.Add(lt.Subtotal)
		totals.Savings = totals.Savings.Add(lt.Saving)
	}
	return totals
}

// Format renders a money value with exactly two fractional digits.
func Format(d decimal.Decimal) string {
	return d.StringFixed(2)
}
