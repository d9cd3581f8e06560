package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a catalog entry offered by a market. The cart engine only
// ever mutates Stock.
type Product struct {
	ID              int64           `json:"id"`
	MarketID        int64           `json:"market_id"`
	Title           string          `json:"title"`
	Stock           int             `json:"stock"`
	NormalPrice     decimal.Decimal `json:"normal_price"`
	DiscountedPrice decimal.Decimal `json:"discounted_price"`
	ExpirationDate  time.Time       `json:"expiration_date"`
	City            string          `json:"city"`
	District        string          `json:"district"`
	CreatedAt       time.Time       `json:"created_at"`
}

// IsExpired reports whether the expiration date lies before the calendar
// day of now. A product expiring today is still sellable.
func (p Product) IsExpired(now time.Time) bool {
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	ey, em, ed := p.ExpirationDate.Date()
	expires := time.Date(ey, em, ed, 0, 0, 0, 0, time.UTC)
	return expires.Before(today)
}

// Saving is the per-unit discount.
func (p Product) Saving() decimal.Decimal {
	return p.NormalPrice.Sub(p.DiscountedPrice)
}
