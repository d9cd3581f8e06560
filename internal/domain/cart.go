package domain

import "time"

// Consumer is the authenticated identity every cart operation runs under.
type Consumer struct {
	ID       int64
	City     string
	District string
}

type CartLine struct {
	ID         int64     `json:"id"`
	ConsumerID int64     `json:"consumer_id"`
	ProductID  int64     `json:"product_id"`
	Quantity   int       `json:"quantity"`
	AddedAt    time.Time `json:"added_at"`
}

// LineKey addresses a cart line either by its id or by the product it
// references. LineID wins when both are set and it resolves.
type LineKey struct {
	LineID    int64
	ProductID int64
}

func (k LineKey) IsZero() bool {
	return k.LineID <= 0 && k.ProductID <= 0
}
