package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PurchasedItem struct {
	ProductID int64           `json:"product_id"`
	Title     string          `json:"title"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// PurchaseResult is returned by a purchase attempt. It is never persisted.
type PurchaseResult struct {
	Status            PurchaseStatus  `json:"status"`
	Items             []PurchasedItem `json:"items,omitempty"`
	Total             decimal.Decimal `json:"total"`
	RejectedProductID int64           `json:"rejected_product_id,omitempty"`
	Reason            string          `json:"reason,omitempty"`
}

// PurchaseCompleted is the payload written to the outbox on commit.
type PurchaseCompleted struct {
	ConsumerID  int64           `json:"consumer_id"`
	Items       []PurchasedItem `json:"items"`
	Total       decimal.Decimal `json:"total"`
	Savings     decimal.Decimal `json:"savings"`
	CompletedAt time.Time       `json:"completed_at"`
}
