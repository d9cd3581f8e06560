package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestProduct_IsExpired(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC)

	tests := []struct {
		name    string
		expires time.Time
		want    bool
	}{
		{"yesterday", time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), true},
		{"today", time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), false},
		{"today late", time.Date(2026, 3, 10, 23, 59, 0, 0, time.UTC), false},
		{"tomorrow", time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Product{ExpirationDate: tt.expires}
			assert.Equal(t, tt.want, p.IsExpired(now))
		})
	}
}

func TestProduct_Saving(t *testing.T) {
	p := Product{
		NormalPrice:     decimal.RequireFromString("15.00"),
		DiscountedPrice: decimal.RequireFromString("10.50"),
	}
	assert.True(t, decimal.RequireFromString("4.50").Equal(p.Saving()))
}

func TestLineKey_IsZero(t *testing.T) {
	assert.True(t, LineKey{}.IsZero())
	assert.False(t, LineKey{LineID: 3}.IsZero())
	assert.False(t, LineKey{ProductID: 7}.IsZero())
}

func TestPurchaseStatus_Transitions(t *testing.T) {
	assert.True(t, CanTransitionTo(PurchaseStatusValidating, PurchaseStatusApplying))
	assert.True(t, CanTransitionTo(PurchaseStatusValidating, PurchaseStatusRejected))
	assert.True(t, CanTransitionTo(PurchaseStatusApplying, PurchaseStatusCommitted))
	assert.True(t, CanTransitionTo(PurchaseStatusApplying, PurchaseStatusRejected))

	assert.False(t, CanTransitionTo(PurchaseStatusValidating, PurchaseStatusCommitted))
	assert.False(t, CanTransitionTo(PurchaseStatusCommitted, PurchaseStatusApplying))
	assert.False(t, CanTransitionTo(PurchaseStatusRejected, PurchaseStatusApplying))
}

func TestPurchaseStatus_IsTerminal(t *testing.T) {
	assert.True(t, PurchaseStatusCommitted.IsTerminal())
	assert.True(t, PurchaseStatusRejected.IsTerminal())
	assert.False(t, PurchaseStatusValidating.IsTerminal())
	assert.False(t, PurchaseStatusApplying.IsTerminal())
	assert.Equal(t, "COMMITTED", PurchaseStatusCommitted.String())
}
