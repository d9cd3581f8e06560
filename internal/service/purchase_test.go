package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fjod/go_cart/market/internal/domain"
	"github.com/fjod/go_cart/market/internal/pricing"
	"github.com/fjod/go_cart/market/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fillCart(t *testing.T, svc *CartService, consumer domain.Consumer, productID int64, quantity int) {
	t.Helper()
	ctx := context.Background()
	added, err := svc.Add(ctx, consumer, productID)
	require.NoError(t, err)
	if quantity > 1 {
		_, err = svc.UpdateQuantity(ctx, consumer, added.Line.ID, productID, quantity)
		require.NoError(t, err)
	}
}

func TestPurchase_ExactStockDeletesProduct(t *testing.T) {
	svc, repo, _ := setupService(t)
	ctx := context.Background()
	p := createProduct(t, repo, productSpec{title: "Cake", stock: 5, discounted: "8", normal: "12"})
	fillCart(t, svc, alice, p.ID, 5)

	res, err := svc.Purchase(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, domain.PurchaseStatusCommitted, res.Status)
	require.Len(t, res.Items, 1)
	assert.Equal(t, p.ID, res.Items[0].ProductID)
	assert.Equal(t, 5, res.Items[0].Quantity)
	assert.Equal(t, "40.00", pricing.Format(res.Total))

	_, err = repo.GetProduct(ctx, p.ID)
	assert.ErrorIs(t, err, repository.ErrProductNotFound)

	listed, err := repo.ListProducts(ctx, repository.ProductFilter{City: "Istanbul"})
	require.NoError(t, err)
	assert.Empty(t, listed)

	lines, err := repo.GetLines(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestPurchase_PartialStockKeepsProduct(t *testing.T) {
	svc, repo, c := setupService(t)
	ctx := context.Background()
	a := createProduct(t, repo, productSpec{title: "A", stock: 5, discounted: "10", normal: "15"})
	b := createProduct(t, repo, productSpec{title: "B", stock: 3, discounted: "20", normal: "25"})
	fillCart(t, svc, alice, a.ID, 2)
	fillCart(t, svc, alice, b.ID, 3)

	// another consumer holds the sold-out product too
	bob := domain.Consumer{ID: 2, City: "Istanbul"}
	fillCart(t, svc, bob, b.ID, 1)
	_, err := svc.GetCart(ctx, alice)
	require.NoError(t, err)

	res, err := svc.Purchase(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, "80.00", pricing.Format(res.Total))
	assert.False(t, c.has(alice.ID), "purchase must invalidate the cart cache")

	gotA, err := repo.GetProduct(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, gotA.Stock)

	_, err = repo.GetProduct(ctx, b.ID)
	assert.ErrorIs(t, err, repository.ErrProductNotFound)

	bobLines, err := repo.GetLines(ctx, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, bobLines, "lines of a deleted product go with it")

	events, err := repo.GetUnprocessedEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventPurchaseCompleted, events[0].EventType)
	assert.Equal(t, "1", events[0].AggregateID)

	var payload domain.PurchaseCompleted
	require.NoError(t, json.Unmarshal(events[0].Payload, &payload))
	assert.Equal(t, alice.ID, payload.ConsumerID)
	assert.Len(t, payload.Items, 2)
	assert.Equal(t, "80.00", pricing.Format(payload.Total))
	assert.Equal(t, "25.00", pricing.Format(payload.Savings))
}

func TestPurchase_RejectedWhenStockDroppedMeanwhile(t *testing.T) {
	svc, repo, _ := setupService(t)
	ctx := context.Background()
	p := createProduct(t, repo, productSpec{title: "Cheese", stock: 3, discounted: "5", normal: "9"})
	fillCart(t, svc, alice, p.ID, 3)

	bob := domain.Consumer{ID: 2, City: "Istanbul"}
	fillCart(t, svc, bob, p.ID, 1)
	_, err := svc.Purchase(ctx, bob)
	require.NoError(t, err)

	res, err := svc.Purchase(ctx, alice)
	assert.ErrorIs(t, err, ErrStockExceeded)
	var pe *ProductError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, p.ID, pe.ProductID)
	require.NotNil(t, res)
	assert.Equal(t, domain.PurchaseStatusRejected, res.Status)
	assert.Equal(t, p.ID, res.RejectedProductID)
	assert.NotEmpty(t, res.Reason)

	got, err := repo.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Stock)

	lines, err := repo.GetLines(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, 3, lines[0].Quantity)
}

func TestPurchase_ApplyFailureRollsBackEverything(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	a := createProduct(t, repo, productSpec{title: "A", stock: 5, discounted: "1", normal: "2"})
	b := createProduct(t, repo, productSpec{title: "B", stock: 5, discounted: "1", normal: "2"})

	// a is added last so it is applied first
	store := &faultyStore{Repository: repo, failProductID: b.ID}
	svc := NewCartService(store, newMockCache(), nil, WithClock(func() time.Time { return testNow }))
	fillCart(t, svc, alice, b.ID, 2)
	fillCart(t, svc, alice, a.ID, 5)

	res, err := svc.Purchase(ctx, alice)
	assert.ErrorIs(t, err, ErrStockExceeded)
	require.NotNil(t, res)
	assert.Equal(t, b.ID, res.RejectedProductID)

	gotA, err := repo.GetProduct(ctx, a.ID)
	require.NoError(t, err, "a must not have been deleted")
	assert.Equal(t, 5, gotA.Stock)

	lines, err := repo.GetLines(ctx, alice.ID)
	require.NoError(t, err)
	assert.Len(t, lines, 2)

	events, err := repo.GetUnprocessedEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestPurchase_EmptyCart(t *testing.T) {
	svc, _, _ := setupService(t)

	res, err := svc.Purchase(context.Background(), alice)
	assert.ErrorIs(t, err, ErrEmptyCart)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Nil(t, res)
}

func TestPurchase_RequiresConsumer(t *testing.T) {
	svc, _, _ := setupService(t)

	_, err := svc.Purchase(context.Background(), domain.Consumer{})
	assert.ErrorIs(t, err, ErrAuthRequired)
}

// Concurrent purchases by different consumers never oversell.
func TestPurchase_ConcurrentConsumersNeverOversell(t *testing.T) {
	svc, repo, _ := setupService(t)
	ctx := context.Background()
	p := createProduct(t, repo, productSpec{title: "Hot item", stock: 4, discounted: "1", normal: "2"})

	consumers := make([]domain.Consumer, 6)
	for i := range consumers {
		consumers[i] = domain.Consumer{ID: int64(100 + i), City: "Istanbul"}
		fillCart(t, svc, consumers[i], p.ID, 1)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		committed int
	)
	for _, c := range consumers {
		wg.Add(1)
		go func(c domain.Consumer) {
			defer wg.Done()
			_, err := svc.Purchase(ctx, c)
			if err == nil {
				mu.Lock()
				committed++
				mu.Unlock()
			} else if !errors.Is(err, ErrStockExceeded) && !errors.Is(err, ErrEmptyCart) {
				t.Errorf("unexpected error: %v", err)
			}
		}(c)
	}
	wg.Wait()

	assert.Equal(t, 4, committed)
	_, err := repo.GetProduct(ctx, p.ID)
	assert.ErrorIs(t, err, repository.ErrProductNotFound, "stock reached zero")
}

func TestPurchaseTransition_Illegal(t *testing.T) {
	p := &purchase{status: domain.PurchaseStatusValidating}

	assert.ErrorIs(t, p.transition(domain.PurchaseStatusCommitted), ErrIllegalTransition)
	require.NoError(t, p.transition(domain.PurchaseStatusApplying))
	require.NoError(t, p.transition(domain.PurchaseStatusCommitted))
	assert.ErrorIs(t, p.transition(domain.PurchaseStatusRejected), ErrIllegalTransition)
}
