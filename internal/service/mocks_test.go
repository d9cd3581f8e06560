package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fjod/go_cart/market/internal/cache"
	"github.com/fjod/go_cart/market/internal/domain"
	"github.com/fjod/go_cart/market/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// MockCache implements cache.CartCache in memory and counts calls.
type MockCache struct {
	m       sync.Mutex
	entries map[int64][]domain.CartLine
	GetErr  error
	Gets    int
	Sets    int
	Deletes int
}

func newMockCache() *MockCache {
	return &MockCache{entries: make(map[int64][]domain.CartLine)}
}

func (m *MockCache) Get(_ context.Context, consumerID int64) ([]domain.CartLine, error) {
	m.m.Lock()
	defer m.m.Unlock()
	m.Gets++
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	lines, ok := m.entries[consumerID]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return append([]domain.CartLine(nil), lines...), nil
}

func (m *MockCache) Set(_ context.Context, consumerID int64, lines []domain.CartLine) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.Sets++
	m.entries[consumerID] = append([]domain.CartLine(nil), lines...)
	return nil
}

func (m *MockCache) Delete(_ context.Context, consumerID int64) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.Deletes++
	delete(m.entries, consumerID)
	return nil
}

func (m *MockCache) has(consumerID int64) bool {
	m.m.Lock()
	defer m.m.Unlock()
	_, ok := m.entries[consumerID]
	return ok
}

// pausingCache blocks the first Get or Set, when enabled, until released.
type pausingCache struct {
	*MockCache
	pauseGet, pauseSet     bool
	getOnce, setOnce       sync.Once
	getReached, setReached chan struct{}
	releaseGet, releaseSet chan struct{}
}

func newPausingCache() *pausingCache {
	return &pausingCache{
		MockCache:  newMockCache(),
		getReached: make(chan struct{}),
		setReached: make(chan struct{}),
		releaseGet: make(chan struct{}),
		releaseSet: make(chan struct{}),
	}
}

func (p *pausingCache) Get(ctx context.Context, consumerID int64) ([]domain.CartLine, error) {
	if p.pauseGet {
		p.getOnce.Do(func() {
			close(p.getReached)
			<-p.releaseGet
		})
	}
	return p.MockCache.Get(ctx, consumerID)
}

func (p *pausingCache) Set(ctx context.Context, consumerID int64, lines []domain.CartLine) error {
	if p.pauseSet {
		p.setOnce.Do(func() {
			close(p.setReached)
			<-p.releaseSet
		})
	}
	return p.MockCache.Set(ctx, consumerID, lines)
}

// faultyStore wraps a real repository and fails DecrementStock for one
// product inside transactions, after validation has already passed.
type faultyStore struct {
	*repository.Repository
	failProductID int64
}

func (f *faultyStore) WithTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	return f.Repository.WithTx(ctx, func(tx repository.Tx) error {
		return fn(&faultyTx{Tx: tx, failProductID: f.failProductID})
	})
}

type faultyTx struct {
	repository.Tx
	failProductID int64
}

func (f *faultyTx) DecrementStock(ctx context.Context, productID int64, quantity int) (int, error) {
	if productID == f.failProductID {
		return 0, repository.ErrInsufficientStock
	}
	return f.Tx.DecrementStock(ctx, productID, quantity)
}

var testNow = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

func setupRepo(t *testing.T) *repository.Repository {
	t.Helper()
	repo, err := repository.NewRepository(&repository.Credentials{
		Driver: repository.DialectSQLite,
		Path:   ":memory:",
	})
	require.NoError(t, err)
	require.NoError(t, repo.RunMigrations())
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func setupService(t *testing.T) (*CartService, *repository.Repository, *MockCache) {
	t.Helper()
	repo := setupRepo(t)
	c := newMockCache()
	svc := NewCartService(repo, c, nil, WithClock(func() time.Time { return testNow }))
	return svc, repo, c
}

type productSpec struct {
	title      string
	stock      int
	discounted string
	normal     string
	city       string
	expires    time.Time
}

func createProduct(t *testing.T, repo *repository.Repository, spec productSpec) *domain.Product {
	t.Helper()
	if spec.city == "" {
		spec.city = "Istanbul"
	}
	if spec.expires.IsZero() {
		spec.expires = testNow.AddDate(0, 0, 2)
	}
	p := &domain.Product{
		MarketID:        1,
		Title:           spec.title,
		Stock:           spec.stock,
		NormalPrice:     decimal.RequireFromString(spec.normal),
		DiscountedPrice: decimal.RequireFromString(spec.discounted),
		ExpirationDate:  spec.expires,
		City:            spec.city,
	}
	require.NoError(t, repo.CreateProduct(context.Background(), p))
	return p
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
