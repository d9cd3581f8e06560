package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fjod/go_cart/market/internal/cache"
	"github.com/fjod/go_cart/market/internal/domain"
	"github.com/fjod/go_cart/market/internal/repository"
	"github.com/fjod/go_cart/market/internal/service"
	"github.com/fjod/go_cart/market/internal/session"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newStackServer wires the real service over in-memory sqlite and miniredis.
func newStackServer(t *testing.T) (*testServer, *repository.Repository) {
	repo, err := repository.NewRepository(&repository.Credentials{Driver: repository.DialectSQLite, Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	require.NoError(t, repo.RunMigrations())

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	now := func() time.Time { return time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC) }
	carts := service.NewCartService(repo, cache.NewBreakerCache(cache.NewRedisCache(client, time.Minute), zap.NewNop()),
		zap.NewNop(), service.WithClock(now))
	catalog := service.NewCatalogService(repo, now)

	ts := &testServer{sessions: session.NewRedisStore(client, time.Hour)}
	ts.handler = NewRouter(NewHandler(carts, catalog, 5*time.Second, 0, zap.NewNop()), ts.sessions, zap.NewNop())
	return ts, repo
}

func TestStack_AddUpdatePurchase(t *testing.T) {
	ts, repo := newStackServer(t)
	ctx := context.Background()
	s := ts.login(t, session.RoleConsumer)

	p := &domain.Product{
		MarketID:        1,
		Title:           "Cake",
		Stock:           5,
		DiscountedPrice: money("8"),
		NormalPrice:     money("12"),
		ExpirationDate:  time.Date(2026, 6, 16, 0, 0, 0, 0, time.UTC),
		City:            "Istanbul",
	}
	require.NoError(t, repo.CreateProduct(ctx, p))

	rec := ts.do(http.MethodGet, "/api/v1/products", "", s, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(http.MethodPost, "/api/v1/cart/items", fmt.Sprintf(`{"product_id":%d}`, p.ID), s, s.CSRFToken)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var added AddItemResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&added))

	rec = ts.do(http.MethodPut, fmt.Sprintf("/api/v1/cart/items/%d", added.Line.ID),
		fmt.Sprintf(`{"product_id":%d,"quantity":6}`, p.ID), s, s.CSRFToken)
	assert.Equal(t, http.StatusConflict, rec.Code, "quantity above stock")

	rec = ts.do(http.MethodPut, fmt.Sprintf("/api/v1/cart/items/%d", added.Line.ID),
		fmt.Sprintf(`{"product_id":%d,"quantity":5}`, p.ID), s, s.CSRFToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(http.MethodGet, "/api/v1/cart", "", s, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var cart CartResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&cart))
	assert.Equal(t, "40.00", cart.CartTotal)
	assert.Equal(t, "20.00", cart.CartSavings)

	rec = ts.do(http.MethodPost, "/api/v1/cart/purchase", "", s, s.CSRFToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	_, err := repo.GetProduct(ctx, p.ID)
	assert.ErrorIs(t, err, repository.ErrProductNotFound)

	rec = ts.do(http.MethodPost, "/api/v1/cart/purchase", "", s, s.CSRFToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "empty cart")
}

func TestStack_GeoMismatch(t *testing.T) {
	ts, repo := newStackServer(t)
	s := ts.login(t, session.RoleConsumer)

	p := &domain.Product{
		MarketID:        1,
		Title:           "Olives",
		Stock:           2,
		DiscountedPrice: money("3"),
		NormalPrice:     money("4"),
		ExpirationDate:  time.Date(2026, 6, 20, 0, 0, 0, 0, time.UTC),
		City:            "Izmir",
	}
	require.NoError(t, repo.CreateProduct(context.Background(), p))

	rec := ts.do(http.MethodPost, "/api/v1/cart/items", fmt.Sprintf(`{"product_id":%d}`, p.ID), s, s.CSRFToken)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, p.ID, resp.ProductID)
}
