package service

import (
	"context"
	"fmt"
	"time"

	"github.com/fjod/go_cart/market/internal/domain"
	"github.com/fjod/go_cart/market/internal/repository"
)

type CatalogService struct {
	catalog repository.CatalogReader
	now     func() time.Time
}

func NewCatalogService(catalog repository.CatalogReader, now func() time.Time) *CatalogService {
	if now == nil {
		now = time.Now
	}
	return &CatalogService{catalog: catalog, now: now}
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// ProductQuery is a keyword search over the consumer's city with paging.
type ProductQuery struct {
	Keyword string
	Limit   int
	Offset  int
}

// ListProducts returns the unexpired products of the consumer's city whose
// title contains the keyword, soonest expiry first.
func (c *CatalogService) ListProducts(ctx context.Context, consumer domain.Consumer, q ProductQuery) ([]domain.Product, error) {
	if consumer.ID <= 0 {
		return nil, ErrAuthRequired
	}
	if q.Limit < 0 || q.Offset < 0 {
		return nil, fmt.Errorf("%w: limit and offset must not be negative", ErrInvalidInput)
	}
	if q.Limit == 0 {
		q.Limit = DefaultPageSize
	}
	q.Limit = min(q.Limit, MaxPageSize)

	products, err := c.catalog.ListProducts(ctx, repository.ProductFilter{
		City:        consumer.City,
		Keyword:     q.Keyword,
		AvailableOn: c.now().UTC(),
		Limit:       q.Limit,
		Offset:      q.Offset,
	})
	if err != nil {
		return nil, err
	}
	if products == nil {
		products = []domain.Product{}
	}
	return products, nil
}
