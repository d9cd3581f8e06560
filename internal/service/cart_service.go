package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/fjod/go_cart/market/internal/cache"
	"github.com/fjod/go_cart/market/internal/domain"
	"github.com/fjod/go_cart/market/internal/logger"
	"github.com/fjod/go_cart/market/internal/pricing"
	"github.com/fjod/go_cart/market/internal/repository"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	tracerName      = "github.com/fjod/go_cart/market/internal/service"
	cartLoadTimeout = 5 * time.Second
)

type CartItem struct {
	Line     domain.CartLine
	Product  domain.Product
	Subtotal decimal.Decimal
	Saving   decimal.Decimal
}

type CartView struct {
	ConsumerID int64
	Items      []CartItem
	Total      decimal.Decimal
	Savings    decimal.Decimal
}

type AddResult struct {
	Line     domain.CartLine
	Product  domain.Product
	Subtotal decimal.Decimal
}

type UpdateResult struct {
	Line     domain.CartLine
	Subtotal decimal.Decimal
	Total    decimal.Decimal
	Savings  decimal.Decimal
}

type RemoveResult struct {
	Total   decimal.Decimal
	Savings decimal.Decimal
}

type CartService struct {
	store  repository.Store
	cache  cache.CartCache
	sfg    singleflight.Group // Prevents cache stampede
	locks  *consumerLocks
	log    *zap.Logger
	tracer trace.Tracer
	now    func() time.Time
}

type Option func(*CartService)

// WithClock overrides the clock used for expiry checks and timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *CartService) { s.now = now }
}

func NewCartService(store repository.Store, c cache.CartCache, log *zap.Logger, opts ...Option) *CartService {
	if log == nil {
		log = zap.NewNop()
	}
	s := &CartService{
		store:  store,
		cache:  c,
		locks:  newConsumerLocks(),
		log:    log,
		tracer: otel.Tracer(tracerName),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add puts one unit of productID into the consumer's cart.
func (s *CartService) Add(ctx context.Context, consumer domain.Consumer, productID int64) (result *AddResult, err error) {
	ctx, span := s.startSpan(ctx, "CartService.Add", consumer, attribute.Int64("product.id", productID))
	defer func() { endSpan(span, err) }()

	if consumer.ID <= 0 {
		return nil, ErrAuthRequired
	}
	if productID <= 0 {
		return nil, fmt.Errorf("%w: product id must be positive", ErrInvalidInput)
	}

	unlock := s.locks.Lock(consumer.ID)
	defer unlock()

	now := s.now().UTC()
	err = s.store.WithTx(ctx, func(tx repository.Tx) error {
		p, errGet := tx.GetProduct(ctx, productID)
		if errGet != nil {
			return translate(errGet, productID)
		}
		if p.IsExpired(now) {
			return productError(productID, fmt.Errorf("%w: product expired", ErrNotFound))
		}
		if consumer.City != p.City {
			return productError(productID, ErrGeoMismatch)
		}

		line, errUpsert := tx.UpsertLine(ctx, domain.CartLine{
			ConsumerID: consumer.ID,
			ProductID:  productID,
			Quantity:   1,
			AddedAt:    now,
		}, p.Stock)
		if errUpsert != nil {
			return translate(errUpsert, productID)
		}

		result = &AddResult{
			Line:     *line,
			Product:  *p,
			Subtotal: pricing.LineSubtotal(pricing.LineFor(line.Quantity, *p)),
		}
		return nil
	})
	if err != nil {
		s.logFor(ctx).Info("add to cart rejected",
			zap.Int64("consumer_id", consumer.ID),
			zap.Int64("product_id", productID),
			zap.Error(err))
		return nil, err
	}

	s.invalidateCache(consumer.ID)
	s.logFor(ctx).Info("item added to cart",
		zap.Int64("consumer_id", consumer.ID),
		zap.Int64("product_id", productID),
		zap.Int("quantity", result.Line.Quantity))
	return result, nil
}

// UpdateQuantity sets the quantity of one of the consumer's lines. A non-zero
// productID must match the line's product.
func (s *CartService) UpdateQuantity(ctx context.Context, consumer domain.Consumer, lineID, productID int64, quantity int) (result *UpdateResult, err error) {
	ctx, span := s.startSpan(ctx, "CartService.UpdateQuantity", consumer,
		attribute.Int64("line.id", lineID),
		attribute.Int("quantity", quantity))
	defer func() { endSpan(span, err) }()

	if consumer.ID <= 0 {
		return nil, ErrAuthRequired
	}
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	if lineID <= 0 {
		return nil, fmt.Errorf("%w: line id must be positive", ErrInvalidInput)
	}

	unlock := s.locks.Lock(consumer.ID)
	defer unlock()

	now := s.now().UTC()
	err = s.store.WithTx(ctx, func(tx repository.Tx) error {
		line, errFind := tx.FindLine(ctx, consumer.ID, domain.LineKey{LineID: lineID})
		if errFind != nil {
			return translate(errFind, productID)
		}
		if productID != 0 && productID != line.ProductID {
			return ErrProductMismatch
		}

		p, errGet := tx.GetProduct(ctx, line.ProductID)
		if errGet != nil {
			return translate(errGet, line.ProductID)
		}
		if quantity > p.Stock {
			return productError(p.ID, ErrStockExceeded)
		}

		if errSet := tx.SetQuantity(ctx, consumer.ID, line.ID, quantity, now); errSet != nil {
			return translate(errSet, line.ProductID)
		}
		line.Quantity = quantity
		line.AddedAt = now

		totals, errTotals := cartTotals(ctx, tx, consumer.ID)
		if errTotals != nil {
			return errTotals
		}

		result = &UpdateResult{
			Line:     *line,
			Subtotal: pricing.LineSubtotal(pricing.LineFor(quantity, *p)),
			Total:    totals.Total,
			Savings:  totals.Savings,
		}
		return nil
	})
	if err != nil {
		s.logFor(ctx).Info("quantity update rejected",
			zap.Int64("consumer_id", consumer.ID),
			zap.Int64("line_id", lineID),
			zap.Error(err))
		return nil, err
	}

	s.invalidateCache(consumer.ID)
	return result, nil
}

// Remove deletes the line addressed by lineID, falling back to productID.
func (s *CartService) Remove(ctx context.Context, consumer domain.Consumer, lineID, productID int64) (result *RemoveResult, err error) {
	ctx, span := s.startSpan(ctx, "CartService.Remove", consumer,
		attribute.Int64("line.id", lineID),
		attribute.Int64("product.id", productID))
	defer func() { endSpan(span, err) }()

	if consumer.ID <= 0 {
		return nil, ErrAuthRequired
	}
	key := domain.LineKey{LineID: lineID, ProductID: productID}
	if key.IsZero() {
		return nil, fmt.Errorf("%w: line id or product id required", ErrInvalidInput)
	}

	unlock := s.locks.Lock(consumer.ID)
	defer unlock()

	err = s.store.WithTx(ctx, func(tx repository.Tx) error {
		line, errFind := tx.FindLine(ctx, consumer.ID, key)
		if errFind != nil {
			return translate(errFind, productID)
		}
		if errRemove := tx.RemoveLine(ctx, consumer.ID, line.ID); errRemove != nil {
			return translate(errRemove, line.ProductID)
		}

		totals, errTotals := cartTotals(ctx, tx, consumer.ID)
		if errTotals != nil {
			return errTotals
		}
		result = &RemoveResult{Total: totals.Total, Savings: totals.Savings}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateCache(consumer.ID)
	s.logFor(ctx).Info("item removed from cart",
		zap.Int64("consumer_id", consumer.ID),
		zap.Int64("line_id", lineID),
		zap.Int64("product_id", productID))
	return result, nil
}

// GetCart returns the consumer's cart, newest line first. Lines come from
// the cache when possible; products are always read from the catalog.
func (s *CartService) GetCart(ctx context.Context, consumer domain.Consumer) (view *CartView, err error) {
	ctx, span := s.startSpan(ctx, "CartService.GetCart", consumer)
	defer func() { endSpan(span, err) }()

	if consumer.ID <= 0 {
		return nil, ErrAuthRequired
	}

	// Use singleflight to prevent multiple concurrent cache misses for same key
	v, err, _ := s.sfg.Do(strconv.FormatInt(consumer.ID, 10), func() (interface{}, error) {
		// shared by every joined caller, so it must not die with the first one
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cartLoadTimeout)
		defer cancel()
		return s.loadLines(loadCtx, consumer.ID)
	})
	if err != nil {
		return nil, err
	}

	items, totals, err := priceLines(ctx, s.store, v.([]domain.CartLine))
	if err != nil {
		return nil, err
	}
	return &CartView{
		ConsumerID: consumer.ID,
		Items:      items,
		Total:      totals.Total,
		Savings:    totals.Savings,
	}, nil
}

// loadLines serves the consumer's lines from the cache, filling it on a miss.
// The fill holds the consumer lock so a mutation cannot commit and
// invalidate between the store read and the cache write.
func (s *CartService) loadLines(ctx context.Context, consumerID int64) ([]domain.CartLine, error) {
	lines, errCache := s.cache.Get(ctx, consumerID)
	if errCache == nil {
		return lines, nil
	}
	if !errors.Is(errCache, cache.ErrCacheMiss) {
		s.logFor(ctx).Warn("cache get error", zap.Int64("consumer_id", consumerID), zap.Error(errCache))
	}

	unlock := s.locks.Lock(consumerID)
	defer unlock()

	lines, err := s.store.GetLines(ctx, consumerID)
	if err != nil {
		return nil, err
	}

	if errSet := s.cache.Set(ctx, consumerID, lines); errSet != nil {
		s.logFor(ctx).Warn("cache set error", zap.Int64("consumer_id", consumerID), zap.Error(errSet))
	}
	return lines, nil
}

// priceLines joins lines with their current products, dropping lines whose
// product is gone, and prices the result.
func priceLines(ctx context.Context, catalog repository.CatalogReader, lines []domain.CartLine) ([]CartItem, pricing.Totals, error) {
	if len(lines) == 0 {
		return nil, pricing.Compute(nil), nil
	}

	ids := make([]int64, len(lines))
	for i, l := range lines {
		ids[i] = l.ProductID
	}
	products, err := catalog.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, pricing.Totals{}, err
	}
	byID := make(map[int64]domain.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	items := make([]CartItem, 0, len(lines))
	priced := make([]pricing.Line, 0, len(lines))
	for _, l := range lines {
		p, ok := byID[l.ProductID]
		if !ok {
			continue
		}
		items = append(items, CartItem{Line: l, Product: p})
		priced = append(priced, pricing.LineFor(l.Quantity, p))
	}

	totals := pricing.Compute(priced)
	for i := range items {
		items[i].Subtotal = totals.Lines[i].Subtotal
		items[i].Saving = totals.Lines[i].Saving
	}
	return items, totals, nil
}

func cartTotals(ctx context.Context, tx repository.Tx, consumerID int64) (pricing.Totals, error) {
	lines, err := tx.GetLines(ctx, consumerID)
	if err != nil {
		return pricing.Totals{}, err
	}
	_, totals, err := priceLines(ctx, tx, lines)
	return totals, err
}

func (s *CartService) invalidateCache(consumerID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, consumerID); err != nil {
		s.log.Warn("cache invalidate error", zap.Int64("consumer_id", consumerID), zap.Error(err))
	}
}

func (s *CartService) logFor(ctx context.Context) *zap.Logger {
	return logger.WithContext(ctx, s.log)
}

func (s *CartService) startSpan(ctx context.Context, name string, consumer domain.Consumer, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.Int64("consumer.id", consumer.ID))
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
