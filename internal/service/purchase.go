package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/fjod/go_cart/market/internal/domain"
	"github.com/fjod/go_cart/market/internal/pricing"
	"github.com/fjod/go_cart/market/internal/repository"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const EventPurchaseCompleted = "purchase.completed"

type purchase struct {
	consumer domain.Consumer
	status   domain.PurchaseStatus
	lines    []domain.CartLine
	products map[int64]domain.Product
}

func (p *purchase) transition(to domain.PurchaseStatus) error {
	if !domain.CanTransitionTo(p.status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, p.status, to)
	}
	p.status = to
	return nil
}

// Purchase buys every line of the consumer's cart in one transaction.
// Either all stock decrements commit or none do. On a rejection naming a
// product the returned result has status REJECTED and the error is a
// *ProductError.
func (s *CartService) Purchase(ctx context.Context, consumer domain.Consumer) (result *domain.PurchaseResult, err error) {
	ctx, span := s.startSpan(ctx, "CartService.Purchase", consumer)
	defer func() { endSpan(span, err) }()

	if consumer.ID <= 0 {
		return nil, ErrAuthRequired
	}

	unlock := s.locks.Lock(consumer.ID)
	defer unlock()

	p := &purchase{consumer: consumer, status: domain.PurchaseStatusValidating}

	var committed *domain.PurchaseResult
	err = s.store.WithTx(ctx, func(tx repository.Tx) error {
		if errValidate := s.validate(ctx, tx, p); errValidate != nil {
			return errValidate
		}
		if errTransition := p.transition(domain.PurchaseStatusApplying); errTransition != nil {
			return errTransition
		}

		res, errApply := s.apply(ctx, tx, p)
		if errApply != nil {
			return errApply
		}
		committed = res
		return nil
	})

	var pe *ProductError
	switch {
	case err == nil:
		if errTransition := p.transition(domain.PurchaseStatusCommitted); errTransition != nil {
			return nil, errTransition
		}
		committed.Status = p.status
	case errors.As(err, &pe):
		if errTransition := p.transition(domain.PurchaseStatusRejected); errTransition != nil {
			return nil, errors.Join(err, errTransition)
		}
		s.logFor(ctx).Info("purchase rejected",
			zap.Int64("consumer_id", consumer.ID),
			zap.Int64("product_id", pe.ProductID),
			zap.Error(err))
		return &domain.PurchaseResult{
			Status:            p.status,
			RejectedProductID: pe.ProductID,
			Reason:            pe.Err.Error(),
		}, err
	default:
		return nil, err
	}

	s.invalidateCache(consumer.ID)
	span.SetAttributes(attribute.Int("purchase.items", len(committed.Items)))
	s.logFor(ctx).Info("purchase committed",
		zap.Int64("consumer_id", consumer.ID),
		zap.Int("items", len(committed.Items)),
		zap.String("total", pricing.Format(committed.Total)))
	return committed, nil
}

// validate checks every line against current stock without writing.
func (s *CartService) validate(ctx context.Context, tx repository.Tx, p *purchase) error {
	lines, err := tx.GetLinesForUpdate(ctx, p.consumer.ID)
	if err != nil {
		return fmt.Errorf("load cart lines: %w", err)
	}
	if len(lines) == 0 {
		return ErrEmptyCart
	}

	ids := make([]int64, len(lines))
	for i, l := range lines {
		ids[i] = l.ProductID
	}
	products, err := tx.GetProductsByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("load products: %w", err)
	}
	p.products = make(map[int64]domain.Product, len(products))
	for _, product := range products {
		p.products[product.ID] = product
	}

	for _, l := range lines {
		product, ok := p.products[l.ProductID]
		if !ok {
			return productError(l.ProductID, ErrNotFound)
		}
		if l.Quantity > product.Stock {
			return productError(l.ProductID, ErrStockExceeded)
		}
	}

	p.lines = lines
	return nil
}

// apply decrements stock line by line. Any failed guard aborts the whole
// transaction.
func (s *CartService) apply(ctx context.Context, tx repository.Tx, p *purchase) (*domain.PurchaseResult, error) {
	items := make([]domain.PurchasedItem, 0, len(p.lines))
	priced := make([]pricing.Line, 0, len(p.lines))

	for _, l := range p.lines {
		product := p.products[l.ProductID]

		remaining, err := tx.DecrementStock(ctx, l.ProductID, l.Quantity)
		if err != nil {
			return nil, translate(err, l.ProductID)
		}

		if remaining == 0 {
			err = tx.DeleteProduct(ctx, l.ProductID)
		} else {
			err = tx.RemoveLineByProduct(ctx, p.consumer.ID, l.ProductID)
		}
		if err != nil {
			return nil, fmt.Errorf("settle product %d: %w", l.ProductID, err)
		}

		items = append(items, domain.PurchasedItem{
			ProductID: l.ProductID,
			Title:     product.Title,
			Quantity:  l.Quantity,
			UnitPrice: product.DiscountedPrice,
		})
		priced = append(priced, pricing.LineFor(l.Quantity, product))
	}

	totals := pricing.Compute(priced)
	payload, err := json.Marshal(domain.PurchaseCompleted{
		ConsumerID:  p.consumer.ID,
		Items:       items,
		Total:       totals.Total,
		Savings:     totals.Savings,
		CompletedAt: s.now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal purchase event: %w", err)
	}

	if err := tx.AddOutboxEvent(ctx, &repository.OutboxEvent{
		AggregateID: strconv.FormatInt(p.consumer.ID, 10),
		EventType:   EventPurchaseCompleted,
		Payload:     payload,
	}); err != nil {
		return nil, err
	}

	return &domain.PurchaseResult{
		Items: items,
		Total: totals.Total,
	}, nil
}
