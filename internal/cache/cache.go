package cache

import (
	"context"
	"errors"

	"github.com/fjod/go_cart/market/internal/domain"
)

// CartCache keeps a consumer's cart lines. Products are never cached.
type CartCache interface {
	Get(ctx context.Context, consumerID int64) ([]domain.CartLine, error)
	Set(ctx context.Context, consumerID int64, lines []domain.CartLine) error
	Delete(ctx context.Context, consumerID int64) error
}

var ErrCacheMiss = errors.New("cache miss")
