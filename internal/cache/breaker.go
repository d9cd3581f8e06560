package cache

import (
	"context"
	"errors"

	"github.com/fjod/go_cart/market/internal/circuitbreaker"
	"github.com/fjod/go_cart/market/internal/domain"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// BreakerCache stops calling a failing cache until it recovers. While the
// breaker is open Get reports a miss and writes are dropped.
type BreakerCache struct {
	next   CartCache
	reads  *gobreaker.CircuitBreaker[[]domain.CartLine]
	writes *gobreaker.CircuitBreaker[struct{}]
}

func NewBreakerCache(next CartCache, log *zap.Logger) *BreakerCache {
	readCfg := circuitbreaker.DefaultConfig("cart-cache-read")
	readCfg.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, ErrCacheMiss)
	}

	return &BreakerCache{
		next:   next,
		reads:  circuitbreaker.New[[]domain.CartLine](readCfg, log),
		writes: circuitbreaker.New[struct{}](circuitbreaker.DefaultConfig("cart-cache-write"), log),
	}
}

func (b *BreakerCache) Get(ctx context.Context, consumerID int64) ([]domain.CartLine, error) {
	lines, err := b.reads.Execute(func() ([]domain.CartLine, error) {
		return b.next.Get(ctx, consumerID)
	})
	if circuitbreaker.IsOpen(err) {
		return nil, ErrCacheMiss
	}
	return lines, err
}

func (b *BreakerCache) Set(ctx context.Context, consumerID int64, lines []domain.CartLine) error {
	_, err := b.writes.Execute(func() (struct{}, error) {
		return struct{}{}, b.next.Set(ctx, consumerID, lines)
	})
	if circuitbreaker.IsOpen(err) {
		return nil
	}
	return err
}

// Delete bypasses the breaker so invalidations are never dropped.
func (b *BreakerCache) Delete(ctx context.Context, consumerID int64) error {
	return b.next.Delete(ctx, consumerID)
}
