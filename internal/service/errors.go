package service

import (
	"errors"
	"fmt"

	"github.com/fjod/go_cart/market/internal/repository"
)

var (
	ErrAuthRequired = errors.New("authentication required")
	ErrInvalidToken = errors.New("invalid csrf token")
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")

	ErrStockExceeded = errors.New("requested quantity exceeds available stock")
	ErrGeoMismatch   = errors.New("product is not sold in your city")

	ErrInvalidQuantity = fmt.Errorf("%w: quantity must be positive", ErrInvalidInput)
	ErrEmptyCart       = fmt.Errorf("%w: cart is empty, nothing to purchase", ErrInvalidInput)
	ErrProductMismatch = fmt.Errorf("%w: product id mismatch", ErrInvalidInput)

	ErrIllegalTransition = errors.New("illegal transition of purchase status")
)

// ProductError names the product an operation was rejected for.
type ProductError struct {
	ProductID int64
	Err       error
}

func (e *ProductError) Error() string {
	return fmt.Sprintf("product %d: %v", e.ProductID, e.Err)
}

func (e *ProductError) Unwrap() error {
	return e.Err
}

func productError(productID int64, err error) error {
	return &ProductError{ProductID: productID, Err: err}
}

// translate maps repository sentinels onto the service taxonomy.
func translate(err error, productID int64) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrProductNotFound):
		return productError(productID, ErrNotFound)
	case errors.Is(err, repository.ErrLineNotFound):
		return fmt.Errorf("cart line: %w", ErrNotFound)
	case errors.Is(err, repository.ErrInsufficientStock):
		return productError(productID, ErrStockExceeded)
	default:
		return err
	}
}
