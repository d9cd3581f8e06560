package http

import (
	"time"

	"github.com/fjod/go_cart/market/internal/domain"
	"github.com/fjod/go_cart/market/internal/pricing"
	"github.com/fjod/go_cart/market/internal/service"
)

// Money leaves the service as 2-decimal strings.

type AddItemRequest struct {
	ProductID int64 `json:"product_id"`
}

type UpdateQuantityRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type ErrorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Code      string `json:"code"`
	ProductID int64  `json:"product_id,omitempty"`
}

type ProductDTO struct {
	ID              int64  `json:"id"`
	Title           string `json:"title"`
	Stock           int    `json:"stock"`
	NormalPrice     string `json:"normal_price"`
	DiscountedPrice string `json:"discounted_price"`
	ExpirationDate  string `json:"expiration_date"`
	City            string `json:"city"`
	District        string `json:"district"`
}

type LineDTO struct {
	ID        int64     `json:"id"`
	ProductID int64     `json:"product_id"`
	Quantity  int       `json:"quantity"`
	AddedAt   time.Time `json:"added_at"`
}

type CartItemDTO struct {
	Line     LineDTO    `json:"line"`
	Product  ProductDTO `json:"product"`
	Subtotal string     `json:"subtotal"`
	Saving   string     `json:"saving"`
}

type CartResponse struct {
	Success     bool          `json:"success"`
	Items       []CartItemDTO `json:"items"`
	CartTotal   string        `json:"cart_total"`
	CartSavings string        `json:"cart_savings"`
}

type ProductsResponse struct {
	Success  bool         `json:"success"`
	Products []ProductDTO `json:"products"`
}

type AddItemResponse struct {
	Success  bool    `json:"success"`
	Line     LineDTO `json:"line"`
	Subtotal string  `json:"subtotal"`
}

type UpdateQuantityResponse struct {
	Success     bool   `json:"success"`
	Subtotal    string `json:"subtotal"`
	CartTotal   string `json:"cart_total"`
	CartSavings string `json:"cart_savings"`
}

type RemoveItemResponse struct {
	Success     bool   `json:"success"`
	CartTotal   string `json:"cart_total"`
	CartSavings string `json:"cart_savings"`
}

type PurchasedItemDTO struct {
	ProductID int64  `json:"product_id"`
	Title     string `json:"title"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
}

type PurchaseResponse struct {
	Success bool               `json:"success"`
	Status  string             `json:"status"`
	Items   []PurchasedItemDTO `json:"items"`
	Total   string             `json:"total"`
}

type CSRFResponse struct {
	Success   bool   `json:"success"`
	CSRFToken string `json:"csrf_token"`
}

func toProductDTO(p domain.Product) ProductDTO {
	return ProductDTO{
		ID:              p.ID,
		Title:           p.Title,
		Stock:           p.Stock,
		NormalPrice:     pricing.Format(p.NormalPrice),
		DiscountedPrice: pricing.Format(p.DiscountedPrice),
		ExpirationDate:  p.ExpirationDate.Format(time.DateOnly),
		City:            p.City,
		District:        p.District,
	}
}

func toLineDTO(l domain.CartLine) LineDTO {
	return LineDTO{
		ID:        l.ID,
		ProductID: l.ProductID,
		Quantity:  l.Quantity,
		AddedAt:   l.AddedAt,
	}
}

func toCartResponse(view *service.CartView) CartResponse {
	items := make([]CartItemDTO, 0, len(view.Items))
	for _, it := range view.Items {
		items = append(items, CartItemDTO{
			Line:     toLineDTO(it.Line),
			Product:  toProductDTO(it.Product),
			Subtotal: pricing.Format(it.Subtotal),
			Saving:   pricing.Format(it.Saving),
		})
	}
	return CartResponse{
		Success:     true,
		Items:       items,
		CartTotal:   pricing.Format(view.Total),
		CartSavings: pricing.Format(view.Savings),
	}
}

func toPurchaseResponse(res *domain.PurchaseResult) PurchaseResponse {
	items := make([]PurchasedItemDTO, 0, len(res.Items))
	for _, it := range res.Items {
		items = append(items, PurchasedItemDTO{
			ProductID: it.ProductID,
			Title:     it.Title,
			Quantity:  it.Quantity,
			UnitPrice: pricing.Format(it.UnitPrice),
		})
	}
	return PurchaseResponse{
		Success: true,
		Status:  string(res.Status),
		Items:   items,
		Total:   pricing.Format(res.Total),
	}
}
