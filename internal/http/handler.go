package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/go_cart/market/internal/domain"
	"github.com/fjod/go_cart/market/internal/pricing"
	"github.com/fjod/go_cart/market/internal/service"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const defaultMaxBodySize = 1 << 20

// CartOperations is implemented by *service.CartService.
type CartOperations interface {
	Add(ctx context.Context, consumer domain.Consumer, productID int64) (*service.AddResult, error)
	UpdateQuantity(ctx context.Context, consumer domain.Consumer, lineID, productID int64, quantity int) (*service.UpdateResult, error)
	Remove(ctx context.Context, consumer domain.Consumer, lineID, productID int64) (*service.RemoveResult, error)
	GetCart(ctx context.Context, consumer domain.Consumer) (*service.CartView, error)
	Purchase(ctx context.Context, consumer domain.Consumer) (*domain.PurchaseResult, error)
}

type ProductLister interface {
	ListProducts(ctx context.Context, consumer domain.Consumer, q service.ProductQuery) ([]domain.Product, error)
}

type Handler struct {
	cart     CartOperations
	products ProductLister
	timeout  time.Duration
	maxBody  int64
	log      *zap.Logger
}

func NewHandler(cart CartOperations, products ProductLister, timeout time.Duration, maxBody int64, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	if maxBody <= 0 {
		maxBody = defaultMaxBodySize
	}
	return &Handler{
		cart:     cart,
		products: products,
		timeout:  timeout,
		maxBody:  maxBody,
		log:      log,
	}
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) CSRFToken(w http.ResponseWriter, r *http.Request) {
	s := sessionFromContext(r.Context())
	if s == nil {
		h.handleServiceError(w, r, service.ErrAuthRequired)
		return
	}
	respondJSON(w, http.StatusOK, CSRFResponse{Success: true, CSRFToken: s.CSRFToken})
}

func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	consumer, ok := h.consumer(w, r)
	if !ok {
		return
	}

	query := service.ProductQuery{Keyword: r.URL.Query().Get("q")}
	if query.Limit, ok = queryInt(w, r, "limit"); !ok {
		return
	}
	if query.Offset, ok = queryInt(w, r, "offset"); !ok {
		return
	}

	products, err := h.products.ListProducts(ctx, consumer, query)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	resp := ProductsResponse{Success: true, Products: make([]ProductDTO, 0, len(products))}
	for _, p := range products {
		resp.Products = append(resp.Products, toProductDTO(p))
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	consumer, ok := h.consumer(w, r)
	if !ok {
		return
	}

	view, err := h.cart.GetCart(ctx, consumer)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toCartResponse(view))
}

func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	consumer, ok := h.consumer(w, r)
	if !ok {
		return
	}

	var req AddItemRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.ProductID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_input", "product_id must be positive")
		return
	}

	res, err := h.cart.Add(ctx, consumer, req.ProductID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, AddItemResponse{
		Success:  true,
		Line:     toLineDTO(res.Line),
		Subtotal: pricing.Format(res.Subtotal),
	})
}

func (h *Handler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	consumer, ok := h.consumer(w, r)
	if !ok {
		return
	}

	lineID, err := strconv.ParseInt(chi.URLParam(r, "line_id"), 10, 64)
	if err != nil || lineID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_input", "invalid line_id")
		return
	}

	var req UpdateQuantityRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.cart.UpdateQuantity(ctx, consumer, lineID, req.ProductID, req.Quantity)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, UpdateQuantityResponse{
		Success:     true,
		Subtotal:    pricing.Format(res.Subtotal),
		CartTotal:   pricing.Format(res.Total),
		CartSavings: pricing.Format(res.Savings),
	})
}

// RemoveItem deletes a line addressed by its id, or by the product_id query
// parameter when the id is 0.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	consumer, ok := h.consumer(w, r)
	if !ok {
		return
	}

	lineID, err := strconv.ParseInt(chi.URLParam(r, "line_id"), 10, 64)
	if err != nil || lineID < 0 {
		respondError(w, http.StatusBadRequest, "invalid_input", "invalid line_id")
		return
	}

	var productID int64
	if raw := r.URL.Query().Get("product_id"); raw != "" {
		productID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || productID <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_input", "invalid product_id")
			return
		}
	}

	res, err := h.cart.Remove(ctx, consumer, lineID, productID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, RemoveItemResponse{
		Success:     true,
		CartTotal:   pricing.Format(res.Total),
		CartSavings: pricing.Format(res.Savings),
	})
}

func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	consumer, ok := h.consumer(w, r)
	if !ok {
		return
	}

	res, err := h.cart.Purchase(ctx, consumer)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toPurchaseResponse(res))
}

func (h *Handler) withTimeout(r *http.Request) (context.Context, context.CancelFunc) {
	if h.timeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), h.timeout)
}

func (h *Handler) consumer(w http.ResponseWriter, r *http.Request) (domain.Consumer, bool) {
	s := sessionFromContext(r.Context())
	if s == nil {
		h.handleServiceError(w, r, service.ErrAuthRequired)
		return domain.Consumer{}, false
	}
	return s.Consumer(), true
}

// queryInt reads an optional non-negative integer query parameter.
func queryInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		respondError(w, http.StatusBadRequest, "invalid_input", "invalid "+name)
		return 0, false
	}
	return v, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_input", "invalid request body")
		return false
	}
	return true
}
