package http

import (
	"net/http"

	"github.com/fjod/go_cart/market/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// NewRouter mounts the public API under /api/v1.
func NewRouter(h *Handler, sessions session.Store, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(SessionMiddleware(sessions, log))
		r.Use(CSRFMiddleware)

		r.Get("/session/csrf", h.CSRFToken)
		r.Get("/products", h.ListProducts)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.GetCart)
			r.Post("/items", h.AddItem)
			r.Put("/items/{line_id}", h.UpdateQuantity)
			r.Delete("/items/{line_id}", h.RemoveItem)
			r.Post("/purchase", h.Purchase)
		})
	})

	return r
}
