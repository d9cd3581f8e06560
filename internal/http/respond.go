package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fjod/go_cart/market/internal/service"
	"go.uber.org/zap"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Success: false,
		Error:   message,
		Code:    code,
	})
}

// errorStatus maps the service error taxonomy onto HTTP. Order matters:
// ErrEmptyCart and friends wrap ErrInvalidInput.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrAuthRequired):
		return http.StatusUnauthorized, "auth_required"
	case errors.Is(err, service.ErrInvalidToken):
		return http.StatusForbidden, "invalid_token"
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, service.ErrStockExceeded):
		return http.StatusConflict, "stock_exceeded"
	case errors.Is(err, service.ErrGeoMismatch):
		return http.StatusUnprocessableEntity, "geo_mismatch"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// handleServiceError writes err as a {success:false} body. Internal
// failures are logged in full and reported generically.
func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)
	if status == http.StatusInternalServerError || status == http.StatusGatewayTimeout {
		h.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		respondError(w, status, code, "internal server error")
		return
	}

	body := ErrorResponse{Success: false, Error: err.Error(), Code: code}
	var pe *service.ProductError
	if errors.As(err, &pe) {
		body.ProductID = pe.ProductID
	}
	respondJSON(w, status, body)
}
