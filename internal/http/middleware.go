package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/fjod/go_cart/market/internal/logger"
	"github.com/fjod/go_cart/market/internal/service"
	"github.com/fjod/go_cart/market/internal/session"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

const CSRFHeader = "X-CSRF-Token"

type ctxKey int

const sessionKey ctxKey = iota

func withSession(ctx context.Context, s *session.Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

func sessionFromContext(ctx context.Context) *session.Session {
	s, _ := ctx.Value(sessionKey).(*session.Session)
	return s
}

// SessionMiddleware loads the consumer session named by the session cookie.
// Anything but a live consumer session is rejected with 401.
func SessionMiddleware(store session.Store, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(session.CookieName)
			if err != nil || cookie.Value == "" {
				respondError(w, http.StatusUnauthorized, "auth_required", service.ErrAuthRequired.Error())
				return
			}

			s, err := store.Get(r.Context(), cookie.Value)
			if err != nil {
				if !errors.Is(err, session.ErrSessionNotFound) {
					log.Error("session lookup failed", zap.Error(err))
				}
				respondError(w, http.StatusUnauthorized, "auth_required", service.ErrAuthRequired.Error())
				return
			}
			if s.Role != session.RoleConsumer || s.ConsumerID <= 0 {
				respondError(w, http.StatusUnauthorized, "auth_required", service.ErrAuthRequired.Error())
				return
			}

			next.ServeHTTP(w, r.WithContext(withSession(r.Context(), s)))
		})
	}
}

// CSRFMiddleware checks the anti-forgery token of mutating requests against
// the session. It must run after SessionMiddleware.
func CSRFMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}

		s := sessionFromContext(r.Context())
		if s == nil {
			respondError(w, http.StatusUnauthorized, "auth_required", service.ErrAuthRequired.Error())
			return
		}

		token := r.Header.Get(CSRFHeader)
		if token == "" {
			token = r.PostFormValue("csrf_token")
		}
		if !s.ValidToken(token) {
			respondError(w, http.StatusForbidden, "invalid_token", service.ErrInvalidToken.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequestLogger logs one line per request through zap.
func RequestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			logger.WithContext(r.Context(), log).Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
