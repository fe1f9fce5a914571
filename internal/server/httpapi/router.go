// Package httpapi serves the principal-facing HTTP endpoints.
package httpapi

import (
	"context"
	"net/http"

	"github.com/dmitrijs2005/qrpass/internal/logging"
	"github.com/dmitrijs2005/qrpass/internal/qr"
	"github.com/dmitrijs2005/qrpass/internal/server/auth"
	"github.com/dmitrijs2005/qrpass/internal/server/limiter"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// TokenIssuer returns the current payload for a principal.
type TokenIssuer interface {
	CurrentToken(ctx context.Context, principalID string) (string, qr.Window, error)
}

// NewRouter mounts:
//
//	GET /healthz       liveness plus the window size
//	GET /api/v1/token  current payload of the bearer's principal
//
// Every request is logged; /api requests are limited per client IP when
// ipLimiter is not nil.
func NewRouter(tokens TokenIssuer, secretKey []byte, ipLimiter limiter.Limiter, log logging.Logger) http.Handler {
	h := &TokenHandler{tokens: tokens, log: log}

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(WithRequestLogging(log))
	r.Use(chiMiddleware.Recoverer)

	r.Get("/healthz", Health)

	r.Route("/api/v1", func(r chi.Router) {
		if ipLimiter != nil {
			r.Use(RateLimit(ipLimiter, log))
		}
		r.With(BearerAuth(secretKey, auth.PermQRGenerate)).Get("/token", h.Token)
	})

	return r
}
