// Package httptransport assembles the HTTP surface: middleware stack, public
// probes, and the authenticated consent API.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	accesshandler "sanctum/internal/accesslog/handler"
	consenthandler "sanctum/internal/consent/handler"
	"sanctum/internal/platform/health"
	"sanctum/internal/platform/middleware"
	policyhandler "sanctum/internal/policy/handler"
)

// Deps carries everything the router needs. All handlers are required; the
// health handler is optional for tests that only exercise domain routes.
type Deps struct {
	Consent   *consenthandler.Handler
	Policy    *policyhandler.Handler
	AccessLog *accesshandler.Handler
	Health    *health.Handler
	Auth      middleware.TokenValidator
	Logger    *slog.Logger
}

// NewRouter wires all endpoints with the middleware stack. Conversation
// routes sit behind bearer auth; probes and metrics stay public.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(middleware.ContentTypeJSON)

	if deps.Health != nil {
		deps.Health.Register(r)
	}
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(deps.Auth, deps.Logger))

		deps.Consent.Register(r)
		deps.Policy.Register(r)
		deps.AccessLog.Register(r)
	})

	return r
}
