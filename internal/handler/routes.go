package handler

import (
	"net/http"

	"licenseportal/internal/config"
	"licenseportal/internal/middleware"

	"go.uber.org/zap"
)

// Deps holds dependencies for HTTP handlers.
type Deps struct {
	Config     *config.Config
	Logger     *zap.Logger
	Verifier   middleware.IdentityVerifier
	Reconciler Reconciler
	Upgrader   Upgrader
}

// RegisterRoutes registers all HTTP routes with the provided mux.
func RegisterRoutes(mux *http.ServeMux, deps *Deps) {
	// Health and status endpoints (no auth required)
	mux.HandleFunc("GET /health", HealthCheck)
	mux.HandleFunc("GET /api/v1/status", statusHandler(deps.Config))

	// Access endpoints require a verified Entra ID bearer token
	requireIdentity := middleware.RequireIdentity(deps.Verifier, deps.Logger)
	accessHandler := NewAccessHandler(deps.Reconciler, deps.Upgrader, deps.Config.DevOps.Orgs, deps.Logger)

	mux.Handle("GET /api/v1/access", requireIdentity(http.HandlerFunc(accessHandler.List)))
	mux.Handle("POST /api/v1/access/upgrade", requireIdentity(http.HandlerFunc(accessHandler.Upgrade)))
}
