package handler

import (
	"net/http"

	"licenseportal/internal/config"
)

// Version is the reported service version.
const Version = "0.1.0"

// statusHandler reports service configuration health for operators.
// It says whether a credential is present but never exposes it.
func statusHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "operational"
		if !cfg.DevOps.Configured() || len(cfg.DevOps.Orgs) == 0 {
			status = "degraded"
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"service":     "license-portal",
			"version":     Version,
			"status":      status,
			"environment": cfg.Environment,
			"azure_devops": map[string]any{
				"credential_configured": cfg.DevOps.Configured(),
				"organizations":         len(cfg.DevOps.Orgs),
			},
		})
	}
}
