package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"licenseportal/internal/access"
	"licenseportal/internal/identity"

	"go.uber.org/zap"
)

const maxUpgradeBodySize = 64 * 1024

// Reconciler reports the signed-in identity's access across organizations.
type Reconciler interface {
	Reconcile(ctx context.Context, id identity.Identity, orgs []string) []access.Row
}

// Upgrader moves one entitlement to the Basic tier.
type Upgrader interface {
	Upgrade(ctx context.Context, org, principal, entitlementID string) access.Result
}

// AccessHandler serves the access table and the upgrade action.
type AccessHandler struct {
	reconciler Reconciler
	upgrader   Upgrader
	orgs       []string
	logger     *zap.Logger
}

// NewAccessHandler creates a new access handler for the configured organizations.
func NewAccessHandler(reconciler Reconciler, upgrader Upgrader, orgs []string, logger *zap.Logger) *AccessHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccessHandler{
		reconciler: reconciler,
		upgrader:   upgrader,
		orgs:       orgs,
		logger:     logger,
	}
}

// upgradeRequest is the body of POST /api/v1/access/upgrade.
type upgradeRequest struct {
	Organization  string `json:"organization"`
	PrincipalName string `json:"principal_name"`
	EntitlementID string `json:"entitlement_id"`
}

// flashResponse is a notification describing an upgrade outcome.
type flashResponse struct {
	Success bool        `json:"success"`
	Kind    access.Kind `json:"kind,omitempty"`
	Level   string      `json:"level"`
	Message string      `json:"message"`
}

func toFlash(result access.Result) flashResponse {
	level := "error"
	if result.Success {
		level = "success"
	}
	return flashResponse{
		Success: result.Success,
		Kind:    result.Kind,
		Level:   level,
		Message: result.Detail,
	}
}

// List handles GET /api/v1/access
func (h *AccessHandler) List(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	rows := h.reconciler.Reconcile(r.Context(), id, h.orgs)

	writeJSON(w, http.StatusOK, map[string]any{
		"identity":      id,
		"organizations": rows,
		"count":         len(rows),
	})
}

// Upgrade handles POST /api/v1/access/upgrade
//
// The body may be JSON or a URL-encoded form. principal_name defaults to
// the signed-in identity and may not name anyone else.
func (h *AccessHandler) Upgrade(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	req, err := decodeUpgradeRequest(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(req.PrincipalName) == "" {
		req.PrincipalName = id.PrincipalName
	} else if !id.Matches(strings.TrimSpace(req.PrincipalName)) {
		h.logger.Warn("upgrade requested for another principal",
			zap.String("signed_in", id.PrincipalName),
			zap.String("requested", req.PrincipalName),
		)
		writeError(w, http.StatusForbidden, "upgrades are limited to the signed-in user")
		return
	}

	result := h.upgrader.Upgrade(r.Context(), req.Organization, req.PrincipalName, req.EntitlementID)
	writeJSON(w, statusForResult(result), toFlash(result))
}

// statusForResult maps an upgrade outcome to an HTTP status code.
func statusForResult(result access.Result) int {
	if result.Success {
		return http.StatusOK
	}
	switch result.Kind {
	case access.KindMissingParameters:
		return http.StatusBadRequest
	case access.KindNotConfigured:
		return http.StatusServiceUnavailable
	case access.KindUserNotFound:
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}

func decodeUpgradeRequest(w http.ResponseWriter, r *http.Request) (upgradeRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUpgradeBodySize)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		if err := r.ParseForm(); err != nil {
			return upgradeRequest{}, err
		}
		return upgradeRequest{
			Organization:  r.PostFormValue("organization"),
			PrincipalName: r.PostFormValue("principal_name"),
			EntitlementID: r.PostFormValue("entitlement_id"),
		}, nil
	default:
		var req upgradeRequest
		err := json.NewDecoder(r.Body).Decode(&req)
		if err != nil && !errors.Is(err, io.EOF) {
			return upgradeRequest{}, fmt.Errorf("decode upgrade request: %w", err)
		}
		return req, nil
	}
}
