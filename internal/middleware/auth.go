// Package middleware provides HTTP middleware for the license portal.
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"licenseportal/internal/identity"

	"go.uber.org/zap"
)

// Sentinel errors for token extraction failures.
// These can be used for debugging/logging but should NOT be exposed in responses.
var (
	ErrMissingAuthHeader = errors.New("missing authorization header")
	ErrInvalidAuthScheme = errors.New("invalid authorization scheme: expected Bearer")
	ErrEmptyToken        = errors.New("empty bearer token")
)

// IdentityVerifier turns a bearer token into a verified identity.
type IdentityVerifier interface {
	VerifyIdentity(ctx context.Context, token string) (identity.Identity, error)
}

// ExtractBearerToken extracts the token from an "Authorization: Bearer <token>" header.
// The scheme is matched case-insensitively. Does not log anything.
func ExtractBearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", ErrMissingAuthHeader
	}

	scheme, token, ok := strings.Cut(authHeader, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrInvalidAuthScheme
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrEmptyToken
	}

	return token, nil
}

// RequireIdentity returns middleware that verifies the bearer token and
// attaches the resulting identity to the request context.
//
// Error responses:
//   - 401 Unauthorized: missing or malformed Authorization header, or a
//     token that fails verification
func RequireIdentity(verifier IdentityVerifier, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := ExtractBearerToken(r)
			if err != nil {
				WriteJSONError(w, http.StatusUnauthorized, "unauthorized", "authentication_error")
				return
			}

			id, err := verifier.VerifyIdentity(r.Context(), token)
			if err != nil {
				logger.Info("identity verification failed",
					zap.String("request_id", RequestIDFromContext(r.Context())),
					zap.Error(err),
				)
				WriteJSONError(w, http.StatusUnauthorized, "invalid token", "authentication_error")
				return
			}

			next.ServeHTTP(w, r.WithContext(identity.WithIdentity(r.Context(), id)))
		})
	}
}

// APIError is the JSON error envelope.
type APIError struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error message and type.
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// WriteJSONError writes {"error": {"message": ..., "type": ...}} with the given status.
func WriteJSONError(w http.ResponseWriter, status int, message, errorType string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(APIError{
		Error: ErrorDetail{
			Message: message,
			Type:    errorType,
		},
	})
}
