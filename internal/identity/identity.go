// Package identity carries the verified signed-in user through a request.
package identity

import (
	"context"
	"strings"
)

// Identity is a user verified by the sign-in collaborator.
// PrincipalName is the case-insensitive key used to match entitlements.
type Identity struct {
	DisplayName   string `json:"display_name"`
	PrincipalName string `json:"principal_name"`
}

// Matches reports whether principal equals the identity's principal name,
// ignoring case.
func (i Identity) Matches(principal string) bool {
	return i.PrincipalName != "" && strings.EqualFold(i.PrincipalName, principal)
}

type contextKey string

const identityContextKey contextKey = "identity"

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// FromContext retrieves the identity stored by WithIdentity.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityContextKey).(Identity)
	return id, ok
}
