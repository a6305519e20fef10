// Package jwtauth verifies Microsoft Entra ID tokens issued to the portal
// and turns them into identities. Sign-in itself happens elsewhere.
package jwtauth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"licenseportal/internal/identity"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// DefaultAuthority is the Entra ID login host.
const DefaultAuthority = "https://login.microsoftonline.com"

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrNoPrincipal  = errors.New("token carries no principal name")
)

// Claims represents the Entra ID v2.0 token claims the portal reads.
type Claims struct {
	jwt.RegisteredClaims
	Name              string `json:"name,omitempty"`
	PreferredUsername string `json:"preferred_username,omitempty"`
	UPN               string `json:"upn,omitempty"`
	Email             string `json:"email,omitempty"`
	TenantID          string `json:"tid,omitempty"`
}

// PrincipalName returns the user principal name, falling back to the
// preferred username and then the mail address.
func (c *Claims) PrincipalName() string {
	for _, v := range []string{c.UPN, c.PreferredUsername, c.Email} {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// Identity converts the claims to a verified identity.
func (c *Claims) Identity() (identity.Identity, error) {
	principal := c.PrincipalName()
	if principal == "" {
		return identity.Identity{}, ErrNoPrincipal
	}
	return identity.Identity{DisplayName: c.Name, PrincipalName: principal}, nil
}

// Config holds Entra ID token verification configuration.
type Config struct {
	TenantID  string
	ClientID  string // expected audience
	Authority string // defaults to DefaultAuthority
}

// Verifier handles JWT verification against a tenant's signing keys.
type Verifier struct {
	issuer   string
	audience string
	jwks     *KeySet
	logger   *zap.Logger
}

// NewVerifier creates a new JWT verifier.
func NewVerifier(cfg Config, logger *zap.Logger) (*Verifier, error) {
	if cfg.TenantID == "" {
		return nil, errors.New("tenant id is required")
	}
	if cfg.ClientID == "" {
		return nil, errors.New("client id is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	authority := strings.TrimSuffix(cfg.Authority, "/")
	if authority == "" {
		authority = DefaultAuthority
	}

	return &Verifier{
		issuer:   fmt.Sprintf("%s/%s/v2.0", authority, cfg.TenantID),
		audience: cfg.ClientID,
		jwks:     NewKeySet(fmt.Sprintf("%s/%s/discovery/v2.0/keys", authority, cfg.TenantID), logger),
		logger:   logger,
	}, nil
}

// Verify checks the token's RS256 signature, issuer, audience and expiry
// and returns its claims. Every failure wraps ErrInvalidToken.
func (v *Verifier) Verify(ctx context.Context, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, v.keyFunc(ctx),
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		v.logger.Debug("token rejected", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

func (v *Verifier) keyFunc(ctx context.Context) jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token header has no kid")
		}
		return v.jwks.Key(ctx, kid)
	}
}

// VerifyIdentity verifies the token and returns the identity it names.
func (v *Verifier) VerifyIdentity(ctx context.Context, tokenString string) (identity.Identity, error) {
	claims, err := v.Verify(ctx, tokenString)
	if err != nil {
		return identity.Identity{}, err
	}
	return claims.Identity()
}
