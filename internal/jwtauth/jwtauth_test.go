package jwtauth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"licenseportal/internal/identity"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testTenant   = "tenant-123"
	testClientID = "client-abc"
)

func TestNewVerifier(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid config", Config{TenantID: testTenant, ClientID: testClientID}, false},
		{"missing tenant", Config{ClientID: testClientID}, true},
		{"missing client id", Config{TenantID: testTenant}, true},
		{"custom authority", Config{TenantID: testTenant, ClientID: testClientID, Authority: "https://login.example.com/"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewVerifier(tt.cfg, nil)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewVerifier_Endpoints(t *testing.T) {
	v, err := NewVerifier(Config{TenantID: testTenant, ClientID: testClientID}, nil)
	require.NoError(t, err)

	assert.Equal(t, "https://login.microsoftonline.com/tenant-123/v2.0", v.issuer)
	assert.Equal(t, "https://login.microsoftonline.com/tenant-123/discovery/v2.0/keys", v.jwks.url)
}

func TestClaims_PrincipalName(t *testing.T) {
	tests := []struct {
		name   string
		claims Claims
		want   string
	}{
		{"upn first", Claims{UPN: "a@corp.com", PreferredUsername: "b@corp.com", Email: "c@corp.com"}, "a@corp.com"},
		{"preferred username", Claims{PreferredUsername: "b@corp.com", Email: "c@corp.com"}, "b@corp.com"},
		{"email last", Claims{Email: "c@corp.com"}, "c@corp.com"},
		{"blank values skipped", Claims{UPN: "  ", Email: "c@corp.com"}, "c@corp.com"},
		{"none", Claims{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.claims.PrincipalName())
		})
	}
}

func TestClaims_Identity(t *testing.T) {
	c := &Claims{Name: "Alice", PreferredUsername: "alice@example.com"}
	id, err := c.Identity()
	require.NoError(t, err)
	assert.Equal(t, identity.Identity{DisplayName: "Alice", PrincipalName: "alice@example.com"}, id)

	_, err = (&Claims{Name: "Nobody"}).Identity()
	assert.ErrorIs(t, err, ErrNoPrincipal)
}

// tenantFixture serves a JWKS for one signing key and mints tokens with it.
type tenantFixture struct {
	key      *rsa.PrivateKey
	kid      atomic.Value // string
	server   *httptest.Server
	verifier *Verifier
	fetches  atomic.Int32
}

func newTenantFixture(t *testing.T) *tenantFixture {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	f := &tenantFixture{key: key}
	f.kid.Store("test-key-id")
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.fetches.Add(1)
		if r.URL.Path != "/"+testTenant+"/discovery/v2.0/keys" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(JWKS{Keys: []JWK{{
			Kty: "RSA",
			Kid: f.kid.Load().(string),
			Use: "sig",
			Alg: "RS256",
			N:   base64.RawURLEncoding.EncodeToString(f.key.PublicKey.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(bigIntToBytes(f.key.PublicKey.E)),
		}}})
	}))
	t.Cleanup(f.server.Close)

	f.verifier, err = NewVerifier(Config{TenantID: testTenant, ClientID: testClientID, Authority: f.server.URL}, nil)
	require.NoError(t, err)
	return f
}

func (f *tenantFixture) issuer() string {
	return f.server.URL + "/" + testTenant + "/v2.0"
}

func (f *tenantFixture) sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = f.kid.Load().(string)
	s, err := token.SignedString(f.key)
	require.NoError(t, err)
	return s
}

func (f *tenantFixture) validClaims() jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss":                f.issuer(),
		"sub":                "subject-1",
		"aud":                testClientID,
		"exp":                now.Add(time.Hour).Unix(),
		"iat":                now.Unix(),
		"name":               "Alice Example",
		"preferred_username": "alice@example.com",
		"tid":                testTenant,
	}
}

func TestVerifier_VerifyIdentity(t *testing.T) {
	f := newTenantFixture(t)

	id, err := f.verifier.VerifyIdentity(context.Background(), f.sign(t, f.validClaims()))
	require.NoError(t, err)
	assert.Equal(t, identity.Identity{DisplayName: "Alice Example", PrincipalName: "alice@example.com"}, id)
}

func TestVerifier_Verify_Rejections(t *testing.T) {
	f := newTenantFixture(t)

	tests := []struct {
		name   string
		mutate func(jwt.MapClaims)
	}{
		{"wrong audience", func(c jwt.MapClaims) { c["aud"] = "someone-else" }},
		{"wrong issuer", func(c jwt.MapClaims) { c["iss"] = "https://login.microsoftonline.com/other/v2.0" }},
		{"expired", func(c jwt.MapClaims) { c["exp"] = time.Now().Add(-time.Hour).Unix() }},
		{"no expiry", func(c jwt.MapClaims) { delete(c, "exp") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := f.validClaims()
			tt.mutate(claims)

			_, err := f.verifier.Verify(context.Background(), f.sign(t, claims))
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestVerifier_Verify_WrongSigningKey(t *testing.T) {
	f := newTenantFixture(t)

	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, f.validClaims())
	token.Header["kid"] = f.kid.Load().(string)
	s, err := token.SignedString(other)
	require.NoError(t, err)

	_, err = f.verifier.Verify(context.Background(), s)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifier_Verify_RejectsHMAC(t *testing.T) {
	f := newTenantFixture(t)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, f.validClaims())
	token.Header["kid"] = f.kid.Load().(string)
	s, err := token.SignedString([]byte("shared-secret"))
	require.NoError(t, err)

	_, err = f.verifier.Verify(context.Background(), s)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifier_VerifyIdentity_NoPrincipal(t *testing.T) {
	f := newTenantFixture(t)
	claims := f.validClaims()
	delete(claims, "preferred_username")

	_, err := f.verifier.VerifyIdentity(context.Background(), f.sign(t, claims))
	assert.ErrorIs(t, err, ErrNoPrincipal)
}

func TestKeySet_CachesAndReloadsOnUnknownKid(t *testing.T) {
	f := newTenantFixture(t)
	token := f.sign(t, f.validClaims())

	for i := 0; i < 3; i++ {
		_, err := f.verifier.Verify(context.Background(), token)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), f.fetches.Load())

	f.verifier.jwks.backdate(minForcedReload)
	f.kid.Store("rotated-key-id")
	_, err := f.verifier.Verify(context.Background(), f.sign(t, f.validClaims()))
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.fetches.Load())
}

func TestKeySet_UnknownKidReloadsAreRateLimited(t *testing.T) {
	f := newTenantFixture(t)

	_, err := f.verifier.Verify(context.Background(), f.sign(t, f.validClaims()))
	require.NoError(t, err)
	require.Equal(t, int32(1), f.fetches.Load())

	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		token := jwt.NewWithClaims(jwt.SigningMethodRS256, f.validClaims())
		token.Header["kid"] = fmt.Sprintf("unknown-%d", i)
		s, err := token.SignedString(other)
		require.NoError(t, err)

		_, err = f.verifier.Verify(context.Background(), s)
		assert.ErrorIs(t, err, ErrInvalidToken)
	}
	assert.Equal(t, int32(1), f.fetches.Load())

	// Known keys keep verifying without further fetches.
	_, err = f.verifier.Verify(context.Background(), f.sign(t, f.validClaims()))
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.fetches.Load())
}

func TestKeySet_FirstFetchFailureRetries(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	f := newTenantFixture(t)
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		f.server.Config.Handler.ServeHTTP(w, r)
	}))
	t.Cleanup(failing.Close)

	ks := NewKeySet(failing.URL+"/"+testTenant+"/discovery/v2.0/keys", nil)

	_, err := ks.Key(context.Background(), "test-key-id")
	require.Error(t, err)

	fail.Store(false)
	key, err := ks.Key(context.Background(), "test-key-id")
	require.NoError(t, err)
	assert.NotNil(t, key)
}

func TestParseRSAPublicKey_Malformed(t *testing.T) {
	_, err := parseRSAPublicKey("!!", "AQAB")
	assert.Error(t, err)

	_, err = parseRSAPublicKey("AQAB", "")
	assert.Error(t, err)
}

// backdate ages the key set as if it had been fetched d earlier.
func (s *KeySet) backdate(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchedAt = s.fetchedAt.Add(-d)
}

// bigIntToBytes encodes the RSA exponent for the JWK "e" parameter.
func bigIntToBytes(e int) []byte {
	return []byte(fmt.Sprintf("%c%c%c", byte(e>>16), byte(e>>8), byte(e)))
}
