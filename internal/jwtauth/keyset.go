package jwtauth

import (
	"context"
	"crypto/rsa"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	keySetTTL     = 10 * time.Minute
	keyFetchLimit = 1 << 20

	// minForcedReload spaces out reloads triggered by unknown key ids.
	minForcedReload = time.Minute
)

// KeySet holds a tenant's published signing keys, reloading them when
// they go stale or a token names a key it has not seen.
type KeySet struct {
	url    string
	client *http.Client
	logger *zap.Logger

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

// NewKeySet creates a KeySet for the given JWKS URL.
func NewKeySet(jwksURL string, logger *zap.Logger) *KeySet {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KeySet{
		url:    jwksURL,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
		keys:   map[string]*rsa.PublicKey{},
	}
}

// Key returns the signing key with the given id.
//
// A stale set is reloaded before lookup. An unknown kid triggers a reload
// since Entra ID rotates keys without notice, at most once per
// minForcedReload. If a reload fails, a previously known key is still served.
func (s *KeySet) Key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	key, known, stale := s.lookup(kid)
	if known && !stale {
		return key, nil
	}

	if err := s.reload(ctx, !known); err != nil {
		if known {
			s.logger.Warn("signing key reload failed, serving cached key", zap.String("kid", kid), zap.Error(err))
			return key, nil
		}
		return nil, fmt.Errorf("load signing keys: %w", err)
	}

	key, known, _ = s.lookup(kid)
	if !known {
		return nil, fmt.Errorf("signing key %q not published by tenant", kid)
	}
	return key, nil
}

func (s *KeySet) lookup(kid string) (key *rsa.PublicKey, known, stale bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, known = s.keys[kid]
	return key, known, time.Since(s.fetchedAt) > keySetTTL
}

// reload replaces the key set. Callers that find a fresh set after taking
// the lock skip the fetch. A forced reload is skipped when the set was
// fetched less than minForcedReload ago.
func (s *KeySet) reload(ctx context.Context, force bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.fetchedAt.IsZero() {
		age := time.Since(s.fetchedAt)
		if force && age < minForcedReload {
			return nil
		}
		if !force && len(s.keys) > 0 && age <= keySetTTL {
			return nil
		}
	}

	keys, err := s.fetch(ctx)
	if err != nil {
		return err
	}

	s.keys = keys
	s.fetchedAt = time.Now()
	s.logger.Debug("signing keys loaded", zap.Int("count", len(keys)))
	return nil
}

func (s *KeySet) fetch(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	var set JWKS
	if err := decodeJSON(io.LimitReader(resp.Body, keyFetchLimit), &set); err != nil {
		return nil, fmt.Errorf("decode JWKS: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, jwk := range set.Keys {
		if !jwk.signingRSA() {
			continue
		}
		pub, err := parseRSAPublicKey(jwk.N, jwk.E)
		if err != nil {
			s.logger.Warn("skipping malformed signing key", zap.String("kid", jwk.Kid), zap.Error(err))
			continue
		}
		keys[jwk.Kid] = pub
	}
	return keys, nil
}
