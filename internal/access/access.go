// Package access reconciles a signed-in identity against the entitlement
// stores of the configured organizations and performs the Stakeholder to
// Basic license upgrade.
package access

import (
	"context"
	"strings"

	"licenseportal/internal/entitlement"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

const tracerName = "licenseportal/internal/access"

// Lister reads the entitlements of one organization.
type Lister interface {
	List(ctx context.Context, org string) ([]entitlement.Record, error)
}

// Store is the read/write view of the entitlement stores used for upgrades.
type Store interface {
	Lister
	SetBasic(ctx context.Context, org, entitlementID string) (entitlement.ChangeResult, error)
	Configured() bool
}

// Match returns the first record whose mail address or principal name
// equals principal, ignoring case. An empty principal never matches.
func Match(records []entitlement.Record, principal string) (entitlement.Record, bool) {
	if principal == "" {
		return entitlement.Record{}, false
	}

	want := strings.ToLower(principal)
	for _, rec := range records {
		if owns(rec, want) {
			return rec, true
		}
	}
	return entitlement.Record{}, false
}

// countMatches reports how many records Match would accept for principal.
func countMatches(records []entitlement.Record, principal string) int {
	if principal == "" {
		return 0
	}

	want := strings.ToLower(principal)
	n := 0
	for _, rec := range records {
		if owns(rec, want) {
			n++
		}
	}
	return n
}

func owns(rec entitlement.Record, lowered string) bool {
	return strings.ToLower(rec.MailAddress) == lowered || strings.ToLower(rec.PrincipalName) == lowered
}

// DefaultConcurrency bounds the number of organizations queried at once.
const DefaultConcurrency = 4

type options struct {
	logger      *zap.Logger
	concurrency int
}

// Option configures a Reconciler or Upgrader.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithConcurrency bounds the organization fan-out of Reconcile.
// Values below one are ignored.
func WithConcurrency(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		logger:      zap.NewNop(),
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

var tracer = otel.Tracer(tracerName)
