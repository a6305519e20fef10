package access

import (
	"context"
	"fmt"
	"strings"

	"licenseportal/internal/entitlement"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// CostDisclosure is appended to every successful upgrade summary.
// Basic licenses are billed per user per month.
const CostDisclosure = "Cost Associated $6/user/month"

// Kind classifies why an upgrade did not succeed.
type Kind string

const (
	KindNone              Kind = ""
	KindMissingParameters Kind = "MissingParameters"
	KindNotConfigured     Kind = "NotConfigured"
	KindUserNotFound      Kind = "UserNotFound"
	KindTransportError    Kind = "TransportError"
)

// Result is the outcome of one upgrade attempt. Detail is a human-readable
// summary suitable for a notification. Response holds the store's raw
// reply when one was received.
type Result struct {
	Success    bool   `json:"success"`
	Kind       Kind   `json:"kind,omitempty"`
	Detail     string `json:"detail"`
	StatusCode int    `json:"status_code,omitempty"`
	Response   string `json:"response,omitempty"`
}

func failure(kind Kind, format string, args ...any) Result {
	return Result{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Upgrader moves a user's entitlement in one organization to Basic.
// It only acts on explicit calls and never retries.
type Upgrader struct {
	store   Store
	allowed map[string]struct{}
	opts    options
}

// NewUpgrader creates an Upgrader limited to the given organizations.
// With no organizations every upgrade is refused as NotConfigured.
func NewUpgrader(store Store, orgs []string, opts ...Option) *Upgrader {
	allowed := make(map[string]struct{}, len(orgs))
	for _, org := range orgs {
		allowed[strings.ToLower(org)] = struct{}{}
	}
	return &Upgrader{
		store:   store,
		allowed: allowed,
		opts:    buildOptions(opts),
	}
}

// Upgrade sets the Basic license for principal in org.
//
// The entitlement is always re-resolved from a fresh listing. A supplied
// entitlementID must still exist and belong to principal, otherwise the
// attempt fails with KindUserNotFound and no change is submitted.
func (u *Upgrader) Upgrade(ctx context.Context, org, principal, entitlementID string) Result {
	ctx, span := tracer.Start(ctx, "access.Upgrade")
	defer span.End()
	span.SetAttributes(attribute.String("azdo.organization", org))

	result := u.upgrade(ctx, org, principal, entitlementID)

	span.SetAttributes(
		attribute.Bool("upgrade.success", result.Success),
		attribute.String("upgrade.kind", string(result.Kind)),
	)
	if !result.Success {
		span.SetStatus(codes.Error, string(result.Kind))
	}

	u.opts.logger.Info("license upgrade attempted",
		zap.String("org", org),
		zap.String("principal", principal),
		zap.Bool("success", result.Success),
		zap.String("kind", string(result.Kind)),
	)

	return result
}

func (u *Upgrader) upgrade(ctx context.Context, org, principal, entitlementID string) Result {
	org = strings.TrimSpace(org)
	principal = strings.TrimSpace(principal)
	entitlementID = strings.TrimSpace(entitlementID)

	if org == "" || principal == "" {
		return failure(KindMissingParameters, "Missing parameters")
	}
	if !u.store.Configured() {
		return failure(KindNotConfigured, "Server not configured with AZURE_DEVOPS_PAT")
	}
	if len(u.allowed) == 0 {
		return failure(KindNotConfigured, "Server not configured with any Azure DevOps organizations")
	}
	if _, ok := u.allowed[strings.ToLower(org)]; !ok {
		return failure(KindNotConfigured, "Organization %s is not configured", org)
	}

	records, err := u.store.List(ctx, org)
	if err != nil {
		return failure(KindTransportError, "Failed to look up %s in org %s: %v", principal, org, err)
	}

	id, ok := resolveID(records, principal, entitlementID)
	if !ok {
		return failure(KindUserNotFound, "User %s not found in org %s", principal, org)
	}

	change, err := u.store.SetBasic(ctx, org, id)
	if err != nil {
		return failure(KindTransportError, "Failed to update access in %s: %v", org, err)
	}
	if !change.Success {
		return Result{
			Kind:       KindTransportError,
			Detail:     fmt.Sprintf("Failed to update access in %s: %s", org, change.Detail),
			StatusCode: change.StatusCode,
			Response:   change.Detail,
		}
	}

	return Result{
		Success:    true,
		Detail:     fmt.Sprintf("Access updated to Basic in %s. %s", org, CostDisclosure),
		StatusCode: change.StatusCode,
		Response:   change.Detail,
	}
}

// resolveID returns the entitlement id to patch. Without a supplied id it
// is the id of the first record matching principal; with one, the supplied
// id is accepted only if some record carrying it matches principal.
func resolveID(records []entitlement.Record, principal, supplied string) (string, bool) {
	if supplied == "" {
		rec, ok := Match(records, principal)
		if !ok || rec.ID == "" {
			return "", false
		}
		return rec.ID, true
	}

	for _, rec := range records {
		if rec.ID != supplied {
			continue
		}
		if _, ok := Match([]entitlement.Record{rec}, principal); ok {
			return supplied, true
		}
	}
	return "", false
}
