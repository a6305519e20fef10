package access

import (
	"context"

	"licenseportal/internal/entitlement"
	"licenseportal/internal/identity"
	"licenseportal/internal/license"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Row is the access status of one identity in one organization.
// It is derived on every call and never cached.
type Row struct {
	Organization  string           `json:"organization"`
	PrincipalName string           `json:"principal_name"`
	Category      license.Category `json:"category"`
	Label         string           `json:"label"`
	CanUpgrade    bool             `json:"can_upgrade"`

	// EntitlementID is set only when a matching record was found.
	EntitlementID string `json:"entitlement_id,omitempty"`
	DisplayName   string `json:"display_name,omitempty"`
}

// Found reports whether a matching entitlement exists for the row.
func (r Row) Found() bool {
	return r.Category != license.NotFound
}

// Reconciler builds access rows by combining an entitlement Lister with a
// license Classifier.
type Reconciler struct {
	lister     Lister
	classifier license.Classifier
	opts       options
}

// NewReconciler creates a Reconciler. A nil classifier selects the
// default Azure DevOps table.
func NewReconciler(lister Lister, classifier license.Classifier, opts ...Option) *Reconciler {
	if classifier == nil {
		classifier = license.NewTableClassifier()
	}
	return &Reconciler{
		lister:     lister,
		classifier: classifier,
		opts:       buildOptions(opts),
	}
}

// Reconcile returns one row per organization, in input order, duplicates
// included. Organizations are queried concurrently. A failing organization
// yields a NotFound row and never affects the others.
func (r *Reconciler) Reconcile(ctx context.Context, id identity.Identity, orgs []string) []Row {
	ctx, span := tracer.Start(ctx, "access.Reconcile")
	defer span.End()
	span.SetAttributes(attribute.Int("azdo.organization.count", len(orgs)))

	rows := make([]Row, len(orgs))

	var g errgroup.Group
	g.SetLimit(r.opts.concurrency)
	for i, org := range orgs {
		g.Go(func() error {
			rows[i] = r.ReconcileOrg(ctx, id, org)
			return nil
		})
	}
	_ = g.Wait()

	return rows
}

// ReconcileOrg computes the row for a single organization.
func (r *Reconciler) ReconcileOrg(ctx context.Context, id identity.Identity, org string) Row {
	rec, ok := r.resolve(ctx, org, id.PrincipalName)
	if !ok {
		return notFoundRow(org, id.PrincipalName)
	}
	return r.row(org, id.PrincipalName, rec)
}

func (r *Reconciler) resolve(ctx context.Context, org, principal string) (entitlement.Record, bool) {
	records, err := r.lister.List(ctx, org)
	if err != nil {
		r.opts.logger.Warn("treating organization as not found after lookup failure",
			zap.String("org", org),
			zap.Error(err),
		)
		return entitlement.Record{}, false
	}
	if n := countMatches(records, principal); n > 1 {
		r.opts.logger.Warn("multiple entitlements match principal, using the first",
			zap.String("org", org),
			zap.String("principal", principal),
			zap.Int("matches", n),
		)
	}

	rec, ok := Match(records, principal)
	if ok && rec.ID == "" {
		r.opts.logger.Warn("matching entitlement has no id, treating as not found",
			zap.String("org", org),
			zap.String("principal", principal),
		)
		return entitlement.Record{}, false
	}
	return rec, ok
}

func (r *Reconciler) row(org, principal string, rec entitlement.Record) Row {
	c := r.classifier.Classify(rec.LicenseType, rec.LicenseDisplayName)
	return Row{
		Organization:  org,
		PrincipalName: principal,
		Category:      c.Category,
		Label:         c.Label,
		CanUpgrade:    c.Category.Upgradable(),
		EntitlementID: rec.ID,
		DisplayName:   rec.DisplayName,
	}
}

func notFoundRow(org, principal string) Row {
	return Row{
		Organization:  org,
		PrincipalName: principal,
		Category:      license.NotFound,
		Label:         license.NotFound.Label(),
		CanUpgrade:    false,
	}
}
