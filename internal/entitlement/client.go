package entitlement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	tracerName = "licenseportal/internal/entitlement"

	maxListBodySize  = 32 * 1024 * 1024
	maxErrorBodySize = 64 * 1024

	contentTypeJSONPatch = "application/json-patch+json"
)

// Client issues authenticated calls to organization entitlement stores.
// It is safe for concurrent use.
type Client struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
	tracer trace.Tracer
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client. Its Timeout is left untouched.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a Client for the given configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	cfg = cfg.withDefaults()

	c := &Client{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: zap.NewNop(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether a personal access token is available.
func (c *Client) Configured() bool {
	return c.cfg.Token != ""
}

// List returns every entitlement in the organization in a single page.
// Stores with more members than the configured page size are truncated.
func (c *Client) List(ctx context.Context, org string) ([]Record, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	if org == "" {
		return nil, ErrInvalidInput
	}

	ctx, span := c.tracer.Start(ctx, "entitlement.List",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("azdo.organization", org)),
	)
	defer span.End()

	query := url.Values{}
	query.Set("top", strconv.Itoa(c.cfg.PageSize))
	query.Set("api-version", c.cfg.APIVersion)
	endpoint := c.orgURL(org) + "/_apis/userentitlements?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, c.fail(span, &TransportError{Org: org, Err: err})
	}
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth("", c.cfg.Token)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, c.fail(span, &TransportError{Org: org, Err: err})
	}
	defer closeBody(resp.Body, c.logger)

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.fail(span, &TransportError{
			Org:        org,
			StatusCode: resp.StatusCode,
			Body:       readErrorBody(resp.Body),
		})
	}

	var body listResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxListBodySize)).Decode(&body); err != nil {
		return nil, c.fail(span, &TransportError{
			Org:        org,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("decode entitlements: %w", err),
		})
	}

	items := body.items()
	records := make([]Record, 0, len(items))
	for _, item := range items {
		records = append(records, item.record())
	}

	span.SetAttributes(attribute.Int("azdo.entitlement.count", len(records)))
	c.logger.Debug("listed entitlements",
		zap.String("org", org),
		zap.Int("count", len(records)),
		zap.Duration("elapsed", time.Since(start)),
	)

	return records, nil
}

// SetBasic replaces the entitlement's access level with the Basic tier.
// This changes billable license state. Applying it to an entitlement that
// is already Basic is a no-op on the store side.
//
// A non-success HTTP status is reported through ChangeResult, not as an
// error. Errors are returned only when no response was obtained.
func (c *Client) SetBasic(ctx context.Context, org, entitlementID string) (ChangeResult, error) {
	if !c.Configured() {
		return ChangeResult{}, ErrNotConfigured
	}
	if org == "" || entitlementID == "" {
		return ChangeResult{}, ErrInvalidInput
	}

	ctx, span := c.tracer.Start(ctx, "entitlement.SetBasic",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("azdo.organization", org),
			attribute.String("azdo.entitlement.id", entitlementID),
		),
	)
	defer span.End()

	payload, err := json.Marshal(basicAccessPatch())
	if err != nil {
		return ChangeResult{}, c.fail(span, &TransportError{Org: org, Err: err})
	}

	query := url.Values{}
	query.Set("api-version", c.cfg.APIVersion)
	endpoint := c.orgURL(org) + "/_apis/userentitlements/" + url.PathEscape(entitlementID) + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, bytes.NewReader(payload))
	if err != nil {
		return ChangeResult{}, c.fail(span, &TransportError{Org: org, Err: err})
	}
	req.Header.Set("Content-Type", contentTypeJSONPatch)
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth("", c.cfg.Token)

	resp, err := c.client.Do(req)
	if err != nil {
		return ChangeResult{}, c.fail(span, &TransportError{Org: org, Err: err})
	}
	defer closeBody(resp.Body, c.logger)

	result := ChangeResult{
		Success:    resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated,
		StatusCode: resp.StatusCode,
		Detail:     readErrorBody(resp.Body),
	}

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if !result.Success {
		span.SetStatus(codes.Error, fmt.Sprintf("unexpected status %d", resp.StatusCode))
	}

	c.logger.Info("entitlement access level change submitted",
		zap.String("org", org),
		zap.String("entitlement_id", entitlementID),
		zap.Int("status", resp.StatusCode),
		zap.Bool("success", result.Success),
	)

	return result, nil
}

func (c *Client) orgURL(org string) string {
	return strings.TrimSuffix(c.cfg.BaseURL, "/") + "/" + url.PathEscape(org)
}

func (c *Client) fail(span trace.Span, err *TransportError) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	c.logger.Warn("entitlement store request failed",
		zap.String("org", err.Org),
		zap.Int("status", err.StatusCode),
		zap.Error(err),
	)
	return err
}

func readErrorBody(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return ""
	}
	return string(b)
}

func closeBody(body io.Closer, logger *zap.Logger) {
	if err := body.Close(); err != nil {
		logger.Debug("failed to close response body", zap.Error(err))
	}
}
