// Package entitlement talks to the Azure DevOps user entitlements API of
// one or more organizations.
package entitlement

import (
	"errors"
	"fmt"
	"time"
)

// Defaults for the Azure DevOps entitlements endpoint.
const (
	DefaultBaseURL    = "https://vsaex.dev.azure.com"
	DefaultAPIVersion = "7.1-preview.3"
	DefaultPageSize   = 10000
	DefaultTimeout    = 10 * time.Second
)

// Access-level codes sent when moving an entitlement to the Basic tier.
const (
	LicenseTypeBasic       = "express"
	LicensingSourceAccount = "account"
)

// Config holds everything the Client needs to reach an entitlement store.
// Token is the personal access token shared by every organization.
type Config struct {
	BaseURL    string
	APIVersion string
	PageSize   int
	Token      string
	Timeout    time.Duration
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.APIVersion == "" {
		c.APIVersion = DefaultAPIVersion
	}
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// Record is one user entitlement as seen in an organization's store.
type Record struct {
	ID                 string
	PrincipalName      string
	MailAddress        string
	DisplayName        string
	LicenseType        string
	LicenseDisplayName string
}

// ChangeResult reports the outcome of an access-level change.
// Detail carries the raw response body for diagnostics.
type ChangeResult struct {
	Success    bool
	StatusCode int
	Detail     string
}

var (
	// ErrNotConfigured is returned for every call when no token is set.
	ErrNotConfigured = errors.New("entitlement client not configured: missing personal access token")

	// ErrInvalidInput is returned when an organization or entitlement id is empty.
	ErrInvalidInput = errors.New("organization and entitlement id are required")

	// ErrTransport matches any *TransportError via errors.Is.
	ErrTransport = errors.New("entitlement store request failed")
)

// TransportError describes a failed exchange with an entitlement store:
// either a network failure (Err set) or a non-2xx response (StatusCode set).
type TransportError struct {
	Org        string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: org %s: %v", ErrTransport, e.Org, e.Err)
	}
	return fmt.Sprintf("%s: org %s: unexpected status %d", ErrTransport, e.Org, e.StatusCode)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }
