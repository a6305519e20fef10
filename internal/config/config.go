package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"licenseportal/internal/entitlement"

	"github.com/caarlos0/env/v11"
)

// DevOpsConfig holds Azure DevOps entitlement store configuration.
// Token is the personal access token; it must never be logged.
type DevOpsConfig struct {
	Token          string        `env:"AZURE_DEVOPS_PAT"`
	Orgs           []string      `env:"AZDO_ORGS" envSeparator:","`
	BaseURL        string        `env:"AZDO_ENTITLEMENT_BASE_URL" envDefault:"https://vsaex.dev.azure.com"`
	APIVersion     string        `env:"AZDO_API_VERSION" envDefault:"7.1-preview.3"`
	PageSize       int           `env:"AZDO_PAGE_SIZE" envDefault:"10000"`
	RequestTimeout time.Duration `env:"AZDO_REQUEST_TIMEOUT" envDefault:"10s"`
	MaxConcurrency int           `env:"AZDO_MAX_CONCURRENCY" envDefault:"4"`
}

// Configured reports whether a personal access token was supplied.
func (d DevOpsConfig) Configured() bool {
	return d.Token != ""
}

// EntitlementConfig returns the client configuration with the token
// threaded through explicitly.
func (d DevOpsConfig) EntitlementConfig() entitlement.Config {
	return entitlement.Config{
		BaseURL:    d.BaseURL,
		APIVersion: d.APIVersion,
		PageSize:   d.PageSize,
		Token:      d.Token,
		Timeout:    d.RequestTimeout,
	}
}

// EntraConfig identifies the Microsoft Entra ID app registration whose
// tokens are accepted.
type EntraConfig struct {
	TenantID string `env:"AZURE_TENANT_ID"`
	ClientID string `env:"AZURE_CLIENT_ID"`
}

// TelemetryConfig controls OpenTelemetry trace export.
type TelemetryConfig struct {
	Endpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Enabled  bool   `env:"OTEL_ENABLED" envDefault:"true"`
}

type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	Environment string `env:"ENV" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL"`
	DevOps      DevOpsConfig
	Entra       EntraConfig
	Telemetry   TelemetryConfig
}

// Load reads configuration from environment variables.
// It fails fast with clear errors for missing required values.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	switch cfg.Environment {
	case "development", "staging", "production":
	default:
		return nil, fmt.Errorf("invalid ENV value %q: must be development, staging, or production", cfg.Environment)
	}

	var missing []string
	if strings.TrimSpace(cfg.Entra.TenantID) == "" {
		missing = append(missing, "AZURE_TENANT_ID")
	}
	if strings.TrimSpace(cfg.Entra.ClientID) == "" {
		missing = append(missing, "AZURE_CLIENT_ID")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %v", missing)
	}

	if err := validateBaseURL(cfg.DevOps.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid AZDO_ENTITLEMENT_BASE_URL: %w", err)
	}
	if cfg.DevOps.PageSize <= 0 {
		return nil, fmt.Errorf("invalid AZDO_PAGE_SIZE %d: must be positive", cfg.DevOps.PageSize)
	}
	if cfg.DevOps.RequestTimeout <= 0 {
		return nil, fmt.Errorf("invalid AZDO_REQUEST_TIMEOUT %s: must be positive", cfg.DevOps.RequestTimeout)
	}
	if cfg.DevOps.MaxConcurrency <= 0 {
		return nil, fmt.Errorf("invalid AZDO_MAX_CONCURRENCY %d: must be positive", cfg.DevOps.MaxConcurrency)
	}

	cfg.DevOps.Token = strings.TrimSpace(cfg.DevOps.Token)
	cfg.DevOps.Orgs = cleanOrgs(cfg.DevOps.Orgs)

	return &cfg, nil
}

// cleanOrgs trims each organization name and drops empty entries.
func cleanOrgs(raw []string) []string {
	orgs := make([]string, 0, len(raw))
	for _, org := range raw {
		if org = strings.TrimSpace(org); org != "" {
			orgs = append(orgs, org)
		}
	}
	return orgs
}

// validateBaseURL ensures the entitlement base URL is an absolute http(s) URL.
func validateBaseURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("malformed URL: %w", err)
	}

	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return fmt.Errorf("URL must use http or https scheme, got %q", parsed.Scheme)
	}

	if parsed.Host == "" {
		return fmt.Errorf("URL must include a host")
	}

	return nil
}
