// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package config turns a viper instance into an immutable types.Config.
//
// Precedence, highest first: command-line flags bound into viper,
// PUBMED_FETCHER_* environment variables (optionally from .env), the
// pubmed-fetcher.yaml file, and the defaults registered here. Secrets from
// .secrets/ fill credential fields that are still empty after Load.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/pdiddy/pubmed-fetcher/pkg/types"
)

// EnvPrefix is the prefix for environment overrides, e.g.
// PUBMED_FETCHER_FETCH_EMAIL sets fetch.email.
const EnvPrefix = "PUBMED_FETCHER"

// ErrMissingEmail is returned by Validate when no Entrez contact address is
// configured.
var ErrMissingEmail = errors.New("fetch.email is required: set it in pubmed-fetcher.yaml, PUBMED_FETCHER_FETCH_EMAIL, or .secrets/entrez-email")

var defaults = map[string]any{
	"fetch.timeout":             30 * time.Second,
	"fetch.user_agent":          "pubmed-fetcher",
	"fetch.email":               "",
	"fetch.api_key":             "",
	"fetch.tool":                "pubmed-fetcher",
	"fetch.max_results":         5,
	"fetch.requests_per_second": 0.0,
	"fetch.max_retries":         3,

	"classifier.keywords":      []string{},
	"classifier.keywords_file": "",

	"export.format": string(types.FormatTable),

	"store.dir": ".pubmed-fetcher",

	"server.addr":                ":5000",
	"server.read_header_timeout": 10 * time.Second,
	"server.shutdown_timeout":    10 * time.Second,
	"server.max_results":         5,

	"log.level":       "info",
	"log.development": false,
}

// BindEnv enables PUBMED_FETCHER_* overrides on v. Nested keys use
// underscores: server.addr is PUBMED_FETCHER_SERVER_ADDR.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// SetDefaults registers the default for every known key. Registering all
// keys also lets AutomaticEnv resolve them during Unmarshal.
func SetDefaults(v *viper.Viper) {
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

// Load applies defaults and decodes v into a Config.
func Load(v *viper.Viper) (types.Config, error) {
	SetDefaults(v)

	var cfg types.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return types.Config{}, fmt.Errorf("decoding configuration: %w", err)
	}
	cfg.Export.Format = types.ExportFormat(strings.ToLower(string(cfg.Export.Format)))
	return cfg, nil
}

// ValidateFetch checks the settings needed to call E-utilities.
func ValidateFetch(cfg types.FetchConfig) error {
	var errs []error
	if strings.TrimSpace(cfg.Email) == "" {
		errs = append(errs, ErrMissingEmail)
	}
	if cfg.MaxResults <= 0 {
		errs = append(errs, fmt.Errorf("fetch.max_results must be positive, got %d", cfg.MaxResults))
	}
	if cfg.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("fetch.max_retries must not be negative, got %d", cfg.MaxRetries))
	}
	return errors.Join(errs...)
}

// ValidateServer checks the HTTP API settings.
func ValidateServer(cfg types.ServerConfig) error {
	var errs []error
	if strings.TrimSpace(cfg.Addr) == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if cfg.MaxResults <= 0 {
		errs = append(errs, fmt.Errorf("server.max_results must be positive, got %d", cfg.MaxResults))
	}
	return errors.Join(errs...)
}

// ValidateExport checks the default output format.
func ValidateExport(cfg types.ExportConfig) error {
	switch cfg.Format {
	case types.FormatCSV, types.FormatJSON, types.FormatYAML, types.FormatCSL, types.FormatTable:
		return nil
	}
	return fmt.Errorf("export.format %q is not one of csv, json, yaml, csl, table", cfg.Format)
}

// Validate checks every section used by the serve command.
func Validate(cfg types.Config) error {
	return errors.Join(
		ValidateFetch(cfg.Fetch),
		ValidateServer(cfg.Server),
		ValidateExport(cfg.Export),
	)
}
