// Package config resolves provider credentials and process settings from
// environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// ErrNotConfigured is matched by every ConfigurationError.
var ErrNotConfigured = errors.New("integration not configured")

type Environment string

const (
	Sandbox    Environment = "sandbox"
	Production Environment = "production"
)

func (e Environment) Valid() bool {
	return e == Sandbox || e == Production
}

// ProviderConfig is the OAuth client registration for one provider.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Environment  Environment
}

// Validate returns a *ConfigurationError naming the unset or invalid variables.
// An empty Environment means Sandbox.
func (c ProviderConfig) Validate() error {
	return c.validate("")
}

func (c ProviderConfig) validate(prefix string) error {
	cfgErr := &ConfigurationError{}
	if strings.TrimSpace(c.ClientID) == "" {
		cfgErr.Missing = append(cfgErr.Missing, prefix+"CLIENT_ID")
	}
	if strings.TrimSpace(c.ClientSecret) == "" {
		cfgErr.Missing = append(cfgErr.Missing, prefix+"CLIENT_SECRET")
	}
	if strings.TrimSpace(c.RedirectURI) == "" {
		cfgErr.Missing = append(cfgErr.Missing, prefix+"REDIRECT_URI")
	}
	if c.Environment != "" && !c.Environment.Valid() {
		cfgErr.Invalid = append(cfgErr.Invalid, prefix+"ENVIRONMENT")
	}
	if len(cfgErr.Missing) > 0 || len(cfgErr.Invalid) > 0 {
		return cfgErr
	}
	return nil
}

// ConfigurationError lists variable names only, never their values.
type ConfigurationError struct {
	Missing []string
	Invalid []string
}

func (e *ConfigurationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid "+strings.Join(e.Invalid, ", "))
	}
	return "configuration error: " + strings.Join(parts, "; ")
}

func (e *ConfigurationError) Unwrap() error {
	return ErrNotConfigured
}

// Unset reports whether none of the required variables were provided, as
// opposed to a provider that is half configured.
func (e *ConfigurationError) Unset() bool {
	return len(e.Invalid) == 0 && len(e.Missing) == requiredVariables
}

const requiredVariables = 3

type providerEnv struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	RedirectURI  string `env:"REDIRECT_URI"`
	Environment  string `env:"ENVIRONMENT" envDefault:"sandbox"`
}

// Resolver reads {Prefix}CLIENT_ID, {Prefix}CLIENT_SECRET, {Prefix}REDIRECT_URI
// and {Prefix}ENVIRONMENT. A non-nil Environment replaces the process environment.
type Resolver struct {
	Prefix      string
	Environment map[string]string
}

// ProviderPrefix returns the variable prefix for a provider name, e.g. "QUICKBOOKS_".
func ProviderPrefix(provider string) string {
	return strings.ToUpper(provider) + "_"
}

func (r Resolver) options() env.Options {
	return env.Options{Prefix: r.Prefix, Environment: r.Environment}
}

func (r Resolver) Resolve() (ProviderConfig, error) {
	var raw providerEnv
	if err := env.ParseWithOptions(&raw, r.options()); err != nil {
		return ProviderConfig{}, fmt.Errorf("parse env: %w", err)
	}
	cfg := ProviderConfig{
		ClientID:     strings.TrimSpace(raw.ClientID),
		ClientSecret: strings.TrimSpace(raw.ClientSecret),
		RedirectURI:  strings.TrimSpace(raw.RedirectURI),
		Environment:  Environment(strings.ToLower(strings.TrimSpace(raw.Environment))),
	}
	if cfg.Environment == "" {
		cfg.Environment = Sandbox
	}
	if err := cfg.validate(r.Prefix); err != nil {
		return ProviderConfig{}, err
	}
	return cfg, nil
}

// IsConfigured reports whether Resolve would succeed.
func (r Resolver) IsConfigured() bool {
	_, err := r.Resolve()
	return err == nil
}
