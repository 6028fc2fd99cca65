// Package integrations wires one connection lifecycle manager per provider.
package integrations

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Seann-Moser/integrations/config"
	"github.com/Seann-Moser/integrations/connection"
	"github.com/Seann-Moser/integrations/oauth/oclient"
	"github.com/Seann-Moser/integrations/oauth/omanager"
	"go.uber.org/multierr"
)

var ErrUnknownProvider = errors.New("unknown integration provider")

// ProviderInfo is what the UI needs to list available integrations.
type ProviderInfo struct {
	Type       connection.ProviderType `json:"type"`
	Name       string                  `json:"name"`
	Category   string                  `json:"category"`
	Configured bool                    `json:"configured"`
}

type Registry struct {
	providers []oclient.Provider
	managers  map[connection.ProviderType]*omanager.Manager
	missing   map[connection.ProviderType]error
}

// NewRegistry resolves credentials for each provider from environment (nil
// reads the process environment). A provider with none of its variables set
// is kept as not configured; one that is half configured fails startup.
// A nil providers list means every known provider.
func NewRegistry(store connection.Store, environment map[string]string, providers []oclient.Provider, opts ...omanager.Option) (*Registry, error) {
	if providers == nil {
		providers = oclient.Providers()
	}
	r := &Registry{
		providers: providers,
		managers:  make(map[connection.ProviderType]*omanager.Manager),
		missing:   make(map[connection.ProviderType]error),
	}
	var errs error
	for _, p := range providers {
		resolver := config.Resolver{Prefix: config.ProviderPrefix(string(p.Type)), Environment: environment}
		cfg, err := resolver.Resolve()
		if err != nil {
			var cfgErr *config.ConfigurationError
			if errors.As(err, &cfgErr) && cfgErr.Unset() {
				r.missing[p.Type] = err
				continue
			}
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", p.Type, err))
			continue
		}
		m, err := omanager.New(p, cfg, store, opts...)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", p.Type, err))
			continue
		}
		r.managers[p.Type] = m
	}
	if errs != nil {
		return nil, errs
	}
	return r, nil
}

// Manager returns the manager for a provider name. An unconfigured provider
// returns an error matching omanager.ErrNotConfigured.
func (r *Registry) Manager(name string) (*omanager.Manager, error) {
	p, ok := r.Provider(name)
	if !ok {
		return nil, ErrUnknownProvider
	}
	if m, ok := r.managers[p.Type]; ok {
		return m, nil
	}
	if err, ok := r.missing[p.Type]; ok {
		return nil, err
	}
	return nil, omanager.ErrNotConfigured
}

func (r *Registry) Provider(name string) (oclient.Provider, bool) {
	for _, p := range r.providers {
		if strings.EqualFold(string(p.Type), name) {
			return p, true
		}
	}
	return oclient.Provider{}, false
}

func (r *Registry) Providers() []ProviderInfo {
	out := make([]ProviderInfo, 0, len(r.providers))
	for _, p := range r.providers {
		_, configured := r.managers[p.Type]
		out = append(out, ProviderInfo{Type: p.Type, Name: p.Name, Category: p.Category, Configured: configured})
	}
	return out
}
