package oclient

import (
	"strings"

	"github.com/Seann-Moser/integrations/config"
	"github.com/Seann-Moser/integrations/connection"
	"golang.org/x/oauth2"
)

// Endpoints are the provider URLs for one environment.
type Endpoints struct {
	AuthURL   string
	TokenURL  string
	RevokeURL string
}

// Provider describes how to talk OAuth2 to one external service.
type Provider struct {
	Type     connection.ProviderType
	Name     string
	Category string
	Scopes   []string
	// AccountIDParam is the callback query parameter carrying the provider's account id.
	AccountIDParam string
	Sandbox        Endpoints
	Production     Endpoints
}

func (p Provider) Endpoints(env config.Environment) Endpoints {
	if env == config.Production {
		return p.Production
	}
	return p.Sandbox
}

// OAuth2Config builds the x/oauth2 client configuration. Client credentials
// are always sent with HTTP Basic auth.
func (p Provider) OAuth2Config(cfg config.ProviderConfig) *oauth2.Config {
	ep := p.Endpoints(cfg.Environment)
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURI,
		Scopes:       p.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   ep.AuthURL,
			TokenURL:  ep.TokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
}

// AuthCodeURL returns the authorize URL with client_id, redirect_uri,
// response_type=code, space separated scope and state.
func (p Provider) AuthCodeURL(cfg config.ProviderConfig, state string) string {
	return p.OAuth2Config(cfg).AuthCodeURL(state)
}

var QuickBooks = Provider{
	Type:           connection.ProviderQuickBooks,
	Name:           "QuickBooks Online",
	Category:       "accounting",
	Scopes:         []string{"com.intuit.quickbooks.accounting"},
	AccountIDParam: "realmId",
	Sandbox: Endpoints{
		AuthURL:   "https://appcenter.intuit.com/connect/oauth2",
		TokenURL:  "https://oauth.platform.intuit.com/oauth2/v1/tokens/bearer",
		RevokeURL: "https://developer.api.intuit.com/v2/oauth2/tokens/revoke",
	},
	Production: Endpoints{
		AuthURL:   "https://appcenter.intuit.com/connect/oauth2",
		TokenURL:  "https://oauth.platform.intuit.com/oauth2/v1/tokens/bearer",
		RevokeURL: "https://developer.api.intuit.com/v2/oauth2/tokens/revoke",
	},
}

var Gusto = Provider{
	Type:           connection.ProviderGusto,
	Name:           "Gusto",
	Category:       "payroll",
	AccountIDParam: "company_uuid",
	Sandbox: Endpoints{
		AuthURL:   "https://api.gusto-demo.com/oauth/authorize",
		TokenURL:  "https://api.gusto-demo.com/oauth/token",
		RevokeURL: "https://api.gusto-demo.com/oauth/revoke",
	},
	Production: Endpoints{
		AuthURL:   "https://api.gusto.com/oauth/authorize",
		TokenURL:  "https://api.gusto.com/oauth/token",
		RevokeURL: "https://api.gusto.com/oauth/revoke",
	},
}

var registry = map[connection.ProviderType]Provider{
	QuickBooks.Type: QuickBooks,
	Gusto.Type:      Gusto,
}

// Lookup finds a provider by its type name, case-insensitively.
func Lookup(name string) (Provider, bool) {
	p, ok := registry[connection.ProviderType(strings.ToLower(name))]
	return p, ok
}

// Providers lists the known providers.
func Providers() []Provider {
	return []Provider{QuickBooks, Gusto}
}
