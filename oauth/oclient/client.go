// Package oclient talks to provider token endpoints: code exchange, refresh and revocation.
package oclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Seann-Moser/integrations/config"
	"github.com/Seann-Moser/integrations/connection"
	"github.com/Seann-Moser/integrations/metrics"
	"golang.org/x/oauth2"
)

const (
	DefaultTimeout   = 15 * time.Second
	DefaultExpiresIn = 3600 * time.Second
)

// Exchanger performs the provider calls of the OAuth2 lifecycle. It never retries.
type Exchanger interface {
	// ExchangeCode trades an authorization code for tokens.
	ExchangeCode(ctx context.Context, code, redirectURI string) (*connection.TokenSet, error)

	// RefreshToken obtains a new access token. The returned set keeps the old
	// refresh token when the provider does not rotate it.
	RefreshToken(ctx context.Context, refreshToken string) (*connection.TokenSet, error)

	// Revoke invalidates the refresh token at the provider.
	Revoke(ctx context.Context, refreshToken string) error
}

var _ Exchanger = &Client{}

// Client is an Exchanger on golang.org/x/oauth2.
type Client struct {
	provider Provider
	cfg      config.ProviderConfig
	oauth    *oauth2.Config
	http     *http.Client
	now      func() time.Time
}

type ClientOption func(*Client)

// WithHTTPClient replaces the default client. Its timeout is left as is.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) { c.now = now }
}

func NewClient(p Provider, cfg config.ProviderConfig, opts ...ClientOption) *Client {
	c := &Client{
		provider: p,
		cfg:      cfg,
		oauth:    p.OAuth2Config(cfg),
		http: &http.Client{
			Timeout:   DefaultTimeout,
			Transport: acceptJSON{next: http.DefaultTransport},
		},
		now: time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// acceptJSON asks providers that negotiate on Accept for a JSON token response.
type acceptJSON struct {
	next http.RoundTripper
}

func (t acceptJSON) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.Header.Set("Accept", "application/json")
	return t.next.RoundTrip(r)
}

func (c *Client) context(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.http)
}

func (c *Client) ExchangeCode(ctx context.Context, code, redirectURI string) (*connection.TokenSet, error) {
	defer metrics.ObserveProviderRequest(string(c.provider.Type), "exchange", time.Now())
	conf := *c.oauth
	if redirectURI != "" {
		conf.RedirectURL = redirectURI
	}
	tok, err := conf.Exchange(c.context(ctx), code)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			return nil, &TokenExchangeError{StatusCode: statusOf(re), Body: string(re.Body), Err: err}
		}
		return nil, &TokenExchangeError{Err: err}
	}
	return c.tokenSet(tok, ""), nil
}

func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*connection.TokenSet, error) {
	defer metrics.ObserveProviderRequest(string(c.provider.Type), "refresh", time.Now())
	src := c.oauth.TokenSource(c.context(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			status := statusOf(re)
			if status == http.StatusBadRequest || status == http.StatusUnauthorized {
				return nil, &RefreshTokenInvalidError{StatusCode: status, Body: string(re.Body)}
			}
			return nil, &TransientRefreshError{StatusCode: status, Body: string(re.Body), Err: err}
		}
		return nil, &TransientRefreshError{Err: err}
	}
	return c.tokenSet(tok, refreshToken), nil
}

// tokenSet stamps the expiry from the local clock at receive time.
func (c *Client) tokenSet(tok *oauth2.Token, previousRefresh string) *connection.TokenSet {
	received := c.now().UTC()
	refresh := tok.RefreshToken
	if refresh == "" {
		refresh = previousRefresh
	}
	typ := tok.TokenType
	if typ == "" {
		typ = "bearer"
	}
	return &connection.TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: refresh,
		TokenType:    typ,
		ExpiresAt:    received.Add(expiresIn(tok)),
	}
}

func expiresIn(tok *oauth2.Token) time.Duration {
	if tok.ExpiresIn > 0 {
		return time.Duration(tok.ExpiresIn) * time.Second
	}
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		if v > 0 {
			return time.Duration(v) * time.Second
		}
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return DefaultExpiresIn
}

// Revoke posts an RFC 7009 revocation request.
func (c *Client) Revoke(ctx context.Context, refreshToken string) error {
	defer metrics.ObserveProviderRequest(string(c.provider.Type), "revoke", time.Now())
	endpoint := c.provider.Endpoints(c.cfg.Environment).RevokeURL
	if endpoint == "" {
		return nil
	}
	form := url.Values{"token": {refreshToken}, "token_type_hint": {"refresh_token"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return &RevocationError{Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(url.QueryEscape(c.cfg.ClientID), url.QueryEscape(c.cfg.ClientSecret))

	resp, err := c.http.Do(req)
	if err != nil {
		return &RevocationError{Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &RevocationError{StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}
	return nil
}

func statusOf(re *oauth2.RetrieveError) int {
	if re.Response == nil {
		return 0
	}
	return re.Response.StatusCode
}
