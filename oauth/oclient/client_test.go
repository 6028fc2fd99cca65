package oclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/Seann-Moser/integrations/config"
	"github.com/Seann-Moser/integrations/connection"
	"github.com/Seann-Moser/integrations/oauth/oprovider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRedirect = "https://app.example.com/integrations/quickbooks/callback"

type fixture struct {
	server   *oprovider.Server
	http     *httptest.Server
	provider Provider
	cfg      config.ProviderConfig
	now      time.Time
	client   *Client
}

func newFixture(t *testing.T, opts ...oprovider.Option) *fixture {
	t.Helper()
	f := &fixture{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	f.server = oprovider.NewServer("cid", "csecret", opts...)
	f.http = httptest.NewServer(oprovider.NewHandler(f.server, "realmId").Routes())
	t.Cleanup(f.http.Close)
	ep := Endpoints{
		AuthURL:   f.http.URL + oprovider.AuthorizePath,
		TokenURL:  f.http.URL + oprovider.TokenPath,
		RevokeURL: f.http.URL + oprovider.RevokePath,
	}
	f.provider = Provider{
		Type:           connection.ProviderQuickBooks,
		Scopes:         []string{"com.intuit.quickbooks.accounting"},
		AccountIDParam: "realmId",
		Sandbox:        ep,
		Production:     ep,
	}
	f.cfg = config.ProviderConfig{ClientID: "cid", ClientSecret: "csecret", RedirectURI: testRedirect, Environment: config.Sandbox}
	f.client = NewClient(f.provider, f.cfg, WithClock(func() time.Time { return f.now }))
	return f
}

func (f *fixture) code(t *testing.T) string {
	t.Helper()
	resp, err := f.server.Authorize(context.Background(), oprovider.AuthRequest{
		ResponseType: "code", ClientID: "cid", RedirectURI: testRedirect,
	})
	require.NoError(t, err)
	return resp.Code
}

func TestAuthCodeURL(t *testing.T) {
	f := newFixture(t)
	raw := f.provider.AuthCodeURL(f.cfg, "opaque-state")
	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "cid", q.Get("client_id"))
	assert.Equal(t, testRedirect, q.Get("redirect_uri"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "com.intuit.quickbooks.accounting", q.Get("scope"))
	assert.Equal(t, "opaque-state", q.Get("state"))
}

func TestExchangeCode(t *testing.T) {
	f := newFixture(t)
	tok, err := f.client.ExchangeCode(context.Background(), f.code(t), testRedirect)
	require.NoError(t, err)
	assert.NotEmpty(t, tok.AccessToken)
	assert.NotEmpty(t, tok.RefreshToken)
	assert.Equal(t, "bearer", tok.TokenType)
	assert.Equal(t, f.now.Add(time.Hour), tok.ExpiresAt)
}

func TestExchangeCode_CustomExpiry(t *testing.T) {
	f := newFixture(t, oprovider.WithExpiresIn(120))
	tok, err := f.client.ExchangeCode(context.Background(), f.code(t), "")
	require.NoError(t, err)
	assert.Equal(t, f.now.Add(2*time.Minute), tok.ExpiresAt)
}

func TestExchangeCode_DefaultExpiry(t *testing.T) {
	f := newFixture(t, oprovider.WithExpiresIn(0))
	tok, err := f.client.ExchangeCode(context.Background(), f.code(t), "")
	require.NoError(t, err)
	assert.Equal(t, f.now.Add(DefaultExpiresIn), tok.ExpiresAt)
}

func TestExchangeCode_Errors(t *testing.T) {
	f := newFixture(t)

	_, err := f.client.ExchangeCode(context.Background(), "bogus", "")
	var te *TokenExchangeError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, http.StatusBadRequest, te.StatusCode)
	assert.False(t, te.Temporary())
	assert.Contains(t, te.Body, "invalid_grant")
	assert.NotContains(t, te.Error(), "invalid_grant")

	f.server.FailNextToken(http.StatusBadGateway)
	_, err = f.client.ExchangeCode(context.Background(), f.code(t), "")
	require.True(t, errors.As(err, &te))
	assert.Equal(t, http.StatusBadGateway, te.StatusCode)
	assert.True(t, te.Temporary())
}

func TestExchangeCode_NetworkError(t *testing.T) {
	f := newFixture(t)
	f.http.Close()
	_, err := f.client.ExchangeCode(context.Background(), "code", "")
	var te *TokenExchangeError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, 0, te.StatusCode)
	assert.True(t, te.Temporary())
}

func TestRefreshToken(t *testing.T) {
	f := newFixture(t)
	first, err := f.client.ExchangeCode(context.Background(), f.code(t), "")
	require.NoError(t, err)

	f.now = f.now.Add(50 * time.Minute)
	next, err := f.client.RefreshToken(context.Background(), first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.AccessToken, next.AccessToken)
	assert.NotEqual(t, first.RefreshToken, next.RefreshToken)
	assert.Equal(t, f.now.Add(time.Hour), next.ExpiresAt)

	_, err = f.client.RefreshToken(context.Background(), first.RefreshToken)
	var invalid *RefreshTokenInvalidError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, http.StatusBadRequest, invalid.StatusCode)
}

func TestRefreshToken_KeepsRefreshTokenWhenNotRotated(t *testing.T) {
	f := newFixture(t, oprovider.WithoutRotation())
	first, err := f.client.ExchangeCode(context.Background(), f.code(t), "")
	require.NoError(t, err)

	next, err := f.client.RefreshToken(context.Background(), first.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, first.RefreshToken, next.RefreshToken)
}

func TestRefreshToken_Transient(t *testing.T) {
	f := newFixture(t)
	first, err := f.client.ExchangeCode(context.Background(), f.code(t), "")
	require.NoError(t, err)

	f.server.FailNextToken(http.StatusInternalServerError)
	_, err = f.client.RefreshToken(context.Background(), first.RefreshToken)
	var transient *TransientRefreshError
	require.True(t, errors.As(err, &transient))
	assert.Equal(t, http.StatusInternalServerError, transient.StatusCode)

	// The injected failure did not consume the refresh token.
	_, err = f.client.RefreshToken(context.Background(), first.RefreshToken)
	assert.NoError(t, err)
}

func TestRevoke(t *testing.T) {
	f := newFixture(t)
	tok, err := f.client.ExchangeCode(context.Background(), f.code(t), "")
	require.NoError(t, err)

	f.server.FailNextRevoke(http.StatusServiceUnavailable)
	err = f.client.Revoke(context.Background(), tok.RefreshToken)
	var re *RevocationError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, http.StatusServiceUnavailable, re.StatusCode)

	require.NoError(t, f.client.Revoke(context.Background(), tok.RefreshToken))
	assert.Equal(t, []string{tok.RefreshToken}, f.server.Revoked())
}

func TestAcceptJSONHeader(t *testing.T) {
	var accept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accept = r.Header.Get("Accept")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"a","token_type":"bearer","expires_in":60}`))
	}))
	defer srv.Close()

	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	p := Provider{Type: connection.ProviderGusto, Sandbox: Endpoints{TokenURL: srv.URL}}
	c := NewClient(p, config.ProviderConfig{ClientID: "a", ClientSecret: "b", RedirectURI: "c"}, WithClock(func() time.Time { return now }))
	tok, err := c.ExchangeCode(context.Background(), "code", "")
	require.NoError(t, err)
	assert.Equal(t, "application/json", accept)
	assert.Equal(t, now.Add(time.Minute), tok.ExpiresAt)
}

func TestLookup(t *testing.T) {
	p, ok := Lookup("QuickBooks")
	require.True(t, ok)
	assert.Equal(t, "realmId", p.AccountIDParam)

	p, ok = Lookup("gusto")
	require.True(t, ok)
	assert.Equal(t, "https://api.gusto.com/oauth/token", p.Endpoints(config.Production).TokenURL)
	assert.Equal(t, "https://api.gusto-demo.com/oauth/token", p.Endpoints(config.Sandbox).TokenURL)

	_, ok = Lookup("stripe")
	assert.False(t, ok)
	assert.Len(t, Providers(), 2)
}
