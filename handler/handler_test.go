package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/Seann-Moser/integrations"
	"github.com/Seann-Moser/integrations/connection"
	"github.com/Seann-Moser/integrations/oauth/oclient"
	"github.com/Seann-Moser/integrations/oauth/oprovider"
	"github.com/Seann-Moser/integrations/session"
	"github.com/Seann-Moser/integrations/syncstatus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sessionSecret = []byte("0123456789abcdef0123456789abcdef")

type fixture struct {
	provider *oprovider.Server
	store    *connection.MemoryStore
	router   http.Handler
	cookie   *http.Cookie
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{provider: oprovider.NewServer("cid", "csecret", oprovider.WithAccountID("realm-1"))}
	ts := httptest.NewServer(oprovider.NewHandler(f.provider, "realmId").Routes())
	t.Cleanup(ts.Close)

	qb := oclient.QuickBooks
	qb.Sandbox = oclient.Endpoints{
		AuthURL:   ts.URL + oprovider.AuthorizePath,
		TokenURL:  ts.URL + oprovider.TokenPath,
		RevokeURL: ts.URL + oprovider.RevokePath,
	}
	f.store = connection.NewMemoryStore(nil)
	registry, err := integrations.NewRegistry(f.store, map[string]string{
		"QUICKBOOKS_CLIENT_ID":     "cid",
		"QUICKBOOKS_CLIENT_SECRET": "csecret",
		"QUICKBOOKS_REDIRECT_URI":  "https://app.example.com/integrations/quickbooks/callback",
	}, []oclient.Provider{qb, oclient.Gusto})
	require.NoError(t, err)

	logs := syncstatus.NewMemoryLogStore()
	h := New(registry,
		syncstatus.NewService(f.store, logs),
		syncstatus.NewTrigger(f.store, syncstatus.NewMemoryRequestStore(), nil),
		session.NewClient(sessionSecret, time.Hour, nil),
		nil)
	f.router = h.Routes()

	v, err := session.Encode(&session.Identity{
		UserID: "u-1", OrganizationID: "org-1", ExpiresAt: time.Now().Add(time.Hour).Unix(),
	}, sessionSecret)
	require.NoError(t, err)
	f.cookie = &http.Cookie{Name: session.CookieName, Value: v}
	return f
}

func (f *fixture) do(method, target string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.AddCookie(f.cookie)
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

// authorize follows the connect redirect through the provider and returns
// the callback path and query the provider sent the browser to.
func (f *fixture) authorize(t *testing.T, returnTo string) string {
	t.Helper()
	target := "/integrations/quickbooks/connect"
	if returnTo != "" {
		target += "?return_to=" + url.QueryEscape(returnTo)
	}
	rr := f.do(http.MethodGet, target, nil)
	require.Equal(t, http.StatusFound, rr.Code)

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	resp, err := client.Get(rr.Header().Get("Location"))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)

	cb, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/integrations/quickbooks/callback", cb.Path)
	assert.Equal(t, "realm-1", cb.Query().Get("realmId"))
	return cb.Path + "?" + cb.RawQuery
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), v))
}

func errorOf(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorBody
	decode(t, rr, &body)
	return body.Error
}

func TestConnectCallbackWithReturnPath(t *testing.T) {
	f := newFixture(t)
	callback := f.authorize(t, "/settings/integrations")

	rr := f.do(http.MethodGet, callback, nil)
	require.Equal(t, http.StatusFound, rr.Code)
	loc, err := url.Parse(rr.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/settings/integrations", loc.Path)
	assert.Equal(t, "connected", loc.Query().Get("status"))
	assert.Equal(t, "quickbooks", loc.Query().Get("integration"))

	c, err := f.store.Get(context.Background(), connection.Key{OrganizationID: "org-1", Provider: connection.ProviderQuickBooks})
	require.NoError(t, err)
	assert.True(t, c.Connected)
	assert.Equal(t, "realm-1", c.ProviderAccountID)

	// Replaying the same callback fails but still lands on the return path.
	rr = f.do(http.MethodGet, callback, nil)
	require.Equal(t, http.StatusFound, rr.Code)
	loc, err = url.Parse(rr.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "error", loc.Query().Get("status"))
	assert.Equal(t, "connection failed, try again", loc.Query().Get("message"))
}

func TestCallbackWithoutReturnPath(t *testing.T) {
	f := newFixture(t)
	rr := f.do(http.MethodGet, f.authorize(t, ""), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotContains(t, rr.Body.String(), "token")

	var view connectionView
	decode(t, rr, &view)
	assert.True(t, view.Connected)
	assert.Equal(t, "realm-1", view.ProviderAccountID)
	assert.Equal(t, connection.SyncStatusNeverSynced, view.SyncStatus)
}

func TestCallbackRejectsTamperedState(t *testing.T) {
	f := newFixture(t)
	cb, err := url.Parse(f.authorize(t, ""))
	require.NoError(t, err)
	q := cb.Query()
	q.Set("state", q.Get("state")+"x")

	rr := f.do(http.MethodGet, cb.Path+"?"+q.Encode(), nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "connection failed, try again", errorOf(t, rr))
	assert.Zero(t, f.provider.ExchangeCalls())
}

func TestCallbackRejectsOtherOrganization(t *testing.T) {
	f := newFixture(t)
	callback := f.authorize(t, "")

	v, err := session.Encode(&session.Identity{
		UserID: "u-2", OrganizationID: "org-2", ExpiresAt: time.Now().Add(time.Hour).Unix(),
	}, sessionSecret)
	require.NoError(t, err)
	own := f.cookie
	f.cookie = &http.Cookie{Name: session.CookieName, Value: v}

	rr := f.do(http.MethodGet, callback, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Zero(t, f.provider.ExchangeCalls())
	_, err = f.store.Get(context.Background(), connection.Key{OrganizationID: "org-1", Provider: connection.ProviderQuickBooks})
	assert.ErrorIs(t, err, connection.ErrNotFound)

	f.cookie = own
	rr = f.do(http.MethodGet, callback, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestCallbackProviderDenied(t *testing.T) {
	f := newFixture(t)
	cb, err := url.Parse(f.authorize(t, ""))
	require.NoError(t, err)
	q := cb.Query()
	q.Set("error", "access_denied")

	rr := f.do(http.MethodGet, cb.Path+"?"+q.Encode(), nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Zero(t, f.provider.ExchangeCalls())
}

func TestStatusSyncDisconnect(t *testing.T) {
	f := newFixture(t)

	rr := f.do(http.MethodGet, "/integrations/quickbooks/status", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var st statusResponse
	decode(t, rr, &st)
	assert.True(t, st.Configured)
	assert.False(t, st.Connected)
	assert.Nil(t, st.Connection)
	assert.Equal(t, connection.SyncStatusNeverSynced, st.Health.Status)

	rr = f.do(http.MethodPost, "/integrations/quickbooks/sync", strings.NewReader(`{"direction":"push"}`))
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "reconnection required", errorOf(t, rr))

	require.Equal(t, http.StatusOK, f.do(http.MethodGet, f.authorize(t, ""), nil).Code)

	rr = f.do(http.MethodGet, "/integrations/quickbooks/status", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	st = statusResponse{}
	decode(t, rr, &st)
	assert.True(t, st.Connected)
	require.NotNil(t, st.Connection)
	assert.Equal(t, "realm-1", st.Connection.ProviderAccountID)

	rr = f.do(http.MethodPost, "/integrations/quickbooks/sync", strings.NewReader(`{"direction":"push","entityTypes":["invoice"]}`))
	require.Equal(t, http.StatusAccepted, rr.Code)
	var req syncstatus.SyncRequest
	decode(t, rr, &req)
	assert.NotEmpty(t, req.ID)
	assert.Equal(t, syncstatus.RequestPending, req.Status)
	assert.Equal(t, "u-1", req.RequestedBy)
	assert.Equal(t, []string{"invoice"}, req.EntityTypes)

	rr = f.do(http.MethodPost, "/integrations/quickbooks/sync", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "sync already in progress", errorOf(t, rr))

	rr = f.do(http.MethodPost, "/integrations/quickbooks/sync", strings.NewReader(`{"direction":"push","extra":1}`))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(http.MethodPost, "/integrations/quickbooks/disconnect", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Len(t, f.provider.Revoked(), 1)

	rr = f.do(http.MethodGet, "/integrations/quickbooks/status", nil)
	st = statusResponse{}
	decode(t, rr, &st)
	assert.False(t, st.Connected)
	assert.Nil(t, st.Connection)

	assert.Equal(t, http.StatusNoContent, f.do(http.MethodPost, "/integrations/quickbooks/disconnect", nil).Code)
}

func TestNotConfiguredAndUnknown(t *testing.T) {
	f := newFixture(t)

	rr := f.do(http.MethodGet, "/integrations/gusto/connect", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "integration not configured", errorOf(t, rr))

	rr = f.do(http.MethodGet, "/integrations/gusto/status", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var st statusResponse
	decode(t, rr, &st)
	assert.False(t, st.Configured)
	assert.Equal(t, "payroll", st.Category)

	rr = f.do(http.MethodGet, "/integrations/xero/connect", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "unknown integration", errorOf(t, rr))

	rr = f.do(http.MethodGet, "/integrations/", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var list struct {
		Providers []integrations.ProviderInfo `json:"providers"`
	}
	decode(t, rr, &list)
	require.Len(t, list.Providers, 2)
	assert.True(t, list.Providers[0].Configured)
	assert.False(t, list.Providers[1].Configured)
}

func TestRequiresSession(t *testing.T) {
	f := newFixture(t)
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/integrations/quickbooks/connect", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	f.do(http.MethodGet, "/integrations/quickbooks/status", nil)
	rr = httptest.NewRecorder()
	f.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "integrations_http_request_duration_seconds")
}
