// Package oprovider is an in-process OAuth2 authorization server that behaves
// like the accounting and payroll providers: confidential clients, rotating
// refresh tokens and RFC 7009 revocation. It backs tests and local development.
package oprovider

import (
	"context"
	"crypto/subtle"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	AuthorizePath = "/oauth/authorize"
	TokenPath     = "/oauth/token"
	RevokePath    = "/oauth/revoke"
)

type codeGrant struct {
	redirectURI         string
	scope               string
	accountID           string
	codeChallenge       string
	codeChallengeMethod string
}

type Server struct {
	clientID     string
	clientSecret string
	accountID    string
	expiresIn    int64
	rotate       bool
	delay        time.Duration

	mu        sync.Mutex
	codes     map[string]codeGrant
	refresh   map[string]string // refresh token -> scope
	access    map[string]struct{}
	revoked   []string
	failToken []int
	failRev   []int

	exchangeCalls atomic.Int64
	refreshCalls  atomic.Int64
	revokeCalls   atomic.Int64
}

type Option func(*Server)

// WithExpiresIn sets expires_in on issued tokens. Zero omits the field.
func WithExpiresIn(seconds int64) Option {
	return func(s *Server) { s.expiresIn = seconds }
}

// WithoutRotation keeps refresh tokens stable and omits them from refresh responses.
func WithoutRotation() Option {
	return func(s *Server) { s.rotate = false }
}

// WithTokenDelay holds every token response for d.
func WithTokenDelay(d time.Duration) Option {
	return func(s *Server) { s.delay = d }
}

func WithAccountID(id string) Option {
	return func(s *Server) { s.accountID = id }
}

func NewServer(clientID, clientSecret string, opts ...Option) *Server {
	s := &Server{
		clientID:     clientID,
		clientSecret: clientSecret,
		accountID:    "account-" + uuid.NewString()[:8],
		expiresIn:    3600,
		rotate:       true,
		codes:        make(map[string]codeGrant),
		refresh:      make(map[string]string),
		access:       make(map[string]struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// FailNextToken makes the next token requests fail with the given statuses, in order.
func (s *Server) FailNextToken(statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failToken = append(s.failToken, statuses...)
}

// FailNextRevoke makes the next revocation requests fail with the given statuses.
func (s *Server) FailNextRevoke(statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failRev = append(s.failRev, statuses...)
}

// RevokeAll forgets every issued refresh token, as if the user disconnected the app at the provider.
func (s *Server) RevokeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh = make(map[string]string)
	s.access = make(map[string]struct{})
}

func (s *Server) ExchangeCalls() int64 { return s.exchangeCalls.Load() }
func (s *Server) RefreshCalls() int64  { return s.refreshCalls.Load() }
func (s *Server) RevokeCalls() int64   { return s.revokeCalls.Load() }

// Revoked lists tokens successfully revoked, in order.
func (s *Server) Revoked() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.revoked...)
}

// ValidAccessToken reports whether token was issued and not revoked.
func (s *Server) ValidAccessToken(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.access[token]
	return ok
}

// AccountID is the provider account id returned on the authorize redirect.
func (s *Server) AccountID() string { return s.accountID }

func (s *Server) authenticate(clientID, secret string) bool {
	return subtle.ConstantTimeCompare([]byte(clientID), []byte(s.clientID)) == 1 &&
		subtle.ConstantTimeCompare([]byte(secret), []byte(s.clientSecret)) == 1
}

// Authorize approves the request immediately and returns a single-use code.
func (s *Server) Authorize(_ context.Context, req AuthRequest) (*AuthResponse, error) {
	if req.ResponseType != "code" {
		return nil, oauthError(http.StatusBadRequest, "unsupported_response_type", "")
	}
	if req.ClientID != s.clientID {
		return nil, oauthError(http.StatusBadRequest, "unauthorized_client", "")
	}
	if req.RedirectURI == "" {
		return nil, oauthError(http.StatusBadRequest, "invalid_request", "redirect_uri is required")
	}
	code := uuid.NewString()
	s.mu.Lock()
	s.codes[code] = codeGrant{
		redirectURI:         req.RedirectURI,
		scope:               req.Scope,
		accountID:           s.accountID,
		codeChallenge:       req.CodeChallenge,
		codeChallengeMethod: req.CodeChallengeMethod,
	}
	s.mu.Unlock()
	return &AuthResponse{Code: code, State: req.State, AccountID: s.accountID}, nil
}

// popFailure returns the next injected failure status, or 0.
func popFailure(queue *[]int) int {
	if len(*queue) == 0 {
		return 0
	}
	status := (*queue)[0]
	*queue = (*queue)[1:]
	return status
}

// Token handles the authorization_code and refresh_token grants.
func (s *Server) Token(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	switch GrantType(req.GrantType) {
	case GrantTypeAuthorizationCode:
		s.exchangeCalls.Add(1)
	case GrantTypeRefreshToken:
		s.refreshCalls.Add(1)
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if !s.authenticate(req.ClientID, req.ClientSecret) {
		return nil, oauthError(http.StatusUnauthorized, "invalid_client", "")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if status := popFailure(&s.failToken); status != 0 {
		return nil, oauthError(status, "server_error", "injected failure")
	}

	switch GrantType(req.GrantType) {
	case GrantTypeAuthorizationCode:
		grant, ok := s.codes[req.Code]
		if !ok {
			return nil, oauthError(http.StatusBadRequest, "invalid_grant", "unknown authorization code")
		}
		delete(s.codes, req.Code)
		if grant.redirectURI != req.RedirectURI {
			return nil, oauthError(http.StatusBadRequest, "invalid_grant", "redirect_uri mismatch")
		}
		if grant.codeChallenge != "" && !validateCodeVerifier(grant.codeChallengeMethod, grant.codeChallenge, req.CodeVerifier) {
			return nil, oauthError(http.StatusBadRequest, "invalid_grant", "invalid code_verifier")
		}
		return s.issue(grant.scope, ""), nil

	case GrantTypeRefreshToken:
		scope, ok := s.refresh[req.RefreshToken]
		if !ok {
			return nil, oauthError(http.StatusBadRequest, "invalid_grant", "refresh token is invalid or revoked")
		}
		if !s.rotate {
			resp := s.issue(scope, req.RefreshToken)
			resp.RefreshToken = ""
			return resp, nil
		}
		delete(s.refresh, req.RefreshToken)
		return s.issue(scope, ""), nil

	default:
		return nil, oauthError(http.StatusBadRequest, "unsupported_grant_type", "")
	}
}

// issue must be called with s.mu held. A non-empty keep reuses that refresh token.
func (s *Server) issue(scope, keep string) *TokenResponse {
	access := uuid.NewString()
	refresh := keep
	if refresh == "" {
		refresh = uuid.NewString()
	}
	s.access[access] = struct{}{}
	s.refresh[refresh] = scope
	return &TokenResponse{
		AccessToken:  access,
		TokenType:    "bearer",
		ExpiresIn:    s.expiresIn,
		RefreshToken: refresh,
		Scope:        scope,
	}
}

// Revoke invalidates a refresh or access token. Unknown tokens succeed per RFC 7009.
func (s *Server) Revoke(_ context.Context, req RevocationRequest) error {
	s.revokeCalls.Add(1)
	if !s.authenticate(req.ClientID, req.ClientSecret) {
		return oauthError(http.StatusUnauthorized, "invalid_client", "")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if status := popFailure(&s.failRev); status != 0 {
		return oauthError(status, "server_error", "injected failure")
	}
	delete(s.refresh, req.Token)
	delete(s.access, req.Token)
	s.revoked = append(s.revoked, req.Token)
	return nil
}
