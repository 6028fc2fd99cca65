// Package omanager owns the connection lifecycle for one provider:
// authorization, token refresh ahead of expiry and disconnect.
package omanager

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Seann-Moser/integrations/config"
	"github.com/Seann-Moser/integrations/connection"
	"github.com/Seann-Moser/integrations/lock"
	"github.com/Seann-Moser/integrations/metrics"
	"github.com/Seann-Moser/integrations/oauth/oclient"
	"github.com/Seann-Moser/integrations/oauth/ostate"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type Manager struct {
	provider  oclient.Provider
	cfg       config.ProviderConfig
	store     connection.Store
	exchanger oclient.Exchanger
	locker    lock.Locker
	nonces    ostate.NonceStore
	codec     *ostate.Codec
	now       func() time.Time
	log       *zap.Logger

	stateSecret    []byte
	refreshBuffer  time.Duration
	refreshTimeout time.Duration
	revokeTimeout  time.Duration
	nonceTTL       time.Duration

	flights singleflight.Group
}

// New validates cfg before anything else, so a Manager never exists with
// incomplete provider credentials.
func New(provider oclient.Provider, cfg config.ProviderConfig, store connection.Store, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.New("connection store is required")
	}
	if cfg.Environment == "" {
		cfg.Environment = config.Sandbox
	}
	m := &Manager{
		provider:       provider,
		cfg:            cfg,
		store:          store,
		now:            time.Now,
		refreshBuffer:  DefaultRefreshBuffer,
		refreshTimeout: DefaultRefreshTimeout,
		revokeTimeout:  DefaultRevokeTimeout,
		nonceTTL:       ostate.DefaultNonceTTL,
	}
	for _, o := range opts {
		o(m)
	}
	if m.log == nil {
		m.log = zap.NewNop()
	}
	m.log = m.log.With(zap.String("provider", string(provider.Type)))
	if m.exchanger == nil {
		m.exchanger = oclient.NewClient(provider, cfg, oclient.WithClock(m.now))
	}
	if m.locker == nil {
		m.locker = lock.NewMemoryLocker()
	}
	if m.nonces == nil {
		m.nonces = ostate.NewMemoryNonceStore(m.now)
	}
	if len(m.stateSecret) == 0 {
		m.stateSecret = make([]byte, 32)
		if _, err := rand.Read(m.stateSecret); err != nil {
			return nil, fmt.Errorf("generate state secret: %w", err)
		}
	}
	m.codec = ostate.NewCodec(m.stateSecret)
	return m, nil
}

func (m *Manager) Provider() oclient.Provider { return m.provider }

func (m *Manager) key(organizationID string) connection.Key {
	return connection.Key{OrganizationID: organizationID, Provider: m.provider.Type}
}

// BeginAuthorization returns the provider URL to send the user to. No record
// is written until the callback completes.
func (m *Manager) BeginAuthorization(ctx context.Context, organizationID, returnContext string) (string, error) {
	if organizationID == "" {
		return "", ErrMissingOrganization
	}
	nonce, err := ostate.GenerateNonce()
	if err != nil {
		return "", &ConnectionFailedError{Retryable: true, Err: err}
	}
	if err := m.nonces.Issue(ctx, nonce, organizationID, m.nonceTTL); err != nil {
		return "", &ConnectionFailedError{Retryable: true, Err: fmt.Errorf("issue nonce: %w", err)}
	}
	state := m.codec.Encode(ostate.State{
		Nonce:          nonce,
		OrganizationID: organizationID,
		ReturnContext:  SafeReturnContext(returnContext),
	})
	return m.provider.AuthCodeURL(m.cfg, state), nil
}

// ReturnContext reads the return path from a state value without consuming it.
func (m *Manager) ReturnContext(encodedState string) string {
	s, err := m.codec.Decode(encodedState)
	if err != nil {
		return ""
	}
	return SafeReturnContext(s.ReturnContext)
}

// Organization reads the organization a state value was issued for, or "" when
// the value does not verify.
func (m *Manager) Organization(encodedState string) string {
	s, err := m.codec.Decode(encodedState)
	if err != nil {
		return ""
	}
	return s.OrganizationID
}

// SafeReturnContext keeps only same-origin relative paths.
func SafeReturnContext(v string) string {
	if !strings.HasPrefix(v, "/") || strings.HasPrefix(v, "//") || strings.HasPrefix(v, "/\\") {
		return ""
	}
	if strings.ContainsAny(v, "\r\n") {
		return ""
	}
	return v
}

// CompleteAuthorization handles the provider callback. Nothing is written
// unless the state verifies and the code exchange succeeds. Completing again
// for the same organization replaces the tokens.
func (m *Manager) CompleteAuthorization(ctx context.Context, code, encodedState, providerAccountID string) (*connection.Connection, error) {
	st, err := m.codec.Decode(encodedState)
	if err != nil {
		return nil, ErrInvalidState
	}
	org, err := m.nonces.Consume(ctx, st.Nonce)
	if errors.Is(err, ostate.ErrNonceUnknown) {
		m.log.Info("oauth state replayed or expired", zap.String("organization_id", st.OrganizationID))
		return nil, ErrInvalidState
	}
	if err != nil {
		return nil, &ConnectionFailedError{Retryable: true, Err: fmt.Errorf("consume nonce: %w", err)}
	}
	if org != st.OrganizationID {
		return nil, ErrInvalidState
	}
	log := m.log.With(zap.String("organization_id", st.OrganizationID))
	if code == "" {
		metrics.TokenExchange(string(m.provider.Type), "denied")
		return nil, &ConnectionFailedError{Err: errors.New("authorization code missing")}
	}

	tokens, err := m.exchanger.ExchangeCode(ctx, code, m.cfg.RedirectURI)
	if err != nil {
		metrics.TokenExchange(string(m.provider.Type), "failed")
		retryable := true
		var te *oclient.TokenExchangeError
		if errors.As(err, &te) {
			retryable = te.Temporary()
			log.Debug("token exchange response", zap.Int("status", te.StatusCode), zap.String("body", te.Body))
		}
		log.Warn("token exchange failed", zap.Error(err), zap.Bool("retryable", retryable))
		return nil, &ConnectionFailedError{Retryable: retryable, Err: err}
	}
	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		metrics.TokenExchange(string(m.provider.Type), "failed")
		log.Warn("token exchange returned no usable tokens",
			zap.Bool("access_token", tokens.AccessToken != ""), zap.Bool("refresh_token", tokens.RefreshToken != ""))
		return nil, &ConnectionFailedError{Err: errors.New("provider returned incomplete tokens")}
	}
	tokens.ProviderAccountID = providerAccountID

	c := &connection.Connection{
		OrganizationID:    st.OrganizationID,
		Provider:          m.provider.Type,
		Connected:         true,
		ProviderAccountID: providerAccountID,
		Tokens:            *tokens,
	}
	if err := m.store.Save(ctx, c); err != nil {
		metrics.TokenExchange(string(m.provider.Type), "failed")
		log.Error("saving connection failed", zap.Error(err))
		return nil, &ConnectionFailedError{Retryable: true, Err: fmt.Errorf("save connection: %w", err)}
	}
	metrics.TokenExchange(string(m.provider.Type), "success")
	log.Info("integration connected", zap.String("provider_account_id", providerAccountID))
	return c, nil
}

// Connection returns the stored record, or ErrNotConnected.
func (m *Manager) Connection(ctx context.Context, organizationID string) (*connection.Connection, error) {
	c, err := m.store.Get(ctx, m.key(organizationID))
	if errors.Is(err, connection.ErrNotFound) {
		return nil, ErrNotConnected
	}
	return c, err
}

// Disconnect revokes at the provider on a best-effort basis and always
// removes the local record. Disconnecting twice is not an error.
func (m *Manager) Disconnect(ctx context.Context, organizationID string) error {
	if organizationID == "" {
		return ErrMissingOrganization
	}
	key := m.key(organizationID)
	log := m.log.With(zap.String("organization_id", organizationID))

	unlock, err := m.locker.Lock(ctx, refreshLockKey(key))
	if err != nil {
		return fmt.Errorf("lock connection: %w", err)
	}
	defer m.release(unlock, key)

	c, err := m.store.Get(connection.Uncached(ctx), key)
	if errors.Is(err, connection.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load connection: %w", err)
	}

	if c.Tokens.RefreshToken != "" {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.revokeTimeout)
		if err := m.exchanger.Revoke(rctx, c.Tokens.RefreshToken); err != nil {
			log.Warn("token revocation failed", zap.Error(err))
		}
		cancel()
	}
	if err := m.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete connection: %w", err)
	}
	log.Info("integration disconnected")
	return nil
}

func (m *Manager) release(unlock lock.Unlock, key connection.Key) {
	if err := unlock(context.Background()); err != nil {
		m.log.Warn("releasing connection lock failed", zap.String("key", key.String()), zap.Error(err))
	}
}

func refreshLockKey(key connection.Key) string {
	return "connection:" + key.String()
}
