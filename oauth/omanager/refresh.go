package omanager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Seann-Moser/integrations/connection"
	"github.com/Seann-Moser/integrations/metrics"
	"github.com/Seann-Moser/integrations/oauth/oclient"
	"go.uber.org/zap"
)

const reasonRefreshRejected = "refresh token rejected by provider"

// AccessToken is a usable credential for provider API calls. Stale is set
// when refresh failed transiently and the previous, not yet expired, token is returned.
type AccessToken struct {
	Token             string
	ProviderAccountID string
	ExpiresAt         time.Time
	Stale             bool
}

func accessToken(c *connection.Connection) AccessToken {
	return AccessToken{
		Token:             c.Tokens.AccessToken,
		ProviderAccountID: c.ProviderAccountID,
		ExpiresAt:         c.Tokens.ExpiresAt,
	}
}

func (m *Manager) fresh(c *connection.Connection) bool {
	return m.now().Add(m.refreshBuffer).Before(c.Tokens.ExpiresAt)
}

// GetValidAccessToken returns a token that stays valid for at least the
// refresh buffer, refreshing first when needed. Concurrent callers for the
// same organization share one refresh. A caller whose ctx ends stops waiting
// but does not cancel the shared refresh.
func (m *Manager) GetValidAccessToken(ctx context.Context, organizationID string) (AccessToken, error) {
	if organizationID == "" {
		return AccessToken{}, ErrMissingOrganization
	}
	key := m.key(organizationID)
	c, err := m.store.Get(ctx, key)
	if errors.Is(err, connection.ErrNotFound) {
		return AccessToken{}, ErrNotConnected
	}
	if err != nil {
		return AccessToken{}, fmt.Errorf("%w: load connection: %w", ErrTransientRefresh, err)
	}
	if !c.Connected {
		return AccessToken{}, ErrReauthorizationRequired
	}
	if m.fresh(c) {
		return accessToken(c), nil
	}

	ch := m.flights.DoChan(key.String(), func() (interface{}, error) {
		return m.refresh(context.WithoutCancel(ctx), key)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return AccessToken{}, res.Err
		}
		return res.Val.(AccessToken), nil
	case <-ctx.Done():
		return AccessToken{}, ctx.Err()
	}
}

// refresh runs at most once at a time per key in this process and, through
// the locker, across instances.
func (m *Manager) refresh(parent context.Context, key connection.Key) (AccessToken, error) {
	ctx, cancel := context.WithTimeout(parent, m.refreshTimeout)
	defer cancel()
	provider := string(m.provider.Type)
	log := m.log.With(zap.String("organization_id", key.OrganizationID))

	unlock, err := m.locker.Lock(ctx, refreshLockKey(key))
	if err != nil {
		return AccessToken{}, fmt.Errorf("%w: lock connection: %w", ErrTransientRefresh, err)
	}
	defer m.release(unlock, key)

	// Another instance may have refreshed while we waited for the lock.
	c, err := m.store.Get(connection.Uncached(ctx), key)
	if errors.Is(err, connection.ErrNotFound) {
		return AccessToken{}, ErrNotConnected
	}
	if err != nil {
		return AccessToken{}, fmt.Errorf("%w: load connection: %w", ErrTransientRefresh, err)
	}
	if !c.Connected {
		return AccessToken{}, ErrReauthorizationRequired
	}
	if m.fresh(c) {
		metrics.TokenRefresh(provider, "skipped")
		return accessToken(c), nil
	}
	if c.Tokens.RefreshToken == "" {
		return AccessToken{}, m.disconnect(ctx, key, log, "refresh token missing")
	}

	tokens, err := m.exchanger.RefreshToken(ctx, c.Tokens.RefreshToken)
	if err != nil {
		var invalid *oclient.RefreshTokenInvalidError
		if errors.As(err, &invalid) {
			metrics.TokenRefresh(provider, "invalid")
			log.Debug("refresh rejected", zap.Int("status", invalid.StatusCode), zap.String("body", invalid.Body))
			return AccessToken{}, m.disconnect(ctx, key, log, reasonRefreshRejected)
		}
		if m.now().Before(c.Tokens.ExpiresAt) {
			metrics.TokenRefresh(provider, "stale")
			log.Warn("token refresh failed, using current token until expiry",
				zap.Time("expires_at", c.Tokens.ExpiresAt), zap.Error(err))
			tok := accessToken(c)
			tok.Stale = true
			return tok, nil
		}
		metrics.TokenRefresh(provider, "transient")
		log.Warn("token refresh failed", zap.Error(err))
		return AccessToken{}, fmt.Errorf("%w: %w", ErrTransientRefresh, err)
	}

	tokens.ProviderAccountID = c.ProviderAccountID
	if err := m.store.UpdateTokens(ctx, key, *tokens); err != nil {
		metrics.TokenRefresh(provider, "transient")
		log.Error("persisting refreshed tokens failed", zap.Error(err))
		return AccessToken{}, fmt.Errorf("%w: save tokens: %w", ErrTransientRefresh, err)
	}
	metrics.TokenRefresh(provider, "success")
	log.Debug("access token refreshed", zap.Time("expires_at", tokens.ExpiresAt))
	c.Tokens = *tokens
	return accessToken(c), nil
}

// disconnect keeps the record so history survives and the UI shows "reconnect".
func (m *Manager) disconnect(ctx context.Context, key connection.Key, log *zap.Logger, reason string) error {
	log.Warn("connection requires reauthorization", zap.String("reason", reason))
	if err := m.store.MarkDisconnected(ctx, key, reason); err != nil && !errors.Is(err, connection.ErrNotFound) {
		log.Error("marking connection disconnected failed", zap.Error(err))
	}
	return ErrReauthorizationRequired
}
