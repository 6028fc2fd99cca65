package session

import (
	"context"
	"errors"
)

type contextKey string

const identityKey contextKey = "INTEGRATIONS_IDENTITY"

const CookieName = "session"

var (
	ErrNoSession      = errors.New("no session")
	ErrInvalidSession = errors.New("invalid session")
	ErrExpired        = errors.New("session expired")
)

// Identity is the authenticated caller. Sign-in happens elsewhere; this
// service only verifies the signed value and needs the organization.
type Identity struct {
	UserID         string `json:"user_id"`
	OrganizationID string `json:"organization_id"`
	ExpiresAt      int64  `json:"expires_at"`
	Domain         string `json:"domain,omitempty"`
}

// WithContext attaches the identity to ctx.
func (i *Identity) WithContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, identityKey, i)
}

func FromContext(ctx context.Context) (*Identity, error) {
	i, ok := ctx.Value(identityKey).(*Identity)
	if !ok || i == nil {
		return nil, ErrNoSession
	}
	return i, nil
}
