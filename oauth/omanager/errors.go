package omanager

import (
	"errors"

	"github.com/Seann-Moser/integrations/config"
	"github.com/Seann-Moser/integrations/oauth/ostate"
)

var (
	ErrNotConfigured           = config.ErrNotConfigured
	ErrInvalidState            = ostate.ErrInvalidState
	ErrConnectionFailed        = errors.New("connection failed")
	ErrNotConnected            = errors.New("integration not connected")
	ErrReauthorizationRequired = errors.New("reauthorization required")
	ErrTransientRefresh        = errors.New("token refresh failed temporarily")
	ErrMissingOrganization     = errors.New("organization id is required")
)

// ConnectionFailedError is an authorization that could not be completed.
// Retryable is true when the provider or a backend was unavailable.
type ConnectionFailedError struct {
	Retryable bool
	Err       error
}

func (e *ConnectionFailedError) Error() string {
	if e.Err == nil {
		return ErrConnectionFailed.Error()
	}
	return ErrConnectionFailed.Error() + ": " + e.Err.Error()
}

func (e *ConnectionFailedError) Unwrap() error { return e.Err }

func (e *ConnectionFailedError) Is(target error) bool {
	return target == ErrConnectionFailed
}

const (
	MessageNotConfigured = "integration not configured"
	MessageTryAgain      = "connection failed, try again"
	MessageReconnect     = "reconnection required"
)

// UserMessage maps any error from this package to one of three user-facing
// messages. Provider responses never reach the user.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotConfigured):
		return MessageNotConfigured
	case errors.Is(err, ErrReauthorizationRequired), errors.Is(err, ErrNotConnected):
		return MessageReconnect
	default:
		return MessageTryAgain
	}
}
