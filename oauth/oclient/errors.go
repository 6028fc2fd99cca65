package oclient

import (
	"fmt"
	"net/http"
)

// Response bodies are kept for debug logging only and never appear in Error().

// TokenExchangeError is a failed authorization code exchange.
type TokenExchangeError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *TokenExchangeError) Error() string {
	if e.StatusCode == 0 {
		return "token exchange failed: network error"
	}
	return fmt.Sprintf("token exchange failed: status %d", e.StatusCode)
}

func (e *TokenExchangeError) Unwrap() error { return e.Err }

// Temporary reports whether retrying the connect flow may succeed.
func (e *TokenExchangeError) Temporary() bool {
	return isTemporaryStatus(e.StatusCode)
}

// RefreshTokenInvalidError means the provider rejected the refresh token; the
// user has to authorize again.
type RefreshTokenInvalidError struct {
	StatusCode int
	Body       string
}

func (e *RefreshTokenInvalidError) Error() string {
	return fmt.Sprintf("refresh token rejected: status %d", e.StatusCode)
}

// TransientRefreshError is any other refresh failure. No state should change.
type TransientRefreshError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *TransientRefreshError) Error() string {
	if e.StatusCode == 0 {
		return "token refresh failed: network error"
	}
	return fmt.Sprintf("token refresh failed: status %d", e.StatusCode)
}

func (e *TransientRefreshError) Unwrap() error { return e.Err }

type RevocationError struct {
	StatusCode int
	Err        error
}

func (e *RevocationError) Error() string {
	if e.StatusCode == 0 {
		return "token revocation failed: network error"
	}
	return fmt.Sprintf("token revocation failed: status %d", e.StatusCode)
}

func (e *RevocationError) Unwrap() error { return e.Err }

func isTemporaryStatus(code int) bool {
	return code == 0 || code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
