// Package session verifies the signed identity the surrounding product
// issues and exposes it to handlers through the request context.
package session

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/Seann-Moser/integrations/utils"
	"go.uber.org/zap"
)

type Client struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	log    *zap.Logger
}

func NewClient(secret []byte, ttl time.Duration, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{secret: secret, ttl: ttl, now: time.Now, log: log}
}

// Authenticate reads the session cookie, falling back to a bearer token
// carrying the same signed value for service callers.
func (c *Client) Authenticate(r *http.Request) (*Identity, error) {
	if ck, err := r.Cookie(CookieName); err == nil {
		return Decode(ck.Value, c.secret, c.now())
	}
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return Decode(strings.TrimSpace(auth[7:]), c.secret, c.now())
	}
	return nil, ErrNoSession
}

// Issue signs in userID for organizationID. It backs development logins;
// production sessions come from the main application.
func (c *Client) Issue(w http.ResponseWriter, r *http.Request, userID, organizationID string) (*Identity, error) {
	i := &Identity{
		UserID:         userID,
		OrganizationID: organizationID,
		ExpiresAt:      c.now().Add(c.ttl).Unix(),
		Domain:         utils.CookieDomain(r),
	}
	if err := SetCookie(w, i, c.secret); err != nil {
		return nil, err
	}
	return i, nil
}

// Middleware rejects requests without a valid identity.
func (c *Client) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		i, err := c.Authenticate(r)
		if err != nil {
			c.log.Debug("unauthenticated request", zap.String("path", r.URL.Path), zap.Error(err))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "authentication required"})
			return
		}
		next.ServeHTTP(w, r.WithContext(i.WithContext(r.Context())))
	})
}
