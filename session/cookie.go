package session

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

var SameSite = http.SameSiteLaxMode

// Encode signs the identity as "payload|signature".
func Encode(i *Identity, secret []byte) (string, error) {
	data, err := json.Marshal(i)
	if err != nil {
		return "", err
	}
	value := base64.RawURLEncoding.EncodeToString(data)
	return value + "|" + computeHMAC(value, secret), nil
}

// Decode verifies a signed value and rejects expired or incomplete identities.
func Decode(v string, secret []byte, now time.Time) (*Identity, error) {
	value, sig, ok := strings.Cut(v, "|")
	if !ok || strings.Contains(sig, "|") {
		return nil, ErrInvalidSession
	}
	if !validateHMAC(value, sig, secret) {
		return nil, ErrInvalidSession
	}
	data, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, ErrInvalidSession
	}
	var i Identity
	if err := json.Unmarshal(data, &i); err != nil {
		return nil, ErrInvalidSession
	}
	if i.UserID == "" || i.OrganizationID == "" {
		return nil, ErrInvalidSession
	}
	if i.ExpiresAt > 0 && now.Unix() > i.ExpiresAt {
		return nil, ErrExpired
	}
	return &i, nil
}

// SetCookie writes the signed identity as a host cookie, or a domain cookie
// when i.Domain is set.
func SetCookie(w http.ResponseWriter, i *Identity, secret []byte) error {
	v, err := Encode(i, secret)
	if err != nil {
		return err
	}
	c := &http.Cookie{
		Name:     CookieName,
		Value:    v,
		Path:     "/",
		Domain:   i.Domain,
		HttpOnly: true,
		Secure:   true,
		SameSite: SameSite,
	}
	if i.ExpiresAt > 0 {
		c.Expires = time.Unix(i.ExpiresAt, 0)
	}
	http.SetCookie(w, c)
	return nil
}

func ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: SameSite,
	})
}
