// Package ostate encodes the opaque value carried through an OAuth redirect
// and tracks nonces so a captured authorization URL cannot be replayed.
package ostate

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
)

// ErrInvalidState is returned for any state value that fails to decode or verify.
var ErrInvalidState = errors.New("invalid oauth state")

const NonceBytes = 32

// State is the round-trip value. It is never persisted.
type State struct {
	Nonce          string `json:"nonce"`
	OrganizationID string `json:"organizationId"`
	ReturnContext  string `json:"returnContext,omitempty"`
}

var b64 = base64.RawURLEncoding.Strict()

// Codec encodes states. With a secret, the encoded payload is followed by
// "." and an HMAC-SHA256 signature over it.
type Codec struct {
	secret []byte
}

// NewCodec returns a signing codec. An empty secret yields the structural codec.
func NewCodec(secret []byte) *Codec {
	return &Codec{secret: secret}
}

var plain = &Codec{}

// Encode is the unsigned structural encoding.
func Encode(s State) string { return plain.Encode(s) }

// Decode reverses Encode.
func Decode(v string) (State, error) { return plain.Decode(v) }

func (c *Codec) Encode(s State) string {
	raw, _ := json.Marshal(s)
	payload := b64.EncodeToString(raw)
	if len(c.secret) == 0 {
		return payload
	}
	return payload + "." + c.sign(payload)
}

func (c *Codec) Decode(v string) (State, error) {
	payload := v
	if len(c.secret) > 0 {
		i := strings.LastIndexByte(v, '.')
		if i < 0 {
			return State{}, ErrInvalidState
		}
		var sig string
		payload, sig = v[:i], v[i+1:]
		if !hmac.Equal([]byte(sig), []byte(c.sign(payload))) {
			return State{}, ErrInvalidState
		}
	}
	raw, err := b64.DecodeString(payload)
	if err != nil {
		return State{}, ErrInvalidState
	}
	var s State
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil || dec.More() {
		return State{}, ErrInvalidState
	}
	// Reject any input that is not the canonical encoding of what it decodes to.
	if c.Encode(s) != v {
		return State{}, ErrInvalidState
	}
	if s.Nonce == "" || s.OrganizationID == "" {
		return State{}, ErrInvalidState
	}
	return s, nil
}

func (c *Codec) sign(payload string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(payload))
	return b64.EncodeToString(mac.Sum(nil))
}

// GenerateNonce returns 32 random bytes from the system CSPRNG, hex encoded.
func GenerateNonce() (string, error) {
	b := make([]byte, NonceBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
