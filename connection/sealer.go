package connection

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrInvalidKey is returned when an encryption key has the wrong length.
var ErrInvalidKey = errors.New("encryption key must be 32 bytes")

// Sealer encrypts token material before it leaves the process.
type Sealer interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(ciphertext []byte) ([]byte, error)
}

// XChaChaSealer seals with XChaCha20-Poly1305. The random nonce is prefixed to the ciphertext.
type XChaChaSealer struct {
	key []byte
}

var _ Sealer = &XChaChaSealer{}

func NewXChaChaSealer(key []byte) (*XChaChaSealer, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, ErrInvalidKey
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &XChaChaSealer{key: k}, nil
}

// NewXChaChaSealerFromBase64 accepts a standard base64 encoded 32 byte key.
func NewXChaChaSealerFromBase64(encoded string) (*XChaChaSealer, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode encryption key: %w", err)
	}
	return NewXChaChaSealer(key)
}

func (s *XChaChaSealer) Seal(plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (s *XChaChaSealer) Open(ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < aead.NonceSize()+aead.Overhead() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, box := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
	return aead.Open(nil, nonce, box, nil)
}

// sealString returns s unchanged when no sealer is configured.
func sealString(sealer Sealer, s string) (string, error) {
	if sealer == nil || s == "" {
		return s, nil
	}
	out, err := sealer.Seal([]byte(s))
	if err != nil {
		return "", err
	}
	return base64.RawStdEncoding.EncodeToString(out), nil
}

func openString(sealer Sealer, s string) (string, error) {
	if sealer == nil || s == "" {
		return s, nil
	}
	raw, err := base64.RawStdEncoding.DecodeString(s)
	if err != nil {
		return "", fmt.Errorf("decode sealed value: %w", err)
	}
	out, err := sealer.Open(raw)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
