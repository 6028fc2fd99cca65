package oprovider

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
)

// GenerateCodeChallenge returns the S256 code_challenge for the given verifier.
func GenerateCodeChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// validateCodeVerifier checks a token request against the challenge stored with its code.
func validateCodeVerifier(method, challenge, verifier string) bool {
	switch method {
	case "S256":
		return subtle.ConstantTimeCompare([]byte(GenerateCodeChallenge(verifier)), []byte(challenge)) == 1
	case "plain", "":
		return subtle.ConstantTimeCompare([]byte(verifier), []byte(challenge)) == 1
	}
	return false
}
