package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

func computeHMAC(message string, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(message))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func validateHMAC(message, sig string, secret []byte) bool {
	return hmac.Equal([]byte(sig), []byte(computeHMAC(message, secret)))
}
