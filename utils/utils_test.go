package utils

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestCookieDomain(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"localhost:8080", ""},
		{"127.0.0.1:8080", ""},
		{"[::1]:8080", ""},
		{"example.com", "example.com"},
		{"api.example.com", "example.com"},
		{"API.Dev.Example.com.", "example.com"},
		{"api.example.com:443", "example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.Host = tt.host
			assert.Equal(t, tt.want, CookieDomain(r))
		})
	}
}

func TestDocumentHelpers(t *testing.T) {
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	assert.Equal(t, "", String(nil))
	assert.Equal(t, "42", String(int32(42)))
	assert.True(t, Bool("true"))
	assert.False(t, Bool(1))
	assert.Equal(t, 7, Int("7"))
	assert.Equal(t, 7, Int(7.9))
	assert.Equal(t, 0, Int("seven"))

	for name, v := range map[string]interface{}{
		"datetime": primitive.NewDateTimeFromTime(at),
		"time":     at.In(time.FixedZone("x", 3600)),
		"millis":   at.UnixMilli(),
		"float":    float64(at.UnixMilli()),
		"rfc3339":  at.Format(time.RFC3339),
	} {
		got, ok := Time(v)
		assert.True(t, ok, name)
		assert.True(t, at.Equal(got), name)
		assert.Equal(t, time.UTC, got.Location(), name)
	}
	_, ok := Time("yesterday")
	assert.False(t, ok)
	_, ok = Time(nil)
	assert.False(t, ok)

	assert.Equal(t, []string{"invoice", "customer"}, Strings(primitive.A{"invoice", "", "customer"}))
	assert.Equal(t, []string{"invoice", "customer"}, Strings("invoice, customer,"))
	assert.Nil(t, Strings(""))
	assert.Nil(t, Strings(3))
}
