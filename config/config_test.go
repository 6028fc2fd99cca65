package config

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolver_Resolve(t *testing.T) {
	r := Resolver{Prefix: "QUICKBOOKS_", Environment: map[string]string{
		"QUICKBOOKS_CLIENT_ID":     "id",
		"QUICKBOOKS_CLIENT_SECRET": "secret",
		"QUICKBOOKS_REDIRECT_URI":  "https://app.example.com/integrations/quickbooks/callback",
	}}
	cfg, err := r.Resolve()
	require.NoError(t, err)
	assert.Equal(t, "id", cfg.ClientID)
	assert.Equal(t, "secret", cfg.ClientSecret)
	assert.Equal(t, Sandbox, cfg.Environment)
	assert.True(t, r.IsConfigured())

	r.Environment["QUICKBOOKS_ENVIRONMENT"] = "Production"
	cfg, err = r.Resolve()
	require.NoError(t, err)
	assert.Equal(t, Production, cfg.Environment)
}

func TestResolver_Missing(t *testing.T) {
	r := Resolver{Prefix: "GUSTO_", Environment: map[string]string{
		"GUSTO_CLIENT_ID":     "  ",
		"GUSTO_CLIENT_SECRET": "secret",
	}}
	_, err := r.Resolve()
	require.Error(t, err)
	assert.False(t, r.IsConfigured())
	assert.True(t, errors.Is(err, ErrNotConfigured))

	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, []string{"GUSTO_CLIENT_ID", "GUSTO_REDIRECT_URI"}, cfgErr.Missing)
	assert.NotContains(t, err.Error(), "secret")
	assert.False(t, cfgErr.Unset())
}

func TestResolver_Unset(t *testing.T) {
	_, err := Resolver{Prefix: "GUSTO_", Environment: map[string]string{}}.Resolve()
	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.True(t, cfgErr.Unset())
}

func TestResolver_InvalidEnvironment(t *testing.T) {
	r := Resolver{Prefix: "GUSTO_", Environment: map[string]string{
		"GUSTO_CLIENT_ID":     "id",
		"GUSTO_CLIENT_SECRET": "secret",
		"GUSTO_REDIRECT_URI":  "https://x/cb",
		"GUSTO_ENVIRONMENT":   "staging",
	}}
	_, err := r.Resolve()
	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Empty(t, cfgErr.Missing)
	assert.Equal(t, []string{"GUSTO_ENVIRONMENT"}, cfgErr.Invalid)
}

func TestProviderConfig_Validate(t *testing.T) {
	assert.NoError(t, ProviderConfig{ClientID: "a", ClientSecret: "b", RedirectURI: "c", Environment: Sandbox}.Validate())
	assert.NoError(t, ProviderConfig{ClientID: "a", ClientSecret: "b", RedirectURI: "c"}.Validate())
	err := ProviderConfig{}.Validate()
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.Equal(t, "configuration error: missing CLIENT_ID, CLIENT_SECRET, REDIRECT_URI", err.Error())
	err = ProviderConfig{ClientID: "a", ClientSecret: "b", RedirectURI: "c", Environment: "staging"}.Validate()
	assert.Equal(t, "configuration error: invalid ENVIRONMENT", err.Error())
}

func TestProviderPrefix(t *testing.T) {
	assert.Equal(t, "QUICKBOOKS_", ProviderPrefix("quickbooks"))
}

func TestLoadApp(t *testing.T) {
	secret := strings.Repeat("s", 32)

	t.Run("memory store", func(t *testing.T) {
		cfg, err := LoadApp(map[string]string{
			"INTEGRATIONS_STORE":          "memory",
			"INTEGRATIONS_SESSION_SECRET": secret,
		})
		require.NoError(t, err)
		assert.Equal(t, ":8080", cfg.ListenAddr)
		assert.Equal(t, 5*time.Second, cfg.CacheTTL)
		assert.Equal(t, "integrations", cfg.SyncQueue)
	})

	t.Run("mongo store requires backends", func(t *testing.T) {
		_, err := LoadApp(map[string]string{"INTEGRATIONS_SESSION_SECRET": secret})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "INTEGRATIONS_MONGO_URI")
		assert.Contains(t, err.Error(), "INTEGRATIONS_REDIS_ADDR")
		assert.Contains(t, err.Error(), "INTEGRATIONS_ENCRYPTION_KEY")
		assert.Contains(t, err.Error(), "INTEGRATIONS_STATE_SECRET")
	})

	t.Run("mongo store requires state secret", func(t *testing.T) {
		base := map[string]string{
			"INTEGRATIONS_MONGO_URI":      "mongodb://localhost:27017",
			"INTEGRATIONS_REDIS_ADDR":     "localhost:6379",
			"INTEGRATIONS_ENCRYPTION_KEY": "a2V5",
			"INTEGRATIONS_SESSION_SECRET": secret,
		}
		_, err := LoadApp(base)
		assert.ErrorContains(t, err, "INTEGRATIONS_STATE_SECRET")

		base["INTEGRATIONS_STATE_SECRET"] = strings.Repeat("t", 32)
		cfg, err := LoadApp(base)
		require.NoError(t, err)
		assert.Equal(t, StoreMongo, cfg.Store)
	})

	t.Run("short session secret", func(t *testing.T) {
		_, err := LoadApp(map[string]string{
			"INTEGRATIONS_STORE":          "memory",
			"INTEGRATIONS_SESSION_SECRET": "short",
		})
		assert.ErrorContains(t, err, "at least 32 characters")
	})

	t.Run("unknown store", func(t *testing.T) {
		_, err := LoadApp(map[string]string{
			"INTEGRATIONS_STORE":          "postgres",
			"INTEGRATIONS_SESSION_SECRET": secret,
		})
		assert.ErrorContains(t, err, "INTEGRATIONS_STORE")
	})

	t.Run("cache ttl bound", func(t *testing.T) {
		_, err := LoadApp(map[string]string{
			"INTEGRATIONS_STORE":          "memory",
			"INTEGRATIONS_SESSION_SECRET": secret,
			"INTEGRATIONS_CACHE_TTL":      "1m",
		})
		assert.ErrorContains(t, err, "INTEGRATIONS_CACHE_TTL")
	})
}
