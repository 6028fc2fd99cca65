package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	StoreMongo  = "mongo"
	StoreMemory = "memory"
)

// App is the process configuration for cmd/server.
type App struct {
	ListenAddr      string        `env:"INTEGRATIONS_LISTEN_ADDR" envDefault:":8080"`
	Store           string        `env:"INTEGRATIONS_STORE" envDefault:"mongo"`
	MongoURI        string        `env:"INTEGRATIONS_MONGO_URI"`
	MongoDatabase   string        `env:"INTEGRATIONS_MONGO_DATABASE" envDefault:"integrations"`
	RedisAddr       string        `env:"INTEGRATIONS_REDIS_ADDR"`
	RedisPassword   string        `env:"INTEGRATIONS_REDIS_PASSWORD"`
	RedisDB         int           `env:"INTEGRATIONS_REDIS_DB" envDefault:"0"`
	EncryptionKey   string        `env:"INTEGRATIONS_ENCRYPTION_KEY"`
	SessionSecret   string        `env:"INTEGRATIONS_SESSION_SECRET"`
	StateSecret     string        `env:"INTEGRATIONS_STATE_SECRET"`
	LogLevel        string        `env:"INTEGRATIONS_LOG_LEVEL" envDefault:"info"`
	CacheTTL        time.Duration `env:"INTEGRATIONS_CACHE_TTL" envDefault:"5s"`
	SyncQueue       string        `env:"INTEGRATIONS_SYNC_QUEUE" envDefault:"integrations"`
	ShutdownTimeout time.Duration `env:"INTEGRATIONS_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	Dev             bool          `env:"INTEGRATIONS_DEV" envDefault:"false"`
}

// LoadApp parses and validates process settings. A nil environment reads the process environment.
func LoadApp(environment map[string]string) (*App, error) {
	cfg := &App{}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: environment}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.Store = strings.ToLower(strings.TrimSpace(cfg.Store))

	var missing []string
	switch cfg.Store {
	case StoreMongo:
		if cfg.MongoURI == "" {
			missing = append(missing, "INTEGRATIONS_MONGO_URI")
		}
		if cfg.RedisAddr == "" {
			missing = append(missing, "INTEGRATIONS_REDIS_ADDR")
		}
		if cfg.EncryptionKey == "" {
			missing = append(missing, "INTEGRATIONS_ENCRYPTION_KEY")
		}
		// Every instance behind the redirect URI must verify the same state.
		if cfg.StateSecret == "" {
			missing = append(missing, "INTEGRATIONS_STATE_SECRET")
		}
	case StoreMemory:
	default:
		return nil, fmt.Errorf("INTEGRATIONS_STORE must be %q or %q (got %q)", StoreMongo, StoreMemory, cfg.Store)
	}
	if cfg.SessionSecret == "" {
		missing = append(missing, "INTEGRATIONS_SESSION_SECRET")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%s is required", strings.Join(missing, ", "))
	}
	if len(cfg.SessionSecret) < 32 {
		return nil, fmt.Errorf("INTEGRATIONS_SESSION_SECRET must be at least 32 characters long (got %d)", len(cfg.SessionSecret))
	}
	if cfg.StateSecret != "" && len(cfg.StateSecret) < 32 {
		return nil, fmt.Errorf("INTEGRATIONS_STATE_SECRET must be at least 32 characters long (got %d)", len(cfg.StateSecret))
	}
	if cfg.CacheTTL <= 0 || cfg.CacheTTL > 5*time.Second {
		return nil, errors.New("INTEGRATIONS_CACHE_TTL must be between 0s and 5s")
	}
	return cfg, nil
}
