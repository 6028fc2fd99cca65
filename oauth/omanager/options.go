package omanager

import (
	"time"

	"github.com/Seann-Moser/integrations/lock"
	"github.com/Seann-Moser/integrations/oauth/oclient"
	"github.com/Seann-Moser/integrations/oauth/ostate"
	"go.uber.org/zap"
)

const (
	DefaultRefreshBuffer  = 5 * time.Minute
	DefaultRefreshTimeout = 20 * time.Second
	DefaultRevokeTimeout  = 5 * time.Second
)

type Option func(*Manager)

// WithExchanger replaces the x/oauth2 client, mostly for tests.
func WithExchanger(e oclient.Exchanger) Option {
	return func(m *Manager) { m.exchanger = e }
}

// WithLocker serializes refreshes across instances. The default only covers this process.
func WithLocker(l lock.Locker) Option {
	return func(m *Manager) { m.locker = l }
}

// WithNonceStore shares single-use nonces across instances.
func WithNonceStore(s ostate.NonceStore) Option {
	return func(m *Manager) { m.nonces = s }
}

// WithStateSecret signs state values. Every instance behind one redirect URI
// needs the same secret; without one a random per-process key is used.
func WithStateSecret(secret []byte) Option {
	return func(m *Manager) { m.stateSecret = secret }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.log = l }
}

func WithRefreshBuffer(d time.Duration) Option {
	return func(m *Manager) { m.refreshBuffer = d }
}

func WithRefreshTimeout(d time.Duration) Option {
	return func(m *Manager) { m.refreshTimeout = d }
}

func WithRevokeTimeout(d time.Duration) Option {
	return func(m *Manager) { m.revokeTimeout = d }
}

func WithNonceTTL(d time.Duration) Option {
	return func(m *Manager) { m.nonceTTL = d }
}
