package connection

import "context"

// MockStore provides customizable hooks for testing Store consumers.
type MockStore struct {
	GetFunc              func(ctx context.Context, key Key) (*Connection, error)
	SaveFunc             func(ctx context.Context, c *Connection) error
	UpdateTokensFunc     func(ctx context.Context, key Key, tokens TokenSet) error
	MarkDisconnectedFunc func(ctx context.Context, key Key, reason string) error
	UpdateSyncStateFunc  func(ctx context.Context, key Key, state SyncState) error
	DeleteFunc           func(ctx context.Context, key Key) error
}

var _ Store = (*MockStore)(nil)

// Get calls GetFunc if set, otherwise returns ErrNotFound
func (m *MockStore) Get(ctx context.Context, key Key) (*Connection, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}
	return nil, ErrNotFound
}

// Save calls SaveFunc if set, otherwise returns nil
func (m *MockStore) Save(ctx context.Context, c *Connection) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, c)
	}
	return nil
}

// UpdateTokens calls UpdateTokensFunc if set, otherwise returns nil
func (m *MockStore) UpdateTokens(ctx context.Context, key Key, tokens TokenSet) error {
	if m.UpdateTokensFunc != nil {
		return m.UpdateTokensFunc(ctx, key, tokens)
	}
	return nil
}

// MarkDisconnected calls MarkDisconnectedFunc if set, otherwise returns nil
func (m *MockStore) MarkDisconnected(ctx context.Context, key Key, reason string) error {
	if m.MarkDisconnectedFunc != nil {
		return m.MarkDisconnectedFunc(ctx, key, reason)
	}
	return nil
}

// UpdateSyncState calls UpdateSyncStateFunc if set, otherwise returns nil
func (m *MockStore) UpdateSyncState(ctx context.Context, key Key, state SyncState) error {
	if m.UpdateSyncStateFunc != nil {
		return m.UpdateSyncStateFunc(ctx, key, state)
	}
	return nil
}

// Delete calls DeleteFunc if set, otherwise returns nil
func (m *MockStore) Delete(ctx context.Context, key Key) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, key)
	}
	return nil
}
