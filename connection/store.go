package connection

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no connection exists for a key.
var ErrNotFound = errors.New("connection not found")

// Store persists one Connection per Key. It carries no business logic.
// Implementations must tolerate concurrent readers; writers for the token
// fields are serialized by the lifecycle manager.
type Store interface {
	// Get returns the connection or ErrNotFound.
	Get(ctx context.Context, key Key) (*Connection, error)

	// Save upserts the lifecycle-owned fields of c. CreatedAt is only set on insert
	// and sync-owned fields of an existing record are left untouched.
	Save(ctx context.Context, c *Connection) error

	// UpdateTokens replaces the token fields and UpdatedAt only.
	UpdateTokens(ctx context.Context, key Key, tokens TokenSet) error

	// MarkDisconnected sets Connected=false and records reason as LastError,
	// keeping the record so history and health survive.
	MarkDisconnected(ctx context.Context, key Key, reason string) error

	// UpdateSyncState writes the sync-owned fields.
	UpdateSyncState(ctx context.Context, key Key, state SyncState) error

	// Delete removes the record. Deleting an absent record is not an error.
	Delete(ctx context.Context, key Key) error
}
