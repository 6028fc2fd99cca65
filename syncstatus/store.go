package syncstatus

import (
	"context"
	"time"

	"github.com/Seann-Moser/integrations/connection"
)

// LogStore is append-only sync history.
type LogStore interface {
	// Append stores e, assigning an ID when empty.
	Append(ctx context.Context, e *SyncLogEntry) error
	// Recent returns at most limit entries for key, newest StartedAt first.
	Recent(ctx context.Context, key connection.Key, limit int) ([]SyncLogEntry, error)
}

// RequestStore holds manual sync requests.
type RequestStore interface {
	Create(ctx context.Context, r *SyncRequest) error
	Get(ctx context.Context, id string) (*SyncRequest, error)
	// Active returns the newest pending or running request for key requested
	// at or after since, or ErrRequestNotFound.
	Active(ctx context.Context, key connection.Key, since time.Time) (*SyncRequest, error)
	// SetStatus moves a request along. Terminal statuses record at as FinishedAt.
	SetStatus(ctx context.Context, id string, status RequestStatus, at time.Time) error
}
