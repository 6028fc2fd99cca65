// Package syncstatus records sync activity for a connection and derives its
// health. It hands manual sync requests to a worker but never performs the
// business synchronization itself.
package syncstatus

import (
	"fmt"
	"time"

	"github.com/Seann-Moser/integrations/connection"
)

// LogStatus is the outcome of one sync run.
type LogStatus string

const (
	StatusSuccess LogStatus = "success"
	StatusPartial LogStatus = "partial"
	StatusFailed  LogStatus = "failed"
)

func (s LogStatus) Valid() bool {
	switch s {
	case StatusSuccess, StatusPartial, StatusFailed:
		return true
	}
	return false
}

type SyncType string

const (
	SyncTypeManual    SyncType = "manual"
	SyncTypeScheduled SyncType = "scheduled"
	SyncTypeWebhook   SyncType = "webhook"
)

func (t SyncType) Valid() bool {
	switch t {
	case SyncTypeManual, SyncTypeScheduled, SyncTypeWebhook:
		return true
	}
	return false
}

type Direction string

const (
	DirectionPush          Direction = "push"
	DirectionPull          Direction = "pull"
	DirectionBidirectional Direction = "bidirectional"
)

func (d Direction) Valid() bool {
	switch d {
	case DirectionPush, DirectionPull, DirectionBidirectional:
		return true
	}
	return false
}

// RequestStatus tracks a sync request from trigger to worker completion.
type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestRunning   RequestStatus = "running"
	RequestCompleted RequestStatus = "completed"
	RequestFailed    RequestStatus = "failed"
)

func (s RequestStatus) Active() bool {
	return s == RequestPending || s == RequestRunning
}

// SyncLogEntry is one immutable row of sync history.
type SyncLogEntry struct {
	ID             string                  `json:"id"`
	OrganizationID string                  `json:"organizationId"`
	Provider       connection.ProviderType `json:"provider"`
	Status         LogStatus               `json:"status"`
	StartedAt      time.Time               `json:"startedAt"`
	CompletedAt    time.Time               `json:"completedAt"`
	ItemsSynced    int                     `json:"itemsSynced"`
	ItemsFailed    int                     `json:"itemsFailed"`
	SyncType       SyncType                `json:"syncType"`
	Direction      Direction               `json:"direction"`
	EntityTypes    []string                `json:"entityTypes,omitempty"`
	Error          string                  `json:"error,omitempty"`
}

func (e *SyncLogEntry) Key() connection.Key {
	return connection.Key{OrganizationID: e.OrganizationID, Provider: e.Provider}
}

// Duration is CompletedAt - StartedAt, never negative.
func (e *SyncLogEntry) Duration() time.Duration {
	d := e.CompletedAt.Sub(e.StartedAt)
	if d < 0 {
		return 0
	}
	return d
}

func (e *SyncLogEntry) Validate() error {
	switch {
	case e.OrganizationID == "":
		return fmt.Errorf("%w: %w", ErrInvalidEntry, ErrMissingOrganization)
	case e.Provider == "":
		return fmt.Errorf("%w: provider is required", ErrInvalidEntry)
	case !e.Status.Valid():
		return fmt.Errorf("%w: unknown status %q", ErrInvalidEntry, e.Status)
	case e.StartedAt.IsZero():
		return fmt.Errorf("%w: started_at is required", ErrInvalidEntry)
	case e.CompletedAt.Before(e.StartedAt):
		return fmt.Errorf("%w: completed_at precedes started_at", ErrInvalidEntry)
	case e.ItemsSynced < 0 || e.ItemsFailed < 0:
		return fmt.Errorf("%w: item counts must not be negative", ErrInvalidEntry)
	}
	return nil
}

// SyncHealthSummary is derived on read, never stored.
type SyncHealthSummary struct {
	Status             connection.SyncStatus `json:"status"`
	LastSyncAt         *time.Time            `json:"lastSyncAt,omitempty"`
	ItemsSyncedLast24h int                   `json:"itemsSyncedLast24h"`
	ErrorCount         int                   `json:"errorCount"`
	LastError          string                `json:"lastError,omitempty"`
}

type SyncHistorySummary struct {
	TotalSyncs             int     `json:"totalSyncs"`
	SuccessfulSyncs        int     `json:"successfulSyncs"`
	FailedSyncs            int     `json:"failedSyncs"`
	PartialSyncs           int     `json:"partialSyncs"`
	LastWeekSyncs          int     `json:"lastWeekSyncs"`
	AverageDurationSeconds float64 `json:"averageDurationSeconds"`
}

// SyncRequest is a manual sync waiting for, or handled by, a worker.
type SyncRequest struct {
	ID             string                  `json:"id"`
	OrganizationID string                  `json:"organizationId"`
	Provider       connection.ProviderType `json:"provider"`
	Direction      Direction               `json:"direction"`
	EntityTypes    []string                `json:"entityTypes,omitempty"`
	SyncType       SyncType                `json:"syncType"`
	Status         RequestStatus           `json:"status"`
	RequestedBy    string                  `json:"requestedBy,omitempty"`
	RequestedAt    time.Time               `json:"requestedAt"`
	FinishedAt     *time.Time              `json:"finishedAt,omitempty"`
}

func (r *SyncRequest) Key() connection.Key {
	return connection.Key{OrganizationID: r.OrganizationID, Provider: r.Provider}
}
