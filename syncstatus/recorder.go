package syncstatus

import (
	"context"
	"errors"
	"fmt"

	"github.com/Seann-Moser/integrations/connection"
	"go.uber.org/zap"
)

// Recorder is what sync workers report to. It appends history and keeps the
// sync fields on the connection record current.
type Recorder struct {
	conns    connection.Store
	logs     LogStore
	requests RequestStore
	opts     options
}

// NewRecorder accepts a nil RequestStore for deployments without manual triggers.
func NewRecorder(conns connection.Store, logs LogStore, requests RequestStore, opts ...Option) *Recorder {
	return &Recorder{conns: conns, logs: logs, requests: requests, opts: buildOptions(opts)}
}

// Start marks a request as picked up by a worker.
func (r *Recorder) Start(ctx context.Context, requestID string) error {
	if r.requests == nil {
		return nil
	}
	return r.requests.SetStatus(ctx, requestID, RequestRunning, r.opts.now())
}

// Record appends e and updates the connection's sync state. requestID, when
// set, is the manual request this run answered. A missing connection is not
// an error; the history is still kept.
func (r *Recorder) Record(ctx context.Context, e SyncLogEntry, requestID string) (connection.SyncStatus, error) {
	if e.CompletedAt.IsZero() {
		e.CompletedAt = r.opts.now().UTC()
	}
	if e.SyncType == "" {
		e.SyncType = SyncTypeScheduled
		if requestID != "" {
			e.SyncType = SyncTypeManual
		}
	}
	if err := e.Validate(); err != nil {
		return "", err
	}
	key := e.Key()
	log := r.opts.log.With(zap.String("organization_id", key.OrganizationID), zap.String("provider", string(key.Provider)))

	if err := r.logs.Append(ctx, &e); err != nil {
		return "", fmt.Errorf("append sync log: %w", err)
	}
	if requestID != "" && r.requests != nil {
		status := RequestCompleted
		if e.Status == StatusFailed {
			status = RequestFailed
		}
		if err := r.requests.SetStatus(ctx, requestID, status, e.CompletedAt); err != nil {
			log.Warn("finishing sync request failed", zap.String("request_id", requestID), zap.Error(err))
		}
	}

	c, err := r.conns.Get(ctx, key)
	if errors.Is(err, connection.ErrNotFound) {
		log.Info("sync recorded for missing connection")
		return connection.SyncStatusNeverSynced, nil
	}
	if err != nil {
		return "", fmt.Errorf("load connection: %w", err)
	}
	recent, err := r.logs.Recent(ctx, key, HistoryWindow)
	if err != nil {
		return "", fmt.Errorf("read sync logs: %w", err)
	}

	now := r.opts.now()
	last := e.CompletedAt.UTC()
	if c.LastSyncAt != nil && c.LastSyncAt.After(last) {
		last = *c.LastSyncAt
	}
	c.LastSyncAt = &last
	items, failures := rollup(recent, now)
	state := connection.SyncState{
		LastSyncAt:         last,
		ItemsSyncedLast24h: items,
		ErrorCount:         failures,
		LastError:          e.Error,
		SyncStatus:         Evaluate(c, recent, now),
	}
	if e.Status == StatusSuccess {
		state.LastError = ""
	}
	if err := r.conns.UpdateSyncState(ctx, key, state); err != nil {
		if errors.Is(err, connection.ErrNotFound) {
			return connection.SyncStatusNeverSynced, nil
		}
		return "", fmt.Errorf("update sync state: %w", err)
	}
	log.Debug("sync recorded", zap.String("status", string(e.Status)), zap.String("health", string(state.SyncStatus)))
	return state.SyncStatus, nil
}
