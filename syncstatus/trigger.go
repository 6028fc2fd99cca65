package syncstatus

import (
	"context"
	"errors"
	"fmt"

	"github.com/Seann-Moser/integrations/connection"
	"github.com/Seann-Moser/integrations/metrics"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type SyncInput struct {
	OrganizationID string
	Provider       connection.ProviderType
	Direction      Direction
	EntityTypes    []string
	RequestedBy    string
}

// Trigger validates and records manual sync requests. It never waits for
// the sync itself.
type Trigger struct {
	conns      connection.Store
	requests   RequestStore
	dispatcher Dispatcher
	opts       options
}

func NewTrigger(conns connection.Store, requests RequestStore, dispatcher Dispatcher, opts ...Option) *Trigger {
	t := &Trigger{conns: conns, requests: requests, dispatcher: dispatcher, opts: buildOptions(opts)}
	if t.dispatcher == nil {
		t.dispatcher = LogDispatcher{Log: t.opts.log}
	}
	return t
}

// TriggerSync writes a pending request and hands it to the dispatcher. An
// empty direction means bidirectional. When a request is already active for
// the connection it is returned together with ErrSyncInProgress.
func (t *Trigger) TriggerSync(ctx context.Context, in SyncInput) (req *SyncRequest, err error) {
	provider := string(in.Provider)
	defer func() {
		metrics.SyncTrigger(provider, triggerOutcome(err))
	}()

	if in.OrganizationID == "" {
		return nil, ErrMissingOrganization
	}
	if in.Direction == "" {
		in.Direction = DirectionBidirectional
	}
	if !in.Direction.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDirection, in.Direction)
	}
	key := connection.Key{OrganizationID: in.OrganizationID, Provider: in.Provider}
	log := t.opts.log.With(zap.String("organization_id", in.OrganizationID), zap.String("provider", provider))

	c, err := t.conns.Get(ctx, key)
	if errors.Is(err, connection.ErrNotFound) {
		return nil, ErrNotConnected
	}
	if err != nil {
		return nil, fmt.Errorf("load connection: %w", err)
	}
	if !c.Connected {
		return nil, ErrNotConnected
	}

	unlock, err := t.opts.locker.Lock(ctx, "sync:"+key.String())
	if err != nil {
		return nil, fmt.Errorf("lock sync requests: %w", err)
	}
	defer func() {
		if uerr := unlock(context.Background()); uerr != nil {
			log.Warn("releasing sync lock failed", zap.Error(uerr))
		}
	}()

	now := t.opts.now().UTC()
	active, err := t.requests.Active(ctx, key, now.Add(-t.opts.requestTimeout))
	switch {
	case err == nil:
		log.Debug("sync already in progress", zap.String("request_id", active.ID))
		return active, ErrSyncInProgress
	case !errors.Is(err, ErrRequestNotFound):
		return nil, fmt.Errorf("check sync requests: %w", err)
	}

	req = &SyncRequest{
		ID:             uuid.NewString(),
		OrganizationID: in.OrganizationID,
		Provider:       in.Provider,
		Direction:      in.Direction,
		EntityTypes:    append([]string(nil), in.EntityTypes...),
		SyncType:       SyncTypeManual,
		Status:         RequestPending,
		RequestedBy:    in.RequestedBy,
		RequestedAt:    now,
	}
	if err := t.requests.Create(ctx, req); err != nil {
		return nil, fmt.Errorf("create sync request: %w", err)
	}

	if err := t.dispatcher.Dispatch(ctx, req); err != nil {
		// A failed request must not block the next trigger.
		failErr := t.requests.SetStatus(context.WithoutCancel(ctx), req.ID, RequestFailed, t.opts.now())
		log.Error("dispatching sync request failed", zap.String("request_id", req.ID),
			zap.Error(multierr.Append(err, failErr)))
		return nil, fmt.Errorf("%w: %w", ErrDispatchFailed, err)
	}
	log.Info("sync requested", zap.String("request_id", req.ID), zap.String("direction", string(req.Direction)))
	return req, nil
}

func triggerOutcome(err error) string {
	switch {
	case err == nil:
		return "queued"
	case errors.Is(err, ErrSyncInProgress):
		return "in_progress"
	case errors.Is(err, ErrNotConnected):
		return "not_connected"
	case errors.Is(err, ErrMissingOrganization), errors.Is(err, ErrInvalidDirection):
		return "invalid"
	}
	return "failed"
}
