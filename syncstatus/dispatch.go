package syncstatus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const (
	TaskTypeSync = "integration:sync"

	DefaultQueue       = "integrations"
	DefaultMaxRetry    = 3
	DefaultTaskTimeout = 15 * time.Minute
)

// Dispatcher hands a pending request to whatever runs syncs.
type Dispatcher interface {
	Dispatch(ctx context.Context, r *SyncRequest) error
}

// Enqueuer is the part of *asynq.Client the dispatcher needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// SyncTaskPayload is the body of a TaskTypeSync task.
type SyncTaskPayload struct {
	RequestID      string    `json:"request_id"`
	OrganizationID string    `json:"organization_id"`
	Provider       string    `json:"provider"`
	Direction      Direction `json:"direction"`
	EntityTypes    []string  `json:"entity_types,omitempty"`
	RequestedBy    string    `json:"requested_by,omitempty"`
}

// NewSyncTask builds the task a worker receives for r.
func NewSyncTask(r *SyncRequest) (*asynq.Task, error) {
	data, err := json.Marshal(SyncTaskPayload{
		RequestID:      r.ID,
		OrganizationID: r.OrganizationID,
		Provider:       string(r.Provider),
		Direction:      r.Direction,
		EntityTypes:    r.EntityTypes,
		RequestedBy:    r.RequestedBy,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSync, data), nil
}

// ParseSyncTask is used by workers.
func ParseSyncTask(t *asynq.Task) (SyncTaskPayload, error) {
	var p SyncTaskPayload
	if t.Type() != TaskTypeSync {
		return p, fmt.Errorf("unexpected task type %q", t.Type())
	}
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return p, fmt.Errorf("decode sync task: %w", err)
	}
	if p.RequestID == "" || p.OrganizationID == "" {
		return p, errors.New("sync task is missing request or organization id")
	}
	return p, nil
}

type AsynqDispatcher struct {
	client   Enqueuer
	queue    string
	maxRetry int
	timeout  time.Duration
}

type AsynqOption func(*AsynqDispatcher)

func WithQueue(name string) AsynqOption {
	return func(d *AsynqDispatcher) { d.queue = name }
}

func WithMaxRetry(n int) AsynqOption {
	return func(d *AsynqDispatcher) { d.maxRetry = n }
}

func WithTaskTimeout(t time.Duration) AsynqOption {
	return func(d *AsynqDispatcher) { d.timeout = t }
}

func NewAsynqDispatcher(client Enqueuer, opts ...AsynqOption) *AsynqDispatcher {
	d := &AsynqDispatcher{
		client:   client,
		queue:    DefaultQueue,
		maxRetry: DefaultMaxRetry,
		timeout:  DefaultTaskTimeout,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Dispatch enqueues r with its ID as the task ID, so a repeated dispatch of
// the same request is a no-op.
func (d *AsynqDispatcher) Dispatch(ctx context.Context, r *SyncRequest) error {
	task, err := NewSyncTask(r)
	if err != nil {
		return err
	}
	_, err = d.client.EnqueueContext(ctx, task,
		asynq.Queue(d.queue),
		asynq.MaxRetry(d.maxRetry),
		asynq.Timeout(d.timeout),
		asynq.TaskID(r.ID),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue sync task: %w", err)
	}
	return nil
}

// LogDispatcher only logs. It is used when no queue is configured and a
// worker polls the request store instead.
type LogDispatcher struct {
	Log *zap.Logger
}

func (d LogDispatcher) Dispatch(_ context.Context, r *SyncRequest) error {
	if d.Log != nil {
		d.Log.Info("sync requested",
			zap.String("request_id", r.ID),
			zap.String("organization_id", r.OrganizationID),
			zap.String("provider", string(r.Provider)),
			zap.String("direction", string(r.Direction)))
	}
	return nil
}
