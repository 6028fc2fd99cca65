package syncstatus

import (
	"context"
	"errors"

	"github.com/Seann-Moser/integrations/connection"
)

// Service answers status queries for a connection.
type Service struct {
	conns connection.Store
	logs  LogStore
	opts  options
}

func NewService(conns connection.Store, logs LogStore, opts ...Option) *Service {
	return &Service{conns: conns, logs: logs, opts: buildOptions(opts)}
}

// Health evaluates the stored record against recent history at call time, so
// staleness shows up without any writer running. An absent connection is never_synced.
func (s *Service) Health(ctx context.Context, key connection.Key) (SyncHealthSummary, error) {
	c, err := s.conns.Get(ctx, key)
	if errors.Is(err, connection.ErrNotFound) {
		return SyncHealthSummary{Status: connection.SyncStatusNeverSynced}, nil
	}
	if err != nil {
		return SyncHealthSummary{}, err
	}
	recent, err := s.logs.Recent(ctx, key, HistoryWindow)
	if err != nil {
		return SyncHealthSummary{}, err
	}
	return Health(c, recent, s.opts.now()), nil
}

func (s *Service) History(ctx context.Context, key connection.Key) (SyncHistorySummary, error) {
	recent, err := s.logs.Recent(ctx, key, HistoryWindow)
	if err != nil {
		return SyncHistorySummary{}, err
	}
	return Summarize(recent, s.opts.now()), nil
}

// Recent returns the newest entries for display, capped at HistoryWindow.
func (s *Service) Recent(ctx context.Context, key connection.Key, limit int) ([]SyncLogEntry, error) {
	if limit <= 0 || limit > HistoryWindow {
		limit = HistoryWindow
	}
	return s.logs.Recent(ctx, key, limit)
}
