package syncstatus

import (
	"time"

	"github.com/Seann-Moser/integrations/connection"
)

const (
	// HistoryWindow is how many recent entries health and history read.
	HistoryWindow = 50

	healthWindow   = 24 * time.Hour
	lastWeekWindow = 7 * 24 * time.Hour

	errorFailures = 3
)

// Summarize aggregates an already fetched window of entries. An empty window
// yields all zeros.
func Summarize(entries []SyncLogEntry, now time.Time) SyncHistorySummary {
	var s SyncHistorySummary
	if len(entries) == 0 {
		return s
	}
	weekAgo := now.Add(-lastWeekWindow)
	var total time.Duration
	for i := range entries {
		e := &entries[i]
		s.TotalSyncs++
		switch e.Status {
		case StatusSuccess:
			s.SuccessfulSyncs++
		case StatusFailed:
			s.FailedSyncs++
		case StatusPartial:
			s.PartialSyncs++
		}
		if !e.StartedAt.Before(weekAgo) {
			s.LastWeekSyncs++
		}
		total += e.Duration()
	}
	s.AverageDurationSeconds = total.Seconds() / float64(len(entries))
	return s
}

// recentFailures counts failed entries started within the trailing 24 hours.
func recentFailures(entries []SyncLogEntry, now time.Time) int {
	since := now.Add(-healthWindow)
	n := 0
	for i := range entries {
		if entries[i].Status == StatusFailed && entries[i].StartedAt.After(since) {
			n++
		}
	}
	return n
}

// Evaluate derives the health of c from its recent logs. The checks are a
// strict priority chain: never synced, then error, then warning, then healthy.
func Evaluate(c *connection.Connection, recent []SyncLogEntry, now time.Time) connection.SyncStatus {
	if c == nil || !c.Connected || c.LastSyncAt == nil {
		return connection.SyncStatusNeverSynced
	}
	failures := recentFailures(recent, now)
	switch {
	case failures >= errorFailures:
		return connection.SyncStatusError
	case failures > 0:
		return connection.SyncStatusWarning
	case now.Sub(*c.LastSyncAt) > healthWindow:
		return connection.SyncStatusWarning
	}
	return connection.SyncStatusHealthy
}

// Health builds the summary shown next to a connection.
func Health(c *connection.Connection, recent []SyncLogEntry, now time.Time) SyncHealthSummary {
	h := SyncHealthSummary{Status: Evaluate(c, recent, now)}
	if c == nil {
		return h
	}
	h.LastSyncAt = c.LastSyncAt
	h.ItemsSyncedLast24h = c.ItemsSyncedLast24h
	h.ErrorCount = c.ErrorCount
	h.LastError = c.LastError
	return h
}

// rollup recomputes the stored 24h counters from recent entries.
func rollup(recent []SyncLogEntry, now time.Time) (items, failures int) {
	since := now.Add(-healthWindow)
	for i := range recent {
		if !recent[i].StartedAt.After(since) {
			continue
		}
		items += recent[i].ItemsSynced
		if recent[i].Status == StatusFailed {
			failures++
		}
	}
	return items, failures
}
