package syncstatus

import "errors"

var (
	ErrMissingOrganization = errors.New("organization id is required")
	ErrNotConnected        = errors.New("integration not connected")
	ErrSyncInProgress      = errors.New("sync already in progress")
	ErrInvalidDirection    = errors.New("invalid sync direction")
	ErrInvalidEntry        = errors.New("invalid sync log entry")
	ErrRequestNotFound     = errors.New("sync request not found")
	ErrDispatchFailed      = errors.New("sync request could not be queued")
)
