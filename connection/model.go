package connection

import "time"

// ProviderType identifies an external service an organization can connect to.
type ProviderType string

const (
	ProviderQuickBooks ProviderType = "quickbooks"
	ProviderGusto      ProviderType = "gusto"
)

// SyncStatus is the coarse health of a connection as shown to users.
type SyncStatus string

const (
	SyncStatusHealthy     SyncStatus = "healthy"
	SyncStatusWarning     SyncStatus = "warning"
	SyncStatusError       SyncStatus = "error"
	SyncStatusNeverSynced SyncStatus = "never_synced"
)

// Key addresses exactly one connection.
type Key struct {
	OrganizationID string
	Provider       ProviderType
}

func (k Key) String() string {
	return string(k.Provider) + ":" + k.OrganizationID
}

// TokenSet holds the credentials issued by a provider.
// ExpiresAt is always computed locally as receive-time + expires_in.
type TokenSet struct {
	AccessToken       string    `json:"access_token"`
	RefreshToken      string    `json:"refresh_token"`
	TokenType         string    `json:"token_type"`
	ExpiresAt         time.Time `json:"expires_at"`
	ProviderAccountID string    `json:"provider_account_id,omitempty"`
}

// Connection is the persisted link between an organization and a provider.
//
// Token fields and Connected are written only by the lifecycle manager.
// LastSyncAt, ItemsSyncedLast24h, ErrorCount, LastError and SyncStatus are
// written only by sync ingestion.
type Connection struct {
	OrganizationID      string       `json:"organization_id"`
	Provider            ProviderType `json:"provider"`
	Connected           bool         `json:"connected"`
	ProviderAccountID   string       `json:"provider_account_id"`
	ProviderAccountName string       `json:"provider_account_name,omitempty"`
	Tokens              TokenSet     `json:"tokens"`
	LastSyncAt          *time.Time   `json:"last_sync_at,omitempty"`
	SyncStatus          SyncStatus   `json:"sync_status"`
	ItemsSyncedLast24h  int          `json:"items_synced_last_24h"`
	ErrorCount          int          `json:"error_count"`
	LastError           string       `json:"last_error,omitempty"`
	CreatedAt           time.Time    `json:"created_at"`
	UpdatedAt           time.Time    `json:"updated_at"`
}

func (c *Connection) Key() Key {
	return Key{OrganizationID: c.OrganizationID, Provider: c.Provider}
}

// SyncState is the partial write owned by sync ingestion.
type SyncState struct {
	LastSyncAt         time.Time
	ItemsSyncedLast24h int
	ErrorCount         int
	LastError          string
	SyncStatus         SyncStatus
}
