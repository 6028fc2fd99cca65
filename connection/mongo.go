package connection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Seann-Moser/integrations/utils"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const CollectionName = "integration_connections"

var _ Store = &MongoStore{}

// MongoStore is a MongoDB-backed implementation of Store.
type MongoStore struct {
	connections *mongo.Collection
	sealer      Sealer
	now         func() time.Time
}

type MongoOption func(*MongoStore)

// WithSealer encrypts access and refresh tokens at rest.
func WithSealer(s Sealer) MongoOption {
	return func(m *MongoStore) { m.sealer = s }
}

func WithClock(now func() time.Time) MongoOption {
	return func(m *MongoStore) { m.now = now }
}

// NewMongoStore creates a new store backed by the given DB.
func NewMongoStore(db *mongo.Database, opts ...MongoOption) *MongoStore {
	s := &MongoStore{
		connections: db.Collection(CollectionName),
		now:         time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// EnsureIndexes creates the unique (organization_id, provider) index.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.connections.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "organization_id", Value: 1}, {Key: "provider", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("organization_provider_unique"),
	})
	return err
}

func keyFilter(key Key) bson.M {
	return bson.M{"organization_id": key.OrganizationID, "provider": string(key.Provider)}
}

func (s *MongoStore) Get(ctx context.Context, key Key) (*Connection, error) {
	var doc bson.M
	err := s.connections.FindOne(ctx, keyFilter(key)).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	c := decodeConnection(doc)
	if c.Tokens.AccessToken, err = openString(s.sealer, c.Tokens.AccessToken); err != nil {
		return nil, fmt.Errorf("open access token: %w", err)
	}
	if c.Tokens.RefreshToken, err = openString(s.sealer, c.Tokens.RefreshToken); err != nil {
		return nil, fmt.Errorf("open refresh token: %w", err)
	}
	return c, nil
}

func (s *MongoStore) tokenFields(t TokenSet) (bson.M, error) {
	access, err := sealString(s.sealer, t.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("seal access token: %w", err)
	}
	refresh, err := sealString(s.sealer, t.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("seal refresh token: %w", err)
	}
	return bson.M{
		"access_token":  access,
		"refresh_token": refresh,
		"token_type":    t.TokenType,
		"expires_at":    t.ExpiresAt.UTC(),
	}, nil
}

func (s *MongoStore) Save(ctx context.Context, c *Connection) error {
	now := s.now().UTC()
	set, err := s.tokenFields(c.Tokens)
	if err != nil {
		return err
	}
	set["connected"] = c.Connected
	set["provider_account_id"] = c.ProviderAccountID
	set["provider_account_name"] = c.ProviderAccountName
	set["last_error"] = c.LastError
	set["updated_at"] = now

	update := bson.M{
		"$set": set,
		"$setOnInsert": bson.M{
			"created_at":            now,
			"sync_status":           string(SyncStatusNeverSynced),
			"items_synced_last_24h": 0,
			"error_count":           0,
		},
	}
	res, err := s.connections.UpdateOne(ctx, keyFilter(c.Key()), update, options.Update().SetUpsert(true))
	if err != nil {
		return err
	}
	if res.UpsertedCount > 0 {
		c.CreatedAt = now
		c.SyncStatus = SyncStatusNeverSynced
	}
	c.UpdatedAt = now
	return nil
}

func (s *MongoStore) update(ctx context.Context, key Key, set bson.M) error {
	set["updated_at"] = s.now().UTC()
	res, err := s.connections.UpdateOne(ctx, keyFilter(key), bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) UpdateTokens(ctx context.Context, key Key, tokens TokenSet) error {
	set, err := s.tokenFields(tokens)
	if err != nil {
		return err
	}
	return s.update(ctx, key, set)
}

func (s *MongoStore) MarkDisconnected(ctx context.Context, key Key, reason string) error {
	return s.update(ctx, key, bson.M{"connected": false, "last_error": reason})
}

func (s *MongoStore) UpdateSyncState(ctx context.Context, key Key, state SyncState) error {
	return s.update(ctx, key, bson.M{
		"last_sync_at":          state.LastSyncAt.UTC(),
		"items_synced_last_24h": state.ItemsSyncedLast24h,
		"error_count":           state.ErrorCount,
		"last_error":            state.LastError,
		"sync_status":           string(state.SyncStatus),
	})
}

func (s *MongoStore) Delete(ctx context.Context, key Key) error {
	_, err := s.connections.DeleteOne(ctx, keyFilter(key))
	return err
}

// decodeConnection normalizes a raw document. Older writers stored dates as
// RFC3339 strings or unix milliseconds and counters as strings or doubles.
func decodeConnection(doc bson.M) *Connection {
	c := &Connection{
		OrganizationID:      utils.String(doc["organization_id"]),
		Provider:            ProviderType(utils.String(doc["provider"])),
		Connected:           utils.Bool(doc["connected"]),
		ProviderAccountID:   utils.String(doc["provider_account_id"]),
		ProviderAccountName: utils.String(doc["provider_account_name"]),
		SyncStatus:          SyncStatus(utils.String(doc["sync_status"])),
		ItemsSyncedLast24h:  utils.Int(doc["items_synced_last_24h"]),
		ErrorCount:          utils.Int(doc["error_count"]),
		LastError:           utils.String(doc["last_error"]),
		Tokens: TokenSet{
			AccessToken:  utils.String(doc["access_token"]),
			RefreshToken: utils.String(doc["refresh_token"]),
			TokenType:    utils.String(doc["token_type"]),
		},
	}
	c.Tokens.ProviderAccountID = c.ProviderAccountID
	c.Tokens.ExpiresAt, _ = utils.Time(doc["expires_at"])
	c.CreatedAt, _ = utils.Time(doc["created_at"])
	c.UpdatedAt, _ = utils.Time(doc["updated_at"])
	if t, ok := utils.Time(doc["last_sync_at"]); ok {
		c.LastSyncAt = &t
	}
	if c.SyncStatus == "" {
		c.SyncStatus = SyncStatusNeverSynced
	}
	return c
}
