package syncstatus

import (
	"context"
	"errors"
	"time"

	"github.com/Seann-Moser/integrations/connection"
	"github.com/Seann-Moser/integrations/utils"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	mongooptions "go.mongodb.org/mongo-driver/mongo/options"
)

const (
	LogCollectionName     = "integration_sync_logs"
	RequestCollectionName = "integration_sync_requests"
)

var (
	_ LogStore     = &MongoLogStore{}
	_ RequestStore = &MongoRequestStore{}
)

type MongoLogStore struct {
	logs *mongo.Collection
}

func NewMongoLogStore(db *mongo.Database) *MongoLogStore {
	return &MongoLogStore{logs: db.Collection(LogCollectionName)}
}

// EnsureIndexes creates the index Recent reads through.
func (s *MongoLogStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.logs.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "organization_id", Value: 1},
			{Key: "provider", Value: 1},
			{Key: "started_at", Value: -1},
		},
		Options: mongooptions.Index().SetName("organization_provider_started_at"),
	})
	return err
}

func keyFilter(key connection.Key) bson.M {
	return bson.M{"organization_id": key.OrganizationID, "provider": string(key.Provider)}
}

func entityTypes(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func (s *MongoLogStore) Append(ctx context.Context, e *SyncLogEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := s.logs.InsertOne(ctx, bson.M{
		"_id":             e.ID,
		"organization_id": e.OrganizationID,
		"provider":        string(e.Provider),
		"status":          string(e.Status),
		"started_at":      e.StartedAt.UTC(),
		"completed_at":    e.CompletedAt.UTC(),
		"items_synced":    e.ItemsSynced,
		"items_failed":    e.ItemsFailed,
		"sync_type":       string(e.SyncType),
		"direction":       string(e.Direction),
		"entity_types":    entityTypes(e.EntityTypes),
		"error":           e.Error,
	})
	return err
}

func (s *MongoLogStore) Recent(ctx context.Context, key connection.Key, limit int) ([]SyncLogEntry, error) {
	opts := mongooptions.Find().SetSort(bson.D{{Key: "started_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.logs.Find(ctx, keyFilter(key), opts)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cur.Close(ctx)
	}()
	var list []SyncLogEntry
	for cur.Next(ctx) {
		var doc bson.M
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		list = append(list, decodeEntry(doc))
	}
	return list, cur.Err()
}

func decodeEntry(doc bson.M) SyncLogEntry {
	e := SyncLogEntry{
		ID:             utils.String(doc["_id"]),
		OrganizationID: utils.String(doc["organization_id"]),
		Provider:       connection.ProviderType(utils.String(doc["provider"])),
		Status:         LogStatus(utils.String(doc["status"])),
		ItemsSynced:    utils.Int(doc["items_synced"]),
		ItemsFailed:    utils.Int(doc["items_failed"]),
		SyncType:       SyncType(utils.String(doc["sync_type"])),
		Direction:      Direction(utils.String(doc["direction"])),
		EntityTypes:    utils.Strings(doc["entity_types"]),
		Error:          utils.String(doc["error"]),
	}
	e.StartedAt, _ = utils.Time(doc["started_at"])
	e.CompletedAt, _ = utils.Time(doc["completed_at"])
	return e
}

type MongoRequestStore struct {
	requests *mongo.Collection
}

func NewMongoRequestStore(db *mongo.Database) *MongoRequestStore {
	return &MongoRequestStore{requests: db.Collection(RequestCollectionName)}
}

func (s *MongoRequestStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.requests.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "organization_id", Value: 1},
			{Key: "provider", Value: 1},
			{Key: "status", Value: 1},
			{Key: "requested_at", Value: -1},
		},
		Options: mongooptions.Index().SetName("organization_provider_status_requested_at"),
	})
	return err
}

func (s *MongoRequestStore) Create(ctx context.Context, r *SyncRequest) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	_, err := s.requests.InsertOne(ctx, bson.M{
		"_id":             r.ID,
		"organization_id": r.OrganizationID,
		"provider":        string(r.Provider),
		"direction":       string(r.Direction),
		"entity_types":    entityTypes(r.EntityTypes),
		"sync_type":       string(r.SyncType),
		"status":          string(r.Status),
		"requested_by":    r.RequestedBy,
		"requested_at":    r.RequestedAt.UTC(),
	})
	return err
}

func (s *MongoRequestStore) findOne(ctx context.Context, filter bson.M, opts ...*mongooptions.FindOneOptions) (*SyncRequest, error) {
	var doc bson.M
	err := s.requests.FindOne(ctx, filter, opts...).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	return decodeRequest(doc), nil
}

func (s *MongoRequestStore) Get(ctx context.Context, id string) (*SyncRequest, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

func (s *MongoRequestStore) Active(ctx context.Context, key connection.Key, since time.Time) (*SyncRequest, error) {
	filter := keyFilter(key)
	filter["status"] = bson.M{"$in": bson.A{string(RequestPending), string(RequestRunning)}}
	filter["requested_at"] = bson.M{"$gte": since.UTC()}
	return s.findOne(ctx, filter, mongooptions.FindOne().SetSort(bson.D{{Key: "requested_at", Value: -1}}))
}

func (s *MongoRequestStore) SetStatus(ctx context.Context, id string, status RequestStatus, at time.Time) error {
	set := bson.M{"status": string(status)}
	if !status.Active() {
		set["finished_at"] = at.UTC()
	}
	res, err := s.requests.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrRequestNotFound
	}
	return nil
}

func decodeRequest(doc bson.M) *SyncRequest {
	r := &SyncRequest{
		ID:             utils.String(doc["_id"]),
		OrganizationID: utils.String(doc["organization_id"]),
		Provider:       connection.ProviderType(utils.String(doc["provider"])),
		Direction:      Direction(utils.String(doc["direction"])),
		EntityTypes:    utils.Strings(doc["entity_types"]),
		SyncType:       SyncType(utils.String(doc["sync_type"])),
		Status:         RequestStatus(utils.String(doc["status"])),
		RequestedBy:    utils.String(doc["requested_by"]),
	}
	r.RequestedAt, _ = utils.Time(doc["requested_at"])
	if t, ok := utils.Time(doc["finished_at"]); ok {
		r.FinishedAt = &t
	}
	return r
}
