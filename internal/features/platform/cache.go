package platform

import (
	"context"
	"errors"
	"strconv"
	"time"

	"gamevault/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrCacheMiss is returned when no entry exists for the cache name.
var ErrCacheMiss = errors.New("platform: cache miss")

// IndexCache persists the platform index between processes so repeat
// sessions avoid refetching the taxonomy. Injected so the resolver is
// testable without a storage backend.
type IndexCache interface {
	Get(ctx context.Context, name string) (map[int]string, time.Time, error)
	Put(ctx context.Context, name string, data map[int]string) error
}

type cacheDoc struct {
	ID        string            `bson:"_id"`
	Data      map[string]string `bson:"data"`
	Timestamp time.Time         `bson:"timestamp"`
}

type MongoIndexCache struct {
	collection *mongo.Collection
}

func NewIndexCache(db *database.MongodbDB) IndexCache {
	return &MongoIndexCache{
		collection: db.DB.Collection("platform_cache"),
	}
}

func (c *MongoIndexCache) Get(ctx context.Context, name string) (map[int]string, time.Time, error) {
	var doc cacheDoc
	err := c.collection.FindOne(ctx, bson.M{"_id": name}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, time.Time{}, ErrCacheMiss
		}
		return nil, time.Time{}, err
	}

	data := make(map[int]string, len(doc.Data))
	for k, v := range doc.Data {
		id, convErr := strconv.Atoi(k)
		if convErr != nil {
			// A corrupt key invalidates the whole entry
			return nil, time.Time{}, ErrCacheMiss
		}
		data[id] = v
	}
	return data, doc.Timestamp, nil
}

func (c *MongoIndexCache) Put(ctx context.Context, name string, data map[int]string) error {
	// BSON map keys must be strings
	encoded := make(map[string]string, len(data))
	for id, label := range data {
		encoded[strconv.Itoa(id)] = label
	}

	doc := cacheDoc{ID: name, Data: encoded, Timestamp: time.Now()}
	_, err := c.collection.ReplaceOne(ctx, bson.M{"_id": name}, doc, options.Replace().SetUpsert(true))
	return err
}
