package collection

import (
	"context"
	"time"

	"gamevault/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type EntryRepository interface {
	Create(ctx context.Context, entry *Entry) error
	ListByUser(ctx context.Context, userID primitive.ObjectID, limit int64) ([]Entry, error)
}

type EntryRepositoryImpl struct {
	collection *mongo.Collection
}

func NewEntryRepository(db *database.MongodbDB) EntryRepository {
	return &EntryRepositoryImpl{
		collection: db.DB.Collection("collection_entries"),
	}
}

func (r *EntryRepositoryImpl) Create(ctx context.Context, entry *Entry) error {
	if entry.ID.IsZero() {
		entry.ID = primitive.NewObjectID()
	}
	entry.CreatedAt = time.Now()

	_, err := r.collection.InsertOne(ctx, entry)
	return err
}

func (r *EntryRepositoryImpl) ListByUser(ctx context.Context, userID primitive.ObjectID, limit int64) ([]Entry, error) {
	opts := options.Find().
		SetSort(bson.M{"created_at": -1}).
		SetLimit(limit)

	cursor, err := r.collection.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var entries []Entry
	if err = cursor.All(ctx, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
