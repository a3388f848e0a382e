package importsession

import (
	"context"
	"time"

	"gamevault/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type SessionRepository interface {
	CreateSession(ctx context.Context, session *ImportSession) error
	GetSession(ctx context.Context, id primitive.ObjectID) (*ImportSession, error)
	ListSessionsByUser(ctx context.Context, userID primitive.ObjectID, limit int64) ([]ImportSession, error)
	// UpdateStatus persists from -> to conditionally: the write only
	// lands when the stored status still equals from, so a concurrent
	// transition (e.g. a cancel) is never overwritten.
	UpdateStatus(ctx context.Context, id primitive.ObjectID, from, to SessionStatus) error
	SetFailure(ctx context.Context, id primitive.ObjectID, reason string) error
	SetTotalRows(ctx context.Context, id primitive.ObjectID, total int) error
	IncrementProcessed(ctx context.Context, id primitive.ObjectID) error
	// FailStaleProcessing fails sessions stuck in PROCESSING or
	// IMPORTING since before the cutoff, returning how many were reaped.
	FailStaleProcessing(ctx context.Context, cutoff time.Time) (int64, error)

	CreateMatches(ctx context.Context, matches []ImportMatch) error
	GetMatch(ctx context.Context, id primitive.ObjectID) (*ImportMatch, error)
	ListMatches(ctx context.Context, sessionID primitive.ObjectID) ([]ImportMatch, error)
	UpdateMatch(ctx context.Context, match *ImportMatch) error
	DeleteMatches(ctx context.Context, sessionID primitive.ObjectID) error
}

type SessionRepositoryImpl struct {
	sessions *mongo.Collection
	matches  *mongo.Collection
}

func NewSessionRepository(db *database.MongodbDB) SessionRepository {
	return &SessionRepositoryImpl{
		sessions: db.DB.Collection("import_sessions"),
		matches:  db.DB.Collection("import_matches"),
	}
}

func (r *SessionRepositoryImpl) CreateSession(ctx context.Context, session *ImportSession) error {
	if session.ID.IsZero() {
		session.ID = primitive.NewObjectID()
	}
	now := time.Now()
	session.CreatedAt = now
	session.UpdatedAt = now
	if session.Status == "" {
		session.Status = SessionUploaded
	}

	_, err := r.sessions.InsertOne(ctx, session)
	return err
}

func (r *SessionRepositoryImpl) GetSession(ctx context.Context, id primitive.ObjectID) (*ImportSession, error) {
	var session ImportSession
	if err := r.sessions.FindOne(ctx, bson.M{"_id": id}).Decode(&session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *SessionRepositoryImpl) ListSessionsByUser(ctx context.Context, userID primitive.ObjectID, limit int64) ([]ImportSession, error) {
	opts := options.Find().
		SetSort(bson.M{"created_at": -1}).
		SetLimit(limit)

	cursor, err := r.sessions.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var sessions []ImportSession
	if err = cursor.All(ctx, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// UpdateStatus persists a status change. completed_at is set exactly when
// the status is terminal, keeping the session invariant in one place. The
// filter includes the expected current status: a stale snapshot loses the
// race instead of reviving a terminal session.
func (r *SessionRepositoryImpl) UpdateStatus(ctx context.Context, id primitive.ObjectID, from, to SessionStatus) error {
	set := bson.M{
		"status":     to,
		"updated_at": time.Now(),
	}
	if to.Terminal() {
		now := time.Now()
		set["completed_at"] = &now
	}

	result, err := r.sessions.UpdateOne(ctx, bson.M{"_id": id, "status": from}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		actual := from
		if current, readErr := r.GetSession(ctx, id); readErr == nil {
			actual = current.Status
		}
		return &InvalidTransitionError{Entity: "session", From: string(actual), To: string(to)}
	}
	return nil
}

func (r *SessionRepositoryImpl) SetFailure(ctx context.Context, id primitive.ObjectID, reason string) error {
	now := time.Now()
	// Only non-terminal sessions can fail; a concurrent cancel wins
	_, err := r.sessions.UpdateOne(ctx,
		bson.M{"_id": id, "status": bson.M{"$in": []SessionStatus{SessionProcessing, SessionImporting}}},
		bson.M{"$set": bson.M{
			"status":         SessionFailed,
			"failure_reason": reason,
			"updated_at":     now,
			"completed_at":   &now,
		}},
	)
	return err
}

func (r *SessionRepositoryImpl) SetTotalRows(ctx context.Context, id primitive.ObjectID, total int) error {
	_, err := r.sessions.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"total_rows": total, "updated_at": time.Now()},
	})
	return err
}

func (r *SessionRepositoryImpl) IncrementProcessed(ctx context.Context, id primitive.ObjectID) error {
	_, err := r.sessions.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$inc": bson.M{"processed_rows": 1},
		"$set": bson.M{"updated_at": time.Now()},
	})
	return err
}

func (r *SessionRepositoryImpl) FailStaleProcessing(ctx context.Context, cutoff time.Time) (int64, error) {
	now := time.Now()
	// IMPORTING counts too: a crash mid-commit must not strand the
	// session in a state no operation accepts.
	result, err := r.sessions.UpdateMany(ctx,
		bson.M{
			"status":     bson.M{"$in": []SessionStatus{SessionProcessing, SessionImporting}},
			"updated_at": bson.M{"$lt": cutoff},
		},
		bson.M{"$set": bson.M{
			"status":         SessionFailed,
			"failure_reason": "processing timed out",
			"updated_at":     now,
			"completed_at":   &now,
		}},
	)
	if err != nil {
		return 0, err
	}
	return result.ModifiedCount, nil
}

func (r *SessionRepositoryImpl) CreateMatches(ctx context.Context, matches []ImportMatch) error {
	if len(matches) == 0 {
		return nil
	}

	docs := make([]interface{}, len(matches))
	now := time.Now()
	for i := range matches {
		if matches[i].ID.IsZero() {
			matches[i].ID = primitive.NewObjectID()
		}
		matches[i].CreatedAt = now
		matches[i].UpdatedAt = now
		if matches[i].Status == "" {
			matches[i].Status = MatchPending
		}
		docs[i] = matches[i]
	}

	_, err := r.matches.InsertMany(ctx, docs)
	return err
}

func (r *SessionRepositoryImpl) GetMatch(ctx context.Context, id primitive.ObjectID) (*ImportMatch, error) {
	var match ImportMatch
	if err := r.matches.FindOne(ctx, bson.M{"_id": id}).Decode(&match); err != nil {
		return nil, err
	}
	return &match, nil
}

func (r *SessionRepositoryImpl) ListMatches(ctx context.Context, sessionID primitive.ObjectID) ([]ImportMatch, error) {
	opts := options.Find().SetSort(bson.M{"line_number": 1})
	cursor, err := r.matches.Find(ctx, bson.M{"session_id": sessionID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var matches []ImportMatch
	if err = cursor.All(ctx, &matches); err != nil {
		return nil, err
	}
	return matches, nil
}

func (r *SessionRepositoryImpl) UpdateMatch(ctx context.Context, match *ImportMatch) error {
	match.UpdatedAt = time.Now()
	_, err := r.matches.ReplaceOne(ctx, bson.M{"_id": match.ID}, match)
	return err
}

func (r *SessionRepositoryImpl) DeleteMatches(ctx context.Context, sessionID primitive.ObjectID) error {
	_, err := r.matches.DeleteMany(ctx, bson.M{"session_id": sessionID})
	return err
}
