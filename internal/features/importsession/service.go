package importsession

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gamevault/internal/features/matcher"
	"gamevault/internal/features/platform"
	"gamevault/internal/normalize"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// cancelCheckEvery controls how often the processing loop re-reads the
// session to observe an in-flight cancellation.
const cancelCheckEvery = 10

// ErrSessionNotFound covers both a missing session and a session owned
// by a different user.
var ErrSessionNotFound = errors.New("session not found")

type SessionService interface {
	Create(ctx context.Context, session *ImportSession) error
	Get(ctx context.Context, userID, sessionID primitive.ObjectID) (*ImportSession, error)
	GetWithMatches(ctx context.Context, userID, sessionID primitive.ObjectID) (*ImportSession, []ImportMatch, error)
	ListByUser(ctx context.Context, userID primitive.ObjectID) ([]ImportSession, error)
	// Process parses the session's file, creates one row per line and
	// reconciles every row. Designed to run in a background goroutine.
	Process(ctx context.Context, sessionID primitive.ObjectID) error
	// Transition moves the session through its state machine, rejecting
	// illegal moves with InvalidTransitionError.
	Transition(ctx context.Context, session *ImportSession, next SessionStatus) error
	// Cancel is idempotent: cancelling an already-terminal session is a
	// no-op, not an error.
	Cancel(ctx context.Context, userID, sessionID primitive.ObjectID) (*ImportSession, error)
}

type SessionServiceImpl struct {
	Repo            SessionRepository
	Matcher         matcher.MatcherService
	PlatformService platform.PlatformService
	Logger          *zap.Logger
}

func NewSessionService(
	repo SessionRepository,
	matcherService matcher.MatcherService,
	platformService platform.PlatformService,
	logger *zap.Logger,
) SessionService {
	return &SessionServiceImpl{
		Repo:            repo,
		Matcher:         matcherService,
		PlatformService: platformService,
		Logger:          logger,
	}
}

func (s *SessionServiceImpl) Create(ctx context.Context, session *ImportSession) error {
	return s.Repo.CreateSession(ctx, session)
}

func (s *SessionServiceImpl) Get(ctx context.Context, userID, sessionID primitive.ObjectID) (*ImportSession, error) {
	session, err := s.Repo.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if session.UserID != userID {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

func (s *SessionServiceImpl) GetWithMatches(ctx context.Context, userID, sessionID primitive.ObjectID) (*ImportSession, []ImportMatch, error) {
	session, err := s.Get(ctx, userID, sessionID)
	if err != nil {
		return nil, nil, err
	}
	matches, err := s.Repo.ListMatches(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	return session, matches, nil
}

func (s *SessionServiceImpl) ListByUser(ctx context.Context, userID primitive.ObjectID) ([]ImportSession, error) {
	return s.Repo.ListSessionsByUser(ctx, userID, 50)
}

func (s *SessionServiceImpl) Transition(ctx context.Context, session *ImportSession, next SessionStatus) error {
	if !session.Status.CanTransitionTo(next) {
		return &InvalidTransitionError{Entity: "session", From: string(session.Status), To: string(next)}
	}
	// The write is conditional on the snapshot status, so a transition
	// that raced a cancel fails instead of reviving a terminal session.
	if err := s.Repo.UpdateStatus(ctx, session.ID, session.Status, next); err != nil {
		return err
	}
	session.Status = next
	return nil
}

func (s *SessionServiceImpl) Cancel(ctx context.Context, userID, sessionID primitive.ObjectID) (*ImportSession, error) {
	session, err := s.Get(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	if session.Status.Terminal() {
		// Includes cancelling an already-cancelled session
		return session, nil
	}

	if err := s.Transition(ctx, session, SessionCancelled); err != nil {
		return nil, err
	}

	// Cancelling a session invalidates all of its rows
	if err := s.Repo.DeleteMatches(ctx, sessionID); err != nil {
		s.Logger.Warn("failed to delete rows of cancelled session",
			zap.String("sessionId", sessionID.Hex()), zap.Error(err))
	}

	return s.Repo.GetSession(ctx, sessionID)
}

func (s *SessionServiceImpl) Process(ctx context.Context, sessionID primitive.ObjectID) error {
	session, err := s.Repo.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}

	if session.Status == SessionCancelled {
		return nil
	}
	if err := s.Transition(ctx, session, SessionProcessing); err != nil {
		return err
	}

	log := s.Logger.With(zap.String("sessionId", sessionID.Hex()))

	lines, err := s.parseSessionFile(session)
	if err != nil {
		// Fatal: the session fails as a whole, no partial rows exist
		log.Error("failed to parse import file", zap.Error(err))
		return s.Repo.SetFailure(ctx, sessionID, err.Error())
	}

	matches := make([]ImportMatch, len(lines))
	for i, line := range lines {
		matches[i] = ImportMatch{
			SessionID:    sessionID,
			LineNumber:   i + 1,
			RawTitle:     line.Title,
			PlatformText: line.Platform,
			Status:       MatchPending,
		}
	}
	if err := s.Repo.CreateMatches(ctx, matches); err != nil {
		log.Error("failed to create session rows", zap.Error(err))
		return s.Repo.SetFailure(ctx, sessionID, "failed to create rows")
	}

	session.TotalRows = len(matches)
	if err := s.Repo.SetTotalRows(ctx, sessionID, len(matches)); err != nil {
		return err
	}

	log.Info("processing session rows", zap.Int("rows", len(matches)))

	for i := range matches {
		if i%cancelCheckEvery == 0 && i > 0 {
			current, err := s.Repo.GetSession(ctx, sessionID)
			if err == nil && current.Status == SessionCancelled {
				log.Info("session cancelled mid-processing", zap.Int("processed", i))
				return nil
			}
		}

		if err := s.reconcileRow(ctx, &matches[i]); err != nil {
			// Catalog unreachable is fatal for the whole session and
			// leaves no partial rows behind.
			log.Error("matching failed", zap.Int("line", matches[i].LineNumber), zap.Error(err))
			_ = s.Repo.DeleteMatches(ctx, sessionID)
			return s.Repo.SetFailure(ctx, sessionID, "catalog service unreachable")
		}

		if err := s.Repo.UpdateMatch(ctx, &matches[i]); err != nil {
			return err
		}
		if err := s.Repo.IncrementProcessed(ctx, sessionID); err != nil {
			return err
		}
	}

	session, err = s.Repo.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Status == SessionCancelled {
		return nil
	}

	if err := s.Transition(ctx, session, SessionReadyForReview); err != nil {
		// A cancel that landed after the re-read wins the race
		var transitionErr *InvalidTransitionError
		if errors.As(err, &transitionErr) {
			log.Info("session reached a terminal status mid-processing")
			return nil
		}
		return err
	}
	log.Info("session ready for review", zap.Int("rows", len(matches)))
	return nil
}

// reconcileRow runs Normalizer, Catalog Matcher and Platform Resolver
// over a single pending row and advances its match status.
func (s *SessionServiceImpl) reconcileRow(ctx context.Context, row *ImportMatch) error {
	key, err := normalize.Normalize(row.RawTitle)
	if err != nil {
		if errors.Is(err, normalize.ErrEmptyInput) {
			// Empty lines degrade to a skipped row, never a failure
			return s.advanceRow(row, MatchSkipped)
		}
		return err
	}
	row.NormalizedKey = key

	if row.PlatformText != "" {
		resolution, err := s.PlatformService.Resolve(ctx, row.PlatformText)
		if err != nil {
			return err
		}
		if resolution != nil {
			row.SuggestedPlatformID = &resolution.ID
		}
	}

	candidates, err := s.Matcher.Match(ctx, key)
	if err != nil {
		return err
	}

	switch s.Matcher.Evaluate(candidates) {
	case matcher.VerdictAutoMatch:
		row.SuggestedGameID = &candidates[0].GameID
		row.Confidence = &candidates[0].Confidence
		row.CandidatePlatformIDs = candidates[0].PlatformIDs
		return s.advanceRow(row, MatchAutoMatched)
	case matcher.VerdictManualReview:
		row.SuggestedGameID = &candidates[0].GameID
		row.Confidence = &candidates[0].Confidence
		row.CandidatePlatformIDs = candidates[0].PlatformIDs
		return s.advanceRow(row, MatchManualReview)
	default:
		// Nothing cleared the floor: manual review with no suggestion
		return s.advanceRow(row, MatchManualReview)
	}
}

func (s *SessionServiceImpl) advanceRow(row *ImportMatch, next MatchStatus) error {
	if !row.Status.CanTransitionTo(next) {
		return &InvalidTransitionError{Entity: "match", From: string(row.Status), To: string(next)}
	}
	row.Status = next
	return nil
}

func (s *SessionServiceImpl) parseSessionFile(session *ImportSession) ([]ParsedLine, error) {
	file, err := os.Open(session.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer file.Close()

	return ParseLines(session.FileType, file)
}
