package review

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gamevault/internal/catalog"
	"gamevault/internal/config"
	"gamevault/internal/features/collection"
	"gamevault/internal/features/importsession"
	"gamevault/internal/features/platform"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// ReviewService is the client-facing orchestration over the pipeline:
// upload, poll, per-row edits, commit and ad hoc search.
type ReviewService interface {
	Upload(ctx context.Context, userID primitive.ObjectID, fileName string, file io.Reader) (*importsession.ImportSession, error)
	// PollSession re-reads the session at a fixed interval while it is
	// still being processed and returns the first snapshot in a
	// non-polling status. Cancellable through ctx; single-flight per
	// session id.
	PollSession(ctx context.Context, userID, sessionID primitive.ObjectID) (*importsession.ImportSession, error)
	ConfirmMatches(ctx context.Context, userID, sessionID primitive.ObjectID, edits []MatchEdit) ([]importsession.ImportMatch, error)
	ExecuteImport(ctx context.Context, userID, sessionID primitive.ObjectID) (*ExecuteResult, error)
	// SearchAlternatives is an ad hoc catalog search for manual
	// overrides. It never mutates session state.
	SearchAlternatives(ctx context.Context, text string) ([]catalog.Game, error)
	PlatformOptions(ctx context.Context) ([]platform.Option, error)
}

type ReviewServiceImpl struct {
	Sessions     importsession.SessionService
	Repo         importsession.SessionRepository
	Collection   collection.CollectionService
	Catalog      catalog.Client
	Platforms    platform.PlatformService
	Logger       *zap.Logger
	UploadDir    string
	PollInterval time.Duration
	PageSize     int

	pollMu   sync.Mutex
	inFlight map[string]struct{}
}

func NewReviewService(
	sessions importsession.SessionService,
	repo importsession.SessionRepository,
	collectionService collection.CollectionService,
	client catalog.Client,
	platformService platform.PlatformService,
	cfg *config.Config,
	logger *zap.Logger,
) ReviewService {
	if _, err := os.Stat(cfg.FSPath); os.IsNotExist(err) {
		os.MkdirAll(cfg.FSPath, 0755)
	}
	return &ReviewServiceImpl{
		Sessions:     sessions,
		Repo:         repo,
		Collection:   collectionService,
		Catalog:      client,
		Platforms:    platformService,
		Logger:       logger,
		UploadDir:    cfg.FSPath,
		PollInterval: cfg.PollInterval,
		PageSize:     cfg.CatalogPageSize,
		inFlight:     make(map[string]struct{}),
	}
}

func (s *ReviewServiceImpl) Upload(ctx context.Context, userID primitive.ObjectID, fileName string, file io.Reader) (*importsession.ImportSession, error) {
	fileType, err := importsession.DetectFileType(fileName)
	if err != nil {
		return nil, err
	}

	// Content is opaque bytes here; parsing happens during processing
	storedName := uuid.New().String() + filepath.Ext(fileName)
	dstPath := filepath.Join(s.UploadDir, storedName)

	dst, err := os.Create(dstPath)
	if err != nil {
		return nil, fmt.Errorf("failed to store uploaded file: %w", err)
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		os.Remove(dstPath)
		return nil, fmt.Errorf("failed to store uploaded file: %w", err)
	}
	dst.Close()

	session := &importsession.ImportSession{
		UserID:   userID,
		FileName: filepath.Base(fileName),
		FilePath: dstPath,
		FileType: fileType,
		Status:   importsession.SessionUploaded,
	}
	if err := s.Sessions.Create(ctx, session); err != nil {
		os.Remove(dstPath)
		return nil, err
	}

	s.Logger.Info("import session created",
		zap.String("sessionId", session.ID.Hex()),
		zap.String("fileType", string(fileType)))

	// Row processing is asynchronous; the client polls for progress
	go func() {
		if err := s.Sessions.Process(context.Background(), session.ID); err != nil {
			s.Logger.Error("session processing failed",
				zap.String("sessionId", session.ID.Hex()), zap.Error(err))
		}
	}()

	return session, nil
}

func (s *ReviewServiceImpl) PollSession(ctx context.Context, userID, sessionID primitive.ObjectID) (*importsession.ImportSession, error) {
	key := sessionID.Hex()
	s.pollMu.Lock()
	if _, exists := s.inFlight[key]; exists {
		s.pollMu.Unlock()
		return nil, ErrPollInFlight
	}
	s.inFlight[key] = struct{}{}
	s.pollMu.Unlock()

	defer func() {
		s.pollMu.Lock()
		delete(s.inFlight, key)
		s.pollMu.Unlock()
	}()

	ticker := time.NewTicker(s.PollInterval)
	defer ticker.Stop()

	for {
		session, err := s.Sessions.Get(ctx, userID, sessionID)
		if err == nil && !isPollingStatus(session.Status) {
			return session, nil
		}
		// Transient read errors keep the loop alive; they never fail
		// the session itself.
		if err != nil {
			s.Logger.Warn("poll read failed, retrying",
				zap.String("sessionId", key), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func isPollingStatus(status importsession.SessionStatus) bool {
	return status == importsession.SessionUploaded || status == importsession.SessionProcessing
}

func (s *ReviewServiceImpl) ConfirmMatches(ctx context.Context, userID, sessionID primitive.ObjectID, edits []MatchEdit) ([]importsession.ImportMatch, error) {
	session, err := s.Sessions.Get(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != importsession.SessionReadyForReview {
		return nil, &InvalidSessionStateError{
			SessionID: sessionID.Hex(),
			Expected:  importsession.SessionReadyForReview,
			Actual:    session.Status,
		}
	}

	// Validate the whole batch before touching anything: a bad edit
	// mutates nothing. A row referenced twice is validated against its
	// staged copy, so a second edit cannot sidestep row terminality.
	staged := make(map[primitive.ObjectID]*importsession.ImportMatch, len(edits))
	order := make([]primitive.ObjectID, 0, len(edits))
	for _, edit := range edits {
		matchID, err := primitive.ObjectIDFromHex(edit.MatchID)
		if err != nil {
			return nil, fmt.Errorf("invalid match id %q", edit.MatchID)
		}
		row, ok := staged[matchID]
		if !ok {
			row, err = s.Repo.GetMatch(ctx, matchID)
			if err != nil {
				return nil, err
			}
			if row.SessionID != sessionID {
				return nil, fmt.Errorf("match %s does not belong to session", edit.MatchID)
			}
			staged[matchID] = row
			order = append(order, matchID)
		}
		if err := applyEdit(row, edit); err != nil {
			return nil, err
		}
	}

	updated := make([]importsession.ImportMatch, 0, len(order))
	for _, id := range order {
		if err := s.Repo.UpdateMatch(ctx, staged[id]); err != nil {
			return nil, err
		}
		updated = append(updated, *staged[id])
	}
	return updated, nil
}

// applyEdit mutates the in-memory row according to one user decision,
// enforcing the row state machine and the confirm invariants.
func applyEdit(row *importsession.ImportMatch, edit MatchEdit) error {
	switch edit.Action {
	case EditSkip:
		if !row.Status.CanTransitionTo(importsession.MatchSkipped) {
			return &importsession.InvalidTransitionError{
				Entity: "match", From: string(row.Status), To: string(importsession.MatchSkipped),
			}
		}
		row.Status = importsession.MatchSkipped
		return nil

	case EditConfirm:
		if !row.Status.CanTransitionTo(importsession.MatchConfirmed) {
			return &importsession.InvalidTransitionError{
				Entity: "match", From: string(row.Status), To: string(importsession.MatchConfirmed),
			}
		}

		gameID := edit.GameID
		if gameID == nil {
			gameID = row.SuggestedGameID
		}
		if gameID == nil {
			return ErrNoGameChosen
		}

		platformID := edit.PlatformID
		if platformID == nil {
			platformID = row.SuggestedPlatformID
		}
		if platformID == nil && len(row.CandidatePlatformIDs) > 0 {
			return ErrPlatformRequired
		}

		row.ConfirmedGameID = gameID
		row.ConfirmedPlatformID = platformID
		row.ConfirmedConsoleIDs = edit.ConsoleIDs
		if edit.UserData != nil {
			row.UserData = edit.UserData
		}
		row.Status = importsession.MatchConfirmed
		return nil

	default:
		return fmt.Errorf("unknown edit action %q", edit.Action)
	}
}

func (s *ReviewServiceImpl) ExecuteImport(ctx context.Context, userID, sessionID primitive.ObjectID) (*ExecuteResult, error) {
	session, err := s.Sessions.Get(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != importsession.SessionReadyForReview {
		return nil, &InvalidSessionStateError{
			SessionID: sessionID.Hex(),
			Expected:  importsession.SessionReadyForReview,
			Actual:    session.Status,
		}
	}

	matches, err := s.Repo.ListMatches(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	confirmed := make([]importsession.ImportMatch, 0, len(matches))
	for _, m := range matches {
		if m.Status == importsession.MatchConfirmed {
			confirmed = append(confirmed, m)
		}
	}
	if len(confirmed) == 0 {
		return nil, ErrNoConfirmedRows
	}

	if err := s.Sessions.Transition(ctx, session, importsession.SessionImporting); err != nil {
		return nil, err
	}

	log := s.Logger.With(zap.String("sessionId", sessionID.Hex()))

	// Each row commits independently: a failed row is logged and left
	// out, it never blocks the rest.
	imported := 0
	for i := range confirmed {
		if _, err := s.Collection.CommitRow(ctx, userID, &confirmed[i]); err != nil {
			log.Warn("row commit failed",
				zap.Int("line", confirmed[i].LineNumber), zap.Error(err))
			continue
		}
		imported++
	}

	if err := s.Sessions.Transition(ctx, session, importsession.SessionCompleted); err != nil {
		return nil, err
	}

	log.Info("import executed",
		zap.Int("imported", imported), zap.Int("totalMatches", len(matches)))

	return &ExecuteResult{
		ImportedCount: imported,
		TotalMatches:  len(matches),
	}, nil
}

func (s *ReviewServiceImpl) SearchAlternatives(ctx context.Context, text string) ([]catalog.Game, error) {
	return s.Catalog.SearchGames(ctx, text, s.PageSize)
}

func (s *ReviewServiceImpl) PlatformOptions(ctx context.Context) ([]platform.Option, error) {
	return s.Platforms.Options(ctx)
}
