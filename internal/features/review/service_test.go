package review

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"gamevault/internal/catalog"
	"gamevault/internal/features/collection"
	"gamevault/internal/features/importsession"
	"gamevault/internal/features/platform"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type fakeSessions struct {
	mu       sync.Mutex
	sessions map[primitive.ObjectID]*importsession.ImportSession
	repo     *fakeRepo
}

func newFakeSessions(repo *fakeRepo) *fakeSessions {
	return &fakeSessions{sessions: make(map[primitive.ObjectID]*importsession.ImportSession), repo: repo}
}

func (f *fakeSessions) Create(ctx context.Context, session *importsession.ImportSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	session.ID = primitive.NewObjectID()
	f.sessions[session.ID] = session
	return nil
}

func (f *fakeSessions) Get(ctx context.Context, userID, sessionID primitive.ObjectID) (*importsession.ImportSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[sessionID]
	if !ok || session.UserID != userID {
		return nil, importsession.ErrSessionNotFound
	}
	copied := *session
	return &copied, nil
}

func (f *fakeSessions) GetWithMatches(ctx context.Context, userID, sessionID primitive.ObjectID) (*importsession.ImportSession, []importsession.ImportMatch, error) {
	session, err := f.Get(ctx, userID, sessionID)
	if err != nil {
		return nil, nil, err
	}
	matches, _ := f.repo.ListMatches(ctx, sessionID)
	return session, matches, nil
}

func (f *fakeSessions) ListByUser(ctx context.Context, userID primitive.ObjectID) ([]importsession.ImportSession, error) {
	return nil, nil
}

func (f *fakeSessions) Process(ctx context.Context, sessionID primitive.ObjectID) error {
	return nil
}

func (f *fakeSessions) Transition(ctx context.Context, session *importsession.ImportSession, next importsession.SessionStatus) error {
	if !session.Status.CanTransitionTo(next) {
		return &importsession.InvalidTransitionError{Entity: "session", From: string(session.Status), To: string(next)}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := f.sessions[session.ID]
	// The real store writes conditionally on the snapshot status
	if stored.Status != session.Status {
		return &importsession.InvalidTransitionError{Entity: "session", From: string(stored.Status), To: string(next)}
	}
	stored.Status = next
	session.Status = next
	return nil
}

func (f *fakeSessions) Cancel(ctx context.Context, userID, sessionID primitive.ObjectID) (*importsession.ImportSession, error) {
	return f.Get(ctx, userID, sessionID)
}

func (f *fakeSessions) setStatus(sessionID primitive.ObjectID, status importsession.SessionStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[sessionID].Status = status
}

// fakeRepo only backs the match methods the coordinator touches.
type fakeRepo struct {
	mu      sync.Mutex
	matches map[primitive.ObjectID]*importsession.ImportMatch
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{matches: make(map[primitive.ObjectID]*importsession.ImportMatch)}
}

func (r *fakeRepo) CreateSession(ctx context.Context, session *importsession.ImportSession) error {
	return nil
}
func (r *fakeRepo) GetSession(ctx context.Context, id primitive.ObjectID) (*importsession.ImportSession, error) {
	return nil, importsession.ErrSessionNotFound
}
func (r *fakeRepo) ListSessionsByUser(ctx context.Context, userID primitive.ObjectID, limit int64) ([]importsession.ImportSession, error) {
	return nil, nil
}
func (r *fakeRepo) UpdateStatus(ctx context.Context, id primitive.ObjectID, from, to importsession.SessionStatus) error {
	return nil
}
func (r *fakeRepo) SetFailure(ctx context.Context, id primitive.ObjectID, reason string) error {
	return nil
}
func (r *fakeRepo) SetTotalRows(ctx context.Context, id primitive.ObjectID, total int) error {
	return nil
}
func (r *fakeRepo) IncrementProcessed(ctx context.Context, id primitive.ObjectID) error {
	return nil
}
func (r *fakeRepo) FailStaleProcessing(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (r *fakeRepo) CreateMatches(ctx context.Context, matches []importsession.ImportMatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range matches {
		if matches[i].ID.IsZero() {
			matches[i].ID = primitive.NewObjectID()
		}
		copied := matches[i]
		r.matches[copied.ID] = &copied
	}
	return nil
}

func (r *fakeRepo) GetMatch(ctx context.Context, id primitive.ObjectID) (*importsession.ImportMatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	match, ok := r.matches[id]
	if !ok {
		return nil, errors.New("match not found")
	}
	copied := *match
	return &copied, nil
}

func (r *fakeRepo) ListMatches(ctx context.Context, sessionID primitive.ObjectID) ([]importsession.ImportMatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []importsession.ImportMatch
	for _, match := range r.matches {
		if match.SessionID == sessionID {
			out = append(out, *match)
		}
	}
	return out, nil
}

func (r *fakeRepo) UpdateMatch(ctx context.Context, match *importsession.ImportMatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *match
	r.matches[match.ID] = &copied
	return nil
}

func (r *fakeRepo) DeleteMatches(ctx context.Context, sessionID primitive.ObjectID) error {
	return nil
}

type fakeCollection struct {
	mu       sync.Mutex
	failGame int
	commits  []int
}

func (f *fakeCollection) CommitRow(ctx context.Context, userID primitive.ObjectID, row *importsession.ImportMatch) (*collection.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if row.ConfirmedGameID != nil && *row.ConfirmedGameID == f.failGame {
		return nil, errors.New("catalog rejected entry")
	}
	if row.ConfirmedGameID != nil {
		f.commits = append(f.commits, *row.ConfirmedGameID)
	}
	return &collection.Entry{}, nil
}

func (f *fakeCollection) ListByUser(ctx context.Context, userID primitive.ObjectID) ([]collection.Entry, error) {
	return nil, nil
}

type fakeCatalogClient struct {
	games []catalog.Game
}

func (f *fakeCatalogClient) SearchGames(ctx context.Context, query string, pageSize int) ([]catalog.Game, error) {
	return f.games, nil
}
func (f *fakeCatalogClient) GetPlatformTaxonomy(ctx context.Context) ([]catalog.ParentPlatform, error) {
	return nil, nil
}
func (f *fakeCatalogClient) CreateCollectionEntry(ctx context.Context, req catalog.CollectionEntryRequest) (*catalog.CollectionEntry, error) {
	return nil, errors.New("not used")
}

type fakePlatformService struct{}

func (f *fakePlatformService) Resolve(ctx context.Context, text string) (*platform.Resolution, error) {
	return nil, nil
}
func (f *fakePlatformService) Options(ctx context.Context) ([]platform.Option, error) {
	return []platform.Option{{ID: 2, Name: "PlayStation 5"}}, nil
}
func (f *fakePlatformService) Refresh(ctx context.Context) error { return nil }

func newTestReviewService(sessions *fakeSessions, repo *fakeRepo, coll *fakeCollection) *ReviewServiceImpl {
	return &ReviewServiceImpl{
		Sessions:     sessions,
		Repo:         repo,
		Collection:   coll,
		Catalog:      &fakeCatalogClient{},
		Platforms:    &fakePlatformService{},
		Logger:       zap.NewNop(),
		PollInterval: 5 * time.Millisecond,
		PageSize:     20,
		inFlight:     make(map[string]struct{}),
	}
}

func seedSession(t *testing.T, sessions *fakeSessions, userID primitive.ObjectID, status importsession.SessionStatus) *importsession.ImportSession {
	t.Helper()
	session := &importsession.ImportSession{UserID: userID, FileName: "games.csv", FileType: importsession.FileTypeCSV}
	if err := sessions.Create(context.Background(), session); err != nil {
		t.Fatalf("create session: %v", err)
	}
	sessions.setStatus(session.ID, status)
	session.Status = status
	return session
}

func seedMatch(t *testing.T, repo *fakeRepo, sessionID primitive.ObjectID, line int, status importsession.MatchStatus, gameID int) primitive.ObjectID {
	t.Helper()
	match := importsession.ImportMatch{
		ID:         primitive.NewObjectID(),
		SessionID:  sessionID,
		LineNumber: line,
		RawTitle:   fmt.Sprintf("Game %d", line),
		Status:     status,
	}
	if gameID != 0 {
		match.SuggestedGameID = &gameID
		if status == importsession.MatchConfirmed {
			match.ConfirmedGameID = &gameID
		}
	}
	if err := repo.CreateMatches(context.Background(), []importsession.ImportMatch{match}); err != nil {
		t.Fatalf("seed match: %v", err)
	}
	return match.ID
}

func TestConfirmRejectsWrongSessionStatus(t *testing.T) {
	repo := newFakeRepo()
	sessions := newFakeSessions(repo)
	svc := newTestReviewService(sessions, repo, &fakeCollection{})

	userID := primitive.NewObjectID()
	session := seedSession(t, sessions, userID, importsession.SessionProcessing)
	matchID := seedMatch(t, repo, session.ID, 1, importsession.MatchManualReview, 42)

	edits := []MatchEdit{{MatchID: matchID.Hex(), Action: EditConfirm}}
	_, err := svc.ConfirmMatches(context.Background(), userID, session.ID, edits)

	var stateErr *InvalidSessionStateError
	if !errors.As(err, &stateErr) {
		t.Fatalf("expected InvalidSessionStateError, got %v", err)
	}

	row, _ := repo.GetMatch(context.Background(), matchID)
	if row.Status != importsession.MatchManualReview {
		t.Fatalf("rejected confirm must not mutate rows, status = %s", row.Status)
	}
}

func TestConfirmBatchIsAllOrNothing(t *testing.T) {
	repo := newFakeRepo()
	sessions := newFakeSessions(repo)
	svc := newTestReviewService(sessions, repo, &fakeCollection{})

	userID := primitive.NewObjectID()
	session := seedSession(t, sessions, userID, importsession.SessionReadyForReview)
	goodID := seedMatch(t, repo, session.ID, 1, importsession.MatchManualReview, 42)
	// No suggestion and no override: confirming this row must fail
	badID := seedMatch(t, repo, session.ID, 2, importsession.MatchManualReview, 0)

	edits := []MatchEdit{
		{MatchID: goodID.Hex(), Action: EditConfirm},
		{MatchID: badID.Hex(), Action: EditConfirm},
	}
	if _, err := svc.ConfirmMatches(context.Background(), userID, session.ID, edits); !errors.Is(err, ErrNoGameChosen) {
		t.Fatalf("expected ErrNoGameChosen, got %v", err)
	}

	row, _ := repo.GetMatch(context.Background(), goodID)
	if row.Status != importsession.MatchManualReview {
		t.Fatalf("failed batch must leave earlier rows untouched, status = %s", row.Status)
	}
}

func TestConfirmAcceptsSuggestionAndOverride(t *testing.T) {
	repo := newFakeRepo()
	sessions := newFakeSessions(repo)
	svc := newTestReviewService(sessions, repo, &fakeCollection{})

	userID := primitive.NewObjectID()
	session := seedSession(t, sessions, userID, importsession.SessionReadyForReview)
	acceptID := seedMatch(t, repo, session.ID, 1, importsession.MatchManualReview, 42)
	overrideID := seedMatch(t, repo, session.ID, 2, importsession.MatchManualReview, 0)

	chosen := 99
	edits := []MatchEdit{
		{MatchID: acceptID.Hex(), Action: EditConfirm},
		{MatchID: overrideID.Hex(), Action: EditConfirm, GameID: &chosen},
	}
	updated, err := svc.ConfirmMatches(context.Background(), userID, session.ID, edits)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if len(updated) != 2 {
		t.Fatalf("updated rows = %d, want 2", len(updated))
	}

	accepted, _ := repo.GetMatch(context.Background(), acceptID)
	if accepted.Status != importsession.MatchConfirmed || accepted.ConfirmedGameID == nil || *accepted.ConfirmedGameID != 42 {
		t.Fatalf("accepted row = %+v", accepted)
	}
	overridden, _ := repo.GetMatch(context.Background(), overrideID)
	if overridden.ConfirmedGameID == nil || *overridden.ConfirmedGameID != 99 {
		t.Fatalf("overridden row = %+v", overridden)
	}
}

func TestConfirmRejectsConflictingEditsForSameRow(t *testing.T) {
	repo := newFakeRepo()
	sessions := newFakeSessions(repo)
	svc := newTestReviewService(sessions, repo, &fakeCollection{})

	userID := primitive.NewObjectID()
	session := seedSession(t, sessions, userID, importsession.SessionReadyForReview)
	matchID := seedMatch(t, repo, session.ID, 1, importsession.MatchManualReview, 42)

	// The second edit targets the row already confirmed by the first one
	edits := []MatchEdit{
		{MatchID: matchID.Hex(), Action: EditConfirm},
		{MatchID: matchID.Hex(), Action: EditSkip},
	}
	_, err := svc.ConfirmMatches(context.Background(), userID, session.ID, edits)

	var transitionErr *importsession.InvalidTransitionError
	if !errors.As(err, &transitionErr) {
		t.Fatalf("expected InvalidTransitionError for conflicting edits, got %v", err)
	}

	row, _ := repo.GetMatch(context.Background(), matchID)
	if row.Status != importsession.MatchManualReview {
		t.Fatalf("failed batch must not mutate the row, status = %s", row.Status)
	}
}

func TestConfirmRequiresPlatformWhenCandidatesExist(t *testing.T) {
	repo := newFakeRepo()
	sessions := newFakeSessions(repo)
	svc := newTestReviewService(sessions, repo, &fakeCollection{})

	userID := primitive.NewObjectID()
	session := seedSession(t, sessions, userID, importsession.SessionReadyForReview)

	gameID := 42
	match := importsession.ImportMatch{
		ID:                   primitive.NewObjectID(),
		SessionID:            session.ID,
		LineNumber:           1,
		RawTitle:             "Elden Ring",
		Status:               importsession.MatchManualReview,
		SuggestedGameID:      &gameID,
		CandidatePlatformIDs: []int{2, 7},
	}
	repo.CreateMatches(context.Background(), []importsession.ImportMatch{match})

	edits := []MatchEdit{{MatchID: match.ID.Hex(), Action: EditConfirm}}
	if _, err := svc.ConfirmMatches(context.Background(), userID, session.ID, edits); !errors.Is(err, ErrPlatformRequired) {
		t.Fatalf("expected ErrPlatformRequired, got %v", err)
	}

	platformID := 7
	edits[0].PlatformID = &platformID
	updated, err := svc.ConfirmMatches(context.Background(), userID, session.ID, edits)
	if err != nil {
		t.Fatalf("confirm with platform: %v", err)
	}
	if updated[0].ConfirmedPlatformID == nil || *updated[0].ConfirmedPlatformID != 7 {
		t.Fatalf("confirmed platform = %v", updated[0].ConfirmedPlatformID)
	}
}

func TestExecuteImportCommitsConfirmedRows(t *testing.T) {
	repo := newFakeRepo()
	sessions := newFakeSessions(repo)
	coll := &fakeCollection{}
	svc := newTestReviewService(sessions, repo, coll)

	userID := primitive.NewObjectID()
	session := seedSession(t, sessions, userID, importsession.SessionReadyForReview)

	for line := 1; line <= 7; line++ {
		seedMatch(t, repo, session.ID, line, importsession.MatchConfirmed, line)
	}
	for line := 8; line <= 10; line++ {
		seedMatch(t, repo, session.ID, line, importsession.MatchSkipped, 0)
	}

	result, err := svc.ExecuteImport(context.Background(), userID, session.ID)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.ImportedCount != 7 || result.TotalMatches != 10 {
		t.Fatalf("result = %+v, want imported 7 of 10", result)
	}
	if len(coll.commits) != 7 {
		t.Fatalf("committed rows = %d, want 7", len(coll.commits))
	}

	got, _ := sessions.Get(context.Background(), userID, session.ID)
	if got.Status != importsession.SessionCompleted {
		t.Fatalf("session status = %s, want %s", got.Status, importsession.SessionCompleted)
	}
}

func TestExecuteImportReportsPartialSuccess(t *testing.T) {
	repo := newFakeRepo()
	sessions := newFakeSessions(repo)
	coll := &fakeCollection{failGame: 13}
	svc := newTestReviewService(sessions, repo, coll)

	userID := primitive.NewObjectID()
	session := seedSession(t, sessions, userID, importsession.SessionReadyForReview)

	for line := 1; line <= 7; line++ {
		gameID := line
		if line == 4 {
			gameID = 13 // commit for this row fails
		}
		seedMatch(t, repo, session.ID, line, importsession.MatchConfirmed, gameID)
	}
	for line := 8; line <= 10; line++ {
		seedMatch(t, repo, session.ID, line, importsession.MatchSkipped, 0)
	}

	result, err := svc.ExecuteImport(context.Background(), userID, session.ID)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.ImportedCount != 6 || result.TotalMatches != 10 {
		t.Fatalf("result = %+v, want imported 6 of 10", result)
	}

	got, _ := sessions.Get(context.Background(), userID, session.ID)
	if got.Status != importsession.SessionCompleted {
		t.Fatalf("session status = %s, want %s", got.Status, importsession.SessionCompleted)
	}
}

func TestExecuteImportRequiresConfirmedRows(t *testing.T) {
	repo := newFakeRepo()
	sessions := newFakeSessions(repo)
	svc := newTestReviewService(sessions, repo, &fakeCollection{})

	userID := primitive.NewObjectID()
	session := seedSession(t, sessions, userID, importsession.SessionReadyForReview)
	seedMatch(t, repo, session.ID, 1, importsession.MatchSkipped, 0)

	if _, err := svc.ExecuteImport(context.Background(), userID, session.ID); !errors.Is(err, ErrNoConfirmedRows) {
		t.Fatalf("expected ErrNoConfirmedRows, got %v", err)
	}

	got, _ := sessions.Get(context.Background(), userID, session.ID)
	if got.Status != importsession.SessionReadyForReview {
		t.Fatalf("session status = %s, must stay %s", got.Status, importsession.SessionReadyForReview)
	}
}

func TestExecuteImportRejectsWrongStatus(t *testing.T) {
	repo := newFakeRepo()
	sessions := newFakeSessions(repo)
	svc := newTestReviewService(sessions, repo, &fakeCollection{})

	userID := primitive.NewObjectID()
	session := seedSession(t, sessions, userID, importsession.SessionCompleted)

	var stateErr *InvalidSessionStateError
	if _, err := svc.ExecuteImport(context.Background(), userID, session.ID); !errors.As(err, &stateErr) {
		t.Fatalf("expected InvalidSessionStateError, got %v", err)
	}
}

func TestPollStopsWhenProcessingSettles(t *testing.T) {
	repo := newFakeRepo()
	sessions := newFakeSessions(repo)
	svc := newTestReviewService(sessions, repo, &fakeCollection{})

	userID := primitive.NewObjectID()
	session := seedSession(t, sessions, userID, importsession.SessionProcessing)

	go func() {
		time.Sleep(20 * time.Millisecond)
		sessions.setStatus(session.ID, importsession.SessionReadyForReview)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got, err := svc.PollSession(ctx, userID, session.ID)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if got.Status != importsession.SessionReadyForReview {
		t.Fatalf("poll returned status %s, want %s", got.Status, importsession.SessionReadyForReview)
	}
}

func TestPollHonorsContextCancellation(t *testing.T) {
	repo := newFakeRepo()
	sessions := newFakeSessions(repo)
	svc := newTestReviewService(sessions, repo, &fakeCollection{})

	userID := primitive.NewObjectID()
	session := seedSession(t, sessions, userID, importsession.SessionProcessing)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	if _, err := svc.PollSession(ctx, userID, session.ID); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestPollIsSingleFlightPerSession(t *testing.T) {
	repo := newFakeRepo()
	sessions := newFakeSessions(repo)
	svc := newTestReviewService(sessions, repo, &fakeCollection{})

	userID := primitive.NewObjectID()
	session := seedSession(t, sessions, userID, importsession.SessionProcessing)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan struct{})
	done := make(chan struct{})
	go func() {
		close(started)
		svc.PollSession(ctx, userID, session.ID)
		close(done)
	}()

	<-started
	time.Sleep(10 * time.Millisecond)
	if _, err := svc.PollSession(context.Background(), userID, session.ID); !errors.Is(err, ErrPollInFlight) {
		t.Fatalf("expected ErrPollInFlight, got %v", err)
	}

	cancel()
	<-done

	// Slot is released once the first poll returns
	sessions.setStatus(session.ID, importsession.SessionReadyForReview)
	if _, err := svc.PollSession(context.Background(), userID, session.ID); err != nil {
		t.Fatalf("poll after release: %v", err)
	}
}

func TestSearchAlternativesDoesNotTouchSessions(t *testing.T) {
	repo := newFakeRepo()
	sessions := newFakeSessions(repo)
	svc := newTestReviewService(sessions, repo, &fakeCollection{})
	svc.Catalog = &fakeCatalogClient{games: []catalog.Game{{ID: 1, Name: "Hades"}}}

	games, err := svc.SearchAlternatives(context.Background(), "hades")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(games) != 1 || games[0].Name != "Hades" {
		t.Fatalf("games = %+v", games)
	}
}
