package review

import (
	"errors"
	"fmt"

	"gamevault/internal/features/importsession"
)

// ErrPollInFlight rejects overlapping polls for the same session id.
var ErrPollInFlight = errors.New("review: poll already in flight for session")

// ErrNoConfirmedRows rejects an execute with nothing to commit.
var ErrNoConfirmedRows = errors.New("review: session has no confirmed rows")

// ErrPlatformRequired rejects confirming a row whose game requires a
// platform choice that was neither supplied nor suggested.
var ErrPlatformRequired = errors.New("review: platform required to confirm this row")

// ErrNoGameChosen rejects confirming a row with neither an override nor
// a suggestion to accept.
var ErrNoGameChosen = errors.New("review: no game chosen for row")

// InvalidSessionStateError names the expected vs actual session status
// for an operation attempted in the wrong state.
type InvalidSessionStateError struct {
	SessionID string
	Expected  importsession.SessionStatus
	Actual    importsession.SessionStatus
}

func (e *InvalidSessionStateError) Error() string {
	return fmt.Sprintf("session %s is %s, operation requires %s", e.SessionID, e.Actual, e.Expected)
}

// EditAction is a user decision on one row.
type EditAction string

const (
	EditConfirm EditAction = "confirm"
	EditSkip    EditAction = "skip"
)

// MatchEdit is one user decision in a confirm batch. A confirm with no
// GameID accepts the suggestion; with a GameID it overrides it.
type MatchEdit struct {
	MatchID    string                   `json:"match_id"`
	Action     EditAction               `json:"action"`
	GameID     *int                     `json:"game_id,omitempty"`
	PlatformID *int                     `json:"platform_id,omitempty"`
	ConsoleIDs []int                    `json:"console_ids,omitempty"`
	UserData   *importsession.UserData  `json:"user_data,omitempty"`
}

// ExecuteResult reports a commit. ImportedCount below TotalMatches is
// the normal partial-success case, not an error.
type ExecuteResult struct {
	ImportedCount int `json:"imported_count"`
	TotalMatches  int `json:"total_matches"`
}
