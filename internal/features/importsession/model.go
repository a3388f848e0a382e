package importsession

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// FileType is the declared kind of an uploaded collection export.
type FileType string

const (
	FileTypeCSV  FileType = "CSV"
	FileTypeXLSX FileType = "XLSX"
	FileTypeJSON FileType = "JSON"
)

// SessionStatus is the lifecycle state of an ImportSession.
type SessionStatus string

const (
	SessionUploaded       SessionStatus = "UPLOADED"
	SessionProcessing     SessionStatus = "PROCESSING"
	SessionReadyForReview SessionStatus = "READY_FOR_REVIEW"
	SessionImporting      SessionStatus = "IMPORTING"
	SessionCompleted      SessionStatus = "COMPLETED"
	SessionFailed         SessionStatus = "FAILED"
	SessionCancelled      SessionStatus = "CANCELLED"
)

// sessionTransitions is the exhaustive legal-transition table. Illegal
// moves are a typed error, never a silent no-op.
var sessionTransitions = map[SessionStatus][]SessionStatus{
	SessionUploaded:       {SessionProcessing, SessionCancelled},
	SessionProcessing:     {SessionReadyForReview, SessionFailed, SessionCancelled},
	SessionReadyForReview: {SessionImporting, SessionCancelled},
	SessionImporting:      {SessionCompleted, SessionFailed},
	SessionCompleted:      {},
	SessionFailed:         {},
	SessionCancelled:      {},
}

// Terminal reports whether no further transitions exist from the status.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionFailed || s == SessionCancelled
}

// CanTransitionTo reports whether the move to next is legal.
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	for _, allowed := range sessionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// MatchStatus is the per-row reconciliation state.
type MatchStatus string

const (
	MatchPending      MatchStatus = "PENDING"
	MatchAutoMatched  MatchStatus = "AUTO_MATCHED"
	MatchManualReview MatchStatus = "MANUAL_REVIEW"
	MatchConfirmed    MatchStatus = "CONFIRMED"
	MatchSkipped      MatchStatus = "SKIPPED"
)

var matchTransitions = map[MatchStatus][]MatchStatus{
	MatchPending:      {MatchAutoMatched, MatchManualReview, MatchSkipped},
	MatchAutoMatched:  {MatchConfirmed, MatchSkipped},
	MatchManualReview: {MatchConfirmed, MatchSkipped},
	// Confirmed and skipped are terminal within a session
	MatchConfirmed: {},
	MatchSkipped:   {},
}

// Terminal reports whether the row can no longer change within its session.
func (m MatchStatus) Terminal() bool {
	return m == MatchConfirmed || m == MatchSkipped
}

// CanTransitionTo reports whether the move to next is legal.
func (m MatchStatus) CanTransitionTo(next MatchStatus) bool {
	for _, allowed := range matchTransitions[m] {
		if allowed == next {
			return true
		}
	}
	return false
}

// InvalidTransitionError names an illegal state-machine move.
type InvalidTransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("illegal %s transition %s -> %s", e.Entity, e.From, e.To)
}

// UserData is the subset of collection-entry attributes applied on
// commit. It is opaque to matching and passes through unchanged.
type UserData struct {
	Progress    *int     `json:"progress,omitempty" bson:"progress,omitempty"`
	Rating      *float64 `json:"rating,omitempty" bson:"rating,omitempty"`
	Status      string   `json:"status,omitempty" bson:"status,omitempty"`
	Media       string   `json:"media,omitempty" bson:"media,omitempty"`
	Price       *float64 `json:"price,omitempty" bson:"price,omitempty"`
	HasBox      *bool    `json:"has_box,omitempty" bson:"has_box,omitempty"`
	HasManual   *bool    `json:"has_manual,omitempty" bson:"has_manual,omitempty"`
	Condition   string   `json:"condition,omitempty" bson:"condition,omitempty"`
	ForTrade    *bool    `json:"for_trade,omitempty" bson:"for_trade,omitempty"`
	Description string   `json:"description,omitempty" bson:"description,omitempty"`
	Abandoned   *bool    `json:"abandoned,omitempty" bson:"abandoned,omitempty"`
	Review      string   `json:"review,omitempty" bson:"review,omitempty"`
}

// ImportSession is one user-initiated bulk-import attempt tied to one
// uploaded file. It owns its ImportMatch rows.
type ImportSession struct {
	ID            primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	UserID        primitive.ObjectID `json:"user_id" bson:"user_id"`
	FileName      string             `json:"file_name" bson:"file_name"`
	FilePath      string             `json:"file_path,omitempty" bson:"file_path,omitempty"`
	FileType      FileType           `json:"file_type" bson:"file_type"`
	Status        SessionStatus      `json:"status" bson:"status"`
	TotalRows     int                `json:"total_rows" bson:"total_rows"`
	ProcessedRows int                `json:"processed_rows" bson:"processed_rows"`
	FailureReason string             `json:"failure_reason,omitempty" bson:"failure_reason,omitempty"`
	CreatedAt     time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at" bson:"updated_at"`
	CompletedAt   *time.Time         `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
}

// ImportMatch is one input line within a session and its matching state.
type ImportMatch struct {
	ID            primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	SessionID     primitive.ObjectID `json:"session_id" bson:"session_id"`
	LineNumber    int                `json:"line_number" bson:"line_number"` // 1-based
	RawTitle      string             `json:"raw_title" bson:"raw_title"`
	NormalizedKey string             `json:"normalized_key,omitempty" bson:"normalized_key,omitempty"`
	Status        MatchStatus        `json:"status" bson:"status"`
	Confidence    *float64           `json:"confidence,omitempty" bson:"confidence,omitempty"`

	SuggestedGameID *int `json:"suggested_game_id,omitempty" bson:"suggested_game_id,omitempty"`
	ConfirmedGameID *int `json:"confirmed_game_id,omitempty" bson:"confirmed_game_id,omitempty"`
	// CandidatePlatformIDs are the platforms the suggested game ships
	// on. A non-empty list means the catalog requires a platform choice
	// before the row can be confirmed.
	CandidatePlatformIDs []int `json:"candidate_platform_ids,omitempty" bson:"candidate_platform_ids,omitempty"`

	PlatformText        string `json:"platform_text,omitempty" bson:"platform_text,omitempty"`
	SuggestedPlatformID *int   `json:"suggested_platform_id,omitempty" bson:"suggested_platform_id,omitempty"`
	ConfirmedPlatformID *int   `json:"confirmed_platform_id,omitempty" bson:"confirmed_platform_id,omitempty"`
	ConfirmedConsoleIDs []int  `json:"confirmed_console_ids,omitempty" bson:"confirmed_console_ids,omitempty"`

	UserData  *UserData `json:"user_data,omitempty" bson:"user_data,omitempty"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}
