package models

import (
	"time"
)

// Log is the persisted shape of an application log line. Pipeline logs
// carry the import session they belong to so a failed session can be
// debugged from the database alone.
type Log struct {
	Message      string    `bson:"message" json:"message"`
	SessionID    string    `bson:"session_id,omitempty" json:"session_id,omitempty"`
	Caller       string    `bson:"caller,omitempty" json:"caller,omitempty"`
	LogLevelId   int       `bson:"log_level_id" json:"log_level_id"`
	AppId        string    `bson:"app_id" json:"app_id"`
	CreatedOnUtc time.Time `bson:"created_on_utc" json:"created_on_utc"`
}
