package collection

import (
	"time"

	"gamevault/internal/features/importsession"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Entry is a committed collection item: the permanent result of one
// confirmed import row.
type Entry struct {
	ID             primitive.ObjectID       `json:"id" bson:"_id,omitempty"`
	UserID         primitive.ObjectID       `json:"user_id" bson:"user_id"`
	SessionID      primitive.ObjectID       `json:"session_id,omitempty" bson:"session_id,omitempty"`
	GameID         int                      `json:"game_id" bson:"game_id"`
	PlatformID     *int                     `json:"platform_id,omitempty" bson:"platform_id,omitempty"`
	ConsoleIDs     []int                    `json:"console_ids,omitempty" bson:"console_ids,omitempty"`
	CatalogEntryID string                   `json:"catalog_entry_id,omitempty" bson:"catalog_entry_id,omitempty"`
	UserData       *importsession.UserData  `json:"user_data,omitempty" bson:"user_data,omitempty"`
	CreatedAt      time.Time                `json:"created_at" bson:"created_at"`
}
