package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SavedReport is a finished document persisted out of a live
// collaborative session. Live sessions themselves are never persisted;
// saving is an explicit, one-shot copy.
type SavedReport struct {
	ID        uuid.UUID       `json:"id"`
	SessionID string          `json:"session_id"`
	UserID    uuid.UUID       `json:"user_id"`
	Title     string          `json:"title"`
	Document  json.RawMessage `json:"document"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
