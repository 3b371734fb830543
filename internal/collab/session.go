package collab

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Permission controls what participants may do inside a session.
type Permission string

const (
	PermissionView Permission = "view"
	PermissionEdit Permission = "edit"
)

func (p Permission) Valid() bool {
	return p == PermissionView || p == PermissionEdit
}

// Document is the report-in-progress being edited. The core never
// interprets its shape beyond shallow merge.
type Document map[string]interface{}

// Metadata keys stamped onto the document on every accepted update.
const (
	MetaLastUpdatedBy = "_lastUpdatedBy"
	MetaLastUpdatedAt = "_lastUpdatedAt"
)

type UpdateKind string

const (
	UpdateFull  UpdateKind = "full"
	UpdateField UpdateKind = "field"
)

// UpdateRecord is one entry in a session's update log.
type UpdateRecord struct {
	UserID    uuid.UUID   `json:"user_id"`
	Timestamp int64       `json:"timestamp"`
	Kind      UpdateKind  `json:"kind"`
	Document  Document    `json:"document,omitempty"`
	Field     string      `json:"field,omitempty"`
	Value     interface{} `json:"value,omitempty"`
}

// PresenceEntry tracks one user currently considered "in" a session.
type PresenceEntry struct {
	UserID   uuid.UUID `json:"user_id"`
	JoinedAt time.Time `json:"joined_at"`
	LastSeen time.Time `json:"last_seen"`
}

// Session is the read-only view handed out by the store. The document
// is always a copy; mutating it never affects stored state.
type Session struct {
	ID           string     `json:"id"`
	Document     Document   `json:"document"`
	Permission   Permission `json:"permission"`
	CreatorID    uuid.UUID  `json:"creator_id"`
	CreatedAt    time.Time  `json:"created_at"`
	LastActivity time.Time  `json:"last_activity"`
	ExpiresAt    time.Time  `json:"expires_at"`
}

// session is the mutable store-side state. All fields below mu are
// guarded by it; different sessions never share a lock.
type session struct {
	id        string
	creatorID uuid.UUID

	mu            sync.Mutex
	document      Document
	permission    Permission
	createdAt     time.Time
	lastActivity  time.Time
	expiresAt     time.Time
	lastTimestamp int64
	presence      presenceSet
	log           updateLog
}

// nextTimestamp assigns the arrival timestamp for an update. Wall-clock
// milliseconds, forced non-decreasing per session so duplicate or
// backwards clock reads keep insertion order stable.
func (s *session) nextTimestamp(now time.Time) int64 {
	ts := now.UnixMilli()
	if ts < s.lastTimestamp {
		ts = s.lastTimestamp
	}
	s.lastTimestamp = ts
	return ts
}

func (s *session) expired(now time.Time) bool {
	return now.After(s.expiresAt)
}

func (s *session) snapshot() Session {
	return Session{
		ID:           s.id,
		Document:     copyDocument(s.document),
		Permission:   s.permission,
		CreatorID:    s.creatorID,
		CreatedAt:    s.createdAt,
		LastActivity: s.lastActivity,
		ExpiresAt:    s.expiresAt,
	}
}

// copyDocument deep-copies maps and slices so callers can never reach
// back into stored state through a shared reference.
func copyDocument(doc Document) Document {
	if doc == nil {
		return nil
	}
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, inner := range val {
			out[k] = copyValue(inner)
		}
		return out
	case Document:
		return map[string]interface{}(copyDocument(val))
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, inner := range val {
			out[i] = copyValue(inner)
		}
		return out
	default:
		return v
	}
}
