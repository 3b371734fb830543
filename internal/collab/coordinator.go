package collab

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// UpdatePublisher receives accepted mutations for asynchronous fan-out
// to push-transport clients. Publishing happens outside the session
// lock and must never block the coordinator for long; implementations
// log and drop on failure.
type UpdatePublisher interface {
	PublishUpdate(ctx context.Context, sessionID string, event UpdateEvent)
}

// Event types carried to push clients.
const (
	EventUpdate   = "update"
	EventPresence = "presence"
)

// UpdateEvent is the payload fanned out to other connected clients.
type UpdateEvent struct {
	Type      string        `json:"type"`
	SessionID string        `json:"session_id"`
	UserID    uuid.UUID     `json:"user_id"`
	Update    *UpdateRecord `json:"update,omitempty"`
	UserCount int           `json:"user_count"`
}

// UpdateRequest is a mutation submitted by a participant through either
// transport binding.
type UpdateRequest struct {
	Kind     UpdateKind  `json:"kind"`
	Document Document    `json:"document,omitempty"`
	Field    string      `json:"field,omitempty"`
	Value    interface{} `json:"value,omitempty"`
}

type CreateResult struct {
	SessionID string    `json:"session_id"`
	ShareLink string    `json:"share_link"`
	ExpiresAt time.Time `json:"expires_at"`
}

type JoinResult struct {
	Document  Document `json:"document"`
	UserCount int      `json:"user_count"`
}

type PollResult struct {
	Updates    []UpdateRecord `json:"updates"`
	UserCount  int            `json:"user_count"`
	ServerTime int64          `json:"server_time"`
}

type SnapshotResult struct {
	Document     Document   `json:"document"`
	Permission   Permission `json:"permission"`
	UserCount    int        `json:"user_count"`
	LastActivity time.Time  `json:"last_activity"`
}

// Coordinator is the façade both transport bindings call. It sequences
// the store, update log and presence tracking, and enforces the rules
// transports must not duplicate (view-only rejection, document seeding,
// heartbeat-on-poll). Transports never touch the store directly.
type Coordinator struct {
	store     *Store
	publisher UpdatePublisher

	presenceWindow  time.Duration
	updateRetention time.Duration
	shareBaseURL    string
	now             func() time.Time
}

func NewCoordinator(store *Store, publisher UpdatePublisher, shareBaseURL string, presenceWindow, updateRetention time.Duration) *Coordinator {
	if presenceWindow <= 0 {
		presenceWindow = DefaultPresenceWindow
	}
	if updateRetention <= 0 {
		updateRetention = DefaultUpdateRetention
	}
	return &Coordinator{
		store:           store,
		publisher:       publisher,
		presenceWindow:  presenceWindow,
		updateRetention: updateRetention,
		shareBaseURL:    strings.TrimRight(shareBaseURL, "/"),
		now:             time.Now,
	}
}

// SetPublisher wires the push fan-out target. Call before serving
// traffic; events accepted earlier are simply not pushed.
func (c *Coordinator) SetPublisher(p UpdatePublisher) {
	c.publisher = p
}

// Create registers a session and returns its id plus a shareable link.
func (c *Coordinator) Create(document Document, permission Permission, creatorID uuid.UUID) (CreateResult, error) {
	id, err := c.store.Create(document, permission, creatorID)
	if err != nil {
		return CreateResult{}, err
	}

	sess, err := c.store.Get(id)
	if err != nil {
		return CreateResult{}, err
	}

	return CreateResult{
		SessionID: id,
		ShareLink: fmt.Sprintf("%s/collab/%s", c.shareBaseURL, id),
		ExpiresAt: sess.ExpiresAt,
	}, nil
}

// Join registers presence and returns the current document. When the
// session has no content yet and the joiner supplies an initial
// document, it seeds the session (first joiner defines the content).
func (c *Coordinator) Join(ctx context.Context, sessionID string, userID uuid.UUID, initialDocument Document) (JoinResult, error) {
	sess, err := c.store.lookup(sessionID)
	if err != nil {
		return JoinResult{}, err
	}

	now := c.now()

	sess.mu.Lock()
	if len(sess.document) == 0 && len(initialDocument) > 0 {
		sess.document = copyDocument(initialDocument)
	}
	sess.presence.join(userID, now)
	sess.lastActivity = now
	doc := copyDocument(sess.document)
	count := sess.presence.count(now, c.presenceWindow)
	sess.mu.Unlock()

	c.publish(ctx, sessionID, UpdateEvent{
		Type:      EventPresence,
		SessionID: sessionID,
		UserID:    userID,
		UserCount: count,
	})

	return JoinResult{Document: doc, UserCount: count}, nil
}

// Leave drops the user's presence entry. Leaving a session the user is
// not in is a no-op, not an error.
func (c *Coordinator) Leave(ctx context.Context, sessionID string, userID uuid.UUID) error {
	sess, err := c.store.lookup(sessionID)
	if err != nil {
		return err
	}

	now := c.now()

	sess.mu.Lock()
	sess.presence.leave(userID)
	count := sess.presence.count(now, c.presenceWindow)
	sess.mu.Unlock()

	c.publish(ctx, sessionID, UpdateEvent{
		Type:      EventPresence,
		SessionID: sessionID,
		UserID:    userID,
		UserCount: count,
	})
	return nil
}

// Update applies a mutation, appends it to the update log and hands it
// to the publisher for push fan-out. Updates are timestamped at
// arrival: a delayed retry for the same field loses to whatever arrived
// after it (last-writer-wins), by design.
func (c *Coordinator) Update(ctx context.Context, sessionID string, userID uuid.UUID, req UpdateRequest) error {
	switch req.Kind {
	case UpdateFull:
		if req.Document == nil {
			return fmt.Errorf("%w: full update requires a document", ErrInvalidInput)
		}
	case UpdateField:
		if req.Field == "" {
			return fmt.Errorf("%w: field update requires a field name", ErrInvalidInput)
		}
	default:
		return fmt.Errorf("%w: kind must be full or field", ErrInvalidInput)
	}

	sess, err := c.store.lookup(sessionID)
	if err != nil {
		return err
	}

	now := c.now()

	sess.mu.Lock()
	if sess.permission != PermissionEdit {
		sess.mu.Unlock()
		return fmt.Errorf("%w: session is view-only", ErrForbidden)
	}

	ts := sess.nextTimestamp(now)
	rec := UpdateRecord{
		UserID:    userID,
		Timestamp: ts,
		Kind:      req.Kind,
	}

	switch req.Kind {
	case UpdateFull:
		// Shallow merge: incoming keys overwrite, absent keys survive.
		for k, v := range req.Document {
			sess.document[k] = copyValue(v)
		}
		rec.Document = copyDocument(req.Document)
	case UpdateField:
		sess.document[req.Field] = copyValue(req.Value)
		rec.Field = req.Field
		rec.Value = copyValue(req.Value)
	}
	sess.document[MetaLastUpdatedBy] = userID.String()
	sess.document[MetaLastUpdatedAt] = ts

	sess.log.append(rec)
	sess.presence.join(userID, now)
	sess.lastActivity = now
	count := sess.presence.count(now, c.presenceWindow)
	sess.mu.Unlock()

	c.publish(ctx, sessionID, UpdateEvent{
		Type:      EventUpdate,
		SessionID: sessionID,
		UserID:    userID,
		Update:    &rec,
		UserCount: count,
	})
	return nil
}

// Poll answers "anything new since ts?" for the poll binding. It also
// counts as a heartbeat and opportunistically prunes this session's
// stale presence and log entries instead of waiting for the reaper.
func (c *Coordinator) Poll(sessionID string, userID uuid.UUID, since int64) (PollResult, error) {
	sess, err := c.store.lookup(sessionID)
	if err != nil {
		return PollResult{}, err
	}

	now := c.now()

	sess.mu.Lock()
	defer sess.mu.Unlock()

	sess.presence.join(userID, now)
	sess.lastActivity = now
	sess.presence.prune(now, c.presenceWindow)
	sess.log.prune(now.Add(-c.updateRetention))

	serverTime := now.UnixMilli()
	if sess.lastTimestamp > serverTime {
		serverTime = sess.lastTimestamp
	}

	return PollResult{
		Updates:    sess.log.since(since),
		UserCount:  sess.presence.count(now, c.presenceWindow),
		ServerTime: serverTime,
	}, nil
}

// Heartbeat refreshes the user's presence without touching activity.
// The push binding calls it on every keep-alive.
func (c *Coordinator) Heartbeat(sessionID string, userID uuid.UUID) error {
	sess, err := c.store.lookup(sessionID)
	if err != nil {
		return err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.presence.join(userID, c.now())
	return nil
}

// Snapshot returns the current document plus presence info.
func (c *Coordinator) Snapshot(sessionID string) (SnapshotResult, error) {
	sess, err := c.store.lookup(sessionID)
	if err != nil {
		return SnapshotResult{}, err
	}

	now := c.now()

	sess.mu.Lock()
	defer sess.mu.Unlock()

	return SnapshotResult{
		Document:     copyDocument(sess.document),
		Permission:   sess.permission,
		UserCount:    sess.presence.count(now, c.presenceWindow),
		LastActivity: sess.lastActivity,
	}, nil
}

// Delete removes a session on behalf of its creator.
func (c *Coordinator) Delete(sessionID string, requesterID uuid.UUID) error {
	return c.store.Delete(sessionID, requesterID)
}

// Refresh extends the session deadline to now + TTL.
func (c *Coordinator) Refresh(sessionID string) (time.Time, error) {
	return c.store.Refresh(sessionID)
}

func (c *Coordinator) publish(ctx context.Context, sessionID string, event UpdateEvent) {
	if c.publisher == nil {
		return
	}
	c.publisher.PublishUpdate(ctx, sessionID, event)
}
