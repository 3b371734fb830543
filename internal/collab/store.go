package collab

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultSessionTTL is the absolute session lifetime, measured from
	// creation. Expiry is not sliding: activity never extends it.
	DefaultSessionTTL = 24 * time.Hour

	// DefaultPresenceWindow is how long a silent user stays counted as
	// present.
	DefaultPresenceWindow = 5 * time.Minute

	// DefaultUpdateRetention is how long update records stay replayable.
	DefaultUpdateRetention = 5 * time.Minute

	sessionIDLength   = 8
	sessionIDAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// Store owns the canonical in-memory session table. It knows nothing
// about transports; every mutation elsewhere in the process goes
// through it or the Coordinator sitting on top of it.
//
// Locking is two-level: the store mutex guards only the map itself,
// each session carries its own mutex for document/presence/log state.
// Operations on different sessions proceed fully in parallel.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*session

	sessionTTL time.Duration
	now        func() time.Time
}

func NewStore(sessionTTL time.Duration) *Store {
	if sessionTTL <= 0 {
		sessionTTL = DefaultSessionTTL
	}
	return &Store{
		sessions:   make(map[string]*session),
		sessionTTL: sessionTTL,
		now:        time.Now,
	}
}

// Create registers a new session and returns its id. The initial
// document is required: a session with no document is not creatable.
func (s *Store) Create(initialDocument Document, permission Permission, creatorID uuid.UUID) (string, error) {
	if initialDocument == nil {
		return "", fmt.Errorf("%w: initial document is required", ErrInvalidInput)
	}
	if !permission.Valid() {
		return "", fmt.Errorf("%w: permission must be view or edit", ErrInvalidInput)
	}

	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.newSessionID()
	if err != nil {
		return "", err
	}

	s.sessions[id] = &session{
		id:           id,
		creatorID:    creatorID,
		document:     copyDocument(initialDocument),
		permission:   permission,
		createdAt:    now,
		lastActivity: now,
		expiresAt:    now.Add(s.sessionTTL),
		presence:     make(presenceSet),
	}
	return id, nil
}

// Get returns a point-in-time snapshot of the session. The returned
// document is a copy. Expired sessions report ErrGone until the reaper
// purges them, after which the id reports ErrNotFound.
func (s *Store) Get(id string) (Session, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return Session{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.snapshot(), nil
}

// Delete removes a session. Only the creator may delete one.
func (s *Store) Delete(id string, requesterID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if sess.creatorID != requesterID {
		return fmt.Errorf("%w: only the creator may delete a session", ErrForbidden)
	}
	delete(s.sessions, id)
	return nil
}

// Touch updates lastActivity. Expiry is unaffected.
func (s *Store) Touch(id string) error {
	sess, err := s.lookup(id)
	if err != nil {
		return err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.lastActivity = s.now()
	return nil
}

// Refresh pushes the expiry deadline out to now + TTL on demand.
func (s *Store) Refresh(id string) (time.Time, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return time.Time{}, err
	}

	deadline := s.now().Add(s.sessionTTL)

	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.expiresAt = deadline
	return deadline, nil
}

// Len reports the number of live (not yet purged) sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// lookup finds a session and classifies expired ones as ErrGone. The
// physical purge stays with the reaper; lookup only refuses access.
func (s *Store) lookup(id string) (*session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	if sess.expired(s.now()) {
		return nil, ErrGone
	}
	return sess, nil
}

// sweep enforces the time-based deletion policies: purge expired
// sessions, drop stale presence entries, prune old update records.
// Holds the store lock only while snapshotting and deleting map
// entries; per-session pruning takes only that session's lock.
func (s *Store) sweep(now time.Time, presenceWindow, updateRetention time.Duration) (purged int) {
	s.mu.RLock()
	live := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		live = append(live, sess)
	}
	s.mu.RUnlock()

	var expired []string
	for _, sess := range live {
		if sess.expired(now) {
			expired = append(expired, sess.id)
			continue
		}
		sess.mu.Lock()
		sess.presence.prune(now, presenceWindow)
		sess.log.prune(now.Add(-updateRetention))
		sess.mu.Unlock()
	}

	if len(expired) > 0 {
		s.mu.Lock()
		for _, id := range expired {
			if sess, ok := s.sessions[id]; ok && sess.expired(now) {
				delete(s.sessions, id)
				purged++
			}
		}
		s.mu.Unlock()
	}
	return purged
}

// newSessionID generates an 8-character base62 token, retrying on the
// (negligible) chance of collision with a live session. Caller holds
// the store lock.
func (s *Store) newSessionID() (string, error) {
	alphabetLen := big.NewInt(int64(len(sessionIDAlphabet)))
	for {
		buf := make([]byte, sessionIDLength)
		for i := range buf {
			n, err := rand.Int(rand.Reader, alphabetLen)
			if err != nil {
				return "", fmt.Errorf("failed to generate session id: %w", err)
			}
			buf[i] = sessionIDAlphabet[n.Int64()]
		}
		id := string(buf)
		if _, exists := s.sessions[id]; !exists {
			return id, nil
		}
	}
}
