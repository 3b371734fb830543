package collab

import (
	"time"

	"github.com/google/uuid"
)

// presenceSet tracks which users are currently considered "in" a
// session, derived from recent activity rather than connection state.
// Guarded by the owning session's mutex.
type presenceSet map[uuid.UUID]*PresenceEntry

// join inserts or refreshes the entry for userID. Re-joining never
// creates a duplicate, and refreshing never moves lastSeen backwards.
func (p presenceSet) join(userID uuid.UUID, now time.Time) {
	if _, ok := p[userID]; ok {
		p.heartbeat(userID, now)
		return
	}
	p[userID] = &PresenceEntry{
		UserID:   userID,
		JoinedAt: now,
		LastSeen: now,
	}
}

// leave removes the entry if present; absent is not an error.
func (p presenceSet) leave(userID uuid.UUID) {
	delete(p, userID)
}

// heartbeat refreshes lastSeen. LastSeen never moves backwards.
func (p presenceSet) heartbeat(userID uuid.UUID, now time.Time) {
	if entry, ok := p[userID]; ok && now.After(entry.LastSeen) {
		entry.LastSeen = now
	}
}

// count returns the number of users seen within the inactivity window.
// A user silent for longer is considered departed even without an
// explicit leave.
func (p presenceSet) count(now time.Time, window time.Duration) int {
	n := 0
	cutoff := now.Add(-window)
	for _, entry := range p {
		if !entry.LastSeen.Before(cutoff) {
			n++
		}
	}
	return n
}

// prune physically drops entries past the inactivity window.
func (p presenceSet) prune(now time.Time, window time.Duration) {
	cutoff := now.Add(-window)
	for userID, entry := range p {
		if entry.LastSeen.Before(cutoff) {
			delete(p, userID)
		}
	}
}
