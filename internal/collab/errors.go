package collab

import "errors"

// Errors returned by the store and coordinator. Transports map these to
// their own status codes; the core never swallows them.
var (
	// ErrNotFound means the session id is unknown or already purged.
	ErrNotFound = errors.New("session not found")

	// ErrGone means the session exists but is past its expiry deadline
	// and is about to be purged. Reported distinctly from ErrNotFound so
	// clients can show "link expired" rather than "broken link".
	ErrGone = errors.New("session expired")

	// ErrForbidden covers edit attempts on view-only sessions and
	// deletes by anyone other than the creator.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidInput covers malformed create/update requests.
	ErrInvalidInput = errors.New("invalid input")
)
