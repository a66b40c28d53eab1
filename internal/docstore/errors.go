package docstore

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated is returned when no usable credential is available
	// or the store rejects the one presented. Never retried automatically.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrNotFound is returned when the requested document does not exist.
	// Callers decide whether this is fatal or an expected no-data case.
	ErrNotFound = errors.New("document not found")

	// ErrPreconditionFailed is returned when a conditional update's
	// precondition no longer holds, e.g. an order that is no longer pending.
	ErrPreconditionFailed = errors.New("update precondition failed")
)

// RemoteError is a non-2xx store response that maps to no sentinel. The body
// is kept for diagnostics.
type RemoteError struct {
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote store error: status %d: %s", e.StatusCode, e.Body)
}
