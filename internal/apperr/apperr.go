// Package apperr defines the sentinel errors shared across services.
// Errors are returned, not panicked, so callers branch with errors.Is
// without exception-style control flow.
package apperr

import "errors"

var (
	// ErrUnauthorized means the principal lacks the required job or chat
	// relationship. Gated operations return it before any mutation.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound means the resource id does not exist.
	ErrNotFound = errors.New("not found")

	// ErrMalformedEnvelope means a broker message failed to decode. It is
	// logged and dropped at the broker boundary, never propagated to other
	// subscribers.
	ErrMalformedEnvelope = errors.New("malformed envelope")
)
