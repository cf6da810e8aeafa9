// Package shared defines sentinel errors and small helpers used across the
// phrasevault packages. Callers should match errors with errors.Is.
package shared

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Storage reachability. Submissions fail closed on this: nothing is
	// persisted and no session is issued.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// Protocol errors. A malformed message is rejected locally and never
	// retried by the core.
	ErrMalformedMessage = errors.New("malformed protocol message")

	// Generic authentication failure. Tag absence, a wrong phrase and an
	// expired transcript all resolve to this one value so that callers
	// cannot tell them apart.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// Deadline exceeded: a protocol transcript outlived its TTL or a
	// session descriptor is past its expiry. Authentication boundaries
	// collapse it into ErrAuthenticationFailed.
	ErrTimeoutExceeded = errors.New("deadline exceeded")

	// Session errors, surfaced to session-control callers only.
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionLocked   = errors.New("session locked")

	// Session descriptor errors.
	ErrInvalidDescriptor = errors.New("invalid session descriptor")

	// Generic internal failure.
	ErrorInternal = errors.New("internal error")
)
