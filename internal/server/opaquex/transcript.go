package opaquex

import (
	"time"

	"github.com/bytemare/opaque"
)

// State enumerates the positions of a protocol transcript. Terminal states
// are StateRegistered, StateAuthenticated and StateRejected; a transcript
// left in a non-terminal state past its deadline is swept and treated as
// rejected, never resumed.
type State int

const (
	StateIdle State = iota
	StateAwaitingRegistrationResponse
	StateAwaitingRegistrationRecord
	StateRegistered
	StateAwaitingCredentialResponse
	StateAwaitingConfirmation
	StateAuthenticated
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingRegistrationResponse:
		return "awaiting_registration_response"
	case StateAwaitingRegistrationRecord:
		return "awaiting_registration_record"
	case StateRegistered:
		return "registered"
	case StateAwaitingCredentialResponse:
		return "awaiting_credential_response"
	case StateAwaitingConfirmation:
		return "awaiting_confirmation"
	case StateAuthenticated:
		return "authenticated"
	case StateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further message can advance the transcript.
func (s State) Terminal() bool {
	return s == StateRegistered || s == StateAuthenticated || s == StateRejected
}

// transcript is the single-use, request-owned state of one protocol run.
// Login transcripts keep the opaque.Server instance alive between KE2 and
// KE3; everything is dropped once a terminal state is reached.
type transcript struct {
	state        State
	deadline     time.Time
	credentialID []byte
	decoy        bool
	server       *opaque.Server
}

func (t *transcript) expired(now time.Time) bool {
	return now.After(t.deadline)
}
