// Package audit emits privacy-preserving authentication audit events.
//
// Events deliberately carry no phrase text, no entry content and no key
// material: only the user, the tag identifier (when one is known), the
// outcome and a coarse latency bucket.
package audit

import (
	"context"
	"time"

	"github.com/ekurs/phrasevault/internal/logging"
)

// Outcome is the terminal result of an authentication attempt.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeFailure  Outcome = "failure"
	OutcomeTimeout  Outcome = "timeout"
	OutcomeRevoked  Outcome = "revoked"
	OutcomeInternal Outcome = "internal"
)

// Event is a single audit record. TagID is the hex form of the tag
// identifier, or empty when the attempt never resolved to a known tag
// (decoy flows included).
type Event struct {
	Time          time.Time
	UserID        string
	TagID         string
	Outcome       Outcome
	LatencyBucket string
}

// Emitter receives audit events. Implementations must not block the caller
// for long; authentication latency is on the line.
type Emitter interface {
	Emit(ctx context.Context, e Event)
}

// Bucket maps a latency to a coarse label, so audit logs cannot be used as
// a fine-grained timing oracle.
func Bucket(d time.Duration) string {
	switch {
	case d < 10*time.Millisecond:
		return "<10ms"
	case d < 50*time.Millisecond:
		return "<50ms"
	case d < 250*time.Millisecond:
		return "<250ms"
	case d < time.Second:
		return "<1s"
	default:
		return ">=1s"
	}
}

// SlogEmitter writes audit events through the structured logger.
type SlogEmitter struct {
	logger logging.Logger
}

func NewSlogEmitter(logger logging.Logger) *SlogEmitter {
	return &SlogEmitter{logger: logger.With("module", "audit")}
}

func (s *SlogEmitter) Emit(ctx context.Context, e Event) {
	s.logger.Info(ctx, "auth attempt",
		"time", e.Time.UTC().Format(time.RFC3339Nano),
		"user", e.UserID,
		"tag", e.TagID,
		"outcome", string(e.Outcome),
		"latency", e.LatencyBucket,
	)
}

// Nop discards all events.
type Nop struct{}

func (Nop) Emit(context.Context, Event) {}
