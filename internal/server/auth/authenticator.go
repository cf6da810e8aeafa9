// Package auth runs phrase authentication for journal submissions and
// issues the signed session descriptors handed back to callers.
//
// Every candidate phrase goes through a full protocol exchange, known tag
// or not: candidates that resolve to no record run against a decoy of
// identical shape and cost, so timing reveals nothing about which phrases
// exist. Attempts for the same (user, tag) are serialized against
// concurrent registrations through the shared lock registry.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ekurs/phrasevault/internal/client/opaqueclient"
	"github.com/ekurs/phrasevault/internal/logging"
	"github.com/ekurs/phrasevault/internal/server/audit"
	"github.com/ekurs/phrasevault/internal/server/opaquex"
	"github.com/ekurs/phrasevault/internal/server/phrase"
	"github.com/ekurs/phrasevault/internal/server/repositories/tags"
	"github.com/ekurs/phrasevault/internal/shared"
)

// maxConcurrentAttempts bounds how many protocol exchanges run at once for
// a single submission.
const maxConcurrentAttempts = 4

// CredentialID is the protocol credential identifier for a (user, tag)
// pair. It binds stored verifiers to both.
func CredentialID(userID string, tagID phrase.Identifier) []byte {
	return []byte(userID + "/" + tagID.String())
}

// SplitCredentialID reverses CredentialID. The tag half is fixed-width hex,
// so user ids containing '/' split unambiguously.
func SplitCredentialID(credID []byte) (string, phrase.Identifier, error) {
	s := string(credID)
	i := strings.LastIndexByte(s, '/')
	if i < 0 {
		return "", phrase.Identifier{}, fmt.Errorf("%w: malformed credential identifier", shared.ErrorInternal)
	}
	tagID, err := phrase.ParseIdentifier(s[i+1:])
	if err != nil {
		return "", phrase.Identifier{}, fmt.Errorf("%w: %v", shared.ErrorInternal, err)
	}
	return s[:i], tagID, nil
}

// Match is a candidate phrase that authenticated against a registered tag.
// SessionKey is the mutually derived per-login secret.
type Match struct {
	TagID      phrase.Identifier
	Spans      []phrase.Span
	SessionKey []byte
}

// Authenticator verifies candidate phrases against stored tags.
type Authenticator struct {
	engine     *opaquex.Engine
	identifier *phrase.TagIdentifier
	repo       tags.Repository
	locks      *LockRegistry
	emitter    audit.Emitter
	logger     logging.Logger

	now func() time.Time
}

func NewAuthenticator(engine *opaquex.Engine, identifier *phrase.TagIdentifier, repo tags.Repository, locks *LockRegistry, emitter audit.Emitter, logger logging.Logger) *Authenticator {
	if emitter == nil {
		emitter = audit.Nop{}
	}
	return &Authenticator{
		engine:     engine,
		identifier: identifier,
		repo:       repo,
		locks:      locks,
		emitter:    emitter,
		logger:     logger.With("module", "authenticator"),
		now:        time.Now,
	}
}

// Authenticate runs every candidate to completion and returns the ones that
// authenticated. candidates maps normalized phrase text to the raw spans it
// covered, as produced by phrase.CollectCandidates.
//
// Candidates that fail authentication are simply absent from the result;
// only infrastructure failures (storage unavailable, protocol engine
// breakage) surface as an error, and even then every attempt already
// started runs to its end.
func (a *Authenticator) Authenticate(ctx context.Context, userID string, candidates map[string][]phrase.Span) ([]Match, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	var (
		mu      sync.Mutex
		matches []Match
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentAttempts)

	for normalized, spans := range candidates {
		g.Go(func() error {
			m, err := a.attempt(ctx, userID, normalized, spans)
			if err != nil {
				return err
			}
			if m != nil {
				mu.Lock()
				matches = append(matches, *m)
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return matches, nil
}

// attempt runs one full login exchange for a candidate. A nil, nil return
// means the candidate did not authenticate.
func (a *Authenticator) attempt(ctx context.Context, userID, normalized string, spans []phrase.Span) (*Match, error) {
	tagID := a.identifier.Identify(normalized)

	release := a.locks.Acquire(userID, tagID)
	defer release()

	start := a.now()

	var verifier []byte
	known := false
	tag, err := a.repo.Get(ctx, userID, tagID)
	switch {
	case err == nil:
		verifier = tag.Verifier
		known = true
	case errors.Is(err, shared.ErrorNotFound):
		// Decoy run: same exchange, guaranteed rejection.
	default:
		return nil, fmt.Errorf("loading tag: %w", err)
	}

	result, err := a.exchange(userID, normalized, tagID, verifier)
	switch {
	case err == nil:
		if known {
			a.emit(ctx, userID, tagID, audit.OutcomeSuccess, start)
		}
		return &Match{TagID: tagID, Spans: spans, SessionKey: result.SessionKey}, nil
	case errors.Is(err, shared.ErrAuthenticationFailed):
		if known {
			a.emit(ctx, userID, tagID, audit.OutcomeFailure, start)
		}
		return nil, nil
	case errors.Is(err, shared.ErrTimeoutExceeded):
		if known {
			a.emit(ctx, userID, tagID, audit.OutcomeTimeout, start)
		}
		return nil, nil
	default:
		if known {
			a.emit(ctx, userID, tagID, audit.OutcomeInternal, start)
		}
		return nil, fmt.Errorf("protocol exchange: %w", err)
	}
}

// exchange drives the full KE1→KE2→KE3 round in process. The candidate
// phrase plays the client role locally; it never crosses a boundary in the
// clear. A nil verifier makes the engine answer with its decoy record.
func (a *Authenticator) exchange(userID, normalized string, tagID phrase.Identifier, verifier []byte) (*opaquex.LoginResult, error) {
	clientIdentity := []byte(userID)

	flow, err := opaqueclient.NewFlow(a.engine.Configuration(), clientIdentity, a.engine.ServerIdentity())
	if err != nil {
		return nil, err
	}

	credID := CredentialID(userID, tagID)
	ke1 := flow.LoginInit([]byte(normalized))

	loginID, ke2, err := a.engine.LoginInit(credID, clientIdentity, verifier, ke1)
	if err != nil {
		return nil, err
	}

	ke3, _, err := flow.LoginFinish(ke2)
	if err != nil {
		// Wrong phrase (or decoy): the client half already rejects the
		// exchange. Consume the transcript so nothing lingers.
		a.engine.Abandon(loginID)
		return nil, shared.ErrAuthenticationFailed
	}

	return a.engine.LoginFinish(loginID, ke3)
}

func (a *Authenticator) emit(ctx context.Context, userID string, tagID phrase.Identifier, outcome audit.Outcome, start time.Time) {
	a.emitter.Emit(ctx, audit.Event{
		Time:          start,
		UserID:        userID,
		TagID:         tagID.String(),
		Outcome:       outcome,
		LatencyBucket: audit.Bucket(a.now().Sub(start)),
	})
}
