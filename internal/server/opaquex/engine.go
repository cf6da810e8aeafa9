// Package opaquex implements the server side of the zero-knowledge
// registration and login exchanges on top of github.com/bytemare/opaque.
//
// The engine never sees a phrase: registration requests arrive blinded, and
// login verification happens against the stored registration record. Absent
// tags are answered with a fake record of identical shape and cost, so a
// caller cannot tell a missing tag from a wrong phrase.
package opaquex

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/bytemare/opaque"
	"github.com/google/uuid"

	"github.com/ekurs/phrasevault/internal/logging"
	"github.com/ekurs/phrasevault/internal/shared"
)

// DefaultTranscriptTTL bounds how long an unfinished protocol run is kept.
const DefaultTranscriptTTL = 2 * time.Minute

// Material is the server's long-term OPAQUE key material.
type Material struct {
	ServerIdentity []byte
	PrivateKey     []byte
	PublicKey      []byte
	OPRFSeed       []byte
}

// GenerateMaterial creates fresh long-term key material for conf. A nil
// conf selects opaque.DefaultConfiguration(). Intended for development
// defaults and tests; production material comes from config.
func GenerateMaterial(conf *opaque.Configuration, serverIdentity []byte) Material {
	if conf == nil {
		conf = opaque.DefaultConfiguration()
	}
	privateKey, publicKey := conf.KeyGen()
	return Material{
		ServerIdentity: serverIdentity,
		PrivateKey:     privateKey,
		PublicKey:      publicKey,
		OPRFSeed:       conf.GenerateOPRFSeed(),
	}
}

// LoginResult is the outcome of a successful confirmation step.
type LoginResult struct {
	CredentialID []byte
	SessionKey   []byte
}

// Engine runs both protocol flows and owns the transcript table. All
// methods are safe for concurrent use.
type Engine struct {
	conf     *opaque.Configuration
	material Material
	ttl      time.Duration
	logger   logging.Logger

	mu            sync.Mutex
	registrations map[string]*transcript
	logins        map[string]*transcript

	now func() time.Time
}

// NewEngine validates the key material and builds an engine. A nil conf
// selects opaque.DefaultConfiguration(); a zero ttl selects
// DefaultTranscriptTTL.
func NewEngine(conf *opaque.Configuration, material Material, ttl time.Duration, logger logging.Logger) (*Engine, error) {
	if conf == nil {
		conf = opaque.DefaultConfiguration()
	}
	if len(material.PrivateKey) == 0 || len(material.PublicKey) == 0 || len(material.OPRFSeed) == 0 {
		return nil, fmt.Errorf("incomplete server key material")
	}
	if ttl <= 0 {
		ttl = DefaultTranscriptTTL
	}

	// Fail now if the material does not fit the configuration.
	server, err := conf.Server()
	if err != nil {
		return nil, fmt.Errorf("building protocol server: %w", err)
	}
	if err := server.SetKeyMaterial(material.ServerIdentity, material.PrivateKey, material.PublicKey, material.OPRFSeed); err != nil {
		return nil, fmt.Errorf("invalid server key material: %w", err)
	}

	return &Engine{
		conf:          conf,
		material:      material,
		ttl:           ttl,
		logger:        logger.With("module", "opaque_engine"),
		registrations: make(map[string]*transcript),
		logins:        make(map[string]*transcript),
		now:           time.Now,
	}, nil
}

// Configuration returns the protocol configuration, e.g. so a client half
// can be built against the same suite.
func (e *Engine) Configuration() *opaque.Configuration {
	return e.conf
}

// ServerIdentity returns the identity bound into login key derivation.
func (e *Engine) ServerIdentity() []byte {
	return e.material.ServerIdentity
}

// RegistrationInit answers a blinded registration request for the given
// credential identifier and opens a transcript that awaits the client's
// registration record.
func (e *Engine) RegistrationInit(credentialID, request []byte) ([]byte, error) {
	server, err := e.conf.Server()
	if err != nil {
		return nil, fmt.Errorf("building protocol server: %w", err)
	}

	req, err := server.Deserialize.RegistrationRequest(request)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrMalformedMessage, err)
	}

	pks, err := server.Deserialize.DecodeAkePublicKey(e.material.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("decoding server public key: %w", err)
	}

	response := server.RegistrationResponse(req, pks, credentialID, e.material.OPRFSeed)

	key := hex.EncodeToString(credentialID)
	e.mu.Lock()
	e.registrations[key] = &transcript{
		state:        StateAwaitingRegistrationRecord,
		deadline:     e.now().Add(e.ttl),
		credentialID: credentialID,
	}
	e.mu.Unlock()

	return response.Serialize(), nil
}

// RegistrationComplete consumes the client's registration record, closing
// the transcript. It returns the serialized record, which becomes the
// SecretTag's verifier material. The record must be well formed and the
// transcript must still be live.
func (e *Engine) RegistrationComplete(credentialID, record []byte) ([]byte, error) {
	key := hex.EncodeToString(credentialID)

	e.mu.Lock()
	tr, ok := e.registrations[key]
	if ok {
		delete(e.registrations, key)
	}
	e.mu.Unlock()

	if !ok || tr.state != StateAwaitingRegistrationRecord {
		return nil, shared.ErrAuthenticationFailed
	}
	if tr.expired(e.now()) {
		return nil, shared.ErrTimeoutExceeded
	}

	server, err := e.conf.Server()
	if err != nil {
		return nil, fmt.Errorf("building protocol server: %w", err)
	}
	if _, err := server.Deserialize.RegistrationRecord(record); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrMalformedMessage, err)
	}

	tr.state = StateRegistered
	return record, nil
}

// AbandonRegistration discards an in-flight registration transcript, e.g.
// on caller cancellation. Nothing persists.
func (e *Engine) AbandonRegistration(credentialID []byte) {
	key := hex.EncodeToString(credentialID)
	e.mu.Lock()
	delete(e.registrations, key)
	e.mu.Unlock()
}

// LoginInit answers a credential request (KE1) with a credential response
// (KE2) and opens a transcript awaiting the confirmation (KE3).
//
// verifier is the stored registration record for the tag, or nil when the
// tag does not exist: in that case a fake record of identical shape takes
// its place and the exchange proceeds at full cost, guaranteed to end in
// rejection. The returned login id addresses the transcript in LoginFinish.
func (e *Engine) LoginInit(credentialID, clientIdentity, verifier, ke1 []byte) (string, []byte, error) {
	server, err := e.conf.Server()
	if err != nil {
		return "", nil, fmt.Errorf("building protocol server: %w", err)
	}
	if err := server.SetKeyMaterial(e.material.ServerIdentity, e.material.PrivateKey, e.material.PublicKey, e.material.OPRFSeed); err != nil {
		return "", nil, fmt.Errorf("setting key material: %w", err)
	}

	decoy := verifier == nil
	var record *opaque.ClientRecord
	if decoy {
		record, err = e.conf.GetFakeRecord(credentialID)
		if err != nil {
			return "", nil, fmt.Errorf("building decoy record: %w", err)
		}
	} else {
		stored, err := server.Deserialize.RegistrationRecord(verifier)
		if err != nil {
			return "", nil, fmt.Errorf("%w: stored verifier does not deserialize: %v", shared.ErrorInternal, err)
		}
		record = &opaque.ClientRecord{
			CredentialIdentifier: credentialID,
			ClientIdentity:       clientIdentity,
			RegistrationRecord:   stored,
		}
	}

	ke1m, err := server.Deserialize.KE1(ke1)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", shared.ErrMalformedMessage, err)
	}

	ke2, err := server.LoginInit(ke1m, record)
	if err != nil {
		return "", nil, fmt.Errorf("credential response: %w", err)
	}

	loginID := uuid.NewString()
	e.mu.Lock()
	e.logins[loginID] = &transcript{
		state:        StateAwaitingConfirmation,
		deadline:     e.now().Add(e.ttl),
		credentialID: credentialID,
		decoy:        decoy,
		server:       server,
	}
	e.mu.Unlock()

	return loginID, ke2.Serialize(), nil
}

// LoginFinish verifies the client's confirmation (KE3) against the
// transcript opened by LoginInit. The transcript is consumed either way.
// Every failure path (unknown login id, expired transcript, decoy run,
// MAC mismatch) collapses into the same generic rejection.
func (e *Engine) LoginFinish(loginID string, ke3 []byte) (*LoginResult, error) {
	e.mu.Lock()
	tr, ok := e.logins[loginID]
	if ok {
		delete(e.logins, loginID)
	}
	e.mu.Unlock()

	if !ok || tr.state != StateAwaitingConfirmation {
		return nil, shared.ErrAuthenticationFailed
	}
	if tr.expired(e.now()) {
		tr.state = StateRejected
		return nil, shared.ErrTimeoutExceeded
	}

	ke3m, err := tr.server.Deserialize.KE3(ke3)
	if err != nil {
		tr.state = StateRejected
		return nil, fmt.Errorf("%w: %v", shared.ErrMalformedMessage, err)
	}

	finishErr := tr.server.LoginFinish(ke3m)
	if tr.decoy || finishErr != nil {
		tr.state = StateRejected
		return nil, shared.ErrAuthenticationFailed
	}

	tr.state = StateAuthenticated
	return &LoginResult{
		CredentialID: tr.credentialID,
		SessionKey:   tr.server.SessionKey(),
	}, nil
}

// Abandon discards an in-flight login transcript without completing it.
func (e *Engine) Abandon(loginID string) {
	e.mu.Lock()
	delete(e.logins, loginID)
	e.mu.Unlock()
}

// Sweep drops every transcript past its deadline and returns how many were
// removed. Swept runs count as rejected.
func (e *Engine) Sweep(now time.Time) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := 0
	for k, tr := range e.registrations {
		if tr.expired(now) {
			delete(e.registrations, k)
			n++
		}
	}
	for k, tr := range e.logins {
		if tr.expired(now) {
			delete(e.logins, k)
			n++
		}
	}
	return n
}

// Run sweeps expired transcripts on the given interval until ctx is done.
func (e *Engine) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := e.Sweep(e.now()); n > 0 {
				e.logger.Debug(ctx, "swept expired transcripts", "count", n)
			}
		}
	}
}

// PendingTranscripts reports how many protocol runs are currently open.
func (e *Engine) PendingTranscripts() (registrations, logins int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.registrations), len(e.logins)
}
