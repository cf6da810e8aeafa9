// Package services contains server-side business logic. This file
// implements VaultService, which owns the secret-tag lifecycle:
// registration of new phrases, revocation, and wrapped-key maintenance.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ekurs/phrasevault/internal/client/opaqueclient"
	"github.com/ekurs/phrasevault/internal/cryptox"
	"github.com/ekurs/phrasevault/internal/dbx"
	"github.com/ekurs/phrasevault/internal/logging"
	"github.com/ekurs/phrasevault/internal/server/auth"
	"github.com/ekurs/phrasevault/internal/server/config"
	"github.com/ekurs/phrasevault/internal/server/models"
	"github.com/ekurs/phrasevault/internal/server/opaquex"
	"github.com/ekurs/phrasevault/internal/server/phrase"
	"github.com/ekurs/phrasevault/internal/server/repositories/repomanager"
	"github.com/ekurs/phrasevault/internal/server/sessions"
	"github.com/ekurs/phrasevault/internal/shared"
)

// minPhraseWords is the least number of words a registrable phrase must
// have. Single words collide with ordinary journal vocabulary far too
// easily.
const minPhraseWords = 2

// VaultService registers and manages secret tags.
type VaultService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	engine      *opaquex.Engine
	identifier  *phrase.TagIdentifier
	locks       *auth.LockRegistry
	sessions    *sessions.Manager
	kekSecret   []byte
	logger      logging.Logger
}

// NewVaultService wires the vault service. The lock registry must be the
// same instance the authenticator uses, so registrations and logins for one
// tag never interleave.
func NewVaultService(db *sql.DB, m repomanager.RepositoryManager, engine *opaquex.Engine, identifier *phrase.TagIdentifier, locks *auth.LockRegistry, sm *sessions.Manager, cfg *config.Config, logger logging.Logger) *VaultService {
	return &VaultService{
		db:          db,
		repomanager: m,
		engine:      engine,
		identifier:  identifier,
		locks:       locks,
		sessions:    sm,
		kekSecret:   []byte(cfg.SecretKey),
		logger:      logger.With("module", "vault_service"),
	}
}

// RegisterPhrase runs the complete registration exchange for a new secret
// phrase and persists the resulting tag. The phrase is normalized first, so
// later detection matches regardless of case, spacing or Unicode form.
//
// Returns shared.ErrorAlreadyExists when a live tag for the same phrase
// exists, and shared.ErrMalformedMessage when the phrase has fewer than two
// words.
func (s *VaultService) RegisterPhrase(ctx context.Context, userID, rawPhrase string) (*models.SecretTag, error) {
	normalized := phrase.Normalize(rawPhrase)
	if len(phrase.Tokenize(normalized)) < minPhraseWords {
		return nil, fmt.Errorf("%w: phrase must contain at least %d words", shared.ErrMalformedMessage, minPhraseWords)
	}

	tagID := s.identifier.Identify(normalized)

	release := s.locks.Acquire(userID, tagID)
	defer release()

	// Cheap existence check before any protocol work.
	repo := s.repomanager.Tags(s.db)
	if _, err := repo.Get(ctx, userID, tagID); err == nil {
		return nil, shared.ErrorAlreadyExists
	} else if !errors.Is(err, shared.ErrorNotFound) {
		return nil, fmt.Errorf("checking existing tag: %w", err)
	}

	verifier, err := s.runRegistration(userID, tagID, normalized)
	if err != nil {
		return nil, err
	}

	wrapped, err := s.freshWrappedKey(tagID)
	if err != nil {
		return nil, err
	}

	tag := &models.SecretTag{
		UserID:     userID,
		TagID:      tagID,
		Verifier:   verifier,
		WrappedKey: wrapped,
		CreatedAt:  time.Now(),
	}

	if err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return s.repomanager.Tags(tx).Create(ctx, tag)
	}); err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "registered secret tag", "user", userID, "tag", tagID.String())
	return tag, nil
}

// runRegistration drives the blinded registration exchange in process. The
// phrase plays the client role locally and never crosses a boundary in the
// clear.
func (s *VaultService) runRegistration(userID string, tagID phrase.Identifier, normalized string) ([]byte, error) {
	clientIdentity := []byte(userID)
	credID := auth.CredentialID(userID, tagID)

	flow, err := opaqueclient.NewFlow(s.engine.Configuration(), clientIdentity, s.engine.ServerIdentity())
	if err != nil {
		return nil, err
	}

	response, err := s.engine.RegistrationInit(credID, flow.RegistrationInit([]byte(normalized)))
	if err != nil {
		return nil, fmt.Errorf("registration init: %w", err)
	}

	record, _, err := flow.RegistrationFinalize(response)
	if err != nil {
		s.engine.AbandonRegistration(credID)
		return nil, fmt.Errorf("registration finalize: %w", err)
	}

	verifier, err := s.engine.RegistrationComplete(credID, record)
	if err != nil {
		return nil, fmt.Errorf("registration complete: %w", err)
	}
	return verifier, nil
}

// freshWrappedKey generates a content-encryption key for the tag and wraps
// it under the tag's key-encryption key.
func (s *VaultService) freshWrappedKey(tagID phrase.Identifier) ([]byte, error) {
	kek, err := s.tagKEK(tagID)
	if err != nil {
		return nil, err
	}
	cek := shared.GenerateRandByteArray(cryptox.SessionKeySize)
	defer shared.WipeByteArray(cek)
	defer shared.WipeByteArray(kek)

	return cryptox.WrapKey(cek, kek)
}

func (s *VaultService) tagKEK(tagID phrase.Identifier) ([]byte, error) {
	return cryptox.DeriveKey(s.kekSecret, "tag-kek/"+tagID.String(), cryptox.SessionKeySize)
}

// RegisterInit is the byte-level registration boundary for callers that
// blind the phrase on their own side: it answers the blinded registration
// request. The caller finishes with RegisterFinalize.
func (s *VaultService) RegisterInit(ctx context.Context, userID string, tagID phrase.Identifier, request []byte) ([]byte, error) {
	release := s.locks.Acquire(userID, tagID)
	defer release()

	repo := s.repomanager.Tags(s.db)
	if _, err := repo.Get(ctx, userID, tagID); err == nil {
		return nil, shared.ErrorAlreadyExists
	} else if !errors.Is(err, shared.ErrorNotFound) {
		return nil, fmt.Errorf("checking existing tag: %w", err)
	}

	return s.engine.RegistrationInit(auth.CredentialID(userID, tagID), request)
}

// RegisterFinalize consumes the client's registration record and persists
// the tag. wrappedKey is the client-wrapped content key (wrapped under a
// key derived from the export key, which the server never sees); when nil,
// a server-wrapped key takes its place.
func (s *VaultService) RegisterFinalize(ctx context.Context, userID string, tagID phrase.Identifier, record, wrappedKey []byte) (*models.SecretTag, error) {
	release := s.locks.Acquire(userID, tagID)
	defer release()

	verifier, err := s.engine.RegistrationComplete(auth.CredentialID(userID, tagID), record)
	if err != nil {
		return nil, err
	}

	if wrappedKey == nil {
		wrappedKey, err = s.freshWrappedKey(tagID)
		if err != nil {
			return nil, err
		}
	}

	tag := &models.SecretTag{
		UserID:     userID,
		TagID:      tagID,
		Verifier:   verifier,
		WrappedKey: wrappedKey,
		CreatedAt:  time.Now(),
	}

	if err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return s.repomanager.Tags(tx).Create(ctx, tag)
	}); err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "registered secret tag", "user", userID, "tag", tagID.String())
	return tag, nil
}

// LoginInit is the byte-level login boundary: it answers a credential
// request (KE1) with a credential response (KE2). Absent and revoked tags
// take the decoy path, indistinguishable in shape and cost from a live one.
func (s *VaultService) LoginInit(ctx context.Context, userID string, tagID phrase.Identifier, ke1 []byte) (string, []byte, error) {
	release := s.locks.Acquire(userID, tagID)
	defer release()

	var verifier []byte
	tag, err := s.repomanager.Tags(s.db).Get(ctx, userID, tagID)
	switch {
	case err == nil:
		verifier = tag.Verifier
	case errors.Is(err, shared.ErrorNotFound):
		// Decoy run.
	default:
		return "", nil, fmt.Errorf("loading tag: %w", err)
	}

	return s.engine.LoginInit(auth.CredentialID(userID, tagID), []byte(userID), verifier, ke1)
}

// LoginFinish verifies the confirmation (KE3), opens the unlock session and
// returns its descriptor. Every failure collapses into the generic
// rejection.
func (s *VaultService) LoginFinish(ctx context.Context, loginID string, ke3 []byte) (*models.SessionDescriptor, error) {
	result, err := s.engine.LoginFinish(loginID, ke3)
	if err != nil {
		if errors.Is(err, shared.ErrTimeoutExceeded) {
			return nil, shared.ErrAuthenticationFailed
		}
		return nil, err
	}

	userID, tagID, err := auth.SplitCredentialID(result.CredentialID)
	if err != nil {
		return nil, err
	}

	key, err := cryptox.DeriveKey(result.SessionKey, "unlock/"+tagID.String(), cryptox.SessionKeySize)
	if err != nil {
		return nil, fmt.Errorf("deriving unlock key: %w", err)
	}
	defer shared.WipeByteArray(key)

	session := s.sessions.Issue(userID, tagID, key)

	token, err := auth.GenerateDescriptorToken(userID, tagID, s.kekSecret, session.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("signing session descriptor: %w", err)
	}

	return &models.SessionDescriptor{
		TagID:     tagID,
		Token:     token,
		ExpiresAt: session.ExpiresAt,
	}, nil
}

// RevokeTag marks the tag revoked and destroys any live unlock session for
// it. After revocation the phrase authenticates like any unknown text.
func (s *VaultService) RevokeTag(ctx context.Context, userID string, tagID phrase.Identifier) error {
	release := s.locks.Acquire(userID, tagID)
	defer release()

	if err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return s.repomanager.Tags(tx).Revoke(ctx, userID, tagID)
	}); err != nil {
		return err
	}

	if err := s.sessions.Deactivate(userID, tagID); err != nil && !errors.Is(err, shared.ErrSessionNotFound) {
		return err
	}

	s.logger.Info(ctx, "revoked secret tag", "user", userID, "tag", tagID.String())
	return nil
}

// RotateWrappedKey unwraps the tag's content key and rewraps it under a
// fresh nonce, replacing the stored blob. Content stays decryptable; the
// old blob becomes useless.
func (s *VaultService) RotateWrappedKey(ctx context.Context, userID string, tagID phrase.Identifier) error {
	release := s.locks.Acquire(userID, tagID)
	defer release()

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Tags(tx)

		tag, err := repo.Get(ctx, userID, tagID)
		if err != nil {
			return err
		}

		kek, err := s.tagKEK(tagID)
		if err != nil {
			return err
		}
		defer shared.WipeByteArray(kek)

		cek, err := cryptox.UnwrapKey(tag.WrappedKey, kek)
		if err != nil {
			return fmt.Errorf("%w: unwrapping content key: %v", shared.ErrorInternal, err)
		}
		defer shared.WipeByteArray(cek)

		rewrapped, err := cryptox.WrapKey(cek, kek)
		if err != nil {
			return err
		}

		return repo.UpdateWrappedKey(ctx, userID, tagID, rewrapped)
	})
}
