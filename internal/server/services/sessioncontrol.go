package services

import (
	"context"
	"time"

	"github.com/ekurs/phrasevault/internal/logging"
	"github.com/ekurs/phrasevault/internal/server/auth"
	"github.com/ekurs/phrasevault/internal/server/config"
	"github.com/ekurs/phrasevault/internal/server/models"
	"github.com/ekurs/phrasevault/internal/server/sessions"
)

// SessionControlService operates on unlock sessions through their signed
// descriptor tokens. Every method verifies the token first; a forged,
// tampered or expired token never reaches the session table.
type SessionControlService struct {
	sessions  *sessions.Manager
	secretKey []byte
	logger    logging.Logger
}

func NewSessionControlService(sm *sessions.Manager, cfg *config.Config, logger logging.Logger) *SessionControlService {
	return &SessionControlService{
		sessions:  sm,
		secretKey: []byte(cfg.SecretKey),
		logger:    logger.With("module", "session_control"),
	}
}

// Extend pushes the session's expiry out by d and returns a refreshed
// descriptor carrying the new expiry.
func (s *SessionControlService) Extend(ctx context.Context, token string, d time.Duration) (*models.SessionDescriptor, error) {
	userID, tagID, err := auth.ParseDescriptorToken(token, s.secretKey)
	if err != nil {
		return nil, err
	}

	if err := s.sessions.Extend(userID, tagID, d); err != nil {
		return nil, err
	}

	session, _ := s.sessions.Get(userID, tagID)
	refreshed, err := auth.GenerateDescriptorToken(userID, tagID, s.secretKey, session.ExpiresAt)
	if err != nil {
		return nil, err
	}

	return &models.SessionDescriptor{
		TagID:     tagID,
		Token:     refreshed,
		ExpiresAt: session.ExpiresAt,
	}, nil
}

// Lock suspends key use for the session without destroying it.
func (s *SessionControlService) Lock(ctx context.Context, token string) error {
	userID, tagID, err := auth.ParseDescriptorToken(token, s.secretKey)
	if err != nil {
		return err
	}
	return s.sessions.Lock(userID, tagID)
}

// Unlock re-enables a locked session.
func (s *SessionControlService) Unlock(ctx context.Context, token string) error {
	userID, tagID, err := auth.ParseDescriptorToken(token, s.secretKey)
	if err != nil {
		return err
	}
	return s.sessions.Unlock(userID, tagID)
}

// Deactivate destroys the session; its key is wiped before the call returns.
func (s *SessionControlService) Deactivate(ctx context.Context, token string) error {
	userID, tagID, err := auth.ParseDescriptorToken(token, s.secretKey)
	if err != nil {
		return err
	}

	if err := s.sessions.Deactivate(userID, tagID); err != nil {
		return err
	}
	s.logger.Info(ctx, "deactivated session", "user", userID, "tag", tagID.String())
	return nil
}

// Key returns a copy of the session's unlock key for entry decryption.
func (s *SessionControlService) Key(ctx context.Context, token string) ([]byte, error) {
	userID, tagID, err := auth.ParseDescriptorToken(token, s.secretKey)
	if err != nil {
		return nil, err
	}
	return s.sessions.Key(userID, tagID)
}

// DeactivateUser destroys every session the user holds and returns how many
// were destroyed. Used on logout and on tag-compromise response.
func (s *SessionControlService) DeactivateUser(ctx context.Context, userID string) int {
	n := s.sessions.DeactivateUser(userID)
	if n > 0 {
		s.logger.Info(ctx, "deactivated user sessions", "user", userID, "count", n)
	}
	return n
}

// DeactivateAll destroys every live session. Emergency brake for operators.
func (s *SessionControlService) DeactivateAll(ctx context.Context) {
	s.sessions.DeactivateAll()
	s.logger.Warn(ctx, "deactivated all sessions")
}

// Stats reports the live session counts.
func (s *SessionControlService) Stats() sessions.Stats {
	return s.sessions.Stats()
}
