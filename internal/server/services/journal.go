package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ekurs/phrasevault/internal/cryptox"
	"github.com/ekurs/phrasevault/internal/dbx"
	"github.com/ekurs/phrasevault/internal/logging"
	"github.com/ekurs/phrasevault/internal/server/auth"
	"github.com/ekurs/phrasevault/internal/server/classifier"
	"github.com/ekurs/phrasevault/internal/server/config"
	"github.com/ekurs/phrasevault/internal/server/models"
	"github.com/ekurs/phrasevault/internal/server/phrase"
	"github.com/ekurs/phrasevault/internal/server/repositories/repomanager"
	"github.com/ekurs/phrasevault/internal/server/sessions"
	"github.com/ekurs/phrasevault/internal/shared"
)

// SubmissionResult reports what happened to one journal submission: how it
// was classified, the id of the persisted entry (empty when nothing was
// stored), and a descriptor for every unlock session the submission opened.
type SubmissionResult struct {
	Tier        classifier.Tier
	EntryID     string
	Descriptors []models.SessionDescriptor
}

// JournalService accepts free-form journal submissions, runs phrase
// detection and authentication over them, classifies the outcome and
// persists what may be persisted.
type JournalService struct {
	db            *sql.DB
	repomanager   repomanager.RepositoryManager
	authenticator *auth.Authenticator
	sessions      *sessions.Manager
	secretKey     []byte
	logger        logging.Logger
}

func NewJournalService(db *sql.DB, m repomanager.RepositoryManager, a *auth.Authenticator, sm *sessions.Manager, cfg *config.Config, logger logging.Logger) *JournalService {
	return &JournalService{
		db:            db,
		repomanager:   m,
		authenticator: a,
		sessions:      sm,
		secretKey:     []byte(cfg.SecretKey),
		logger:        logger.With("module", "journal_service"),
	}
}

// Submit processes one journal submission end to end.
//
// Every candidate phrase in the text goes through a full authentication
// exchange; the matches decide the tier. Regular text is stored as
// written, Mixed text is stored with every matched span excised, and
// PasswordOnly submissions leave no trace in storage.
//
// Storage failures fail closed: the submission is rejected rather than
// stored unclassified. Any other authentication-infrastructure failure
// degrades the submission to Regular, since refusing the user's journal
// entry because a protocol transcript broke would leak that something about
// the text was special.
func (s *JournalService) Submit(ctx context.Context, userID, text string) (*SubmissionResult, error) {
	candidates := phrase.CollectCandidates(text)

	matches, err := s.authenticator.Authenticate(ctx, userID, candidates)
	if err != nil {
		if errors.Is(err, shared.ErrStorageUnavailable) {
			return nil, err
		}
		s.logger.Error(ctx, "authentication degraded, storing submission as regular", "user", userID, "error", err)
		matches = nil
	}

	cm := make([]classifier.Match, len(matches))
	for i, m := range matches {
		cm[i] = classifier.Match{TagID: m.TagID, Spans: m.Spans}
	}
	result := classifier.Classify(text, cm)

	out := &SubmissionResult{Tier: result.Tier}

	switch result.Tier {
	case classifier.Regular:
		entry, err := s.persist(ctx, userID, text)
		if err != nil {
			return nil, err
		}
		out.EntryID = entry.ID

	case classifier.Mixed:
		entry, err := s.persist(ctx, userID, result.Residual)
		if err != nil {
			return nil, err
		}
		out.EntryID = entry.ID

	case classifier.PasswordOnly:
		// Nothing persisted.
	}

	for _, m := range matches {
		descriptor, err := s.openSession(userID, m)
		if err != nil {
			return nil, err
		}
		out.Descriptors = append(out.Descriptors, *descriptor)
	}

	return out, nil
}

// persist stores content as a journal entry inside a transaction.
func (s *JournalService) persist(ctx context.Context, userID, content string) (*models.Entry, error) {
	entry := &models.Entry{
		ID:        uuid.NewString(),
		UserID:    userID,
		Content:   content,
		CreatedAt: time.Now(),
	}

	if err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return s.repomanager.Entries(tx).Create(ctx, entry)
	}); err != nil {
		return nil, err
	}
	return entry, nil
}

// openSession derives the unlock key from the authenticated exchange,
// issues the session and mints its descriptor token.
func (s *JournalService) openSession(userID string, m auth.Match) (*models.SessionDescriptor, error) {
	key, err := cryptox.DeriveKey(m.SessionKey, "unlock/"+m.TagID.String(), cryptox.SessionKeySize)
	if err != nil {
		return nil, fmt.Errorf("deriving unlock key: %w", err)
	}
	defer shared.WipeByteArray(key)

	session := s.sessions.Issue(userID, m.TagID, key)

	token, err := auth.GenerateDescriptorToken(userID, m.TagID, s.secretKey, session.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("signing session descriptor: %w", err)
	}

	return &models.SessionDescriptor{
		TagID:     m.TagID,
		Token:     token,
		ExpiresAt: session.ExpiresAt,
	}, nil
}

// Entries returns the user's stored journal entries, newest first.
func (s *JournalService) Entries(ctx context.Context, userID string, limit int) ([]*models.Entry, error) {
	return s.repomanager.Entries(s.db).SelectByUser(ctx, userID, limit)
}
