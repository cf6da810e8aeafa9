// Package server initializes and runs the vault application: it opens the
// database, runs migrations, builds the protocol engine and the service
// stack, starts the background expiry sweeps and handles graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/ekurs/phrasevault/internal/logging"
	"github.com/ekurs/phrasevault/internal/server/audit"
	"github.com/ekurs/phrasevault/internal/server/auth"
	"github.com/ekurs/phrasevault/internal/server/blobs"
	"github.com/ekurs/phrasevault/internal/server/config"
	"github.com/ekurs/phrasevault/internal/server/opaquex"
	"github.com/ekurs/phrasevault/internal/server/phrase"
	"github.com/ekurs/phrasevault/internal/server/repositories/repomanager"
	"github.com/ekurs/phrasevault/internal/server/services"
	"github.com/ekurs/phrasevault/internal/server/sessions"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	engine   *opaquex.Engine
	sessions *sessions.Manager

	Vault   *services.VaultService
	Journal *services.JournalService
	Control *services.SessionControlService
	Blobs   *blobs.Store
}

func NewApp(cfg *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(context.Background(), db); err != nil {
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	material, err := serverMaterial(cfg)
	if err != nil {
		return nil, err
	}

	engine, err := opaquex.NewEngine(nil, material, cfg.TranscriptTTL, logger)
	if err != nil {
		return nil, fmt.Errorf("protocol engine init error: %w", err)
	}

	identifier, err := phrase.NewTagIdentifier([]byte(cfg.IdentifierKey))
	if err != nil {
		return nil, fmt.Errorf("identifier init error: %w", err)
	}

	locks := auth.NewLockRegistry()
	sm := sessions.NewManager(cfg.SessionTTL, cfg.SessionMaxExtension, logger)
	emitter := audit.NewSlogEmitter(logger)

	tagsRepo := rm.Tags(db)
	authenticator := auth.NewAuthenticator(engine, identifier, tagsRepo, locks, emitter, logger)

	return &App{
		config:   cfg,
		logger:   logger,
		db:       db,
		engine:   engine,
		sessions: sm,
		Vault:    services.NewVaultService(db, rm, engine, identifier, locks, sm, cfg, logger),
		Journal:  services.NewJournalService(db, rm, authenticator, sm, cfg, logger),
		Control:  services.NewSessionControlService(sm, cfg, logger),
		Blobs: blobs.NewStore(blobs.Settings{
			Region:       cfg.S3Region,
			BaseEndpoint: cfg.S3BaseEndpoint,
			Bucket:       cfg.S3Bucket,
			RootUser:     cfg.S3RootUser,
			RootPassword: cfg.S3RootPassword,
		}),
	}, nil
}

// serverMaterial decodes the configured OPAQUE key material, or generates
// ephemeral material when none is configured. Ephemeral material means
// registrations do not survive a restart; fine for development.
func serverMaterial(cfg *config.Config) (opaquex.Material, error) {
	identity := []byte(cfg.ServerIdentity)

	if cfg.OprfSeed == "" || cfg.ServerPrivateKey == "" || cfg.ServerPublicKey == "" {
		return opaquex.GenerateMaterial(nil, identity), nil
	}

	seed, err := base64.StdEncoding.DecodeString(cfg.OprfSeed)
	if err != nil {
		return opaquex.Material{}, fmt.Errorf("decoding oprf seed: %w", err)
	}
	priv, err := base64.StdEncoding.DecodeString(cfg.ServerPrivateKey)
	if err != nil {
		return opaquex.Material{}, fmt.Errorf("decoding server private key: %w", err)
	}
	pub, err := base64.StdEncoding.DecodeString(cfg.ServerPublicKey)
	if err != nil {
		return opaquex.Material{}, fmt.Errorf("decoding server public key: %w", err)
	}

	return opaquex.Material{
		ServerIdentity: identity,
		PrivateKey:     priv,
		PublicKey:      pub,
		OPRFSeed:       seed,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run starts the background sweeps and blocks until the context is
// cancelled or a termination signal arrives. On the way out all remaining
// sessions are destroyed and the database handle is closed.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.sessions.Run(ctx, app.config.SweepInterval)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.engine.Run(ctx, app.config.SweepInterval)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "closing database", "error", err)
	}
	app.logger.Info(ctx, "Shutdown complete")
}
