// Package server wires the wiki together: it opens the credential vault,
// the session store and the git working copy, then runs the HTTP surface,
// the optional gRPC administration endpoint and the background sync loop
// until a signal arrives.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dmitrijs2005/gitwiki/internal/filex"
	"github.com/dmitrijs2005/gitwiki/internal/gitx"
	"github.com/dmitrijs2005/gitwiki/internal/logging"
	"github.com/dmitrijs2005/gitwiki/internal/server/auth"
	"github.com/dmitrijs2005/gitwiki/internal/server/backup"
	"github.com/dmitrijs2005/gitwiki/internal/server/config"
	"github.com/dmitrijs2005/gitwiki/internal/server/content"
	"github.com/dmitrijs2005/gitwiki/internal/server/handshake"
	"github.com/dmitrijs2005/gitwiki/internal/server/httpapi"
	"github.com/dmitrijs2005/gitwiki/internal/server/render"
	"github.com/dmitrijs2005/gitwiki/internal/server/repositories/repomanager"
	reposessions "github.com/dmitrijs2005/gitwiki/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/gitwiki/internal/server/sessions"
	"github.com/dmitrijs2005/gitwiki/internal/server/telemetry"
	"github.com/dmitrijs2005/gitwiki/internal/server/vault"
	"golang.org/x/sync/errgroup"

	gs "github.com/dmitrijs2005/gitwiki/internal/server/grpc"
)

// Version is stamped at build time.
var Version = "dev"

const serviceName = "gitwiki"

type App struct {
	config    *config.Config
	logger    logging.Logger
	telemetry *telemetry.Providers
	secret    *filex.Buffer
	db        *sql.DB

	vault  *vault.Vault
	binder *sessions.Binder
	store  *content.Store

	httpServer *httpapi.Server
	grpcServer *gs.GRPCServer
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	if err := c.Validate(); err != nil {
		return nil, err
	}

	app := &App{config: c, logger: logging.NewJSON(os.Stdout, c.LogLevel)}
	if err := app.init(ctx); err != nil {
		app.close(ctx)
		return nil, err
	}
	return app, nil
}

func (app *App) init(ctx context.Context) error {
	c := app.config

	providers, err := telemetry.NewProviders(ctx, c.OTLPEndpoint, serviceName, Version)
	if err != nil {
		return fmt.Errorf("telemetry init error: %w", err)
	}
	providers.SetGlobal()
	app.telemetry = providers

	app.secret, err = filex.ReadSecret(c.VaultSecretFile)
	if err != nil {
		return fmt.Errorf("vault secret: %w", err)
	}
	if !app.secret.Locked() {
		app.logger.Warn(ctx, "vault secret could not be locked in memory")
	}

	seed := vault.Identity{Name: c.SeedName, Email: c.SeedEmail, ProfileURL: c.SeedURL}
	app.vault, err = vault.Open(ctx, c.VaultPath, app.secret.Bytes(), seed, vault.WithLogger(app.logger))
	if err != nil {
		return fmt.Errorf("vault init error: %w", err)
	}

	if c.S3Bucket != "" {
		escrow, err := backup.New(ctx, backup.Config{
			Bucket:     c.S3Bucket,
			Region:     c.S3Region,
			Endpoint:   c.S3BaseEndpoint,
			AccessKey:  c.S3RootUser,
			SecretKey:  c.S3RootPassword,
			Recipients: c.EscrowRecipients,
			Logger:     app.logger,
		})
		if err != nil {
			return fmt.Errorf("escrow init error: %w", err)
		}
		app.vault.OnChange(escrow.Observer())
	}

	repo, err := app.openSessions(ctx)
	if err != nil {
		return fmt.Errorf("db init error: %w", err)
	}
	app.binder = sessions.NewBinder(repo, app.vault, sessions.WithTTL(c.SessionTTL), sessions.WithLogger(app.logger))

	if c.GitPublicKey != "" {
		if _, err := os.Stat(c.GitPublicKey); err != nil {
			app.logger.Warn(ctx, "git public key is not readable", "path", c.GitPublicKey, "error", err)
		}
	}
	app.store, err = content.Open(ctx, content.Config{
		Dir:               c.PagesDir,
		RemoteURL:         c.GitRemote,
		Branch:            c.GitBranch,
		PrivateKey:        c.GitPrivateKey,
		Committer:         gitx.Person{Name: c.GitCommitterName, Email: c.GitCommitterEmail},
		AllowedMimeTypes:  c.AllowedMimeTypes,
		SyncTimeout:       c.SyncTimeout,
		SyncAttempts:      c.SyncAttempts,
		PushAttempts:      c.PushAttempts,
		PushRetryInterval: c.PushRetryInterval,
		Logger:            app.logger,
	})
	if err != nil {
		return fmt.Errorf("content store init error: %w", err)
	}

	login, err := handshake.New(handshake.Config{
		ClientID: c.ClientID,
		TTL:      c.HandshakeTTL,
		Logger:   app.logger,
	})
	if err != nil {
		return err
	}

	var tokens httpapi.TokenIssuer
	if c.AdminGRPCAddr != "" {
		secret := []byte(c.AdminTokenSecret)
		ttl := c.AdminTokenTTL
		tokens = func(profileURL string) (string, time.Duration, error) {
			tok, err := auth.GenerateToken(profileURL, secret, ttl)
			return tok, ttl, err
		}
		app.grpcServer, err = gs.NewGRPCServer(c.AdminGRPCAddr, app.logger, app.vault, c.AdminTokenSecret)
		if err != nil {
			return err
		}
	}

	app.httpServer = httpapi.NewServer(c.ListenAddr, httpapi.Deps{
		Pages:         app.store,
		Sessions:      app.binder,
		Login:         login,
		Directory:     app.vault,
		Renderer:      render.New(""),
		Tokens:        tokens,
		StaticDir:     c.StaticDir,
		SecureCookies: strings.HasPrefix(login.ClientID(), "https://"),
		Logger:        app.logger,
	})

	return nil
}

// openSessions picks Postgres when a DSN is configured, memory otherwise.
func (app *App) openSessions(ctx context.Context) (reposessions.Repository, error) {
	if app.config.DatabaseDSN == "" {
		app.logger.Warn(ctx, "no database configured, sessions are kept in memory")
		return reposessions.NewMemoryRepository(), nil
	}

	db, err := repomanager.OpenPostgres(ctx, app.config.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	app.db = db

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migrations: %w", err)
	}
	return rm.Sessions(db), nil
}

// maintain pushes pending commits, follows the remote and drops expired
// sessions, once at startup and then every SyncInterval.
func (app *App) maintain(ctx context.Context) {
	tick := func() {
		if err := app.store.Sync(ctx); err != nil {
			app.logger.Warn(ctx, "background sync failed", "error", err, "pending", app.store.Pending())
		}
		if n, err := app.binder.Sweep(ctx); err != nil {
			app.logger.Warn(ctx, "session sweep failed", "error", err)
		} else if n > 0 {
			app.logger.Debug(ctx, "expired sessions removed", "count", n)
		}
	}

	tick()
	ticker := time.NewTicker(app.config.SyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick()
		}
	}
}

func (app *App) close(ctx context.Context) {
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error(ctx, "db close", "error", err)
		}
	}
	if app.telemetry != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := app.telemetry.Shutdown(shutdownCtx); err != nil {
			app.logger.Error(ctx, "telemetry shutdown", "error", err)
		}
	}
	if app.secret != nil {
		_ = app.secret.Close()
	}
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

// Run blocks until a signal arrives or a server fails.
func (app *App) Run(ctx context.Context) error {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "version", Version, "tip", app.store.Tip())

	app.initSignalHandler(cancelFunc)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return app.httpServer.Run(ctx)
	})

	if app.grpcServer != nil {
		g.Go(func() error {
			return app.grpcServer.Run(ctx)
		})
	}

	g.Go(func() error {
		app.maintain(ctx)
		return nil
	})

	err := g.Wait()
	app.close(ctx)
	app.logger.Info(ctx, "App stopped")
	return err
}
