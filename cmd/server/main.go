package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	firebase "firebase.google.com/go/v4"

	"github.com/garnizeh/recboard/api"
	dbfs "github.com/garnizeh/recboard/db"
	"github.com/garnizeh/recboard/internal/board"
	"github.com/garnizeh/recboard/internal/config"
	"github.com/garnizeh/recboard/internal/db"
	"github.com/garnizeh/recboard/internal/identity"
	"github.com/garnizeh/recboard/internal/jobs"
	fsrepo "github.com/garnizeh/recboard/internal/repository/firestore"
	"github.com/garnizeh/recboard/internal/repository/sqlite"
	"github.com/garnizeh/recboard/internal/session"
	"github.com/garnizeh/recboard/pkg/backend"
	"github.com/garnizeh/recboard/pkg/repository"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	var configPath = flag.String("config", "", "Path to config YAML file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("server failed", slog.Any("err", err))
		os.Exit(1)
	}
}

// resources owns everything that must be closed on shutdown, in reverse order.
type resources struct {
	closers []func() error
}

func (r *resources) add(fn func() error) { r.closers = append(r.closers, fn) }

func (r *resources) close(logger *slog.Logger) {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			logger.Warn("close failed", slog.Any("err", err))
		}
	}
}

func run(configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	level, _ := config.ParseLevel(cfg.LogLevel)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	api.SetLogger(logger)
	backend.SetLogger(logger)

	logger.Info("starting recboard server",
		slog.String("version", version),
		slog.String("build_time", buildTime),
		slog.String("store", cfg.Store.Driver),
		slog.String("identity", cfg.Identity.Driver),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res := &resources{}
	defer res.close(logger)

	var app *firebase.App
	firebaseApp := func() (*firebase.App, error) {
		if app != nil {
			return app, nil
		}
		a, err := identity.NewFirebaseApp(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
		if err != nil {
			return nil, err
		}
		app = a
		return app, nil
	}

	store, accounts, err := openStore(ctx, cfg, logger, res, firebaseApp)
	if err != nil {
		return err
	}

	deps := api.Deps{
		Version:    version,
		BuildTime:  buildTime,
		Store:      store,
		ActionWait: cfg.Board.ReconcileTimeout,
	}
	switch cfg.Identity.Driver {
	case config.IdentityLocal:
		issuer := identity.NewLocal(cfg.Identity.JWTSecret, cfg.Identity.TokenDuration)
		deps.Verifier, deps.Issuer, deps.Accounts = issuer, issuer, accounts
	case config.IdentityFirebase:
		a, err := firebaseApp()
		if err != nil {
			return err
		}
		v, err := identity.NewFirebase(ctx, a)
		if err != nil {
			return err
		}
		deps.Verifier = v
	}

	pool := jobs.NewWorkerPool(logger, cfg.Board.Workers, cfg.Board.QueueSize)
	pool.Start(context.WithoutCancel(ctx))
	res.add(func() error { pool.Stop(); return nil })

	registry := session.New(store, session.Config{
		IdleTTL: cfg.Board.IdleTTL,
		Logger:  logger,
		BoardOptions: []board.Option{
			board.WithDispatcher(pool),
			board.WithLogger(logger),
			board.WithReconcileTimeout(cfg.Board.ReconcileTimeout),
			board.WithRequireImage(cfg.Board.RequireImage),
		},
	})
	res.add(func() error { registry.Stop(); return nil })
	deps.Registry = registry

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      api.SetupRoutes(deps),
		ReadTimeout:  cfg.APITimeout,
		WriteTimeout: cfg.APITimeout + cfg.Board.ReconcileTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", slog.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}
	logger.Info("shutting down server")

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server exited")
	return nil
}

// openStore builds the configured store driver. Accounts are only available
// with the sqlite driver.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger, res *resources, firebaseApp func() (*firebase.App, error)) (repository.Backend, repository.AccountRepo, error) {
	switch cfg.Store.Driver {
	case config.StoreSQLite:
		dbCtx, cancel := context.WithTimeout(ctx, cfg.APITimeout)
		defer cancel()
		d, err := db.New(dbCtx, cfg.Store.DatabasePath, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open db: %w", err)
		}
		res.add(d.Close)
		if cfg.MigrateOnStart {
			if err := db.Migrate(dbCtx, d, dbfs.Migrations, dbfs.SeedFiles); err != nil {
				return nil, nil, fmt.Errorf("migrate: %w", err)
			}
		}
		repo := sqlite.New(d, logger)
		return repo, repo, nil

	case config.StoreHTTP:
		c, err := backend.NewDefaultClient(cfg.Backend)
		if err != nil {
			return nil, nil, fmt.Errorf("backend client: %w", err)
		}
		res.add(c.Close)
		return c, nil, nil

	case config.StoreFirestore:
		app, err := firebaseApp()
		if err != nil {
			return nil, nil, err
		}
		client, err := app.Firestore(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("firestore client: %w", err)
		}
		res.add(client.Close)
		return fsrepo.New(fsrepo.NewClient(client, cfg.Backend.Timeout), logger), nil, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}
