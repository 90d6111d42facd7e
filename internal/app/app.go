// Package app wires the configured record store, the shortening use case and
// the HTTP router together and runs the server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/httplog/v2"
	"github.com/vadimbarashkov/url-shortener-bigtable/internal/config"
	"github.com/vadimbarashkov/url-shortener-bigtable/internal/entity"
	"github.com/vadimbarashkov/url-shortener-bigtable/internal/identity"
	"github.com/vadimbarashkov/url-shortener-bigtable/internal/usecase"
	"github.com/vadimbarashkov/url-shortener-bigtable/migrations"
	"golang.org/x/sync/errgroup"

	delivery "github.com/vadimbarashkov/url-shortener-bigtable/internal/adapter/delivery/http"
	btrepo "github.com/vadimbarashkov/url-shortener-bigtable/internal/adapter/repository/bigtable"
	pgrepo "github.com/vadimbarashkov/url-shortener-bigtable/internal/adapter/repository/postgres"
	btpkg "github.com/vadimbarashkov/url-shortener-bigtable/pkg/bigtable"
	pgpkg "github.com/vadimbarashkov/url-shortener-bigtable/pkg/postgres"
)

type urlStore interface {
	Create(ctx context.Context, url *entity.URL) error
	FindByID(ctx context.Context, id string) (*entity.URL, error)
	IncrementClick(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// App owns the store client for its whole lifetime. Close releases it.
type App struct {
	logger  *httplog.Logger
	handler http.Handler
	closers []func() error
}

// NewLogger builds the service logger: JSON in production, concise text elsewhere.
func NewLogger(env string) *httplog.Logger {
	opts := httplog.Options{
		LogLevel:       slog.LevelDebug,
		Concise:        true,
		RequestHeaders: false,
	}

	if env == config.EnvProd {
		opts.LogLevel = slog.LevelInfo
		opts.JSON = true
		opts.Concise = false
	}

	return httplog.NewLogger("url-shortener", opts)
}

// New opens the configured store and builds the HTTP handler on top of it.
func New(ctx context.Context, cfg *config.Config, logger *httplog.Logger) (*App, error) {
	const op = "app.New"

	a := &App{logger: logger}

	store, err := a.openStore(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	uc := usecase.New(store, usecase.WithShortCodeLength(cfg.ShortCodeLength))

	opts := []delivery.RouterOption{delivery.WithShortURLBase(cfg.ShortURLBase)}

	if c := cfg.OAuth2.Google; c.Enabled() {
		opts = append(opts, delivery.WithOAuthProvider(identity.ProviderGoogle,
			delivery.GoogleProvider(c.ClientID, c.ClientSecret, c.RedirectURL)))
	}

	if c := cfg.OAuth2.GitHub; c.Enabled() {
		opts = append(opts, delivery.WithOAuthProvider(identity.ProviderGitHub,
			delivery.GitHubProvider(c.ClientID, c.ClientSecret, c.RedirectURL)))
	}

	a.handler = delivery.NewRouter(logger, uc, opts...)

	return a, nil
}

func (a *App) openStore(ctx context.Context, cfg *config.Config) (urlStore, error) {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		return a.openPostgres(ctx, cfg)
	default:
		return a.openBigtable(ctx, cfg)
	}
}

func (a *App) openBigtable(ctx context.Context, cfg *config.Config) (urlStore, error) {
	const op = "app.App.openBigtable"

	bt := cfg.Bigtable

	var opts []btpkg.Option
	if bt.AppProfile != "" {
		opts = append(opts, btpkg.WithAppProfile(bt.AppProfile))
	}
	if bt.EmulatorHost != "" {
		opts = append(opts, btpkg.WithEmulator(bt.EmulatorHost))
	}

	if bt.CreateTable {
		if err := btpkg.EnsureTable(ctx, bt.Project, bt.Instance, bt.Table, btrepo.ColumnFamilies, opts...); err != nil {
			return nil, fmt.Errorf("%s: failed to ensure table: %w", op, err)
		}

		a.logger.Info("bigtable table ensured", slog.String("table", bt.Table))
	}

	client, err := btpkg.New(ctx, bt.Project, bt.Instance, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to open bigtable client: %w", op, err)
	}
	a.closers = append(a.closers, client.Close)

	a.logger.Info("bigtable client opened",
		slog.String("project", bt.Project),
		slog.String("instance", bt.Instance),
	)

	return btrepo.NewURLRepository(client, bt.Table, btrepo.WithOpTimeout(cfg.Storage.OpTimeout)), nil
}

func (a *App) openPostgres(ctx context.Context, cfg *config.Config) (urlStore, error) {
	const op = "app.App.openPostgres"

	pg := cfg.Postgres

	db, err := pgpkg.New(
		ctx,
		pg.DSN(),
		pgpkg.WithConnMaxIdleTime(pg.ConnMaxIdleTime),
		pgpkg.WithConnMaxLifetime(pg.ConnMaxLifetime),
		pgpkg.WithMaxIdleConns(pg.MaxIdleConns),
		pgpkg.WithMaxOpenConns(pg.MaxOpenConns),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to connect to database: %w", op, err)
	}
	a.closers = append(a.closers, db.Close)

	if err := pgpkg.RunMigrations(migrations.FS, pg.DSN()); err != nil {
		return nil, fmt.Errorf("%s: failed to run migrations: %w", op, err)
	}

	a.logger.Info("postgres connection opened", slog.String("host", pg.Host), slog.String("db", pg.DB))

	return pgrepo.NewURLRepository(db, pgrepo.WithOpTimeout(cfg.Storage.OpTimeout)), nil
}

func (a *App) Handler() http.Handler {
	return a.handler
}

// Close releases everything opened by New in reverse order.
func (a *App) Close() error {
	var errs []error

	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil

	return errors.Join(errs...)
}

// Run serves the API until ctx is canceled, then shuts the server down and
// closes the store.
func Run(ctx context.Context, cfg *config.Config) error {
	const op = "app.Run"

	logger := NewLogger(cfg.Env)

	a, err := New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("failed to close store", slog.Any("err", err))
		}
	}()

	server := &http.Server{
		Addr:           cfg.HTTPServer.Addr(),
		Handler:        a.Handler(),
		ReadTimeout:    cfg.HTTPServer.ReadTimeout,
		WriteTimeout:   cfg.HTTPServer.WriteTimeout,
		IdleTimeout:    cfg.HTTPServer.IdleTimeout,
		MaxHeaderBytes: cfg.HTTPServer.MaxHeaderBytes,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server listening", slog.String("addr", server.Addr), slog.String("env", cfg.Env))

		var err error

		switch cfg.Env {
		case config.EnvProd:
			err = server.ListenAndServeTLS(cfg.HTTPServer.CertFile, cfg.HTTPServer.KeyFile)
		default:
			err = server.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s: server error occurred: %w", op, err)
		}

		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		logger.Info("shutting down server")

		if err := server.Shutdown(context.Background()); err != nil {
			return fmt.Errorf("%s: failed to shutdown server: %w", op, err)
		}

		return nil
	})

	return g.Wait()
}
