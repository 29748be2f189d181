// Package app assembles the keygate service: configuration, signing
// keys, the state store driver, the lifecycle service, and the HTTP
// server, with graceful shutdown.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/arcadialab/keygate/internal/auth/http"
	"github.com/arcadialab/keygate/internal/auth/service"
	"github.com/arcadialab/keygate/internal/auth/state"
	"github.com/arcadialab/keygate/internal/auth/state/drivers/memory"
	redisdriver "github.com/arcadialab/keygate/internal/auth/state/drivers/redis"
	sqlitedriver "github.com/arcadialab/keygate/internal/auth/state/drivers/sqlite"
	"github.com/arcadialab/keygate/pkg/dpopx"
	"github.com/arcadialab/keygate/pkg/jwtx"
	"github.com/arcadialab/keygate/pkg/slogx"
)

// BuildVersion should be set at build time via ldflags.
const BuildVersion = "v0.1.0"

// Application encapsulates the service with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	states    state.Store
	signer    jwtx.Signer
	keys      *jwtx.KeySet
	lifecycle *service.LifecycleService

	server *http.Server
	router *httpapi.Router
}

// New creates an Application with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "keygate",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initStateStore(); err != nil {
		return nil, err
	}

	signer, keys, err := initSigningKey(cfg, app.logger)
	if err != nil {
		return nil, err
	}
	app.signer = signer
	app.keys = keys

	app.initLifecycle()
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.logger.Info("keygate starting",
		"port", app.cfg.Port,
		"version", BuildVersion,
		"issuer", app.cfg.Issuer(),
		"dpop_enabled", !app.cfg.DisableDPoP,
		"state_driver", app.cfg.StateDriver,
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)
		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully stops the HTTP server and closes the state store.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down keygate...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	if err := app.states.Close(); err != nil {
		app.logger.Error("error closing state store", "error", err)
		return err
	}

	app.logger.Info("keygate stopped")
	return nil
}

func (app *Application) initStateStore() error {
	switch app.cfg.StateDriver {
	case "memory":
		app.states = memory.New()

	case "redis":
		s, err := redisdriver.New(context.Background(), redisdriver.Options{
			Addr:     app.cfg.RedisAddr,
			Password: app.cfg.RedisPassword,
			DB:       app.cfg.RedisDB,
		})
		if err != nil {
			return fmt.Errorf("init redis state store: %w", err)
		}
		app.states = s

	case "sqlite":
		dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
		s, err := sqlitedriver.New(dsn)
		if err != nil {
			return fmt.Errorf("init sqlite state store: %w", err)
		}
		if err := s.ApplyMigrations(); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
		app.states = s

	default:
		return fmt.Errorf("unknown state driver %q", app.cfg.StateDriver)
	}
	return nil
}

func (app *Application) initLifecycle() {
	audience := app.cfg.Audience
	if audience == "" {
		audience = app.cfg.BaseURL()
	}

	app.lifecycle = &service.LifecycleService{
		Signer:      app.signer,
		Verifier:    jwtx.NewVerifierRS256(app.keys, app.cfg.Issuer()),
		States:      app.states,
		Issuer:      app.cfg.Issuer(),
		Audience:    []string{audience},
		RequireDPoP: !app.cfg.DisableDPoP,
		AccessTTL:   app.cfg.AccessTTL,
		RefreshTTL:  app.cfg.RefreshTTL,
		SessionTTL:  app.cfg.SessionTTL,
		StateTTL:    app.cfg.StateTTL,
	}
}

func (app *Application) initHTTP() {
	dpop := dpopx.NewValidator(!app.cfg.DisableDPoP, app.cfg.TokenEndpoint())
	dpop.MaxAge = app.cfg.DPoPMaxAge

	router := httpapi.NewRouter(app.keys, app.states, app.cfg.Issuer(), BuildVersion, app.logger)
	router.Lifecycle = app.lifecycle
	router.DPoP = dpop
	router.TokenEndpoint = app.cfg.TokenEndpoint()
	router.JWKSEndpoint = app.cfg.JWKSEndpoint()
	router.RevocationEndpoint = app.cfg.RevocationEndpoint()
	router.SecureCookies = app.cfg.Env != "dev"
	router.ApplyRoutes()

	app.router = router
	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
