package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"ContractDesk/internal/authgate"
	"ContractDesk/internal/config"
	"ContractDesk/internal/infrastructure/backend"
	"ContractDesk/internal/infrastructure/scheduler"
	"ContractDesk/internal/infrastructure/sessionstore"
	"ContractDesk/internal/infrastructure/web"
	"ContractDesk/internal/logging"
	"ContractDesk/internal/ports"
	"ContractDesk/internal/riskschema"
	"ContractDesk/internal/usecase"
	"ContractDesk/pkg/logger"
)

const (
	shutdownTimeout = 10 * time.Second
	sweepInterval   = time.Minute
)

// Application wires configs to use cases and the HTTP server lifecycle.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	handler  http.Handler
	sessions *web.Sessions
	janitor  ports.Scheduler
	closers  []func() error
}

// New builds the application from configuration. It fails only when the configured
// session store cannot be reached.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	app := &Application{cfg: cfg, logger: baseLogger, janitor: scheduler.NewTicker(sweepInterval)}

	var factory ports.SessionStoreFactory = sessionstore.MemoryFactory{}
	var health func(context.Context) error
	if cfg.Session.Store == config.StoreRedis {
		redisFactory, err := sessionstore.NewRedisFactory(cfg.Session.RedisURL, cfg.Session.TTL)
		if err != nil {
			return nil, fmt.Errorf("session store: %w", err)
		}
		app.closers = append(app.closers, redisFactory.Close)
		factory = redisFactory
		health = redisFactory.Ping
	}
	baseLogger.Info("session store ready", "store", cfg.Session.Store, "ttl", cfg.Session.TTL)

	gateway := backend.NewClient(cfg.Backend, nil, baseLogger.With("component", "backend"))
	risk := riskschema.Default()
	policy := usecase.KeepArtifact
	if cfg.Session.ClearArtifactAfterRisk {
		policy = usecase.ClearAfterRisk
	}
	workflowLogger := baseLogger.With("component", "workflow")

	build := func(store ports.SessionStore) *usecase.Workflow {
		return usecase.NewWorkflow(usecase.WorkflowDeps{
			Gateway: gateway,
			Store:   store,
			Risk:    risk,
			Policy:  policy,
			Logger:  workflowLogger,
		})
	}

	if cfg.Auth.TokenSecret == "" {
		baseLogger.Warn("auth token secret is empty; every user-scoped route will redirect to /login")
	}

	app.sessions = web.NewSessions(factory, build, cfg.Session.CookieName, cfg.Session.TTL)
	app.handler = web.NewRouter(web.Deps{
		Sessions:    app.sessions,
		Verifier:    authgate.NewVerifier(cfg.Auth.TokenSecret),
		AuthCookie:  cfg.Auth.CookieName,
		CORSOrigins: cfg.HTTP.CORSOrigins,
		Health:      health,
		Logger:      baseLogger.With("component", "web"),
	})
	return app, nil
}

// Handler exposes the router, mainly for tests.
func (a *Application) Handler() http.Handler {
	return a.handler
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (a *Application) Run(ctx context.Context) error {
	defer a.close()

	err := a.janitor.Start(ctx, func(now time.Time) {
		if evicted := a.sessions.Sweep(now); evicted > 0 {
			a.logger.Debug("idle sessions evicted", "count", evicted)
		}
	})
	if err != nil {
		return fmt.Errorf("start session janitor: %w", err)
	}
	defer func() {
		if err := a.janitor.Stop(context.Background()); err != nil {
			a.logger.Warn("stop session janitor", "error", err)
		}
	}()

	srv := &http.Server{
		Addr:              a.cfg.HTTP.Addr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          logger.New(a.logger, "http", slog.LevelError),
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", "addr", srv.Addr, "backend", a.cfg.Backend.BaseURL)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	a.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (a *Application) close() {
	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil {
			a.logger.Warn("close resource", "error", err)
		}
	}
}
