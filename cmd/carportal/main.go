package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/carportal/carportal/internal/portal/backend"
	"github.com/carportal/carportal/internal/portal/config"
	"github.com/carportal/carportal/internal/portal/drafts"
	"github.com/carportal/carportal/internal/portal/httpserver"
	"github.com/carportal/carportal/internal/portal/observability"
	"github.com/carportal/carportal/internal/portal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	baseLogger, err := observability.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("carportal").With(zap.String("environment", cfg.Server.Environment))
	observability.InstallPropagator()

	if cfg.Session.EphemeralKeys {
		if cfg.IsProduction() {
			logger.Fatal("SESSION_HASH_KEY is required in production")
		}
		logger.Warn("session keys not configured; using ephemeral keys, sessions will not survive a restart")
	}

	sessions, err := session.NewManager(session.Config{
		CookieName:   cfg.Session.CookieName,
		HashKey:      cfg.Session.HashKey,
		BlockKey:     cfg.Session.BlockKey,
		CookieSecure: cfg.Session.Secure,
		Lifetime:     cfg.Session.Lifetime,
	})
	if err != nil {
		logger.Fatal("failed to initialise session manager", zap.Error(err))
	}

	store, closeStore, err := newDraftStore(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialise draft store", zap.Error(err))
	}
	defer closeStore()

	client, err := backend.NewClient(cfg.API.BaseURL, &http.Client{Timeout: cfg.API.Timeout},
		backend.WithAuthScheme(cfg.API.AuthScheme),
	)
	if err != nil {
		logger.Fatal("failed to initialise backend client", zap.Error(err))
	}

	server := httpserver.New(httpserver.Config{
		Address:          cfg.Server.Address,
		LoginPath:        cfg.Paths.Login,
		DashboardPath:    cfg.Paths.Dashboard,
		MetricsPath:      cfg.Metrics.Path,
		Sessions:         sessions,
		Drafts:           store,
		Authenticator:    client,
		Submitter:        client,
		Logger:           logger.Named("http"),
		CSRFCookieName:   cfg.CSRF.CookieName,
		CSRFCookieSecure: cfg.Session.Secure,
		CSRFHeaderName:   cfg.CSRF.HeaderName,
		UploadMaxBytes:   cfg.Uploads.MaxBytes,
		ReadTimeout:      cfg.Server.ReadTimeout,
		WriteTimeout:     cfg.Server.WriteTimeout,
		IdleTimeout:      cfg.Server.IdleTimeout,
	})

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("listening", zap.String("api", cfg.API.BaseURL), zap.String("drafts", cfg.Drafts.Backend))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func newDraftStore(cfg *config.Config, logger *zap.Logger) (drafts.Store, func(), error) {
	switch cfg.Drafts.Backend {
	case "redis":
		client, err := drafts.DialRedis(context.Background(), drafts.RedisOptions{
			Addr:     cfg.Drafts.Redis.Addr,
			Password: cfg.Drafts.Redis.Password,
			DB:       cfg.Drafts.Redis.DB,
		})
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			if err := client.Close(); err != nil {
				logger.Warn("redis close error", zap.Error(err))
			}
		}
		return drafts.NewRedisStore(client, cfg.Drafts.TTL), closeFn, nil
	default:
		store := drafts.NewMemoryStore(cfg.Drafts.TTL, nil)
		janitor := drafts.NewJanitor(store, logger)
		if err := janitor.Start(cfg.Drafts.SweepSchedule); err != nil {
			return nil, nil, fmt.Errorf("schedule draft sweep: %w", err)
		}
		return store, janitor.Stop, nil
	}
}
