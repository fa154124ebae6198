package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/investigraph/internal/adapters/driven/auth"
	"github.com/custodia-labs/investigraph/internal/adapters/driven/file"
	"github.com/custodia-labs/investigraph/internal/adapters/driven/investigraph"
	"github.com/custodia-labs/investigraph/internal/adapters/driven/postgres"
	redisadapter "github.com/custodia-labs/investigraph/internal/adapters/driven/redis"
	"github.com/custodia-labs/investigraph/internal/adapters/driven/secret"
	"github.com/custodia-labs/investigraph/internal/config"
	"github.com/custodia-labs/investigraph/internal/core/ports/driven"
	"github.com/custodia-labs/investigraph/internal/core/ports/driving"
	"github.com/custodia-labs/investigraph/internal/core/services"
	"github.com/custodia-labs/investigraph/internal/runtime"
)

// app holds the wired components shared by every command
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	sessions  *services.SessionManager
	client    *investigraph.Client
	auth      driving.AuthService
	documents driving.DocumentService
	dashboard *services.Dashboard
	views     *runtime.Services

	closers []func() error
}

// newApp connects the session backend, restores any stored session and
// builds the services on top of it
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	store, lock, err := a.openSessionStore(ctx)
	if err != nil {
		a.close()
		return nil, err
	}

	a.sessions = services.NewSessionManager(store, auth.NewInspector(), logger)
	if err := a.sessions.Init(ctx); err != nil {
		// An unreadable session behaves like being logged out
		logger.Warn("stored session could not be restored", "error", err)
	}

	a.client = investigraph.NewClient(a.sessions,
		investigraph.WithBaseURL(cfg.API.URL),
		investigraph.WithTimeout(cfg.API.Timeout.Duration),
		investigraph.WithRateLimit(cfg.API.RateLimit),
		investigraph.WithLogger(logger),
	)

	a.auth = services.NewAuthService(a.client, a.sessions, logger)
	a.documents = services.NewDocumentService(a.client)

	importer := services.NewImporter(services.ImporterConfig{
		API:         a.client,
		Lock:        lock,
		Interval:    cfg.Dashboard.ImportInterval.Duration,
		MaxAttempts: cfg.Dashboard.ImportMaxAttempts,
		Logger:      logger,
	})

	a.dashboard = services.NewDashboard(services.DashboardConfig{
		API:               a.client,
		Documents:         a.documents,
		Auth:              a.auth,
		Importer:          importer,
		PollInterval:      cfg.Dashboard.PollInterval.Duration,
		MinUploadDuration: cfg.Dashboard.MinUploadDuration.Duration,
		Logger:            logger,
	})

	a.views = runtime.NewServices(a.client, a.dashboard, logger)
	a.closers = append(a.closers, a.views.Close)

	return a, nil
}

// openSessionStore picks the session backend. Redis and PostgreSQL also
// provide the lock that keeps two clients from importing the same ticker
// at once.
func (a *app) openSessionStore(ctx context.Context) (driven.SessionStore, driven.DistributedLock, error) {
	var sealer *secret.Sealer
	if a.cfg.Session.Key != "" {
		s, err := secret.NewSealerFromPassphrase(a.cfg.Session.Key)
		if err != nil {
			return nil, nil, fmt.Errorf("session key: %w", err)
		}
		sealer = s
	}

	switch a.cfg.Session.Backend {
	case config.BackendRedis:
		opts, err := redis.ParseURL(a.cfg.Session.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		a.closers = append(a.closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.logger.Debug("redis session store connected")
		return redisadapter.NewSessionStore(client, ""), redisadapter.NewLock(client), nil

	case config.BackendPostgres:
		db, err := postgres.Connect(ctx, postgres.DefaultConfig(a.cfg.Session.DatabaseURL))
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		if err := db.InitSchema(ctx); err != nil {
			return nil, nil, fmt.Errorf("init schema: %w", err)
		}
		a.logger.Debug("postgres session store connected")
		return postgres.NewSessionStore(db, "", sealer), postgres.NewLeaseLock(db), nil

	default:
		path := a.cfg.Session.Path
		if path == "" {
			path = file.DefaultPath()
		}
		a.logger.Debug("file session store", "path", path)
		return file.NewSessionStore(path, sealer), nil, nil
	}
}

// close releases everything in reverse order of acquisition
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Debug("close failed", "error", err)
		}
	}
	a.closers = nil
}
