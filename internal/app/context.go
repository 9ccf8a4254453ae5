package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"contentline/internal/config"
	"contentline/internal/db"
	"contentline/internal/domain"
	"contentline/internal/engine"
	"contentline/internal/metrics"
	"contentline/internal/migrate"
	"contentline/internal/notify"
	"contentline/internal/pkg/logger"
	"contentline/internal/repo"
)

type Options struct {
	Workspace string
	Config    *config.Config
	Logger    *logger.Logger
	Metrics   *metrics.Metrics
	// BootstrapAdminID becomes an admin when the workspace has no admin yet.
	BootstrapAdminID string
}

// App is an opened workspace: database, migrations applied, stages seeded.
type App struct {
	DB     *sql.DB
	Engine engine.Engine
	Config *config.Config

	publisher *notify.RedisPublisher
}

// Open prepares the workspace database and wires the engine, attaching the
// Redis publisher when notifications.redis.addr is configured.
func Open(ctx context.Context, opts Options) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		var err error
		cfg, err = config.Load(opts.Workspace)
		if err != nil {
			return nil, err
		}
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}
	conn, err := db.Open(db.Config{Workspace: opts.Workspace})
	if err != nil {
		return nil, err
	}
	applied, err := migrate.Migrate(ctx, conn)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if applied > 0 {
		log.Info("migrations applied", "count", applied, "path", db.Path(opts.Workspace))
	}

	eng := engine.New(conn, cfg, log, opts.Metrics)
	a := &App{DB: conn, Engine: eng, Config: cfg}

	seeded, err := eng.Stages.Seed(ctx, cfg.Pipeline.Stages, eng.Now())
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if seeded > 0 {
		log.Info("pipeline seeded", "stages", seeded)
	}
	if err := ensureAdmin(ctx, eng, opts.BootstrapAdminID); err != nil {
		_ = conn.Close()
		return nil, err
	}

	if cfg.Notifications.Redis.Addr != "" {
		pub, err := notify.NewRedisPublisher(ctx, log, cfg.Notifications.Redis)
		if err != nil {
			log.Warn("redis publisher disabled", "error", err)
		} else {
			a.publisher = pub
			if em, ok := a.Engine.Notify.(notify.SQLEmitter); ok {
				em.Publisher = pub
				a.Engine.Notify = em
			}
		}
	}
	return a, nil
}

func ensureAdmin(ctx context.Context, eng engine.Engine, adminID string) error {
	if adminID == "" {
		return nil
	}
	admins, err := eng.ListProfiles(ctx, domain.RoleAdmin)
	if err != nil {
		return err
	}
	if len(admins) > 0 {
		return nil
	}
	_, err = eng.GetProfile(ctx, adminID)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return err
	}
	if err == nil {
		// an existing non-admin profile is not promoted silently
		return nil
	}
	_, err = eng.UpsertProfile(ctx, domain.Profile{ID: adminID, Role: domain.RoleAdmin})
	return err
}

func (a *App) Close() error {
	if a.publisher != nil {
		_ = a.publisher.Close()
	}
	return a.DB.Close()
}
