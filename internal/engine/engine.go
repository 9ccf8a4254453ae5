package engine

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"

	"contentline/internal/activity"
	"contentline/internal/config"
	"contentline/internal/domain"
	"contentline/internal/metrics"
	"contentline/internal/notify"
	"contentline/internal/pkg/logger"
	"contentline/internal/repo"
	"contentline/internal/stages"
)

type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Stages   stages.Registry
	Activity activity.Recorder
	Notify   notify.Emitter
	Config   *config.Config
	Log      *logger.Logger
	Metrics  *metrics.Metrics
	Now      func() time.Time

	validate *validator.Validate
	sweeps   *singleflight.Group
}

// New wires the engine with SQL-backed collaborators. Metrics may be nil.
func New(db *sql.DB, cfg *config.Config, log *logger.Logger, m *metrics.Metrics) Engine {
	if log == nil {
		log = logger.NewNop()
	}
	r := repo.Repo{DB: db}
	return Engine{
		DB:       db,
		Repo:     r,
		Stages:   stages.New(r, cfg),
		Activity: activity.Writer{Repo: r},
		Notify:   notify.SQLEmitter{Repo: r, Log: log.With("component", "notify"), Metrics: m},
		Config:   cfg,
		Log:      log.With("component", "engine"),
		Metrics:  m,
		Now:      time.Now,
		validate: newValidator(),
		sweeps:   &singleflight.Group{},
	}
}

// SetClock pins the engine and its SQL collaborators to now.
func (e *Engine) SetClock(now func() time.Time) {
	e.Now = now
	if w, ok := e.Activity.(activity.Writer); ok {
		w.Now = now
		e.Activity = w
	}
	if em, ok := e.Notify.(notify.SQLEmitter); ok {
		em.Now = now
		e.Notify = em
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// logger returns e.Log, or a no-op logger for engines built without New.
func (e Engine) logger() *logger.Logger {
	if e.Log == nil {
		return logger.NewNop()
	}
	return e.Log
}

func (e Engine) timestamp() string {
	return domain.FormatTime(e.now())
}

// inTx runs fn inside one immediate transaction and commits when it succeeds.
func (e Engine) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		if errors.Is(err, repo.ErrStale) {
			return ConflictError{Err: err}
		}
		return err
	}
	return tx.Commit()
}

// emit delivers notices collected during a committed operation. Failures are
// logged and never undo the state change.
func (e Engine) emit(ctx context.Context, notices []notify.Notice) {
	if e.Notify == nil {
		return
	}
	for _, n := range notices {
		if _, err := e.Notify.Emit(ctx, n); err != nil {
			e.logger().Warn("notification failed", "type", n.Type, "user_id", n.UserID, "entity_id", n.EntityID, "error", err)
		}
	}
}

func (e Engine) record(ctx context.Context, tx *sql.Tx, deliverableID, userID, action string, details activity.Details) error {
	if e.Activity == nil {
		return nil
	}
	return e.Activity.Append(ctx, tx, deliverableID, userID, action, details)
}

func (e Engine) archivedStatus() string {
	if e.Config != nil && e.Config.Workflow.ArchivedStatus != "" {
		return e.Config.Workflow.ArchivedStatus
	}
	return "Archived"
}

func (e Engine) defaultRevisionLimit() int {
	if e.Config != nil {
		return e.Config.Workflow.DefaultRevisionLimit
	}
	return 3
}

func deliverableNotice(userID, typ, title, body, deliverableID string) notify.Notice {
	return notify.Notice{
		UserID:     userID,
		Type:       typ,
		Title:      title,
		Body:       body,
		EntityType: notify.EntityDeliverable,
		EntityID:   deliverableID,
	}
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
