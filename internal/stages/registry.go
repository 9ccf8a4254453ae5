package stages

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"contentline/internal/config"
	"contentline/internal/domain"
	"contentline/internal/repo"
)

// Registry answers questions about the ordered pipeline stages.
type Registry struct {
	Repo     repo.Repo
	Fallback string
}

func New(r repo.Repo, cfg *config.Config) Registry {
	return Registry{Repo: r, Fallback: cfg.Workflow.FallbackStatus}
}

func (g Registry) ListStages(ctx context.Context) ([]domain.PipelineStage, error) {
	return g.Repo.ListStages(ctx)
}

func (g Registry) ListStagesTx(ctx context.Context, tx *sql.Tx) ([]domain.PipelineStage, error) {
	return g.Repo.ListStagesTx(ctx, tx)
}

// FindByName returns repo.ErrNotFound for unknown names.
func (g Registry) FindByName(ctx context.Context, name string) (domain.PipelineStage, error) {
	return g.Repo.GetStageByName(ctx, name)
}

func (g Registry) FindByNameTx(ctx context.Context, tx *sql.Tx, name string) (domain.PipelineStage, error) {
	return g.Repo.GetStageByNameTx(ctx, tx, name)
}

// DefaultInitialStatus is the first stage, or the fallback when no stage exists.
func (g Registry) DefaultInitialStatus(ctx context.Context) (string, error) {
	list, err := g.Repo.ListStages(ctx)
	if err != nil {
		return "", err
	}
	return g.initial(list), nil
}

func (g Registry) DefaultInitialStatusTx(ctx context.Context, tx *sql.Tx) (string, error) {
	list, err := g.Repo.ListStagesTx(ctx, tx)
	if err != nil {
		return "", err
	}
	return g.initial(list), nil
}

func (g Registry) initial(list []domain.PipelineStage) string {
	if len(list) == 0 {
		if g.Fallback == "" {
			return "Intake"
		}
		return g.Fallback
	}
	return list[0].Name
}

// WIPLimitFor returns the stage cap; limited is false for unknown or uncapped
// stages. A stored limit of 0 means uncapped.
func (g Registry) WIPLimitFor(ctx context.Context, name string) (limit int, limited bool, err error) {
	s, err := g.Repo.GetStageByName(ctx, name)
	return wipOf(s, err)
}

func (g Registry) WIPLimitForTx(ctx context.Context, tx *sql.Tx, name string) (limit int, limited bool, err error) {
	s, err := g.Repo.GetStageByNameTx(ctx, tx, name)
	return wipOf(s, err)
}

func wipOf(s domain.PipelineStage, err error) (int, bool, error) {
	if errors.Is(err, repo.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if s.WIPLimit == nil || *s.WIPLimit <= 0 {
		return 0, false, nil
	}
	return *s.WIPLimit, true, nil
}

// Seed inserts the configured stages when the registry is empty and reports
// how many were created.
func (g Registry) Seed(ctx context.Context, stages []config.StageConfig, now time.Time) (int, error) {
	tx, err := g.Repo.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	existing, err := g.Repo.ListStagesTx(ctx, tx)
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		return 0, nil
	}
	ts := domain.FormatTime(now)
	for i, sc := range stages {
		s := domain.PipelineStage{
			ID:         uuid.NewString(),
			Name:       sc.Name,
			OrderIndex: i + 1,
			WIPLimit:   sc.WIPLimit,
			CreatedAt:  ts,
			UpdatedAt:  ts,
		}
		if err := g.Repo.InsertStage(ctx, tx, s); err != nil {
			return 0, fmt.Errorf("seed stage %s: %w", sc.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(stages), nil
}
