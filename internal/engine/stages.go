package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"contentline/internal/domain"
	"contentline/internal/engine/auth"
	"contentline/internal/repo"
)

// StageInput describes a new pipeline stage. A nil OrderIndex appends it.
type StageInput struct {
	Name       string
	OrderIndex *int
	WIPLimit   *int
}

func (e Engine) ListStages(ctx context.Context) ([]domain.PipelineStage, error) {
	return e.Stages.ListStages(ctx)
}

func (e Engine) CreateStage(ctx context.Context, actor domain.Actor, in StageInput) (domain.PipelineStage, error) {
	if !auth.CanAdminister(actor) {
		return domain.PipelineStage{}, auth.ForbiddenError{Action: "manage stages"}
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.PipelineStage{}, ValidationError{Field: "name", Message: "is required"}
	}
	if name == e.archivedStatus() {
		return domain.PipelineStage{}, ValidationError{Field: "name", Message: fmt.Sprintf("%q is reserved", name)}
	}
	if err := checkWIPValue(in.WIPLimit); err != nil {
		return domain.PipelineStage{}, err
	}
	var s domain.PipelineStage
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		_, err := e.Stages.FindByNameTx(ctx, tx, name)
		if err == nil {
			return ValidationError{Field: "name", Message: fmt.Sprintf("stage %q already exists", name)}
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return err
		}
		order := 0
		if in.OrderIndex != nil {
			order = *in.OrderIndex
		} else {
			list, err := e.Stages.ListStagesTx(ctx, tx)
			if err != nil {
				return err
			}
			for _, st := range list {
				if st.OrderIndex >= order {
					order = st.OrderIndex + 1
				}
			}
		}
		now := e.timestamp()
		s = domain.PipelineStage{
			ID:         uuid.NewString(),
			Name:       name,
			OrderIndex: order,
			WIPLimit:   in.WIPLimit,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		return e.Repo.InsertStage(ctx, tx, s)
	})
	if err != nil {
		return domain.PipelineStage{}, err
	}
	e.logger().Info("stage created", "name", s.Name, "order_index", s.OrderIndex)
	return s, nil
}

// SetWIPLimit sets or, with a nil or zero limit, removes the stage's cap. Lowering a
// cap below the current count is allowed; only later moves are rejected.
func (e Engine) SetWIPLimit(ctx context.Context, actor domain.Actor, name string, limit *int) (domain.PipelineStage, error) {
	if err := checkWIPValue(limit); err != nil {
		return domain.PipelineStage{}, err
	}
	return e.updateStage(ctx, actor, name, func(s *domain.PipelineStage) { s.WIPLimit = limit })
}

func (e Engine) SetStageOrder(ctx context.Context, actor domain.Actor, name string, orderIndex int) (domain.PipelineStage, error) {
	return e.updateStage(ctx, actor, name, func(s *domain.PipelineStage) { s.OrderIndex = orderIndex })
}

func (e Engine) updateStage(ctx context.Context, actor domain.Actor, name string, mutate func(*domain.PipelineStage)) (domain.PipelineStage, error) {
	if !auth.CanAdminister(actor) {
		return domain.PipelineStage{}, auth.ForbiddenError{Action: "manage stages"}
	}
	var s domain.PipelineStage
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		cur, err := e.Stages.FindByNameTx(ctx, tx, name)
		if errors.Is(err, repo.ErrNotFound) {
			return notFound("stage", name)
		}
		if err != nil {
			return err
		}
		s = cur
		mutate(&s)
		s.UpdatedAt = e.timestamp()
		return e.Repo.UpdateStage(ctx, tx, s)
	})
	if err != nil {
		return domain.PipelineStage{}, err
	}
	return s, nil
}

// DeleteStage removes a stage no deliverable uses and the approval workflow
// does not target.
func (e Engine) DeleteStage(ctx context.Context, actor domain.Actor, name string) error {
	if !auth.CanAdminister(actor) {
		return auth.ForbiddenError{Action: "manage stages"}
	}
	for _, ws := range e.Config.WorkflowStatuses() {
		if ws == name {
			return InvalidStateError{Message: fmt.Sprintf("stage %q is used by the approval workflow", name)}
		}
	}
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		s, err := e.Stages.FindByNameTx(ctx, tx, name)
		if errors.Is(err, repo.ErrNotFound) {
			return notFound("stage", name)
		}
		if err != nil {
			return err
		}
		n, err := e.Repo.CountAtStatusTx(ctx, tx, name, "")
		if err != nil {
			return err
		}
		if n > 0 {
			return InvalidStateError{Message: fmt.Sprintf("stage %q still holds %d deliverables", name, n)}
		}
		return e.Repo.DeleteStage(ctx, tx, s.ID)
	})
	if err != nil {
		return err
	}
	e.logger().Info("stage deleted", "name", name)
	return nil
}

func checkWIPValue(limit *int) error {
	if limit != nil && *limit < 0 {
		return ValidationError{Field: "wip_limit", Message: "must be at least 0"}
	}
	return nil
}
