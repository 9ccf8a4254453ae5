package engine

import (
	"context"
	"errors"

	"contentline/internal/domain"
	"contentline/internal/repo"
)

func (e Engine) GetDeliverable(ctx context.Context, id string) (domain.Deliverable, error) {
	d, err := e.Repo.GetDeliverable(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return d, notFound("deliverable", id)
	}
	return d, err
}

func (e Engine) ListDeliverables(ctx context.Context, f repo.DeliverableFilters) ([]domain.Deliverable, error) {
	return e.Repo.ListDeliverables(ctx, f)
}

// Board groups deliverables by stage in pipeline order, followed by the
// archive column.
func (e Engine) Board(ctx context.Context) ([]domain.BoardColumn, error) {
	list, err := e.Stages.ListStages(ctx)
	if err != nil {
		return nil, err
	}
	items, err := e.Repo.ListDeliverables(ctx, repo.DeliverableFilters{})
	if err != nil {
		return nil, err
	}
	byStatus := map[string][]domain.Deliverable{}
	for _, d := range items {
		byStatus[d.Status] = append(byStatus[d.Status], d)
	}
	cols := make([]domain.BoardColumn, 0, len(list)+1)
	for _, s := range list {
		col := domain.BoardColumn{Stage: s, Items: byStatus[s.Name]}
		if col.Items == nil {
			col.Items = []domain.Deliverable{}
		}
		col.Count = len(col.Items)
		col.AtCap = s.WIPLimit != nil && *s.WIPLimit > 0 && col.Count >= *s.WIPLimit
		cols = append(cols, col)
	}
	archived := byStatus[e.archivedStatus()]
	if archived == nil {
		archived = []domain.Deliverable{}
	}
	cols = append(cols, domain.BoardColumn{
		Stage: domain.PipelineStage{Name: e.archivedStatus(), OrderIndex: len(list) + 1},
		Count: len(archived),
		Items: archived,
	})
	return cols, nil
}

func (e Engine) ActivityLog(ctx context.Context, deliverableID string, limit int) ([]domain.ActivityLogEntry, error) {
	if _, err := e.GetDeliverable(ctx, deliverableID); err != nil {
		return nil, err
	}
	return e.Repo.ListActivity(ctx, deliverableID, limit)
}

func (e Engine) Approvals(ctx context.Context, deliverableID string) ([]domain.Approval, error) {
	if _, err := e.GetDeliverable(ctx, deliverableID); err != nil {
		return nil, err
	}
	return e.Repo.ListApprovals(ctx, deliverableID)
}

func (e Engine) GetApproval(ctx context.Context, id string) (domain.Approval, error) {
	a, err := e.Repo.GetApproval(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return a, notFound("approval", id)
	}
	return a, err
}

// PendingApprovals lists the approvals waiting on approverID.
func (e Engine) PendingApprovals(ctx context.Context, approverID string) ([]domain.Approval, error) {
	return e.Repo.ListPendingApprovalsFor(ctx, approverID)
}

func (e Engine) Comments(ctx context.Context, deliverableID string) ([]domain.Comment, error) {
	if _, err := e.GetDeliverable(ctx, deliverableID); err != nil {
		return nil, err
	}
	return e.Repo.ListComments(ctx, deliverableID)
}

func (e Engine) Versions(ctx context.Context, deliverableID string) ([]domain.Version, error) {
	if _, err := e.GetDeliverable(ctx, deliverableID); err != nil {
		return nil, err
	}
	return e.Repo.ListVersions(ctx, deliverableID)
}
