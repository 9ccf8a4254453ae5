package engine

import (
	"context"
	"fmt"

	"contentline/internal/notify"
	"contentline/internal/repo"
)

// SweepOverdue notifies the assignee and requester of every open deliverable
// past its due date and returns how many notifications were created. Repeated
// sweeps add nothing while the earlier notice is unread. Concurrent calls in
// one process share a single run.
func (e Engine) SweepOverdue(ctx context.Context) (int, error) {
	if e.sweeps == nil {
		return e.sweepOverdue(ctx)
	}
	v, err, _ := e.sweeps.Do("overdue", func() (any, error) {
		return e.sweepOverdue(ctx)
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

// SweepQuietly runs a sweep for read paths and only logs failures.
func (e Engine) SweepQuietly(ctx context.Context) {
	if _, err := e.SweepOverdue(ctx); err != nil {
		e.logger().Warn("overdue sweep failed", "error", err)
	}
}

func (e Engine) sweepOverdue(ctx context.Context) (int, error) {
	var exclude []string
	if e.Config != nil {
		exclude = e.Config.Overdue.ExcludeStatuses
	}
	late, err := e.Repo.ListDeliverables(ctx, repo.DeliverableFilters{
		DueBefore:       e.timestamp(),
		ExcludeStatuses: exclude,
	})
	if err != nil {
		return 0, fmt.Errorf("list overdue: %w", err)
	}
	e.Metrics.Sweep()
	if e.Notify == nil {
		return 0, nil
	}
	created := 0
	for _, d := range late {
		recipients := []string{}
		if d.AssigneeID != nil {
			recipients = append(recipients, *d.AssigneeID)
		}
		if d.AssigneeID == nil || *d.AssigneeID != d.RequesterID {
			recipients = append(recipients, d.RequesterID)
		}
		for _, uid := range recipients {
			ok, err := e.Notify.Emit(ctx, deliverableNotice(uid, notify.TypeOverdue, "Deliverable overdue",
				fmt.Sprintf("%q was due %s", d.Title, d.DueAt), d.ID))
			if err != nil {
				e.logger().Warn("overdue notification failed", "deliverable_id", d.ID, "user_id", uid, "error", err)
				continue
			}
			if ok {
				created++
			}
		}
	}
	if created > 0 {
		e.logger().Info("overdue sweep", "notified", created)
	}
	return created, nil
}
