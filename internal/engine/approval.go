package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"contentline/internal/activity"
	"contentline/internal/domain"
	"contentline/internal/engine/auth"
	"contentline/internal/notify"
	"contentline/internal/repo"
)

// RequestApproval opens a pending approval for the deliverable and moves it to
// the approval-requested stage without a WIP check.
func (e Engine) RequestApproval(ctx context.Context, deliverableID string, actor domain.Actor) (domain.Approval, error) {
	var a domain.Approval
	var notices []notify.Notice
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		d, err := e.Repo.GetDeliverableTx(ctx, tx, deliverableID)
		if errors.Is(err, repo.ErrNotFound) {
			return notFound("deliverable", deliverableID)
		}
		if err != nil {
			return err
		}
		if !auth.CanRequestApproval(actor, d) {
			return auth.ForbiddenError{Action: "request approval"}
		}
		pending, err := e.Repo.PendingApprovalTx(ctx, tx, d.ID)
		if err == nil {
			return InvalidStateError{Message: fmt.Sprintf("approval %s is already pending for this deliverable", pending.ID)}
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return err
		}

		var approverID *string
		approver, err := e.Repo.FirstProfileWithRoleTx(ctx, tx, domain.RoleApprover)
		switch {
		case err == nil:
			approverID = &approver.ID
		case errors.Is(err, repo.ErrNotFound):
		default:
			return err
		}

		now := e.timestamp()
		a = domain.Approval{
			ID:            uuid.NewString(),
			DeliverableID: d.ID,
			RequestedBy:   actor.ID,
			RequestedAt:   now,
			ApproverID:    approverID,
			Status:        domain.ApprovalPending,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := e.Repo.InsertApproval(ctx, tx, a); err != nil {
			return fmt.Errorf("insert approval: %w", err)
		}
		d.Status = e.Config.Workflow.ApprovalRequestedStatus
		if err := e.save(ctx, tx, &d); err != nil {
			return err
		}
		if err := e.record(ctx, tx, d.ID, actor.ID, activity.ActionApprovalRequested, activity.Details{"approval_id": a.ID}); err != nil {
			return err
		}
		if approverID != nil {
			notices = append(notices, notify.Notice{
				UserID:     *approverID,
				Type:       notify.TypeApprovalRequested,
				Title:      "Approval requested",
				Body:       fmt.Sprintf("%q is waiting for your review", d.Title),
				EntityType: notify.EntityApproval,
				EntityID:   a.ID,
			})
		}
		return nil
	})
	if err != nil {
		return domain.Approval{}, err
	}
	e.Metrics.Transition(e.Config.Workflow.ApprovalRequestedStatus)
	e.emit(ctx, notices)
	return a, nil
}

// DecideApproval settles a pending approval. Whether the approval is still
// pending is checked before the actor's permission.
func (e Engine) DecideApproval(ctx context.Context, approvalID string, decision domain.ApprovalStatus, notes string, actor domain.Actor) (domain.Approval, error) {
	var a domain.Approval
	var d domain.Deliverable
	var notices []notify.Notice
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		cur, err := e.Repo.GetApprovalTx(ctx, tx, approvalID)
		if errors.Is(err, repo.ErrNotFound) {
			return notFound("approval", approvalID)
		}
		if err != nil {
			return err
		}
		if decision != domain.ApprovalApproved && decision != domain.ApprovalChangesRequested {
			return ValidationError{Field: "status", Message: "must be approved or changes_requested"}
		}
		if cur.Status != domain.ApprovalPending {
			return InvalidStateError{Message: fmt.Sprintf("approval %s was already decided: %s", cur.ID, cur.Status)}
		}
		if !auth.CanDecideApproval(actor, cur) {
			return auth.ForbiddenError{Action: "decide approval"}
		}

		d, err = e.Repo.GetDeliverableTx(ctx, tx, cur.DeliverableID)
		if err != nil {
			return fmt.Errorf("load deliverable %s: %w", cur.DeliverableID, err)
		}

		now := e.timestamp()
		a = cur
		a.Status = decision
		a.DecisionAt = &now
		a.DecisionNotes = optionalString(strings.TrimSpace(notes))
		a.UpdatedAt = now
		if err := e.Repo.DecideApproval(ctx, tx, a); err != nil {
			if errors.Is(err, repo.ErrStale) {
				return InvalidStateError{Message: fmt.Sprintf("approval %s was already decided", cur.ID)}
			}
			return err
		}

		switch decision {
		case domain.ApprovalApproved:
			d.Status = e.Config.Workflow.ApprovedStatus
		case domain.ApprovalChangesRequested:
			d.Status = e.Config.Workflow.ChangesRequestedStatus
			d.RevisionRound++
			if d.RevisionRound >= d.RevisionLimit {
				notices = append(notices, deliverableNotice(d.RequesterID, notify.TypeRevisionLimitReached,
					"Revision limit reached",
					fmt.Sprintf("%q reached revision round %d of %d", d.Title, d.RevisionRound, d.RevisionLimit), d.ID))
			}
		}
		if err := e.save(ctx, tx, &d); err != nil {
			return err
		}
		if err := e.record(ctx, tx, d.ID, actor.ID, activity.ActionApprovalDecision, activity.Details{
			"approval_id": a.ID,
			"status":      string(a.Status),
		}); err != nil {
			return err
		}

		body := fmt.Sprintf("%q was approved", d.Title)
		if decision == domain.ApprovalChangesRequested {
			body = fmt.Sprintf("Changes were requested on %q", d.Title)
		}
		recipients := []string{d.RequesterID}
		if d.AssigneeID != nil && *d.AssigneeID != d.RequesterID {
			recipients = append(recipients, *d.AssigneeID)
		}
		for _, uid := range recipients {
			notices = append(notices, notify.Notice{
				UserID:     uid,
				Type:       notify.TypeApprovalDecision,
				Title:      "Approval decision",
				Body:       body,
				EntityType: notify.EntityApproval,
				EntityID:   a.ID,
			})
		}
		return nil
	})
	if err != nil {
		return domain.Approval{}, err
	}
	e.Metrics.Decision(string(decision))
	e.Metrics.Transition(d.Status)
	e.emit(ctx, notices)
	return a, nil
}
