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

// DeliverableInput carries the fields of a new deliverable.
type DeliverableInput struct {
	Title              string   `json:"title" validate:"required"`
	Platform           string   `json:"platform" validate:"required,oneof=instagram tiktok facebook linkedin youtube x email blog other"`
	Format             string   `json:"format" validate:"required,oneof=static_post carousel story reel short long_video ad email landing_page other"`
	Goal               string   `json:"goal" validate:"required,oneof=engagement lead_gen retention announcement education conversion other"`
	DueAt              string   `json:"due_at" validate:"required"`
	Priority           string   `json:"priority" validate:"required,oneof=p0 p1 p2 p3"`
	Complexity         string   `json:"complexity" validate:"required,oneof=s m l"`
	AssigneeID         string   `json:"assignee_id"`
	CampaignName       string   `json:"campaign_name"`
	Audience           string   `json:"audience"`
	CTA                string   `json:"cta"`
	CopyDirection      string   `json:"copy_direction"`
	ComplianceFlags    []string `json:"compliance_flags"`
	RequiredDisclaimer bool     `json:"required_disclaimer"`
	DisclaimerText     string   `json:"disclaimer_text"`
	Hashtags           string   `json:"hashtags"`
	Notes              string   `json:"notes"`
	RevisionLimit      *int     `json:"revision_limit"`
}

// DeliverablePatch holds optional field edits. A nil field is left alone; an
// empty string clears an optional text field.
type DeliverablePatch struct {
	Title              *string   `json:"title"`
	Platform           *string   `json:"platform" validate:"omitempty,oneof=instagram tiktok facebook linkedin youtube x email blog other"`
	Format             *string   `json:"format" validate:"omitempty,oneof=static_post carousel story reel short long_video ad email landing_page other"`
	Goal               *string   `json:"goal" validate:"omitempty,oneof=engagement lead_gen retention announcement education conversion other"`
	DueAt              *string   `json:"due_at"`
	Priority           *string   `json:"priority" validate:"omitempty,oneof=p0 p1 p2 p3"`
	Complexity         *string   `json:"complexity" validate:"omitempty,oneof=s m l"`
	Status             *string   `json:"status"`
	Blocked            *bool     `json:"blocked"`
	BlockedReason      *string   `json:"blocked_reason"`
	AssigneeID         *string   `json:"assignee_id"`
	CampaignName       *string   `json:"campaign_name"`
	Audience           *string   `json:"audience"`
	CTA                *string   `json:"cta"`
	CopyDirection      *string   `json:"copy_direction"`
	ComplianceFlags    *[]string `json:"compliance_flags"`
	RequiredDisclaimer *bool     `json:"required_disclaimer"`
	DisclaimerText     *string   `json:"disclaimer_text"`
	Hashtags           *string   `json:"hashtags"`
	Notes              *string   `json:"notes"`
	RevisionLimit      *int      `json:"revision_limit"`
}

func (e Engine) CreateDeliverable(ctx context.Context, in DeliverableInput, requesterID string) (domain.Deliverable, error) {
	if strings.TrimSpace(requesterID) == "" {
		return domain.Deliverable{}, ValidationError{Field: "requester_id", Message: "is required"}
	}
	in.Title = strings.TrimSpace(in.Title)
	if err := e.checkStruct(in); err != nil {
		return domain.Deliverable{}, err
	}
	if err := e.checkFlags(in.ComplianceFlags); err != nil {
		return domain.Deliverable{}, err
	}
	due, err := normalizeDue(in.DueAt)
	if err != nil {
		return domain.Deliverable{}, err
	}
	limit := e.defaultRevisionLimit()
	if in.RevisionLimit != nil {
		if *in.RevisionLimit < 0 {
			return domain.Deliverable{}, ValidationError{Field: "revision_limit", Message: "must be at least 0"}
		}
		limit = *in.RevisionLimit
	}
	flags := in.ComplianceFlags
	if flags == nil {
		flags = []string{}
	}

	now := e.timestamp()
	d := domain.Deliverable{
		ID:                 uuid.NewString(),
		Title:              in.Title,
		RequesterID:        requesterID,
		AssigneeID:         optionalString(in.AssigneeID),
		Platform:           in.Platform,
		Format:             in.Format,
		Goal:               in.Goal,
		DueAt:              due,
		Priority:           in.Priority,
		Complexity:         in.Complexity,
		CampaignName:       optionalString(in.CampaignName),
		Audience:           optionalString(in.Audience),
		CTA:                optionalString(in.CTA),
		CopyDirection:      optionalString(in.CopyDirection),
		ComplianceFlags:    flags,
		RequiredDisclaimer: in.RequiredDisclaimer,
		DisclaimerText:     optionalString(in.DisclaimerText),
		Hashtags:           optionalString(in.Hashtags),
		Notes:              optionalString(in.Notes),
		RevisionLimit:      limit,
		Version:            1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	var notices []notify.Notice
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if d.AssigneeID != nil {
			if err := e.requireProfile(ctx, tx, *d.AssigneeID); err != nil {
				return err
			}
		}
		status, err := e.Stages.DefaultInitialStatusTx(ctx, tx)
		if err != nil {
			return err
		}
		d.Status = status
		if err := e.Repo.InsertDeliverable(ctx, tx, d); err != nil {
			return fmt.Errorf("insert deliverable: %w", err)
		}
		if err := e.record(ctx, tx, d.ID, requesterID, activity.ActionCreated, activity.Details{"title": d.Title}); err != nil {
			return err
		}
		if d.AssigneeID != nil {
			notices = append(notices, deliverableNotice(*d.AssigneeID, notify.TypeDeliverableAssigned,
				"New deliverable assigned", fmt.Sprintf("You were assigned %q", d.Title), d.ID))
			return nil
		}
		admins, err := e.Repo.ListProfilesTx(ctx, tx, domain.RoleAdmin)
		if err != nil {
			return err
		}
		for _, a := range admins {
			notices = append(notices, deliverableNotice(a.ID, notify.TypeDeliverableCreated,
				"New deliverable", fmt.Sprintf("%q needs an assignee", d.Title), d.ID))
		}
		return nil
	})
	if err != nil {
		return domain.Deliverable{}, err
	}
	e.emit(ctx, notices)
	return d, nil
}

func (e Engine) requireProfile(ctx context.Context, tx *sql.Tx, id string) error {
	_, err := e.Repo.GetProfileTx(ctx, tx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return ValidationError{Field: "assignee_id", Message: fmt.Sprintf("unknown profile %s", id)}
	}
	return err
}

// loadEditable fetches a deliverable inside tx and checks the edit permission.
func (e Engine) loadEditable(ctx context.Context, tx *sql.Tx, id string, actor domain.Actor, action string) (domain.Deliverable, error) {
	d, err := e.Repo.GetDeliverableTx(ctx, tx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return d, notFound("deliverable", id)
	}
	if err != nil {
		return d, err
	}
	if !auth.CanEdit(actor, d) {
		return d, auth.ForbiddenError{Action: action}
	}
	return d, nil
}

// checkTarget rejects statuses that are neither a stage nor the archive.
func (e Engine) checkTarget(ctx context.Context, tx *sql.Tx, status string) error {
	if status == e.archivedStatus() {
		return nil
	}
	_, err := e.Stages.FindByNameTx(ctx, tx, status)
	if errors.Is(err, repo.ErrNotFound) {
		return ValidationError{Field: "status", Message: fmt.Sprintf("unknown stage %q", status)}
	}
	return err
}

// checkWIP fails when status is capped and already holds limit other deliverables.
func (e Engine) checkWIP(ctx context.Context, tx *sql.Tx, status, movingID string) error {
	limit, limited, err := e.Stages.WIPLimitForTx(ctx, tx, status)
	if err != nil || !limited {
		return err
	}
	count, err := e.Repo.CountAtStatusTx(ctx, tx, status, movingID)
	if err != nil {
		return err
	}
	if count >= limit {
		e.Metrics.WIPRejected(status)
		return WipLimitError{Stage: status, Limit: limit}
	}
	return nil
}

// save persists d under its version stamp and advances the stamp.
func (e Engine) save(ctx context.Context, tx *sql.Tx, d *domain.Deliverable) error {
	d.UpdatedAt = e.timestamp()
	if err := e.Repo.UpdateDeliverable(ctx, tx, *d); err != nil {
		return err
	}
	d.Version++
	return nil
}

func (e Engine) ChangeStatus(ctx context.Context, id, newStatus string, actor domain.Actor) (domain.Deliverable, error) {
	newStatus = strings.TrimSpace(newStatus)
	var d domain.Deliverable
	changed := false
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		cur, err := e.loadEditable(ctx, tx, id, actor, "change status")
		if err != nil {
			return err
		}
		d = cur
		if cur.Status == newStatus {
			return nil
		}
		if err := e.checkTarget(ctx, tx, newStatus); err != nil {
			return err
		}
		if err := e.checkWIP(ctx, tx, newStatus, cur.ID); err != nil {
			return err
		}
		from := d.Status
		d.Status = newStatus
		if err := e.save(ctx, tx, &d); err != nil {
			return err
		}
		changed = true
		return e.record(ctx, tx, d.ID, actor.ID, activity.ActionUpdated, activity.Details{
			"status": activity.Change(from, newStatus),
		})
	})
	if err != nil {
		return domain.Deliverable{}, err
	}
	if changed {
		e.Metrics.Transition(newStatus)
	}
	return d, nil
}

func (e Engine) UpdateFields(ctx context.Context, id string, patch DeliverablePatch, actor domain.Actor) (domain.Deliverable, error) {
	var d domain.Deliverable
	var notices []notify.Notice
	statusChanged := false
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		cur, err := e.loadEditable(ctx, tx, id, actor, "edit deliverable")
		if err != nil {
			return err
		}
		if err := e.checkStruct(patch); err != nil {
			return err
		}
		before := cur
		d = cur
		if err := e.applyPatch(ctx, tx, &d, patch); err != nil {
			return err
		}
		if d.Status != before.Status {
			if err := e.checkTarget(ctx, tx, d.Status); err != nil {
				return err
			}
			if err := e.checkWIP(ctx, tx, d.Status, d.ID); err != nil {
				return err
			}
			statusChanged = true
		}
		if err := e.save(ctx, tx, &d); err != nil {
			return err
		}
		diff := activity.Details{}
		if before.Status != d.Status {
			diff["status"] = activity.Change(before.Status, d.Status)
		}
		if derefString(before.AssigneeID) != derefString(d.AssigneeID) {
			diff["assignee_id"] = activity.Change(before.AssigneeID, d.AssigneeID)
			if d.AssigneeID != nil {
				notices = append(notices, deliverableNotice(*d.AssigneeID, notify.TypeDeliverableAssigned,
					"New deliverable assigned", fmt.Sprintf("You were assigned %q", d.Title), d.ID))
			}
		}
		if before.Blocked != d.Blocked {
			diff["blocked"] = activity.Change(before.Blocked, d.Blocked)
		}
		if len(diff) == 0 {
			return nil
		}
		return e.record(ctx, tx, d.ID, actor.ID, activity.ActionUpdated, diff)
	})
	if err != nil {
		return domain.Deliverable{}, err
	}
	if statusChanged {
		e.Metrics.Transition(d.Status)
	}
	e.emit(ctx, notices)
	return d, nil
}

func (e Engine) applyPatch(ctx context.Context, tx *sql.Tx, d *domain.Deliverable, p DeliverablePatch) error {
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if title == "" {
			return ValidationError{Field: "title", Message: "is required"}
		}
		d.Title = title
	}
	if p.Platform != nil {
		d.Platform = *p.Platform
	}
	if p.Format != nil {
		d.Format = *p.Format
	}
	if p.Goal != nil {
		d.Goal = *p.Goal
	}
	if p.Priority != nil {
		d.Priority = *p.Priority
	}
	if p.Complexity != nil {
		d.Complexity = *p.Complexity
	}
	if p.DueAt != nil {
		due, err := normalizeDue(*p.DueAt)
		if err != nil {
			return err
		}
		d.DueAt = due
	}
	if p.Status != nil {
		d.Status = strings.TrimSpace(*p.Status)
	}
	if p.AssigneeID != nil {
		d.AssigneeID = optionalString(strings.TrimSpace(*p.AssigneeID))
		if d.AssigneeID != nil {
			if err := e.requireProfile(ctx, tx, *d.AssigneeID); err != nil {
				return err
			}
		}
	}
	if p.BlockedReason != nil {
		d.BlockedReason = optionalString(strings.TrimSpace(*p.BlockedReason))
	}
	if p.Blocked != nil {
		d.Blocked = *p.Blocked
	}
	if d.Blocked && d.BlockedReason == nil {
		return ValidationError{Field: "blocked_reason", Message: "is required when blocked"}
	}
	if !d.Blocked {
		d.BlockedReason = nil
	}
	setOptional(&d.CampaignName, p.CampaignName)
	setOptional(&d.Audience, p.Audience)
	setOptional(&d.CTA, p.CTA)
	setOptional(&d.CopyDirection, p.CopyDirection)
	setOptional(&d.DisclaimerText, p.DisclaimerText)
	setOptional(&d.Hashtags, p.Hashtags)
	setOptional(&d.Notes, p.Notes)
	if p.ComplianceFlags != nil {
		if err := e.checkFlags(*p.ComplianceFlags); err != nil {
			return err
		}
		d.ComplianceFlags = append([]string{}, *p.ComplianceFlags...)
	}
	if p.RequiredDisclaimer != nil {
		d.RequiredDisclaimer = *p.RequiredDisclaimer
	}
	if p.RevisionLimit != nil {
		if *p.RevisionLimit < 0 {
			return ValidationError{Field: "revision_limit", Message: "must be at least 0"}
		}
		d.RevisionLimit = *p.RevisionLimit
	}
	return nil
}

func setOptional(dst **string, v *string) {
	if v == nil {
		return
	}
	*dst = optionalString(*v)
}

func (e Engine) SetBlocked(ctx context.Context, id string, blocked bool, reason string, actor domain.Actor) (domain.Deliverable, error) {
	reason = strings.TrimSpace(reason)
	var d domain.Deliverable
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		cur, err := e.loadEditable(ctx, tx, id, actor, "change blocking")
		if err != nil {
			return err
		}
		if blocked && reason == "" {
			return ValidationError{Field: "blocked_reason", Message: "is required when blocked"}
		}
		d = cur
		from := d.Blocked
		d.Blocked = blocked
		if blocked {
			d.BlockedReason = &reason
		} else {
			d.BlockedReason = nil
		}
		if from == d.Blocked && derefString(cur.BlockedReason) == derefString(d.BlockedReason) {
			return nil
		}
		if err := e.save(ctx, tx, &d); err != nil {
			return err
		}
		if from == d.Blocked {
			return nil
		}
		return e.record(ctx, tx, d.ID, actor.ID, activity.ActionUpdated, activity.Details{
			"blocked": activity.Change(from, d.Blocked),
		})
	})
	if err != nil {
		return domain.Deliverable{}, err
	}
	return d, nil
}

func (e Engine) AddComment(ctx context.Context, deliverableID, content string, actor domain.Actor) (domain.Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return domain.Comment{}, ValidationError{Field: "content", Message: "is required"}
	}
	if actor.ID == "" {
		return domain.Comment{}, auth.ForbiddenError{Action: "comment"}
	}
	now := e.timestamp()
	c := domain.Comment{
		ID:            uuid.NewString(),
		DeliverableID: deliverableID,
		UserID:        actor.ID,
		Content:       content,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := e.Repo.GetDeliverableTx(ctx, tx, deliverableID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return notFound("deliverable", deliverableID)
			}
			return err
		}
		if err := e.Repo.InsertComment(ctx, tx, c); err != nil {
			return fmt.Errorf("insert comment: %w", err)
		}
		return e.record(ctx, tx, deliverableID, actor.ID, activity.ActionCommentAdded, activity.Details{"comment_id": c.ID})
	})
	if err != nil {
		return domain.Comment{}, err
	}
	return c, nil
}

// VersionInput describes a deliverable revision. Files live elsewhere; only
// their location is recorded.
type VersionInput struct {
	Type         string `json:"type" validate:"required,oneof=copy design video other"`
	StoragePath  string `json:"storage_path"`
	ExternalURL  string `json:"external_url" validate:"omitempty,url"`
	SummaryNotes string `json:"summary_notes"`
}

func (e Engine) AddVersion(ctx context.Context, deliverableID string, in VersionInput, actor domain.Actor) (domain.Version, error) {
	var v domain.Version
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := e.loadEditable(ctx, tx, deliverableID, actor, "add version"); err != nil {
			return err
		}
		if err := e.checkStruct(in); err != nil {
			return err
		}
		n, err := e.Repo.NextVersionNumberTx(ctx, tx, deliverableID)
		if err != nil {
			return err
		}
		v = domain.Version{
			ID:            uuid.NewString(),
			DeliverableID: deliverableID,
			VersionNumber: n,
			Type:          in.Type,
			StoragePath:   optionalString(in.StoragePath),
			ExternalURL:   optionalString(in.ExternalURL),
			SummaryNotes:  optionalString(in.SummaryNotes),
			CreatedBy:     actor.ID,
			CreatedAt:     e.timestamp(),
		}
		if err := e.Repo.InsertVersion(ctx, tx, v); err != nil {
			return fmt.Errorf("insert version: %w", err)
		}
		return e.record(ctx, tx, deliverableID, actor.ID, activity.ActionVersionCreated, activity.Details{
			"version_number": v.VersionNumber,
			"type":           v.Type,
		})
	})
	if err != nil {
		return domain.Version{}, err
	}
	return v, nil
}
