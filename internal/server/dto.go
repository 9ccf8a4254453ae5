package server

import (
	"contentline/internal/domain"
	"contentline/internal/engine"
)

// Request payloads. Fields are optional at the schema level so the engine
// reports missing values with the field name.

type CreateDeliverableRequest struct {
	Title              string   `json:"title,omitempty"`
	Platform           string   `json:"platform,omitempty" example:"instagram"`
	Format             string   `json:"format,omitempty" example:"reel"`
	Goal               string   `json:"goal,omitempty" example:"engagement"`
	DueAt              string   `json:"due_at,omitempty" example:"2025-06-01T17:00:00Z"`
	Priority           string   `json:"priority,omitempty" example:"p1"`
	Complexity         string   `json:"complexity,omitempty" example:"m"`
	AssigneeID         string   `json:"assignee_id,omitempty"`
	CampaignName       string   `json:"campaign_name,omitempty"`
	Audience           string   `json:"audience,omitempty"`
	CTA                string   `json:"cta,omitempty"`
	CopyDirection      string   `json:"copy_direction,omitempty"`
	ComplianceFlags    []string `json:"compliance_flags,omitempty"`
	RequiredDisclaimer bool     `json:"required_disclaimer,omitempty"`
	DisclaimerText     string   `json:"disclaimer_text,omitempty"`
	Hashtags           string   `json:"hashtags,omitempty"`
	Notes              string   `json:"notes,omitempty"`
	RevisionLimit      *int     `json:"revision_limit,omitempty"`
}

func (r CreateDeliverableRequest) input() engine.DeliverableInput {
	return engine.DeliverableInput{
		Title:              r.Title,
		Platform:           r.Platform,
		Format:             r.Format,
		Goal:               r.Goal,
		DueAt:              r.DueAt,
		Priority:           r.Priority,
		Complexity:         r.Complexity,
		AssigneeID:         r.AssigneeID,
		CampaignName:       r.CampaignName,
		Audience:           r.Audience,
		CTA:                r.CTA,
		CopyDirection:      r.CopyDirection,
		ComplianceFlags:    r.ComplianceFlags,
		RequiredDisclaimer: r.RequiredDisclaimer,
		DisclaimerText:     r.DisclaimerText,
		Hashtags:           r.Hashtags,
		Notes:              r.Notes,
		RevisionLimit:      r.RevisionLimit,
	}
}

type UpdateDeliverableRequest struct {
	Title              *string   `json:"title,omitempty"`
	Platform           *string   `json:"platform,omitempty"`
	Format             *string   `json:"format,omitempty"`
	Goal               *string   `json:"goal,omitempty"`
	DueAt              *string   `json:"due_at,omitempty"`
	Priority           *string   `json:"priority,omitempty"`
	Complexity         *string   `json:"complexity,omitempty"`
	Status             *string   `json:"status,omitempty"`
	Blocked            *bool     `json:"blocked,omitempty"`
	BlockedReason      *string   `json:"blocked_reason,omitempty"`
	AssigneeID         *string   `json:"assignee_id,omitempty" doc:"empty string unassigns"`
	CampaignName       *string   `json:"campaign_name,omitempty"`
	Audience           *string   `json:"audience,omitempty"`
	CTA                *string   `json:"cta,omitempty"`
	CopyDirection      *string   `json:"copy_direction,omitempty"`
	ComplianceFlags    *[]string `json:"compliance_flags,omitempty"`
	RequiredDisclaimer *bool     `json:"required_disclaimer,omitempty"`
	DisclaimerText     *string   `json:"disclaimer_text,omitempty"`
	Hashtags           *string   `json:"hashtags,omitempty"`
	Notes              *string   `json:"notes,omitempty"`
	RevisionLimit      *int      `json:"revision_limit,omitempty"`
}

func (r UpdateDeliverableRequest) patch() engine.DeliverablePatch {
	return engine.DeliverablePatch{
		Title:              r.Title,
		Platform:           r.Platform,
		Format:             r.Format,
		Goal:               r.Goal,
		DueAt:              r.DueAt,
		Priority:           r.Priority,
		Complexity:         r.Complexity,
		Status:             r.Status,
		Blocked:            r.Blocked,
		BlockedReason:      r.BlockedReason,
		AssigneeID:         r.AssigneeID,
		CampaignName:       r.CampaignName,
		Audience:           r.Audience,
		CTA:                r.CTA,
		CopyDirection:      r.CopyDirection,
		ComplianceFlags:    r.ComplianceFlags,
		RequiredDisclaimer: r.RequiredDisclaimer,
		DisclaimerText:     r.DisclaimerText,
		Hashtags:           r.Hashtags,
		Notes:              r.Notes,
		RevisionLimit:      r.RevisionLimit,
	}
}

type ChangeStatusRequest struct {
	Status string `json:"status" example:"Review"`
}

type SetBlockedRequest struct {
	Blocked bool   `json:"blocked"`
	Reason  string `json:"reason,omitempty"`
}

type AddCommentRequest struct {
	Content string `json:"content,omitempty"`
}

type AddVersionRequest struct {
	Type         string `json:"type,omitempty" example:"copy"`
	StoragePath  string `json:"storage_path,omitempty"`
	ExternalURL  string `json:"external_url,omitempty"`
	SummaryNotes string `json:"summary_notes,omitempty"`
}

type RequestApprovalRequest struct {
	DeliverableID string `json:"deliverable_id"`
}

type DecideApprovalRequest struct {
	Status        string `json:"status" example:"approved"`
	DecisionNotes string `json:"decision_notes,omitempty"`
}

type CreateStageRequest struct {
	Name       string `json:"name"`
	OrderIndex *int   `json:"order_index,omitempty"`
	WIPLimit   *int   `json:"wip_limit,omitempty"`
}

type UpdateStageRequest struct {
	OrderIndex    *int `json:"order_index,omitempty"`
	WIPLimit      *int `json:"wip_limit,omitempty"`
	ClearWIPLimit bool `json:"clear_wip_limit,omitempty" doc:"remove the stage's WIP cap"`
}

type SetRoleRequest struct {
	Role string `json:"role" enum:"requester,assignee,approver,admin"`
}

// Responses

type WhoAmIResponse struct {
	ActorID string          `json:"actor_id"`
	Role    domain.Role     `json:"role"`
	Source  string          `json:"source"`
	Profile *domain.Profile `json:"profile,omitempty"`
}

type MarkAllReadResponse struct {
	Updated int64 `json:"updated"`
}
