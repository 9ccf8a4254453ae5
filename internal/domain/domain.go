package domain

import "time"

// Role is the closed set of profile roles.
type Role string

const (
	RoleRequester Role = "requester"
	RoleAssignee  Role = "assignee"
	RoleApprover  Role = "approver"
	RoleAdmin     Role = "admin"
)

// Roles lists every valid role.
var Roles = []Role{RoleRequester, RoleAssignee, RoleApprover, RoleAdmin}

func (r Role) Valid() bool {
	switch r {
	case RoleRequester, RoleAssignee, RoleApprover, RoleAdmin:
		return true
	}
	return false
}

// Actor is an authenticated caller with a known role.
type Actor struct {
	ID   string
	Role Role
}

type ApprovalStatus string

const (
	ApprovalPending          ApprovalStatus = "pending"
	ApprovalApproved         ApprovalStatus = "approved"
	ApprovalChangesRequested ApprovalStatus = "changes_requested"
)

type Profile struct {
	ID        string `json:"id"`
	Email     string `json:"email,omitempty"`
	FullName  string `json:"full_name,omitempty"`
	Role      Role   `json:"role" enum:"requester,assignee,approver,admin"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

type PipelineStage struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	OrderIndex int    `json:"order_index"`
	WIPLimit   *int   `json:"wip_limit,omitempty"`
	CreatedAt  string `json:"created_at" format:"date-time"`
	UpdatedAt  string `json:"updated_at" format:"date-time"`
}

type Deliverable struct {
	ID                 string   `json:"id"`
	Title              string   `json:"title"`
	RequesterID        string   `json:"requester_id"`
	AssigneeID         *string  `json:"assignee_id,omitempty"`
	Platform           string   `json:"platform"`
	Format             string   `json:"format"`
	Goal               string   `json:"goal"`
	DueAt              string   `json:"due_at" format:"date-time"`
	Priority           string   `json:"priority" enum:"p0,p1,p2,p3"`
	Complexity         string   `json:"complexity" enum:"s,m,l"`
	Status             string   `json:"status"`
	Blocked            bool     `json:"blocked"`
	BlockedReason      *string  `json:"blocked_reason,omitempty"`
	CampaignName       *string  `json:"campaign_name,omitempty"`
	Audience           *string  `json:"audience,omitempty"`
	CTA                *string  `json:"cta,omitempty"`
	CopyDirection      *string  `json:"copy_direction,omitempty"`
	ComplianceFlags    []string `json:"compliance_flags"`
	RequiredDisclaimer bool     `json:"required_disclaimer"`
	DisclaimerText     *string  `json:"disclaimer_text,omitempty"`
	Hashtags           *string  `json:"hashtags,omitempty"`
	Notes              *string  `json:"notes,omitempty"`
	RevisionRound      int      `json:"revision_round"`
	RevisionLimit      int      `json:"revision_limit"`
	Version            int64    `json:"version"`
	CreatedAt          string   `json:"created_at" format:"date-time"`
	UpdatedAt          string   `json:"updated_at" format:"date-time"`
}

type Approval struct {
	ID            string         `json:"id"`
	DeliverableID string         `json:"deliverable_id"`
	RequestedBy   string         `json:"requested_by"`
	RequestedAt   string         `json:"requested_at" format:"date-time"`
	ApproverID    *string        `json:"approver_id,omitempty"`
	Status        ApprovalStatus `json:"status" enum:"pending,approved,changes_requested"`
	DecisionAt    *string        `json:"decision_at,omitempty" format:"date-time"`
	DecisionNotes *string        `json:"decision_notes,omitempty"`
	CreatedAt     string         `json:"created_at" format:"date-time"`
	UpdatedAt     string         `json:"updated_at" format:"date-time"`
}

type ActivityLogEntry struct {
	ID            int64  `json:"id"`
	DeliverableID string `json:"deliverable_id"`
	UserID        string `json:"user_id,omitempty"`
	Action        string `json:"action"`
	Details       string `json:"details_json"`
	CreatedAt     string `json:"created_at" format:"date-time"`
}

type Notification struct {
	ID         string  `json:"id"`
	UserID     string  `json:"user_id"`
	Type       string  `json:"type"`
	Title      string  `json:"title"`
	Body       string  `json:"body"`
	EntityType *string `json:"entity_type,omitempty"`
	EntityID   *string `json:"entity_id,omitempty"`
	CreatedAt  string  `json:"created_at" format:"date-time"`
	ReadAt     *string `json:"read_at,omitempty" format:"date-time"`
}

type Comment struct {
	ID            string `json:"id"`
	DeliverableID string `json:"deliverable_id"`
	UserID        string `json:"user_id"`
	Content       string `json:"content"`
	CreatedAt     string `json:"created_at" format:"date-time"`
	UpdatedAt     string `json:"updated_at" format:"date-time"`
}

type Version struct {
	ID            string  `json:"id"`
	DeliverableID string  `json:"deliverable_id"`
	VersionNumber int     `json:"version_number"`
	Type          string  `json:"type" enum:"copy,design,video,other"`
	StoragePath   *string `json:"storage_path,omitempty"`
	ExternalURL   *string `json:"external_url,omitempty"`
	SummaryNotes  *string `json:"summary_notes,omitempty"`
	CreatedBy     string  `json:"created_by"`
	CreatedAt     string  `json:"created_at" format:"date-time"`
}

// BoardColumn is a stage together with the deliverables currently in it.
type BoardColumn struct {
	Stage PipelineStage `json:"stage"`
	Count int           `json:"count"`
	AtCap bool          `json:"at_cap"`
	Items []Deliverable `json:"items"`
}

// TimeLayout is a fixed-width UTC layout so stored timestamps sort lexically.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime accepts RFC3339 input with any offset and precision.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
