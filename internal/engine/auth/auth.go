package auth

import (
	"fmt"

	"contentline/internal/domain"
)

// ForbiddenError indicates the actor may not perform Action.
type ForbiddenError struct {
	Action string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("not allowed to %s", e.Action)
}

// CanEdit reports whether actor may change a deliverable's status or fields.
func CanEdit(actor domain.Actor, d domain.Deliverable) bool {
	if actor.Role == domain.RoleAdmin {
		return true
	}
	return actor.Role == domain.RoleAssignee && d.AssigneeID != nil && actor.ID != "" && *d.AssigneeID == actor.ID
}

func CanRequestApproval(actor domain.Actor, d domain.Deliverable) bool {
	return CanEdit(actor, d)
}

func CanDecideApproval(actor domain.Actor, a domain.Approval) bool {
	if actor.Role == domain.RoleAdmin {
		return true
	}
	return actor.Role == domain.RoleApprover && a.ApproverID != nil && actor.ID != "" && *a.ApproverID == actor.ID
}

// CanAdminister covers stage registry and profile role changes.
func CanAdminister(actor domain.Actor) bool {
	return actor.Role == domain.RoleAdmin
}
