package auth

import (
	"testing"

	"github.com/stretchr/testify/require"

	"contentline/internal/domain"
)

func ptr(s string) *string { return &s }

func TestCanEdit(t *testing.T) {
	d := domain.Deliverable{ID: "d-1", AssigneeID: ptr("u-assignee")}
	cases := []struct {
		name  string
		actor domain.Actor
		want  bool
	}{
		{"admin", domain.Actor{ID: "u-admin", Role: domain.RoleAdmin}, true},
		{"assigned assignee", domain.Actor{ID: "u-assignee", Role: domain.RoleAssignee}, true},
		{"other assignee", domain.Actor{ID: "u-other", Role: domain.RoleAssignee}, false},
		{"requester", domain.Actor{ID: "u-req", Role: domain.RoleRequester}, false},
		{"approver with matching id", domain.Actor{ID: "u-assignee", Role: domain.RoleApprover}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, CanEdit(tc.actor, d))
			require.Equal(t, tc.want, CanRequestApproval(tc.actor, d))
		})
	}
}

func TestCanEditUnassigned(t *testing.T) {
	d := domain.Deliverable{ID: "d-1"}
	require.False(t, CanEdit(domain.Actor{ID: "u-1", Role: domain.RoleAssignee}, d))
	require.False(t, CanEdit(domain.Actor{Role: domain.RoleAssignee}, domain.Deliverable{AssigneeID: ptr("")}))
	require.True(t, CanEdit(domain.Actor{ID: "u-admin", Role: domain.RoleAdmin}, d))
}

func TestCanDecideApproval(t *testing.T) {
	a := domain.Approval{ID: "a-1", ApproverID: ptr("u-approver")}
	require.True(t, CanDecideApproval(domain.Actor{ID: "u-approver", Role: domain.RoleApprover}, a))
	require.True(t, CanDecideApproval(domain.Actor{ID: "u-admin", Role: domain.RoleAdmin}, a))
	require.False(t, CanDecideApproval(domain.Actor{ID: "u-other", Role: domain.RoleApprover}, a))
	require.False(t, CanDecideApproval(domain.Actor{ID: "u-approver", Role: domain.RoleAssignee}, a))
	require.False(t, CanDecideApproval(domain.Actor{ID: "u-approver", Role: domain.RoleApprover}, domain.Approval{ID: "a-2"}))
}

func TestCanAdminister(t *testing.T) {
	for _, r := range domain.Roles {
		require.Equal(t, r == domain.RoleAdmin, CanAdminister(domain.Actor{ID: "x", Role: r}))
	}
}

func TestForbiddenErrorMessage(t *testing.T) {
	require.Equal(t, "not allowed to change status", ForbiddenError{Action: "change status"}.Error())
}
