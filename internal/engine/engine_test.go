package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"contentline/internal/config"
	"contentline/internal/db"
	"contentline/internal/domain"
	"contentline/internal/engine"
	"contentline/internal/engine/auth"
	"contentline/internal/metrics"
	"contentline/internal/migrate"
	"contentline/internal/notify"
	"contentline/internal/pkg/logger"
	"contentline/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	clock  *time.Time

	Requester domain.Actor
	Assignee  domain.Actor
	Assignee2 domain.Actor
	Approver  domain.Actor
	Admin     domain.Actor
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	ctx := context.Background()
	_, err = migrate.Migrate(ctx, conn)
	require.NoError(t, err)

	cfg := config.Default()
	eng := engine.New(conn, cfg, logger.NewNop(), metrics.New(prometheus.NewRegistry()))
	clock := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	env := &testEnv{Ctx: ctx, clock: &clock}
	eng.SetClock(func() time.Time { return *env.clock })
	env.Engine = eng

	_, err = eng.Stages.Seed(ctx, cfg.Pipeline.Stages, clock)
	require.NoError(t, err)

	env.Requester = env.profile(t, "u-requester", domain.RoleRequester)
	env.Assignee = env.profile(t, "u-assignee", domain.RoleAssignee)
	env.Assignee2 = env.profile(t, "u-assignee-2", domain.RoleAssignee)
	env.Approver = env.profile(t, "u-approver", domain.RoleApprover)
	env.Admin = env.profile(t, "u-admin", domain.RoleAdmin)
	return env
}

func (env *testEnv) advance(d time.Duration) {
	*env.clock = env.clock.Add(d)
}

func (env *testEnv) profile(t *testing.T, id string, role domain.Role) domain.Actor {
	t.Helper()
	env.advance(time.Minute)
	_, err := env.Engine.UpsertProfile(env.Ctx, domain.Profile{ID: id, Email: id + "@example.com", FullName: id, Role: role})
	require.NoError(t, err)
	return domain.Actor{ID: id, Role: role}
}

func validInput(title, assignee string) engine.DeliverableInput {
	return engine.DeliverableInput{
		Title:      title,
		Platform:   "instagram",
		Format:     "reel",
		Goal:       "engagement",
		DueAt:      "2030-01-01T00:00:00Z",
		Priority:   "p1",
		Complexity: "m",
		AssigneeID: assignee,
	}
}

func (env *testEnv) create(t *testing.T, title string) domain.Deliverable {
	t.Helper()
	d, err := env.Engine.CreateDeliverable(env.Ctx, validInput(title, env.Assignee.ID), env.Requester.ID)
	require.NoError(t, err)
	return d
}

func (env *testEnv) notices(t *testing.T, user domain.Actor, typ string) []domain.Notification {
	t.Helper()
	all, err := env.Engine.Notifications(env.Ctx, user, false, 0)
	require.NoError(t, err)
	var out []domain.Notification
	for _, n := range all {
		if n.Type == typ {
			out = append(out, n)
		}
	}
	return out
}

func (env *testEnv) actions(t *testing.T, deliverableID, action string) []domain.ActivityLogEntry {
	t.Helper()
	all, err := env.Engine.ActivityLog(env.Ctx, deliverableID, 0)
	require.NoError(t, err)
	var out []domain.ActivityLogEntry
	for _, e := range all {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

func intPtr(v int) *int { return &v }

func TestCreateDeliverableDefaults(t *testing.T) {
	env := newTestEnv(t)
	d := env.create(t, "Launch teaser")
	require.Equal(t, "Intake", d.Status)
	require.Equal(t, 0, d.RevisionRound)
	require.Equal(t, 3, d.RevisionLimit)
	require.Equal(t, env.Requester.ID, d.RequesterID)
	require.Equal(t, "2030-01-01T00:00:00.000000Z", d.DueAt)
	require.Equal(t, []string{}, d.ComplianceFlags)

	created := env.actions(t, d.ID, "created")
	require.Len(t, created, 1)
	require.JSONEq(t, `{"title":"Launch teaser"}`, created[0].Details)

	require.Len(t, env.notices(t, env.Assignee, notify.TypeDeliverableAssigned), 1)
	require.Empty(t, env.notices(t, env.Admin, notify.TypeDeliverableCreated))
}

func TestCreateDeliverableValidation(t *testing.T) {
	env := newTestEnv(t)
	cases := map[string]struct {
		mutate func(*engine.DeliverableInput)
		field  string
	}{
		"missing title":    {func(in *engine.DeliverableInput) { in.Title = "  " }, "title"},
		"bad platform":     {func(in *engine.DeliverableInput) { in.Platform = "myspace" }, "platform"},
		"bad format":       {func(in *engine.DeliverableInput) { in.Format = "poster" }, "format"},
		"missing goal":     {func(in *engine.DeliverableInput) { in.Goal = "" }, "goal"},
		"bad due":          {func(in *engine.DeliverableInput) { in.DueAt = "next tuesday" }, "due_at"},
		"bad priority":     {func(in *engine.DeliverableInput) { in.Priority = "urgent" }, "priority"},
		"bad complexity":   {func(in *engine.DeliverableInput) { in.Complexity = "xl" }, "complexity"},
		"bad flag":         {func(in *engine.DeliverableInput) { in.ComplianceFlags = []string{"before_after", "weird"} }, "compliance_flags"},
		"unknown assignee": {func(in *engine.DeliverableInput) { in.AssigneeID = "ghost" }, "assignee_id"},
		"negative limit":   {func(in *engine.DeliverableInput) { in.RevisionLimit = intPtr(-1) }, "revision_limit"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			in := validInput("Launch teaser", env.Assignee.ID)
			tc.mutate(&in)
			_, err := env.Engine.CreateDeliverable(env.Ctx, in, env.Requester.ID)
			var verr engine.ValidationError
			require.ErrorAs(t, err, &verr)
			require.Equal(t, tc.field, verr.Field)
		})
	}
	list, err := env.Engine.ListDeliverables(env.Ctx, repo.DeliverableFilters{})
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestCreateWithoutAssigneeNotifiesEveryAdminOnce(t *testing.T) {
	env := newTestEnv(t)
	admin2 := env.profile(t, "u-admin-2", domain.RoleAdmin)
	d, err := env.Engine.CreateDeliverable(env.Ctx, validInput("Carousel", ""), env.Requester.ID)
	require.NoError(t, err)
	require.Nil(t, d.AssigneeID)

	for _, a := range []domain.Actor{env.Admin, admin2} {
		got := env.notices(t, a, notify.TypeDeliverableCreated)
		require.Len(t, got, 1)
		require.Equal(t, d.ID, *got[0].EntityID)
		require.Contains(t, got[0].Body, "needs an assignee")
	}
	require.Empty(t, env.notices(t, env.Assignee, notify.TypeDeliverableAssigned))
}

func TestInitialStatusFollowsStageOrder(t *testing.T) {
	env := newTestEnv(t)
	for _, s := range []string{"Intake", "Briefed", "Review", "Posted"} {
		require.NoError(t, env.Engine.DeleteStage(env.Ctx, env.Admin, s))
	}
	d := env.create(t, "Ordered")
	require.Equal(t, "In Progress", d.Status)
}

func TestWIPLimitAllowsNthRejectsNext(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.SetWIPLimit(env.Ctx, env.Admin, "Review", intPtr(2))
	require.NoError(t, err)

	a, b, c := env.create(t, "A"), env.create(t, "B"), env.create(t, "C")
	_, err = env.Engine.ChangeStatus(env.Ctx, a.ID, "Review", env.Assignee)
	require.NoError(t, err)
	_, err = env.Engine.ChangeStatus(env.Ctx, b.ID, "Review", env.Assignee)
	require.NoError(t, err)

	_, err = env.Engine.ChangeStatus(env.Ctx, c.ID, "Review", env.Assignee)
	var wip engine.WipLimitError
	require.ErrorAs(t, err, &wip)
	require.Equal(t, engine.WipLimitError{Stage: "Review", Limit: 2}, wip)

	got, err := env.Engine.GetDeliverable(env.Ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, "Intake", got.Status)
	require.Empty(t, env.actions(t, c.ID, "updated"))

	// a deliverable already in the stage may stay there
	same, err := env.Engine.ChangeStatus(env.Ctx, a.ID, "Review", env.Assignee)
	require.NoError(t, err)
	require.Equal(t, "Review", same.Status)
}

func TestChangeStatusRecordsActivity(t *testing.T) {
	env := newTestEnv(t)
	d := env.create(t, "Story")
	moved, err := env.Engine.ChangeStatus(env.Ctx, d.ID, "Briefed", env.Assignee)
	require.NoError(t, err)
	require.Equal(t, "Briefed", moved.Status)
	require.Equal(t, d.Version+1, moved.Version)

	updated := env.actions(t, d.ID, "updated")
	require.Len(t, updated, 1)
	require.JSONEq(t, `{"status":{"from":"Intake","to":"Briefed"}}`, updated[0].Details)
	require.Equal(t, env.Assignee.ID, updated[0].UserID)

	// unchanged status is a no-op
	_, err = env.Engine.ChangeStatus(env.Ctx, d.ID, "Briefed", env.Assignee)
	require.NoError(t, err)
	require.Len(t, env.actions(t, d.ID, "updated"), 1)
}

func TestChangeStatusTargets(t *testing.T) {
	env := newTestEnv(t)
	d := env.create(t, "Story")

	_, err := env.Engine.ChangeStatus(env.Ctx, d.ID, "Nowhere", env.Assignee)
	var verr engine.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "status", verr.Field)

	archived, err := env.Engine.ChangeStatus(env.Ctx, d.ID, "Archived", env.Assignee)
	require.NoError(t, err)
	require.Equal(t, "Archived", archived.Status)

	// fully connected: archived items can come back anywhere
	back, err := env.Engine.ChangeStatus(env.Ctx, d.ID, "Posted", env.Assignee)
	require.NoError(t, err)
	require.Equal(t, "Posted", back.Status)

	_, err = env.Engine.ChangeStatus(env.Ctx, "missing", "Review", env.Admin)
	require.ErrorIs(t, err, repo.ErrNotFound)
}

func TestChangeStatusPermission(t *testing.T) {
	env := newTestEnv(t)
	d := env.create(t, "Story")
	for _, actor := range []domain.Actor{env.Requester, env.Assignee2, env.Approver} {
		_, err := env.Engine.ChangeStatus(env.Ctx, d.ID, "Review", actor)
		var forbidden auth.ForbiddenError
		require.ErrorAs(t, err, &forbidden, actor.ID)
	}
	moved, err := env.Engine.ChangeStatus(env.Ctx, d.ID, "Review", env.Admin)
	require.NoError(t, err)
	require.Equal(t, "Review", moved.Status)
}

func TestReviewCapScenario(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.SetWIPLimit(env.Ctx, env.Admin, "Review", intPtr(2))
	require.NoError(t, err)
	in1, in2, x := env.create(t, "One"), env.create(t, "Two"), env.create(t, "X")
	for _, d := range []domain.Deliverable{in1, in2} {
		_, err := env.Engine.ChangeStatus(env.Ctx, d.ID, "Review", env.Admin)
		require.NoError(t, err)
	}
	_, err = env.Engine.ChangeStatus(env.Ctx, x.ID, "Review", env.Assignee)
	var wip engine.WipLimitError
	require.ErrorAs(t, err, &wip)
	require.Equal(t, "Review", wip.Stage)
	require.Equal(t, 2, wip.Limit)

	board, err := env.Engine.Board(env.Ctx)
	require.NoError(t, err)
	for _, col := range board {
		if col.Stage.Name == "Review" {
			require.Equal(t, 2, col.Count)
			require.True(t, col.AtCap)
		}
	}
}

func TestZeroWIPLimitIsUncapped(t *testing.T) {
	env := newTestEnv(t)
	st, err := env.Engine.SetWIPLimit(env.Ctx, env.Admin, "Review", intPtr(0))
	require.NoError(t, err)
	require.Equal(t, 0, *st.WIPLimit)

	d := env.create(t, "Into empty review")
	moved, err := env.Engine.ChangeStatus(env.Ctx, d.ID, "Review", env.Assignee)
	require.NoError(t, err)
	require.Equal(t, "Review", moved.Status)

	board, err := env.Engine.Board(env.Ctx)
	require.NoError(t, err)
	for _, col := range board {
		if col.Stage.Name == "Review" {
			require.Equal(t, 1, col.Count)
			require.False(t, col.AtCap)
		}
	}
}

func TestConcurrentMovesNeverOvershootCap(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.SetWIPLimit(env.Ctx, env.Admin, "Review", intPtr(2))
	require.NoError(t, err)
	var items []domain.Deliverable
	for i := 0; i < 6; i++ {
		items = append(items, env.create(t, "Item"))
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok, rejected := 0, 0
	for _, d := range items {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := env.Engine.ChangeStatus(env.Ctx, id, "Review", env.Assignee)
			mu.Lock()
			defer mu.Unlock()
			var wip engine.WipLimitError
			switch {
			case err == nil:
				ok++
			case errors.As(err, &wip):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(d.ID)
	}
	wg.Wait()
	require.Equal(t, 2, ok)
	require.Equal(t, 4, rejected)

	inReview, err := env.Engine.ListDeliverables(env.Ctx, repo.DeliverableFilters{Status: "Review"})
	require.NoError(t, err)
	require.Len(t, inReview, 2)
}

func TestUpdateFields(t *testing.T) {
	env := newTestEnv(t)
	d := env.create(t, "Story")

	title := "Story v2"
	flags := []string{"testimonials"}
	got, err := env.Engine.UpdateFields(env.Ctx, d.ID, engine.DeliverablePatch{
		Title:           &title,
		ComplianceFlags: &flags,
		RevisionLimit:   intPtr(5),
	}, env.Assignee)
	require.NoError(t, err)
	require.Equal(t, "Story v2", got.Title)
	require.Equal(t, []string{"testimonials"}, got.ComplianceFlags)
	require.Equal(t, 5, got.RevisionLimit)
	// only status, assignee and blocked changes are audited
	require.Empty(t, env.actions(t, d.ID, "updated"))

	reassign := env.Assignee2.ID
	review := "Review"
	got, err = env.Engine.UpdateFields(env.Ctx, d.ID, engine.DeliverablePatch{AssigneeID: &reassign, Status: &review}, env.Admin)
	require.NoError(t, err)
	require.Equal(t, env.Assignee2.ID, *got.AssigneeID)
	require.Equal(t, "Review", got.Status)

	updated := env.actions(t, d.ID, "updated")
	require.Len(t, updated, 1)
	var diff map[string]map[string]any
	require.NoError(t, json.Unmarshal([]byte(updated[0].Details), &diff))
	require.Equal(t, map[string]any{"from": "Intake", "to": "Review"}, diff["status"])
	require.Equal(t, map[string]any{"from": env.Assignee.ID, "to": env.Assignee2.ID}, diff["assignee_id"])
	require.NotContains(t, diff, "blocked")
	require.Len(t, env.notices(t, env.Assignee2, notify.TypeDeliverableAssigned), 1)

	// the previous assignee lost edit rights
	_, err = env.Engine.UpdateFields(env.Ctx, d.ID, engine.DeliverablePatch{Title: &title}, env.Assignee)
	var forbidden auth.ForbiddenError
	require.ErrorAs(t, err, &forbidden)

	none := ""
	got, err = env.Engine.UpdateFields(env.Ctx, d.ID, engine.DeliverablePatch{AssigneeID: &none}, env.Admin)
	require.NoError(t, err)
	require.Nil(t, got.AssigneeID)
}

func TestUpdateFieldsValidation(t *testing.T) {
	env := newTestEnv(t)
	d := env.create(t, "Story")
	yes := true
	_, err := env.Engine.UpdateFields(env.Ctx, d.ID, engine.DeliverablePatch{Blocked: &yes}, env.Assignee)
	var verr engine.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "blocked_reason", verr.Field)

	bad := "telegram"
	_, err = env.Engine.UpdateFields(env.Ctx, d.ID, engine.DeliverablePatch{Platform: &bad}, env.Assignee)
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "platform", verr.Field)

	ghost := "ghost"
	_, err = env.Engine.UpdateFields(env.Ctx, d.ID, engine.DeliverablePatch{AssigneeID: &ghost}, env.Admin)
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "assignee_id", verr.Field)

	got, err := env.Engine.GetDeliverable(env.Ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, d.Version, got.Version)
}

func TestUpdateFieldsStatusRespectsWIP(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.SetWIPLimit(env.Ctx, env.Admin, "Review", intPtr(1))
	require.NoError(t, err)
	a, b := env.create(t, "A"), env.create(t, "B")
	review := "Review"
	_, err = env.Engine.UpdateFields(env.Ctx, a.ID, engine.DeliverablePatch{Status: &review}, env.Assignee)
	require.NoError(t, err)
	title := "B2"
	_, err = env.Engine.UpdateFields(env.Ctx, b.ID, engine.DeliverablePatch{Status: &review, Title: &title}, env.Assignee)
	var wip engine.WipLimitError
	require.ErrorAs(t, err, &wip)

	got, err := env.Engine.GetDeliverable(env.Ctx, b.ID)
	require.NoError(t, err)
	require.Equal(t, "B", got.Title)
}

func TestSetBlocked(t *testing.T) {
	env := newTestEnv(t)
	d := env.create(t, "Story")

	_, err := env.Engine.SetBlocked(env.Ctx, d.ID, true, " ", env.Assignee)
	var verr engine.ValidationError
	require.ErrorAs(t, err, &verr)

	got, err := env.Engine.SetBlocked(env.Ctx, d.ID, true, "waiting on legal", env.Assignee)
	require.NoError(t, err)
	require.True(t, got.Blocked)
	require.Equal(t, "waiting on legal", *got.BlockedReason)

	got, err = env.Engine.SetBlocked(env.Ctx, d.ID, false, "ignored", env.Assignee)
	require.NoError(t, err)
	require.False(t, got.Blocked)
	require.Nil(t, got.BlockedReason)

	updated := env.actions(t, d.ID, "updated")
	require.Len(t, updated, 2)
	require.JSONEq(t, `{"blocked":{"from":false,"to":true}}`, updated[0].Details)
	require.JSONEq(t, `{"blocked":{"from":true,"to":false}}`, updated[1].Details)

	_, err = env.Engine.SetBlocked(env.Ctx, d.ID, true, "x", env.Requester)
	var forbidden auth.ForbiddenError
	require.ErrorAs(t, err, &forbidden)
}

func TestRequestApproval(t *testing.T) {
	env := newTestEnv(t)
	env.profile(t, "u-approver-late", domain.RoleApprover)
	d := env.create(t, "Story")

	a, err := env.Engine.RequestApproval(env.Ctx, d.ID, env.Assignee)
	require.NoError(t, err)
	require.Equal(t, domain.ApprovalPending, a.Status)
	require.Equal(t, env.Approver.ID, *a.ApproverID)
	require.Equal(t, env.Assignee.ID, a.RequestedBy)

	got, err := env.Engine.GetDeliverable(env.Ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, "Approval Needed", got.Status)

	requested := env.actions(t, d.ID, "approval_requested")
	require.Len(t, requested, 1)
	require.JSONEq(t, `{"approval_id":"`+a.ID+`"}`, requested[0].Details)
	require.Len(t, env.notices(t, env.Approver, notify.TypeApprovalRequested), 1)

	_, err = env.Engine.RequestApproval(env.Ctx, d.ID, env.Assignee)
	var invalid engine.InvalidStateError
	require.ErrorAs(t, err, &invalid)

	_, err = env.Engine.RequestApproval(env.Ctx, d.ID, env.Requester)
	var forbidden auth.ForbiddenError
	require.ErrorAs(t, err, &forbidden)

	_, err = env.Engine.RequestApproval(env.Ctx, "missing", env.Admin)
	require.ErrorIs(t, err, repo.ErrNotFound)
}

func TestRequestApprovalWithoutApprover(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.SetRole(env.Ctx, env.Admin, env.Approver.ID, domain.RoleAssignee)
	require.NoError(t, err)
	d := env.create(t, "Story")
	a, err := env.Engine.RequestApproval(env.Ctx, d.ID, env.Assignee)
	require.NoError(t, err)
	require.Nil(t, a.ApproverID)

	// only admins can settle an unassigned approval
	_, err = env.Engine.DecideApproval(env.Ctx, a.ID, domain.ApprovalApproved, "", domain.Actor{ID: env.Approver.ID, Role: domain.RoleApprover})
	var forbidden auth.ForbiddenError
	require.ErrorAs(t, err, &forbidden)
	_, err = env.Engine.DecideApproval(env.Ctx, a.ID, domain.ApprovalApproved, "", env.Admin)
	require.NoError(t, err)
}

func TestApprovalTransitionsBypassWIP(t *testing.T) {
	env := newTestEnv(t)
	for _, s := range []string{"Approval Needed", "Scheduled"} {
		_, err := env.Engine.SetWIPLimit(env.Ctx, env.Admin, s, intPtr(0))
		require.NoError(t, err)
	}
	d := env.create(t, "Story")
	a, err := env.Engine.RequestApproval(env.Ctx, d.ID, env.Assignee)
	require.NoError(t, err)
	_, err = env.Engine.DecideApproval(env.Ctx, a.ID, domain.ApprovalApproved, "ship it", env.Approver)
	require.NoError(t, err)

	got, err := env.Engine.GetDeliverable(env.Ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, "Scheduled", got.Status)

	// a manual move into the capped stage is still rejected
	other := env.create(t, "Other")
	_, err = env.Engine.ChangeStatus(env.Ctx, other.ID, "Scheduled", env.Assignee)
	var wip engine.WipLimitError
	require.ErrorAs(t, err, &wip)
}

func TestApprovedByApproverScenario(t *testing.T) {
	env := newTestEnv(t)
	d := env.create(t, "Story")
	a, err := env.Engine.RequestApproval(env.Ctx, d.ID, env.Assignee)
	require.NoError(t, err)

	decided, err := env.Engine.DecideApproval(env.Ctx, a.ID, domain.ApprovalApproved, "looks great", env.Approver)
	require.NoError(t, err)
	require.Equal(t, domain.ApprovalApproved, decided.Status)
	require.NotNil(t, decided.DecisionAt)
	require.Equal(t, "looks great", *decided.DecisionNotes)

	got, err := env.Engine.GetDeliverable(env.Ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, "Scheduled", got.Status)
	require.Equal(t, 0, got.RevisionRound)

	decisions := env.actions(t, d.ID, "approval_decision")
	require.Len(t, decisions, 1)
	require.JSONEq(t, `{"approval_id":"`+a.ID+`","status":"approved"}`, decisions[0].Details)

	require.Len(t, env.notices(t, env.Requester, notify.TypeApprovalDecision), 1)
	require.Len(t, env.notices(t, env.Assignee, notify.TypeApprovalDecision), 1)
}

func TestDecideNonPendingIsInvalidStateForAnyActor(t *testing.T) {
	env := newTestEnv(t)
	d := env.create(t, "Story")
	a, err := env.Engine.RequestApproval(env.Ctx, d.ID, env.Assignee)
	require.NoError(t, err)
	_, err = env.Engine.DecideApproval(env.Ctx, a.ID, domain.ApprovalApproved, "", env.Approver)
	require.NoError(t, err)

	for _, actor := range []domain.Actor{env.Approver, env.Admin, env.Requester, env.Assignee} {
		for _, decision := range []domain.ApprovalStatus{domain.ApprovalApproved, domain.ApprovalChangesRequested} {
			_, err := env.Engine.DecideApproval(env.Ctx, a.ID, decision, "", actor)
			var invalid engine.InvalidStateError
			require.ErrorAs(t, err, &invalid, actor.ID)
		}
	}
	require.Len(t, env.actions(t, d.ID, "approval_decision"), 1)
}

func TestDecideApprovalChecks(t *testing.T) {
	env := newTestEnv(t)
	other := env.profile(t, "u-approver-2", domain.RoleApprover)
	d := env.create(t, "Story")
	a, err := env.Engine.RequestApproval(env.Ctx, d.ID, env.Assignee)
	require.NoError(t, err)

	_, err = env.Engine.DecideApproval(env.Ctx, "missing", domain.ApprovalApproved, "", env.Admin)
	require.ErrorIs(t, err, repo.ErrNotFound)

	_, err = env.Engine.DecideApproval(env.Ctx, a.ID, domain.ApprovalPending, "", env.Approver)
	var verr engine.ValidationError
	require.ErrorAs(t, err, &verr)

	_, err = env.Engine.DecideApproval(env.Ctx, a.ID, domain.ApprovalApproved, "", other)
	var forbidden auth.ForbiddenError
	require.ErrorAs(t, err, &forbidden)

	still, err := env.Engine.GetApproval(env.Ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ApprovalPending, still.Status)
}

func TestChangesRequestedCountsRevisions(t *testing.T) {
	env := newTestEnv(t)
	in := validInput("Story", env.Assignee.ID)
	in.RevisionLimit = intPtr(2)
	d, err := env.Engine.CreateDeliverable(env.Ctx, in, env.Requester.ID)
	require.NoError(t, err)

	for round := 1; round <= 3; round++ {
		a, err := env.Engine.RequestApproval(env.Ctx, d.ID, env.Assignee)
		require.NoError(t, err)
		_, err = env.Engine.DecideApproval(env.Ctx, a.ID, domain.ApprovalChangesRequested, "tighten copy", env.Approver)
		require.NoError(t, err)

		got, err := env.Engine.GetDeliverable(env.Ctx, d.ID)
		require.NoError(t, err)
		require.Equal(t, round, got.RevisionRound)
		require.Equal(t, "In Progress", got.Status)

		limitNotices := env.notices(t, env.Requester, notify.TypeRevisionLimitReached)
		switch round {
		case 1:
			require.Empty(t, limitNotices)
		default:
			// the unread notice from round 2 absorbs round 3
			require.Len(t, limitNotices, 1)
		}
	}
}

func TestConcurrentDecisionsApplyOnce(t *testing.T) {
	env := newTestEnv(t)
	d := env.create(t, "Story")
	a, err := env.Engine.RequestApproval(env.Ctx, d.ID, env.Assignee)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			decision := domain.ApprovalApproved
			if i%2 == 1 {
				decision = domain.ApprovalChangesRequested
			}
			_, errs[i] = env.Engine.DecideApproval(env.Ctx, a.ID, decision, "", env.Approver)
		}(i)
	}
	wg.Wait()
	success := 0
	for _, err := range errs {
		if err == nil {
			success++
			continue
		}
		var invalid engine.InvalidStateError
		require.ErrorAs(t, err, &invalid)
	}
	require.Equal(t, 1, success)
	require.Len(t, env.actions(t, d.ID, "approval_decision"), 1)

	got, err := env.Engine.GetDeliverable(env.Ctx, d.ID)
	require.NoError(t, err)
	require.LessOrEqual(t, got.RevisionRound, 1)
}

func TestSweepOverdueIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	in := validInput("Late", env.Assignee.ID)
	in.DueAt = "2025-03-01T00:00:00Z"
	late, err := env.Engine.CreateDeliverable(env.Ctx, in, env.Requester.ID)
	require.NoError(t, err)

	in.Title = "Posted late"
	posted, err := env.Engine.CreateDeliverable(env.Ctx, in, env.Requester.ID)
	require.NoError(t, err)
	_, err = env.Engine.ChangeStatus(env.Ctx, posted.ID, "Posted", env.Assignee)
	require.NoError(t, err)

	env.create(t, "On time")

	n, err := env.Engine.SweepOverdue(env.Ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	for i := 0; i < 3; i++ {
		n, err = env.Engine.SweepOverdue(env.Ctx)
		require.NoError(t, err)
		require.Zero(t, n)
	}

	for _, user := range []domain.Actor{env.Assignee, env.Requester} {
		got := env.notices(t, user, notify.TypeOverdue)
		require.Len(t, got, 1)
		require.Equal(t, late.ID, *got[0].EntityID)
	}
}

func TestCommentsAndVersions(t *testing.T) {
	env := newTestEnv(t)
	d := env.create(t, "Story")

	c, err := env.Engine.AddComment(env.Ctx, d.ID, "first pass looks good", env.Requester)
	require.NoError(t, err)
	_, err = env.Engine.AddComment(env.Ctx, d.ID, "  ", env.Requester)
	var verr engine.ValidationError
	require.ErrorAs(t, err, &verr)

	comments, err := env.Engine.Comments(env.Ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	require.Equal(t, c.ID, comments[0].ID)
	require.Len(t, env.actions(t, d.ID, "comment_added"), 1)

	v1, err := env.Engine.AddVersion(env.Ctx, d.ID, engine.VersionInput{Type: "copy", SummaryNotes: "draft"}, env.Assignee)
	require.NoError(t, err)
	v2, err := env.Engine.AddVersion(env.Ctx, d.ID, engine.VersionInput{Type: "design", ExternalURL: "https://cdn.example.com/v2.png"}, env.Admin)
	require.NoError(t, err)
	require.Equal(t, 1, v1.VersionNumber)
	require.Equal(t, 2, v2.VersionNumber)

	_, err = env.Engine.AddVersion(env.Ctx, d.ID, engine.VersionInput{Type: "audio"}, env.Assignee)
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "type", verr.Field)

	_, err = env.Engine.AddVersion(env.Ctx, d.ID, engine.VersionInput{Type: "copy"}, env.Requester)
	var forbidden auth.ForbiddenError
	require.ErrorAs(t, err, &forbidden)

	versions, err := env.Engine.Versions(env.Ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	created := env.actions(t, d.ID, "version_created")
	require.Len(t, created, 2)
	require.JSONEq(t, `{"version_number":1,"type":"copy"}`, created[0].Details)
}

func TestNotificationsInbox(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, "One")
	env.create(t, "Two")

	unread, err := env.Engine.Notifications(env.Ctx, env.Assignee, true, 0)
	require.NoError(t, err)
	require.Len(t, unread, 2)

	_, err = env.Engine.MarkRead(env.Ctx, env.Requester, unread[0].ID)
	require.ErrorIs(t, err, repo.ErrNotFound)

	read, err := env.Engine.MarkRead(env.Ctx, env.Assignee, unread[0].ID)
	require.NoError(t, err)
	require.NotNil(t, read.ReadAt)

	n, err := env.Engine.MarkAllRead(env.Ctx, env.Assignee)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	unread, err = env.Engine.Notifications(env.Ctx, env.Assignee, true, 0)
	require.NoError(t, err)
	require.Empty(t, unread)
}

func TestStageAdministration(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.Engine.CreateStage(env.Ctx, env.Assignee, engine.StageInput{Name: "Legal"})
	var forbidden auth.ForbiddenError
	require.ErrorAs(t, err, &forbidden)

	legal, err := env.Engine.CreateStage(env.Ctx, env.Admin, engine.StageInput{Name: "Legal", WIPLimit: intPtr(1)})
	require.NoError(t, err)
	require.Equal(t, 8, legal.OrderIndex)

	_, err = env.Engine.CreateStage(env.Ctx, env.Admin, engine.StageInput{Name: "Legal"})
	var verr engine.ValidationError
	require.ErrorAs(t, err, &verr)
	_, err = env.Engine.CreateStage(env.Ctx, env.Admin, engine.StageInput{Name: "Archived"})
	require.ErrorAs(t, err, &verr)
	_, err = env.Engine.SetWIPLimit(env.Ctx, env.Admin, "Legal", intPtr(-2))
	require.ErrorAs(t, err, &verr)

	_, err = env.Engine.SetStageOrder(env.Ctx, env.Admin, "Legal", 0)
	require.NoError(t, err)
	list, err := env.Engine.ListStages(env.Ctx)
	require.NoError(t, err)
	require.Equal(t, "Legal", list[0].Name)

	d := env.create(t, "Story")
	require.Equal(t, "Legal", d.Status)

	var invalid engine.InvalidStateError
	require.ErrorAs(t, env.Engine.DeleteStage(env.Ctx, env.Admin, "Legal"), &invalid)
	require.ErrorAs(t, env.Engine.DeleteStage(env.Ctx, env.Admin, "Approval Needed"), &invalid)
	require.ErrorIs(t, env.Engine.DeleteStage(env.Ctx, env.Admin, "Nope"), repo.ErrNotFound)
	require.NoError(t, env.Engine.DeleteStage(env.Ctx, env.Admin, "Briefed"))

	_, err = env.Engine.SetWIPLimit(env.Ctx, env.Admin, "Legal", nil)
	require.NoError(t, err)
	_, err = env.Engine.SetWIPLimit(env.Ctx, env.Admin, "Briefed", intPtr(1))
	require.ErrorIs(t, err, repo.ErrNotFound)
}

func TestProfilesAndRoles(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.SetRole(env.Ctx, env.Assignee, env.Requester.ID, domain.RoleAdmin)
	var forbidden auth.ForbiddenError
	require.ErrorAs(t, err, &forbidden)

	_, err = env.Engine.SetRole(env.Ctx, env.Admin, env.Requester.ID, domain.Role("owner"))
	var verr engine.ValidationError
	require.ErrorAs(t, err, &verr)

	p, err := env.Engine.SetRole(env.Ctx, env.Admin, env.Requester.ID, domain.RoleApprover)
	require.NoError(t, err)
	require.Equal(t, domain.RoleApprover, p.Role)

	_, err = env.Engine.SetRole(env.Ctx, env.Admin, "ghost", domain.RoleApprover)
	require.ErrorIs(t, err, repo.ErrNotFound)

	approvers, err := env.Engine.ListProfiles(env.Ctx, domain.RoleApprover)
	require.NoError(t, err)
	ids := []string{}
	for _, a := range approvers {
		ids = append(ids, a.ID)
	}
	// profiles keep their join time across role changes
	require.Equal(t, []string{env.Requester.ID, env.Approver.ID}, ids)
}

func TestBoardIncludesArchive(t *testing.T) {
	env := newTestEnv(t)
	a := env.create(t, "A")
	env.create(t, "B")
	_, err := env.Engine.ChangeStatus(env.Ctx, a.ID, "Archived", env.Assignee)
	require.NoError(t, err)

	board, err := env.Engine.Board(env.Ctx)
	require.NoError(t, err)
	require.Len(t, board, 8)
	require.Equal(t, "Intake", board[0].Stage.Name)
	require.Equal(t, 1, board[0].Count)
	last := board[len(board)-1]
	require.Equal(t, "Archived", last.Stage.Name)
	require.Equal(t, 1, last.Count)
	require.Equal(t, a.ID, last.Items[0].ID)
	require.False(t, last.AtCap)
}

func TestEngineWithoutLoggerStillWrites(t *testing.T) {
	env := newTestEnv(t)
	eng := env.Engine
	eng.Log = nil

	_, err := eng.CreateStage(env.Ctx, env.Admin, engine.StageInput{Name: "Legal"})
	require.NoError(t, err)
	require.NoError(t, eng.DeleteStage(env.Ctx, env.Admin, "Legal"))

	p, err := eng.SetRole(env.Ctx, env.Admin, env.Requester.ID, domain.RoleApprover)
	require.NoError(t, err)
	require.Equal(t, domain.RoleApprover, p.Role)

	_, err = eng.SweepOverdue(env.Ctx)
	require.NoError(t, err)
}
