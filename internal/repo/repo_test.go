package repo_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"contentline/internal/db"
	"contentline/internal/domain"
	"contentline/internal/migrate"
	"contentline/internal/repo"
)

func newRepo(t *testing.T) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	applied, err := migrate.Migrate(context.Background(), conn)
	require.NoError(t, err)
	require.Positive(t, applied)
	again, err := migrate.Migrate(context.Background(), conn)
	require.NoError(t, err)
	require.Zero(t, again)
	return repo.Repo{DB: conn}
}

func seedDeliverable(t *testing.T, r repo.Repo, id, status, due string) domain.Deliverable {
	t.Helper()
	ctx := context.Background()
	d := domain.Deliverable{
		ID: id, Title: "t-" + id, RequesterID: "u-1", Platform: "blog", Format: "other", Goal: "other",
		DueAt: due, Priority: "p2", Complexity: "s", Status: status, ComplianceFlags: []string{"claims"},
		RevisionLimit: 3, Version: 1, CreatedAt: "2025-01-01T00:00:00.000000Z", UpdatedAt: "2025-01-01T00:00:00.000000Z",
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, r.InsertDeliverable(ctx, tx, d))
	require.NoError(t, tx.Commit())
	return d
}

func TestUpdateDeliverableRejectsStaleVersion(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	d := seedDeliverable(t, r, "d-1", "Intake", "2025-02-01T00:00:00.000000Z")

	tx, err := r.DB.BeginTx(ctx, nil)
	require.NoError(t, err)
	d.Status = "Briefed"
	require.NoError(t, r.UpdateDeliverable(ctx, tx, d))
	// d.Version still holds the pre-update value
	require.ErrorIs(t, r.UpdateDeliverable(ctx, tx, d), repo.ErrStale)
	require.NoError(t, tx.Commit())

	got, err := r.GetDeliverable(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, "Briefed", got.Status)
	require.EqualValues(t, 2, got.Version)
	require.Equal(t, []string{"claims"}, got.ComplianceFlags)

	_, err = r.GetDeliverable(ctx, "missing")
	require.ErrorIs(t, err, repo.ErrNotFound)
}

func TestListDeliverablesFilters(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	seedDeliverable(t, r, "d-1", "Intake", "2025-02-01T00:00:00.000000Z")
	seedDeliverable(t, r, "d-2", "Posted", "2025-02-01T00:00:00.000000Z")
	seedDeliverable(t, r, "d-3", "Intake", "2025-06-01T00:00:00.000000Z")

	items, err := r.ListDeliverables(ctx, repo.DeliverableFilters{
		DueBefore:       "2025-03-01T00:00:00.000000Z",
		ExcludeStatuses: []string{"Posted", "Archived"},
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "d-1", items[0].ID)

	items, err = r.ListDeliverables(ctx, repo.DeliverableFilters{Status: "Intake"})
	require.NoError(t, err)
	require.Len(t, items, 2)
}

func TestUnreadNotificationsAreUnique(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	entityType, entityID := "deliverable", "d-1"
	n := domain.Notification{
		ID: "n-1", UserID: "u-1", Type: "overdue", Title: "Overdue", Body: "late",
		EntityType: &entityType, EntityID: &entityID, CreatedAt: "2025-01-01T00:00:00.000000Z",
	}
	created, err := r.InsertNotification(ctx, n)
	require.NoError(t, err)
	require.True(t, created)

	n.ID = "n-2"
	created, err = r.InsertNotification(ctx, n)
	require.NoError(t, err)
	require.False(t, created)

	exists, err := r.UnreadExists(ctx, "u-1", entityType, entityID, "overdue")
	require.NoError(t, err)
	require.True(t, exists)

	require.NoError(t, r.MarkNotificationRead(ctx, "n-1", "u-1", "2025-01-02T00:00:00.000000Z"))
	created, err = r.InsertNotification(ctx, n)
	require.NoError(t, err)
	require.True(t, created)

	all, err := r.ListNotifications(ctx, "u-1", false, 10)
	require.NoError(t, err)
	require.Len(t, all, 2)
}
