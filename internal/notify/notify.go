package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"contentline/internal/domain"
	"contentline/internal/metrics"
	"contentline/internal/pkg/logger"
	"contentline/internal/repo"
)

const (
	TypeDeliverableAssigned  = "deliverable_assigned"
	TypeDeliverableCreated   = "deliverable_created"
	TypeApprovalRequested    = "approval_requested"
	TypeApprovalDecision     = "approval_decision"
	TypeRevisionLimitReached = "revision_limit_reached"
	TypeOverdue              = "overdue"

	EntityDeliverable = "deliverable"
	EntityApproval    = "approval"
)

// Notice is a notification the engine wants delivered to one user.
type Notice struct {
	UserID     string
	Type       string
	Title      string
	Body       string
	EntityType string
	EntityID   string
}

// Emitter delivers notices. Implementations own de-duplication: a notice is
// dropped while the user holds an unread one with the same entity and type.
type Emitter interface {
	Emit(ctx context.Context, n Notice) (bool, error)
}

// Publisher hands stored notifications to external delivery.
type Publisher interface {
	Publish(ctx context.Context, n domain.Notification) error
	Close() error
}

// SQLEmitter stores notices in the notifications table.
type SQLEmitter struct {
	Repo      repo.Repo
	Log       *logger.Logger
	Metrics   *metrics.Metrics
	Publisher Publisher
	Now       func() time.Time
}

func (e SQLEmitter) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Emit stores n and reports whether a new row was created.
func (e SQLEmitter) Emit(ctx context.Context, n Notice) (bool, error) {
	if n.UserID == "" {
		return false, fmt.Errorf("notice %s has no recipient", n.Type)
	}
	if n.EntityType != "" && n.EntityID != "" {
		exists, err := e.Repo.UnreadExists(ctx, n.UserID, n.EntityType, n.EntityID, n.Type)
		if err != nil {
			e.Metrics.Notification(n.Type, "failed")
			return false, fmt.Errorf("check unread %s: %w", n.Type, err)
		}
		if exists {
			e.Metrics.Notification(n.Type, "duplicate")
			return false, nil
		}
	}
	row := domain.Notification{
		ID:        uuid.NewString(),
		UserID:    n.UserID,
		Type:      n.Type,
		Title:     n.Title,
		Body:      n.Body,
		CreatedAt: domain.FormatTime(e.now()),
	}
	if n.EntityType != "" {
		row.EntityType = &n.EntityType
	}
	if n.EntityID != "" {
		row.EntityID = &n.EntityID
	}
	created, err := e.Repo.InsertNotification(ctx, row)
	if err != nil {
		e.Metrics.Notification(n.Type, "failed")
		return false, fmt.Errorf("insert notification %s: %w", n.Type, err)
	}
	if !created {
		// lost a race against a concurrent emitter; the unique index kept one row
		e.Metrics.Notification(n.Type, "duplicate")
		return false, nil
	}
	e.Metrics.Notification(n.Type, "created")
	if e.Publisher != nil {
		if err := e.Publisher.Publish(ctx, row); err != nil && e.Log != nil {
			e.Log.Warn("publish notification failed", "id", row.ID, "type", row.Type, "error", err)
		}
	}
	return true, nil
}
