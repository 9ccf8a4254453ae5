package activity

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"contentline/internal/domain"
	"contentline/internal/repo"
)

const (
	ActionCreated           = "created"
	ActionUpdated           = "updated"
	ActionApprovalRequested = "approval_requested"
	ActionApprovalDecision  = "approval_decision"
	ActionCommentAdded      = "comment_added"
	ActionVersionCreated    = "version_created"
)

type Details map[string]any

// Recorder appends audit entries inside the caller's transaction.
type Recorder interface {
	Append(ctx context.Context, tx *sql.Tx, deliverableID, userID, action string, details Details) error
}

// Writer is the SQL-backed Recorder.
type Writer struct {
	Repo repo.Repo
	Now  func() time.Time
}

func (w Writer) Append(ctx context.Context, tx *sql.Tx, deliverableID, userID, action string, details Details) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	if details == nil {
		details = Details{}
	}
	data, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("marshal activity details: %w", err)
	}
	_, err = w.Repo.InsertActivity(ctx, tx, domain.ActivityLogEntry{
		DeliverableID: deliverableID,
		UserID:        userID,
		Action:        action,
		Details:       string(data),
		CreatedAt:     domain.FormatTime(w.Now()),
	})
	if err != nil {
		return fmt.Errorf("append activity %s: %w", action, err)
	}
	return nil
}

// Change is the {from,to} pair recorded for a changed field.
func Change(from, to any) map[string]any {
	return map[string]any{"from": from, "to": to}
}
