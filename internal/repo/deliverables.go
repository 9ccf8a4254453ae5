package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"contentline/internal/domain"
)

const deliverableColumns = `id,title,requester_id,assignee_id,platform,format,goal,due_at,priority,complexity,status,blocked,blocked_reason,campaign_name,audience,cta,copy_direction,compliance_flags_json,required_disclaimer,disclaimer_text,hashtags,notes,revision_round,revision_limit,version,created_at,updated_at`

func scanDeliverable(row scanner) (domain.Deliverable, error) {
	var d domain.Deliverable
	var assigneeID, blockedReason, campaign, audience, cta, copyDirection, disclaimer, hashtags, notes sql.NullString
	var flagsJSON string
	var blocked, requiredDisclaimer int
	err := row.Scan(&d.ID, &d.Title, &d.RequesterID, &assigneeID, &d.Platform, &d.Format, &d.Goal, &d.DueAt,
		&d.Priority, &d.Complexity, &d.Status, &blocked, &blockedReason, &campaign, &audience, &cta, &copyDirection,
		&flagsJSON, &requiredDisclaimer, &disclaimer, &hashtags, &notes, &d.RevisionRound, &d.RevisionLimit,
		&d.Version, &d.CreatedAt, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	if err != nil {
		return d, err
	}
	d.AssigneeID = stringPtr(assigneeID)
	d.Blocked = blocked != 0
	d.BlockedReason = stringPtr(blockedReason)
	d.CampaignName = stringPtr(campaign)
	d.Audience = stringPtr(audience)
	d.CTA = stringPtr(cta)
	d.CopyDirection = stringPtr(copyDirection)
	d.RequiredDisclaimer = requiredDisclaimer != 0
	d.DisclaimerText = stringPtr(disclaimer)
	d.Hashtags = stringPtr(hashtags)
	d.Notes = stringPtr(notes)
	d.ComplianceFlags = []string{}
	if flagsJSON != "" {
		if err := json.Unmarshal([]byte(flagsJSON), &d.ComplianceFlags); err != nil {
			return d, fmt.Errorf("decode compliance flags for %s: %w", d.ID, err)
		}
	}
	return d, nil
}

func (r Repo) InsertDeliverable(ctx context.Context, tx *sql.Tx, d domain.Deliverable) error {
	flags, err := marshalStringSlice(d.ComplianceFlags)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO deliverables(`+deliverableColumns+`)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		d.ID, d.Title, d.RequesterID, nullableStringPtr(d.AssigneeID), d.Platform, d.Format, d.Goal, d.DueAt,
		d.Priority, d.Complexity, d.Status, boolInt(d.Blocked), nullableStringPtr(d.BlockedReason),
		nullableStringPtr(d.CampaignName), nullableStringPtr(d.Audience), nullableStringPtr(d.CTA),
		nullableStringPtr(d.CopyDirection), flags, boolInt(d.RequiredDisclaimer), nullableStringPtr(d.DisclaimerText),
		nullableStringPtr(d.Hashtags), nullableStringPtr(d.Notes), d.RevisionRound, d.RevisionLimit, d.Version,
		d.CreatedAt, d.UpdatedAt)
	return err
}

// UpdateDeliverable writes every mutable column provided the stored version still
// equals d.Version, and bumps the version. It returns ErrStale otherwise.
func (r Repo) UpdateDeliverable(ctx context.Context, tx *sql.Tx, d domain.Deliverable) error {
	flags, err := marshalStringSlice(d.ComplianceFlags)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE deliverables SET title=?, assignee_id=?, platform=?, format=?, goal=?, due_at=?, priority=?, complexity=?, status=?,
blocked=?, blocked_reason=?, campaign_name=?, audience=?, cta=?, copy_direction=?, compliance_flags_json=?, required_disclaimer=?, disclaimer_text=?,
hashtags=?, notes=?, revision_round=?, revision_limit=?, version=version+1, updated_at=? WHERE id=? AND version=?`,
		d.Title, nullableStringPtr(d.AssigneeID), d.Platform, d.Format, d.Goal, d.DueAt, d.Priority, d.Complexity, d.Status,
		boolInt(d.Blocked), nullableStringPtr(d.BlockedReason), nullableStringPtr(d.CampaignName), nullableStringPtr(d.Audience),
		nullableStringPtr(d.CTA), nullableStringPtr(d.CopyDirection), flags, boolInt(d.RequiredDisclaimer),
		nullableStringPtr(d.DisclaimerText), nullableStringPtr(d.Hashtags), nullableStringPtr(d.Notes),
		d.RevisionRound, d.RevisionLimit, d.UpdatedAt, d.ID, d.Version)
	if err != nil {
		return err
	}
	return affectedOne(res)
}

func (r Repo) GetDeliverable(ctx context.Context, id string) (domain.Deliverable, error) {
	return getDeliverable(ctx, r.DB, id)
}

func (r Repo) GetDeliverableTx(ctx context.Context, tx *sql.Tx, id string) (domain.Deliverable, error) {
	return getDeliverable(ctx, tx, id)
}

func getDeliverable(ctx context.Context, q queryer, id string) (domain.Deliverable, error) {
	return scanDeliverable(q.QueryRowContext(ctx, `SELECT `+deliverableColumns+` FROM deliverables WHERE id=?`, id))
}

type DeliverableFilters struct {
	Status          string
	AssigneeID      string
	RequesterID     string
	Blocked         *bool
	DueBefore       string
	ExcludeStatuses []string
	Limit           int
}

func (r Repo) ListDeliverables(ctx context.Context, f DeliverableFilters) ([]domain.Deliverable, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.AssigneeID != "" {
		clauses = append(clauses, "assignee_id=?")
		args = append(args, f.AssigneeID)
	}
	if f.RequesterID != "" {
		clauses = append(clauses, "requester_id=?")
		args = append(args, f.RequesterID)
	}
	if f.Blocked != nil {
		clauses = append(clauses, "blocked=?")
		args = append(args, boolInt(*f.Blocked))
	}
	if f.DueBefore != "" {
		clauses = append(clauses, "due_at<?")
		args = append(args, f.DueBefore)
	}
	if len(f.ExcludeStatuses) > 0 {
		clauses = append(clauses, "status NOT IN ("+placeholders(len(f.ExcludeStatuses))+")")
		for _, s := range f.ExcludeStatuses {
			args = append(args, s)
		}
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + deliverableColumns + ` FROM deliverables ` + where + ` ORDER BY due_at ASC, id ASC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Deliverable{}
	for rows.Next() {
		d, err := scanDeliverable(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

// CountAtStatusTx counts deliverables whose status equals status, ignoring excludeID.
func (r Repo) CountAtStatusTx(ctx context.Context, tx *sql.Tx, status, excludeID string) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT count(*) FROM deliverables WHERE status=? AND id<>?`, status, excludeID).Scan(&n)
	return n, err
}
