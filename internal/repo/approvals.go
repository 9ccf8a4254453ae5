package repo

import (
	"context"
	"database/sql"

	"contentline/internal/domain"
)

const approvalColumns = `id,deliverable_id,requested_by,requested_at,approver_id,status,decision_at,decision_notes,created_at,updated_at`

func scanApproval(row scanner) (domain.Approval, error) {
	var a domain.Approval
	var approverID, decisionAt, notes sql.NullString
	var status string
	err := row.Scan(&a.ID, &a.DeliverableID, &a.RequestedBy, &a.RequestedAt, &approverID, &status, &decisionAt, &notes, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	a.Status = domain.ApprovalStatus(status)
	a.ApproverID = stringPtr(approverID)
	a.DecisionAt = stringPtr(decisionAt)
	a.DecisionNotes = stringPtr(notes)
	return a, nil
}

func (r Repo) InsertApproval(ctx context.Context, tx *sql.Tx, a domain.Approval) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO approvals(`+approvalColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.DeliverableID, a.RequestedBy, a.RequestedAt, nullableStringPtr(a.ApproverID), string(a.Status),
		nullableStringPtr(a.DecisionAt), nullableStringPtr(a.DecisionNotes), a.CreatedAt, a.UpdatedAt)
	return err
}

// DecideApproval records a decision only while the approval is still pending.
// It returns ErrStale when another decision got there first.
func (r Repo) DecideApproval(ctx context.Context, tx *sql.Tx, a domain.Approval) error {
	res, err := tx.ExecContext(ctx, `UPDATE approvals SET status=?, decision_at=?, decision_notes=?, updated_at=? WHERE id=? AND status='pending'`,
		string(a.Status), nullableStringPtr(a.DecisionAt), nullableStringPtr(a.DecisionNotes), a.UpdatedAt, a.ID)
	if err != nil {
		return err
	}
	return affectedOne(res)
}

func (r Repo) GetApproval(ctx context.Context, id string) (domain.Approval, error) {
	return scanApproval(r.DB.QueryRowContext(ctx, `SELECT `+approvalColumns+` FROM approvals WHERE id=?`, id))
}

func (r Repo) GetApprovalTx(ctx context.Context, tx *sql.Tx, id string) (domain.Approval, error) {
	return scanApproval(tx.QueryRowContext(ctx, `SELECT `+approvalColumns+` FROM approvals WHERE id=?`, id))
}

// PendingApprovalTx returns the pending approval of a deliverable, if any.
func (r Repo) PendingApprovalTx(ctx context.Context, tx *sql.Tx, deliverableID string) (domain.Approval, error) {
	return scanApproval(tx.QueryRowContext(ctx, `SELECT `+approvalColumns+` FROM approvals WHERE deliverable_id=? AND status='pending' ORDER BY requested_at ASC LIMIT 1`, deliverableID))
}

func (r Repo) ListApprovals(ctx context.Context, deliverableID string) ([]domain.Approval, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+approvalColumns+` FROM approvals WHERE deliverable_id=? ORDER BY requested_at DESC, rowid DESC`, deliverableID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Approval{}
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) ListPendingApprovalsFor(ctx context.Context, approverID string) ([]domain.Approval, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+approvalColumns+` FROM approvals WHERE approver_id=? AND status='pending' ORDER BY requested_at ASC`, approverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Approval{}
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}
