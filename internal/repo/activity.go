package repo

import (
	"context"
	"database/sql"

	"contentline/internal/domain"
)

func (r Repo) InsertActivity(ctx context.Context, tx *sql.Tx, e domain.ActivityLogEntry) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO activity_log(deliverable_id,user_id,action,details_json,created_at) VALUES (?,?,?,?,?)`,
		e.DeliverableID, nullable(e.UserID), e.Action, e.Details, e.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListActivity returns a deliverable's entries in append order.
func (r Repo) ListActivity(ctx context.Context, deliverableID string, limit int) ([]domain.ActivityLogEntry, error) {
	query := `SELECT id,deliverable_id,COALESCE(user_id,''),action,details_json,created_at FROM activity_log WHERE deliverable_id=? ORDER BY id ASC`
	args := []any{deliverableID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.ActivityLogEntry{}
	for rows.Next() {
		var e domain.ActivityLogEntry
		if err := rows.Scan(&e.ID, &e.DeliverableID, &e.UserID, &e.Action, &e.Details, &e.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
