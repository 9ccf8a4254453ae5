package repo

import (
	"context"
	"database/sql"

	"contentline/internal/domain"
)

const notificationColumns = `id,user_id,type,title,body,entity_type,entity_id,created_at,read_at`

func scanNotification(row scanner) (domain.Notification, error) {
	var n domain.Notification
	var entityType, entityID, readAt sql.NullString
	err := row.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Body, &entityType, &entityID, &n.CreatedAt, &readAt)
	if err == sql.ErrNoRows {
		return n, ErrNotFound
	}
	if err != nil {
		return n, err
	}
	n.EntityType = stringPtr(entityType)
	n.EntityID = stringPtr(entityID)
	n.ReadAt = stringPtr(readAt)
	return n, nil
}

// UnreadExists reports whether the user already holds an unread notification
// with the same entity and type.
func (r Repo) UnreadExists(ctx context.Context, userID, entityType, entityID, typ string) (bool, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM notifications WHERE user_id=? AND entity_type=? AND entity_id=? AND type=? AND read_at IS NULL`,
		userID, entityType, entityID, typ).Scan(&n)
	return n > 0, err
}

// InsertNotification stores n unless an unread duplicate exists. The returned
// bool is false when the row was skipped.
func (r Repo) InsertNotification(ctx context.Context, n domain.Notification) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `INSERT OR IGNORE INTO notifications(`+notificationColumns+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		n.ID, n.UserID, n.Type, n.Title, n.Body, nullableStringPtr(n.EntityType), nullableStringPtr(n.EntityID),
		n.CreatedAt, nullableStringPtr(n.ReadAt))
	if err != nil {
		return false, err
	}
	if err := affectedOne(res); err != nil {
		if err == ErrStale {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r Repo) GetNotification(ctx context.Context, id string) (domain.Notification, error) {
	return scanNotification(r.DB.QueryRowContext(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id=?`, id))
}

func (r Repo) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]domain.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE user_id=?`
	args := []any{userID}
	if unreadOnly {
		query += ` AND read_at IS NULL`
	}
	query += ` ORDER BY created_at DESC, rowid DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	return res, rows.Err()
}

func (r Repo) MarkNotificationRead(ctx context.Context, id, userID, now string) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE notifications SET read_at=? WHERE id=? AND user_id=? AND read_at IS NULL`, now, id, userID)
	return err
}

func (r Repo) MarkAllNotificationsRead(ctx context.Context, userID, now string) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `UPDATE notifications SET read_at=? WHERE user_id=? AND read_at IS NULL`, now, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
