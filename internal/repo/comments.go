package repo

import (
	"context"
	"database/sql"

	"contentline/internal/domain"
)

func (r Repo) InsertComment(ctx context.Context, tx *sql.Tx, c domain.Comment) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO comments(id,deliverable_id,user_id,content,created_at,updated_at) VALUES (?,?,?,?,?,?)`,
		c.ID, c.DeliverableID, c.UserID, c.Content, c.CreatedAt, c.UpdatedAt)
	return err
}

func (r Repo) ListComments(ctx context.Context, deliverableID string) ([]domain.Comment, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,deliverable_id,user_id,content,created_at,updated_at FROM comments WHERE deliverable_id=? ORDER BY created_at ASC, rowid ASC`, deliverableID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Comment{}
	for rows.Next() {
		var c domain.Comment
		if err := rows.Scan(&c.ID, &c.DeliverableID, &c.UserID, &c.Content, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

const versionColumns = `id,deliverable_id,version_number,type,storage_path,external_url,summary_notes,created_by,created_at`

func (r Repo) InsertVersion(ctx context.Context, tx *sql.Tx, v domain.Version) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO versions(`+versionColumns+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		v.ID, v.DeliverableID, v.VersionNumber, v.Type, nullableStringPtr(v.StoragePath), nullableStringPtr(v.ExternalURL),
		nullableStringPtr(v.SummaryNotes), v.CreatedBy, v.CreatedAt)
	return err
}

// NextVersionNumberTx returns one past the highest version number recorded.
func (r Repo) NextVersionNumberTx(ctx context.Context, tx *sql.Tx, deliverableID string) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(version_number),0)+1 FROM versions WHERE deliverable_id=?`, deliverableID).Scan(&n)
	return n, err
}

func (r Repo) ListVersions(ctx context.Context, deliverableID string) ([]domain.Version, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+versionColumns+` FROM versions WHERE deliverable_id=? ORDER BY version_number ASC`, deliverableID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Version{}
	for rows.Next() {
		var v domain.Version
		var storage, url, notes sql.NullString
		if err := rows.Scan(&v.ID, &v.DeliverableID, &v.VersionNumber, &v.Type, &storage, &url, &notes, &v.CreatedBy, &v.CreatedAt); err != nil {
			return nil, err
		}
		v.StoragePath = stringPtr(storage)
		v.ExternalURL = stringPtr(url)
		v.SummaryNotes = stringPtr(notes)
		res = append(res, v)
	}
	return res, rows.Err()
}
