package repo

import (
	"context"
	"database/sql"

	"contentline/internal/domain"
)

const stageColumns = `id,name,order_index,wip_limit,created_at,updated_at`

func scanStage(row scanner) (domain.PipelineStage, error) {
	var s domain.PipelineStage
	var wip sql.NullInt64
	err := row.Scan(&s.ID, &s.Name, &s.OrderIndex, &wip, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	if wip.Valid {
		v := int(wip.Int64)
		s.WIPLimit = &v
	}
	return s, nil
}

func (r Repo) InsertStage(ctx context.Context, tx *sql.Tx, s domain.PipelineStage) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO pipeline_stages(`+stageColumns+`) VALUES (?,?,?,?,?,?)`,
		s.ID, s.Name, s.OrderIndex, nullableIntPtr(s.WIPLimit), s.CreatedAt, s.UpdatedAt)
	return err
}

func (r Repo) UpdateStage(ctx context.Context, tx *sql.Tx, s domain.PipelineStage) error {
	res, err := tx.ExecContext(ctx, `UPDATE pipeline_stages SET order_index=?, wip_limit=?, updated_at=? WHERE id=?`,
		s.OrderIndex, nullableIntPtr(s.WIPLimit), s.UpdatedAt, s.ID)
	if err != nil {
		return err
	}
	if err := affectedOne(res); err != nil {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteStage(ctx context.Context, tx *sql.Tx, id string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM pipeline_stages WHERE id=?`, id)
	return err
}

// ListStages orders by order_index; rowid keeps insertion order among ties.
func (r Repo) ListStages(ctx context.Context) ([]domain.PipelineStage, error) {
	return listStages(ctx, r.DB)
}

func (r Repo) ListStagesTx(ctx context.Context, tx *sql.Tx) ([]domain.PipelineStage, error) {
	return listStages(ctx, tx)
}

func listStages(ctx context.Context, q queryer) ([]domain.PipelineStage, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+stageColumns+` FROM pipeline_stages ORDER BY order_index ASC, rowid ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.PipelineStage{}
	for rows.Next() {
		s, err := scanStage(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r Repo) GetStageByName(ctx context.Context, name string) (domain.PipelineStage, error) {
	return getStageByName(ctx, r.DB, name)
}

func (r Repo) GetStageByNameTx(ctx context.Context, tx *sql.Tx, name string) (domain.PipelineStage, error) {
	return getStageByName(ctx, tx, name)
}

func getStageByName(ctx context.Context, q queryer, name string) (domain.PipelineStage, error) {
	return scanStage(q.QueryRowContext(ctx, `SELECT `+stageColumns+` FROM pipeline_stages WHERE name=?`, name))
}
