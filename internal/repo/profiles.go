package repo

import (
	"context"
	"database/sql"

	"contentline/internal/domain"
)

const profileColumns = `id,COALESCE(email,''),COALESCE(full_name,''),role,created_at,updated_at`

func scanProfile(row scanner) (domain.Profile, error) {
	var p domain.Profile
	var role string
	err := row.Scan(&p.ID, &p.Email, &p.FullName, &role, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	p.Role = domain.Role(role)
	return p, err
}

// UpsertProfile inserts a profile or refreshes its contact fields and role.
func (r Repo) UpsertProfile(ctx context.Context, p domain.Profile) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO profiles(id,email,full_name,role,created_at,updated_at) VALUES (?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET email=excluded.email, full_name=excluded.full_name, role=excluded.role, updated_at=excluded.updated_at`,
		p.ID, nullable(p.Email), nullable(p.FullName), string(p.Role), p.CreatedAt, p.UpdatedAt)
	return err
}

func (r Repo) SetProfileRole(ctx context.Context, tx *sql.Tx, id string, role domain.Role, now string) error {
	res, err := tx.ExecContext(ctx, `UPDATE profiles SET role=?, updated_at=? WHERE id=?`, string(role), now, id)
	if err != nil {
		return err
	}
	if err := affectedOne(res); err != nil {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetProfile(ctx context.Context, id string) (domain.Profile, error) {
	return scanProfile(r.DB.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id=?`, id))
}

func (r Repo) GetProfileTx(ctx context.Context, tx *sql.Tx, id string) (domain.Profile, error) {
	return scanProfile(tx.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id=?`, id))
}

func (r Repo) ListProfiles(ctx context.Context, role domain.Role) ([]domain.Profile, error) {
	return listProfiles(ctx, r.DB, role)
}

func (r Repo) ListProfilesTx(ctx context.Context, tx *sql.Tx, role domain.Role) ([]domain.Profile, error) {
	return listProfiles(ctx, tx, role)
}

// listProfiles returns profiles oldest first; an empty role lists everyone.
func listProfiles(ctx context.Context, q queryer, role domain.Role) ([]domain.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles`
	var args []any
	if role != "" {
		query += ` WHERE role=?`
		args = append(args, string(role))
	}
	query += ` ORDER BY created_at ASC, id ASC`
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Profile{}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// FirstProfileWithRoleTx picks the longest-standing profile holding role.
func (r Repo) FirstProfileWithRoleTx(ctx context.Context, tx *sql.Tx, role domain.Role) (domain.Profile, error) {
	return scanProfile(tx.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE role=? ORDER BY created_at ASC, id ASC LIMIT 1`, string(role)))
}
