package engine

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"contentline/internal/domain"
	"contentline/internal/engine/auth"
	"contentline/internal/repo"
)

// UpsertProfile creates a profile or refreshes its contact fields and role.
func (e Engine) UpsertProfile(ctx context.Context, p domain.Profile) (domain.Profile, error) {
	p.ID = strings.TrimSpace(p.ID)
	if p.ID == "" {
		return domain.Profile{}, ValidationError{Field: "id", Message: "is required"}
	}
	if !p.Role.Valid() {
		return domain.Profile{}, ValidationError{Field: "role", Message: "must be one of: requester assignee approver admin"}
	}
	now := e.timestamp()
	p.CreatedAt = now
	p.UpdatedAt = now
	if err := e.Repo.UpsertProfile(ctx, p); err != nil {
		return domain.Profile{}, err
	}
	return e.GetProfile(ctx, p.ID)
}

func (e Engine) SetRole(ctx context.Context, actor domain.Actor, profileID string, role domain.Role) (domain.Profile, error) {
	if !auth.CanAdminister(actor) {
		return domain.Profile{}, auth.ForbiddenError{Action: "change roles"}
	}
	if !role.Valid() {
		return domain.Profile{}, ValidationError{Field: "role", Message: "must be one of: requester assignee approver admin"}
	}
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		err := e.Repo.SetProfileRole(ctx, tx, profileID, role, e.timestamp())
		if errors.Is(err, repo.ErrNotFound) {
			return notFound("profile", profileID)
		}
		return err
	})
	if err != nil {
		return domain.Profile{}, err
	}
	e.logger().Info("role changed", "profile_id", profileID, "role", role, "by", actor.ID)
	return e.GetProfile(ctx, profileID)
}

func (e Engine) GetProfile(ctx context.Context, id string) (domain.Profile, error) {
	p, err := e.Repo.GetProfile(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return p, notFound("profile", id)
	}
	return p, err
}

// ListProfiles lists profiles oldest first; an empty role lists all of them.
func (e Engine) ListProfiles(ctx context.Context, role domain.Role) ([]domain.Profile, error) {
	return e.Repo.ListProfiles(ctx, role)
}
