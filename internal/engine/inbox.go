package engine

import (
	"context"
	"errors"

	"contentline/internal/domain"
	"contentline/internal/repo"
)

func (e Engine) Notifications(ctx context.Context, actor domain.Actor, unreadOnly bool, limit int) ([]domain.Notification, error) {
	return e.Repo.ListNotifications(ctx, actor.ID, unreadOnly, limit)
}

// MarkRead marks one of the actor's own notifications as read. Other users'
// notifications are reported as not found.
func (e Engine) MarkRead(ctx context.Context, actor domain.Actor, id string) (domain.Notification, error) {
	n, err := e.Repo.GetNotification(ctx, id)
	if errors.Is(err, repo.ErrNotFound) || (err == nil && n.UserID != actor.ID) {
		return domain.Notification{}, notFound("notification", id)
	}
	if err != nil {
		return n, err
	}
	if n.ReadAt != nil {
		return n, nil
	}
	now := e.timestamp()
	if err := e.Repo.MarkNotificationRead(ctx, id, actor.ID, now); err != nil {
		return n, err
	}
	n.ReadAt = &now
	return n, nil
}

func (e Engine) MarkAllRead(ctx context.Context, actor domain.Actor) (int64, error) {
	return e.Repo.MarkAllNotificationsRead(ctx, actor.ID, e.timestamp())
}
