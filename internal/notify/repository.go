package notify

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists notifications.
type Repository interface {
	Insert(ctx context.Context, n Notification) error
	ListForActor(ctx context.Context, actorID int64, limit int) ([]Notification, error)
	UnreadCount(ctx context.Context, actorID int64) (int, error)
	// MarkRead flips the read flag on the actor's own notification.
	MarkRead(ctx context.Context, actorID int64, id uuid.UUID) error
	MarkAllRead(ctx context.Context, actorID int64) error
}
