package notify

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository is the PostgreSQL notification store.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository wires the repository to a pool.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) Insert(ctx context.Context, n Notification) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notifications (id, actor_id, kind, title, message, link, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		n.ID, n.ActorID, n.Kind, n.Title, n.Message, n.Link, n.Read, n.CreatedAt)
	return err
}

func (r *PGRepository) ListForActor(ctx context.Context, actorID int64, limit int) ([]Notification, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, actor_id, kind, title, message, link, is_read, created_at
		FROM notifications
		WHERE actor_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2`, actorID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.ActorID, &n.Kind, &n.Title, &n.Message, &n.Link, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *PGRepository) UnreadCount(ctx context.Context, actorID int64) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM notifications
		WHERE actor_id = $1 AND NOT is_read`, actorID).Scan(&count)
	return count, err
}

func (r *PGRepository) MarkRead(ctx context.Context, actorID int64, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE notifications SET is_read = TRUE
		WHERE id = $1 AND actor_id = $2`, id, actorID)
	return err
}

func (r *PGRepository) MarkAllRead(ctx context.Context, actorID int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE notifications SET is_read = TRUE
		WHERE actor_id = $1 AND NOT is_read`, actorID)
	return err
}
