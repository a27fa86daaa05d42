package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/meridian-fin/meridian-fin/internal/workflow"
	"github.com/meridian-fin/meridian-fin/jobs"
)

const defaultListLimit = 50

// Service answers notification queries scoped to the calling actor.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService wires the notification service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// List returns the actor's most recent notifications.
func (s *Service) List(ctx context.Context, actorID int64, limit int) ([]Notification, error) {
	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}
	return s.repo.ListForActor(ctx, actorID, limit)
}

// UnreadCount returns how many notifications the actor has not read.
func (s *Service) UnreadCount(ctx context.Context, actorID int64) (int, error) {
	return s.repo.UnreadCount(ctx, actorID)
}

// MarkRead marks one of the actor's notifications as read. Marking a
// notification that is not the actor's own is a silent no-op because
// the update is keyed on both columns.
func (s *Service) MarkRead(ctx context.Context, actorID int64, id uuid.UUID) error {
	return s.repo.MarkRead(ctx, actorID, id)
}

// MarkAllRead marks everything the actor has as read.
func (s *Service) MarkAllRead(ctx context.Context, actorID int64) error {
	return s.repo.MarkAllRead(ctx, actorID)
}

// EmailQueue enqueues templated emails for the worker. *jobs.Client
// satisfies it.
type EmailQueue interface {
	EnqueueSendEmail(ctx context.Context, payload jobs.SendEmailPayload) (*asynq.TaskInfo, error)
}

// Dispatcher consumes the side effects a workflow transition intends.
// It runs after the transition commits; every failure is logged and
// swallowed so delivery problems never fail or roll back a report.
type Dispatcher struct {
	repo   Repository
	emails EmailQueue
	logger *slog.Logger
	now    func() time.Time
}

// NewDispatcher wires the dispatcher. The email queue may be nil,
// in which case email effects are dropped with a log line.
func NewDispatcher(repo Repository, emails EmailQueue, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{repo: repo, emails: emails, logger: logger, now: time.Now}
}

// Dispatch fans the outcome's effects out to their channels.
func (d *Dispatcher) Dispatch(ctx context.Context, outcome workflow.Outcome) {
	for _, effect := range outcome.Effects {
		switch effect.Kind {
		case workflow.EffectNotification:
			d.dispatchNotification(ctx, effect)
		case workflow.EffectEmail:
			d.dispatchEmail(ctx, effect)
		default:
			d.logger.Warn("unknown side effect kind", slog.String("kind", string(effect.Kind)))
		}
	}
}

func (d *Dispatcher) dispatchNotification(ctx context.Context, effect workflow.SideEffect) {
	err := d.repo.Insert(ctx, Notification{
		ID:        uuid.New(),
		ActorID:   effect.Recipient.ActorID,
		Kind:      effect.NotificationKind,
		Title:     effect.Title,
		Message:   effect.Message,
		Link:      effect.Link,
		CreatedAt: d.now().UTC(),
	})
	if err != nil {
		d.logger.Warn("store notification",
			slog.Int64("actor_id", effect.Recipient.ActorID),
			slog.String("kind", effect.NotificationKind),
			slog.Any("error", err))
	}
}

func (d *Dispatcher) dispatchEmail(ctx context.Context, effect workflow.SideEffect) {
	if d.emails == nil {
		d.logger.Warn("email effect dropped, no queue configured",
			slog.String("template", effect.Template))
		return
	}
	if effect.Recipient.Email == "" {
		d.logger.Warn("email effect dropped, recipient has no address",
			slog.Int64("actor_id", effect.Recipient.ActorID))
		return
	}
	_, err := d.emails.EnqueueSendEmail(ctx, jobs.SendEmailPayload{
		To:        effect.Recipient.Email,
		Name:      effect.Recipient.Name,
		Template:  effect.Template,
		Variables: effect.Variables,
	})
	if err != nil {
		d.logger.Warn("enqueue email",
			slog.String("template", effect.Template),
			slog.Any("error", err))
	}
}
