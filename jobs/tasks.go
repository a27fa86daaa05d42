package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for workflow emails.
	TaskTypeSendEmail = "mail:send"
)

// SendEmailPayload carries a templated workflow email. The body is
// rendered by the worker, not the enqueuer, so template changes do
// not invalidate queued tasks.
type SendEmailPayload struct {
	To        string            `json:"to"`
	Name      string            `json:"name"`
	Template  string            `json:"template"`
	Variables map[string]string `json:"variables"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// NewSendEmailHandler processes TaskTypeSendEmail tasks through the
// mailer. Malformed payloads and unknown templates are dropped
// without retry; transport failures retry through asynq.
func NewSendEmailHandler(mailer *Mailer, logger *slog.Logger) asynq.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, t *asynq.Task) error {
		var payload SendEmailPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			logger.Warn("send email: bad payload", slog.Any("error", err))
			return asynq.SkipRetry
		}
		if err := mailer.Send(ctx, payload); err != nil {
			if isTemplateErr(err) {
				logger.Warn("send email: skipped", slog.String("template", payload.Template), slog.Any("error", err))
				return asynq.SkipRetry
			}
			return err
		}
		logger.Info("email sent", slog.String("to", payload.To), slog.String("template", payload.Template))
		return nil
	}
}
