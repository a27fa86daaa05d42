package workflow

import (
	"context"

	"github.com/google/uuid"

	"github.com/meridian-fin/meridian-fin/internal/pnl"
)

// Repository abstracts report persistence. Transitions run inside
// WithTx so the guard re-read and the mutation share one transaction.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error

	GetReport(ctx context.Context, id uuid.UUID) (Report, error)
	GetReportByKey(ctx context.Context, companyID int64, year, month int) (Report, error)
	// InsertReport creates a DRAFT row; on a concurrent duplicate it
	// returns the existing row so CreateOrGetDraft stays idempotent.
	InsertReport(ctx context.Context, companyID int64, year, month int) (Report, error)

	ListHistory(ctx context.Context, reportID uuid.UUID) ([]StatusChange, error)
	ListComments(ctx context.Context, reportID uuid.UUID) ([]Comment, error)
	InsertComment(ctx context.Context, c Comment) (Comment, error)

	// ListCompanyReviewers returns active reviewers whose scope covers
	// the company's cluster.
	ListCompanyReviewers(ctx context.Context, companyID int64) ([]Recipient, error)
	GetRecipient(ctx context.Context, actorID int64) (Recipient, error)
}

// TxRepository exposes the mutations that must share the transition's
// transaction.
type TxRepository interface {
	// GetReportForUpdate loads the report row with a row lock so two
	// concurrent transitions cannot both observe the same status.
	GetReportForUpdate(ctx context.Context, id uuid.UUID) (Report, error)
	UpdateReport(ctx context.Context, r Report) (Report, error)
	AppendHistory(ctx context.Context, change StatusChange) error
	InsertComment(ctx context.Context, c Comment) (Comment, error)
}

// FactSource provides the fact-store hooks the workflow consults:
// the submission completeness gate and the audit copy of derived
// metrics written on submission.
type FactSource interface {
	ActualRevenue(ctx context.Context, companyID int64, year, month int) (float64, error)
	ActualSums(ctx context.Context, companyID int64, year, month int) (pnl.Sums, error)
	StoreDerivedActuals(ctx context.Context, companyID int64, year, month int, sums pnl.Sums) error
}
