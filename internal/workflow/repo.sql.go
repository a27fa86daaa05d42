package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-fin/meridian-fin/internal/shared"
)

const reportColumns = `id, company_id, year, month, status, submitted_by, submitted_at,
reviewed_by, reviewed_at, reject_reason, created_at, updated_at`

// PGRepository persists reports, history and comments in PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

type pgQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// WithTx executes fn inside a repeatable-read transaction.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("workflow: repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(ctx, &pgTxRepository{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// GetReport fetches one report by id.
func (r *PGRepository) GetReport(ctx context.Context, id uuid.UUID) (Report, error) {
	return scanReport(r.pool.QueryRow(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE id = $1`, id))
}

// GetReportByKey fetches the report for (company, year, month).
func (r *PGRepository) GetReportByKey(ctx context.Context, companyID int64, year, month int) (Report, error) {
	return scanReport(r.pool.QueryRow(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE company_id = $1 AND year = $2 AND month = $3`,
		companyID, year, month))
}

// InsertReport creates a DRAFT report. A concurrent duplicate insert
// resolves to the existing row so draft creation stays idempotent.
func (r *PGRepository) InsertReport(ctx context.Context, companyID int64, year, month int) (Report, error) {
	report, err := scanReport(r.pool.QueryRow(ctx,
		`INSERT INTO reports (id, company_id, year, month, status)
VALUES ($1, $2, $3, $4, $5)
RETURNING `+reportColumns,
		uuid.New(), companyID, year, month, string(StatusDraft)))
	if err == nil {
		return report, nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return r.GetReportByKey(ctx, companyID, year, month)
	}
	return Report{}, err
}

// ListHistory returns the append-only status trail ordered by time.
func (r *PGRepository) ListHistory(ctx context.Context, reportID uuid.UUID) ([]StatusChange, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, report_id, from_status, to_status, actor_id, reason, at
FROM report_status_history WHERE report_id = $1 ORDER BY at, id`, reportID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var history []StatusChange
	for rows.Next() {
		var h StatusChange
		var from, to string
		if err := rows.Scan(&h.ID, &h.ReportID, &from, &to, &h.ActorID, &h.Reason, &h.At); err != nil {
			return nil, err
		}
		h.From = Status(from)
		h.To = Status(to)
		history = append(history, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return history, nil
}

// ListComments returns report comments ordered by time.
func (r *PGRepository) ListComments(ctx context.Context, reportID uuid.UUID) ([]Comment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, report_id, actor_id, content, is_system, at
FROM report_comments WHERE report_id = $1 ORDER BY at, id`, reportID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var comments []Comment
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.ReportID, &c.ActorID, &c.Content, &c.System, &c.At); err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return comments, nil
}

// InsertComment appends a comment outside any transition.
func (r *PGRepository) InsertComment(ctx context.Context, c Comment) (Comment, error) {
	return insertComment(ctx, r.pool, c)
}

// ListCompanyReviewers returns active reviewers whose grant covers
// the company directly or through its cluster.
func (r *PGRepository) ListCompanyReviewers(ctx context.Context, companyID int64) ([]Recipient, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT u.id, u.name, u.email
FROM role_assignments ra
JOIN users u ON u.id = ra.actor_id AND u.is_active
JOIN companies c ON c.id = $1
WHERE ra.is_active
  AND ra.role = 'REVIEWER'
  AND (ra.company_id = c.id OR ra.cluster_id = c.cluster_id)
ORDER BY u.id`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var recipients []Recipient
	for rows.Next() {
		var rec Recipient
		if err := rows.Scan(&rec.ActorID, &rec.Name, &rec.Email); err != nil {
			return nil, err
		}
		recipients = append(recipients, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return recipients, nil
}

// GetRecipient looks up a user for side-effect delivery.
func (r *PGRepository) GetRecipient(ctx context.Context, actorID int64) (Recipient, error) {
	var rec Recipient
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, email FROM users WHERE id = $1`, actorID,
	).Scan(&rec.ActorID, &rec.Name, &rec.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Recipient{}, shared.ErrNotFound
		}
		return Recipient{}, err
	}
	return rec, nil
}

// GetCompanyName resolves a company display name for messages.
func (r *PGRepository) GetCompanyName(ctx context.Context, companyID int64) (string, error) {
	var name string
	err := r.pool.QueryRow(ctx, `SELECT name FROM companies WHERE id = $1`, companyID).Scan(&name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", shared.ErrNotFound
		}
		return "", err
	}
	return name, nil
}

type pgTxRepository struct {
	tx pgx.Tx
}

// GetReportForUpdate locks the report row for the transition.
func (r *pgTxRepository) GetReportForUpdate(ctx context.Context, id uuid.UUID) (Report, error) {
	return scanReport(r.tx.QueryRow(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE id = $1 FOR UPDATE`, id))
}

// UpdateReport writes the status transition fields.
func (r *pgTxRepository) UpdateReport(ctx context.Context, report Report) (Report, error) {
	return scanReport(r.tx.QueryRow(ctx,
		`UPDATE reports
SET status = $2, submitted_by = $3, submitted_at = $4,
    reviewed_by = $5, reviewed_at = $6, reject_reason = $7, updated_at = NOW()
WHERE id = $1
RETURNING `+reportColumns,
		report.ID, string(report.Status), report.SubmittedBy, report.SubmittedAt,
		report.ReviewedBy, report.ReviewedAt, report.RejectReason))
}

// AppendHistory writes one audit trail row.
func (r *pgTxRepository) AppendHistory(ctx context.Context, change StatusChange) error {
	_, err := r.tx.Exec(ctx,
		`INSERT INTO report_status_history (report_id, from_status, to_status, actor_id, reason, at)
VALUES ($1, $2, $3, $4, $5, $6)`,
		change.ReportID, string(change.From), string(change.To), change.ActorID, change.Reason, change.At)
	return err
}

// InsertComment appends a comment inside the transition.
func (r *pgTxRepository) InsertComment(ctx context.Context, c Comment) (Comment, error) {
	return insertComment(ctx, r.tx, c)
}

func insertComment(ctx context.Context, q pgQuerier, c Comment) (Comment, error) {
	err := q.QueryRow(ctx,
		`INSERT INTO report_comments (report_id, actor_id, content, is_system, at)
VALUES ($1, $2, $3, $4, COALESCE($5, NOW()))
RETURNING id, at`,
		c.ReportID, c.ActorID, c.Content, c.System, c.At).Scan(&c.ID, &c.At)
	if err != nil {
		return Comment{}, err
	}
	return c, nil
}

func scanReport(row pgx.Row) (Report, error) {
	var r Report
	var status string
	err := row.Scan(&r.ID, &r.CompanyID, &r.Year, &r.Month, &status,
		&r.SubmittedBy, &r.SubmittedAt, &r.ReviewedBy, &r.ReviewedAt,
		&r.RejectReason, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Report{}, shared.ErrNotFound
		}
		return Report{}, err
	}
	r.Status = Status(status)
	return r, nil
}
