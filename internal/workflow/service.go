package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/meridian-fin/meridian-fin/internal/pnl"
	"github.com/meridian-fin/meridian-fin/internal/shared"
)

// Authorizer is the slice of the access resolver the workflow needs.
type Authorizer interface {
	CanAccess(ctx context.Context, actorID, companyID int64) (bool, error)
	ReviewAuthority(ctx context.Context, actorID, companyID int64) (bool, error)
}

// Service orchestrates report transitions. All mutable state lives in
// the store; the service itself is safe for concurrent use.
type Service struct {
	repo    Repository
	authz   Authorizer
	factSrc FactSource
	audit   *shared.AuditLogger
	logger  *slog.Logger
	now     func() time.Time
	printer *message.Printer
}

// NewService constructs a Service.
func NewService(repo Repository, authz Authorizer, factSrc FactSource, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{
		repo:    repo,
		authz:   authz,
		factSrc: factSrc,
		audit:   audit,
		logger:  logger,
		now:     time.Now,
		printer: message.NewPrinter(language.English),
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateOrGetDraft returns the report for (company, year, month),
// creating a DRAFT lazily on first touch. Idempotent.
func (s *Service) CreateOrGetDraft(ctx context.Context, companyID int64, year, month int, actorID int64) (Report, error) {
	if s == nil || s.repo == nil {
		return Report{}, ErrNotInitialised
	}
	if err := validatePeriod(year, month); err != nil {
		return Report{}, err
	}
	if err := s.requireAccess(ctx, actorID, companyID); err != nil {
		return Report{}, err
	}
	report, err := s.repo.GetReportByKey(ctx, companyID, year, month)
	if err == nil {
		return report, nil
	}
	if !isNotFound(err) {
		return Report{}, err
	}
	return s.repo.InsertReport(ctx, companyID, year, month)
}

// Submit moves a DRAFT or REJECTED report to SUBMITTED. The
// completeness gate requires a non-zero ACTUAL revenue fact for the
// period. Derived P&L metrics are written back to the fact store for
// audit after the transition commits.
func (s *Service) Submit(ctx context.Context, reportID uuid.UUID, actorID int64) (Outcome, error) {
	if s == nil || s.repo == nil {
		return Outcome{}, ErrNotInitialised
	}
	report, err := s.loadAccessible(ctx, reportID, actorID)
	if err != nil {
		return Outcome{}, err
	}

	revenue, err := s.factSrc.ActualRevenue(ctx, report.CompanyID, report.Year, report.Month)
	if err != nil {
		return Outcome{}, err
	}
	if revenue == 0 {
		return Outcome{}, ErrRevenueMissing
	}

	var updated Report
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetReportForUpdate(ctx, reportID)
		if err != nil {
			return err
		}
		if !CanTransition(current.Status, StatusSubmitted) {
			return invalidTransition(current.Status, StatusSubmitted)
		}
		from := current.Status
		now := s.now()
		current.Status = StatusSubmitted
		current.SubmittedBy = &actorID
		current.SubmittedAt = &now
		updated, err = tx.UpdateReport(ctx, current)
		if err != nil {
			return err
		}
		return tx.AppendHistory(ctx, StatusChange{
			ReportID: reportID,
			From:     from,
			To:       StatusSubmitted,
			ActorID:  actorID,
			At:       now,
		})
	})
	if err != nil {
		return Outcome{}, err
	}

	s.storeDerived(ctx, updated)
	s.recordAudit(ctx, actorID, "report.submit", updated)

	outcome := Outcome{Report: updated}
	reviewers, err := s.repo.ListCompanyReviewers(ctx, updated.CompanyID)
	if err != nil {
		s.warn("list reviewers", err)
		return outcome, nil
	}
	period := periodLabel(updated.Year, updated.Month)
	for _, reviewer := range reviewers {
		title := "Report submitted"
		msg := fmt.Sprintf("Report for period %s is awaiting your review. Revenue: %s.",
			period, s.printer.Sprintf("%.2f", revenue))
		outcome.Effects = append(outcome.Effects,
			notificationEffect(reviewer, "REPORT_SUBMITTED", title, msg, reportLink(reportID)),
			emailEffect(reviewer, "report_submitted", map[string]string{
				"period":  period,
				"revenue": s.printer.Sprintf("%.2f", revenue),
				"link":    reportLink(reportID),
			}),
		)
		outcome.Notified = append(outcome.Notified, reviewer.ActorID)
	}
	return outcome, nil
}

// Approve moves a SUBMITTED report to APPROVED. Requires review
// authority over the report's company.
func (s *Service) Approve(ctx context.Context, reportID uuid.UUID, actorID int64) (Outcome, error) {
	return s.review(ctx, reportID, actorID, StatusApproved, "")
}

// Reject moves a SUBMITTED report to REJECTED. The reason is
// mandatory and is also recorded as a system comment.
func (s *Service) Reject(ctx context.Context, reportID uuid.UUID, actorID int64, reason string) (Outcome, error) {
	if strings.TrimSpace(reason) == "" {
		return Outcome{}, ErrReasonRequired
	}
	return s.review(ctx, reportID, actorID, StatusRejected, strings.TrimSpace(reason))
}

func (s *Service) review(ctx context.Context, reportID uuid.UUID, actorID int64, target Status, reason string) (Outcome, error) {
	if s == nil || s.repo == nil {
		return Outcome{}, ErrNotInitialised
	}
	report, err := s.loadAccessible(ctx, reportID, actorID)
	if err != nil {
		return Outcome{}, err
	}
	allowed, err := s.authz.ReviewAuthority(ctx, actorID, report.CompanyID)
	if err != nil {
		return Outcome{}, err
	}
	if !allowed {
		return Outcome{}, fmt.Errorf("workflow: review authority required: %w", shared.ErrAccessDenied)
	}

	var updated Report
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetReportForUpdate(ctx, reportID)
		if err != nil {
			return err
		}
		if !CanTransition(current.Status, target) {
			return invalidTransition(current.Status, target)
		}
		from := current.Status
		now := s.now()
		current.Status = target
		current.ReviewedBy = &actorID
		current.ReviewedAt = &now
		current.RejectReason = reason
		updated, err = tx.UpdateReport(ctx, current)
		if err != nil {
			return err
		}
		if err := tx.AppendHistory(ctx, StatusChange{
			ReportID: reportID,
			From:     from,
			To:       target,
			ActorID:  actorID,
			Reason:   reason,
			At:       now,
		}); err != nil {
			return err
		}
		if target == StatusRejected {
			_, err = tx.InsertComment(ctx, Comment{
				ReportID: reportID,
				ActorID:  actorID,
				Content:  "Rejected: " + reason,
				System:   true,
				At:       now,
			})
			return err
		}
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}

	action := "report.approve"
	if target == StatusRejected {
		action = "report.reject"
	}
	s.recordAudit(ctx, actorID, action, updated)

	outcome := Outcome{Report: updated}
	if updated.SubmittedBy == nil {
		return outcome, nil
	}
	submitter, err := s.repo.GetRecipient(ctx, *updated.SubmittedBy)
	if err != nil {
		s.warn("lookup submitter", err)
		return outcome, nil
	}
	period := periodLabel(updated.Year, updated.Month)
	if target == StatusApproved {
		msg := fmt.Sprintf("Your report for period %s has been approved.", period)
		outcome.Effects = append(outcome.Effects,
			notificationEffect(submitter, "REPORT_APPROVED", "Report approved", msg, reportLink(reportID)),
			emailEffect(submitter, "report_approved", map[string]string{
				"period": period,
				"link":   reportLink(reportID),
			}),
		)
	} else {
		msg := fmt.Sprintf("Your report for period %s was rejected: %s", period, reason)
		outcome.Effects = append(outcome.Effects,
			notificationEffect(submitter, "REPORT_REJECTED", "Report rejected", msg, reportLink(reportID)),
			emailEffect(submitter, "report_rejected", map[string]string{
				"period": period,
				"reason": reason,
				"link":   reportLink(reportID),
			}),
		)
	}
	outcome.Notified = append(outcome.Notified, submitter.ActorID)
	return outcome, nil
}

// AddComment appends a free-text comment. Legal in any state for any
// actor with read access; never changes status.
func (s *Service) AddComment(ctx context.Context, reportID uuid.UUID, actorID int64, content string) (Comment, error) {
	if s == nil || s.repo == nil {
		return Comment{}, ErrNotInitialised
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return Comment{}, fmt.Errorf("workflow: comment content required: %w", shared.ErrValidation)
	}
	if _, err := s.loadAccessible(ctx, reportID, actorID); err != nil {
		return Comment{}, err
	}
	return s.repo.InsertComment(ctx, Comment{
		ReportID: reportID,
		ActorID:  actorID,
		Content:  content,
		At:       s.now(),
	})
}

// GetReport returns a report the actor may read.
func (s *Service) GetReport(ctx context.Context, reportID uuid.UUID, actorID int64) (Report, error) {
	if s == nil || s.repo == nil {
		return Report{}, ErrNotInitialised
	}
	return s.loadAccessible(ctx, reportID, actorID)
}

// Timeline returns the history and comments of a report the actor
// may read, each ordered by time.
func (s *Service) Timeline(ctx context.Context, reportID uuid.UUID, actorID int64) ([]StatusChange, []Comment, error) {
	if s == nil || s.repo == nil {
		return nil, nil, ErrNotInitialised
	}
	if _, err := s.loadAccessible(ctx, reportID, actorID); err != nil {
		return nil, nil, err
	}
	history, err := s.repo.ListHistory(ctx, reportID)
	if err != nil {
		return nil, nil, err
	}
	comments, err := s.repo.ListComments(ctx, reportID)
	if err != nil {
		return nil, nil, err
	}
	return history, comments, nil
}

// EditableForActuals reports whether ACTUAL facts for the period are
// still editable. A period nobody has touched yet has no report and
// is editable.
func (s *Service) EditableForActuals(ctx context.Context, companyID int64, year, month int) (bool, error) {
	report, err := s.repo.GetReportByKey(ctx, companyID, year, month)
	if err != nil {
		if isNotFound(err) {
			return true, nil
		}
		return false, err
	}
	return report.Status.Editable(), nil
}

func (s *Service) loadAccessible(ctx context.Context, reportID uuid.UUID, actorID int64) (Report, error) {
	report, err := s.repo.GetReport(ctx, reportID)
	if err != nil {
		return Report{}, err
	}
	if err := s.requireAccess(ctx, actorID, report.CompanyID); err != nil {
		return Report{}, err
	}
	return report, nil
}

// requireAccess maps a scope miss to ErrNotFound so the existence of
// another tenant's report is never leaked.
func (s *Service) requireAccess(ctx context.Context, actorID, companyID int64) error {
	ok, err := s.authz.CanAccess(ctx, actorID, companyID)
	if err != nil {
		return err
	}
	if !ok {
		return shared.ErrNotFound
	}
	return nil
}

func (s *Service) storeDerived(ctx context.Context, report Report) {
	sums, err := s.factSrc.ActualSums(ctx, report.CompanyID, report.Year, report.Month)
	if err != nil {
		s.warn("load actual sums", err)
		return
	}
	derived := pnl.Compute(sums)
	if err := s.factSrc.StoreDerivedActuals(ctx, report.CompanyID, report.Year, report.Month, derived.AsSums()); err != nil {
		s.warn("store derived actuals", err)
	}
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, report Report) {
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "report",
		EntityID: report.ID.String(),
		Meta: map[string]any{
			"company_id": report.CompanyID,
			"year":       report.Year,
			"month":      report.Month,
			"status":     string(report.Status),
		},
	}); err != nil {
		s.warn("audit record", err)
	}
}

func (s *Service) warn(msg string, err error) {
	if s.logger != nil {
		s.logger.Warn(msg, slog.Any("error", err))
	}
}

func notificationEffect(to Recipient, kind, title, msg, link string) SideEffect {
	return SideEffect{
		Kind:             EffectNotification,
		Recipient:        to,
		NotificationKind: kind,
		Title:            title,
		Message:          msg,
		Link:             link,
	}
}

func emailEffect(to Recipient, template string, vars map[string]string) SideEffect {
	return SideEffect{
		Kind:      EffectEmail,
		Recipient: to,
		Template:  template,
		Variables: vars,
	}
}

func periodLabel(year, month int) string {
	return fmt.Sprintf("%04d-%02d", year, month)
}

func reportLink(id uuid.UUID) string {
	return "/reports/" + id.String()
}

func isNotFound(err error) bool {
	return errors.Is(err, shared.ErrNotFound)
}
