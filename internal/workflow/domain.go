// Package workflow governs the lifecycle of one company's monthly
// report: draft, submission, review, and the append-only audit trail
// behind it.
package workflow

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-fin/meridian-fin/internal/shared"
)

// Status enumerates report lifecycle states.
type Status string

const (
	// StatusDraft marks a report still being entered.
	StatusDraft Status = "DRAFT"
	// StatusSubmitted marks a report awaiting review.
	StatusSubmitted Status = "SUBMITTED"
	// StatusApproved is terminal.
	StatusApproved Status = "APPROVED"
	// StatusRejected permits data edits and resubmission.
	StatusRejected Status = "REJECTED"
	// StatusCorrectionRequired is reserved in the schema; no
	// transition produces or consumes it.
	StatusCorrectionRequired Status = "CORRECTION_REQUIRED"
)

// transitions is the complete legal transition table. Any history row
// whose (from, to) pair is not listed here indicates a corrupted
// write path.
var transitions = map[Status][]Status{
	StatusDraft:              {StatusSubmitted},
	StatusSubmitted:          {StatusApproved, StatusRejected},
	StatusRejected:           {StatusSubmitted},
	StatusApproved:           {},
	StatusCorrectionRequired: {},
}

// CanTransition reports whether from → to is a legal transition.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Editable reports whether ACTUAL facts for the report's period may
// still be changed.
func (s Status) Editable() bool {
	return s == StatusDraft || s == StatusRejected
}

// Report is one company's submission for a (year, month) period.
type Report struct {
	ID           uuid.UUID
	CompanyID    int64
	Year         int
	Month        int
	Status       Status
	SubmittedBy  *int64
	SubmittedAt  *time.Time
	ReviewedBy   *int64
	ReviewedAt   *time.Time
	RejectReason string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// StatusChange is one append-only audit trail row.
type StatusChange struct {
	ID       int64
	ReportID uuid.UUID
	From     Status
	To       Status
	ActorID  int64
	Reason   string
	At       time.Time
}

// Comment is a free-text note on a report. System comments are
// written by the workflow itself, e.g. on rejection.
type Comment struct {
	ID       int64
	ReportID uuid.UUID
	ActorID  int64
	Content  string
	System   bool
	At       time.Time
}

// Recipient identifies a user a side effect should reach.
type Recipient struct {
	ActorID int64
	Name    string
	Email   string
}

// EffectKind tags an intended side effect.
type EffectKind string

const (
	// EffectNotification creates an in-app notification row.
	EffectNotification EffectKind = "NOTIFICATION"
	// EffectEmail enqueues an outbound templated email.
	EffectEmail EffectKind = "EMAIL"
)

// SideEffect is one intended side effect of a transition. The core
// never dispatches these itself; the transport layer hands them to
// the notification dispatcher after the transaction has committed.
type SideEffect struct {
	Kind      EffectKind
	Recipient Recipient
	// Notification fields.
	NotificationKind string
	Title            string
	Message          string
	Link             string
	// Email fields.
	Template  string
	Variables map[string]string
}

// Outcome bundles the updated report with the side effects the
// caller must dispatch.
type Outcome struct {
	Report   Report
	Notified []int64
	Effects  []SideEffect
}

var (
	// ErrReasonRequired blocks rejection without a reason.
	ErrReasonRequired = fmt.Errorf("workflow: rejection reason required: %w", shared.ErrValidation)
	// ErrRevenueMissing blocks submission until a non-zero ACTUAL
	// revenue fact exists for the period.
	ErrRevenueMissing = fmt.Errorf("workflow: no actual revenue entered for period: %w", shared.ErrInvalidTransition)
	// ErrNotInitialised guards nil services.
	ErrNotInitialised = errors.New("workflow: service not initialised")
)

func invalidTransition(from, to Status) error {
	return fmt.Errorf("workflow: report is %s, cannot move to %s: %w", from, to, shared.ErrInvalidTransition)
}

func validatePeriod(year, month int) error {
	if month < 1 || month > 12 {
		return fmt.Errorf("workflow: month %d out of range: %w", month, shared.ErrValidation)
	}
	if year < 2000 || year > 2200 {
		return fmt.Errorf("workflow: year %d out of range: %w", year, shared.ErrValidation)
	}
	return nil
}
