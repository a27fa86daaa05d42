package facts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/meridian-fin/meridian-fin/internal/access"
	"github.com/meridian-fin/meridian-fin/internal/fiscal"
	"github.com/meridian-fin/meridian-fin/internal/shared"
)

// Repository abstracts fact persistence.
type Repository interface {
	Upsert(ctx context.Context, in EntryInput) error
	ListFacts(ctx context.Context, companyID int64, year, month int) ([]Fact, error)
	SumsForPeriods(ctx context.Context, companyID int64, periods []fiscal.Month, scenario Scenario) (map[Kind]float64, error)
}

// ReportGate answers whether ACTUAL facts for a period may still be
// edited. Implemented by the report workflow; bound after
// construction because the workflow consumes this package's store.
type ReportGate interface {
	EditableForActuals(ctx context.Context, companyID int64, year, month int) (bool, error)
}

// CacheInvalidator drops derived summary caches after a fact write.
type CacheInvalidator interface {
	Bump(ctx context.Context) error
}

// ErrPeriodLocked blocks ACTUAL edits once the owning report left
// DRAFT/REJECTED.
var ErrPeriodLocked = fmt.Errorf("facts: period is locked for actuals: %w", shared.ErrInvalidTransition)

// Service guards the only write path into the fact store.
type Service struct {
	repo        Repository
	resolver    *access.Resolver
	gate        ReportGate
	invalidator CacheInvalidator
	audit       *shared.AuditLogger
	logger      *slog.Logger
}

// NewService constructs a Service. BindGate must be called before the
// first ACTUAL entry is accepted.
func NewService(repo Repository, resolver *access.Resolver, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{repo: repo, resolver: resolver, audit: audit, logger: logger}
}

// BindGate attaches the report workflow gate.
func (s *Service) BindGate(gate ReportGate) {
	s.gate = gate
}

// BindInvalidator attaches a summary cache to bump after writes.
// Optional; without one, cached summaries age out by TTL.
func (s *Service) BindInvalidator(inv CacheInvalidator) {
	s.invalidator = inv
}

// Enter upserts a data-entry batch for one company period. ACTUAL
// batches are only accepted while the owning report is editable;
// BUDGET batches are never gated by report state.
func (s *Service) Enter(ctx context.Context, in EntryInput) error {
	if s == nil || s.repo == nil {
		return errors.New("facts: service not initialised")
	}
	if err := in.Validate(); err != nil {
		return err
	}
	ok, err := s.resolver.CanAccess(ctx, in.ActorID, in.CompanyID)
	if err != nil {
		return err
	}
	if !ok {
		return shared.ErrNotFound
	}
	if in.Scenario == ScenarioActual {
		if s.gate == nil {
			return errors.New("facts: report gate not bound")
		}
		editable, err := s.gate.EditableForActuals(ctx, in.CompanyID, in.Year, in.Month)
		if err != nil {
			return err
		}
		if !editable {
			return ErrPeriodLocked
		}
	}
	if err := s.repo.Upsert(ctx, in); err != nil {
		return err
	}
	if s.invalidator != nil {
		if err := s.invalidator.Bump(ctx); err != nil && s.logger != nil {
			s.logger.Warn("summary cache bump", slog.Any("error", err))
		}
	}
	s.recordAudit(ctx, in)
	return nil
}

// ListFacts returns all facts for a company period the actor may see.
func (s *Service) ListFacts(ctx context.Context, companyID int64, year, month int, actorID int64) ([]Fact, error) {
	ok, err := s.resolver.CanAccess(ctx, actorID, companyID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, shared.ErrNotFound
	}
	return s.repo.ListFacts(ctx, companyID, year, month)
}

func (s *Service) recordAudit(ctx context.Context, in EntryInput) {
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  in.ActorID,
		Action:   "facts.enter",
		Entity:   "company_period",
		EntityID: fmt.Sprintf("%d:%04d-%02d", in.CompanyID, in.Year, in.Month),
		Meta: map[string]any{
			"scenario": string(in.Scenario),
			"lines":    strconv.Itoa(len(in.Lines)),
		},
	}); err != nil && s.logger != nil {
		s.logger.Warn("audit record", slog.Any("error", err))
	}
}
