package aggregation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/meridian-fin/meridian-fin/internal/access"
	"github.com/meridian-fin/meridian-fin/internal/directory"
	"github.com/meridian-fin/meridian-fin/internal/facts"
	"github.com/meridian-fin/meridian-fin/internal/fiscal"
	"github.com/meridian-fin/meridian-fin/internal/shared"
)

// ErrNotInitialised indicates the service was constructed without its
// collaborators.
var ErrNotInitialised = errors.New("aggregation: service not initialised")

// Service answers aggregation queries scoped to the caller's access.
type Service struct {
	repo     Repository
	resolver *access.Resolver
	cache    *Cache
	logger   *slog.Logger

	builds singleflight.Group
}

// NewService wires the aggregation service. Cache may be nil.
func NewService(repo Repository, resolver *access.Resolver, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, resolver: resolver, cache: cache, logger: logger}
}

// Aggregate builds the group → cluster → company summary tree for the
// request. Global-role callers get the full ungated tree served
// through the versioned cache with concurrent identical builds
// collapsed. Restricted callers get a freshly built, gated tree
// limited to their accessible companies; those responses are never
// cached because access is resolved per call.
func (s *Service) Aggregate(ctx context.Context, req Request) (GroupSummary, error) {
	if s == nil || s.repo == nil || s.resolver == nil {
		return GroupSummary{}, ErrNotInitialised
	}
	if err := req.Validate(); err != nil {
		return GroupSummary{}, err
	}

	scope, err := s.resolver.ResolveAccessibleCompanies(ctx, req.ActorID)
	if err != nil {
		return GroupSummary{}, fmt.Errorf("aggregation: resolve scope: %w", err)
	}
	if !scope.All() {
		return s.build(ctx, req, scope.CompanyIDs(), true)
	}

	key := keyGroup(req)
	cacheKey, err := s.cache.BuildKey(ctx, key)
	if err != nil {
		s.logger.Warn("aggregation cache key unavailable, building direct", "error", err)
		return s.build(ctx, req, nil, false)
	}

	resultChan := s.builds.DoChan(cacheKey, func() (interface{}, error) {
		var out GroupSummary
		err := s.cache.FetchJSON(context.WithoutCancel(ctx), cacheKey, &out, func(ctx context.Context) (interface{}, error) {
			return s.build(ctx, req, nil, false)
		})
		return out, err
	})
	select {
	case <-ctx.Done():
		return GroupSummary{}, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return GroupSummary{}, res.Err
		}
		return res.Val.(GroupSummary), nil
	}
}

// Rank returns the top or bottom companies by achievement on one
// metric, built on the same gated tree the caller would see.
func (s *Service) Rank(ctx context.Context, req Request, metric facts.Kind, direction RankDirection, limit int) ([]RankEntry, error) {
	if !metric.Valid() {
		return nil, fmt.Errorf("aggregation: unknown metric %q: %w", metric, shared.ErrValidation)
	}
	if direction != RankTop && direction != RankBottom {
		return nil, fmt.Errorf("aggregation: unknown direction %q: %w", direction, shared.ErrValidation)
	}
	group, err := s.Aggregate(ctx, req)
	if err != nil {
		return nil, err
	}
	return RankCompanies(group, metric, direction, limit), nil
}

func (s *Service) build(ctx context.Context, req Request, companyFilter []int64, gated bool) (GroupSummary, error) {
	clusters, err := s.repo.Clusters(ctx)
	if err != nil {
		return GroupSummary{}, fmt.Errorf("aggregation: load clusters: %w", err)
	}
	companies, err := s.repo.Companies(ctx, companyFilter, req.ClusterID)
	if err != nil {
		return GroupSummary{}, fmt.Errorf("aggregation: load companies: %w", err)
	}

	inputs := make([]CompanyInput, len(companies))
	g, gctx := errgroup.WithContext(ctx)
	for i, company := range companies {
		i, company := i, company
		g.Go(func() error {
			in, err := s.loadCompany(gctx, req, company)
			if err != nil {
				return fmt.Errorf("aggregation: company %d: %w", company.ID, err)
			}
			inputs[i] = in
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return GroupSummary{}, err
	}
	return BuildGroup(req, clusters, inputs, gated), nil
}

func (s *Service) loadCompany(ctx context.Context, req Request, company directory.Company) (CompanyInput, error) {
	periods, err := s.periodsFor(req, company)
	if err != nil {
		return CompanyInput{}, err
	}
	actual, err := s.repo.SumsForPeriods(ctx, company.ID, periods, facts.ScenarioActual)
	if err != nil {
		return CompanyInput{}, err
	}
	budget, err := s.repo.SumsForPeriods(ctx, company.ID, periods, facts.ScenarioBudget)
	if err != nil {
		return CompanyInput{}, err
	}
	approved, err := s.repo.ApprovedInPeriods(ctx, company.ID, periods)
	if err != nil {
		return CompanyInput{}, err
	}
	return CompanyInput{
		Company:    company,
		Periods:    periods,
		ActualSums: actual,
		BudgetSums: budget,
		Approved:   approved,
	}, nil
}

// periodsFor expands the request into the company's period window.
// YTD windows follow each company's own fiscal start month.
func (s *Service) periodsFor(req Request, company directory.Company) ([]fiscal.Month, error) {
	if req.Mode == ModeMonth {
		return []fiscal.Month{{Year: req.Year, Month: req.Month}}, nil
	}
	return fiscal.YTDMonths(req.Year, req.Month, company.FiscalStartMonth)
}
