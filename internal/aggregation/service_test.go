package aggregation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/meridian-fin/meridian-fin/internal/access"
	"github.com/meridian-fin/meridian-fin/internal/directory"
	"github.com/meridian-fin/meridian-fin/internal/facts"
	"github.com/meridian-fin/meridian-fin/internal/fiscal"
	"github.com/meridian-fin/meridian-fin/internal/shared"
)

type stubGrantRepo struct {
	assignments map[int64][]access.Assignment
}

func (s *stubGrantRepo) ActorBindings(_ context.Context, _ int64) ([]int64, []int64, error) {
	return nil, nil, nil
}

func (s *stubGrantRepo) ActorAssignments(_ context.Context, actorID int64) ([]access.Assignment, error) {
	return s.assignments[actorID], nil
}

func (s *stubGrantRepo) CompaniesInClusters(_ context.Context, _ []int64) ([]int64, error) {
	return nil, nil
}

type stubAggRepo struct {
	mu        sync.Mutex
	clusters  []directory.Cluster
	companies []directory.Company
	actual    map[int64]map[facts.Kind]float64
	budget    map[int64]map[facts.Kind]float64
	approved  map[int64]bool

	buildCalls int
}

func (s *stubAggRepo) Clusters(context.Context) ([]directory.Cluster, error) {
	s.mu.Lock()
	s.buildCalls++
	s.mu.Unlock()
	return s.clusters, nil
}

func (s *stubAggRepo) Companies(_ context.Context, companyIDs []int64, clusterID *int64) ([]directory.Company, error) {
	var out []directory.Company
	for _, c := range s.companies {
		if clusterID != nil && c.ClusterID != *clusterID {
			continue
		}
		if companyIDs != nil && !containsID(companyIDs, c.ID) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *stubAggRepo) SumsForPeriods(_ context.Context, companyID int64, _ []fiscal.Month, scenario facts.Scenario) (map[facts.Kind]float64, error) {
	if scenario == facts.ScenarioBudget {
		return s.budget[companyID], nil
	}
	return s.actual[companyID], nil
}

func (s *stubAggRepo) ApprovedInPeriods(_ context.Context, companyID int64, _ []fiscal.Month) (bool, error) {
	return s.approved[companyID], nil
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func intPtr(v int64) *int64 { return &v }

const (
	executiveActor  = int64(1)
	restrictedActor = int64(2)
)

func newFixture(t *testing.T) (*Service, *stubAggRepo, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	grants := &stubGrantRepo{assignments: map[int64][]access.Assignment{
		executiveActor: {{ID: 1, ActorID: executiveActor, Role: access.RoleExecutive, Active: true}},
		restrictedActor: {{
			ID: 2, ActorID: restrictedActor, CompanyID: intPtr(1),
			Role: access.RoleReviewer, Active: true,
		}},
	}}
	resolver := access.NewResolver(grants, access.DefaultConfig())

	repo := &stubAggRepo{
		clusters: []directory.Cluster{{ID: 10, Name: "North", Active: true}},
		companies: []directory.Company{
			{ID: 1, ClusterID: 10, Name: "Alpha", FiscalStartMonth: 1, Currency: "USD", Active: true},
			{ID: 2, ClusterID: 10, Name: "Beta", FiscalStartMonth: 4, Currency: "USD", Active: true},
		},
		actual: map[int64]map[facts.Kind]float64{
			1: {facts.KindRevenue: 100, facts.KindGrossProfit: 30},
			2: {facts.KindRevenue: 200, facts.KindGrossProfit: 40},
		},
		budget: map[int64]map[facts.Kind]float64{
			1: {facts.KindRevenue: 100},
			2: {facts.KindRevenue: 200},
		},
		approved: map[int64]bool{1: true, 2: false},
	}

	svc := NewService(repo, resolver, NewCache(client, time.Minute), nil)
	return svc, repo, client
}

func TestAggregateGlobalRoleSeesEverythingUngated(t *testing.T) {
	svc, _, _ := newFixture(t)

	group, err := svc.Aggregate(context.Background(), Request{
		Year: 2025, Month: 6, Mode: ModeMonth, ActorID: executiveActor,
	})
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if group.Restricted {
		t.Fatal("executive view must not be restricted")
	}
	if got := group.Statement.Lines[facts.KindRevenue].Actual; got != 300 {
		t.Fatalf("group revenue = %v want 300", got)
	}
	// Beta's draft state is visible but not excluded.
	beta := group.Clusters[0].Companies[1]
	if beta.Approved || beta.Excluded {
		t.Fatalf("beta approved=%v excluded=%v want false/false", beta.Approved, beta.Excluded)
	}
}

func TestAggregateRestrictedViewerScopedAndGated(t *testing.T) {
	svc, _, _ := newFixture(t)

	group, err := svc.Aggregate(context.Background(), Request{
		Year: 2025, Month: 6, Mode: ModeMonth, ActorID: restrictedActor,
	})
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if !group.Restricted {
		t.Fatal("restricted view must carry the restricted flag")
	}
	companies := group.Clusters[0].Companies
	if len(companies) != 1 || companies[0].CompanyID != 1 {
		t.Fatalf("restricted viewer should only see company 1, got %+v", companies)
	}
	if got := group.Statement.Lines[facts.KindRevenue].Actual; got != 100 {
		t.Fatalf("restricted group revenue = %v want 100", got)
	}
}

func TestAggregateGlobalResponsesCached(t *testing.T) {
	svc, repo, _ := newFixture(t)
	req := Request{Year: 2025, Month: 6, Mode: ModeMonth, ActorID: executiveActor}

	if _, err := svc.Aggregate(context.Background(), req); err != nil {
		t.Fatalf("first aggregate: %v", err)
	}
	if _, err := svc.Aggregate(context.Background(), req); err != nil {
		t.Fatalf("second aggregate: %v", err)
	}
	if repo.buildCalls != 1 {
		t.Fatalf("builds = %d want 1 (second call served from cache)", repo.buildCalls)
	}
}

func TestAggregateRestrictedResponsesNeverCached(t *testing.T) {
	svc, repo, _ := newFixture(t)
	req := Request{Year: 2025, Month: 6, Mode: ModeMonth, ActorID: restrictedActor}

	if _, err := svc.Aggregate(context.Background(), req); err != nil {
		t.Fatalf("first aggregate: %v", err)
	}
	if _, err := svc.Aggregate(context.Background(), req); err != nil {
		t.Fatalf("second aggregate: %v", err)
	}
	if repo.buildCalls != 2 {
		t.Fatalf("builds = %d want 2 (scope is resolved fresh per call)", repo.buildCalls)
	}
}

func TestAggregateCacheBumpInvalidates(t *testing.T) {
	svc, repo, _ := newFixture(t)
	req := Request{Year: 2025, Month: 6, Mode: ModeMonth, ActorID: executiveActor}

	if _, err := svc.Aggregate(context.Background(), req); err != nil {
		t.Fatalf("first aggregate: %v", err)
	}
	if err := svc.cache.Bump(context.Background()); err != nil {
		t.Fatalf("bump: %v", err)
	}
	if _, err := svc.Aggregate(context.Background(), req); err != nil {
		t.Fatalf("post-bump aggregate: %v", err)
	}
	if repo.buildCalls != 2 {
		t.Fatalf("builds = %d want 2 after invalidation", repo.buildCalls)
	}
}

func TestAggregateClusterFilter(t *testing.T) {
	svc, repo, _ := newFixture(t)
	repo.companies = append(repo.companies, directory.Company{
		ID: 3, ClusterID: 20, Name: "Gamma", FiscalStartMonth: 1, Currency: "USD", Active: true,
	})
	repo.clusters = append(repo.clusters, directory.Cluster{ID: 20, Name: "South", Active: true})
	repo.actual[3] = map[facts.Kind]float64{facts.KindRevenue: 500}
	repo.approved[3] = true

	group, err := svc.Aggregate(context.Background(), Request{
		Year: 2025, Month: 6, Mode: ModeMonth, ActorID: executiveActor, ClusterID: intPtr(10),
	})
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if got := group.Statement.Lines[facts.KindRevenue].Actual; got != 300 {
		t.Fatalf("filtered revenue = %v want 300", got)
	}
}

func TestAggregateValidation(t *testing.T) {
	svc, _, _ := newFixture(t)

	_, err := svc.Aggregate(context.Background(), Request{
		Year: 2025, Month: 13, Mode: ModeMonth, ActorID: executiveActor,
	})
	if !errors.Is(err, shared.ErrValidation) {
		t.Fatalf("err = %v want validation error", err)
	}
	_, err = svc.Aggregate(context.Background(), Request{
		Year: 2025, Month: 6, Mode: "WEEK", ActorID: executiveActor,
	})
	if !errors.Is(err, shared.ErrValidation) {
		t.Fatalf("err = %v want validation error", err)
	}
}

func TestRankRejectsUnknownMetric(t *testing.T) {
	svc, _, _ := newFixture(t)

	_, err := svc.Rank(context.Background(), Request{
		Year: 2025, Month: 6, Mode: ModeMonth, ActorID: executiveActor,
	}, facts.Kind("BOGUS"), RankTop, 5)
	if !errors.Is(err, shared.ErrValidation) {
		t.Fatalf("err = %v want validation error", err)
	}
}
