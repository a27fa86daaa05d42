package aggregation

import (
	"math"
	"testing"

	"github.com/meridian-fin/meridian-fin/internal/directory"
	"github.com/meridian-fin/meridian-fin/internal/facts"
	"github.com/meridian-fin/meridian-fin/internal/fiscal"
)

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func testRequest() Request {
	return Request{Year: 2025, Month: 6, Mode: ModeMonth, ActorID: 1}
}

func testClusters() []directory.Cluster {
	return []directory.Cluster{{ID: 10, Name: "North", Active: true}}
}

func companyInput(id int64, name string, approved bool, actual, budget map[facts.Kind]float64) CompanyInput {
	return CompanyInput{
		Company: directory.Company{
			ID:               id,
			ClusterID:        10,
			Name:             name,
			Currency:         "USD",
			FiscalStartMonth: 1,
			Active:           true,
		},
		Periods:    []fiscal.Month{{Year: 2025, Month: 6}},
		ActualSums: actual,
		BudgetSums: budget,
		Approved:   approved,
	}
}

func TestBuildGroupSumsThenRatios(t *testing.T) {
	inputs := []CompanyInput{
		companyInput(1, "Alpha", true,
			map[facts.Kind]float64{facts.KindRevenue: 100, facts.KindGrossProfit: 30},
			map[facts.Kind]float64{facts.KindRevenue: 100}),
		companyInput(2, "Beta", true,
			map[facts.Kind]float64{facts.KindRevenue: 200, facts.KindGrossProfit: 40},
			map[facts.Kind]float64{facts.KindRevenue: 200}),
	}
	group := BuildGroup(testRequest(), testClusters(), inputs, false)

	if len(group.Clusters) != 1 {
		t.Fatalf("clusters = %d want 1", len(group.Clusters))
	}
	cluster := group.Clusters[0]

	// Company margins stay individual: 30% and 20%.
	alpha := cluster.Companies[0].Statement.Lines[facts.KindGPMargin].Actual
	if !approxEqual(alpha, 30) {
		t.Fatalf("alpha gp margin = %v want 30", alpha)
	}

	// Cluster margin is recomputed from summed bases, 70/300, never
	// the 25 an average of company margins would give.
	got := cluster.Statement.Lines[facts.KindGPMargin].Actual
	want := 70.0 / 300.0 * 100
	if !approxEqual(got, want) {
		t.Fatalf("cluster gp margin = %v want %v", got, want)
	}
	if groupMargin := group.Statement.Lines[facts.KindGPMargin].Actual; !approxEqual(groupMargin, want) {
		t.Fatalf("group gp margin = %v want %v", groupMargin, want)
	}
}

func TestBuildGroupApprovalGating(t *testing.T) {
	inputs := []CompanyInput{
		companyInput(1, "Alpha", true,
			map[facts.Kind]float64{facts.KindRevenue: 100},
			map[facts.Kind]float64{facts.KindRevenue: 80}),
		companyInput(2, "Beta", false,
			map[facts.Kind]float64{facts.KindRevenue: 200},
			map[facts.Kind]float64{facts.KindRevenue: 150}),
	}

	gated := BuildGroup(testRequest(), testClusters(), inputs, true)
	cluster := gated.Clusters[0]

	if !gated.Restricted {
		t.Fatal("expected restricted flag on gated build")
	}
	if cluster.Companies[1].Excluded != true {
		t.Fatal("unapproved company should be marked excluded")
	}
	if cluster.Companies[0].Excluded {
		t.Fatal("approved company should not be excluded")
	}
	// Only approved actuals flow up. Budget flows regardless.
	if got := gated.Statement.Lines[facts.KindRevenue].Actual; got != 100 {
		t.Fatalf("gated group revenue = %v want 100", got)
	}
	if got := gated.Statement.Lines[facts.KindRevenue].Budget; got != 230 {
		t.Fatalf("gated group budget = %v want 230", got)
	}
	if got := cluster.Companies[1].Statement.Lines[facts.KindRevenue].Actual; got != 0 {
		t.Fatalf("excluded company actual = %v want 0", got)
	}

	open := BuildGroup(testRequest(), testClusters(), inputs, false)
	if got := open.Statement.Lines[facts.KindRevenue].Actual; got != 300 {
		t.Fatalf("ungated group revenue = %v want 300", got)
	}
	if open.Restricted {
		t.Fatal("ungated build should not be restricted")
	}
}

func TestCompareLineZeroBudget(t *testing.T) {
	line := compareLine(50, 0)
	if line.Variance != 50 {
		t.Fatalf("variance = %v want 50", line.Variance)
	}
	if line.VariancePct != 0 || line.AchievementPct != 0 {
		t.Fatalf("zero-budget percentages = %v / %v want 0 / 0", line.VariancePct, line.AchievementPct)
	}
	if math.IsNaN(line.VariancePct) || math.IsInf(line.AchievementPct, 0) {
		t.Fatal("percentages must stay finite")
	}
}

func TestCompareLineArithmetic(t *testing.T) {
	line := compareLine(120, 100)
	if line.Variance != 20 {
		t.Fatalf("variance = %v want 20", line.Variance)
	}
	if !approxEqual(line.VariancePct, 20) {
		t.Fatalf("variance pct = %v want 20", line.VariancePct)
	}
	if !approxEqual(line.AchievementPct, 120) {
		t.Fatalf("achievement pct = %v want 120", line.AchievementPct)
	}
}

func TestRankCompaniesDeterministicTies(t *testing.T) {
	inputs := []CompanyInput{
		companyInput(3, "Gamma", true,
			map[facts.Kind]float64{facts.KindRevenue: 90},
			map[facts.Kind]float64{facts.KindRevenue: 100}),
		companyInput(1, "Alpha", true,
			map[facts.Kind]float64{facts.KindRevenue: 120},
			map[facts.Kind]float64{facts.KindRevenue: 100}),
		companyInput(2, "Beta", true,
			map[facts.Kind]float64{facts.KindRevenue: 120},
			map[facts.Kind]float64{facts.KindRevenue: 100}),
	}
	group := BuildGroup(testRequest(), testClusters(), inputs, false)

	top := RankCompanies(group, facts.KindRevenue, RankTop, 0)
	if len(top) != 3 {
		t.Fatalf("entries = %d want 3", len(top))
	}
	// Alpha and Beta tie at 120%; the lower id wins the tie.
	if top[0].CompanyID != 1 || top[1].CompanyID != 2 || top[2].CompanyID != 3 {
		t.Fatalf("top order = %d,%d,%d want 1,2,3", top[0].CompanyID, top[1].CompanyID, top[2].CompanyID)
	}

	bottom := RankCompanies(group, facts.KindRevenue, RankBottom, 2)
	if len(bottom) != 2 {
		t.Fatalf("limited entries = %d want 2", len(bottom))
	}
	if bottom[0].CompanyID != 3 || bottom[1].CompanyID != 1 {
		t.Fatalf("bottom order = %d,%d want 3,1", bottom[0].CompanyID, bottom[1].CompanyID)
	}
}
