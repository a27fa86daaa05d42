package aggregation

import (
	"sort"

	"github.com/meridian-fin/meridian-fin/internal/directory"
	"github.com/meridian-fin/meridian-fin/internal/facts"
	"github.com/meridian-fin/meridian-fin/internal/fiscal"
	"github.com/meridian-fin/meridian-fin/internal/pnl"
)

// CompanyInput is the raw material for one company's summary.
type CompanyInput struct {
	Company    directory.Company
	Periods    []fiscal.Month
	ActualSums map[facts.Kind]float64
	BudgetSums map[facts.Kind]float64
	// Approved reports whether the approval gate passes for the
	// queried window.
	Approved bool
}

// BuildGroup assembles the full tree. When gated is true, companies
// without an approved report contribute nothing to ACTUAL sums;
// their budget figures still count. Margins at cluster and group
// level are recomputed from summed bases, never averaged.
func BuildGroup(req Request, clusters []directory.Cluster, inputs []CompanyInput, gated bool) GroupSummary {
	clusterNames := make(map[int64]string, len(clusters))
	for _, c := range clusters {
		clusterNames[c.ID] = c.Name
	}

	byCluster := make(map[int64][]CompanySummary)
	clusterActual := make(map[int64]map[facts.Kind]float64)
	clusterBudget := make(map[int64]map[facts.Kind]float64)
	groupActual := make(map[facts.Kind]float64)
	groupBudget := make(map[facts.Kind]float64)

	for _, in := range inputs {
		excluded := gated && !in.Approved
		actual := in.ActualSums
		if excluded {
			actual = nil
		}

		summary := CompanySummary{
			CompanyID:        in.Company.ID,
			Name:             in.Company.Name,
			Currency:         in.Company.Currency,
			FiscalStartMonth: in.Company.FiscalStartMonth,
			Periods:          in.Periods,
			Approved:         in.Approved,
			Excluded:         excluded,
			Statement:        buildStatement(actual, in.BudgetSums),
		}

		clusterID := in.Company.ClusterID
		byCluster[clusterID] = append(byCluster[clusterID], summary)
		if clusterActual[clusterID] == nil {
			clusterActual[clusterID] = make(map[facts.Kind]float64)
			clusterBudget[clusterID] = make(map[facts.Kind]float64)
		}
		addSums(clusterActual[clusterID], actual)
		addSums(clusterBudget[clusterID], in.BudgetSums)
		addSums(groupActual, actual)
		addSums(groupBudget, in.BudgetSums)
	}

	clusterIDs := make([]int64, 0, len(byCluster))
	for id := range byCluster {
		clusterIDs = append(clusterIDs, id)
	}
	sort.Slice(clusterIDs, func(i, j int) bool { return clusterIDs[i] < clusterIDs[j] })

	out := GroupSummary{
		Year:       req.Year,
		Month:      req.Month,
		Mode:       req.Mode,
		Restricted: gated,
		Statement:  buildStatement(groupActual, groupBudget),
	}
	for _, id := range clusterIDs {
		companies := byCluster[id]
		sort.Slice(companies, func(i, j int) bool { return companies[i].CompanyID < companies[j].CompanyID })
		out.Clusters = append(out.Clusters, ClusterSummary{
			ClusterID: id,
			Name:      clusterNames[id],
			Companies: companies,
			Statement: buildStatement(clusterActual[id], clusterBudget[id]),
		})
	}
	return out
}

// buildStatement derives composite metrics from the raw sums on each
// side and lays out budget-compared lines for every kind.
func buildStatement(actualRaw, budgetRaw map[facts.Kind]float64) Statement {
	actualDerived := pnl.Compute(pnl.Sums(actualRaw))
	budgetDerived := pnl.Compute(pnl.Sums(budgetRaw))

	lines := make(map[facts.Kind]Line, len(facts.AllKinds()))
	for _, kind := range facts.RawKinds() {
		lines[kind] = compareLine(actualRaw[kind], budgetRaw[kind])
	}
	actualBack := actualDerived.AsSums()
	budgetBack := budgetDerived.AsSums()
	for _, kind := range facts.DerivedKinds() {
		lines[kind] = compareLine(actualBack[kind], budgetBack[kind])
	}
	return Statement{Lines: lines}
}

// compareLine applies the budget comparison arithmetic. Zero budgets
// yield zero percentages, matching the margin policy in the P&L
// computation.
func compareLine(actual, budget float64) Line {
	line := Line{
		Actual:   actual,
		Budget:   budget,
		Variance: actual - budget,
	}
	if budget != 0 {
		line.VariancePct = (actual/budget - 1) * 100
		line.AchievementPct = actual / budget * 100
	}
	return line
}

func addSums(dst map[facts.Kind]float64, src map[facts.Kind]float64) {
	for kind, amount := range src {
		dst[kind] += amount
	}
}

// RankCompanies orders the flattened company list by achievement on
// one metric. Ties are broken by company id for determinism.
func RankCompanies(group GroupSummary, metric facts.Kind, direction RankDirection, limit int) []RankEntry {
	var entries []RankEntry
	for _, cluster := range group.Clusters {
		for _, company := range cluster.Companies {
			entries = append(entries, RankEntry{
				CompanyID:      company.CompanyID,
				Name:           company.Name,
				AchievementPct: company.Statement.Lines[metric].AchievementPct,
			})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].AchievementPct != entries[j].AchievementPct {
			if direction == RankBottom {
				return entries[i].AchievementPct < entries[j].AchievementPct
			}
			return entries[i].AchievementPct > entries[j].AchievementPct
		}
		return entries[i].CompanyID < entries[j].CompanyID
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}
