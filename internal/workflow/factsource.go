package workflow

import (
	"context"

	"github.com/meridian-fin/meridian-fin/internal/facts"
	"github.com/meridian-fin/meridian-fin/internal/fiscal"
	"github.com/meridian-fin/meridian-fin/internal/pnl"
)

// factSource adapts the fact store repository to the workflow's
// FactSource contract.
type factSource struct {
	repo *facts.PGRepository
}

// NewFactSource wraps the fact store for workflow use.
func NewFactSource(repo *facts.PGRepository) FactSource {
	return &factSource{repo: repo}
}

func (f *factSource) ActualRevenue(ctx context.Context, companyID int64, year, month int) (float64, error) {
	return f.repo.ActualRevenue(ctx, companyID, year, month)
}

func (f *factSource) ActualSums(ctx context.Context, companyID int64, year, month int) (pnl.Sums, error) {
	sums, err := f.repo.SumsForPeriods(ctx, companyID, []fiscal.Month{{Year: year, Month: month}}, facts.ScenarioActual)
	if err != nil {
		return nil, err
	}
	out := make(pnl.Sums, len(sums))
	for kind, amount := range sums {
		if kind.Derived() {
			continue
		}
		out[kind] = amount
	}
	return out, nil
}

func (f *factSource) StoreDerivedActuals(ctx context.Context, companyID int64, year, month int, sums pnl.Sums) error {
	return f.repo.StoreDerived(ctx, companyID, year, month, map[facts.Kind]float64(sums))
}
