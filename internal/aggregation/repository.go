package aggregation

import (
	"context"

	"github.com/meridian-fin/meridian-fin/internal/directory"
	"github.com/meridian-fin/meridian-fin/internal/facts"
	"github.com/meridian-fin/meridian-fin/internal/fiscal"
)

// Repository loads the read-side inputs for one aggregation build.
type Repository interface {
	// Clusters returns all active clusters.
	Clusters(ctx context.Context) ([]directory.Cluster, error)
	// Companies returns active companies, optionally restricted to
	// an explicit id set (nil means no restriction) and a cluster.
	Companies(ctx context.Context, companyIDs []int64, clusterID *int64) ([]directory.Company, error)
	// SumsForPeriods totals raw metric amounts for one company over
	// the given scenario and window.
	SumsForPeriods(ctx context.Context, companyID int64, periods []fiscal.Month, scenario facts.Scenario) (map[facts.Kind]float64, error)
	// ApprovedInPeriods reports whether the company has at least one
	// approved report in the window.
	ApprovedInPeriods(ctx context.Context, companyID int64, periods []fiscal.Month) (bool, error)
}
