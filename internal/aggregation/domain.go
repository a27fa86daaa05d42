// Package aggregation rolls metric facts up into the group → cluster
// → company performance tree with budget comparison.
package aggregation

import (
	"fmt"

	"github.com/meridian-fin/meridian-fin/internal/facts"
	"github.com/meridian-fin/meridian-fin/internal/fiscal"
	"github.com/meridian-fin/meridian-fin/internal/shared"
)

// Mode selects the period window per company.
type Mode string

const (
	// ModeMonth aggregates the single queried month.
	ModeMonth Mode = "MONTH"
	// ModeYTD aggregates each company's own fiscal year-to-date
	// window ending at the queried month.
	ModeYTD Mode = "YTD"
)

// Request describes one aggregation query.
type Request struct {
	Year      int
	Month     int
	Mode      Mode
	ActorID   int64
	ClusterID *int64
}

// Validate checks the request shape.
func (r Request) Validate() error {
	if r.Month < 1 || r.Month > 12 {
		return fmt.Errorf("aggregation: month %d out of range: %w", r.Month, shared.ErrValidation)
	}
	if r.Year < 2000 || r.Year > 2200 {
		return fmt.Errorf("aggregation: year %d out of range: %w", r.Year, shared.ErrValidation)
	}
	if r.Mode != ModeMonth && r.Mode != ModeYTD {
		return fmt.Errorf("aggregation: unknown mode %q: %w", r.Mode, shared.ErrValidation)
	}
	if r.ActorID == 0 {
		return fmt.Errorf("aggregation: actor required: %w", shared.ErrValidation)
	}
	return nil
}

// Line compares one statement line against budget.
type Line struct {
	Actual         float64 `json:"actual"`
	Budget         float64 `json:"budget"`
	Variance       float64 `json:"variance"`
	VariancePct    float64 `json:"variance_pct"`
	AchievementPct float64 `json:"achievement_pct"`
}

// Statement holds budget-compared lines for every metric kind, raw
// and derived.
type Statement struct {
	Lines map[facts.Kind]Line `json:"lines"`
}

// CompanySummary is one company's contribution to the tree.
type CompanySummary struct {
	CompanyID        int64          `json:"company_id"`
	Name             string         `json:"name"`
	Currency         string         `json:"currency"`
	FiscalStartMonth int            `json:"fiscal_start_month"`
	Periods          []fiscal.Month `json:"periods"`
	Approved         bool           `json:"approved"`
	Excluded         bool           `json:"excluded"`
	Statement        Statement      `json:"statement"`
}

// ClusterSummary is the metric-wise sum of its companies.
type ClusterSummary struct {
	ClusterID int64            `json:"cluster_id"`
	Name      string           `json:"name"`
	Companies []CompanySummary `json:"companies"`
	Statement Statement        `json:"statement"`
}

// GroupSummary is the root of the aggregation tree.
type GroupSummary struct {
	Year       int              `json:"year"`
	Month      int              `json:"month"`
	Mode       Mode             `json:"mode"`
	Restricted bool             `json:"restricted"`
	Clusters   []ClusterSummary `json:"clusters"`
	Statement  Statement        `json:"statement"`
}

// RankDirection selects the end of the ranking to return.
type RankDirection string

const (
	// RankTop returns the best achievers first.
	RankTop RankDirection = "TOP"
	// RankBottom returns the worst achievers first.
	RankBottom RankDirection = "BOTTOM"
)

// RankEntry is one row of a company ranking.
type RankEntry struct {
	CompanyID      int64   `json:"company_id"`
	Name           string  `json:"name"`
	AchievementPct float64 `json:"achievement_pct"`
}
