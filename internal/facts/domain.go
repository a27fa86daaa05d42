package facts

import (
	"fmt"
	"time"

	"github.com/meridian-fin/meridian-fin/internal/shared"
)

// Scenario tags a metric fact as an actual figure or a budget figure.
type Scenario string

const (
	// ScenarioActual marks submitted actuals.
	ScenarioActual Scenario = "ACTUAL"
	// ScenarioBudget marks budget figures.
	ScenarioBudget Scenario = "BUDGET"
)

// Valid reports whether the scenario is one of the two known tags.
func (s Scenario) Valid() bool {
	return s == ScenarioActual || s == ScenarioBudget
}

// Kind enumerates the P&L line items a fact row may carry. Raw kinds
// are entered by data-entry users; derived kinds are written back by
// the submission path for audit and never entered directly.
type Kind string

const (
	KindRevenue         Kind = "REVENUE"
	KindGrossProfit     Kind = "GROSS_PROFIT"
	KindOtherIncome     Kind = "OTHER_INCOME"
	KindPersonnel       Kind = "PERSONNEL_EXPENSE"
	KindAdmin           Kind = "ADMIN_EXPENSE"
	KindSelling         Kind = "SELLING_EXPENSE"
	KindFinance         Kind = "FINANCE_EXPENSE"
	KindDepreciation    Kind = "DEPRECIATION"
	KindProvisions      Kind = "PROVISIONS"
	KindExchangeGL      Kind = "EXCHANGE_GAIN_LOSS"
	KindNonOpsExpense   Kind = "NON_OPERATING_EXPENSE"
	KindNonOpsIncome    Kind = "NON_OPERATING_INCOME"
	KindGPMargin        Kind = "GP_MARGIN"
	KindTotalOverhead   Kind = "TOTAL_OVERHEAD"
	KindPBTBefore       Kind = "PBT_BEFORE"
	KindPBTAfter        Kind = "PBT_AFTER"
	KindNPMargin        Kind = "NP_MARGIN"
	KindEBIT            Kind = "EBIT"
	KindEBITDA          Kind = "EBITDA"
)

var rawKinds = []Kind{
	KindRevenue, KindGrossProfit, KindOtherIncome,
	KindPersonnel, KindAdmin, KindSelling, KindFinance, KindDepreciation,
	KindProvisions, KindExchangeGL, KindNonOpsExpense, KindNonOpsIncome,
}

var derivedKinds = []Kind{
	KindGPMargin, KindTotalOverhead, KindPBTBefore, KindPBTAfter,
	KindNPMargin, KindEBIT, KindEBITDA,
}

// RawKinds returns the enterable line items in statement order.
func RawKinds() []Kind {
	return append([]Kind(nil), rawKinds...)
}

// DerivedKinds returns the computed line items in statement order.
func DerivedKinds() []Kind {
	return append([]Kind(nil), derivedKinds...)
}

// AllKinds returns raw kinds followed by derived kinds.
func AllKinds() []Kind {
	return append(RawKinds(), derivedKinds...)
}

// Valid reports whether k belongs to the closed enumeration.
func (k Kind) Valid() bool {
	for _, known := range rawKinds {
		if k == known {
			return true
		}
	}
	return k.Derived()
}

// Derived reports whether k is a computed line item.
func (k Kind) Derived() bool {
	for _, known := range derivedKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Fact is one metric value for a company period, unique per
// (company, year, month, kind, scenario).
type Fact struct {
	ID        int64
	CompanyID int64
	Year      int
	Month     int
	Kind      Kind
	Scenario  Scenario
	Amount    float64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// EntryLine is one line of a data-entry batch.
type EntryLine struct {
	Kind   Kind
	Amount float64
}

// EntryInput captures a data-entry batch for one company period.
type EntryInput struct {
	CompanyID int64
	Year      int
	Month     int
	Scenario  Scenario
	Lines     []EntryLine
	ActorID   int64
}

// Validate ensures the batch is well formed before any store access.
func (in EntryInput) Validate() error {
	if in.CompanyID == 0 {
		return fmt.Errorf("facts: company required: %w", shared.ErrValidation)
	}
	if in.ActorID == 0 {
		return fmt.Errorf("facts: actor required: %w", shared.ErrValidation)
	}
	if in.Month < 1 || in.Month > 12 {
		return fmt.Errorf("facts: month %d out of range: %w", in.Month, shared.ErrValidation)
	}
	if in.Year < 2000 || in.Year > 2200 {
		return fmt.Errorf("facts: year %d out of range: %w", in.Year, shared.ErrValidation)
	}
	if !in.Scenario.Valid() {
		return fmt.Errorf("facts: unknown scenario %q: %w", in.Scenario, shared.ErrValidation)
	}
	if len(in.Lines) == 0 {
		return fmt.Errorf("facts: at least one line required: %w", shared.ErrValidation)
	}
	for _, line := range in.Lines {
		if !line.Kind.Valid() {
			return fmt.Errorf("facts: unknown metric kind %q: %w", line.Kind, shared.ErrValidation)
		}
		if line.Kind.Derived() {
			return fmt.Errorf("facts: derived kind %q cannot be entered: %w", line.Kind, shared.ErrValidation)
		}
	}
	return nil
}
