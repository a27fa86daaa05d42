// Package fiscal computes fiscal-year-aware reporting windows.
package fiscal

import (
	"fmt"

	"github.com/meridian-fin/meridian-fin/internal/shared"
)

// Month identifies one calendar month.
type Month struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

// YTDMonths returns the ordered months from the start of the fiscal
// year containing (year, month) up to and including (year, month).
// When the reference month precedes the fiscal start the window spans
// the calendar-year boundary. Deterministic; never consults the clock.
func YTDMonths(year, month, fiscalStart int) ([]Month, error) {
	if month < 1 || month > 12 {
		return nil, fmt.Errorf("fiscal: month %d out of range: %w", month, shared.ErrValidation)
	}
	if fiscalStart < 1 || fiscalStart > 12 {
		return nil, fmt.Errorf("fiscal: fiscal start month %d out of range: %w", fiscalStart, shared.ErrValidation)
	}

	startYear := year
	if fiscalStart > 1 && month < fiscalStart {
		startYear = year - 1
	}

	months := make([]Month, 0, 12)
	y, m := startYear, fiscalStart
	for {
		months = append(months, Month{Year: y, Month: m})
		if y == year && m == month {
			return months, nil
		}
		m++
		if m > 12 {
			m = 1
			y++
		}
	}
}
