// Package pnl derives the composite lines of the standard P&L
// template from summed raw metric facts.
package pnl

import "github.com/meridian-fin/meridian-fin/internal/facts"

// Sums holds summed raw metric amounts keyed by line item.
type Sums map[facts.Kind]float64

// Derived carries the computed composite lines for one statement.
type Derived struct {
	TotalOverhead float64 `json:"total_overhead"`
	PBTBefore     float64 `json:"pbt_before"`
	PBTAfter      float64 `json:"pbt_after"`
	GPMarginPct   float64 `json:"gp_margin_pct"`
	NPMarginPct   float64 `json:"np_margin_pct"`
	EBIT          float64 `json:"ebit"`
	EBITDA        float64 `json:"ebitda"`
}

// Compute derives all composite metrics from summed raw figures.
// Ratios with a zero denominator yield exactly 0 so dashboards never
// see NaN or infinities.
func Compute(s Sums) Derived {
	overhead := s[facts.KindPersonnel] + s[facts.KindAdmin] + s[facts.KindSelling] +
		s[facts.KindFinance] + s[facts.KindDepreciation]
	pbtBefore := s[facts.KindGrossProfit] + s[facts.KindOtherIncome] - overhead +
		s[facts.KindProvisions] + s[facts.KindExchangeGL]
	pbtAfter := pbtBefore - s[facts.KindNonOpsExpense] + s[facts.KindNonOpsIncome]
	ebit := pbtBefore + s[facts.KindFinance]

	return Derived{
		TotalOverhead: overhead,
		PBTBefore:     pbtBefore,
		PBTAfter:      pbtAfter,
		GPMarginPct:   ratioPct(s[facts.KindGrossProfit], s[facts.KindRevenue]),
		NPMarginPct:   ratioPct(pbtBefore, s[facts.KindRevenue]),
		EBIT:          ebit,
		EBITDA:        ebit + s[facts.KindDepreciation],
	}
}

// AsSums expands the derived lines into fact-shaped sums, used when
// writing audit copies of computed metrics back to the fact store.
func (d Derived) AsSums() Sums {
	return Sums{
		facts.KindTotalOverhead: d.TotalOverhead,
		facts.KindPBTBefore:     d.PBTBefore,
		facts.KindPBTAfter:      d.PBTAfter,
		facts.KindGPMargin:      d.GPMarginPct,
		facts.KindNPMargin:      d.NPMarginPct,
		facts.KindEBIT:          d.EBIT,
		facts.KindEBITDA:        d.EBITDA,
	}
}

func ratioPct(numerator, denominator float64) float64 {
	if denominator == 0 {
		return 0
	}
	return numerator / denominator * 100
}
