package facts

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-fin/meridian-fin/internal/fiscal"
)

// PGRepository provides PostgreSQL backed persistence.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Upsert writes a data-entry batch atomically. Uniqueness per
// (company, year, month, kind, scenario) is enforced by the store.
func (r *PGRepository) Upsert(ctx context.Context, in EntryInput) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	for _, line := range in.Lines {
		if _, err := tx.Exec(ctx,
			`INSERT INTO metric_facts (company_id, year, month, kind, scenario, amount)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (company_id, year, month, kind, scenario)
DO UPDATE SET amount = EXCLUDED.amount, updated_at = NOW()`,
			in.CompanyID, in.Year, in.Month, string(line.Kind), string(in.Scenario), line.Amount); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// ListFacts returns all facts for a company period.
func (r *PGRepository) ListFacts(ctx context.Context, companyID int64, year, month int) ([]Fact, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, company_id, year, month, kind, scenario, amount, created_at, updated_at
FROM metric_facts WHERE company_id = $1 AND year = $2 AND month = $3
ORDER BY scenario, kind`, companyID, year, month)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Fact
	for rows.Next() {
		var f Fact
		var kind, scenario string
		if err := rows.Scan(&f.ID, &f.CompanyID, &f.Year, &f.Month, &kind, &scenario, &f.Amount, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, err
		}
		f.Kind = Kind(kind)
		f.Scenario = Scenario(scenario)
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// SumsForPeriods sums raw fact amounts per kind over a period set.
func (r *PGRepository) SumsForPeriods(ctx context.Context, companyID int64, periods []fiscal.Month, scenario Scenario) (map[Kind]float64, error) {
	if len(periods) == 0 {
		return map[Kind]float64{}, nil
	}
	codes := make([]int32, len(periods))
	for i, p := range periods {
		codes[i] = int32(p.Year*100 + p.Month)
	}
	rows, err := r.pool.Query(ctx,
		`SELECT kind, SUM(amount)
FROM metric_facts
WHERE company_id = $1 AND scenario = $2 AND (year * 100 + month) = ANY($3)
GROUP BY kind`, companyID, string(scenario), codes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	sums := make(map[Kind]float64)
	for rows.Next() {
		var kind string
		var amount float64
		if err := rows.Scan(&kind, &amount); err != nil {
			return nil, err
		}
		sums[Kind(kind)] = amount
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sums, nil
}

// ActualRevenue returns the ACTUAL revenue fact for one period, or 0
// when absent. Used by the submission completeness gate.
func (r *PGRepository) ActualRevenue(ctx context.Context, companyID int64, year, month int) (float64, error) {
	var amount float64
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM metric_facts
WHERE company_id = $1 AND year = $2 AND month = $3 AND kind = $4 AND scenario = $5`,
		companyID, year, month, string(KindRevenue), string(ScenarioActual)).Scan(&amount)
	return amount, err
}

// StoreDerived upserts derived ACTUAL metric rows written back on
// submission for audit.
func (r *PGRepository) StoreDerived(ctx context.Context, companyID int64, year, month int, values map[Kind]float64) error {
	lines := make([]EntryLine, 0, len(values))
	for kind, amount := range values {
		lines = append(lines, EntryLine{Kind: kind, Amount: amount})
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	for _, line := range lines {
		if _, err := tx.Exec(ctx,
			`INSERT INTO metric_facts (company_id, year, month, kind, scenario, amount)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (company_id, year, month, kind, scenario)
DO UPDATE SET amount = EXCLUDED.amount, updated_at = NOW()`,
			companyID, year, month, string(line.Kind), string(ScenarioActual), line.Amount); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}
