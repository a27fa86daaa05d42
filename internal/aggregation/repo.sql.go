package aggregation

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-fin/meridian-fin/internal/directory"
	"github.com/meridian-fin/meridian-fin/internal/facts"
	"github.com/meridian-fin/meridian-fin/internal/fiscal"
)

// PGRepository is the PostgreSQL read side for aggregation.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository wires the repository to a pool.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) Clusters(ctx context.Context) ([]directory.Cluster, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, is_active, created_at, updated_at
		FROM clusters
		WHERE is_active
		ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []directory.Cluster
	for rows.Next() {
		var c directory.Cluster
		if err := rows.Scan(&c.ID, &c.Name, &c.Active, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PGRepository) Companies(ctx context.Context, companyIDs []int64, clusterID *int64) ([]directory.Company, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, cluster_id, name, fiscal_start_month, currency, is_active, created_at, updated_at
		FROM companies
		WHERE is_active
		  AND ($1::bigint[] IS NULL OR id = ANY($1))
		  AND ($2::bigint IS NULL OR cluster_id = $2)
		ORDER BY id`, companyIDs, clusterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []directory.Company
	for rows.Next() {
		var c directory.Company
		if err := rows.Scan(&c.ID, &c.ClusterID, &c.Name, &c.FiscalStartMonth, &c.Currency, &c.Active, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PGRepository) SumsForPeriods(ctx context.Context, companyID int64, periods []fiscal.Month, scenario facts.Scenario) (map[facts.Kind]float64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT kind, COALESCE(SUM(amount), 0)
		FROM metric_facts
		WHERE company_id = $1
		  AND scenario = $2
		  AND (year * 100 + month) = ANY($3)
		GROUP BY kind`, companyID, scenario, periodCodes(periods))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sums := make(map[facts.Kind]float64)
	for rows.Next() {
		var kind facts.Kind
		var amount float64
		if err := rows.Scan(&kind, &amount); err != nil {
			return nil, err
		}
		sums[kind] = amount
	}
	return sums, rows.Err()
}

func (r *PGRepository) ApprovedInPeriods(ctx context.Context, companyID int64, periods []fiscal.Month) (bool, error) {
	var approved bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM reports
			WHERE company_id = $1
			  AND status = 'APPROVED'
			  AND (year * 100 + month) = ANY($2)
		)`, companyID, periodCodes(periods)).Scan(&approved)
	return approved, err
}

func periodCodes(periods []fiscal.Month) []int32 {
	codes := make([]int32, len(periods))
	for i, p := range periods {
		codes[i] = int32(p.Year*100 + p.Month)
	}
	return codes
}
