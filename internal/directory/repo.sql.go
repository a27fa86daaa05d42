package directory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-fin/meridian-fin/internal/shared"
)

// PGRepository provides PostgreSQL backed persistence.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// GetCluster fetches one cluster by id.
func (r *PGRepository) GetCluster(ctx context.Context, id int64) (Cluster, error) {
	var c Cluster
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, is_active, created_at, updated_at FROM clusters WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.Active, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Cluster{}, shared.ErrNotFound
		}
		return Cluster{}, err
	}
	return c, nil
}

// ListClusters returns all clusters ordered by id.
func (r *PGRepository) ListClusters(ctx context.Context) ([]Cluster, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, is_active, created_at, updated_at FROM clusters ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var clusters []Cluster
	for rows.Next() {
		var c Cluster
		if err := rows.Scan(&c.ID, &c.Name, &c.Active, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		clusters = append(clusters, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return clusters, nil
}

// InsertCluster creates a cluster.
func (r *PGRepository) InsertCluster(ctx context.Context, name string) (Cluster, error) {
	var c Cluster
	err := r.pool.QueryRow(ctx,
		`INSERT INTO clusters (name, is_active) VALUES ($1, true)
RETURNING id, name, is_active, created_at, updated_at`, name,
	).Scan(&c.ID, &c.Name, &c.Active, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Cluster{}, err
	}
	return c, nil
}

// UpdateCluster renames a cluster.
func (r *PGRepository) UpdateCluster(ctx context.Context, id int64, name string) (Cluster, error) {
	var c Cluster
	err := r.pool.QueryRow(ctx,
		`UPDATE clusters SET name = $2, updated_at = NOW() WHERE id = $1
RETURNING id, name, is_active, created_at, updated_at`, id, name,
	).Scan(&c.ID, &c.Name, &c.Active, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Cluster{}, shared.ErrNotFound
		}
		return Cluster{}, err
	}
	return c, nil
}

// SetClusterActive toggles the cluster active flag.
func (r *PGRepository) SetClusterActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE clusters SET is_active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// CountActiveCompanies counts active companies in a cluster.
func (r *PGRepository) CountActiveCompanies(ctx context.Context, clusterID int64) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM companies WHERE cluster_id = $1 AND is_active`, clusterID,
	).Scan(&count)
	return count, err
}

// GetCompany fetches one company by id.
func (r *PGRepository) GetCompany(ctx context.Context, id int64) (Company, error) {
	var c Company
	err := r.pool.QueryRow(ctx,
		`SELECT id, cluster_id, name, fiscal_start_month, currency, is_active, created_at, updated_at
FROM companies WHERE id = $1`, id,
	).Scan(&c.ID, &c.ClusterID, &c.Name, &c.FiscalStartMonth, &c.Currency, &c.Active, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Company{}, shared.ErrNotFound
		}
		return Company{}, err
	}
	return c, nil
}

// ListCompanies returns companies, optionally filtered to a set of ids
// and to active rows only. A nil id set means no id filter.
func (r *PGRepository) ListCompanies(ctx context.Context, companyIDs []int64, activeOnly bool) ([]Company, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, cluster_id, name, fiscal_start_month, currency, is_active, created_at, updated_at
FROM companies
WHERE ($1::bigint[] IS NULL OR id = ANY($1))
  AND (NOT $2 OR is_active)
ORDER BY id`, companyIDs, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var companies []Company
	for rows.Next() {
		var c Company
		if err := rows.Scan(&c.ID, &c.ClusterID, &c.Name, &c.FiscalStartMonth, &c.Currency, &c.Active, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		companies = append(companies, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return companies, nil
}

// InsertCompany creates a company.
func (r *PGRepository) InsertCompany(ctx context.Context, in CreateCompanyInput) (Company, error) {
	var c Company
	err := r.pool.QueryRow(ctx,
		`INSERT INTO companies (cluster_id, name, fiscal_start_month, currency, is_active)
VALUES ($1, $2, $3, $4, true)
RETURNING id, cluster_id, name, fiscal_start_month, currency, is_active, created_at, updated_at`,
		in.ClusterID, in.Name, in.FiscalStartMonth, in.Currency,
	).Scan(&c.ID, &c.ClusterID, &c.Name, &c.FiscalStartMonth, &c.Currency, &c.Active, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Company{}, err
	}
	return c, nil
}

// UpdateCompany updates mutable company fields.
func (r *PGRepository) UpdateCompany(ctx context.Context, in UpdateCompanyInput) (Company, error) {
	var c Company
	err := r.pool.QueryRow(ctx,
		`UPDATE companies SET name = $2, fiscal_start_month = $3, currency = $4, updated_at = NOW()
WHERE id = $1
RETURNING id, cluster_id, name, fiscal_start_month, currency, is_active, created_at, updated_at`,
		in.CompanyID, in.Name, in.FiscalStartMonth, in.Currency,
	).Scan(&c.ID, &c.ClusterID, &c.Name, &c.FiscalStartMonth, &c.Currency, &c.Active, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Company{}, shared.ErrNotFound
		}
		return Company{}, err
	}
	return c, nil
}

// SetCompanyActive toggles the company active flag.
func (r *PGRepository) SetCompanyActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE companies SET is_active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
