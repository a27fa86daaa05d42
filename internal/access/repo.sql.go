package access

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository provides PostgreSQL backed grant lookups.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// ActorBindings returns the direct company and cluster bindings on the
// actor's user record.
func (r *PGRepository) ActorBindings(ctx context.Context, actorID int64) ([]int64, []int64, error) {
	var companyID, clusterID *int64
	err := r.pool.QueryRow(ctx,
		`SELECT company_id, cluster_id FROM users WHERE id = $1 AND is_active`, actorID,
	).Scan(&companyID, &clusterID)
	if err != nil {
		return nil, nil, err
	}
	var companies, clusters []int64
	if companyID != nil {
		companies = append(companies, *companyID)
	}
	if clusterID != nil {
		clusters = append(clusters, *clusterID)
	}
	return companies, clusters, nil
}

// ActorAssignments returns the actor's active role-assignment rows.
func (r *PGRepository) ActorAssignments(ctx context.Context, actorID int64) ([]Assignment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, actor_id, company_id, cluster_id, role, is_active, created_at
FROM role_assignments WHERE actor_id = $1 AND is_active ORDER BY id`, actorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var assignments []Assignment
	for rows.Next() {
		var a Assignment
		var role string
		if err := rows.Scan(&a.ID, &a.ActorID, &a.CompanyID, &a.ClusterID, &role, &a.Active, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Role = RoleKind(role)
		assignments = append(assignments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return assignments, nil
}

// CompaniesInClusters expands cluster ids to active member companies.
func (r *PGRepository) CompaniesInClusters(ctx context.Context, clusterIDs []int64) ([]int64, error) {
	if len(clusterIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id FROM companies WHERE cluster_id = ANY($1) AND is_active ORDER BY id`, clusterIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}
