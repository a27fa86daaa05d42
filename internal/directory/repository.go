package directory

import "context"

// Repository abstracts master data persistence.
type Repository interface {
	GetCluster(ctx context.Context, id int64) (Cluster, error)
	ListClusters(ctx context.Context) ([]Cluster, error)
	InsertCluster(ctx context.Context, name string) (Cluster, error)
	UpdateCluster(ctx context.Context, id int64, name string) (Cluster, error)
	SetClusterActive(ctx context.Context, id int64, active bool) error
	CountActiveCompanies(ctx context.Context, clusterID int64) (int, error)

	GetCompany(ctx context.Context, id int64) (Company, error)
	ListCompanies(ctx context.Context, companyIDs []int64, activeOnly bool) ([]Company, error)
	InsertCompany(ctx context.Context, in CreateCompanyInput) (Company, error)
	UpdateCompany(ctx context.Context, in UpdateCompanyInput) (Company, error)
	SetCompanyActive(ctx context.Context, id int64, active bool) error
}
