package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/meridian-fin/meridian-fin/internal/access"
	"github.com/meridian-fin/meridian-fin/internal/shared"
)

// ErrClusterHasCompanies blocks cluster deactivation while active
// companies remain.
var ErrClusterHasCompanies = fmt.Errorf("directory: cluster still has active companies: %w", shared.ErrValidation)

// Service orchestrates master data mutations. All mutations require
// the system-admin role.
type Service struct {
	repo     Repository
	resolver *access.Resolver
	audit    *shared.AuditLogger
	logger   *slog.Logger
}

// NewService constructs a Service.
func NewService(repo Repository, resolver *access.Resolver, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{repo: repo, resolver: resolver, audit: audit, logger: logger}
}

func (s *Service) requireAdmin(ctx context.Context, actorID int64) error {
	role, err := s.resolver.CurrentRole(ctx, actorID)
	if err != nil {
		return err
	}
	if role != access.RoleSystemAdmin {
		return fmt.Errorf("directory: admin role required: %w", shared.ErrAccessDenied)
	}
	return nil
}

// CreateCluster inserts a new cluster.
func (s *Service) CreateCluster(ctx context.Context, name string, actorID int64) (Cluster, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Cluster{}, fmt.Errorf("directory: cluster name required: %w", shared.ErrValidation)
	}
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return Cluster{}, err
	}
	cluster, err := s.repo.InsertCluster(ctx, name)
	if err != nil {
		return Cluster{}, err
	}
	s.recordAudit(ctx, actorID, "cluster.create", "cluster", cluster.ID, nil)
	return cluster, nil
}

// RenameCluster updates the cluster display name.
func (s *Service) RenameCluster(ctx context.Context, id int64, name string, actorID int64) (Cluster, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Cluster{}, fmt.Errorf("directory: cluster name required: %w", shared.ErrValidation)
	}
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return Cluster{}, err
	}
	cluster, err := s.repo.UpdateCluster(ctx, id, name)
	if err != nil {
		return Cluster{}, err
	}
	s.recordAudit(ctx, actorID, "cluster.rename", "cluster", cluster.ID, map[string]any{"name": name})
	return cluster, nil
}

// DeactivateCluster soft-deletes a cluster. Refused while any active
// company still belongs to it.
func (s *Service) DeactivateCluster(ctx context.Context, id int64, actorID int64) error {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return err
	}
	if _, err := s.repo.GetCluster(ctx, id); err != nil {
		return err
	}
	count, err := s.repo.CountActiveCompanies(ctx, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return ErrClusterHasCompanies
	}
	if err := s.repo.SetClusterActive(ctx, id, false); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "cluster.deactivate", "cluster", id, nil)
	return nil
}

// ListClusters returns all clusters.
func (s *Service) ListClusters(ctx context.Context) ([]Cluster, error) {
	return s.repo.ListClusters(ctx)
}

// CreateCompany inserts a new company under a cluster.
func (s *Service) CreateCompany(ctx context.Context, in CreateCompanyInput) (Company, error) {
	if err := in.Validate(); err != nil {
		return Company{}, err
	}
	if err := s.requireAdmin(ctx, in.ActorID); err != nil {
		return Company{}, err
	}
	cluster, err := s.repo.GetCluster(ctx, in.ClusterID)
	if err != nil {
		return Company{}, err
	}
	if !cluster.Active {
		return Company{}, fmt.Errorf("directory: cluster inactive: %w", shared.ErrValidation)
	}
	company, err := s.repo.InsertCompany(ctx, in)
	if err != nil {
		return Company{}, err
	}
	s.recordAudit(ctx, in.ActorID, "company.create", "company", company.ID, map[string]any{
		"cluster_id":         in.ClusterID,
		"fiscal_start_month": in.FiscalStartMonth,
	})
	return company, nil
}

// UpdateCompany updates mutable company fields.
func (s *Service) UpdateCompany(ctx context.Context, in UpdateCompanyInput) (Company, error) {
	if err := in.Validate(); err != nil {
		return Company{}, err
	}
	if err := s.requireAdmin(ctx, in.ActorID); err != nil {
		return Company{}, err
	}
	company, err := s.repo.UpdateCompany(ctx, in)
	if err != nil {
		return Company{}, err
	}
	s.recordAudit(ctx, in.ActorID, "company.update", "company", company.ID, nil)
	return company, nil
}

// DeactivateCompany soft-deletes a company. The row itself is kept
// because reports and facts reference it.
func (s *Service) DeactivateCompany(ctx context.Context, id int64, actorID int64) error {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return err
	}
	if _, err := s.repo.GetCompany(ctx, id); err != nil {
		return err
	}
	if err := s.repo.SetCompanyActive(ctx, id, false); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "company.deactivate", "company", id, nil)
	return nil
}

// GetCompany returns one company visible to the actor. Companies
// outside the actor's scope surface as not found.
func (s *Service) GetCompany(ctx context.Context, id int64, actorID int64) (Company, error) {
	ok, err := s.resolver.CanAccess(ctx, actorID, id)
	if err != nil {
		return Company{}, err
	}
	if !ok {
		return Company{}, shared.ErrNotFound
	}
	return s.repo.GetCompany(ctx, id)
}

// ListCompanies returns the companies inside the actor's scope.
func (s *Service) ListCompanies(ctx context.Context, actorID int64, activeOnly bool) ([]Company, error) {
	scope, err := s.resolver.ResolveAccessibleCompanies(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if scope.All() {
		return s.repo.ListCompanies(ctx, nil, activeOnly)
	}
	if scope.Len() == 0 {
		return []Company{}, nil
	}
	return s.repo.ListCompanies(ctx, scope.CompanyIDs(), activeOnly)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action, entity string, entityID int64, meta map[string]any) {
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
	}); err != nil && s.logger != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}
