package access

import (
	"context"
	"errors"
)

// Repository supplies the three grant sources the resolver unions.
// Implementations must only return active rows.
type Repository interface {
	// ActorBindings returns the direct company and cluster bindings on
	// the actor's user record.
	ActorBindings(ctx context.Context, actorID int64) (companyIDs []int64, clusterIDs []int64, err error)
	// ActorAssignments returns the actor's active role-assignment rows.
	ActorAssignments(ctx context.Context, actorID int64) ([]Assignment, error)
	// CompaniesInClusters expands cluster ids to their active member
	// company ids.
	CompaniesInClusters(ctx context.Context, clusterIDs []int64) ([]int64, error)
}

// Resolver computes company scopes for actors. Stateless; every call
// reads the grant sources fresh because assignments can be
// deactivated between requests.
type Resolver struct {
	repo Repository
	cfg  Config
}

// NewResolver constructs a Resolver.
func NewResolver(repo Repository, cfg Config) *Resolver {
	if len(cfg.GlobalRoles) == 0 {
		cfg = DefaultConfig()
	}
	return &Resolver{repo: repo, cfg: cfg}
}

// ResolveAccessibleCompanies returns the actor's scope: AllScope for
// global roles, otherwise the union of direct bindings, cluster
// memberships and role-assignment grants.
func (r *Resolver) ResolveAccessibleCompanies(ctx context.Context, actorID int64) (Scope, error) {
	if r == nil || r.repo == nil {
		return Scope{}, errors.New("access: resolver not initialised")
	}

	assignments, err := r.repo.ActorAssignments(ctx, actorID)
	if err != nil {
		return Scope{}, err
	}
	for _, a := range assignments {
		if a.Active && r.cfg.isGlobal(a.Role) {
			return AllScope(), nil
		}
	}

	companyIDs, clusterIDs, err := r.repo.ActorBindings(ctx, actorID)
	if err != nil {
		return Scope{}, err
	}

	ids := make([]int64, 0, len(companyIDs)+len(assignments))
	ids = append(ids, companyIDs...)

	clusters := append([]int64(nil), clusterIDs...)
	for _, a := range assignments {
		if !a.Active {
			continue
		}
		if a.CompanyID != nil {
			ids = append(ids, *a.CompanyID)
		}
		if a.ClusterID != nil {
			clusters = append(clusters, *a.ClusterID)
		}
	}

	if len(clusters) > 0 {
		members, err := r.repo.CompaniesInClusters(ctx, dedupe(clusters))
		if err != nil {
			return Scope{}, err
		}
		ids = append(ids, members...)
	}

	return NewScope(ids), nil
}

// CanAccess reports whether the actor may touch the company. This
// check is mandatory before every read or write targeting one
// company's reports or facts.
func (r *Resolver) CanAccess(ctx context.Context, actorID, companyID int64) (bool, error) {
	scope, err := r.ResolveAccessibleCompanies(ctx, actorID)
	if err != nil {
		return false, err
	}
	return scope.Contains(companyID), nil
}

// CurrentRole picks the actor's single highest-priority active role.
func (r *Resolver) CurrentRole(ctx context.Context, actorID int64) (RoleKind, error) {
	if r == nil || r.repo == nil {
		return "", errors.New("access: resolver not initialised")
	}
	assignments, err := r.repo.ActorAssignments(ctx, actorID)
	if err != nil {
		return "", err
	}
	roles := make([]RoleKind, 0, len(assignments))
	for _, a := range assignments {
		if a.Active {
			roles = append(roles, a.Role)
		}
	}
	return HighestRole(roles), nil
}

// IsGlobal reports whether the role resolves to the unrestricted
// scope under the resolver's configuration.
func (r *Resolver) IsGlobal(role RoleKind) bool {
	return r.cfg.isGlobal(role)
}

// ReviewAuthority reports whether the actor holds review authority
// over the company: a reviewer grant whose scope covers the company,
// or a global role.
func (r *Resolver) ReviewAuthority(ctx context.Context, actorID, companyID int64) (bool, error) {
	if r == nil || r.repo == nil {
		return false, errors.New("access: resolver not initialised")
	}
	assignments, err := r.repo.ActorAssignments(ctx, actorID)
	if err != nil {
		return false, err
	}
	var clusters []int64
	for _, a := range assignments {
		if !a.Active {
			continue
		}
		if r.cfg.isGlobal(a.Role) {
			return true, nil
		}
		if a.Role != RoleReviewer {
			continue
		}
		if a.CompanyID != nil && *a.CompanyID == companyID {
			return true, nil
		}
		if a.ClusterID != nil {
			clusters = append(clusters, *a.ClusterID)
		}
	}
	if len(clusters) == 0 {
		return false, nil
	}
	members, err := r.repo.CompaniesInClusters(ctx, dedupe(clusters))
	if err != nil {
		return false, err
	}
	for _, id := range members {
		if id == companyID {
			return true, nil
		}
	}
	return false, nil
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
