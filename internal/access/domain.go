// Package access resolves which companies an actor may read or
// mutate. Every tenant-scoped read or write in the platform goes
// through this package first.
package access

import (
	"sort"
	"time"
)

// RoleKind enumerates the platform roles in ascending authority.
type RoleKind string

const (
	// RoleDataEntry may enter metric facts and submit reports for its
	// own companies.
	RoleDataEntry RoleKind = "DATA_ENTRY"
	// RoleReviewer may approve or reject submitted reports inside its
	// cluster scope.
	RoleReviewer RoleKind = "REVIEWER"
	// RoleExecutive sees group-wide data including unapproved actuals.
	RoleExecutive RoleKind = "EXECUTIVE"
	// RoleSystemAdmin administers master data and holds every grant.
	RoleSystemAdmin RoleKind = "SYSTEM_ADMIN"
)

// rolePriority is the total order used when a single "current role"
// must be chosen from several simultaneous assignments.
var rolePriority = map[RoleKind]int{
	RoleDataEntry:   1,
	RoleReviewer:    2,
	RoleExecutive:   3,
	RoleSystemAdmin: 4,
}

// Known reports whether the role belongs to the closed enumeration.
func (r RoleKind) Known() bool {
	_, ok := rolePriority[r]
	return ok
}

// Priority returns the role's rank in the total order; unknown roles
// rank below every known role.
func (r RoleKind) Priority() int {
	return rolePriority[r]
}

// HighestRole picks the highest-priority role from the given kinds.
// Returns RoleDataEntry when the list is empty so callers always get
// a usable, least-privileged answer.
func HighestRole(roles []RoleKind) RoleKind {
	best := RoleDataEntry
	for _, r := range roles {
		if r.Priority() > best.Priority() {
			best = r
		}
	}
	return best
}

// Assignment is one role grant for an actor, scoped to a company or
// a cluster. An actor may hold several active assignments at once.
type Assignment struct {
	ID        int64
	ActorID   int64
	CompanyID *int64
	ClusterID *int64
	Role      RoleKind
	Active    bool
	CreatedAt time.Time
}

// Scope is the resolved set of companies an actor may touch. The
// zero value is an empty scope; All short-circuits every membership
// test and means "no filter", never "empty".
type Scope struct {
	all       bool
	companies map[int64]struct{}
}

// AllScope returns the unrestricted scope.
func AllScope() Scope {
	return Scope{all: true}
}

// NewScope builds a scope from explicit company ids.
func NewScope(ids []int64) Scope {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return Scope{companies: set}
}

// All reports whether the scope is unrestricted.
func (s Scope) All() bool {
	return s.all
}

// Contains reports whether the company is inside the scope.
func (s Scope) Contains(companyID int64) bool {
	if s.all {
		return true
	}
	_, ok := s.companies[companyID]
	return ok
}

// CompanyIDs returns the scoped ids in ascending order. Empty for the
// unrestricted scope; callers must check All first.
func (s Scope) CompanyIDs() []int64 {
	ids := make([]int64, 0, len(s.companies))
	for id := range s.companies {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Len returns the number of companies in a restricted scope.
func (s Scope) Len() int {
	return len(s.companies)
}

// Config carries the resolver policy. Passed at construction instead
// of read from ambient process state.
type Config struct {
	// GlobalRoles lists the role kinds that resolve to the
	// unrestricted scope.
	GlobalRoles []RoleKind
}

// DefaultConfig treats system admins and executives as global.
func DefaultConfig() Config {
	return Config{GlobalRoles: []RoleKind{RoleSystemAdmin, RoleExecutive}}
}

func (c Config) isGlobal(role RoleKind) bool {
	for _, r := range c.GlobalRoles {
		if r == role {
			return true
		}
	}
	return false
}
