// Package access is the sole tenant-isolation boundary. Every route resolves
// its scope here before touching data; no other package compares roles or
// rewrites filters for isolation. A denial is always a Forbidden error,
// never a silent empty result — silent-empty would be indistinguishable from
// "tenant has no data".
package access

import (
	"fmt"

	cerrors "github.com/canvassdb/canvassd/internal/errors"
	"github.com/canvassdb/canvassd/pkg/types"
)

// Filter makes tenant-level authorization decisions for a fixed tenant set.
type Filter struct {
	tenants map[int]bool
}

// NewFilter creates an access filter over the known tenant ids.
func NewFilter(tenantIDs []int) *Filter {
	tenants := make(map[int]bool, len(tenantIDs))
	for _, id := range tenantIDs {
		tenants[id] = true
	}
	return &Filter{tenants: tenants}
}

// CanAccess reports whether the caller may reach tenantID.
//
// TenantManager is granted tenant-level access to its assigned tenant only;
// the "created by me" exception for individual resources in other tenants is
// evaluated by the resource layer, not here.
func (f *Filter) CanAccess(identity types.CallerIdentity, tenantID int) bool {
	switch identity.Role {
	case types.RoleUnrestricted:
		return true
	case types.RoleTenantManager, types.RoleTenantScoped, types.RolePartitionScoped:
		return tenantID == identity.AssignedTenant
	default:
		return false
	}
}

// RestrictFilter rewrites a base filter to enforce isolation for scoped
// callers by conjuncting an equality constraint on the tenant column.
// Unrestricted callers get the base filter unchanged.
func (f *Filter) RestrictFilter(identity types.CallerIdentity, base types.Filter) types.Filter {
	switch identity.Role {
	case types.RoleUnrestricted:
		return base
	default:
		return base.WithEq(types.TenantColumn, identity.AssignedTenant)
	}
}

// ResolveScope is the single authorization choke-point. It validates the
// identity, the requested tenant, and the caller's reach, returning a
// resolved scope or a Forbidden/InvalidTenant error.
//
// The "all" scope is reachable by Unrestricted callers, and by TenantManager
// for cross-tenant administrative views where per-resource ties are resolved
// by created_by at the resource layer.
func (f *Filter) ResolveScope(identity types.CallerIdentity, req types.ScopeRequest) (types.Scope, error) {
	if err := identity.Validate(); err != nil {
		return types.Scope{}, cerrors.NewInvalidIdentity("malformed caller identity", err)
	}

	if req.All {
		switch identity.Role {
		case types.RoleUnrestricted, types.RoleTenantManager:
			return types.AllScope(), nil
		default:
			return types.Scope{}, cerrors.NewForbidden(
				fmt.Sprintf("%s caller cannot request the all-constituency scope", identity.Role))
		}
	}

	if !f.tenants[req.TenantID] {
		return types.Scope{}, cerrors.NewInvalidTenant(req.TenantID)
	}

	if !f.CanAccess(identity, req.TenantID) {
		return types.Scope{}, cerrors.NewForbidden(
			fmt.Sprintf("caller assigned to tenant %d cannot access tenant %d",
				identity.AssignedTenant, req.TenantID))
	}

	return types.SingleScope(req.TenantID), nil
}
