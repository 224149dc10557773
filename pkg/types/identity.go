package types

import "fmt"

// Role classifies a caller's reach across tenant partitions. Role checks are
// centralized in the access package; nothing else in the system compares roles.
type Role int

const (
	// RoleUnrestricted can reach every tenant, including the "all" scope.
	RoleUnrestricted Role = iota

	// RoleTenantManager is bound to one tenant but may additionally see
	// resources it created in other tenants. The created-by exception is
	// evaluated by the resource layer, not by the access filter.
	RoleTenantManager

	// RoleTenantScoped is strictly bound to its assigned tenant.
	RoleTenantScoped

	// RolePartitionScoped is bound to its assigned tenant, typically a
	// booth-level field agent.
	RolePartitionScoped
)

// String implements fmt.Stringer.
func (r Role) String() string {
	switch r {
	case RoleUnrestricted:
		return "unrestricted"
	case RoleTenantManager:
		return "tenant_manager"
	case RoleTenantScoped:
		return "tenant_scoped"
	case RolePartitionScoped:
		return "partition_scoped"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// ParseRole converts a string to a Role.
func ParseRole(s string) (Role, error) {
	switch s {
	case "unrestricted":
		return RoleUnrestricted, nil
	case "tenant_manager":
		return RoleTenantManager, nil
	case "tenant_scoped":
		return RoleTenantScoped, nil
	case "partition_scoped":
		return RolePartitionScoped, nil
	default:
		return 0, fmt.Errorf("types: unknown role %q", s)
	}
}

// CallerIdentity is the authenticated caller as resolved by the auth layer.
// Tenant ids are positive integers; AssignedTenant == 0 means "none".
type CallerIdentity struct {
	Role Role

	// AssignedTenant is the tenant this caller belongs to. Required for
	// scoped roles, absent for unrestricted callers.
	AssignedTenant int

	// CreatedByRef identifies the caller for created-by-me resource checks
	// performed by the resource layer.
	CreatedByRef string
}

// Validate checks the role/assignment invariants.
func (c CallerIdentity) Validate() error {
	switch c.Role {
	case RoleUnrestricted:
		if c.AssignedTenant != 0 {
			return fmt.Errorf("types: unrestricted caller must not carry an assigned tenant")
		}
	case RoleTenantManager, RoleTenantScoped, RolePartitionScoped:
		if c.AssignedTenant <= 0 {
			return fmt.Errorf("types: %s caller requires an assigned tenant", c.Role)
		}
	default:
		return fmt.Errorf("types: unknown role %d", int(c.Role))
	}
	return nil
}
