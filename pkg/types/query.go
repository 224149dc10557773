package types

import (
	"fmt"
	"sort"
	"strings"
)

// Op is a filter comparison operator.
type Op string

const (
	OpEq  Op = "="
	OpGte Op = ">="
	OpLte Op = "<="
)

// Condition is one field comparison in a filter.
type Condition struct {
	Field string
	Op    Op
	Value interface{}
}

// Filter is a conjunction of conditions. Filters render deterministically
// (conditions sorted by field then operator) so the same logical filter always
// produces the same SQL and the same cache key.
type Filter struct {
	Conds []Condition
}

// NewFilter returns an empty filter.
func NewFilter() Filter {
	return Filter{}
}

// WithEq returns a copy of the filter with an added equality condition.
func (f Filter) WithEq(field string, value interface{}) Filter {
	return f.with(Condition{Field: field, Op: OpEq, Value: value})
}

// WithRange returns a copy of the filter with added min/max bounds on field.
// A nil bound is skipped.
func (f Filter) WithRange(field string, min, max interface{}) Filter {
	out := f
	if min != nil {
		out = out.with(Condition{Field: field, Op: OpGte, Value: min})
	}
	if max != nil {
		out = out.with(Condition{Field: field, Op: OpLte, Value: max})
	}
	return out
}

func (f Filter) with(c Condition) Filter {
	conds := make([]Condition, 0, len(f.Conds)+1)
	conds = append(conds, f.Conds...)
	conds = append(conds, c)
	return Filter{Conds: conds}
}

// Empty reports whether the filter has no conditions.
func (f Filter) Empty() bool {
	return len(f.Conds) == 0
}

// sorted returns the conditions in canonical order.
func (f Filter) sorted() []Condition {
	conds := make([]Condition, len(f.Conds))
	copy(conds, f.Conds)
	sort.SliceStable(conds, func(i, j int) bool {
		if conds[i].Field != conds[j].Field {
			return conds[i].Field < conds[j].Field
		}
		return conds[i].Op < conds[j].Op
	})
	return conds
}

// WhereSQL renders the filter as a parameterized WHERE clause body and its
// arguments. Returns ("", nil) for an empty filter.
func (f Filter) WhereSQL() (string, []interface{}) {
	if f.Empty() {
		return "", nil
	}
	conds := f.sorted()
	parts := make([]string, len(conds))
	args := make([]interface{}, len(conds))
	for i, c := range conds {
		parts[i] = fmt.Sprintf("%s %s ?", c.Field, c.Op)
		args[i] = c.Value
	}
	return strings.Join(parts, " AND "), args
}

// Canonical returns a stable textual form of the filter for cache keys.
func (f Filter) Canonical() string {
	conds := f.sorted()
	parts := make([]string, len(conds))
	for i, c := range conds {
		parts[i] = fmt.Sprintf("%s%s%v", c.Field, c.Op, c.Value)
	}
	return strings.Join(parts, "&")
}

// Sort is one ordering term.
type Sort struct {
	Field string
	Desc  bool
}

// Page holds pagination bounds. Limit <= 0 means no limit.
type Page struct {
	Skip  int
	Limit int
}

// PagedResult is the uniform result of the query entry points.
type PagedResult struct {
	Rows []Row `json:"rows"`

	// FailedTenants lists tenants whose shard failed during a fan-out.
	// Empty for single-tenant queries and clean fan-outs.
	FailedTenants []int `json:"failed_tenants,omitempty"`
}

// Scope is the resolved target of a request: one tenant or all tenants.
// Scopes are produced by the access package's ResolveScope choke point.
type Scope struct {
	all      bool
	tenantID int
}

// SingleScope targets one tenant.
func SingleScope(tenantID int) Scope {
	return Scope{tenantID: tenantID}
}

// AllScope targets every tenant.
func AllScope() Scope {
	return Scope{all: true}
}

// All reports whether the scope spans every tenant.
func (s Scope) All() bool {
	return s.all
}

// TenantID returns the target tenant for a single-tenant scope.
func (s Scope) TenantID() int {
	return s.tenantID
}

// String returns the scope's cache-key component.
func (s Scope) String() string {
	if s.all {
		return "all"
	}
	return fmt.Sprintf("ac:%d", s.tenantID)
}

// ScopeRequest is the unresolved scope carried by an inbound request.
type ScopeRequest struct {
	All      bool
	TenantID int
}
