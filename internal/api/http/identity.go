package http

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/canvassdb/canvassd/pkg/types"
)

// Identity headers set by the authentication layer after session validation.
// This API trusts them because it only ever runs behind that layer.
const (
	headerRole   = "X-Canvass-Role"
	headerTenant = "X-Canvass-AC"
	headerUser   = "X-Canvass-User"
)

// identityFromRequest reconstructs the caller identity resolved upstream.
func identityFromRequest(r *http.Request) (types.CallerIdentity, error) {
	role, err := types.ParseRole(r.Header.Get(headerRole))
	if err != nil {
		return types.CallerIdentity{}, err
	}

	identity := types.CallerIdentity{
		Role:         role,
		CreatedByRef: r.Header.Get(headerUser),
	}

	if v := r.Header.Get(headerTenant); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			return types.CallerIdentity{}, fmt.Errorf("invalid %s header: %w", headerTenant, err)
		}
		identity.AssignedTenant = id
	}

	if err := identity.Validate(); err != nil {
		return types.CallerIdentity{}, err
	}
	return identity, nil
}

// scopeFromRequest parses the ?ac= query parameter: a constituency id, or
// "all" for the cross-tenant view.
func scopeFromRequest(r *http.Request) (types.ScopeRequest, error) {
	v := r.URL.Query().Get("ac")
	if v == "" {
		return types.ScopeRequest{}, fmt.Errorf("ac parameter is required (a constituency id or \"all\")")
	}
	if v == "all" {
		return types.ScopeRequest{All: true}, nil
	}
	id, err := strconv.Atoi(v)
	if err != nil {
		return types.ScopeRequest{}, fmt.Errorf("invalid ac parameter %q", v)
	}
	return types.ScopeRequest{TenantID: id}, nil
}

// pageFromRequest parses skip/limit with a hard cap on page size.
func pageFromRequest(r *http.Request) types.Page {
	page := types.Page{Limit: 50}
	if v := r.URL.Query().Get("skip"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			page.Skip = n
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			page.Limit = n
		}
	}
	return page
}
