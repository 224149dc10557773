// Package core exposes the data-access contracts consumed by every route:
// scope resolution, the uniform query/aggregate entry points dispatching to
// single-shard or fan-out execution, and read-through caching that re-applies
// authorization on every hit.
package core

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/canvassdb/canvassd/internal/access"
	"github.com/canvassdb/canvassd/internal/cache"
	cerrors "github.com/canvassdb/canvassd/internal/errors"
	"github.com/canvassdb/canvassd/internal/fanout"
	"github.com/canvassdb/canvassd/internal/pipeline"
	"github.com/canvassdb/canvassd/internal/shardquery"
	"github.com/canvassdb/canvassd/pkg/types"
)

// Core is the data-access layer facade. One instance is constructed at
// process start and injected into every route; the cache inside it is the
// single process-wide response cache.
type Core struct {
	access     *access.Filter
	single     *shardquery.Engine
	multi      *fanout.Engine
	responses  *cache.ResponseCache
	defaultTTL time.Duration
}

// New wires the core from its collaborators.
func New(af *access.Filter, single *shardquery.Engine, multi *fanout.Engine, responses *cache.ResponseCache, defaultTTL time.Duration) *Core {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	return &Core{
		access:     af,
		single:     single,
		multi:      multi,
		responses:  responses,
		defaultTTL: defaultTTL,
	}
}

// ResolveScope authorizes a requested scope for a caller. Every route calls
// this before touching data; it is the single authorization choke-point.
func (c *Core) ResolveScope(identity types.CallerIdentity, req types.ScopeRequest) (types.Scope, error) {
	return c.access.ResolveScope(identity, req)
}

// restrict applies the isolation rewrite for scoped callers on single-tenant
// scopes. The all scope keeps the base filter: per-resource created-by
// exceptions for managers are the resource layer's job.
func (c *Core) restrict(identity types.CallerIdentity, scope types.Scope, filter types.Filter) types.Filter {
	if scope.All() {
		return filter
	}
	return c.access.RestrictFilter(identity, filter)
}

// Query is the uniform read entry point. The scope picks the engine: a
// single tenant runs through its own partition, the all scope fans out
// across every tenant and merges. Results are cached read-through under the
// request's semantic key; authorization always precedes the cache read.
func (c *Core) Query(ctx context.Context, identity types.CallerIdentity, req types.ScopeRequest, rt types.RecordType, filter types.Filter, sorts []types.Sort, page types.Page) (*types.PagedResult, error) {
	scope, err := c.ResolveScope(identity, req)
	if err != nil {
		return nil, err
	}

	key := cache.QueryKey(scope, rt, filter, sorts, page)
	if data, ok := c.responses.Get(key); ok {
		var cached types.PagedResult
		if json.Unmarshal(data, &cached) == nil {
			return &cached, nil
		}
	}

	var result *types.PagedResult
	if scope.All() {
		r, err := c.multi.FindAll(ctx, rt, filter, sorts, page)
		if err != nil {
			return nil, err
		}
		result = &types.PagedResult{Rows: r.Rows, FailedTenants: r.FailedTenants}
	} else {
		rows, err := c.single.Find(ctx, scope.TenantID(), rt, c.restrict(identity, scope, filter), sorts, page)
		if err != nil {
			return nil, err
		}
		result = &types.PagedResult{Rows: rows}
	}

	c.store(key, result, c.defaultTTL)
	return result, nil
}

// countResult is the cached shape of a count response.
type countResult struct {
	Count         int64 `json:"count"`
	FailedTenants []int `json:"failed_tenants,omitempty"`
}

// Count counts rows in scope, read-through cached like Query. For the all
// scope, failed shards count zero and their ids come back for degradation
// tagging.
func (c *Core) Count(ctx context.Context, identity types.CallerIdentity, req types.ScopeRequest, rt types.RecordType, filter types.Filter) (int64, []int, error) {
	scope, err := c.ResolveScope(identity, req)
	if err != nil {
		return 0, nil, err
	}

	key := cache.CountKey(scope, rt, filter)
	if data, ok := c.responses.Get(key); ok {
		var cached countResult
		if json.Unmarshal(data, &cached) == nil {
			return cached.Count, cached.FailedTenants, nil
		}
	}

	var result countResult
	if scope.All() {
		n, failed, err := c.multi.CountAll(ctx, rt, filter)
		if err != nil {
			return 0, nil, err
		}
		result = countResult{Count: n, FailedTenants: failed}
	} else {
		n, err := c.single.Count(ctx, scope.TenantID(), rt, c.restrict(identity, scope, filter))
		if err != nil {
			return 0, nil, err
		}
		result = countResult{Count: n}
	}

	c.store(key, result, c.defaultTTL)
	return result.Count, result.FailedTenants, nil
}

// Aggregate runs a pipeline aggregation in scope, dispatching like Query.
// Grouped partials merge across shards for the all scope.
func (c *Core) Aggregate(ctx context.Context, identity types.CallerIdentity, req types.ScopeRequest, rt types.RecordType, agg pipeline.Aggregation) (*types.PagedResult, error) {
	scope, err := c.ResolveScope(identity, req)
	if err != nil {
		return nil, err
	}

	key := cache.AggregateKey(scope, rt, agg)
	if data, ok := c.responses.Get(key); ok {
		var cached types.PagedResult
		if json.Unmarshal(data, &cached) == nil {
			return &cached, nil
		}
	}

	var result *types.PagedResult
	if scope.All() {
		r, err := c.multi.AggregateAll(ctx, rt, agg)
		if err != nil {
			return nil, err
		}
		result = &types.PagedResult{Rows: r.Rows, FailedTenants: r.FailedTenants}
	} else {
		rows, err := c.single.Aggregate(ctx, scope.TenantID(), rt, agg)
		if err != nil {
			return nil, err
		}
		result = &types.PagedResult{Rows: rows}
	}

	c.store(key, result, c.defaultTTL)
	return result, nil
}

// Insert routes a write to the target tenant's partition. Writes never hit
// the cache; staleness until TTL expiry is the accepted contract.
func (c *Core) Insert(ctx context.Context, identity types.CallerIdentity, tenantID int, rt types.RecordType, row types.Row) (int64, error) {
	if row == nil {
		return 0, cerrors.NewQueryError(cerrors.CodeInvalidField, "insert requires a non-nil row")
	}
	if _, err := c.ResolveScope(identity, types.ScopeRequest{TenantID: tenantID}); err != nil {
		return 0, err
	}
	if identity.CreatedByRef != "" {
		if _, ok := row["created_by"]; !ok {
			row["created_by"] = identity.CreatedByRef
		}
	}
	return c.single.Insert(ctx, tenantID, rt, row)
}

// Cached wraps an arbitrary computation with read-through caching. The
// caller's scope is re-resolved before the cache is consulted, so a cache
// hit never bypasses authorization: two callers sharing a key are each
// independently authorized.
func (c *Core) Cached(ctx context.Context, identity types.CallerIdentity, req types.ScopeRequest, key string, ttl time.Duration, compute func(ctx context.Context, scope types.Scope) ([]byte, error)) ([]byte, error) {
	scope, err := c.ResolveScope(identity, req)
	if err != nil {
		return nil, err
	}

	if data, ok := c.responses.Get(key); ok {
		return data, nil
	}

	data, err := compute(ctx, scope)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.responses.Set(key, data, ttl)
	return data, nil
}

// store writes a computed result through to the cache.
func (c *Core) store(key string, result interface{}, ttl time.Duration) {
	data, err := json.Marshal(result)
	if err != nil {
		// A marshal failure must not fail the request; the next call recomputes.
		log.Printf("core: cache encode failed for %s: %v", key,
			cerrors.Wrap(cerrors.ErrCategoryCache, cerrors.CodeEncodeFailed, "cache encode failed", err))
		return
	}
	c.responses.Set(key, data, ttl)
}
