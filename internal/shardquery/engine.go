// Package shardquery executes find/aggregate/count operations against one
// tenant's partition through the registry. A structurally absent partition is
// a valid, empty dataset; any other storage fault propagates to the caller.
package shardquery

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	cerrors "github.com/canvassdb/canvassd/internal/errors"
	"github.com/canvassdb/canvassd/internal/pipeline"
	"github.com/canvassdb/canvassd/internal/registry"
	"github.com/canvassdb/canvassd/pkg/types"
)

// Engine runs single-tenant queries.
type Engine struct {
	reg *registry.Registry
}

// New creates a single-shard query engine over the registry.
func New(reg *registry.Registry) *Engine {
	return &Engine{reg: reg}
}

// resolved is the outcome of the two-tier partition resolution: the tenant's
// own partition, or the legacy global partition with a tenant-restricted
// filter, or nothing (empty dataset).
type resolved struct {
	handle *registry.Handle
	filter types.Filter
	empty  bool
}

// resolveWithFallback prefers the tenant-specific partition and falls back to
// the designated legacy partition when the tenant one is structurally absent.
// The fallback chain lives here, not at call sites.
func (e *Engine) resolveWithFallback(ctx context.Context, tenantID int, rt types.RecordType, filter types.Filter) (resolved, error) {
	h, err := e.reg.Resolve(ctx, tenantID, rt)
	if err == nil {
		return resolved{handle: h, filter: filter}, nil
	}
	if !cerrors.IsPartitionAbsent(err) {
		return resolved{}, err
	}

	legacy, err := e.reg.ResolveLegacy(ctx, rt)
	if err != nil {
		if cerrors.IsPartitionAbsent(err) {
			return resolved{empty: true}, nil
		}
		return resolved{}, err
	}

	// The legacy partition holds every tenant's rows; constrain to ours.
	return resolved{handle: legacy, filter: filter.WithEq(types.TenantColumn, tenantID)}, nil
}

// ValidateFields rejects filter and sort fields that do not name a column of
// the record type's table. Field names end up spliced into SQL text, so
// anything a client controls must pass this check; the tenant isolation
// rewrite only constrains WHERE parameters, never ordering expressions.
func ValidateFields(rt types.RecordType, filter types.Filter, sorts []types.Sort) error {
	for _, c := range filter.Conds {
		if !registry.ValidColumn(rt, c.Field) {
			return cerrors.NewQueryError(cerrors.CodeInvalidField,
				fmt.Sprintf("unknown %s field %q", rt, c.Field))
		}
	}
	for _, s := range sorts {
		if !registry.ValidColumn(rt, s.Field) {
			return cerrors.NewQueryError(cerrors.CodeInvalidField,
				fmt.Sprintf("unknown %s sort field %q", rt, s.Field))
		}
	}
	return nil
}

// Find returns rows matching the filter, ordered and paginated. An absent
// partition yields an empty slice, not an error.
func (e *Engine) Find(ctx context.Context, tenantID int, rt types.RecordType, filter types.Filter, sorts []types.Sort, page types.Page) ([]types.Row, error) {
	if err := ValidateFields(rt, filter, sorts); err != nil {
		return nil, err
	}

	res, err := e.resolveWithFallback(ctx, tenantID, rt, filter)
	if err != nil {
		return nil, err
	}
	if res.empty {
		return []types.Row{}, nil
	}

	where, args := res.filter.WhereSQL()
	q := fmt.Sprintf("SELECT * FROM %s", rt.Table())
	if where != "" {
		q += " WHERE " + where
	}
	q += " ORDER BY " + orderBySQL(sorts)
	if page.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d OFFSET %d", page.Limit, page.Skip)
	} else if page.Skip > 0 {
		q += fmt.Sprintf(" LIMIT -1 OFFSET %d", page.Skip)
	}

	rows, err := e.queryRows(ctx, res.handle.DB(), q, args)
	if err != nil {
		return nil, cerrors.NewStorageError(
			fmt.Sprintf("find on tenant %d %s failed", tenantID, rt), err)
	}
	return rows, nil
}

// Count returns the number of rows matching the filter. An absent partition
// counts zero.
func (e *Engine) Count(ctx context.Context, tenantID int, rt types.RecordType, filter types.Filter) (int64, error) {
	if err := ValidateFields(rt, filter, nil); err != nil {
		return 0, err
	}

	res, err := e.resolveWithFallback(ctx, tenantID, rt, filter)
	if err != nil {
		return 0, err
	}
	if res.empty {
		return 0, nil
	}

	where, args := res.filter.WhereSQL()
	q := fmt.Sprintf("SELECT COUNT(*) FROM %s", rt.Table())
	if where != "" {
		q += " WHERE " + where
	}

	var n int64
	if err := res.handle.DB().QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, cerrors.NewStorageError(
			fmt.Sprintf("count on tenant %d %s failed", tenantID, rt), err)
	}
	return n, nil
}

// Aggregate executes a pipeline aggregation against one tenant partition.
// An absent partition yields no rows.
func (e *Engine) Aggregate(ctx context.Context, tenantID int, rt types.RecordType, agg pipeline.Aggregation) ([]types.Row, error) {
	h, err := e.reg.Resolve(ctx, tenantID, rt)
	if err != nil {
		if cerrors.IsPartitionAbsent(err) {
			return []types.Row{}, nil
		}
		return nil, err
	}

	rows, err := e.queryRows(ctx, h.DB(), agg.SQL, agg.Args)
	if err != nil {
		return nil, cerrors.NewStorageError(
			fmt.Sprintf("aggregate on tenant %d %s failed", tenantID, rt), err)
	}
	return rows, nil
}

// Insert routes a write to the tenant's partition, creating the partition on
// first write. The tenant column is always overwritten with the routed
// tenant id; callers cannot smuggle a row into another tenant's partition.
func (e *Engine) Insert(ctx context.Context, tenantID int, rt types.RecordType, row types.Row) (int64, error) {
	h, err := e.reg.EnsureForWrite(ctx, tenantID, rt)
	if err != nil {
		return 0, err
	}

	cols := make([]string, 0, len(row)+2)
	for col := range row {
		if col == "id" || col == types.TenantColumn {
			continue
		}
		if !registry.ValidColumn(rt, col) {
			return 0, cerrors.NewQueryError(cerrors.CodeInvalidField,
				fmt.Sprintf("unknown %s field %q", rt, col))
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)

	names := append([]string{types.TenantColumn}, cols...)
	args := make([]interface{}, 0, len(names)+1)
	args = append(args, tenantID)
	for _, col := range cols {
		args = append(args, row[col])
	}
	if _, ok := row["created_at"]; !ok {
		names = append(names, "created_at")
		args = append(args, time.Now().Unix())
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		rt.Table(), strings.Join(names, ", "), placeholders)

	result, err := h.DB().ExecContext(ctx, q, args...)
	if err != nil {
		return 0, cerrors.NewStorageError(
			fmt.Sprintf("insert into tenant %d %s failed", tenantID, rt), err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, cerrors.NewStorageError("failed to read insert id", err)
	}
	return id, nil
}

// queryRows runs a query and scans every row into a map keyed by column name.
func (e *Engine) queryRows(ctx context.Context, db *sql.DB, query string, args []interface{}) ([]types.Row, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	// Pre-allocate scan buffers once outside the loop
	values := make([]interface{}, len(columns))
	valuePtrs := make([]interface{}, len(columns))
	for i := range values {
		valuePtrs[i] = &values[i]
	}

	out := []types.Row{}
	for rows.Next() {
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		row := make(types.Row, len(columns))
		for i, col := range columns {
			row[col] = normalizeValue(values[i])
			values[i] = nil
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// normalizeValue converts driver byte slices to strings so rows serialize and
// compare uniformly across shards.
func normalizeValue(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// orderBySQL renders sort terms, always appending the native id tie-break so
// pagination is deterministic against SQLite's otherwise unspecified order.
func orderBySQL(sorts []types.Sort) string {
	parts := make([]string, 0, len(sorts)+1)
	for _, s := range sorts {
		dir := "ASC"
		if s.Desc {
			dir = "DESC"
		}
		parts = append(parts, fmt.Sprintf("%s %s", s.Field, dir))
	}
	parts = append(parts, "id ASC")
	return strings.Join(parts, ", ")
}
