package fanout

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/canvassdb/canvassd/internal/pipeline"
	"github.com/canvassdb/canvassd/pkg/types"
)

// taggedRow pairs a row with the tenant it came from so the tie-break does
// not depend on the row's own columns.
type taggedRow struct {
	tenantID int
	row      types.Row
}

// mergeRows concatenates shard partials, applies the global sort order and
// the global skip/limit. Ties on every sort key break by tenant id ascending,
// then by the record's native identifier, so repeated calls paginate
// identically even when the underlying collation is unstable.
func mergeRows(partials []shardPartial, sorts []types.Sort, page types.Page) []types.Row {
	var tagged []taggedRow
	for _, p := range partials {
		if p.err != nil {
			continue
		}
		for _, row := range p.rows {
			tagged = append(tagged, taggedRow{tenantID: p.tenantID, row: row})
		}
	}

	sort.SliceStable(tagged, func(i, j int) bool {
		for _, s := range sorts {
			cmp := compareValues(tagged[i].row[s.Field], tagged[j].row[s.Field])
			if cmp == 0 {
				continue
			}
			if s.Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		if tagged[i].tenantID != tagged[j].tenantID {
			return tagged[i].tenantID < tagged[j].tenantID
		}
		return tagged[i].row.ID() < tagged[j].row.ID()
	})

	// Apply global skip
	if page.Skip > 0 {
		if page.Skip >= len(tagged) {
			return []types.Row{}
		}
		tagged = tagged[page.Skip:]
	}

	// Apply global limit
	if page.Limit > 0 && page.Limit < len(tagged) {
		tagged = tagged[:page.Limit]
	}

	rows := make([]types.Row, len(tagged))
	for i, t := range tagged {
		rows[i] = t.row
	}
	return rows
}

// mergeGrouped combines grouped aggregate partials from every shard. Rows
// sharing a group key merge column-wise per the aggregation's merge kinds;
// output is ordered by group key for deterministic results.
func mergeGrouped(partials []shardPartial, agg pipeline.Aggregation) []types.Row {
	merged := make(map[string]types.Row)
	var order []string

	for _, p := range partials {
		if p.err != nil {
			continue
		}
		for _, row := range p.rows {
			key := groupKey(row, agg.KeyColumns)
			existing, ok := merged[key]
			if !ok {
				// Clone so merge never mutates a shard's partial in place.
				clone := make(types.Row, len(row))
				for k, v := range row {
					clone[k] = v
				}
				merged[key] = clone
				order = append(order, key)
				continue
			}
			for _, col := range agg.AggColumns {
				existing[col.Name] = mergeValue(col.Kind, existing[col.Name], row[col.Name])
			}
		}
	}

	sort.Slice(order, func(i, j int) bool { return lessGroupKey(order[i], order[j]) })
	rows := make([]types.Row, 0, len(order))
	for _, key := range order {
		rows = append(rows, merged[key])
	}
	return rows
}

// lessGroupKey orders group keys numerically when both parse as numbers, so
// booth 10 sorts after booth 2; otherwise lexicographically.
func lessGroupKey(a, b string) bool {
	af, aErr := strconv.ParseFloat(a, 64)
	bf, bErr := strconv.ParseFloat(b, 64)
	if aErr == nil && bErr == nil && af != bf {
		return af < bf
	}
	return a < b
}

// groupKey produces a deterministic string key from the group columns.
func groupKey(row types.Row, keyColumns []string) string {
	if len(keyColumns) == 0 {
		return ""
	}
	parts := make([]string, len(keyColumns))
	for i, col := range keyColumns {
		v := row[col]
		if v == nil {
			parts[i] = "<NULL>"
		} else {
			parts[i] = fmt.Sprintf("%v", v)
		}
	}
	return strings.Join(parts, "|")
}

// mergeValue combines two aggregate column values. SQL aggregates over empty
// inputs come back NULL; nil merges as the identity for sums and is ignored
// for min/max.
func mergeValue(kind pipeline.MergeKind, a, b interface{}) interface{} {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}

	switch kind {
	case pipeline.MergeSum:
		return addValues(a, b)
	case pipeline.MergeMin:
		if compareValues(b, a) < 0 {
			return b
		}
		return a
	case pipeline.MergeMax:
		if compareValues(b, a) > 0 {
			return b
		}
		return a
	}
	return a
}

// addValues sums two numeric values, staying integral when both sides are.
func addValues(a, b interface{}) interface{} {
	ai, aIsInt := toInt64(a)
	bi, bIsInt := toInt64(b)
	if aIsInt && bIsInt {
		return ai + bi
	}
	return toFloat64(a) + toFloat64(b)
}

// compareValues orders two row values: nil first, then numerics, then
// strings, with a textual fallback for anything else.
func compareValues(a, b interface{}) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}

	af, aNum := toNumeric(a)
	bf, bNum := toNumeric(b)
	if aNum && bNum {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}

	as, aStr := a.(string)
	bs, bStr := b.(string)
	if aStr && bStr {
		return strings.Compare(as, bs)
	}

	return strings.Compare(fmt.Sprintf("%v", a), fmt.Sprintf("%v", b))
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	}
	return 0, false
}

func toFloat64(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int64:
		return float64(n)
	case int:
		return float64(n)
	case int32:
		return float64(n)
	}
	return 0
}

func toNumeric(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64, float32, int64, int, int32:
		return toFloat64(n), true
	}
	return 0, false
}
