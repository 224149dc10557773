// Package pipeline builds the reusable aggregation statements consumed by
// both query engines, so per-booth counts, demographic buckets, and growth
// series have identical semantics whether they run against one tenant
// partition or fan out across all of them.
package pipeline

import (
	"fmt"
	"math"
	"strings"

	"github.com/canvassdb/canvassd/pkg/types"
)

// MergeKind tells the fan-out merge step how to combine an aggregate column
// across shards.
type MergeKind int

const (
	MergeSum MergeKind = iota
	MergeMin
	MergeMax
)

// AggColumn is one aggregate output column.
type AggColumn struct {
	Name string
	Kind MergeKind
}

// Aggregation is a per-shard aggregation statement plus the metadata the
// merge step needs to combine shard partials. Rows come back as the key
// columns followed by the aggregate columns; an aggregation with no key
// columns produces exactly one row per shard.
type Aggregation struct {
	SQL  string
	Args []interface{}

	KeyColumns []string
	AggColumns []AggColumn

	// canonical identifies the aggregation shape for cache keys.
	canonical string
}

// Canonical returns a stable identity string for cache keys.
func (a Aggregation) Canonical() string {
	return a.canonical
}

// GroupCount groups rows by one column and counts per group — per-booth
// voter counts, per-family grouping, per-status survey tallies.
func GroupCount(rt types.RecordType, keyField string, filter types.Filter) Aggregation {
	where, args := filter.WhereSQL()
	sql := fmt.Sprintf("SELECT %s, COUNT(*) AS count FROM %s", keyField, rt.Table())
	if where != "" {
		sql += " WHERE " + where
	}
	sql += fmt.Sprintf(" GROUP BY %s", keyField)

	return Aggregation{
		SQL:        sql,
		Args:       args,
		KeyColumns: []string{keyField},
		AggColumns: []AggColumn{{Name: "count", Kind: MergeSum}},
		canonical:  fmt.Sprintf("group_count:%s:%s:%s", rt, keyField, filter.Canonical()),
	}
}

// RangeBuckets counts rows per half-open numeric range — age bands for
// demographic charts. bounds must be ascending; rows below the first bound
// land in "<first" and rows at or above the last in "last+".
func RangeBuckets(rt types.RecordType, field string, bounds []int, filter types.Filter) Aggregation {
	var b strings.Builder
	b.WriteString("CASE")
	for i := 0; i < len(bounds)-1; i++ {
		fmt.Fprintf(&b, " WHEN %s >= %d AND %s < %d THEN '%d-%d'",
			field, bounds[i], field, bounds[i+1], bounds[i], bounds[i+1]-1)
	}
	if len(bounds) > 0 {
		fmt.Fprintf(&b, " WHEN %s >= %d THEN '%d+'",
			field, bounds[len(bounds)-1], bounds[len(bounds)-1])
		fmt.Fprintf(&b, " WHEN %s < %d THEN '<%d'", field, bounds[0], bounds[0])
	}
	b.WriteString(" ELSE 'unknown' END")
	bucketExpr := b.String()

	where, args := filter.WhereSQL()
	sql := fmt.Sprintf("SELECT %s AS bucket, COUNT(*) AS count FROM %s", bucketExpr, rt.Table())
	if where != "" {
		sql += " WHERE " + where
	}
	sql += " GROUP BY bucket"

	boundsKey := make([]string, len(bounds))
	for i, v := range bounds {
		boundsKey[i] = fmt.Sprintf("%d", v)
	}

	return Aggregation{
		SQL:        sql,
		Args:       args,
		KeyColumns: []string{"bucket"},
		AggColumns: []AggColumn{{Name: "count", Kind: MergeSum}},
		canonical: fmt.Sprintf("range_buckets:%s:%s:%s:%s",
			rt, field, strings.Join(boundsKey, ","), filter.Canonical()),
	}
}

// Period is a calendar bucketing granularity for growth series.
type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

// strftimeFormat returns the SQLite strftime pattern for a period.
func (p Period) strftimeFormat() string {
	switch p {
	case PeriodDay:
		return "%Y-%m-%d"
	case PeriodWeek:
		return "%Y-W%W"
	default:
		return "%Y-%m"
	}
}

// PeriodSeries counts rows per calendar period of a unix-seconds timestamp
// column — registration growth by day, week, or month.
func PeriodSeries(rt types.RecordType, timeField string, period Period, filter types.Filter) Aggregation {
	where, args := filter.WhereSQL()
	sql := fmt.Sprintf(
		"SELECT strftime('%s', %s, 'unixepoch') AS period, COUNT(*) AS count FROM %s",
		period.strftimeFormat(), timeField, rt.Table())
	if where != "" {
		sql += " WHERE " + where
	}
	sql += " GROUP BY period"

	return Aggregation{
		SQL:        sql,
		Args:       args,
		KeyColumns: []string{"period"},
		AggColumns: []AggColumn{{Name: "count", Kind: MergeSum}},
		canonical: fmt.Sprintf("period_series:%s:%s:%s:%s",
			rt, timeField, period, filter.Canonical()),
	}
}

// Facet is one named aggregate expression inside a multi-facet pass.
type Facet struct {
	Name string
	Expr string
	Kind MergeKind
}

// CountAllFacet counts every row in the filtered input set.
func CountAllFacet(name string) Facet {
	return Facet{Name: name, Expr: "COUNT(*)", Kind: MergeSum}
}

// CountIfFacet counts rows matching a predicate without a second scan.
func CountIfFacet(name, predicate string) Facet {
	return Facet{
		Name: name,
		Expr: fmt.Sprintf("SUM(CASE WHEN %s THEN 1 ELSE 0 END)", predicate),
		Kind: MergeSum,
	}
}

// Facets computes several independent aggregates over one filtered input set
// in a single pass, avoiding a re-scan per statistic. Produces one row.
func Facets(rt types.RecordType, filter types.Filter, facets ...Facet) Aggregation {
	exprs := make([]string, len(facets))
	aggCols := make([]AggColumn, len(facets))
	names := make([]string, len(facets))
	for i, f := range facets {
		exprs[i] = fmt.Sprintf("%s AS %s", f.Expr, f.Name)
		aggCols[i] = AggColumn{Name: f.Name, Kind: f.Kind}
		names[i] = f.Name
	}

	where, args := filter.WhereSQL()
	sql := fmt.Sprintf("SELECT %s FROM %s", strings.Join(exprs, ", "), rt.Table())
	if where != "" {
		sql += " WHERE " + where
	}

	return Aggregation{
		SQL:        sql,
		Args:       args,
		AggColumns: aggCols,
		canonical: fmt.Sprintf("facets:%s:%s:%s",
			rt, strings.Join(names, ","), filter.Canonical()),
	}
}

// Percent computes n/d as a percentage rounded to the given number of decimal
// places. A zero denominator yields 0, never NaN or infinity: a completion
// rate over zero voters is zero percent.
func Percent(n, d int64, decimals int) float64 {
	if d == 0 {
		return 0
	}
	p := float64(n) / float64(d) * 100
	scale := math.Pow10(decimals)
	return math.Round(p*scale) / scale
}
