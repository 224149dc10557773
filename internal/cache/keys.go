package cache

import (
	"fmt"
	"strings"

	"github.com/spaolacci/murmur3"

	"github.com/canvassdb/canvassd/internal/pipeline"
	"github.com/canvassdb/canvassd/pkg/types"
)

// Keys incorporate the full semantic identity of a request: scope, record
// type, every filter parameter, sort, and pagination. Two requests that
// differ in any parameter never share a key. Filter values may contain
// free text, so the variable tail is murmur-hashed rather than embedded raw.

// QueryKey builds the cache key for a find request.
func QueryKey(scope types.Scope, rt types.RecordType, filter types.Filter, sorts []types.Sort, page types.Page) string {
	tail := fmt.Sprintf("%s|%s|%d|%d", filter.Canonical(), sortCanonical(sorts), page.Skip, page.Limit)
	return fmt.Sprintf("q:%s:%s:%s", scope, rt, hashTail(tail))
}

// CountKey builds the cache key for a count request.
func CountKey(scope types.Scope, rt types.RecordType, filter types.Filter) string {
	return fmt.Sprintf("c:%s:%s:%s", scope, rt, hashTail(filter.Canonical()))
}

// AggregateKey builds the cache key for an aggregation request.
func AggregateKey(scope types.Scope, rt types.RecordType, agg pipeline.Aggregation) string {
	return fmt.Sprintf("a:%s:%s:%s", scope, rt, hashTail(agg.Canonical()))
}

// hashTail hashes the variable portion of a key with 128-bit murmur3.
func hashTail(tail string) string {
	h1, h2 := murmur3.Sum128([]byte(tail))
	return fmt.Sprintf("%016x%016x", h1, h2)
}

func sortCanonical(sorts []types.Sort) string {
	parts := make([]string, len(sorts))
	for i, s := range sorts {
		dir := "asc"
		if s.Desc {
			dir = "desc"
		}
		parts[i] = s.Field + ":" + dir
	}
	return strings.Join(parts, ",")
}
