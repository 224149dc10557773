// Package fanout executes one logical query across every tenant partition
// concurrently and merges the partials into one global view. One bad shard
// never blanks the global result: absent partitions contribute empty
// partials, failed shards are recorded and skipped, and the merge proceeds
// with whatever arrived.
package fanout

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	cerrors "github.com/canvassdb/canvassd/internal/errors"
	"github.com/canvassdb/canvassd/internal/observability"
	"github.com/canvassdb/canvassd/internal/pipeline"
	"github.com/canvassdb/canvassd/internal/shardquery"
	"github.com/canvassdb/canvassd/pkg/types"
)

// Engine fans queries out across all tenant shards.
type Engine struct {
	single       *shardquery.Engine
	tenants      []int
	concurrency  int
	shardTimeout time.Duration
	stats        *observability.FanoutStats
}

// Config holds fan-out tuning parameters.
type Config struct {
	// Concurrency is the number of parallel per-tenant calls (default: 8).
	Concurrency int

	// ShardTimeout bounds each per-tenant call so one unreachable partition
	// cannot stall the global view (default: 10s).
	ShardTimeout time.Duration
}

// New creates a fan-out engine over the single-shard engine and the fixed
// tenant id set.
func New(single *shardquery.Engine, tenantIDs []int, cfg Config, stats *observability.FanoutStats) *Engine {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.ShardTimeout <= 0 {
		cfg.ShardTimeout = 10 * time.Second
	}
	if stats == nil {
		stats = observability.NewFanoutStats()
	}
	return &Engine{
		single:       single,
		tenants:      tenantIDs,
		concurrency:  cfg.Concurrency,
		shardTimeout: cfg.ShardTimeout,
		stats:        stats,
	}
}

// Result is a merged global view plus its degradation tag.
type Result struct {
	Rows []types.Row

	// FailedTenants lists shards whose call errored; the rows above are the
	// best-effort union of the remaining shards.
	FailedTenants []int
}

// shardPartial is the per-tenant partial result of a fan-out. Ownership
// transfers to the merge step, the only place allowed to sort or truncate.
type shardPartial struct {
	tenantID int
	rows     []types.Row
	count    int64
	err      error
}

// fanOut runs call once per tenant id with bounded concurrency and a
// per-shard timeout. Results arrive positionally so output order does not
// depend on goroutine scheduling.
func (e *Engine) fanOut(ctx context.Context, call func(ctx context.Context, tenantID int) shardPartial) []shardPartial {
	results := make([]shardPartial, len(e.tenants))
	sem := make(chan struct{}, e.concurrency)
	var wg sync.WaitGroup

	for i, tenantID := range e.tenants {
		wg.Add(1)
		go func(idx, tid int) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[idx] = shardPartial{tenantID: tid, err: ctx.Err()}
				return
			}

			shardCtx, cancel := context.WithTimeout(ctx, e.shardTimeout)
			defer cancel()

			start := time.Now()
			partial := call(shardCtx, tid)
			if partial.err != nil && errors.Is(partial.err, context.DeadlineExceeded) {
				partial.err = cerrors.Wrap(cerrors.ErrCategoryQuery, cerrors.CodeShardTimeout,
					"shard call timed out", partial.err)
			}
			e.stats.RecordShard(tid, time.Since(start), partial.err)
			results[idx] = partial
		}(i, tenantID)
	}

	wg.Wait()
	return results
}

// failedTenants extracts the ids of errored shards, logging each failure.
func (e *Engine) failedTenants(op string, partials []shardPartial) []int {
	var failed []int
	for _, p := range partials {
		if p.err != nil {
			failed = append(failed, p.tenantID)
			log.Printf("fanout: %s failed for tenant %d: %v", op, p.tenantID, p.err)
		}
	}
	if len(failed) > 0 {
		e.stats.RecordDegraded()
	}
	return failed
}

// FindAll executes the same find against every tenant shard and merges the
// partials under the global sort order and pagination. Each shard is asked
// for skip+limit rows as a memory pre-filter; the merge step re-ranks the
// union, so per-shard limits never decide the final page.
func (e *Engine) FindAll(ctx context.Context, rt types.RecordType, filter types.Filter, sorts []types.Sort, page types.Page) (*Result, error) {
	// Bad field names are a client error, not a per-shard degradation.
	if err := shardquery.ValidateFields(rt, filter, sorts); err != nil {
		return nil, err
	}

	shardPage := types.Page{}
	if page.Limit > 0 {
		shardPage.Limit = page.Skip + page.Limit
	}

	partials := e.fanOut(ctx, func(ctx context.Context, tenantID int) shardPartial {
		rows, err := e.single.Find(ctx, tenantID, rt, filter, sorts, shardPage)
		return shardPartial{tenantID: tenantID, rows: rows, err: err}
	})

	return &Result{
		Rows:          mergeRows(partials, sorts, page),
		FailedTenants: e.failedTenants("find", partials),
	}, nil
}

// CountAll sums per-tenant counts. Errored shards count as zero, not as
// unknown; the failed ids come back alongside the total.
func (e *Engine) CountAll(ctx context.Context, rt types.RecordType, filter types.Filter) (int64, []int, error) {
	if err := shardquery.ValidateFields(rt, filter, nil); err != nil {
		return 0, nil, err
	}

	partials := e.fanOut(ctx, func(ctx context.Context, tenantID int) shardPartial {
		n, err := e.single.Count(ctx, tenantID, rt, filter)
		return shardPartial{tenantID: tenantID, count: n, err: err}
	})

	var total int64
	for _, p := range partials {
		if p.err == nil {
			total += p.count
		}
	}
	return total, e.failedTenants("count", partials), nil
}

// AggregateAll executes a pipeline aggregation against every shard and
// merges grouped partials by group key, keeping pipeline semantics identical
// to single-tenant execution.
func (e *Engine) AggregateAll(ctx context.Context, rt types.RecordType, agg pipeline.Aggregation) (*Result, error) {
	partials := e.fanOut(ctx, func(ctx context.Context, tenantID int) shardPartial {
		rows, err := e.single.Aggregate(ctx, tenantID, rt, agg)
		return shardPartial{tenantID: tenantID, rows: rows, err: err}
	})

	return &Result{
		Rows:          mergeGrouped(partials, agg),
		FailedTenants: e.failedTenants("aggregate", partials),
	}, nil
}
