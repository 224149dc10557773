// Package observability tracks per-shard fan-out health so a degraded global
// view can alert without failing the user-facing request.
package observability

import (
	"sort"
	"sync"
	"time"
)

// ShardStats holds counters for one tenant's shard.
type ShardStats struct {
	TenantID    int
	Successes   int64
	Failures    int64
	LastError   string
	LastLatency time.Duration
	LastSeen    time.Time
}

// FanoutStats aggregates shard outcomes across fan-out calls.
type FanoutStats struct {
	mu       sync.RWMutex
	shards   map[int]*ShardStats
	degraded int64
}

// NewFanoutStats creates an empty stats tracker.
func NewFanoutStats() *FanoutStats {
	return &FanoutStats{
		shards: make(map[int]*ShardStats),
	}
}

// RecordShard records the outcome of one per-tenant call.
// This method is O(1) and thread-safe.
func (f *FanoutStats) RecordShard(tenantID int, latency time.Duration, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	stats, ok := f.shards[tenantID]
	if !ok {
		stats = &ShardStats{TenantID: tenantID}
		f.shards[tenantID] = stats
	}

	stats.LastLatency = latency
	stats.LastSeen = time.Now()
	if err != nil {
		stats.Failures++
		stats.LastError = err.Error()
	} else {
		stats.Successes++
	}
}

// RecordDegraded counts a fan-out that completed with failed shards.
func (f *FanoutStats) RecordDegraded() {
	f.mu.Lock()
	f.degraded++
	f.mu.Unlock()
}

// DegradedFanouts returns the number of fan-outs that returned partial views.
func (f *FanoutStats) DegradedFanouts() int64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.degraded
}

// Snapshot returns a copy of all shard stats sorted by tenant id.
func (f *FanoutStats) Snapshot() []ShardStats {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]ShardStats, 0, len(f.shards))
	for _, s := range f.shards {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TenantID < out[j].TenantID })
	return out
}
