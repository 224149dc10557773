package observability

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

// TestRecordShardConcurrent tests concurrent recording for race safety and
// counter accuracy.
func TestRecordShardConcurrent(t *testing.T) {
	fs := NewFanoutStats()
	var wg sync.WaitGroup
	goroutines := 8
	perGoroutine := 100

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				fs.RecordShard(101, time.Millisecond, nil)
				fs.RecordShard(102, time.Millisecond, fmt.Errorf("down"))
			}
		}()
	}
	wg.Wait()

	snap := fs.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 shards, got %d", len(snap))
	}

	want := int64(goroutines * perGoroutine)
	if snap[0].TenantID != 101 || snap[0].Successes != want || snap[0].Failures != 0 {
		t.Errorf("tenant 101 stats = %+v", snap[0])
	}
	if snap[1].TenantID != 102 || snap[1].Failures != want || snap[1].Successes != 0 {
		t.Errorf("tenant 102 stats = %+v", snap[1])
	}
	if snap[1].LastError != "down" {
		t.Errorf("LastError = %q", snap[1].LastError)
	}
}

// TestSnapshotSorted tests deterministic ordering by tenant id.
func TestSnapshotSorted(t *testing.T) {
	fs := NewFanoutStats()
	for _, tid := range []int{105, 101, 103} {
		fs.RecordShard(tid, 0, nil)
	}

	snap := fs.Snapshot()
	for i := 1; i < len(snap); i++ {
		if snap[i-1].TenantID > snap[i].TenantID {
			t.Errorf("snapshot not sorted: %d before %d", snap[i-1].TenantID, snap[i].TenantID)
		}
	}
}

// TestDegradedCounter tests the degraded fan-out counter.
func TestDegradedCounter(t *testing.T) {
	fs := NewFanoutStats()
	if fs.DegradedFanouts() != 0 {
		t.Error("expected zero degraded fan-outs initially")
	}
	fs.RecordDegraded()
	fs.RecordDegraded()
	if fs.DegradedFanouts() != 2 {
		t.Errorf("DegradedFanouts = %d, want 2", fs.DegradedFanouts())
	}
}

// TestSnapshotIsCopy tests that mutating a snapshot does not affect the
// tracker.
func TestSnapshotIsCopy(t *testing.T) {
	fs := NewFanoutStats()
	fs.RecordShard(101, 0, nil)

	snap := fs.Snapshot()
	snap[0].Successes = 999

	if fs.Snapshot()[0].Successes != 1 {
		t.Error("snapshot mutation leaked into the tracker")
	}
}
