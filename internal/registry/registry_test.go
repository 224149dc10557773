package registry

import (
	"context"
	"sync"
	"testing"

	cerrors "github.com/canvassdb/canvassd/internal/errors"
	"github.com/canvassdb/canvassd/pkg/types"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := New(t.TempDir(), []int{101, 102, 103})
	t.Cleanup(func() { r.Close() })
	return r
}

// TestResolveUnknownTenant tests that ids outside the configured set fail
// with InvalidTenant.
func TestResolveUnknownTenant(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.Resolve(context.Background(), 999, types.RecordVoters)
	if !cerrors.IsInvalidTenant(err) {
		t.Errorf("expected InvalidTenant, got %v", err)
	}
}

// TestResolveAbsentPartition tests that a known tenant without a partition
// file fails with PartitionAbsent, not a storage fault.
func TestResolveAbsentPartition(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.Resolve(context.Background(), 101, types.RecordVoters)
	if !cerrors.IsPartitionAbsent(err) {
		t.Errorf("expected PartitionAbsent, got %v", err)
	}
}

// TestEnsureForWriteCreatesPartition tests first-write partition creation and
// that subsequent reads resolve the same handle.
func TestEnsureForWriteCreatesPartition(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	h, err := r.EnsureForWrite(ctx, 101, types.RecordVoters)
	if err != nil {
		t.Fatalf("EnsureForWrite failed: %v", err)
	}
	if h.TenantID != 101 || h.RecordType != types.RecordVoters {
		t.Errorf("handle metadata wrong: %+v", h)
	}

	// Schema exists: the table is queryable.
	var n int64
	if err := h.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM voters").Scan(&n); err != nil {
		t.Fatalf("schema missing after EnsureForWrite: %v", err)
	}

	resolved, err := r.Resolve(ctx, 101, types.RecordVoters)
	if err != nil {
		t.Fatalf("Resolve after create failed: %v", err)
	}
	if resolved != h {
		t.Error("Resolve returned a different handle than EnsureForWrite")
	}
}

// TestResolveIdempotent tests the at-most-one-handle invariant across
// repeated resolutions.
func TestResolveIdempotent(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	if _, err := r.EnsureForWrite(ctx, 102, types.RecordSurveys); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	h1, err := r.Resolve(ctx, 102, types.RecordSurveys)
	if err != nil {
		t.Fatalf("first resolve failed: %v", err)
	}
	h2, err := r.Resolve(ctx, 102, types.RecordSurveys)
	if err != nil {
		t.Fatalf("second resolve failed: %v", err)
	}
	if h1 != h2 {
		t.Error("repeated resolution returned distinct handles")
	}
}

// TestConcurrentResolveSingleHandle tests that concurrent first-resolutions
// of the same pair never create two distinct handles.
func TestConcurrentResolveSingleHandle(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	if _, err := r.EnsureForWrite(ctx, 103, types.RecordVoters); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	r.Invalidate(103, types.RecordVoters)

	const goroutines = 16
	handles := make([]*Handle, goroutines)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			h, err := r.Resolve(ctx, 103, types.RecordVoters)
			if err != nil {
				t.Errorf("concurrent resolve failed: %v", err)
				return
			}
			handles[idx] = h
		}(i)
	}
	wg.Wait()

	for i := 1; i < goroutines; i++ {
		if handles[i] != handles[0] {
			t.Fatal("concurrent resolution created distinct handles")
		}
	}
}

// TestDistinctPairsDistinctHandles tests that different (tenant, type) pairs
// get their own partitions.
func TestDistinctPairsDistinctHandles(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	hVoters, err := r.EnsureForWrite(ctx, 101, types.RecordVoters)
	if err != nil {
		t.Fatalf("voters create failed: %v", err)
	}
	hSurveys, err := r.EnsureForWrite(ctx, 101, types.RecordSurveys)
	if err != nil {
		t.Fatalf("surveys create failed: %v", err)
	}
	hOther, err := r.EnsureForWrite(ctx, 102, types.RecordVoters)
	if err != nil {
		t.Fatalf("second tenant create failed: %v", err)
	}

	if hVoters == hSurveys || hVoters == hOther {
		t.Error("distinct pairs shared a handle")
	}
	if hVoters.Path == hSurveys.Path || hVoters.Path == hOther.Path {
		t.Error("distinct pairs shared a partition file")
	}
}

// TestResolveLegacyAbsent tests the legacy tier failing cleanly when no
// legacy partition exists.
func TestResolveLegacyAbsent(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.ResolveLegacy(context.Background(), types.RecordVoters)
	if !cerrors.IsPartitionAbsent(err) {
		t.Errorf("expected PartitionAbsent for missing legacy partition, got %v", err)
	}
}

// TestInvalidate tests that invalidation drops the cached handle and the next
// resolve opens a fresh one.
func TestInvalidate(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	h1, err := r.EnsureForWrite(ctx, 101, types.RecordVoters)
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	r.Invalidate(101, types.RecordVoters)

	h2, err := r.Resolve(ctx, 101, types.RecordVoters)
	if err != nil {
		t.Fatalf("resolve after invalidate failed: %v", err)
	}
	if h1 == h2 {
		t.Error("expected a fresh handle after invalidation")
	}
}

// TestTenantIDsOrder tests registration-order iteration with duplicates
// dropped.
func TestTenantIDsOrder(t *testing.T) {
	r := New(t.TempDir(), []int{103, 101, 103, 102})
	defer r.Close()

	ids := r.TenantIDs()
	want := []int{103, 101, 102}
	if len(ids) != len(want) {
		t.Fatalf("TenantIDs() = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("TenantIDs()[%d] = %d, want %d", i, ids[i], want[i])
		}
	}
}
