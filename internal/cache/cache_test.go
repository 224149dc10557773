package cache

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/canvassdb/canvassd/internal/pipeline"
	"github.com/canvassdb/canvassd/pkg/types"
)

// TestGetSetRoundTrip tests basic storage and retrieval.
func TestGetSetRoundTrip(t *testing.T) {
	c := New(100)
	c.Set("k", []byte("value"), time.Minute)

	got, ok := c.Get("k")
	if !ok {
		t.Fatal("expected hit")
	}
	if string(got) != "value" {
		t.Errorf("got %q, want value", got)
	}

	if _, ok := c.Get("missing"); ok {
		t.Error("expected miss for unknown key")
	}
}

// TestLazyExpiry tests that entries expire on read, not eagerly.
func TestLazyExpiry(t *testing.T) {
	c := New(100)
	c.Set("k", []byte("v"), 10*time.Millisecond)

	if _, ok := c.Get("k"); !ok {
		t.Fatal("expected hit before expiry")
	}

	time.Sleep(20 * time.Millisecond)

	// Entry still counted until a read sweeps it.
	if c.Len() != 1 {
		t.Errorf("expected entry to linger until read, Len = %d", c.Len())
	}
	if _, ok := c.Get("k"); ok {
		t.Error("expected miss after TTL")
	}
	if c.Len() != 0 {
		t.Errorf("expected expired entry removed on read, Len = %d", c.Len())
	}
}

// TestZeroTTLNotStored tests that non-positive TTLs are a no-op.
func TestZeroTTLNotStored(t *testing.T) {
	c := New(100)
	c.Set("k", []byte("v"), 0)
	c.Set("k2", []byte("v"), -time.Second)
	if c.Len() != 0 {
		t.Errorf("expected nothing stored, Len = %d", c.Len())
	}
}

// TestCompressionRoundTrip tests that large values survive the compressed
// storage path byte for byte.
func TestCompressionRoundTrip(t *testing.T) {
	c := New(100)

	large := bytes.Repeat([]byte("abcdefgh"), 1024)
	c.Set("big", large, time.Minute)

	got, ok := c.Get("big")
	if !ok {
		t.Fatal("expected hit")
	}
	if !bytes.Equal(got, large) {
		t.Error("compressed value did not round trip")
	}
}

// TestEvictionBound tests that the cache never exceeds its entry bound.
func TestEvictionBound(t *testing.T) {
	c := New(10)
	for i := 0; i < 50; i++ {
		c.Set(fmt.Sprintf("k%d", i), []byte("v"), time.Minute)
	}
	if c.Len() > 10 {
		t.Errorf("cache exceeded bound: Len = %d", c.Len())
	}
	// The most recent insert always lands.
	if _, ok := c.Get("k49"); !ok {
		t.Error("expected latest entry to survive eviction")
	}
}

// TestEvictionSweepsExpiredFirst tests that expired entries go before live
// ones when the bound is hit.
func TestEvictionSweepsExpiredFirst(t *testing.T) {
	c := New(3)
	c.Set("dead1", []byte("v"), time.Nanosecond)
	c.Set("dead2", []byte("v"), time.Nanosecond)
	c.Set("live", []byte("v"), time.Hour)

	time.Sleep(time.Millisecond)
	c.Set("new", []byte("v"), time.Hour)

	if _, ok := c.Get("live"); !ok {
		t.Error("live entry evicted while expired entries were available")
	}
	if _, ok := c.Get("new"); !ok {
		t.Error("new entry missing after eviction")
	}
}

// TestQueryKeyIncorporatesEveryParameter tests that keys change when any
// request parameter changes.
func TestQueryKeyIncorporatesEveryParameter(t *testing.T) {
	base := QueryKey(types.SingleScope(101), types.RecordVoters,
		types.NewFilter().WithEq("booth_no", 1), []types.Sort{{Field: "name"}}, types.Page{Limit: 10})

	variants := []string{
		QueryKey(types.SingleScope(102), types.RecordVoters,
			types.NewFilter().WithEq("booth_no", 1), []types.Sort{{Field: "name"}}, types.Page{Limit: 10}),
		QueryKey(types.AllScope(), types.RecordVoters,
			types.NewFilter().WithEq("booth_no", 1), []types.Sort{{Field: "name"}}, types.Page{Limit: 10}),
		QueryKey(types.SingleScope(101), types.RecordSurveys,
			types.NewFilter().WithEq("booth_no", 1), []types.Sort{{Field: "name"}}, types.Page{Limit: 10}),
		QueryKey(types.SingleScope(101), types.RecordVoters,
			types.NewFilter().WithEq("booth_no", 2), []types.Sort{{Field: "name"}}, types.Page{Limit: 10}),
		QueryKey(types.SingleScope(101), types.RecordVoters,
			types.NewFilter().WithEq("booth_no", 1), []types.Sort{{Field: "name", Desc: true}}, types.Page{Limit: 10}),
		QueryKey(types.SingleScope(101), types.RecordVoters,
			types.NewFilter().WithEq("booth_no", 1), []types.Sort{{Field: "name"}}, types.Page{Skip: 10, Limit: 10}),
	}
	for i, v := range variants {
		if v == base {
			t.Errorf("variant %d collides with base key %q", i, base)
		}
	}
}

// TestQueryKeyStable tests that the same logical request always produces the
// same key regardless of filter construction order.
func TestQueryKeyStable(t *testing.T) {
	a := QueryKey(types.SingleScope(101), types.RecordVoters,
		types.NewFilter().WithEq("a", 1).WithEq("b", 2), nil, types.Page{})
	b := QueryKey(types.SingleScope(101), types.RecordVoters,
		types.NewFilter().WithEq("b", 2).WithEq("a", 1), nil, types.Page{})
	if a != b {
		t.Errorf("logically equal requests produced different keys: %q vs %q", a, b)
	}
}

// TestAggregateKeyDistinct tests aggregate key separation from query keys.
func TestAggregateKeyDistinct(t *testing.T) {
	agg := pipeline.GroupCount(types.RecordVoters, "booth_no", types.NewFilter())
	ak := AggregateKey(types.AllScope(), types.RecordVoters, agg)
	qk := QueryKey(types.AllScope(), types.RecordVoters, types.NewFilter(), nil, types.Page{})
	if ak == qk {
		t.Error("aggregate and query keys must not collide")
	}

	other := AggregateKey(types.AllScope(), types.RecordVoters,
		pipeline.GroupCount(types.RecordVoters, "family_id", types.NewFilter()))
	if ak == other {
		t.Error("different aggregations must not share a key")
	}
}

// TestClear tests full reset.
func TestClear(t *testing.T) {
	c := New(100)
	c.Set("k", []byte("v"), time.Minute)
	c.Clear()
	if c.Len() != 0 {
		t.Errorf("expected empty cache after Clear, Len = %d", c.Len())
	}
}
