package server

import (
	"testing"
	"time"
)

type recordingCloser struct {
	order *[]string
	name  string
}

func (c *recordingCloser) Close() error {
	*c.order = append(*c.order, c.name)
	return nil
}

// TestClosersLIFO tests that resources close in reverse registration order.
func TestClosersLIFO(t *testing.T) {
	sm := NewShutdownManager(time.Second)

	var order []string
	sm.RegisterCloser(&recordingCloser{order: &order, name: "first"})
	sm.RegisterCloser(&recordingCloser{order: &order, name: "second"})
	sm.RegisterCloser(&recordingCloser{order: &order, name: "third"})

	done := make(chan struct{})
	go func() {
		sm.WaitForSignal()
		close(done)
	}()

	sm.Shutdown()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not complete")
	}

	want := []string{"third", "second", "first"}
	if len(order) != len(want) {
		t.Fatalf("close order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("close order = %v, want %v", order, want)
			break
		}
	}
}

// TestShutdownIdempotent tests that repeated Shutdown calls are safe.
func TestShutdownIdempotent(t *testing.T) {
	sm := NewShutdownManager(time.Second)
	sm.Shutdown()
	sm.Shutdown()
}

// TestZeroTimeoutDefaults tests the default shutdown window.
func TestZeroTimeoutDefaults(t *testing.T) {
	sm := NewShutdownManager(0)
	if sm.shutdownTimeout != 30*time.Second {
		t.Errorf("default timeout = %v, want 30s", sm.shutdownTimeout)
	}
}
