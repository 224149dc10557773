// Package server provides server lifecycle management including graceful
// shutdown.
package server

import (
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// ShutdownManager coordinates signal handling, HTTP server drain, and
// resource cleanup.
type ShutdownManager struct {
	shutdownTimeout time.Duration

	shutdownCh   chan struct{}
	shutdownOnce sync.Once

	servers   []*http.Server
	closers   []io.Closer
	resources sync.Mutex
}

// NewShutdownManager creates a shutdown manager. A zero timeout defaults to
// 30 seconds.
func NewShutdownManager(timeout time.Duration) *ShutdownManager {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ShutdownManager{
		shutdownTimeout: timeout,
		shutdownCh:      make(chan struct{}),
	}
}

// RegisterServer adds an HTTP server to drain on shutdown.
func (sm *ShutdownManager) RegisterServer(srv *http.Server) {
	sm.resources.Lock()
	defer sm.resources.Unlock()
	sm.servers = append(sm.servers, srv)
}

// RegisterCloser adds a closer to be called during shutdown.
// Closers are called in reverse order of registration (LIFO).
func (sm *ShutdownManager) RegisterCloser(closer io.Closer) {
	sm.resources.Lock()
	defer sm.resources.Unlock()
	sm.closers = append(sm.closers, closer)
}

// WaitForSignal blocks until SIGINT/SIGTERM or an explicit Shutdown call,
// then drains servers and closes resources.
func (sm *ShutdownManager) WaitForSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("server: received %s, shutting down", sig)
	case <-sm.shutdownCh:
	}

	sm.drain()
}

// Shutdown triggers the shutdown sequence programmatically.
func (sm *ShutdownManager) Shutdown() {
	sm.shutdownOnce.Do(func() {
		close(sm.shutdownCh)
	})
}

// drain stops servers and closes resources within the shutdown timeout.
func (sm *ShutdownManager) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), sm.shutdownTimeout)
	defer cancel()

	sm.resources.Lock()
	servers := sm.servers
	closers := sm.closers
	sm.resources.Unlock()

	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("server: shutdown error: %v", err)
		}
	}

	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			log.Printf("server: close error: %v", err)
		}
	}
}
