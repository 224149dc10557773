// Package app provides the application lifecycle for canvassd.
package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"sync"

	"github.com/canvassdb/canvassd/internal/access"
	httpapi "github.com/canvassdb/canvassd/internal/api/http"
	"github.com/canvassdb/canvassd/internal/cache"
	"github.com/canvassdb/canvassd/internal/config"
	"github.com/canvassdb/canvassd/internal/core"
	"github.com/canvassdb/canvassd/internal/fanout"
	"github.com/canvassdb/canvassd/internal/observability"
	"github.com/canvassdb/canvassd/internal/registry"
	"github.com/canvassdb/canvassd/internal/server"
	"github.com/canvassdb/canvassd/internal/shardquery"
	"github.com/canvassdb/canvassd/internal/snapshot"
	"github.com/canvassdb/canvassd/internal/storage"
)

// App owns every long-lived component of the service.
type App struct {
	cfg *config.Config

	registry    *registry.Registry
	storage     storage.ObjectStorage
	archiver    *snapshot.Archiver
	core        *core.Core
	fanoutStats *observability.FanoutStats
	shutdown    *server.ShutdownManager

	apiServer *http.Server

	mu      sync.Mutex
	running bool
}

// New creates the app from a validated configuration.
func New(cfg *config.Config) (*App, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}
	return &App{cfg: cfg}, nil
}

// Start wires the component graph and begins serving.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("app is already running")
	}
	a.running = true
	a.mu.Unlock()

	a.shutdown = server.NewShutdownManager(0)

	a.registry = registry.New(a.cfg.Query.PartitionDir, a.cfg.Tenants)
	a.shutdown.RegisterCloser(a.registry)

	single := shardquery.New(a.registry)
	a.fanoutStats = observability.NewFanoutStats()
	multi := fanout.New(single, a.cfg.Tenants, fanout.Config{
		Concurrency:  a.cfg.Query.FanoutConcurrency,
		ShardTimeout: a.cfg.Query.ShardTimeout,
	}, a.fanoutStats)

	responses := cache.New(a.cfg.Cache.MaxEntries)
	af := access.NewFilter(a.cfg.Tenants)
	a.core = core.New(af, single, multi, responses, a.cfg.Cache.DefaultTTL)

	if a.cfg.Snapshot.Enabled {
		if err := a.initStorage(ctx); err != nil {
			return fmt.Errorf("failed to initialize snapshot storage: %w", err)
		}
		workDir := filepath.Join(a.cfg.DataDir, "snapshot-work")
		a.archiver = snapshot.New(a.registry, a.storage, a.cfg.Snapshot.Prefix, workDir)
	}

	router := httpapi.NewRouter(httpapi.RouterConfig{
		Core:         a.core,
		FanoutStats:  a.fanoutStats,
		Archiver:     a.archiver,
		DashboardTTL: a.cfg.Cache.DefaultTTL,
	})

	a.apiServer = &http.Server{
		Addr:         a.cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  a.cfg.HTTP.ReadTimeout,
		WriteTimeout: a.cfg.HTTP.WriteTimeout,
		IdleTimeout:  a.cfg.HTTP.IdleTimeout,
	}
	a.shutdown.RegisterServer(a.apiServer)

	go func() {
		log.Printf("app: api listening on %s", a.cfg.HTTP.Addr)
		if err := a.apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("app: api server error: %v", err)
			a.shutdown.Shutdown()
		}
	}()

	log.Printf("app: started with %d constituencies", len(a.cfg.Tenants))
	return nil
}

// initStorage builds the object storage backend for snapshots.
func (a *App) initStorage(ctx context.Context) error {
	var err error
	switch a.cfg.Storage.Type {
	case "local":
		a.storage, err = storage.NewLocalStorage(a.cfg.Storage.Path)
	case "s3":
		a.storage, err = storage.NewS3Storage(ctx, a.cfg.Storage.S3.Bucket, storage.S3Config{
			Region:   a.cfg.Storage.S3.Region,
			Endpoint: a.cfg.Storage.S3.Endpoint,
		})
	default:
		err = fmt.Errorf("unsupported storage type: %s", a.cfg.Storage.Type)
	}
	return err
}

// Wait blocks until a termination signal arrives and shutdown completes.
func (a *App) Wait() {
	a.shutdown.WaitForSignal()
}

// Stop triggers graceful shutdown programmatically.
func (a *App) Stop() {
	a.shutdown.Shutdown()
}

// Core exposes the data-access facade, mainly for embedding and tests.
func (a *App) Core() *core.Core {
	return a.core
}
