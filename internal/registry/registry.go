// Package registry resolves tenant identifiers to their dedicated partition
// handles. Each (tenant, record type) pair owns at most one handle per
// process; handles are immutable after creation and safely shared read-only
// across concurrent requests.
package registry

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	cerrors "github.com/canvassdb/canvassd/internal/errors"
	"github.com/canvassdb/canvassd/pkg/types"
)

// legacyTenant is the sentinel map key for the legacy global partitions that
// predate per-tenant sharding.
const legacyTenant = 0

// Handle is an opaque, reusable handle bound to one (tenant, record type)
// partition. Immutable after creation.
type Handle struct {
	TenantID   int
	RecordType types.RecordType
	Path       string

	db *sql.DB
}

// DB returns the underlying database for query execution.
func (h *Handle) DB() *sql.DB {
	return h.db
}

type handleKey struct {
	tenantID   int
	recordType types.RecordType
}

// Registry caches partition handles for process lifetime. The creation path
// is the only mutable-shared-state section and is synchronized; concurrent
// first-resolutions for the same pair never create two distinct handles.
type Registry struct {
	mu      sync.RWMutex
	handles map[handleKey]*Handle

	dir     string
	tenants map[int]bool
	ordered []int
}

// New creates a registry over the given partition directory and the fixed
// tenant id set known at startup.
func New(partitionDir string, tenantIDs []int) *Registry {
	tenants := make(map[int]bool, len(tenantIDs))
	ordered := make([]int, 0, len(tenantIDs))
	for _, id := range tenantIDs {
		if !tenants[id] {
			ordered = append(ordered, id)
		}
		tenants[id] = true
	}
	return &Registry{
		handles: make(map[handleKey]*Handle),
		dir:     partitionDir,
		tenants: tenants,
		ordered: ordered,
	}
}

// TenantIDs returns the known tenant ids in registration order.
func (r *Registry) TenantIDs() []int {
	out := make([]int, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// KnownTenant reports whether tenantID is in the configured set.
func (r *Registry) KnownTenant(tenantID int) bool {
	return r.tenants[tenantID]
}

// PartitionPath returns the file path for a (tenant, record type) partition.
func (r *Registry) PartitionPath(tenantID int, rt types.RecordType) string {
	if tenantID == legacyTenant {
		return filepath.Join(r.dir, fmt.Sprintf("legacy_%s.db", rt))
	}
	return filepath.Join(r.dir, fmt.Sprintf("ac_%d_%s.db", tenantID, rt))
}

// Resolve returns the partition handle for (tenantID, recordType).
// Fails with InvalidTenant for ids outside the known set and with
// PartitionAbsent when the partition file does not exist yet. A not-yet-
// populated tenant is a valid, empty dataset, not a fault; callers translate
// PartitionAbsent into an empty result.
func (r *Registry) Resolve(ctx context.Context, tenantID int, rt types.RecordType) (*Handle, error) {
	if !r.tenants[tenantID] {
		return nil, cerrors.NewInvalidTenant(tenantID)
	}
	return r.resolve(ctx, tenantID, rt, false)
}

// ResolveLegacy returns the handle for the designated legacy global partition
// of a record type, used as the fallback tier when a tenant partition is
// structurally absent. Fails with PartitionAbsent when no legacy partition
// exists either.
func (r *Registry) ResolveLegacy(ctx context.Context, rt types.RecordType) (*Handle, error) {
	return r.resolve(ctx, legacyTenant, rt, false)
}

// EnsureForWrite returns the partition handle for (tenantID, recordType),
// creating the partition file and its schema on first write.
func (r *Registry) EnsureForWrite(ctx context.Context, tenantID int, rt types.RecordType) (*Handle, error) {
	if !r.tenants[tenantID] {
		return nil, cerrors.NewInvalidTenant(tenantID)
	}
	return r.resolve(ctx, tenantID, rt, true)
}

func (r *Registry) resolve(ctx context.Context, tenantID int, rt types.RecordType, create bool) (*Handle, error) {
	if !rt.Valid() {
		return nil, cerrors.NewQueryError(cerrors.CodeBadAggregation,
			fmt.Sprintf("unknown record type %q", rt))
	}

	key := handleKey{tenantID: tenantID, recordType: rt}

	r.mu.RLock()
	h, ok := r.handles[key]
	r.mu.RUnlock()
	if ok {
		return h, nil
	}

	path := r.PartitionPath(tenantID, rt)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if !create {
			return nil, cerrors.NewPartitionAbsent(tenantID, string(rt))
		}
	} else if err != nil {
		return nil, cerrors.NewStorageError("failed to stat partition file", err)
	}

	// Resolve-or-create critical section. Double-check under the write lock
	// so a concurrent first-resolution reuses the winner's handle.
	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.handles[key]; ok {
		return h, nil
	}

	db, err := openPartition(ctx, path)
	if err != nil {
		return nil, err
	}

	if create {
		if err := ensureSchema(ctx, db, rt); err != nil {
			db.Close()
			return nil, err
		}
	}

	h = &Handle{
		TenantID:   tenantID,
		RecordType: rt,
		Path:       path,
		db:         db,
	}
	r.handles[key] = h
	return h, nil
}

// openPartition opens a SQLite partition file. Handles serve both reads and
// writes, so partitions always open read-write; existence is checked by the
// caller before rwc mode can create an empty file.
func openPartition(ctx context.Context, path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=rwc&_busy_timeout=5000", path)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, cerrors.NewStorageError("failed to open partition", err)
	}

	// SQLite serializes writers per file; one connection avoids lock churn.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, cerrors.NewStorageError("failed to ping partition", err)
	}

	return db, nil
}

// Invalidate drops the cached handle for a pair, closing its database.
// Used after a snapshot restore replaces the partition file.
func (r *Registry) Invalidate(tenantID int, rt types.RecordType) {
	key := handleKey{tenantID: tenantID, recordType: rt}

	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.handles[key]; ok {
		h.db.Close()
		delete(r.handles, key)
	}
}

// Close closes every open handle.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var lastErr error
	for key, h := range r.handles {
		if err := h.db.Close(); err != nil {
			lastErr = err
		}
		delete(r.handles, key)
	}
	return lastErr
}
