// Package snapshot archives partition files to object storage and restores
// them, snappy-compressed. Restore backfills a structurally absent partition
// from its last snapshot; an absent snapshot is as meaningful as an absent
// partition and is reported distinctly.
package snapshot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang/snappy"

	cerrors "github.com/canvassdb/canvassd/internal/errors"
	"github.com/canvassdb/canvassd/internal/registry"
	"github.com/canvassdb/canvassd/internal/storage"
	"github.com/canvassdb/canvassd/pkg/types"
)

// Archiver snapshots partition files into object storage.
type Archiver struct {
	reg     *registry.Registry
	store   storage.ObjectStorage
	prefix  string
	workDir string
}

// New creates an archiver writing under prefix in the given storage backend.
// workDir holds transient compressed files.
func New(reg *registry.Registry, store storage.ObjectStorage, prefix, workDir string) *Archiver {
	if prefix == "" {
		prefix = "snapshots"
	}
	return &Archiver{reg: reg, store: store, prefix: prefix, workDir: workDir}
}

// objectPath returns the archive location for a partition snapshot.
func (a *Archiver) objectPath(tenantID int, rt types.RecordType) string {
	return fmt.Sprintf("%s/ac_%d_%s.db.sz", a.prefix, tenantID, rt)
}

// Archive compresses and uploads the partition file for (tenantID, rt).
// Archiving an absent partition is a no-op.
func (a *Archiver) Archive(ctx context.Context, tenantID int, rt types.RecordType) error {
	if !a.reg.KnownTenant(tenantID) {
		return cerrors.NewInvalidTenant(tenantID)
	}

	src := a.reg.PartitionPath(tenantID, rt)
	data, err := os.ReadFile(src)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return cerrors.NewStorageError("failed to read partition for snapshot", err)
	}

	if err := os.MkdirAll(a.workDir, 0755); err != nil {
		return cerrors.NewStorageError("failed to create snapshot work dir", err)
	}

	tmp := filepath.Join(a.workDir, fmt.Sprintf("ac_%d_%s.db.sz", tenantID, rt))
	if err := os.WriteFile(tmp, snappy.Encode(nil, data), 0644); err != nil {
		return cerrors.NewStorageError("failed to write compressed snapshot", err)
	}
	defer os.Remove(tmp)

	if err := a.store.Upload(ctx, tmp, a.objectPath(tenantID, rt)); err != nil {
		return cerrors.Wrap(cerrors.ErrCategoryStorage, cerrors.CodeUploadFailed,
			"snapshot upload failed", err)
	}
	return nil
}

// Restore downloads and decompresses the latest snapshot for (tenantID, rt),
// replacing the local partition file and invalidating its cached handle.
// Returns PartitionAbsent when no snapshot exists.
func (a *Archiver) Restore(ctx context.Context, tenantID int, rt types.RecordType) error {
	if !a.reg.KnownTenant(tenantID) {
		return cerrors.NewInvalidTenant(tenantID)
	}

	if err := os.MkdirAll(a.workDir, 0755); err != nil {
		return cerrors.NewStorageError("failed to create snapshot work dir", err)
	}

	tmp := filepath.Join(a.workDir, fmt.Sprintf("restore_ac_%d_%s.db.sz", tenantID, rt))
	defer os.Remove(tmp)

	if err := a.store.Download(ctx, a.objectPath(tenantID, rt), tmp); err != nil {
		if err == storage.ErrObjectNotFound {
			return cerrors.NewPartitionAbsent(tenantID, string(rt))
		}
		return cerrors.Wrap(cerrors.ErrCategoryStorage, cerrors.CodeDownloadFailed,
			"snapshot download failed", err)
	}

	compressed, err := os.ReadFile(tmp)
	if err != nil {
		return cerrors.NewStorageError("failed to read downloaded snapshot", err)
	}
	data, err := snappy.Decode(nil, compressed)
	if err != nil {
		return cerrors.NewStorageError("snapshot is corrupt", err)
	}

	dst := a.reg.PartitionPath(tenantID, rt)
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return cerrors.NewStorageError("failed to create partition dir", err)
	}
	if err := os.WriteFile(dst, data, 0644); err != nil {
		return cerrors.NewStorageError("failed to write restored partition", err)
	}

	// Drop any stale handle so the next resolve sees the restored file.
	a.reg.Invalidate(tenantID, rt)
	return nil
}

// List returns the object paths of every stored snapshot.
func (a *Archiver) List(ctx context.Context) ([]string, error) {
	objects, err := a.store.ListObjects(ctx, a.prefix+"/")
	if err != nil {
		return nil, cerrors.NewStorageError("failed to list snapshots", err)
	}
	return objects, nil
}
