package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/canvassdb/canvassd/internal/core"
	"github.com/canvassdb/canvassd/internal/observability"
	"github.com/canvassdb/canvassd/internal/snapshot"
	"github.com/canvassdb/canvassd/pkg/types"
)

// RouterConfig carries the collaborators the routes need.
type RouterConfig struct {
	Core         *core.Core
	FanoutStats  *observability.FanoutStats
	Archiver     *snapshot.Archiver // nil when snapshots are disabled
	DashboardTTL time.Duration
}

// NewRouter builds the API mux. Record routes follow the pattern
// /api/<type> with a /count subroute; admin routes sit under /api/admin.
func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	for _, rt := range types.AllRecordTypes {
		h := NewRecordsHandler(cfg.Core, rt)
		base := "/api/" + strings.ReplaceAll(string(rt), "_", "-")
		mux.Handle(base, h)
		mux.Handle(base+"/count", countHandler(cfg.Core, rt))
	}

	mux.Handle("/api/dashboard/stats", NewDashboardHandler(cfg.Core, cfg.DashboardTTL))
	mux.Handle("/api/admin/fanout", NewFanoutStatsHandler(cfg.FanoutStats))

	if cfg.Archiver != nil {
		sh := &SnapshotHandler{archiver: cfg.Archiver}
		mux.HandleFunc("/api/admin/snapshots", sh.list)
		mux.HandleFunc("/api/admin/snapshots/archive", sh.archive)
		mux.HandleFunc("/api/admin/snapshots/restore", sh.restore)
	}

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return DefaultMiddleware()(mux)
}

// countHandler serves the scoped row count for one record type.
func countHandler(c *core.Core, rt types.RecordType) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := GetRequestID(r.Context())

		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed", "", requestID)
			return
		}

		identity, err := identityFromRequest(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), "", requestID)
			return
		}
		scopeReq, err := scopeFromRequest(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), "", requestID)
			return
		}

		n, failed, err := c.Count(r.Context(), identity, scopeReq, rt, types.NewFilter())
		if err != nil {
			writeCoreError(w, err, requestID)
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"count":          n,
			"failed_tenants": failed,
			"request_id":     requestID,
		})
	})
}

// SnapshotHandler serves the partition archive/restore admin routes.
type SnapshotHandler struct {
	archiver *snapshot.Archiver
}

// authorize rejects everyone but unrestricted callers.
func (h *SnapshotHandler) authorize(w http.ResponseWriter, r *http.Request, requestID string) bool {
	identity, err := identityFromRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "", requestID)
		return false
	}
	if identity.Role != types.RoleUnrestricted {
		writeError(w, http.StatusForbidden, "snapshot administration requires an unrestricted caller", "", requestID)
		return false
	}
	return true
}

// target parses the ?ac= and ?type= parameters shared by archive and restore.
func (h *SnapshotHandler) target(r *http.Request) (int, types.RecordType, error) {
	tenantID, err := strconv.Atoi(r.URL.Query().Get("ac"))
	if err != nil {
		return 0, "", err
	}
	rt, err := types.ParseRecordType(r.URL.Query().Get("type"))
	if err != nil {
		return 0, "", err
	}
	return tenantID, rt, nil
}

func (h *SnapshotHandler) list(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "", requestID)
		return
	}
	if !h.authorize(w, r, requestID) {
		return
	}

	objects, err := h.archiver.List(r.Context())
	if err != nil {
		writeCoreError(w, err, requestID)
		return
	}
	if objects == nil {
		objects = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"snapshots":  objects,
		"request_id": requestID,
	})
}

func (h *SnapshotHandler) archive(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "", requestID)
		return
	}
	if !h.authorize(w, r, requestID) {
		return
	}

	tenantID, rt, err := h.target(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "", requestID)
		return
	}
	if err := h.archiver.Archive(r.Context(), tenantID, rt); err != nil {
		writeCoreError(w, err, requestID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"archived":   true,
		"request_id": requestID,
	})
}

func (h *SnapshotHandler) restore(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "", requestID)
		return
	}
	if !h.authorize(w, r, requestID) {
		return
	}

	tenantID, rt, err := h.target(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "", requestID)
		return
	}
	if err := h.archiver.Restore(r.Context(), tenantID, rt); err != nil {
		writeCoreError(w, err, requestID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"restored":   true,
		"request_id": requestID,
	})
}
