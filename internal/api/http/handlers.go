package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/canvassdb/canvassd/internal/core"
	"github.com/canvassdb/canvassd/internal/observability"
	"github.com/canvassdb/canvassd/internal/pipeline"
	"github.com/canvassdb/canvassd/pkg/types"
)

// RecordsHandler serves list/count/create for one record type.
type RecordsHandler struct {
	core       *core.Core
	recordType types.RecordType
}

// NewRecordsHandler creates a handler bound to a record type.
func NewRecordsHandler(c *core.Core, rt types.RecordType) *RecordsHandler {
	return &RecordsHandler{core: c, recordType: rt}
}

// ServeHTTP dispatches GET (list) and POST (create).
func (h *RecordsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	identity, err := identityFromRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "", requestID)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.list(w, r, identity, requestID)
	case http.MethodPost:
		h.create(w, r, identity, requestID)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "", requestID)
	}
}

// list runs a scoped find with optional booth/family filters.
func (h *RecordsHandler) list(w http.ResponseWriter, r *http.Request, identity types.CallerIdentity, requestID string) {
	scopeReq, err := scopeFromRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "", requestID)
		return
	}

	filter := types.NewFilter()
	if v := r.URL.Query().Get("booth"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter = filter.WithEq("booth_no", n)
		}
	}
	if v := r.URL.Query().Get("family"); v != "" {
		filter = filter.WithEq("family_id", v)
	}

	var sorts []types.Sort
	if v := r.URL.Query().Get("sort"); v != "" {
		sorts = append(sorts, types.Sort{Field: v, Desc: r.URL.Query().Get("order") == "desc"})
	}

	result, err := h.core.Query(r.Context(), identity, scopeReq, h.recordType, filter, sorts, pageFromRequest(r))
	if err != nil {
		writeCoreError(w, err, requestID)
		return
	}

	if result.Rows == nil {
		result.Rows = []types.Row{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rows":           result.Rows,
		"failed_tenants": result.FailedTenants,
		"request_id":     requestID,
	})
}

// create routes a write to the target tenant's partition.
func (h *RecordsHandler) create(w http.ResponseWriter, r *http.Request, identity types.CallerIdentity, requestID string) {
	var body struct {
		TenantID int       `json:"tenant_id"`
		Row      types.Row `json:"row"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err), "", requestID)
		return
	}
	if body.Row == nil {
		writeError(w, http.StatusBadRequest, "row is required", "", requestID)
		return
	}

	id, err := h.core.Insert(r.Context(), identity, body.TenantID, h.recordType, body.Row)
	if err != nil {
		writeCoreError(w, err, requestID)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":         id,
		"request_id": requestID,
	})
}

// DashboardHandler serves the aggregate statistics view consumed by the
// dashboard charts.
type DashboardHandler struct {
	core *core.Core
	ttl  time.Duration
}

// NewDashboardHandler creates the dashboard stats handler.
func NewDashboardHandler(c *core.Core, ttl time.Duration) *DashboardHandler {
	return &DashboardHandler{core: c, ttl: ttl}
}

// dashboardStats is the cached stats document.
type dashboardStats struct {
	TotalVoters    int64       `json:"total_voters"`
	SurveyedVoters int64       `json:"surveyed_voters"`
	CompletionRate float64     `json:"completion_rate"`
	BoothCounts    []types.Row `json:"booth_counts"`
	AgeBands       []types.Row `json:"age_bands"`
	GrowthByMonth  []types.Row `json:"growth_by_month"`
	FailedTenants  []int       `json:"failed_tenants,omitempty"`
}

// ServeHTTP computes the dashboard stats through the cached contract; the
// caller's scope is re-authorized even when the document is a cache hit.
func (h *DashboardHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
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

	key := fmt.Sprintf("dash:%s", r.URL.Query().Get("ac"))
	data, err := h.core.Cached(r.Context(), identity, scopeReq, key, h.ttl,
		func(ctx context.Context, scope types.Scope) ([]byte, error) {
			stats, err := h.compute(ctx, identity, scopeReq)
			if err != nil {
				return nil, err
			}
			return json.Marshal(stats)
		})
	if err != nil {
		writeCoreError(w, err, requestID)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// compute builds the stats document with one facet pass plus the chart
// groupings.
func (h *DashboardHandler) compute(ctx context.Context, identity types.CallerIdentity, scopeReq types.ScopeRequest) (*dashboardStats, error) {
	facets := pipeline.Facets(types.RecordVoters, types.NewFilter(),
		pipeline.CountAllFacet("total"),
		pipeline.CountIfFacet("surveyed", "survey_done = 1"),
	)
	facetResult, err := h.core.Aggregate(ctx, identity, scopeReq, types.RecordVoters, facets)
	if err != nil {
		return nil, err
	}

	stats := &dashboardStats{
		BoothCounts:   []types.Row{},
		AgeBands:      []types.Row{},
		GrowthByMonth: []types.Row{},
	}
	if len(facetResult.Rows) > 0 {
		stats.TotalVoters = rowInt(facetResult.Rows[0], "total")
		stats.SurveyedVoters = rowInt(facetResult.Rows[0], "surveyed")
	}
	stats.CompletionRate = pipeline.Percent(stats.SurveyedVoters, stats.TotalVoters, 1)
	stats.FailedTenants = facetResult.FailedTenants

	booths, err := h.core.Aggregate(ctx, identity, scopeReq, types.RecordVoters,
		pipeline.GroupCount(types.RecordVoters, "booth_no", types.NewFilter()))
	if err != nil {
		return nil, err
	}
	stats.BoothCounts = booths.Rows

	ages, err := h.core.Aggregate(ctx, identity, scopeReq, types.RecordVoters,
		pipeline.RangeBuckets(types.RecordVoters, "age", []int{18, 25, 35, 50, 65}, types.NewFilter()))
	if err != nil {
		return nil, err
	}
	stats.AgeBands = ages.Rows

	growth, err := h.core.Aggregate(ctx, identity, scopeReq, types.RecordVoters,
		pipeline.PeriodSeries(types.RecordVoters, "created_at", pipeline.PeriodMonth, types.NewFilter()))
	if err != nil {
		return nil, err
	}
	stats.GrowthByMonth = growth.Rows

	return stats, nil
}

// rowInt extracts an integer column from a row, tolerating JSON float64s.
func rowInt(row types.Row, col string) int64 {
	switch v := row[col].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

// FanoutStatsHandler exposes per-shard fan-out health.
type FanoutStatsHandler struct {
	stats *observability.FanoutStats
}

// NewFanoutStatsHandler creates the fan-out stats handler.
func NewFanoutStatsHandler(stats *observability.FanoutStats) *FanoutStatsHandler {
	return &FanoutStatsHandler{stats: stats}
}

// ServeHTTP returns the shard health snapshot.
func (h *FanoutStatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
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
	if identity.Role != types.RoleUnrestricted {
		writeError(w, http.StatusForbidden, "shard health requires an unrestricted caller", "", requestID)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"shards":           h.stats.Snapshot(),
		"degraded_fanouts": h.stats.DegradedFanouts(),
		"request_id":       requestID,
	})
}
