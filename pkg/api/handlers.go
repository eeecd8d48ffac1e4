package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/shareguard/shareguard/internal/logger"
	"github.com/shareguard/shareguard/pkg/acl"
	"github.com/shareguard/shareguard/pkg/health"
	"github.com/shareguard/shareguard/pkg/metrics"
	"github.com/shareguard/shareguard/pkg/monitor"
	"github.com/shareguard/shareguard/pkg/notify"
	"github.com/shareguard/shareguard/pkg/scanner"
	"github.com/shareguard/shareguard/pkg/store"
)

// Handlers carries the service dependencies for all API routes.
type Handlers struct {
	scanner  *scanner.Scanner
	store    *store.Store
	analyzer *health.Analyzer
	monitor  *monitor.Monitor
	notify   *notify.Service
	metrics  *metrics.Metrics

	upgrader websocket.Upgrader
}

// NewHandlers wires the route handlers. Metrics may be nil.
func NewHandlers(sc *scanner.Scanner, st *store.Store, an *health.Analyzer,
	mon *monitor.Monitor, ns *notify.Service, m *metrics.Metrics) *Handlers {
	return &Handlers{
		scanner:  sc,
		store:    st,
		analyzer: an,
		monitor:  mon,
		notify:   ns,
		metrics:  m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The API is same-origin or token-authenticated; origin
			// enforcement belongs to the deployment's reverse proxy.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Liveness answers basic health probes.
func (h *Handlers) Liveness(w http.ResponseWriter, r *http.Request) {
	writeOK(w, map[string]string{"service": "shareguard"})
}

// scanRequest is the POST /api/scan body.
type scanRequest struct {
	Path              string `json:"path"`
	IncludeSubfolders bool   `json:"include_subfolders"`
	MaxDepth          *int   `json:"max_depth,omitempty"`
	AnnotatePaths     bool   `json:"annotate_paths"`
	IncludeInherited  *bool  `json:"include_inherited,omitempty"` // default true
	SimplifiedSystem  bool   `json:"simplified_system"`
}

func (r *scanRequest) excludeInherited() bool {
	return r.IncludeInherited != nil && !*r.IncludeInherited
}

// Scan runs an on-demand scan and returns the snapshot, or the full tree
// result when subfolders are requested.
func (h *Handlers) Scan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body: "+err.Error())
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}

	ctx := logger.WithContext(r.Context(), logger.NewScanContext("", "api"))
	start := time.Now()

	if !req.IncludeSubfolders {
		snap, scanErr := h.scanner.Scan(ctx, req.Path)
		if scanErr != nil {
			h.metrics.ObserveScanError(string(scanErr.Kind))
			writeError(w, scanStatus(scanErr), scanErr.Error())
			return
		}
		if req.AnnotatePaths {
			h.scanner.Annotate(ctx, snap)
		}
		scanner.ApplyView(snap, req.excludeInherited(), req.SimplifiedSystem)
		h.metrics.ObserveScan("api", time.Since(start))
		writeOK(w, snap)
		return
	}

	opts := scanner.Options{
		IncludeSubfolders: true,
		MaxDepth:          scanner.DefaultMaxDepth,
		AnnotatePaths:     req.AnnotatePaths,
		ExcludeInherited:  req.excludeInherited(),
		SimplifiedSystem:  req.SimplifiedSystem,
	}
	if req.MaxDepth != nil {
		opts.MaxDepth = *req.MaxDepth
	}

	result := h.scanner.ScanTree(ctx, req.Path, opts)
	h.metrics.ObserveScan("api", time.Since(start))
	if !result.Success {
		writeJSON(w, http.StatusUnprocessableEntity, okResponse(result))
		return
	}
	writeOK(w, result)
}

// Snapshot returns the cached snapshot for a path. The path travels as a
// query parameter; backslashes do not survive URL path segments.
func (h *Handlers) Snapshot(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}

	entry, err := h.store.GetEntry(r.Context(), path)
	switch {
	case errors.Is(err, store.ErrEntryNotFound):
		writeError(w, http.StatusNotFound, "no snapshot for path")
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeOK(w, entry)
	}
}

// Changes lists persisted change records.
func (h *Handlers) Changes(w http.ResponseWriter, r *http.Request) {
	filter := store.ChangeFilter{
		Path:   r.URL.Query().Get("path"),
		Limit:  queryInt(r, "limit"),
		Offset: queryInt(r, "offset"),
	}
	if since := r.URL.Query().Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC 3339")
			return
		}
		filter.Since = t
	}

	changes, err := h.store.ListChanges(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeOK(w, map[string]any{"changes": changes, "count": len(changes)})
}

// healthRunRequest is the POST /api/health/run body.
type healthRunRequest struct {
	Paths []string `json:"paths,omitempty"`
}

// HealthRun triggers an analyzer pass. Without explicit paths it covers
// the monitor watch set.
func (h *Handlers) HealthRun(w http.ResponseWriter, r *http.Request) {
	var req healthRunRequest
	if r.ContentLength > 0 {
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "malformed request body: "+err.Error())
			return
		}
	}

	paths := req.Paths
	if len(paths) == 0 && h.monitor != nil {
		paths = h.monitor.Status().WatchedPaths
	}
	if len(paths) == 0 {
		writeError(w, http.StatusBadRequest, "no paths given and none watched")
		return
	}

	result, err := h.analyzer.Run(r.Context(), paths)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.metrics.SetHealthScore(result.Score)
	h.metrics.SetActiveIssues(result.BySeverity)
	writeOK(w, result)
}

// HealthScore returns the latest score sample and current active issue
// counts.
func (h *Handlers) HealthScore(w http.ResponseWriter, r *http.Request) {
	point, err := h.store.LatestScore(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	counts, total, err := h.store.CountActiveBySeverity(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	data := map[string]any{
		"active_issues": total,
		"by_severity":   counts,
	}
	if point != nil {
		data["score"] = point.Score
		data["as_of"] = point.Timestamp
	}
	writeOK(w, data)
}

// HealthHistory returns score samples for trend plotting.
func (h *Handlers) HealthHistory(w http.ResponseWriter, r *http.Request) {
	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC 3339")
			return
		}
		since = t
	}

	points, err := h.store.ListScorePoints(r.Context(), since, queryInt(r, "limit"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeOK(w, map[string]any{"points": points})
}

// Issues lists health issues.
func (h *Handlers) Issues(w http.ResponseWriter, r *http.Request) {
	filter := store.IssueFilter{
		Status: store.IssueStatus(r.URL.Query().Get("status")),
		Path:   r.URL.Query().Get("path"),
		Limit:  queryInt(r, "limit"),
		Offset: queryInt(r, "offset"),
	}

	issues, err := h.store.ListIssues(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeOK(w, map[string]any{"issues": issues, "count": len(issues)})
}

// issueStatusRequest is the PATCH /api/health/issues/{id} body.
type issueStatusRequest struct {
	Status store.IssueStatus `json:"status"`
}

// SetIssueStatus transitions an issue between active, resolved, and
// ignored.
func (h *Handlers) SetIssueStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req issueStatusRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body: "+err.Error())
		return
	}

	err := h.store.SetIssueStatus(r.Context(), id, req.Status)
	switch {
	case errors.Is(err, store.ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, "status must be active, resolved, or ignored")
	case errors.Is(err, store.ErrIssueNotFound):
		writeError(w, http.StatusNotFound, "issue not found")
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeOK(w, map[string]string{"id": id, "status": string(req.Status)})
	}
}

// monitorStartRequest is the POST /api/monitor/start body.
type monitorStartRequest struct {
	Paths []string `json:"paths,omitempty"`
}

// MonitorStart adds paths to the watch set and starts the loop.
func (h *Handlers) MonitorStart(w http.ResponseWriter, r *http.Request) {
	var req monitorStartRequest
	if r.ContentLength > 0 {
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "malformed request body: "+err.Error())
			return
		}
	}

	err := h.monitor.Start(req.Paths)
	if err != nil && !errors.Is(err, monitor.ErrAlreadyRunning) {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeOK(w, h.monitor.Status())
}

// MonitorStop halts the watch loop.
func (h *Handlers) MonitorStop(w http.ResponseWriter, r *http.Request) {
	if err := h.monitor.Stop(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeOK(w, h.monitor.Status())
}

// MonitorStatus reports the watch loop state.
func (h *Handlers) MonitorStatus(w http.ResponseWriter, r *http.Request) {
	status := h.monitor.Status()
	h.metrics.SetMonitorState(len(status.WatchedPaths), status.QueueDepth, status.Connections)
	writeOK(w, status)
}

// WebSocket upgrades the connection and registers a notification
// subscription. Initial filters come from query parameters; clients can
// replace them later with an update_filters message.
func (h *Handlers) WebSocket(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		if claims := ClaimsFromContext(r.Context()); claims != nil {
			userID = claims.Username
		}
	}
	filters := filtersFromQuery(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		logger.Debug("websocket upgrade failed", logger.Err(err))
		return
	}

	transport := notify.NewWebSocketTransport(conn)
	sub, err := h.notify.Connect(transport, userID, filters)
	if err != nil {
		_ = transport.Close()
		return
	}

	// Blocks for the lifetime of the connection.
	h.notify.ServeReads(sub, conn)
}

func filtersFromQuery(r *http.Request) notify.Filters {
	var f notify.Filters
	if raw := r.URL.Query().Get("types"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				f.Types = append(f.Types, notify.MessageType(t))
			}
		}
	}
	if raw := r.URL.Query().Get("min_severity"); raw != "" {
		f.MinSeverity = acl.Severity(raw)
	}
	if raw := r.URL.Query().Get("path_prefixes"); raw != "" {
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				f.PathPrefixes = append(f.PathPrefixes, p)
			}
		}
	}
	return f
}

func queryInt(r *http.Request, key string) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func scanStatus(err *scanner.ScanError) int {
	switch err.Kind {
	case scanner.ErrKindNotFound:
		return http.StatusNotFound
	case scanner.ErrKindExcluded:
		return http.StatusForbidden
	case scanner.ErrKindPermissionDenied:
		return http.StatusForbidden
	default:
		return http.StatusUnprocessableEntity
	}
}
