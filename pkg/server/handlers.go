package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/nicktill/damwatch/pkg/attendance"
	"github.com/nicktill/damwatch/pkg/config"
	"github.com/nicktill/damwatch/pkg/export"
	"github.com/nicktill/damwatch/pkg/httpx"
	"github.com/nicktill/damwatch/pkg/pipeline"
	"github.com/nicktill/damwatch/pkg/report"
	"github.com/nicktill/damwatch/pkg/server/monitor"
	"github.com/nicktill/damwatch/pkg/storage"
)

var startTime = time.Now()

// StorageUsage represents current storage usage stats.
type StorageUsage struct {
	UsedBytes int64 `json:"used_bytes"`
	MaxBytes  int64 `json:"max_bytes"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Uptime  string            `json:"uptime"`
	Runs    monitor.RunStatus `json:"runs"`
	Storage *StorageUsage     `json:"storage,omitempty"`
}

// Handler serves the report API.
type Handler struct {
	service *Service
	store   storage.Storage
	hub     *report.Hub
	runs    *monitor.RunMonitor
	disk    *monitor.StorageMonitor
	backup  *export.Handler
	metrics http.Handler
	httpm   *HTTPMetrics
	version string
	logger  *slog.Logger
}

// HandlerConfig wires a Handler. Disk, Metrics and HTTPMetrics may be nil.
type HandlerConfig struct {
	Service     *Service
	Store       storage.Storage
	Hub         *report.Hub
	Runs        *monitor.RunMonitor
	Disk        *monitor.StorageMonitor
	Metrics     http.Handler
	HTTPMetrics *HTTPMetrics
	Version     string
	Logger      *slog.Logger
}

// NewHandler creates the API handler.
func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Runs == nil {
		cfg.Runs = &monitor.RunMonitor{}
	}
	return &Handler{
		service: cfg.Service,
		store:   cfg.Store,
		hub:     cfg.Hub,
		runs:    cfg.Runs,
		disk:    cfg.Disk,
		backup:  export.NewHandler(cfg.Store, cfg.Logger),
		metrics: cfg.Metrics,
		httpm:   cfg.HTTPMetrics,
		version: cfg.Version,
		logger:  cfg.Logger,
	}
}

// HandleRun triggers a report run.
func (h *Handler) HandleRun(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.Run(r.Context())
	switch {
	case errors.Is(err, pipeline.ErrNoData):
		httpx.RespondError(w, http.StatusNotFound, pipeline.ErrNoData)
		return
	case err != nil:
		h.logger.Error("report run failed", "error", err)
		httpx.RespondError(w, http.StatusBadGateway, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, res)
}

// HandleReport serves the latest stored report as JSON, CSV or text.
//
// Query parameters: format (json|csv|text), layout (wide|long),
// from and to (YYYY-MM), node (repeatable or comma separated).
func (h *Handler) HandleReport(w http.ResponseWriter, r *http.Request) {
	q, err := parseReportQuery(r)
	if err != nil {
		httpx.RespondError(w, http.StatusBadRequest, err)
		return
	}
	layout, err := parseLayout(r.URL.Query().Get("layout"))
	if err != nil {
		httpx.RespondError(w, http.StatusBadRequest, err)
		return
	}

	rep, ok := h.latest(w, r, q)
	if !ok {
		return
	}

	var sink report.Sink
	switch format := r.URL.Query().Get("format"); format {
	case "", "json":
		httpx.RespondJSON(w, http.StatusOK, rep)
		return
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=attendance-%s.csv", rep.GeneratedAt.Format("20060102-150405")))
		sink = report.CSVSink{W: w, Layout: layout}
	case "text":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		sink = report.TextSink{W: w, Layout: layout}
	default:
		httpx.RespondErrorString(w, http.StatusBadRequest, fmt.Sprintf("invalid format %q (allowed: json, csv, text)", format))
		return
	}

	if err := sink.Emit(r.Context(), rep); err != nil {
		h.logger.Error("failed to write report", "error", err)
	}
}

// HandleChart renders the latest stored report as a PNG bar chart.
func (h *Handler) HandleChart(w http.ResponseWriter, r *http.Request) {
	q, err := parseReportQuery(r)
	if err != nil {
		httpx.RespondError(w, http.StatusBadRequest, err)
		return
	}
	width, err := parseIntParam(r, "width", config.ChartWidth, config.MaxChartWidth)
	if err != nil {
		httpx.RespondError(w, http.StatusBadRequest, err)
		return
	}
	height, err := parseIntParam(r, "height", config.ChartHeight, config.MaxChartHeight)
	if err != nil {
		httpx.RespondError(w, http.StatusBadRequest, err)
		return
	}

	rep, ok := h.latest(w, r, q)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "image/png")
	sink := report.ChartSink{W: w, Width: width, Height: height}
	if err := sink.Emit(r.Context(), rep); err != nil {
		h.logger.Error("failed to render chart", "error", err)
	}
}

// HandleHistory returns every stored snapshot record in range.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	q, err := parseReportQuery(r)
	if err != nil {
		httpx.RespondError(w, http.StatusBadRequest, err)
		return
	}
	limit, err := parseIntParam(r, "limit", config.MaxRunHistoryLimit, 0)
	if err != nil {
		httpx.RespondError(w, http.StatusBadRequest, err)
		return
	}

	records, err := h.service.History(r.Context(), q, limit)
	if err != nil {
		httpx.RespondError(w, http.StatusInternalServerError, err)
		return
	}
	if records == nil {
		records = []attendance.Record{}
	}
	httpx.RespondJSON(w, http.StatusOK, map[string]any{
		"records": records,
		"count":   len(records),
	})
}

// HandleStats returns snapshot store statistics.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		httpx.RespondError(w, http.StatusInternalServerError, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, stats)
}

// HandleStorageUsage returns disk usage of the data dir.
func (h *Handler) HandleStorageUsage(w http.ResponseWriter, r *http.Request) {
	if h.disk == nil {
		httpx.RespondJSON(w, http.StatusOK, StorageUsage{})
		return
	}
	used, err := h.disk.Usage()
	if err != nil {
		httpx.RespondError(w, http.StatusInternalServerError, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, StorageUsage{UsedBytes: used, MaxBytes: h.disk.Limit()})
}

// HandleHealth returns service health status.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK
	if !h.runs.IsHealthy() || (h.disk != nil && h.disk.Exceeded()) {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	resp := HealthResponse{
		Status:  status,
		Version: h.version,
		Uptime:  time.Since(startTime).Round(time.Second).String(),
		Runs:    h.runs.Status(),
	}
	if h.disk != nil {
		if used, err := h.disk.Usage(); err == nil {
			resp.Storage = &StorageUsage{UsedBytes: used, MaxBytes: h.disk.Limit()}
		}
	}
	httpx.RespondJSON(w, code, resp)
}

func (h *Handler) latest(w http.ResponseWriter, r *http.Request, q ReportQuery) (*report.Report, bool) {
	rep, err := h.service.Latest(r.Context(), q)
	switch {
	case errors.Is(err, pipeline.ErrNoData):
		httpx.RespondError(w, http.StatusNotFound, pipeline.ErrNoData)
		return nil, false
	case err != nil:
		httpx.RespondError(w, http.StatusInternalServerError, err)
		return nil, false
	}
	return rep, true
}

func parseReportQuery(r *http.Request) (ReportQuery, error) {
	var q ReportQuery
	values := r.URL.Query()

	if s := values.Get("from"); s != "" {
		m, err := attendance.ParseMonth(s)
		if err != nil {
			return q, fmt.Errorf("invalid from: %w", err)
		}
		q.From = m
	}
	if s := values.Get("to"); s != "" {
		m, err := attendance.ParseMonth(s)
		if err != nil {
			return q, fmt.Errorf("invalid to: %w", err)
		}
		q.To = m
	}
	if !q.From.IsZero() && !q.To.IsZero() && q.To.Before(q.From) {
		return q, fmt.Errorf("to (%s) is before from (%s)", q.To, q.From)
	}

	for _, v := range values["node"] {
		for _, node := range strings.Split(v, ",") {
			if node = strings.TrimSpace(node); node != "" {
				q.NodeIDs = append(q.NodeIDs, node)
			}
		}
	}
	return q, nil
}

func parseLayout(s string) (report.Layout, error) {
	switch s {
	case "", "wide":
		return report.LayoutWide, nil
	case "long":
		return report.LayoutLong, nil
	default:
		return 0, fmt.Errorf("invalid layout %q (allowed: wide, long)", s)
	}
}

// parseIntParam reads a positive integer parameter. upper <= 0 means no
// upper bound.
func parseIntParam(r *http.Request, name string, def, upper int) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive integer", name, s)
	}
	if upper > 0 && v > upper {
		return 0, fmt.Errorf("invalid %s %d: must be at most %d", name, v, upper)
	}
	return v, nil
}

// SetupRoutes configures all HTTP routes for the server.
func SetupRoutes(router *mux.Router, h *Handler, port string) {
	router.Use(requestMiddleware(h.logger, h.httpm))
	router.Use(corsMiddleware(port))

	api := router.PathPrefix("/v1").Subrouter()
	api.HandleFunc("/report/run", h.HandleRun).Methods("POST")
	api.HandleFunc("/report", h.HandleReport).Methods("GET")
	api.HandleFunc("/report/chart.png", h.HandleChart).Methods("GET")
	api.HandleFunc("/report/history", h.HandleHistory).Methods("GET")
	api.HandleFunc("/stats", h.HandleStats).Methods("GET")
	api.HandleFunc("/storage", h.HandleStorageUsage).Methods("GET")
	api.HandleFunc("/health", h.HandleHealth).Methods("GET")
	api.HandleFunc("/export", h.backup.HandleExport).Methods("GET")
	api.HandleFunc("/import", h.backup.HandleImport).Methods("POST")
	if h.hub != nil {
		api.HandleFunc("/ws", h.hub.HandleWebSocket).Methods("GET")
	}

	router.HandleFunc("/health", h.HandleHealth).Methods("GET")
	if h.metrics != nil {
		router.Handle("/metrics", h.metrics).Methods("GET")
	}
}

// corsMiddleware restricts cross-origin access to localhost origins.
func corsMiddleware(port string) func(http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:" + port: true,
		"http://127.0.0.1:" + port: true,
		"http://localhost:3000":    true,
		"http://127.0.0.1:3000":    true,
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if origin := r.Header.Get("Origin"); allowedOrigins[origin] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
