package export

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/nicktill/damwatch/pkg/attendance"
	"github.com/nicktill/damwatch/pkg/httpx"
	"github.com/nicktill/damwatch/pkg/storage"
)

// maxImportBytes bounds the request body of an import.
const maxImportBytes = 64 << 20

// Handler serves the backup endpoints.
type Handler struct {
	exporter *Exporter
	importer *Importer
	logger   *slog.Logger
}

// NewHandler creates a new export/import handler
func NewHandler(store storage.Storage, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		exporter: NewExporter(store),
		importer: NewImporter(store),
		logger:   logger,
	}
}

// HandleExport handles GET /v1/export.
//
// Query params: format (json|csv), from and to (YYYY-MM), node (repeatable
// or comma separated), latest (true exports only the current table).
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	format := query.Get("format")
	if format == "" {
		format = "json"
	}
	if format != "json" && format != "csv" {
		httpx.RespondErrorString(w, http.StatusBadRequest, "invalid format: must be 'json' or 'csv'")
		return
	}

	opts, err := parseOptions(query)
	if err != nil {
		httpx.RespondError(w, http.StatusBadRequest, err)
		return
	}

	timestamp := h.exporter.clock().UTC().Format("20060102-150405")
	if format == "json" {
		w.Header().Set("Content-Type", "application/json")
	} else {
		w.Header().Set("Content-Type", "text/csv")
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=damwatch-export-%s.%s", timestamp, format))

	var result *Result
	if format == "json" {
		result, err = h.exporter.ExportToJSON(r.Context(), w, opts)
	} else {
		result, err = h.exporter.ExportToCSV(r.Context(), w, opts)
	}
	if err != nil {
		// Headers may already be out; the client sees a truncated body.
		h.logger.Error("export failed", "format", format, "error", err)
		return
	}

	h.logger.Info("snapshots exported", "records", result.RecordsExported, "format", format)
}

// HandleImport handles POST /v1/import with a JSON backup body.
func (h *Handler) HandleImport(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		httpx.RespondErrorString(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return
	}

	body := http.MaxBytesReader(w, r.Body, maxImportBytes)
	result, err := h.importer.ImportFromJSON(r.Context(), body)
	if err != nil {
		h.logger.Error("import failed", "error", err)
		httpx.RespondError(w, http.StatusBadRequest, err)
		return
	}

	if n := len(result.Errors); n > 0 {
		h.logger.Warn("import skipped invalid records", "skipped", n, "first", result.Errors[0])
	}
	h.logger.Info("snapshots imported",
		"records", result.RecordsImported,
		"runs", result.Runs,
		"batches", result.BatchesWritten,
	)

	httpx.RespondJSON(w, http.StatusOK, result)
}

func parseOptions(values map[string][]string) (Options, error) {
	var opts Options
	get := func(k string) string {
		if v := values[k]; len(v) > 0 {
			return v[0]
		}
		return ""
	}

	var err error
	if s := get("from"); s != "" {
		if opts.From, err = attendance.ParseMonth(s); err != nil {
			return opts, fmt.Errorf("invalid from: %w", err)
		}
	}
	if s := get("to"); s != "" {
		if opts.To, err = attendance.ParseMonth(s); err != nil {
			return opts, fmt.Errorf("invalid to: %w", err)
		}
	}
	if !opts.From.IsZero() && !opts.To.IsZero() && opts.To.Before(opts.From) {
		return opts, fmt.Errorf("to (%s) is before from (%s)", opts.To, opts.From)
	}
	for _, v := range values["node"] {
		for _, node := range strings.Split(v, ",") {
			if node = strings.TrimSpace(node); node != "" {
				opts.NodeIDs = append(opts.NodeIDs, node)
			}
		}
	}
	switch get("latest") {
	case "", "false":
	case "true":
		opts.LatestOnly = true
	default:
		return opts, fmt.Errorf("invalid latest %q (allowed: true, false)", get("latest"))
	}
	return opts, nil
}
