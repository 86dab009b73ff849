package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/nicktill/damwatch/pkg/attendance"
	"github.com/nicktill/damwatch/pkg/storage"
)

// FormatVersion is written into every JSON backup.
const FormatVersion = "1"

// Exporter writes stored snapshots out as backups.
type Exporter struct {
	storage storage.Storage
	clock   func() time.Time
}

// NewExporter creates a new exporter
func NewExporter(store storage.Storage) *Exporter {
	return &Exporter{storage: store, clock: time.Now}
}

// Options selects what to export. Zero values mean no filter.
type Options struct {
	From    attendance.Month
	To      attendance.Month
	NodeIDs []string

	// LatestOnly exports the current table instead of the full history.
	LatestOnly bool
}

func (o Options) query() storage.QueryRequest {
	return storage.QueryRequest{
		From:       o.From,
		To:         o.To,
		NodeIDs:    o.NodeIDs,
		LatestOnly: o.LatestOnly,
	}
}

// Metadata heads a JSON backup.
type Metadata struct {
	ExportedAt  time.Time        `json:"exported_at"`
	From        attendance.Month `json:"from"`
	To          attendance.Month `json:"to"`
	RecordCount int              `json:"record_count"`
	Version     string           `json:"version"`
}

// Backup is the JSON backup document. Importer reads the same shape.
type Backup struct {
	Metadata Metadata            `json:"metadata"`
	Records  []attendance.Record `json:"records"`
}

// Result summarizes an export.
type Result struct {
	RecordsExported int       `json:"records_exported"`
	Format          string    `json:"format"`
	ExportedAt      time.Time `json:"exported_at"`
}

// ExportToJSON writes a re-importable backup.
func (e *Exporter) ExportToJSON(ctx context.Context, w io.Writer, opts Options) (*Result, error) {
	records, err := e.storage.Query(ctx, opts.query())
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	if records == nil {
		records = []attendance.Record{}
	}

	backup := Backup{
		Metadata: Metadata{
			ExportedAt:  e.clock().UTC(),
			From:        opts.From,
			To:          opts.To,
			RecordCount: len(records),
			Version:     FormatVersion,
		},
		Records: records,
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(backup); err != nil {
		return nil, fmt.Errorf("failed to encode JSON: %w", err)
	}

	return &Result{
		RecordsExported: len(records),
		Format:          "json",
		ExportedAt:      backup.Metadata.ExportedAt,
	}, nil
}

// ExportToCSV writes one row per stored record, run columns included.
// CSV exports cannot be imported.
func (e *Exporter) ExportToCSV(ctx context.Context, w io.Writer, opts Options) (*Result, error) {
	records, err := e.storage.Query(ctx, opts.query())
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}

	writer := csv.NewWriter(w)
	header := []string{"run_id", "generated_at", "month", "node_id", "observed", "expected", "percentage"}
	if err := writer.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, r := range records {
		row := []string{
			r.RunID,
			r.GeneratedAt.UTC().Format(time.RFC3339),
			r.Month.String(),
			r.NodeID,
			strconv.Itoa(r.Observed),
			strconv.Itoa(r.Expected),
			strconv.FormatFloat(r.Percentage, 'f', -1, 64),
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}

	return &Result{
		RecordsExported: len(records),
		Format:          "csv",
		ExportedAt:      e.clock().UTC(),
	}, nil
}
