package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/nicktill/damwatch/pkg/attendance"
	"github.com/nicktill/damwatch/pkg/storage"
)

// MaxImportBatchSize is the maximum number of records written at once.
const MaxImportBatchSize = 5000

// Importer restores JSON backups into storage.
type Importer struct {
	storage storage.Storage
	clock   func() time.Time
}

// NewImporter creates a new importer
func NewImporter(store storage.Storage) *Importer {
	return &Importer{storage: store, clock: time.Now}
}

// ImportResult summarizes an import.
type ImportResult struct {
	RecordsImported int       `json:"records_imported"`
	BatchesWritten  int       `json:"batches_written"`
	Runs            int       `json:"runs"`
	ImportedAt      time.Time `json:"imported_at"`
	Errors          []string  `json:"errors,omitempty"`
}

// ImportFromJSON reads a backup written by ExportToJSON. Invalid records
// are skipped and reported in Errors; the rest are written.
func (im *Importer) ImportFromJSON(ctx context.Context, r io.Reader) (*ImportResult, error) {
	var backup Backup
	if err := json.NewDecoder(r).Decode(&backup); err != nil {
		return nil, fmt.Errorf("failed to decode JSON: %w", err)
	}
	if backup.Metadata.Version != "" && backup.Metadata.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported backup version %q", backup.Metadata.Version)
	}

	now := im.clock()
	result := &ImportResult{ImportedAt: now.UTC()}

	valid := make([]attendance.Record, 0, len(backup.Records))
	runs := make(map[string]bool)
	for i, rec := range backup.Records {
		if err := validateRecord(rec, now); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("record %d: %v", i, err))
			continue
		}
		valid = append(valid, rec)
		runs[rec.RunID] = true
	}

	for i := 0; i < len(valid); i += MaxImportBatchSize {
		end := min(i+MaxImportBatchSize, len(valid))
		if err := im.storage.Write(ctx, valid[i:end]); err != nil {
			return nil, fmt.Errorf("failed to write batch %d: %w", result.BatchesWritten, err)
		}
		result.BatchesWritten++
	}

	result.RecordsImported = len(valid)
	result.Runs = len(runs)
	return result, nil
}

func validateRecord(r attendance.Record, now time.Time) error {
	switch {
	case r.NodeID == "":
		return errors.New("node_id cannot be empty")
	case r.Month.IsZero():
		return errors.New("month cannot be empty")
	case r.RunID == "":
		return errors.New("run_id cannot be empty")
	case r.GeneratedAt.IsZero():
		return errors.New("generated_at cannot be zero")
	case r.GeneratedAt.After(now.Add(24 * time.Hour)):
		return fmt.Errorf("generated_at too far in future: %s", r.GeneratedAt)
	case r.Observed < 0:
		return fmt.Errorf("negative observed count %d", r.Observed)
	case r.Expected != attendance.Expected(r.Month):
		return fmt.Errorf("expected %d does not match %s (%d)", r.Expected, r.Month, attendance.Expected(r.Month))
	}
	if want := attendance.Percentage(r.Observed, r.Month); math.Abs(want-r.Percentage) > 1e-6 {
		return fmt.Errorf("percentage %.4f does not match observed/expected (%.4f)", r.Percentage, want)
	}
	return nil
}
