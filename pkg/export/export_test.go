package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nicktill/damwatch/pkg/attendance"
	"github.com/nicktill/damwatch/pkg/storage"
	"github.com/nicktill/damwatch/pkg/storage/memory"
)

var (
	jan = attendance.Month{Year: 2024, Month: time.January}
	feb = attendance.Month{Year: 2024, Month: time.February}
)

func record(m attendance.Month, node string, observed int, runID string, at time.Time) attendance.Record {
	return attendance.Record{
		Month:       m,
		NodeID:      node,
		Observed:    observed,
		Expected:    attendance.Expected(m),
		Percentage:  attendance.Percentage(observed, m),
		RunID:       runID,
		GeneratedAt: at,
	}
}

func seededStore(t *testing.T) storage.Storage {
	t.Helper()
	store := memory.New()
	t.Cleanup(func() { store.Close() })

	run1 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	run2 := run1.Add(time.Hour)
	require.NoError(t, store.Write(context.Background(), []attendance.Record{
		record(jan, "1006", 700, "run-1", run1),
		record(jan, "1007", 300, "run-1", run1),
		record(jan, "1006", 744, "run-2", run2),
		record(feb, "1006", 348, "run-2", run2),
	}))
	return store
}

func TestExportImport_RoundTrip(t *testing.T) {
	ctx := context.Background()
	src := seededStore(t)

	var buf bytes.Buffer
	res, err := NewExporter(src).ExportToJSON(ctx, &buf, Options{})
	require.NoError(t, err)
	require.Equal(t, 4, res.RecordsExported)

	var backup Backup
	require.NoError(t, json.Unmarshal(buf.Bytes(), &backup))
	require.Equal(t, FormatVersion, backup.Metadata.Version)
	require.True(t, backup.Metadata.From.IsZero())

	dst := memory.New()
	defer dst.Close()
	imp, err := NewImporter(dst).ImportFromJSON(ctx, &buf)
	require.NoError(t, err)
	require.Equal(t, 4, imp.RecordsImported)
	require.Equal(t, 2, imp.Runs)
	require.Equal(t, 1, imp.BatchesWritten)
	require.Empty(t, imp.Errors)

	latest, err := dst.Query(ctx, storage.QueryRequest{LatestOnly: true})
	require.NoError(t, err)
	require.Len(t, latest, 3)
}

func TestExport_Filters(t *testing.T) {
	ctx := context.Background()
	exp := NewExporter(seededStore(t))

	var buf bytes.Buffer
	res, err := exp.ExportToJSON(ctx, &buf, Options{From: feb})
	require.NoError(t, err)
	require.Equal(t, 1, res.RecordsExported)

	buf.Reset()
	res, err = exp.ExportToJSON(ctx, &buf, Options{NodeIDs: []string{"1006"}, LatestOnly: true})
	require.NoError(t, err)
	require.Equal(t, 2, res.RecordsExported)
}

func TestExportToCSV(t *testing.T) {
	var buf bytes.Buffer
	res, err := NewExporter(seededStore(t)).ExportToCSV(context.Background(), &buf, Options{})
	require.NoError(t, err)
	require.Equal(t, "csv", res.Format)

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 5)
	require.Equal(t, []string{"run_id", "generated_at", "month", "node_id", "observed", "expected", "percentage"}, rows[0])
}

func TestImport_SkipsInvalidRecords(t *testing.T) {
	at := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	good := record(jan, "1006", 744, "run-1", at)

	noNode := good
	noNode.NodeID = ""
	badExpected := good
	badExpected.Expected = 10
	badPct := good
	badPct.Percentage = 12.5
	future := good
	future.GeneratedAt = time.Now().Add(48 * time.Hour)

	body, err := json.Marshal(Backup{Records: []attendance.Record{good, noNode, badExpected, badPct, future}})
	require.NoError(t, err)

	store := memory.New()
	defer store.Close()
	res, err := NewImporter(store).ImportFromJSON(context.Background(), bytes.NewReader(body))
	require.NoError(t, err)
	require.Equal(t, 1, res.RecordsImported)
	require.Len(t, res.Errors, 4)
}

func TestImport_RejectsBadDocuments(t *testing.T) {
	imp := NewImporter(memory.New())

	_, err := imp.ImportFromJSON(context.Background(), strings.NewReader("{not json"))
	require.Error(t, err)

	_, err = imp.ImportFromJSON(context.Background(), strings.NewReader(`{"metadata":{"version":"99"},"records":[]}`))
	require.ErrorContains(t, err, "unsupported backup version")
}

func TestHandler(t *testing.T) {
	h := NewHandler(seededStore(t), nil)

	rec := httptest.NewRecorder()
	h.HandleExport(rec, httptest.NewRequest(http.MethodGet, "/v1/export?node=1007", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Disposition"), ".json")
	exported := rec.Body.Bytes()

	rec = httptest.NewRecorder()
	h.HandleExport(rec, httptest.NewRequest(http.MethodGet, "/v1/export?format=xml", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.HandleExport(rec, httptest.NewRequest(http.MethodGet, "/v1/export?from=2024-03&to=2024-01", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	target := NewHandler(memory.New(), nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/import", bytes.NewReader(exported))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	target.HandleImport(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res ImportResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Equal(t, 1, res.RecordsImported)

	req = httptest.NewRequest(http.MethodPost, "/v1/import", bytes.NewReader(exported))
	req.Header.Set("Content-Type", "text/plain")
	rec = httptest.NewRecorder()
	target.HandleImport(rec, req)
	require.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}
