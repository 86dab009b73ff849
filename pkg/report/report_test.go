package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/nicktill/damwatch/pkg/attendance"
)

var (
	jan = attendance.Month{Year: 2024, Month: time.January}
	feb = attendance.Month{Year: 2024, Month: time.February}
)

func sampleReport() *Report {
	records := []attendance.Record{
		{Month: feb, NodeID: "1006", Observed: 348, Expected: 696, Percentage: 50},
		{Month: jan, NodeID: "1006", Observed: 744, Expected: 744, Percentage: 100},
		{Month: jan, NodeID: "1007", Observed: 372, Expected: 744, Percentage: 50},
	}
	return New("run-1", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), records)
}

func TestPivot(t *testing.T) {
	m := sampleReport().Matrix

	require.Equal(t, []attendance.Month{jan, feb}, m.Months)
	require.Equal(t, []string{"1006", "1007"}, m.Nodes)

	v, ok := m.Cell(jan, "1006")
	require.True(t, ok)
	require.Equal(t, 100.0, v)

	_, ok = m.Cell(feb, "1007")
	require.False(t, ok, "node without samples must not get a cell")

	require.Equal(t, 100.0, m.Max())
	require.False(t, m.Empty())
	require.True(t, Pivot(nil).Empty())
}

func TestMatrix_JSONRoundTrip(t *testing.T) {
	m := sampleReport().Matrix

	b, err := json.Marshal(m)
	require.NoError(t, err)
	require.Contains(t, string(b), `"months":["2024-01","2024-02"]`)

	var back Matrix
	require.NoError(t, json.Unmarshal(b, &back))
	require.Equal(t, m.Months, back.Months)
	require.Equal(t, m.Nodes, back.Nodes)
	_, ok := back.Cell(feb, "1007")
	require.False(t, ok)
	v, ok := back.Cell(feb, "1006")
	require.True(t, ok)
	require.Equal(t, 50.0, v)
}

func TestTextSink(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, TextSink{W: &buf}.Emit(context.Background(), sampleReport()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	require.Equal(t, []string{"Month", "1006", "1007"}, strings.Fields(lines[0]))
	require.Equal(t, []string{"2024-01", "100.00", "50.00"}, strings.Fields(lines[1]))
	require.Equal(t, []string{"2024-02", "50.00", "-"}, strings.Fields(lines[2]))

	buf.Reset()
	require.NoError(t, TextSink{W: &buf, Layout: LayoutLong}.Emit(context.Background(), sampleReport()))
	require.Len(t, strings.Split(strings.TrimSpace(buf.String()), "\n"), 4)
}

func TestCSVSink(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, CSVSink{W: &buf}.Emit(context.Background(), sampleReport()))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Equal(t, [][]string{
		{"month", "1006", "1007"},
		{"2024-01", "100", "50"},
		{"2024-02", "50", ""},
	}, rows)

	buf.Reset()
	require.NoError(t, CSVSink{W: &buf, Layout: LayoutLong}.Emit(context.Background(), sampleReport()))
	rows, err = csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	require.Equal(t, []string{"2024-02", "1006", "348", "696", "50"}, rows[1])
}

func TestJSONSink(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, JSONSink{W: &buf}.Emit(context.Background(), sampleReport()))

	var back Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &back))
	require.Equal(t, "run-1", back.RunID)
	require.Len(t, back.Records, 3)
	require.Equal(t, []string{"1006", "1007"}, back.Matrix.Nodes)
}

func TestChartSink(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, ChartSink{W: &buf, Width: 400, Height: 300}.Emit(context.Background(), sampleReport()))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	require.Equal(t, 400, img.Bounds().Dx())
	require.Equal(t, 300, img.Bounds().Dy())

	buf.Reset()
	require.NoError(t, ChartSink{W: &buf}.Emit(context.Background(), New("empty", time.Now(), nil)))
	img, err = png.Decode(&buf)
	require.NoError(t, err)
	require.Equal(t, 960, img.Bounds().Dx())
}

func TestEmitAll_ContinuesAfterFailure(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	failing := SinkFunc(func(context.Context, *Report) error { calls++; return boom })
	counting := SinkFunc(func(context.Context, *Report) error { calls++; return nil })

	err := EmitAll(context.Background(), sampleReport(), failing, counting)
	require.ErrorIs(t, err, boom)
	require.Equal(t, 2, calls)
}

func TestHub_SendsLatestReportOnConnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(nil)
	go hub.Run(ctx)

	require.NoError(t, hub.Emit(ctx, sampleReport()))

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var got Report
	require.NoError(t, json.Unmarshal(msg, &got))
	require.Equal(t, "run-1", got.RunID)

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_SlowClientDoesNotBlockEmit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(nil)
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	// Hold the client's write lock so the broadcast stalls on it.
	hub.mu.RLock()
	var stuck *client
	for c := range hub.clients {
		stuck = c
	}
	hub.mu.RUnlock()
	stuck.mu.Lock()
	defer stuck.mu.Unlock()

	require.NoError(t, hub.Emit(ctx, sampleReport()))
	time.Sleep(50 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		hub.Emit(ctx, sampleReport())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked behind a slow client")
	}
}
