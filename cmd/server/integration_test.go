package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/nicktill/damwatch/pkg/config"
	"github.com/nicktill/damwatch/pkg/report"
	"github.com/nicktill/damwatch/pkg/server"
)

func gatewayFile(header string, rows ...string) string {
	var b strings.Builder
	for i := 0; i < 9; i++ {
		fmt.Fprintf(&b, "logger meta %d\n", i)
	}
	b.WriteString(header + "\n")
	for _, r := range rows {
		b.WriteString(r + "\n")
	}
	return b.String()
}

// newFakeGateway serves node listings and data files the way the real
// dataserver does.
func newFakeGateway(t *testing.T) *httptest.Server {
	t.Helper()
	files := map[string]string{
		"/files/1006/1006-current.csv": gatewayFile("Date-and-time,p-1006-1,p-1006-2",
			"2024-01-01 00:00:00,1.1,2.2",
			"2024-01-01 01:00:00,1.2,",
			"2024-02-01 00:00:00,1.3,2.3",
		),
		"/files/1006/1006-health-current.csv": gatewayFile("Date-and-time,battery",
			"2024-01-01 00:00:00,3.6",
		),
		"/files/1007/1007-current.csv": gatewayFile("Date-and-time,p-1007-1",
			"2024-01-01 00:00:00,5.0",
		),
	}

	mux := http.NewServeMux()
	for _, node := range []string{"1006", "1007"} {
		node := node
		mux.HandleFunc("/27920/dataserver/node/view/"+node, func(w http.ResponseWriter, r *http.Request) {
			var b strings.Builder
			b.WriteString("<html><body><ul>")
			for path := range files {
				if strings.HasPrefix(path, "/files/"+node+"/") {
					fmt.Fprintf(&b, `<li><a href="%s">file</a></li>`, path)
				}
			}
			b.WriteString("</ul></body></html>")
			io.WriteString(w, b.String())
		})
	}
	for path, body := range files {
		body := body
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, body)
		})
	}

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, gatewayURL, backend string) config.Config {
	t.Helper()
	return config.Config{
		AppEnv:         "dev",
		Port:           "8080",
		DataDir:        t.TempDir(),
		StorageBackend: backend,
		MaxMemoryMB:    64,
		MaxStorageMB:   64,
		Retention:      config.DefaultRetention,
		GatewayBaseURL: gatewayURL,
		GatewayID:      "27920",
		GatewayNodes:   []string{"1006", "1007"},
		GatewayMonths:  2,
		GatewayTimeout: 5 * time.Second,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func serve(t *testing.T, a *app, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

// TestE2E_GatewayToReport drives a run against a fake gateway and reads
// the stored report back over HTTP.
func TestE2E_GatewayToReport(t *testing.T) {
	for _, backend := range []string{"memory", "badger"} {
		t.Run(backend, func(t *testing.T) {
			gw := newFakeGateway(t)
			a, err := newApp(testConfig(t, gw.URL, backend), discardLogger(), nil)
			require.NoError(t, err)
			defer a.store.Close()

			w := serve(t, a, http.MethodPost, "/v1/report/run")
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())

			var run server.RunResult
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &run))
			require.Equal(t, 2, run.Fetch.Nodes)
			require.Equal(t, 3, run.Fetch.Downloaded)
			require.Equal(t, 1, run.Diagnostics.Parse.SkippedHealth)
			require.Len(t, run.Report.Records, 3)

			w = serve(t, a, http.MethodGet, "/v1/report")
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			var rep report.Report
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rep))
			require.Equal(t, run.Report.RunID, rep.RunID)
			require.Equal(t, []string{"1006", "1007"}, rep.Matrix.Nodes)

			w = serve(t, a, http.MethodGet, "/v1/report?format=csv")
			require.Equal(t, http.StatusOK, w.Code)
			require.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("month,1006,1007\n")))

			w = serve(t, a, http.MethodGet, "/v1/health")
			require.Equal(t, http.StatusOK, w.Code)

			w = serve(t, a, http.MethodGet, "/metrics")
			require.Equal(t, http.StatusOK, w.Code)
			require.Contains(t, w.Body.String(), `damwatch_runs_total{outcome="ok"} 1`)
		})
	}
}

func TestE2E_GatewayDown(t *testing.T) {
	gw := newFakeGateway(t)
	url := gw.URL
	gw.Close()

	a, err := newApp(testConfig(t, url, "memory"), discardLogger(), nil)
	require.NoError(t, err)
	defer a.store.Close()

	w := serve(t, a, http.MethodPost, "/v1/report/run")
	require.Contains(t, []int{http.StatusNotFound, http.StatusBadGateway}, w.Code)

	w = serve(t, a, http.MethodGet, "/v1/report")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestE2E_WebSocketReceivesRun(t *testing.T) {
	gw := newFakeGateway(t)
	a, err := newApp(testConfig(t, gw.URL, "memory"), discardLogger(), nil)
	require.NoError(t, err)
	defer a.store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	a.start(ctx, &wg)
	defer func() {
		cancel()
		wg.Wait()
	}()

	srv := httptest.NewServer(a.router)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/v1/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return a.hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Post(srv.URL+"/v1/report/run", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var got report.Report
	require.NoError(t, json.Unmarshal(msg, &got))
	require.Len(t, got.Records, 3)
}
