package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nicktill/damwatch/pkg/attendance"
	"github.com/nicktill/damwatch/pkg/config"
	"github.com/nicktill/damwatch/pkg/gateway"
	"github.com/nicktill/damwatch/pkg/pipeline"
	"github.com/nicktill/damwatch/pkg/report"
	"github.com/nicktill/damwatch/pkg/server/monitor"
	"github.com/nicktill/damwatch/pkg/storage"
	"github.com/nicktill/damwatch/pkg/table"
)

// Fetcher supplies the raw payloads of one run. *gateway.Client is the
// production implementation.
type Fetcher interface {
	Fetch(ctx context.Context, now time.Time) (map[string][]table.RawPayload, gateway.FetchStats, error)
}

// RunResult is what POST /v1/report/run returns.
type RunResult struct {
	Report      *report.Report       `json:"report"`
	Diagnostics pipeline.Diagnostics `json:"diagnostics"`
	Fetch       gateway.FetchStats   `json:"fetch"`
}

// Service runs fetch, pipeline, persistence and broadcast. Runs never
// overlap.
type Service struct {
	fetcher  Fetcher
	pipeline *pipeline.Pipeline
	store    storage.Storage
	sinks    []report.Sink
	runs     *monitor.RunMonitor
	logger   *slog.Logger
	clock    func() time.Time

	mu sync.Mutex
}

// ServiceConfig wires a Service. Sinks receive every report after it has
// been stored.
type ServiceConfig struct {
	Fetcher  Fetcher
	Pipeline *pipeline.Pipeline
	Store    storage.Storage
	Sinks    []report.Sink
	Runs     *monitor.RunMonitor
	Logger   *slog.Logger
	Clock    func() time.Time
}

// NewService creates a service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Runs == nil {
		cfg.Runs = &monitor.RunMonitor{}
	}
	return &Service{
		fetcher:  cfg.Fetcher,
		pipeline: cfg.Pipeline,
		store:    cfg.Store,
		sinks:    cfg.Sinks,
		runs:     cfg.Runs,
		logger:   cfg.Logger,
		clock:    cfg.Clock,
	}
}

// Run fetches fresh payloads, computes the report, stores it as a new
// snapshot and hands it to the sinks. It returns pipeline.ErrNoData when
// nothing usable was downloaded.
func (s *Service) Run(ctx context.Context) (*RunResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, config.RunTimeout)
	defer cancel()

	out := &RunResult{}
	payloads, fetchStats, err := s.fetcher.Fetch(ctx, s.clock())
	out.Fetch = fetchStats
	if err != nil {
		err = fmt.Errorf("fetch: %w", err)
		s.runs.RecordFailure(err)
		return out, err
	}

	sinks := append([]report.Sink{report.SinkFunc(s.persist)}, s.sinks...)
	res, err := s.pipeline.RunAndEmit(ctx, payloads, sinks...)
	out.Diagnostics = res.Diagnostics
	out.Report = res.Report
	switch {
	case errors.Is(err, pipeline.ErrNoData):
		s.runs.RecordNoData()
		return out, err
	case err != nil:
		s.runs.RecordFailure(err)
		return out, err
	}

	s.runs.RecordSuccess(res.Report.RunID, len(res.Report.Records))
	return out, nil
}

func (s *Service) persist(ctx context.Context, r *report.Report) error {
	if err := s.store.Write(ctx, r.Records); err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}
	return nil
}

// ReportQuery narrows the stored report served to clients.
type ReportQuery struct {
	From    attendance.Month
	To      attendance.Month
	NodeIDs []string
}

// Latest rebuilds the report from the newest snapshot of every
// (month, node) in range. It returns pipeline.ErrNoData when nothing is
// stored.
func (s *Service) Latest(ctx context.Context, q ReportQuery) (*report.Report, error) {
	ctx, cancel := context.WithTimeout(ctx, config.QueryTimeout)
	defer cancel()

	records, err := s.store.Query(ctx, storage.QueryRequest{
		From:       q.From,
		To:         q.To,
		NodeIDs:    q.NodeIDs,
		LatestOnly: true,
	})
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	if len(records) == 0 {
		return nil, pipeline.ErrNoData
	}

	newest := records[0]
	for _, r := range records[1:] {
		if r.GeneratedAt.After(newest.GeneratedAt) {
			newest = r
		}
	}
	return report.New(newest.RunID, newest.GeneratedAt, records), nil
}

// History returns stored snapshot records in range, newest run first.
// Within a run records are ordered by month and node.
func (s *Service) History(ctx context.Context, q ReportQuery, limit int) ([]attendance.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, config.QueryTimeout)
	defer cancel()

	if limit <= 0 || limit > config.MaxRunHistoryLimit {
		limit = config.MaxRunHistoryLimit
	}
	return s.store.Query(ctx, storage.QueryRequest{
		From:        q.From,
		To:          q.To,
		NodeIDs:     q.NodeIDs,
		NewestFirst: true,
		Limit:       limit,
	})
}
