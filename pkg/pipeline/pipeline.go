package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nicktill/damwatch/pkg/attendance"
	"github.com/nicktill/damwatch/pkg/config"
	"github.com/nicktill/damwatch/pkg/normalize"
	"github.com/nicktill/damwatch/pkg/report"
	"github.com/nicktill/damwatch/pkg/table"
)

// ErrNoData is returned when no payload produced a single usable sample.
var ErrNoData = errors.New("no data available")

// Diagnostics holds what each stage dropped or skipped. The report itself
// only shows what survived.
type Diagnostics struct {
	Parse     table.ParseStats `json:"parse"`
	Merge     table.MergeStats `json:"merge"`
	Normalize normalize.Stats  `json:"normalize"`
	Aggregate attendance.Stats `json:"aggregate"`
	Duration  time.Duration    `json:"duration_ns"`
}

// Result is the outcome of one run.
type Result struct {
	Report      *report.Report `json:"report"`
	Diagnostics Diagnostics    `json:"diagnostics"`
}

// Config configures a Pipeline. Every field is optional.
type Config struct {
	Logger  *slog.Logger
	Metrics *Metrics
	// Clock stamps GeneratedAt; defaults to time.Now in UTC.
	Clock func() time.Time
}

// Pipeline chains parse, merge, normalize and aggregate. It holds no
// state between runs and never sees credentials.
type Pipeline struct {
	parser     *table.Parser
	normalizer *normalize.Normalizer
	metrics    *Metrics
	logger     *slog.Logger
	clock      func() time.Time
}

// New creates a pipeline.
func New(cfg Config) *Pipeline {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = func() time.Time { return time.Now().UTC() }
	}
	return &Pipeline{
		parser:     table.NewParser(cfg.Logger),
		normalizer: normalize.New(),
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
		clock:      cfg.Clock,
	}
}

// Run computes the completeness report for payloads, keyed by node id.
//
// Files, rows and columns that cannot be used are dropped and counted in
// the returned Diagnostics. When nothing usable remains Run returns
// ErrNoData together with a Result whose Report is nil.
func (p *Pipeline) Run(ctx context.Context, payloads map[string][]table.RawPayload) (*Result, error) {
	start := time.Now()
	res := &Result{}

	finish := func(err error) (*Result, error) {
		res.Diagnostics.Duration = time.Since(start)
		p.metrics.observe(res, err)
		p.logRun(res, err)
		return res, err
	}

	if err := ctx.Err(); err != nil {
		return finish(err)
	}

	tables, parseStats := p.parser.Parse(payloads)
	res.Diagnostics.Parse = parseStats
	if len(tables) == 0 {
		return finish(ErrNoData)
	}

	merged, mergeStats, err := table.Merge(tables, config.TimestampColumn)
	res.Diagnostics.Merge = mergeStats
	if errors.Is(err, table.ErrNoTimestampColumn) {
		return finish(ErrNoData)
	}
	if err != nil {
		return finish(fmt.Errorf("merge: %w", err))
	}

	if err := ctx.Err(); err != nil {
		return finish(err)
	}

	normalized, normStats, err := p.normalizer.Normalize(merged, config.TimestampColumn)
	res.Diagnostics.Normalize = normStats
	if err != nil {
		return finish(fmt.Errorf("normalize: %w", err))
	}
	if len(normalized.Rows) == 0 {
		return finish(ErrNoData)
	}

	records, aggStats := attendance.Aggregate(normalized)
	res.Diagnostics.Aggregate = aggStats
	if len(records) == 0 {
		return finish(ErrNoData)
	}

	runID := uuid.NewString()
	generatedAt := p.clock()
	for i := range records {
		records[i].RunID = runID
		records[i].GeneratedAt = generatedAt
	}
	res.Report = report.New(runID, generatedAt, records)

	return finish(nil)
}

// RunAndEmit runs the pipeline and hands the report to every sink. Sink
// errors are joined and returned with the result.
func (p *Pipeline) RunAndEmit(ctx context.Context, payloads map[string][]table.RawPayload, sinks ...report.Sink) (*Result, error) {
	res, err := p.Run(ctx, payloads)
	if err != nil {
		return res, err
	}
	if err := report.EmitAll(ctx, res.Report, sinks...); err != nil {
		return res, fmt.Errorf("emit report: %w", err)
	}
	return res, nil
}

func (p *Pipeline) logRun(res *Result, err error) {
	d := res.Diagnostics
	attrs := []any{
		"files", d.Parse.Files,
		"parsed", d.Parse.Parsed,
		"failed", d.Parse.Failed,
		"skipped_health", d.Parse.SkippedHealth,
		"skipped_filetype", d.Parse.SkippedFiletype,
		"excluded_nodes", len(d.Merge.Excluded),
		"unparsable_rows", d.Normalize.Unparsable,
		"duplicate_rows", d.Merge.Duplicates+d.Normalize.Duplicates,
		"malformed_columns", len(d.Aggregate.MalformedColumns),
		"duration", d.Duration,
	}
	switch {
	case errors.Is(err, ErrNoData):
		p.logger.Warn("report run produced no data", attrs...)
	case err != nil:
		p.logger.Error("report run failed", append(attrs, "error", err)...)
	default:
		attrs = append(attrs, "run_id", res.Report.RunID, "records", len(res.Report.Records))
		p.logger.Info("report run complete", attrs...)
	}
}
