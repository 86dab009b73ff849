// Command report computes the monthly attendance table once and prints it.
//
// Payloads come from the gateway configured in the environment, or from a
// local directory laid out as <dir>/<node>/<file> when -dir is given.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nicktill/damwatch/pkg/config"
	"github.com/nicktill/damwatch/pkg/gateway"
	"github.com/nicktill/damwatch/pkg/logging"
	"github.com/nicktill/damwatch/pkg/pipeline"
	"github.com/nicktill/damwatch/pkg/report"
	"github.com/nicktill/damwatch/pkg/table"
)

var version = "dev"

type options struct {
	envFile string
	dir     string
	csvPath string
	chart   string
	layout  string
	months  int
	jsonOut bool
	verbose bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.envFile, "env", ".env", "dotenv file to load before reading the environment")
	fs.StringVar(&opts.dir, "dir", "", "read payloads from a local directory instead of the gateway")
	fs.StringVar(&opts.csvPath, "csv", "", "also write the table as CSV to this path")
	fs.StringVar(&opts.chart, "chart", "", "also render a PNG bar chart to this path")
	fs.StringVar(&opts.layout, "layout", "wide", "table layout: wide or long")
	fs.IntVar(&opts.months, "months", 0, "override GATEWAY_MONTHS")
	fs.BoolVar(&opts.jsonOut, "json", false, "print the full report as JSON instead of a table")
	fs.BoolVar(&opts.verbose, "v", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.layout != "wide" && opts.layout != "long" {
		return opts, fmt.Errorf("invalid -layout %q (allowed: wide, long)", opts.layout)
	}
	if opts.months < 0 {
		return opts, fmt.Errorf("invalid -months %d", opts.months)
	}
	return opts, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// run returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(stderr, err)
		return 2
	}

	cfg, err := config.Load(opts.envFile)
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 2
	}
	if opts.verbose {
		cfg.LogLevel = slog.LevelDebug
	}
	if opts.months > 0 {
		cfg.GatewayMonths = opts.months
	}
	// Logs go to stderr so stdout carries only the table.
	logger := logging.NewWithWriter(stderr, cfg, version, "damwatch-report")

	payloads, err := loadPayloads(ctx, cfg, opts, logger)
	if err != nil {
		logger.Error("failed to load payloads", "error", err)
		return 1
	}

	sinks, closeAll, err := buildSinks(opts, stdout)
	if err != nil {
		logger.Error("failed to open output", "error", err)
		return 1
	}
	defer closeAll()

	p := pipeline.New(pipeline.Config{Logger: logger})
	res, err := p.RunAndEmit(ctx, payloads, sinks...)
	switch {
	case errors.Is(err, pipeline.ErrNoData):
		fmt.Fprintln(stdout, pipeline.ErrNoData)
		return 1
	case err != nil:
		logger.Error("report failed", "error", err)
		return 1
	}

	logger.Info("report written",
		"run_id", res.Report.RunID,
		"records", len(res.Report.Records),
		"duration", res.Diagnostics.Duration.Round(time.Millisecond),
	)
	return 0
}

func loadPayloads(ctx context.Context, cfg config.Config, opts options, logger *slog.Logger) (map[string][]table.RawPayload, error) {
	if opts.dir != "" {
		logger.Debug("reading payloads from directory", "dir", opts.dir)
		return gateway.LoadDir(opts.dir)
	}
	client := gateway.New(gateway.ConfigFrom(cfg), logger)
	payloads, stats, err := client.Fetch(ctx, time.Now())
	logger.Info("gateway fetch finished",
		"nodes", stats.Nodes,
		"nodes_failed", stats.NodesFailed,
		"downloaded", stats.Downloaded,
		"download_failed", stats.DownloadFailed,
	)
	return payloads, err
}

// buildSinks opens the requested outputs. The returned func closes any
// files that were created.
func buildSinks(opts options, stdout io.Writer) ([]report.Sink, func(), error) {
	layout := report.LayoutWide
	if opts.layout == "long" {
		layout = report.LayoutLong
	}

	var files []*os.File
	closeAll := func() {
		for _, f := range files {
			f.Close()
		}
	}

	var sinks []report.Sink
	if opts.jsonOut {
		sinks = append(sinks, report.JSONSink{W: stdout})
	} else {
		sinks = append(sinks, report.TextSink{W: stdout, Layout: layout})
	}

	if opts.csvPath != "" {
		f, err := os.Create(opts.csvPath)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		files = append(files, f)
		sinks = append(sinks, report.CSVSink{W: f, Layout: layout})
	}
	if opts.chart != "" {
		f, err := os.Create(opts.chart)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		files = append(files, f)
		sinks = append(sinks, report.ChartSink{W: f})
	}
	return sinks, closeAll, nil
}
