package pipeline

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports run diagnostics as Prometheus counters. A nil *Metrics
// records nothing.
type Metrics struct {
	runs     *prometheus.CounterVec
	files    *prometheus.CounterVec
	rows     *prometheus.CounterVec
	samples  prometheus.Counter
	duration prometheus.Histogram
}

// NewMetrics creates the pipeline collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "damwatch",
			Name:      "runs_total",
			Help:      "Report runs by outcome.",
		}, []string{"outcome"}),
		files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "damwatch",
			Name:      "files_total",
			Help:      "Downloaded files by parse result.",
		}, []string{"result"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "damwatch",
			Name:      "rows_dropped_total",
			Help:      "Rows dropped during normalization by reason.",
		}, []string{"reason"}),
		samples: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "damwatch",
			Name:      "samples_total",
			Help:      "Non-null measurement samples counted toward attendance.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "damwatch",
			Name:      "run_duration_seconds",
			Help:      "Pipeline run duration.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
	}
	reg.MustRegister(m.runs, m.files, m.rows, m.samples, m.duration)
	return m
}

func (m *Metrics) observe(res *Result, err error) {
	if m == nil {
		return
	}

	outcome := "ok"
	switch {
	case errors.Is(err, ErrNoData):
		outcome = "no_data"
	case err != nil:
		outcome = "error"
	}
	m.runs.WithLabelValues(outcome).Inc()

	d := res.Diagnostics
	m.files.WithLabelValues("parsed").Add(float64(d.Parse.Parsed))
	m.files.WithLabelValues("failed").Add(float64(d.Parse.Failed))
	m.files.WithLabelValues("skipped_health").Add(float64(d.Parse.SkippedHealth))
	m.files.WithLabelValues("skipped_filetype").Add(float64(d.Parse.SkippedFiletype))
	m.rows.WithLabelValues("unparsable").Add(float64(d.Normalize.Unparsable))
	m.rows.WithLabelValues("duplicate").Add(float64(d.Merge.Duplicates + d.Normalize.Duplicates))
	m.samples.Add(float64(d.Aggregate.Samples))
	m.duration.Observe(d.Duration.Seconds())
}
