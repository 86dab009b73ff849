package report

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
)

// Sink displays or forwards a finished report.
type Sink interface {
	Emit(ctx context.Context, r *Report) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, r *Report) error

// Emit calls f.
func (f SinkFunc) Emit(ctx context.Context, r *Report) error {
	return f(ctx, r)
}

// EmitAll hands r to every sink, even after one fails, and joins the
// errors.
func EmitAll(ctx context.Context, r *Report, sinks ...Sink) error {
	var errs []error
	for _, s := range sinks {
		if err := s.Emit(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Layout selects between the pivoted and the record-per-line shape.
type Layout int

const (
	// LayoutWide writes one row per month and one column per node.
	LayoutWide Layout = iota
	// LayoutLong writes one row per (month, node) record.
	LayoutLong
)

// TextSink writes an aligned plain-text table.
type TextSink struct {
	W      io.Writer
	Layout Layout
}

// Emit implements Sink.
func (s TextSink) Emit(_ context.Context, r *Report) error {
	tw := tabwriter.NewWriter(s.W, 0, 0, 2, ' ', tabwriter.AlignRight)

	if s.Layout == LayoutLong {
		fmt.Fprintln(tw, "Month\tNode\tObserved\tExpected\tPercentage\t")
		for _, rec := range r.Records {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%.2f\t\n", rec.Month, rec.NodeID, rec.Observed, rec.Expected, rec.Percentage)
		}
		return tw.Flush()
	}

	fmt.Fprint(tw, "Month\t")
	for _, node := range r.Matrix.Nodes {
		fmt.Fprintf(tw, "%s\t", node)
	}
	fmt.Fprintln(tw)
	for _, month := range r.Matrix.Months {
		fmt.Fprintf(tw, "%s\t", month)
		for _, node := range r.Matrix.Nodes {
			if v, ok := r.Matrix.Cell(month, node); ok {
				fmt.Fprintf(tw, "%.2f\t", v)
			} else {
				fmt.Fprint(tw, "-\t")
			}
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}

// CSVSink writes the report as CSV.
type CSVSink struct {
	W      io.Writer
	Layout Layout
}

// Emit implements Sink.
func (s CSVSink) Emit(_ context.Context, r *Report) error {
	writer := csv.NewWriter(s.W)

	if s.Layout == LayoutLong {
		if err := writer.Write([]string{"month", "node_id", "observed", "expected", "percentage"}); err != nil {
			return fmt.Errorf("failed to write CSV header: %w", err)
		}
		for _, rec := range r.Records {
			row := []string{
				rec.Month.String(),
				rec.NodeID,
				strconv.Itoa(rec.Observed),
				strconv.Itoa(rec.Expected),
				strconv.FormatFloat(rec.Percentage, 'f', -1, 64),
			}
			if err := writer.Write(row); err != nil {
				return fmt.Errorf("failed to write CSV row: %w", err)
			}
		}
	} else {
		header := append([]string{"month"}, r.Matrix.Nodes...)
		if err := writer.Write(header); err != nil {
			return fmt.Errorf("failed to write CSV header: %w", err)
		}
		for _, month := range r.Matrix.Months {
			row := []string{month.String()}
			for _, node := range r.Matrix.Nodes {
				if v, ok := r.Matrix.Cell(month, node); ok {
					row = append(row, strconv.FormatFloat(v, 'f', -1, 64))
				} else {
					row = append(row, "") // no samples
				}
			}
			if err := writer.Write(row); err != nil {
				return fmt.Errorf("failed to write CSV row: %w", err)
			}
		}
	}

	writer.Flush()
	return writer.Error()
}

// JSONSink writes the report as indented JSON.
type JSONSink struct {
	W io.Writer
}

// Emit implements Sink.
func (s JSONSink) Emit(_ context.Context, r *Report) error {
	encoder := json.NewEncoder(s.W)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(r); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}
