package attendance

import (
	"sort"
	"time"

	"github.com/nicktill/damwatch/pkg/config"
	"github.com/nicktill/damwatch/pkg/normalize"
)

// Record is the completeness of one node over one month.
type Record struct {
	Month      Month   `json:"month"`
	NodeID     string  `json:"node_id"`
	Observed   int     `json:"observed"`
	Expected   int     `json:"expected"`
	Percentage float64 `json:"percentage"`

	// Set when the record is stored as part of a run snapshot.
	RunID       string    `json:"run_id,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Stats describes the long-form sample set behind the records.
type Stats struct {
	Columns          []string `json:"columns"`
	MalformedColumns []string `json:"malformed_columns,omitempty"`
	Samples          int      `json:"samples"`
	NullValues       int      `json:"null_values"`
}

// Expected returns the number of hourly samples a complete month holds.
func Expected(m Month) int {
	return m.Days() * config.HoursPerDay
}

// Percentage is observed over expected, times 100. It is not clamped:
// several channels of one node each count toward that node.
func Percentage(observed int, m Month) float64 {
	return float64(observed) / float64(Expected(m)) * 100
}

type recordKey struct {
	month Month
	node  string
}

// Aggregate counts non-null measurement samples per (month, node). Only
// columns starting with the measurement prefix are read; columns whose
// name does not parse are reported in Stats and left out. Records are
// sorted by month, then node.
func Aggregate(t *normalize.Table) ([]Record, Stats) {
	var stats Stats

	type selected struct {
		index int
		node  string
	}
	var cols []selected
	for i, name := range t.Columns {
		if name == t.Key || !IsMeasurement(name) {
			continue
		}
		ch, err := ParseColumn(name)
		if err != nil {
			stats.MalformedColumns = append(stats.MalformedColumns, name)
			continue
		}
		stats.Columns = append(stats.Columns, name)
		cols = append(cols, selected{index: i, node: ch.NodeID})
	}

	counts := make(map[recordKey]int)
	for _, row := range t.Rows {
		month := MonthOf(row.Timestamp)
		for _, c := range cols {
			if !row.Values[c.index].Valid {
				stats.NullValues++
				continue
			}
			counts[recordKey{month: month, node: c.node}]++
			stats.Samples++
		}
	}

	records := make([]Record, 0, len(counts))
	for k, observed := range counts {
		records = append(records, Record{
			Month:      k.month,
			NodeID:     k.node,
			Observed:   observed,
			Expected:   Expected(k.month),
			Percentage: Percentage(observed, k.month),
		})
	}
	SortRecords(records)
	return records, stats
}

// SortRecords orders records by month, node, then generation time.
func SortRecords(records []Record) {
	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.Month != b.Month {
			return a.Month.Before(b.Month)
		}
		if a.NodeID != b.NodeID {
			return a.NodeID < b.NodeID
		}
		return a.GeneratedAt.Before(b.GeneratedAt)
	})
}
