package normalize

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nicktill/damwatch/pkg/table"
)

// ErrUnparsableTimestamp is returned by ParseTimestamp when no layout matches.
var ErrUnparsableTimestamp = errors.New("unparsable timestamp")

// Layouts are tried in order. Fractional seconds are accepted after the
// seconds field of any layout.
var Layouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339Nano,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"2006-01-02",
}

// Row is a surviving row with its derived time fields.
type Row struct {
	Timestamp time.Time
	// Date is midnight of the calendar day of Timestamp.
	Date time.Time
	// Hour is the time of day rounded half-up to the hour, 0-23.
	Hour   int
	Values []table.Value
}

// Table is the output of Normalize. Columns and Row.Values follow the
// merged table's layout, timestamp column included.
type Table struct {
	Columns []string
	Key     string
	Rows    []Row
}

// Stats counts dropped rows.
type Stats struct {
	Input      int `json:"input"`
	Unparsable int `json:"unparsable"`
	Duplicates int `json:"duplicates"`
	Output     int `json:"output"`
}

// Normalizer parses timestamps and keeps one row per hourly bucket.
type Normalizer struct {
	Layouts  []string
	Location *time.Location
}

// New creates a normalizer reading zone-less timestamps as UTC.
func New() *Normalizer {
	return &Normalizer{
		Layouts:  Layouts,
		Location: time.UTC,
	}
}

type bucket struct {
	year  int
	month time.Month
	day   int
	hour  int
}

// Normalize drops rows whose key does not parse, derives each row's date
// and rounded hour, then keeps the first row of every (date, hour) bucket
// in table order.
func (n *Normalizer) Normalize(t *table.Table, key string) (*Table, Stats, error) {
	ki := t.ColumnIndex(key)
	if ki < 0 {
		return nil, Stats{}, fmt.Errorf("normalize: %w", table.ErrNoTimestampColumn)
	}

	stats := Stats{Input: t.Len()}
	out := &Table{
		Columns: append([]string(nil), t.Columns...),
		Key:     key,
		Rows:    make([]Row, 0, t.Len()),
	}
	seen := make(map[bucket]bool, t.Len())

	for _, values := range t.Rows {
		cell := values[ki]
		if !cell.Valid {
			stats.Unparsable++
			continue
		}
		ts, err := n.ParseTimestamp(cell.Text)
		if err != nil {
			stats.Unparsable++
			continue
		}

		date, hour := Bucket(ts)
		b := bucket{date.Year(), date.Month(), date.Day(), hour}
		if seen[b] {
			stats.Duplicates++
			continue
		}
		seen[b] = true

		out.Rows = append(out.Rows, Row{
			Timestamp: ts,
			Date:      date,
			Hour:      hour,
			Values:    values,
		})
	}

	stats.Output = len(out.Rows)
	return out, stats, nil
}

// ParseTimestamp parses s with the first matching layout.
func (n *Normalizer) ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	loc := n.Location
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range n.Layouts {
		if ts, err := time.ParseInLocation(layout, s, loc); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrUnparsableTimestamp, s)
}

// RoundHour rounds ts to the nearest wall-clock hour; half past rounds up.
func RoundHour(ts time.Time) time.Time {
	floor := time.Date(ts.Year(), ts.Month(), ts.Day(), ts.Hour(), 0, 0, 0, ts.Location())
	if ts.Sub(floor) >= 30*time.Minute {
		return time.Date(ts.Year(), ts.Month(), ts.Day(), ts.Hour()+1, 0, 0, 0, ts.Location())
	}
	return floor
}

// Bucket returns the calendar date of ts and the hour of day of ts
// rounded. The date is taken before rounding, so 23:40 on the 31st lands
// in (31st, 00).
func Bucket(ts time.Time) (date time.Time, hour int) {
	date = time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, ts.Location())
	return date, RoundHour(ts).Hour()
}

// Table converts the rows back into a plain table, raw timestamp text
// included, so the result can be normalized again.
func (t *Table) Table() *table.Table {
	out := &table.Table{
		Columns: append([]string(nil), t.Columns...),
		Rows:    make([][]table.Value, len(t.Rows)),
	}
	for i, r := range t.Rows {
		out.Rows[i] = r.Values
	}
	return out
}
