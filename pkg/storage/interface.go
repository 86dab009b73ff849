package storage

import (
	"context"
	"sort"
	"time"

	"github.com/nicktill/damwatch/pkg/attendance"
)

// Storage defines the interface for report snapshot backends.
// Implementations: memory (testing), badger (production)
type Storage interface {
	// Write stores the records of one run. Every record must carry the
	// run's GeneratedAt.
	Write(ctx context.Context, records []attendance.Record) error

	// Query retrieves records matching the request
	Query(ctx context.Context, req QueryRequest) ([]attendance.Record, error)

	// Delete removes snapshots generated before the given time
	Delete(ctx context.Context, before time.Time) error

	// Close cleanly shuts down the storage
	Close() error

	// Stats returns storage statistics
	Stats(ctx context.Context) (*Stats, error)
}

// QueryRequest specifies what records to retrieve
type QueryRequest struct {
	// Month range, inclusive. Zero means unbounded.
	From attendance.Month
	To   attendance.Month

	// Filter by node id (optional)
	NodeIDs []string

	// LatestOnly keeps the newest snapshot per (month, node)
	LatestOnly bool

	// NewestFirst orders by generation time, newest run first, before
	// Limit applies. Otherwise records are ordered by month and node.
	NewestFirst bool

	// Limit number of results (0 = no limit)
	Limit int
}

// Stats provides storage health and usage info
type Stats struct {
	// Stored records across all snapshots
	TotalRecords uint64 `json:"total_records"`

	// Distinct runs
	TotalRuns uint64 `json:"total_runs"`

	// Distinct (month, node) series
	TotalSeries uint64 `json:"total_series"`

	// Storage size in bytes
	SizeBytes uint64 `json:"size_bytes"`

	OldestRun time.Time `json:"oldest_run"`
	NewestRun time.Time `json:"newest_run"`
}

// Matches reports whether r passes the month and node filters of req.
func (req QueryRequest) Matches(r attendance.Record) bool {
	if !req.From.IsZero() && r.Month.Before(req.From) {
		return false
	}
	if !req.To.IsZero() && req.To.Before(r.Month) {
		return false
	}
	if len(req.NodeIDs) > 0 {
		found := false
		for _, id := range req.NodeIDs {
			if r.NodeID == id {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Finish applies LatestOnly, ordering and Limit to matched records.
// Backends call it after filtering.
func (req QueryRequest) Finish(records []attendance.Record) []attendance.Record {
	if req.LatestOnly {
		records = Latest(records)
	}
	attendance.SortRecords(records)
	if req.NewestFirst {
		sort.SliceStable(records, func(i, j int) bool {
			return records[i].GeneratedAt.After(records[j].GeneratedAt)
		})
	}
	if req.Limit > 0 && len(records) > req.Limit {
		records = records[:req.Limit]
	}
	return records
}

type seriesKey struct {
	month attendance.Month
	node  string
}

// Latest keeps the record with the newest GeneratedAt per (month, node).
func Latest(records []attendance.Record) []attendance.Record {
	newest := make(map[seriesKey]int, len(records))
	var order []seriesKey
	for i, r := range records {
		k := seriesKey{r.Month, r.NodeID}
		j, ok := newest[k]
		if !ok {
			order = append(order, k)
			newest[k] = i
			continue
		}
		if r.GeneratedAt.After(records[j].GeneratedAt) {
			newest[k] = i
		}
	}

	out := make([]attendance.Record, 0, len(order))
	for _, k := range order {
		out = append(out, records[newest[k]])
	}
	return out
}

// Summarize fills the count and run-time fields of Stats from records.
func Summarize(records []attendance.Record) *Stats {
	stats := &Stats{TotalRecords: uint64(len(records))}
	runs := make(map[int64]bool)
	series := make(map[seriesKey]bool)
	for _, r := range records {
		runs[r.GeneratedAt.UnixNano()] = true
		series[seriesKey{r.Month, r.NodeID}] = true
		if stats.OldestRun.IsZero() || r.GeneratedAt.Before(stats.OldestRun) {
			stats.OldestRun = r.GeneratedAt
		}
		if r.GeneratedAt.After(stats.NewestRun) {
			stats.NewestRun = r.GeneratedAt
		}
	}
	stats.TotalRuns = uint64(len(runs))
	stats.TotalSeries = uint64(len(series))
	return stats
}
