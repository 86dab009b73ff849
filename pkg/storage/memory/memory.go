package memory

import (
	"context"
	"sync"
	"time"

	"github.com/nicktill/damwatch/pkg/attendance"
	"github.com/nicktill/damwatch/pkg/storage"
)

// Storage stores report snapshots in memory. Data is lost on restart.
// Useful for testing and development.
type Storage struct {
	records []attendance.Record
	mu      sync.RWMutex
}

// New creates an in-memory storage backend
func New() *Storage {
	return &Storage{
		records: make([]attendance.Record, 0, 256),
	}
}

// Write stores records in memory
func (s *Storage) Write(ctx context.Context, records []attendance.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, records...)
	return nil
}

// Query retrieves records matching the request
func (s *Storage) Query(ctx context.Context, req storage.QueryRequest) ([]attendance.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []attendance.Record
	for _, r := range s.records {
		if req.Matches(r) {
			results = append(results, r)
		}
	}
	return req.Finish(results), nil
}

// Delete removes snapshots generated before the given time
func (s *Storage) Delete(ctx context.Context, before time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	filtered := make([]attendance.Record, 0, len(s.records))
	for _, r := range s.records {
		if !r.GeneratedAt.Before(before) {
			filtered = append(filtered, r)
		}
	}

	s.records = filtered
	return nil
}

// Close is a no-op for memory storage
func (s *Storage) Close() error {
	return nil
}

// Stats returns storage statistics
func (s *Storage) Stats(ctx context.Context) (*storage.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := storage.Summarize(s.records)
	// Rough size estimate (each record ~120 bytes of JSON)
	stats.SizeBytes = uint64(len(s.records)) * 120
	return stats, nil
}
