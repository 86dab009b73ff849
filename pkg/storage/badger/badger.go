package badger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/nicktill/damwatch/pkg/attendance"
	"github.com/nicktill/damwatch/pkg/storage"
)

const slowQuery = 5 * time.Second

// Storage implements storage.Storage using BadgerDB (LSM tree)
type Storage struct {
	db     *badger.DB
	logger *slog.Logger
}

// Config holds BadgerDB configuration
type Config struct {
	// Path to store database files
	Path string

	// InMemory mode (for testing)
	InMemory bool

	// MaxMemoryMB limits BadgerDB memory usage in MB (0 = laptop-friendly default)
	MaxMemoryMB int64

	Logger *slog.Logger
}

// New creates a BadgerDB storage backend
func New(cfg Config) (*Storage, error) {
	opts := badger.DefaultOptions(cfg.Path)

	if cfg.InMemory {
		opts = opts.WithInMemory(true)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	// Badger defaults to 64 MB memtables x5. Snapshots are tiny, so stay
	// around 48 MB total unless told otherwise.
	memTableSize := int64(16 * 1024 * 1024)
	if cfg.MaxMemoryMB > 0 {
		memTableSize = cfg.MaxMemoryMB * 1024 * 1024 / 3
	}
	blockCacheSize := memTableSize / 2
	indexCacheSize := memTableSize / 4

	opts = opts.
		WithCompression(options.Snappy).
		WithNumVersionsToKeep(1).
		WithMemTableSize(memTableSize).
		WithNumMemtables(3).
		WithBlockCacheSize(blockCacheSize).
		WithIndexCacheSize(indexCacheSize).
		WithMaxLevels(4).
		WithNumLevelZeroTables(2).
		WithNumLevelZeroTablesStall(4).
		WithValueThreshold(1024).
		WithNumCompactors(1).
		WithValueLogMaxEntries(5000).
		WithValueLogFileSize(64 << 20). // default is 2 GB
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	return &Storage{db: db, logger: cfg.Logger}, nil
}

// Write stores records in BadgerDB.
// Blocks no longer than ctx allows.
func (s *Storage) Write(ctx context.Context, records []attendance.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- s.db.Update(func(txn *badger.Txn) error {
			for i, r := range records {
				if i%100 == 0 {
					select {
					case <-ctx.Done():
						return ctx.Err()
					default:
					}
				}

				value, err := encodeRecord(r)
				if err != nil {
					return fmt.Errorf("failed to encode record: %w", err)
				}
				if err := txn.Set(makeKey(r.Month, r.NodeID, r.GeneratedAt), value); err != nil {
					return fmt.Errorf("failed to write record: %w", err)
				}
			}
			return nil
		})
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("write operation cancelled: %w", ctx.Err())
	}
}

// Query retrieves records matching the request.
// Blocks no longer than ctx allows.
func (s *Storage) Query(ctx context.Context, req storage.QueryRequest) ([]attendance.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type queryResult struct {
		results []attendance.Record
		err     error
	}
	done := make(chan queryResult, 1)

	go func() {
		var results []attendance.Record
		startTime := time.Now()
		var iterCount int

		err := s.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.PrefetchSize = 100

			it := txn.NewIterator(opts)
			defer it.Close()

			for it.Rewind(); it.Valid(); it.Next() {
				iterCount++
				if iterCount%1000 == 0 {
					select {
					case <-ctx.Done():
						return ctx.Err()
					default:
					}
				}

				err := it.Item().Value(func(val []byte) error {
					r, err := decodeRecord(val)
					if err != nil {
						return err
					}
					if req.Matches(r) {
						results = append(results, r)
					}
					return nil
				})
				if err != nil {
					return err
				}
			}
			return nil
		})

		if elapsed := time.Since(startTime); elapsed > slowQuery {
			s.logger.Warn("slow snapshot query", "elapsed", elapsed, "iterations", iterCount, "results", len(results))
		}
		done <- queryResult{results: req.Finish(results), err: err}
	}()

	select {
	case res := <-done:
		return res.results, res.err
	case <-ctx.Done():
		return nil, fmt.Errorf("query operation cancelled: %w", ctx.Err())
	}
}

// Delete removes snapshots generated before the cutoff. The run time is
// read from the key, so values are never loaded.
func (s *Storage) Delete(ctx context.Context, before time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- s.db.Update(func(txn *badger.Txn) error {
			iterOpts := badger.DefaultIteratorOptions
			iterOpts.PrefetchValues = false

			it := txn.NewIterator(iterOpts)
			defer it.Close()

			var keysToDelete [][]byte
			var iterCount int
			for it.Rewind(); it.Valid(); it.Next() {
				iterCount++
				if iterCount%1000 == 0 {
					select {
					case <-ctx.Done():
						return ctx.Err()
					default:
					}
				}

				item := it.Item()
				_, ts := parseKey(item.Key())
				if !ts.Before(before) {
					continue
				}
				keysToDelete = append(keysToDelete, item.KeyCopy(nil))
			}

			for _, key := range keysToDelete {
				if err := txn.Delete(key); err != nil {
					return err
				}
			}
			return nil
		})
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("delete operation cancelled: %w", ctx.Err())
	}
}

// Close shuts down BadgerDB cleanly
func (s *Storage) Close() error {
	return s.db.Close()
}

// RunGC runs BadgerDB's value log garbage collection to reclaim space
// from deleted snapshots. badger.ErrNoRewrite means there was nothing
// worth collecting.
func (s *Storage) RunGC(discardRatio float64) error {
	return s.db.RunValueLogGC(discardRatio)
}

// InMemory reports whether the database has no files on disk. Value log
// GC does not apply to such a database.
func (s *Storage) InMemory() bool {
	return s.db.Opts().InMemory
}

// Stats returns storage statistics.
// Blocks no longer than ctx allows.
func (s *Storage) Stats(ctx context.Context) (*storage.Stats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type statsResult struct {
		stats *storage.Stats
		err   error
	}
	done := make(chan statsResult, 1)

	go func() {
		stats := &storage.Stats{}
		runs := make(map[int64]bool)
		series := make(map[uint64]bool)

		err := s.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.PrefetchValues = false

			it := txn.NewIterator(opts)
			defer it.Close()

			var iterCount int
			for it.Rewind(); it.Valid(); it.Next() {
				iterCount++
				if iterCount%1000 == 0 {
					select {
					case <-ctx.Done():
						return ctx.Err()
					default:
					}
				}

				hash, ts := parseKey(it.Item().Key())
				stats.TotalRecords++
				series[hash] = true
				runs[ts.UnixNano()] = true

				if stats.OldestRun.IsZero() || ts.Before(stats.OldestRun) {
					stats.OldestRun = ts
				}
				if ts.After(stats.NewestRun) {
					stats.NewestRun = ts
				}
			}
			return nil
		})

		stats.TotalRuns = uint64(len(runs))
		stats.TotalSeries = uint64(len(series))
		if err == nil {
			lsmSize, vlogSize := s.db.Size()
			stats.SizeBytes = uint64(lsmSize + vlogSize)
		}
		done <- statsResult{stats: stats, err: err}
	}()

	select {
	case res := <-done:
		return res.stats, res.err
	case <-ctx.Done():
		return nil, fmt.Errorf("stats operation cancelled: %w", ctx.Err())
	}
}

// makeKey creates a sortable key: series hash + run time.
// Format: [xxhash(month|node) (8 bytes)][generated_at nanos (8 bytes)]
func makeKey(month attendance.Month, node string, generatedAt time.Time) []byte {
	key := make([]byte, 16)
	binary.BigEndian.PutUint64(key[0:8], xxhash.Sum64String(month.String()+"|"+node))
	binary.BigEndian.PutUint64(key[8:16], uint64(generatedAt.UnixNano()))
	return key
}

// parseKey splits a storage key into its series hash and run time.
func parseKey(key []byte) (uint64, time.Time) {
	hash := binary.BigEndian.Uint64(key[0:8])
	ts := time.Unix(0, int64(binary.BigEndian.Uint64(key[8:16]))).UTC()
	return hash, ts
}

func encodeRecord(r attendance.Record) ([]byte, error) {
	return json.Marshal(r)
}

func decodeRecord(data []byte) (attendance.Record, error) {
	var r attendance.Record
	err := json.Unmarshal(data, &r)
	return r, err
}
