package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/nicktill/damwatch/pkg/config"
	"github.com/nicktill/damwatch/pkg/storage"
	"github.com/nicktill/damwatch/pkg/storage/badger"
)

// Retention drops snapshots older than Keep.
type Retention struct {
	Store  storage.Storage
	Keep   time.Duration
	Logger *slog.Logger
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Sweep deletes every snapshot generated before now minus Keep.
func (r Retention) Sweep(ctx context.Context) error {
	clock := r.Clock
	if clock == nil {
		clock = time.Now
	}
	cutoff := clock().Add(-r.Keep)
	return r.Store.Delete(ctx, cutoff)
}

// RunRetention sweeps once at startup and then every RetentionInterval
// until ctx is done.
func RunRetention(ctx context.Context, r Retention, wg *sync.WaitGroup) {
	defer wg.Done()

	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if r.Keep <= 0 {
		logger.Info("snapshot retention disabled")
		return
	}

	sweep := func() {
		sweepCtx, cancel := context.WithTimeout(ctx, config.QueryTimeout)
		defer cancel()

		start := time.Now()
		if err := r.Sweep(sweepCtx); err != nil {
			logger.Error("retention sweep failed", "error", err)
			return
		}
		logger.Debug("retention sweep complete", "keep", r.Keep, "elapsed", time.Since(start).Round(time.Millisecond))
	}

	sweep()

	ticker := time.NewTicker(config.RetentionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			sweep()
		case <-ctx.Done():
			logger.Info("stopping retention scheduler")
			return
		}
	}
}

// RunBadgerGC runs BadgerDB value log GC periodically to reclaim disk
// space freed by retention. Other backends return immediately.
func RunBadgerGC(ctx context.Context, store storage.Storage, logger *slog.Logger, wg *sync.WaitGroup) {
	defer wg.Done()

	badgerStore, ok := store.(*badger.Storage)
	if !ok {
		logger.Debug("storage is not BadgerDB, skipping GC")
		return
	}
	if badgerStore.InMemory() {
		logger.Debug("BadgerDB is in memory, skipping GC")
		return
	}

	ticker := time.NewTicker(config.BadgerGCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			start := time.Now()
			err := badgerStore.RunGC(0.5)
			switch {
			case err == nil:
				logger.Info("badger GC reclaimed space", "elapsed", time.Since(start).Round(time.Millisecond))
			case errors.Is(err, badgerdb.ErrNoRewrite), errors.Is(err, badgerdb.ErrGCInMemoryMode):
				logger.Debug("badger GC found nothing to rewrite")
			default:
				logger.Warn("badger GC failed", "error", err)
			}
		case <-ctx.Done():
			logger.Info("stopping BadgerDB GC scheduler")
			return
		}
	}
}
