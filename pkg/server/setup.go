package server

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/nicktill/damwatch/pkg/config"
	"github.com/nicktill/damwatch/pkg/server/monitor"
	"github.com/nicktill/damwatch/pkg/storage"
	"github.com/nicktill/damwatch/pkg/storage/badger"
	"github.com/nicktill/damwatch/pkg/storage/memory"
)

// InitializeStorage opens the configured snapshot backend. For badger it
// also returns a monitor on the data dir; memory storage has none.
func InitializeStorage(cfg config.Config, logger *slog.Logger) (storage.Storage, *monitor.StorageMonitor, error) {
	if cfg.StorageBackend == "memory" {
		logger.Info("using in-memory snapshot storage; reports are lost on restart")
		return memory.New(), nil, nil
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create data directory: %w", err)
	}

	logger.Info("initializing BadgerDB storage", "path", cfg.DataDir, "max_memory_mb", cfg.MaxMemoryMB)
	store, err := badger.New(badger.Config{
		Path:        cfg.DataDir,
		MaxMemoryMB: cfg.MaxMemoryMB,
		Logger:      logger,
	})
	if err != nil {
		return nil, nil, err
	}

	disk := monitor.NewStorageMonitor(cfg.DataDir, cfg.MaxStorageMB*1024*1024)
	return store, disk, nil
}
