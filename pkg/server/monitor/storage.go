package monitor

import (
	"io/fs"
	"path/filepath"
	"sync"
	"time"
)

const usageCacheDuration = 10 * time.Second

// StorageMonitor reports how much disk the snapshot store takes. Results
// are cached briefly since walking the data dir is not free.
type StorageMonitor struct {
	dataDir  string
	maxBytes int64

	mu          sync.Mutex
	cachedUsage int64
	lastCheck   time.Time
}

// NewStorageMonitor creates a monitor for dataDir. maxBytes <= 0 means
// no limit.
func NewStorageMonitor(dataDir string, maxBytes int64) *StorageMonitor {
	return &StorageMonitor{dataDir: dataDir, maxBytes: maxBytes}
}

// Usage returns the bytes used under the data dir.
func (sm *StorageMonitor) Usage() (int64, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !sm.lastCheck.IsZero() && time.Since(sm.lastCheck) < usageCacheDuration {
		return sm.cachedUsage, nil
	}

	usage, err := dirSize(sm.dataDir)
	if err != nil {
		return 0, err
	}
	sm.cachedUsage = usage
	sm.lastCheck = time.Now()
	return usage, nil
}

// Limit returns the configured limit in bytes.
func (sm *StorageMonitor) Limit() int64 {
	return sm.maxBytes
}

// Exceeded reports whether usage is over the limit. Errors count as not
// exceeded; the usage endpoint surfaces them.
func (sm *StorageMonitor) Exceeded() bool {
	if sm.maxBytes <= 0 {
		return false
	}
	usage, err := sm.Usage()
	return err == nil && usage > sm.maxBytes
}

func dirSize(root string) (int64, error) {
	var size int64
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		size += diskSize(path, info)
		return nil
	})
	return size, err
}
