package gateway

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/nicktill/damwatch/pkg/table"
)

// LoadDir reads previously downloaded files laid out as <dir>/<node>/<file>.
// Every subdirectory is a node; files are read in name order. Selection by
// month is not applied.
func LoadDir(dir string) (map[string][]table.RawPayload, error) {
	nodes, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read data dir: %w", err)
	}

	out := make(map[string][]table.RawPayload)
	for _, nodeEntry := range nodes {
		if !nodeEntry.IsDir() {
			continue
		}
		node := nodeEntry.Name()
		files, err := os.ReadDir(filepath.Join(dir, node))
		if err != nil {
			return nil, fmt.Errorf("read node dir %s: %w", node, err)
		}
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			data, err := os.ReadFile(filepath.Join(dir, node, f.Name()))
			if err != nil {
				return nil, fmt.Errorf("read %s/%s: %w", node, f.Name(), err)
			}
			out[node] = append(out[node], table.RawPayload{
				NodeID:   node,
				Filename: f.Name(),
				Data:     data,
			})
		}
	}
	return out, nil
}
