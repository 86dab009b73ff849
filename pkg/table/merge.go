package table

import (
	"sort"
)

// MergeStats describes how node tables were combined.
type MergeStats struct {
	Base       string   `json:"base"`
	Joined     []string `json:"joined"`
	Excluded   []string `json:"excluded,omitempty"`
	Renamed    int      `json:"renamed_columns"`
	Duplicates int      `json:"duplicate_rows"`
	Rows       int      `json:"rows"`
}

// Merge full-outer-joins node tables on the key column.
//
// The base is the smallest node id whose table carries key; the other
// carriers join in ascending node-id order. Tables without key are
// excluded. A column already present in the merged table is renamed
// "<column>_<node>". The result holds one row per distinct key value,
// sorted by key text, with null keys last. When one node has several rows
// for a key, only its first row is kept; the later ones are dropped whole
// and counted in Duplicates.
func Merge(tables map[string]*Table, key string) (*Table, MergeStats, error) {
	var stats MergeStats

	nodes := make([]string, 0, len(tables))
	for node := range tables {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)

	var carriers []string
	for _, node := range nodes {
		if tables[node].HasColumn(key) {
			carriers = append(carriers, node)
		} else {
			stats.Excluded = append(stats.Excluded, node)
		}
	}
	if len(carriers) == 0 {
		return nil, stats, ErrNoTimestampColumn
	}
	stats.Base = carriers[0]
	stats.Joined = carriers

	// First pass: lay out the merged columns and remember where each
	// source column lands.
	merged := &Table{Columns: []string{key}}
	present := map[string]bool{key: true}
	layouts := make(map[string][]int, len(carriers))
	for _, node := range carriers {
		t := tables[node]
		layout := make([]int, len(t.Columns))
		for i, name := range t.Columns {
			if name == key {
				layout[i] = 0
				continue
			}
			target := name
			if present[target] {
				for present[target] {
					target += "_" + node
				}
				stats.Renamed++
			}
			present[target] = true
			layout[i] = len(merged.Columns)
			merged.Columns = append(merged.Columns, target)
		}
		layouts[node] = layout
	}

	// Second pass: fold rows into one row per key value.
	index := make(map[Value]int)
	for _, node := range carriers {
		t := tables[node]
		layout := layouts[node]
		ki := t.ColumnIndex(key)
		seen := make(map[Value]bool, len(t.Rows))
		for _, row := range t.Rows {
			k := row[ki]
			if seen[k] {
				stats.Duplicates++
				continue
			}
			seen[k] = true

			pos, ok := index[k]
			if !ok {
				pos = len(merged.Rows)
				index[k] = pos
				dst := make([]Value, len(merged.Columns))
				dst[0] = k
				merged.Rows = append(merged.Rows, dst)
			}
			dst := merged.Rows[pos]
			for i, v := range row {
				if i == ki || !v.Valid {
					continue
				}
				dst[layout[i]] = v
			}
		}
	}

	sort.SliceStable(merged.Rows, func(i, j int) bool {
		a, b := merged.Rows[i][0], merged.Rows[j][0]
		if a.Valid != b.Valid {
			return a.Valid
		}
		return a.Text < b.Text
	})

	stats.Rows = merged.Len()
	return merged, stats, nil
}
