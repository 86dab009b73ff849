package report

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/nicktill/damwatch/pkg/attendance"
)

// Report is what display sinks receive.
type Report struct {
	RunID       string              `json:"run_id"`
	GeneratedAt time.Time           `json:"generated_at"`
	Records     []attendance.Record `json:"records"`
	Matrix      *Matrix             `json:"matrix"`
}

// New builds a report and its matrix from records.
func New(runID string, generatedAt time.Time, records []attendance.Record) *Report {
	return &Report{
		RunID:       runID,
		GeneratedAt: generatedAt,
		Records:     records,
		Matrix:      Pivot(records),
	}
}

type cellKey struct {
	month attendance.Month
	node  string
}

// Matrix is the completeness table: one row per month, one column per
// node. A cell is absent when the node had no sample in that month.
type Matrix struct {
	Months []attendance.Month
	Nodes  []string
	cells  map[cellKey]float64
}

// Pivot reshapes records into a month × node matrix. Months and nodes
// are sorted ascending. If a (month, node) pair appears more than once,
// the last record wins.
func Pivot(records []attendance.Record) *Matrix {
	m := &Matrix{cells: make(map[cellKey]float64, len(records))}
	months := make(map[attendance.Month]bool)
	nodes := make(map[string]bool)

	for _, r := range records {
		m.cells[cellKey{r.Month, r.NodeID}] = r.Percentage
		if !months[r.Month] {
			months[r.Month] = true
			m.Months = append(m.Months, r.Month)
		}
		if !nodes[r.NodeID] {
			nodes[r.NodeID] = true
			m.Nodes = append(m.Nodes, r.NodeID)
		}
	}

	sort.Slice(m.Months, func(i, j int) bool { return m.Months[i].Before(m.Months[j]) })
	sort.Strings(m.Nodes)
	return m
}

// Cell returns the percentage for (month, node).
func (m *Matrix) Cell(month attendance.Month, node string) (float64, bool) {
	v, ok := m.cells[cellKey{month, node}]
	return v, ok
}

// Empty reports whether the matrix has no cells.
func (m *Matrix) Empty() bool {
	return m == nil || len(m.cells) == 0
}

// Max returns the largest cell value, or 0 for an empty matrix.
func (m *Matrix) Max() float64 {
	var out float64
	for _, v := range m.cells {
		if v > out {
			out = v
		}
	}
	return out
}

type matrixRow struct {
	Month  attendance.Month   `json:"month"`
	Values map[string]float64 `json:"values"`
}

type matrixJSON struct {
	Months []attendance.Month `json:"months"`
	Nodes  []string           `json:"nodes"`
	Rows   []matrixRow        `json:"rows"`
}

// MarshalJSON writes the matrix row by row, omitting absent cells.
func (m *Matrix) MarshalJSON() ([]byte, error) {
	out := matrixJSON{
		Months: m.Months,
		Nodes:  m.Nodes,
		Rows:   make([]matrixRow, 0, len(m.Months)),
	}
	if out.Months == nil {
		out.Months = []attendance.Month{}
	}
	if out.Nodes == nil {
		out.Nodes = []string{}
	}
	for _, month := range m.Months {
		row := matrixRow{Month: month, Values: make(map[string]float64)}
		for _, node := range m.Nodes {
			if v, ok := m.Cell(month, node); ok {
				row.Values[node] = v
			}
		}
		out.Rows = append(out.Rows, row)
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores a matrix written by MarshalJSON.
func (m *Matrix) UnmarshalJSON(b []byte) error {
	var in matrixJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	m.Months = in.Months
	m.Nodes = in.Nodes
	m.cells = make(map[cellKey]float64)
	for _, row := range in.Rows {
		for node, v := range row.Values {
			m.cells[cellKey{row.Month, node}] = v
		}
	}
	return nil
}
