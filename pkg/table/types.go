package table

import "errors"

var (
	// ErrTooShort is returned when a file ends inside its metadata block.
	ErrTooShort = errors.New("file shorter than metadata block")
	// ErrRowTooWide is returned when a data row has more fields than the header.
	ErrRowTooWide = errors.New("row has more fields than header")
	// ErrUnsupportedFile is returned for payloads that are neither tables nor archives.
	ErrUnsupportedFile = errors.New("unsupported file type")
	// ErrNoTimestampColumn is returned by Merge when no table can be joined.
	ErrNoTimestampColumn = errors.New("no table carries the timestamp column")
)

// Value is a nullable cell. The zero Value is null.
type Value struct {
	Text  string
	Valid bool
}

// String returns a non-null cell holding s.
func String(s string) Value {
	return Value{Text: s, Valid: true}
}

// Null returns a null cell.
func Null() Value {
	return Value{}
}

// RawPayload is one downloaded file for a node.
type RawPayload struct {
	NodeID   string
	Filename string
	Data     []byte
}

// Table is a row-major table of nullable cells. Every row has
// len(Columns) cells.
type Table struct {
	Columns []string
	Rows    [][]Value
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// ColumnIndex returns the position of name, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// HasColumn reports whether the table carries name.
func (t *Table) HasColumn(name string) bool {
	return t.ColumnIndex(name) >= 0
}

// Column returns a copy of the cells of one column, or nil if absent.
func (t *Table) Column(name string) []Value {
	idx := t.ColumnIndex(name)
	if idx < 0 {
		return nil
	}
	out := make([]Value, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[idx]
	}
	return out
}

// Concat appends tables row-wise. Columns are matched by name; a column
// missing from one of the inputs is null for that input's rows. Column
// order is first-seen order.
func Concat(tables ...*Table) *Table {
	out := &Table{}
	pos := make(map[string]int)
	for _, t := range tables {
		for _, c := range t.Columns {
			if _, ok := pos[c]; !ok {
				pos[c] = len(out.Columns)
				out.Columns = append(out.Columns, c)
			}
		}
	}

	for _, t := range tables {
		mapping := make([]int, len(t.Columns))
		for i, c := range t.Columns {
			mapping[i] = pos[c]
		}
		for _, row := range t.Rows {
			dst := make([]Value, len(out.Columns))
			for i, v := range row {
				dst[mapping[i]] = v
			}
			out.Rows = append(out.Rows, dst)
		}
	}
	return out
}
