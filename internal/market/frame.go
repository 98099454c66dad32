package market

import (
	"fmt"
	"sort"
)

// Frame is an immutable column-major table addressed by 0-based row offset.
type Frame struct {
	rows    int
	columns map[string][]float64
}

// NewFrame copies cols into a Frame. Every column must have the same length.
func NewFrame(cols map[string][]float64) (*Frame, error) {
	f := &Frame{rows: -1, columns: make(map[string][]float64, len(cols))}
	for name, values := range cols {
		if name == "" {
			return nil, fmt.Errorf("frame: empty column name")
		}
		if f.rows >= 0 && len(values) != f.rows {
			return nil, fmt.Errorf("frame: column %q has %d rows, want %d", name, len(values), f.rows)
		}
		f.rows = len(values)
		f.columns[name] = append([]float64(nil), values...)
	}
	if f.rows < 0 {
		f.rows = 0
	}
	return f, nil
}

func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return f.rows
}

// Value returns the cell at row for column.
func (f *Frame) Value(row int, column string) (float64, error) {
	if f == nil {
		return 0, fmt.Errorf("frame: nil")
	}
	values, ok := f.columns[column]
	if !ok {
		return 0, fmt.Errorf("frame: unknown column %q", column)
	}
	if row < 0 || row >= f.rows {
		return 0, fmt.Errorf("frame: row %d out of range [0,%d)", row, f.rows)
	}
	return values[row], nil
}

// Column returns a copy of the named column.
func (f *Frame) Column(column string) ([]float64, bool) {
	if f == nil {
		return nil, false
	}
	values, ok := f.columns[column]
	if !ok {
		return nil, false
	}
	return append([]float64(nil), values...), true
}

func (f *Frame) Columns() []string {
	if f == nil {
		return nil
	}
	out := make([]string, 0, len(f.columns))
	for name := range f.columns {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// MissingColumns lists which of names the frame does not carry, in input order.
func (f *Frame) MissingColumns(names ...string) []string {
	var missing []string
	for _, name := range names {
		if f == nil {
			missing = append(missing, name)
			continue
		}
		if _, ok := f.columns[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// Slice returns rows [start, end) as a new Frame.
func (f *Frame) Slice(start, end int) (*Frame, error) {
	if f == nil {
		return nil, fmt.Errorf("frame: nil")
	}
	if start < 0 || end > f.rows || start > end {
		return nil, fmt.Errorf("frame: invalid slice [%d,%d) of %d rows", start, end, f.rows)
	}
	cols := make(map[string][]float64, len(f.columns))
	for name, values := range f.columns {
		cols[name] = values[start:end]
	}
	return NewFrame(cols)
}
