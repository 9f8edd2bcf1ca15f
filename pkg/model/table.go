// pkg/model/table.go
package model

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingColumn is returned when a table lacks a column it is expected to carry
	ErrMissingColumn = errors.New("missing column")
	// ErrRowArity is returned when a row does not have one cell per column
	ErrRowArity = errors.New("row arity mismatch")
)

// Table is an ordered collection of named columns with positionally
// addressed rows. Rows are stored row-major.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]Value

	// Metadata describes the source columns when the table was read from a database
	Metadata *TableMetadata
}

// NewTable creates an empty table with the given column names
func NewTable(name string, columns ...string) *Table {
	cols := make([]string, len(columns))
	copy(cols, columns)
	return &Table{
		Name:    name,
		Columns: cols,
		Rows:    make([][]Value, 0),
	}
}

// FromRows builds a table from raw values, wrapping each with ValueOf
func FromRows(name string, columns []string, rows [][]interface{}) (*Table, error) {
	t := NewTable(name, columns...)
	for _, row := range rows {
		if err := t.AppendRow(row...); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// AppendRow appends one row of raw values
func (t *Table) AppendRow(values ...interface{}) error {
	row := make([]Value, len(values))
	for i, v := range values {
		row[i] = ValueOf(v)
	}
	return t.AppendValues(row)
}

// AppendValues appends one row of cells; the row is not copied
func (t *Table) AppendValues(row []Value) error {
	if len(row) != len(t.Columns) {
		return fmt.Errorf("%w: table %s has %d columns, row has %d",
			ErrRowArity, t.Name, len(t.Columns), len(row))
	}
	t.Rows = append(t.Rows, row)
	return nil
}

// NumRows returns the number of rows
func (t *Table) NumRows() int {
	return len(t.Rows)
}

// NumCols returns the number of columns
func (t *Table) NumCols() int {
	return len(t.Columns)
}

// ColumnIndex returns the position of a column by exact name, or -1
func (t *Table) ColumnIndex(name string) int {
	for i, col := range t.Columns {
		if col == name {
			return i
		}
	}
	return -1
}

// ColumnIndexFold returns the position of a column ignoring case, or -1.
// An exact match wins over a case-insensitive one.
func (t *Table) ColumnIndexFold(name string) int {
	if idx := t.ColumnIndex(name); idx >= 0 {
		return idx
	}
	for i, col := range t.Columns {
		if strings.EqualFold(col, name) {
			return i
		}
	}
	return -1
}

// RequireColumns checks that every named column is present (exact match)
func (t *Table) RequireColumns(names ...string) error {
	for _, name := range names {
		if t.ColumnIndex(name) < 0 {
			return fmt.Errorf("%w: %s.%s", ErrMissingColumn, t.Name, name)
		}
	}
	return nil
}

// Column returns the cells of one column in row order
func (t *Table) Column(name string) ([]Value, error) {
	idx := t.ColumnIndex(name)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s.%s", ErrMissingColumn, t.Name, name)
	}
	values := make([]Value, len(t.Rows))
	for i, row := range t.Rows {
		values[i] = row[idx]
	}
	return values, nil
}

// MissingCount returns the number of missing cells in row i
func (t *Table) MissingCount(i int) int {
	missing := 0
	for _, v := range t.Rows[i] {
		if v.IsNull() {
			missing++
		}
	}
	return missing
}

// EmptyLike returns a table with the same name and columns and no rows
func (t *Table) EmptyLike() *Table {
	out := NewTable(t.Name, t.Columns...)
	out.Metadata = t.Metadata
	return out
}

// Clone returns a deep copy of the table
func (t *Table) Clone() *Table {
	out := t.EmptyLike()
	out.Rows = make([][]Value, len(t.Rows))
	for i, row := range t.Rows {
		out.Rows[i] = CopyRow(row)
	}
	return out
}

// CopyRow returns a copy of a row
func CopyRow(row []Value) []Value {
	out := make([]Value, len(row))
	copy(out, row)
	return out
}

// RowKey returns a fingerprint of a row. Two rows have the same key
// exactly when every cell is Equal. Cell keys are length-prefixed so cell
// contents cannot shift a boundary.
func RowKey(row []Value) string {
	var sb strings.Builder
	for _, v := range row {
		k := v.key()
		fmt.Fprintf(&sb, "%d:%s", len(k), k)
	}
	return sb.String()
}
