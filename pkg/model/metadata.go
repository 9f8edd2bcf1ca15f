// pkg/model/metadata.go
package model

import "strings"

// TableMetadata contains the structure information for a table
type TableMetadata struct {
	Schema  string   // Schema name
	Table   string   // Table name
	Columns []Column // Column definitions
}

// Column represents metadata about a single column
type Column struct {
	Name     string // Column name
	DataType string // Source data type (driver database type name or inferred kind)
	PgType   string // Mapped PostgreSQL type
	Nullable bool   // Whether the column holds missing cells
}

// GetColumnByName returns a column by name (case-insensitive)
// Returns nil if column not found
func (tm *TableMetadata) GetColumnByName(name string) *Column {
	normalizedName := normalizeColumnName(name)
	for i, col := range tm.Columns {
		if normalizeColumnName(col.Name) == normalizedName {
			return &tm.Columns[i]
		}
	}
	return nil
}

// Clone returns a copy of the metadata that shares no column slice
func (tm *TableMetadata) Clone() *TableMetadata {
	if tm == nil {
		return nil
	}
	out := *tm
	out.Columns = make([]Column, len(tm.Columns))
	copy(out.Columns, tm.Columns)
	return &out
}

// ColumnNames returns the column names in order
func (tm *TableMetadata) ColumnNames() []string {
	names := make([]string, len(tm.Columns))
	for i, col := range tm.Columns {
		names[i] = col.Name
	}
	return names
}

// IsIdentifierColumn checks if a column holds a client or row identifier
func (col *Column) IsIdentifierColumn() bool {
	name := normalizeColumnName(col.Name)
	return name == "id" || strings.HasSuffix(name, "_id")
}

func normalizeColumnName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
