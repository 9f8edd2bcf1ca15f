// pkg/model/cleaning.go
package model

import (
	"time"
)

// Cleaning operation kinds
const (
	OperationRowDiscarded     = "row_discarded"
	OperationDuplicateRemoved = "duplicate_removed"
	OperationNullFilled       = "null_filled"
	OperationColumnRenamed    = "column_renamed"
)

// CleaningOperation represents a single data cleaning operation
type CleaningOperation struct {
	RunID             string    `db:"run_id"`             // Cleaning run that performed the operation
	TableName         string    `db:"table_name"`         // Table name
	ColumnName        string    `db:"column_name"`        // Column that was cleaned, empty for whole-row operations
	OriginalValue     *string   `db:"original_value"`     // Original value (nil when missing)
	NewValue          string    `db:"new_value"`          // New value after cleaning
	RowIdentifier     string    `db:"row_identifier"`     // client_id of the row, or its position
	CleaningOperation string    `db:"cleaning_operation"` // Type of cleaning performed (e.g., "null_filled")
	CleaningReason    string    `db:"cleaning_reason"`    // Reason for cleaning (e.g., "missing_variation")
	CleanedAt         time.Time `db:"cleaned_at"`         // When the cleaning occurred
}
