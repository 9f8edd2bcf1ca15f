// pkg/cleaner/operations.go
package cleaner

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/David-Botos/experiment-cleaning/pkg/model"
)

// FilterIncomplete partitions rows by their number of missing cells.
// Rows with more than maxMissing missing cells are returned unmodified in
// discarded; every other row is kept. Row order is preserved in both.
func FilterIncomplete(
	t *model.Table,
	maxMissing int,
	idColumn string,
) (*model.Table, *model.Table, []model.CleaningOperation) {
	kept := t.EmptyLike()
	discarded := t.EmptyLike()
	var operations []model.CleaningOperation

	for i, row := range t.Rows {
		missing := t.MissingCount(i)
		if missing <= maxMissing {
			kept.Rows = append(kept.Rows, model.CopyRow(row))
			continue
		}

		discarded.Rows = append(discarded.Rows, model.CopyRow(row))
		operations = append(operations, model.CleaningOperation{
			TableName:         t.Name,
			RowIdentifier:     rowIdentifier(t, i, idColumn),
			CleaningOperation: model.OperationRowDiscarded,
			CleaningReason:    fmt.Sprintf("missing_values_exceeded: %d > %d", missing, maxMissing),
		})
	}

	return kept, discarded, operations
}

// Deduplicate removes rows identical to an earlier row across all columns,
// keeping the first occurrence and the order of the remaining rows.
func Deduplicate(t *model.Table, idColumn string) (*model.Table, []model.CleaningOperation) {
	out := t.EmptyLike()
	seen := make(map[string]int, len(t.Rows))
	var operations []model.CleaningOperation

	for i, row := range t.Rows {
		key := model.RowKey(row)
		if first, ok := seen[key]; ok {
			operations = append(operations, model.CleaningOperation{
				TableName:         t.Name,
				RowIdentifier:     rowIdentifier(t, i, idColumn),
				CleaningOperation: model.OperationDuplicateRemoved,
				CleaningReason:    fmt.Sprintf("duplicate_of_row_%d", first),
			})
			continue
		}
		seen[key] = i
		out.Rows = append(out.Rows, model.CopyRow(row))
	}

	return out, operations
}

// FillMissing replaces missing cells of column with label and converts the
// remaining cells to text. The column is matched case-insensitively.
func FillMissing(
	t *model.Table,
	column, label, idColumn string,
) (*model.Table, []model.CleaningOperation, error) {
	idx := t.ColumnIndexFold(column)
	if idx < 0 {
		return nil, nil, fmt.Errorf("%w: %s.%s", model.ErrMissingColumn, t.Name, column)
	}

	out := t.EmptyLike()
	var operations []model.CleaningOperation

	for i, row := range t.Rows {
		newRow := model.CopyRow(row)
		cell := row[idx]

		if cell.IsNull() {
			newRow[idx] = model.ValueOf(label)
			operations = append(operations, model.CleaningOperation{
				TableName:         t.Name,
				ColumnName:        t.Columns[idx],
				NewValue:          label,
				RowIdentifier:     rowIdentifier(t, i, idColumn),
				CleaningOperation: model.OperationNullFilled,
				CleaningReason:    "missing_value",
			})
		} else {
			text, err := toText(cell)
			if err != nil {
				return nil, nil, coercionError(ErrorCategoryConversion, t, idx, i, cell, err)
			}
			newRow[idx] = text
		}

		out.Rows = append(out.Rows, newRow)
	}

	return out, operations, nil
}

// LowercaseHeaders lowercases every column name. Two headers that collapse
// to the same name are rejected.
func LowercaseHeaders(t *model.Table) (*model.Table, []model.CleaningOperation, error) {
	out := t.Clone()
	out.Metadata = t.Metadata.Clone()
	seen := make(map[string]string, len(t.Columns))
	var operations []model.CleaningOperation

	for i, col := range t.Columns {
		lower := strings.ToLower(col)
		if prev, ok := seen[lower]; ok {
			return nil, nil, fmt.Errorf("%w: %s has both %q and %q",
				ErrDuplicateColumn, t.Name, prev, col)
		}
		seen[lower] = col
		out.Columns[i] = lower
		if out.Metadata != nil {
			if mc := out.Metadata.GetColumnByName(col); mc != nil {
				mc.Name = lower
			}
		}

		if lower != col {
			original := col
			operations = append(operations, model.CleaningOperation{
				TableName:         t.Name,
				ColumnName:        lower,
				OriginalValue:     &original,
				NewValue:          lower,
				RowIdentifier:     "header",
				CleaningOperation: model.OperationColumnRenamed,
				CleaningReason:    "lowercase_header",
			})
		}
	}

	return out, operations, nil
}

// CoerceText converts every non-missing cell of column to its text form
func CoerceText(t *model.Table, column string) (*model.Table, error) {
	return coerceColumn(t, column, func(i int, v model.Value) (model.Value, error) {
		text, err := toText(v)
		if err != nil {
			return v, coercionError(ErrorCategoryConversion, t, t.ColumnIndex(column), i, v, err)
		}
		return text, nil
	})
}

// CoerceInteger converts the given columns to int64. Values must be whole
// numbers; missing cells are rejected.
func CoerceInteger(t *model.Table, columns ...string) (*model.Table, error) {
	out := t
	for _, column := range columns {
		idx := t.ColumnIndex(column)
		next, err := coerceColumn(out, column, func(i int, v model.Value) (model.Value, error) {
			n, err := toInteger(v)
			if err != nil {
				category := ErrorCategoryConversion
				if _, isText := v.Interface().(string); isText {
					category = ErrorCategoryParse
				}
				return v, coercionError(category, t, idx, i, v, err)
			}
			return model.ValueOf(n), nil
		})
		if err != nil {
			return nil, err
		}
		out = next
	}
	if out == t {
		return t.Clone(), nil
	}
	return out, nil
}

// CoerceTimestamp parses column from text using layout. Cells that already
// hold a time.Time are kept; missing cells stay missing.
func CoerceTimestamp(t *model.Table, column, layout string) (*model.Table, error) {
	return coerceColumn(t, column, func(i int, v model.Value) (model.Value, error) {
		ts, err := toTimestamp(v, layout)
		if err != nil {
			category := ErrorCategoryParse
			if errors.Is(err, ErrUnsupportedType) {
				category = ErrorCategoryConversion
			}
			return v, coercionError(category, t, t.ColumnIndex(column), i, v, err)
		}
		return ts, nil
	})
}

// coerceColumn applies fn to every cell of column, returning a new table
func coerceColumn(
	t *model.Table,
	column string,
	fn func(row int, v model.Value) (model.Value, error),
) (*model.Table, error) {
	idx := t.ColumnIndex(column)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s.%s", model.ErrMissingColumn, t.Name, column)
	}

	out := t.EmptyLike()
	out.Rows = make([][]model.Value, 0, len(t.Rows))
	for i, row := range t.Rows {
		newRow := model.CopyRow(row)
		converted, err := fn(i, row[idx])
		if err != nil {
			return nil, err
		}
		newRow[idx] = converted
		out.Rows = append(out.Rows, newRow)
	}

	return out, nil
}

// Helper functions

// rowIdentifier names a row by its identifier column, or by position
func rowIdentifier(t *model.Table, row int, idColumn string) string {
	if idx := t.ColumnIndexFold(idColumn); idx >= 0 {
		if v := t.Rows[row][idx]; !v.IsNull() {
			return v.String()
		}
	}
	return fmt.Sprintf("row:%d", row)
}

func coercionError(
	category ErrorCategory,
	t *model.Table,
	col, row int,
	v model.Value,
	err error,
) *CoercionError {
	column := ""
	if col >= 0 && col < len(t.Columns) {
		column = t.Columns[col]
	}
	return &CoercionError{
		Category: category,
		Table:    t.Name,
		Column:   column,
		Row:      row,
		Value:    v,
		Err:      err,
	}
}

// toText converts a cell to a text cell, keeping missing cells missing
func toText(v model.Value) (model.Value, error) {
	if v.IsNull() {
		return v, nil
	}

	switch val := v.Interface().(type) {
	case string:
		return v, nil
	case time.Time:
		return model.ValueOf(val.Format(time.RFC3339)), nil
	}

	s, err := cast.ToStringE(v.Interface())
	if err != nil {
		return v, fmt.Errorf("%w: %T", ErrUnsupportedType, v.Interface())
	}
	return model.ValueOf(s), nil
}

// toInteger converts a cell holding a whole number to int64
func toInteger(v model.Value) (int64, error) {
	if v.IsNull() {
		return 0, ErrMissingValue
	}

	switch val := v.Interface().(type) {
	case int64:
		return val, nil
	case uint, uint8, uint16, uint32, uint64:
		u := cast.ToUint64(val)
		if u > math.MaxInt64 {
			return 0, fmt.Errorf("%w: %d overflows int64", ErrNotIntegral, u)
		}
		return int64(u), nil
	case float64:
		return floatToInteger(val)
	case bool:
		return cast.ToInt64E(val)
	case string:
		s := strings.TrimSpace(val)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, nil
		}
		f, err := cast.ToFloat64E(s)
		if err != nil || s == "" {
			return 0, fmt.Errorf("%w: %q is not a number", ErrNotIntegral, val)
		}
		return floatToInteger(f)
	default:
		return 0, fmt.Errorf("%w: %T", ErrUnsupportedType, val)
	}
}

func floatToInteger(f float64) (int64, error) {
	if math.IsInf(f, 0) || math.IsNaN(f) || f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: %v", ErrNotIntegral, f)
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, fmt.Errorf("%w: %v overflows int64", ErrNotIntegral, f)
	}
	return int64(f), nil
}

// toTimestamp parses a text cell with layout
func toTimestamp(v model.Value, layout string) (model.Value, error) {
	if v.IsNull() {
		return v, nil
	}

	switch val := v.Interface().(type) {
	case time.Time:
		return v, nil
	case string:
		ts, err := time.ParseInLocation(layout, val, time.UTC)
		if err != nil {
			return v, fmt.Errorf("%w %q: %v", ErrTimestampFormat, layout, err)
		}
		// time.Parse accepts fractional seconds the layout does not name
		if ts.Format(layout) != val {
			return v, fmt.Errorf("%w %q: unconverted data in %q", ErrTimestampFormat, layout, val)
		}
		return model.ValueOf(ts), nil
	default:
		return v, fmt.Errorf("%w: %T", ErrUnsupportedType, val)
	}
}
