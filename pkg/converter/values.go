// pkg/converter/values.go
package converter

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/David-Botos/experiment-cleaning/pkg/model"
)

// ConvertRow converts a row of cells into driver arguments following metadata
func (c *TypeConverter) ConvertRow(row []model.Value, metadata *model.TableMetadata) ([]interface{}, error) {
	if len(row) != len(metadata.Columns) {
		return nil, fmt.Errorf("%w: %d cells for %d columns", model.ErrRowArity, len(row), len(metadata.Columns))
	}

	args := make([]interface{}, len(row))
	for i, cell := range row {
		col := metadata.Columns[i]
		val, err := c.ConvertValueForPostgres(cell, col.PgType)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col.Name, err)
		}
		args[i] = val
	}
	return args, nil
}

// ConvertValueForPostgres converts a cell to a PostgreSQL compatible value
func (c *TypeConverter) ConvertValueForPostgres(value model.Value, targetType string) (interface{}, error) {
	// Handle NULL values
	if value.IsNull() {
		return nil, nil
	}

	raw := value.Interface()
	targetType = strings.ToLower(targetType)

	switch {
	case targetType == "text", strings.HasPrefix(targetType, "varchar"):
		return c.convertToText(raw)

	case targetType == "bigint", targetType == "integer", targetType == "smallint":
		return cast.ToInt64E(raw)

	case targetType == "double precision", targetType == "real",
		strings.HasPrefix(targetType, "numeric"):
		return cast.ToFloat64E(raw)

	case targetType == "boolean":
		return cast.ToBoolE(raw)

	case strings.Contains(targetType, "timestamp"), targetType == "date":
		return c.convertToTimestamp(raw)

	default:
		// Default to string conversion for unknown types
		return c.convertToText(raw)
	}
}

// convertToText converts a value to text/string
func (c *TypeConverter) convertToText(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case string:
		if v == "" && c.config.EmptyStringAsNull {
			return nil, nil
		}
		return v, nil
	case time.Time:
		return v.Format(time.RFC3339), nil
	default:
		return cast.ToStringE(v)
	}
}

// convertToTimestamp converts a value to time.Time
func (c *TypeConverter) convertToTimestamp(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case string:
		format := DetectTimeFormat(v)
		if format == "" {
			return nil, fmt.Errorf("cannot parse time from '%s'", v)
		}
		return time.Parse(format, v)
	default:
		return nil, fmt.Errorf("cannot convert %T to timestamp", value)
	}
}
