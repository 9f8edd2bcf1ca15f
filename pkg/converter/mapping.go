// pkg/converter/mapping.go
package converter

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/David-Botos/experiment-cleaning/pkg/model"
)

// ColumnKind is the logical type of a cleaned column
type ColumnKind string

const (
	KindUnknown   ColumnKind = ""
	KindText      ColumnKind = "text"
	KindInteger   ColumnKind = "integer"
	KindFloat     ColumnKind = "float"
	KindBoolean   ColumnKind = "boolean"
	KindTimestamp ColumnKind = "timestamp"
)

// Patterns for type extraction
var precisionScalePattern = regexp.MustCompile(`(?:NUMBER|NUMERIC|DECIMAL)\((\d+)(?:,\s*(\d+))?\)`)

// kindOf returns the kind of a single non-missing cell
func kindOf(v model.Value) ColumnKind {
	switch v.Interface().(type) {
	case string:
		return KindText
	case int64, uint, uint8, uint16, uint32, uint64:
		return KindInteger
	case float64:
		return KindFloat
	case bool:
		return KindBoolean
	case time.Time:
		return KindTimestamp
	default:
		return KindText
	}
}

// InferColumnKind determines the kind shared by the non-missing values.
// Integers mixed with floats widen to float; any other mix is text.
func InferColumnKind(values []model.Value) ColumnKind {
	kind := KindUnknown
	for _, v := range values {
		if v.IsNull() {
			continue
		}
		k := kindOf(v)
		switch {
		case kind == KindUnknown, kind == k:
			kind = k
		case (kind == KindInteger && k == KindFloat) || (kind == KindFloat && k == KindInteger):
			kind = KindFloat
		default:
			return KindText
		}
	}
	return kind
}

// MapKindToPostgres returns the PostgreSQL type for a column kind
func MapKindToPostgres(kind ColumnKind) string {
	switch kind {
	case KindInteger:
		return "BIGINT"
	case KindFloat:
		return "DOUBLE PRECISION"
	case KindBoolean:
		return "BOOLEAN"
	case KindTimestamp:
		return "TIMESTAMP"
	default:
		return "TEXT"
	}
}

// getBaseType extracts the base type from a complex type definition
func getBaseType(fullType string) string {
	parts := strings.Split(fullType, "(")
	return strings.TrimSpace(parts[0])
}

// MapSourceTypeToPostgres converts a source column type, as reported by the
// Snowflake or PostgreSQL driver, to a PostgreSQL type
func (c *TypeConverter) MapSourceTypeToPostgres(sourceType string) (string, error) {
	if sourceType == "" || strings.EqualFold(sourceType, "NULL") {
		return c.config.FallbackType, nil
	}

	sourceType = strings.ToUpper(strings.TrimSpace(sourceType))

	switch getBaseType(sourceType) {
	case "VARCHAR", "TEXT", "STRING", "CHAR", "BPCHAR", "NAME":
		return "TEXT", nil
	case "NUMBER", "NUMERIC", "DECIMAL":
		return c.handleNumberType(sourceType), nil
	case "FIXED", "INT8", "BIGINT", "INT4", "INTEGER", "INT", "INT2", "SMALLINT":
		return "BIGINT", nil
	case "REAL", "FLOAT", "FLOAT4", "FLOAT8", "DOUBLE", "DOUBLE PRECISION":
		return "DOUBLE PRECISION", nil
	case "BOOLEAN", "BOOL":
		return "BOOLEAN", nil
	case "DATE":
		return "DATE", nil
	case "TIMESTAMP", "TIMESTAMP_NTZ", "DATETIME":
		return "TIMESTAMP", nil
	case "TIMESTAMP_TZ", "TIMESTAMP_LTZ", "TIMESTAMPTZ":
		return "TIMESTAMP WITH TIME ZONE", nil
	case "VARIANT", "OBJECT", "ARRAY", "JSON", "JSONB":
		return "JSONB", nil
	case "BINARY", "VARBINARY", "BYTEA":
		return "BYTEA", nil
	default:
		c.logger.Warn("Unknown source type encountered",
			zap.String("sourceType", sourceType))
		return c.config.FallbackType, fmt.Errorf("unknown source type: %s (mapped to %s as fallback)",
			sourceType, c.config.FallbackType)
	}
}

// handleNumberType processes NUMBER type with precision/scale
func (c *TypeConverter) handleNumberType(fullType string) string {
	matches := precisionScalePattern.FindStringSubmatch(fullType)

	// No precision/scale specified
	if len(matches) < 2 {
		return "NUMERIC"
	}

	precision, err := strconv.Atoi(matches[1])
	if err != nil {
		return "NUMERIC"
	}

	// Scale defaults to 0 if not specified
	scale := 0
	if len(matches) > 2 && matches[2] != "" {
		scale, err = strconv.Atoi(matches[2])
		if err != nil {
			scale = 0
		}
	}

	if scale == 0 {
		if precision <= 18 {
			return "BIGINT"
		}
		return fmt.Sprintf("NUMERIC(%d)", precision)
	}

	return fmt.Sprintf("NUMERIC(%d,%d)", precision, scale)
}

// DetectTimeFormat analyzes a value to determine its timestamp format
func DetectTimeFormat(value string) string {
	formats := []string{
		"2006-01-02 15:04:05",
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02T15:04:05.999999Z07:00",
		"2006-01-02",
	}

	for _, format := range formats {
		if _, err := time.Parse(format, value); err == nil {
			return format
		}
	}

	return ""
}
