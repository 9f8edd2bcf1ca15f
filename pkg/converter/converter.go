// pkg/converter/converter.go
package converter

import (
	"fmt"
	"strings"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/David-Botos/experiment-cleaning/pkg/model"
)

// TypeConverter maps cleaned tables onto PostgreSQL types and values
type TypeConverter struct {
	logger *zap.Logger
	// Configuration options
	config TypeConverterConfig
}

// TypeConverterConfig provides configuration options for type conversion
type TypeConverterConfig struct {
	// Type used for columns whose kind cannot be determined
	FallbackType string
	// Whether to treat empty strings as NULL
	EmptyStringAsNull bool
}

// DefaultConfig returns the default configuration
func DefaultConfig() TypeConverterConfig {
	return TypeConverterConfig{
		FallbackType:      "TEXT",
		EmptyStringAsNull: false,
	}
}

// NewTypeConverter creates a new TypeConverter with default configuration
func NewTypeConverter(logger *zap.Logger) *TypeConverter {
	return NewTypeConverterWithConfig(logger, DefaultConfig())
}

// NewTypeConverterWithConfig creates a TypeConverter with custom configuration
func NewTypeConverterWithConfig(logger *zap.Logger, config TypeConverterConfig) *TypeConverter {
	if config.FallbackType == "" {
		config.FallbackType = "TEXT"
	}
	return &TypeConverter{
		logger: logger,
		config: config,
	}
}

// DescribeTable derives PostgreSQL column metadata for a table. Column
// types are inferred from the cell values; columns without any value fall
// back to the source metadata type, then to the configured fallback.
func (c *TypeConverter) DescribeTable(schema string, t *model.Table) *model.TableMetadata {
	md := &model.TableMetadata{
		Schema:  schema,
		Table:   t.Name,
		Columns: make([]model.Column, len(t.Columns)),
	}

	for i, name := range t.Columns {
		values := make([]model.Value, len(t.Rows))
		nullable := false
		for r, row := range t.Rows {
			values[r] = row[i]
			if row[i].IsNull() {
				nullable = true
			}
		}

		kind := InferColumnKind(values)
		col := model.Column{
			Name:     name,
			DataType: string(kind),
			Nullable: nullable || len(t.Rows) == 0,
		}

		if kind != KindUnknown {
			col.PgType = MapKindToPostgres(kind)
		} else if src := c.sourceColumn(t, name); src != nil && src.DataType != "" {
			pgType, err := c.MapSourceTypeToPostgres(src.DataType)
			if err != nil {
				c.logger.Debug("Falling back for unmapped source type",
					zap.String("table", t.Name),
					zap.String("column", name),
					zap.Error(err))
			}
			col.DataType = src.DataType
			col.PgType = pgType
		} else {
			col.PgType = c.config.FallbackType
		}

		md.Columns[i] = col
	}

	return md
}

func (c *TypeConverter) sourceColumn(t *model.Table, name string) *model.Column {
	if t.Metadata == nil {
		return nil
	}
	return t.Metadata.GetColumnByName(name)
}

// GenerateColumnDefinitions creates PostgreSQL column definitions
func (c *TypeConverter) GenerateColumnDefinitions(metadata *model.TableMetadata) []string {
	definitions := make([]string, 0, len(metadata.Columns))

	for _, col := range metadata.Columns {
		pgType := col.PgType
		if pgType == "" {
			pgType = c.config.FallbackType
		}

		nullability := "NULL"
		if !col.Nullable {
			nullability = "NOT NULL"
		}

		definitions = append(definitions, fmt.Sprintf("%s %s %s",
			QuoteIdentifier(col.Name),
			pgType,
			nullability))
	}

	return definitions
}

// QuoteIdentifier quotes and escapes a PostgreSQL identifier
func QuoteIdentifier(name string) string {
	return pq.QuoteIdentifier(strings.ToLower(name))
}
