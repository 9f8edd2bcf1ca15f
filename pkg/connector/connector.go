// pkg/connector/connector.go
package connector

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/David-Botos/experiment-cleaning/pkg/config"
	"github.com/David-Botos/experiment-cleaning/pkg/model"
)

// DatabaseConnector defines the interface for database connectors
type DatabaseConnector interface {
	// DB returns the underlying database connection
	DB() *sqlx.DB

	// Validate verifies the connection and permissions
	Validate(ctx context.Context) error

	// Close closes the connection and releases resources
	Close() error

	// ReadTable loads a whole table into memory
	ReadTable(ctx context.Context, ref config.TableRef) (*model.Table, error)
}

var plainIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)

// ConnStats contains standardized connection statistics
type ConnStats struct {
	OpenConnections int
	InUse           int
	Idle            int
	MaxOpenConns    int
}

// GetConnectionStats returns connection pool statistics for logging
func GetConnectionStats(db *sql.DB) ConnStats {
	stats := db.Stats()
	return ConnStats{
		OpenConnections: stats.OpenConnections,
		InUse:           stats.InUse,
		Idle:            stats.Idle,
		MaxOpenConns:    stats.MaxOpenConnections,
	}
}

// LogConnectionStats logs connection pool statistics
func LogConnectionStats(logger *zap.Logger, name string, db *sql.DB) {
	stats := GetConnectionStats(db)
	logger.Debug("Connection pool stats",
		zap.String("database", name),
		zap.Int("open_connections", stats.OpenConnections),
		zap.Int("in_use", stats.InUse),
		zap.Int("idle", stats.Idle),
		zap.Int("max_open", stats.MaxOpenConns),
	)
}

// PingWithTimeout attempts to ping a database with a timeout
func PingWithTimeout(ctx context.Context, db *sql.DB, timeout time.Duration) error {
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- db.PingContext(pingCtx)
	}()

	select {
	case err := <-errCh:
		return err
	case <-pingCtx.Done():
		return fmt.Errorf("ping timed out after %v: %w", timeout, pingCtx.Err())
	}
}

// ApplyConnectionSettings configures database connection pool settings
func ApplyConnectionSettings(db *sql.DB, maxOpen, maxIdle int, maxLifetime, maxIdleTime time.Duration) {
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}
	if maxLifetime > 0 {
		db.SetConnMaxLifetime(maxLifetime)
	}
	if maxIdleTime > 0 {
		db.SetConnMaxIdleTime(maxIdleTime)
	}
}

// ReadTable selects every row of a table into a model.Table. SQL NULL
// becomes a missing cell; column metadata is taken from the driver.
func ReadTable(ctx context.Context, db *sqlx.DB, qualifiedName string, ref config.TableRef) (*model.Table, error) {
	rows, err := db.QueryxContext(ctx, "SELECT * FROM "+qualifiedName)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", ref, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", ref, err)
	}

	metadata := &model.TableMetadata{
		Schema:  ref.Schema,
		Table:   ref.Table,
		Columns: make([]model.Column, len(columns)),
	}
	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to read column types of %s: %w", ref, err)
	}
	for i, name := range columns {
		col := model.Column{Name: name, Nullable: true}
		if i < len(columnTypes) && columnTypes[i] != nil {
			col.DataType = columnTypes[i].DatabaseTypeName()
			if nullable, ok := columnTypes[i].Nullable(); ok {
				col.Nullable = nullable
			}
		}
		metadata.Columns[i] = col
	}

	table := model.NewTable(ref.Table, columns...)
	table.Metadata = metadata

	for rows.Next() {
		values, err := rows.SliceScan()
		if err != nil {
			return nil, fmt.Errorf("failed to scan row of %s: %w", ref, err)
		}

		row := make([]model.Value, len(values))
		for i, v := range values {
			row[i] = model.ValueOf(v)
		}
		if err := table.AppendValues(row); err != nil {
			return nil, err
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows of %s: %w", ref, err)
	}

	return table, nil
}

// CountRows returns the number of rows in a table
func CountRows(ctx context.Context, db *sqlx.DB, qualifiedName string) (int64, error) {
	var count int64
	if err := db.GetContext(ctx, &count, "SELECT COUNT(*) FROM "+qualifiedName); err != nil {
		return 0, fmt.Errorf("failed to count rows in %s: %w", qualifiedName, err)
	}
	return count, nil
}

// plainQualifiedName joins schema and table after checking both are plain
// identifiers, for databases where quoting would change case semantics
func plainQualifiedName(ref config.TableRef) (string, error) {
	if !plainIdentifier.MatchString(ref.Table) {
		return "", fmt.Errorf("invalid table identifier %q", ref.Table)
	}
	if ref.Schema == "" {
		return ref.Table, nil
	}
	if !plainIdentifier.MatchString(ref.Schema) {
		return "", fmt.Errorf("invalid schema identifier %q", ref.Schema)
	}
	return ref.Schema + "." + ref.Table, nil
}
