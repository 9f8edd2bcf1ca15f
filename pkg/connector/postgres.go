// pkg/connector/postgres.go
package connector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/David-Botos/experiment-cleaning/pkg/config"
	"github.com/David-Botos/experiment-cleaning/pkg/converter"
	"github.com/David-Botos/experiment-cleaning/pkg/model"
)

const (
	// maxBindParameters is the PostgreSQL limit on parameters in one statement
	maxBindParameters = 65535

	ddlTimeout = 30 * time.Second
)

// PostgresConnector implements the DatabaseConnector interface for PostgreSQL
type PostgresConnector struct {
	db        *sqlx.DB
	logger    *zap.Logger
	cfg       *config.PostgresConfig
	converter *converter.TypeConverter
}

// NewPostgresConnector creates and initializes a new PostgreSQL connector
func NewPostgresConnector(ctx context.Context, cfg *config.PostgresConfig) (*PostgresConnector, error) {
	logger := zap.L().Named("postgres-connector")

	driver := cfg.Driver
	if driver == "" {
		driver = config.DriverPgx
	}

	// Log connection attempt
	logger.Info("Connecting to PostgreSQL",
		zap.String("driver", driver),
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("database", cfg.Database),
		zap.String("user", cfg.User))

	// Open database connection
	db, err := sqlx.Open(driver, cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL connection: %w", err)
	}

	// Configure connection pool
	ApplyConnectionSettings(
		db.DB,
		cfg.MaxOpenConns,
		cfg.MaxIdleConns,
		cfg.ConnMaxLifetime,
		0,
	)

	// Verify connection
	if err := PingWithTimeout(ctx, db.DB, 5*time.Second); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	connector := NewPostgresConnectorWithDB(db, cfg, logger)
	LogConnectionStats(logger, cfg.Database, db.DB)
	return connector, nil
}

// NewPostgresConnectorWithDB wraps an already opened connection
func NewPostgresConnectorWithDB(db *sqlx.DB, cfg *config.PostgresConfig, logger *zap.Logger) *PostgresConnector {
	return &PostgresConnector{
		db:        db,
		logger:    logger,
		cfg:       cfg,
		converter: converter.NewTypeConverter(logger),
	}
}

// DB returns the underlying database connection
func (c *PostgresConnector) DB() *sqlx.DB {
	return c.db
}

// Validate verifies the PostgreSQL connection and required permissions
func (c *PostgresConnector) Validate(ctx context.Context) error {
	// Check database version
	var version string
	if err := c.db.GetContext(ctx, &version, "SELECT version()"); err != nil {
		return fmt.Errorf("failed to query PostgreSQL version: %w", err)
	}
	c.logger.Info("Connected to PostgreSQL", zap.String("version", version))

	// Check permissions by creating a temp table
	_, err := c.db.ExecContext(ctx, `
		DO $$
		BEGIN
			CREATE TEMP TABLE _permission_check (id serial, test text);
			INSERT INTO _permission_check (test) VALUES ('test');
			DROP TABLE _permission_check;
		EXCEPTION WHEN OTHERS THEN
			RAISE EXCEPTION 'Permission check failed: %', SQLERRM;
		END $$;
	`)
	if err != nil {
		return fmt.Errorf("permission validation failed: %w", err)
	}

	c.logger.Info("PostgreSQL connection validated",
		zap.String("database", c.cfg.Database),
		zap.String("host", c.cfg.Host),
		zap.Int("port", c.cfg.Port))

	return nil
}

// Close closes the database connection
func (c *PostgresConnector) Close() error {
	c.logger.Info("Closing PostgreSQL connection")
	LogConnectionStats(c.logger, c.cfg.Database, c.db.DB)
	return c.db.Close()
}

// EnsureSchema creates a schema if it doesn't exist
func (c *PostgresConnector) EnsureSchema(ctx context.Context, schema string) error {
	_, err := c.ExecWithTimeout(ctx, "CREATE SCHEMA IF NOT EXISTS "+pq.QuoteIdentifier(schema), ddlTimeout)
	if err != nil {
		return fmt.Errorf("failed to create/verify schema %s: %w", schema, err)
	}
	return nil
}

// ReadTable loads a PostgreSQL table into memory
func (c *PostgresConnector) ReadTable(ctx context.Context, ref config.TableRef) (*model.Table, error) {
	table, err := ReadTable(ctx, c.db, quoteTableRef(ref), ref)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Read table",
		zap.String("table", ref.String()),
		zap.Int("rows", table.NumRows()),
		zap.Int("columns", table.NumCols()))
	return table, nil
}

// CountRows returns the number of rows in a PostgreSQL table
func (c *PostgresConnector) CountRows(ctx context.Context, ref config.TableRef) (int64, error) {
	return CountRows(ctx, c.db, quoteTableRef(ref))
}

// WriteTable replaces schema.table with the contents of t. The drop, create
// and inserts run in one transaction.
func (c *PostgresConnector) WriteTable(ctx context.Context, schema string, t *model.Table, batchSize int) (written int64, err error) {
	if t == nil {
		return 0, errors.New("cannot write nil table")
	}

	metadata := c.converter.DescribeTable(schema, t)
	valueRows := make([][]interface{}, 0, len(t.Rows))
	for i, row := range t.Rows {
		values, err := c.converter.ConvertRow(row, metadata)
		if err != nil {
			return 0, fmt.Errorf("failed to convert row %d of %s: %w", i, t.Name, err)
		}
		valueRows = append(valueRows, values)
	}

	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				c.logger.Error("Failed to rollback write", zap.String("table", t.Name), zap.Error(rbErr))
			}
		}
	}()

	ref := config.TableRef{Schema: schema, Table: t.Name}
	if _, err = tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteTableRef(ref)); err != nil {
		return 0, fmt.Errorf("failed to drop table %s: %w", ref, err)
	}

	if err = c.createTable(ctx, tx, ref, c.converter.GenerateColumnDefinitions(metadata)); err != nil {
		return 0, err
	}

	written, err = c.batchInsert(ctx, tx, ref, metadata.ColumnNames(), valueRows, batchSize)
	if err != nil {
		return 0, err
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit write of %s: %w", ref, err)
	}

	c.logger.Info("Wrote table",
		zap.String("table", ref.String()),
		zap.Int64("rows", written))
	return written, nil
}

// ExecWithTimeout executes a query with a timeout
func (c *PostgresConnector) ExecWithTimeout(
	ctx context.Context,
	query string,
	timeout time.Duration,
	args ...interface{},
) (sql.Result, error) {
	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.db.ExecContext(queryCtx, query, args...)
}

// batchInsert inserts valueRows into ref in multi-row INSERT statements of
// at most batchSize rows, staying under the bind parameter limit
func (c *PostgresConnector) batchInsert(
	ctx context.Context,
	exec sqlx.ExecerContext,
	ref config.TableRef,
	columns []string,
	valueRows [][]interface{},
	batchSize int,
) (int64, error) {
	if len(valueRows) == 0 || len(columns) == 0 {
		return 0, nil
	}

	if batchSize <= 0 {
		batchSize = 1000
	}
	if limit := maxBindParameters / len(columns); batchSize > limit {
		batchSize = limit
	}

	// Build the base query
	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = converter.QuoteIdentifier(col)
	}
	columnStr := strings.Join(quoted, ", ")
	fullTableName := quoteTableRef(ref)

	var totalRowsInserted int64

	// Process in batches
	for i := 0; i < len(valueRows); i += batchSize {
		end := i + batchSize
		if end > len(valueRows) {
			end = len(valueRows)
		}

		currentBatch := valueRows[i:end]

		// Build placeholders for this batch
		placeholders := make([]string, len(currentBatch))
		args := make([]interface{}, 0, len(currentBatch)*len(columns))

		for j, row := range currentBatch {
			if len(row) != len(columns) {
				return totalRowsInserted, fmt.Errorf("row %d has %d values, expected %d", i+j, len(row), len(columns))
			}
			rowPlaceholders := make([]string, len(columns))
			for k, val := range row {
				rowPlaceholders[k] = fmt.Sprintf("$%d", j*len(columns)+k+1)
				args = append(args, val)
			}
			placeholders[j] = "(" + strings.Join(rowPlaceholders, ", ") + ")"
		}

		query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
			fullTableName, columnStr, strings.Join(placeholders, ", "))

		queryCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		result, err := exec.ExecContext(queryCtx, query, args...)
		cancel()
		if err != nil {
			return totalRowsInserted, fmt.Errorf("batch insert into %s failed: %w", ref, err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			c.logger.Warn("Couldn't get rows affected", zap.Error(err))
			rowsAffected = int64(len(currentBatch))
		}
		totalRowsInserted += rowsAffected
	}

	return totalRowsInserted, nil
}

// createTable issues CREATE TABLE for the given column definitions
func (c *PostgresConnector) createTable(ctx context.Context, exec sqlx.ExecerContext, ref config.TableRef, columnDefs []string) error {
	createSQL := fmt.Sprintf(
		"CREATE TABLE %s (\n\t%s\n)",
		quoteTableRef(ref),
		strings.Join(columnDefs, ",\n\t"),
	)

	if _, err := exec.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("failed to create table %s: %w", ref, err)
	}

	c.logger.Debug("Created table", zap.String("table", ref.String()))
	return nil
}

// quoteTableRef renders a schema-qualified, quoted PostgreSQL table name
func quoteTableRef(ref config.TableRef) string {
	if ref.Schema == "" {
		return pq.QuoteIdentifier(ref.Table)
	}
	return pq.QuoteIdentifier(ref.Schema) + "." + pq.QuoteIdentifier(ref.Table)
}
