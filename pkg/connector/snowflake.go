// pkg/connector/snowflake.go
package connector

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	sf "github.com/snowflakedb/gosnowflake"
	"go.uber.org/zap"

	"github.com/David-Botos/experiment-cleaning/pkg/config"
	"github.com/David-Botos/experiment-cleaning/pkg/model"
)

// SnowflakeConnector implements the DatabaseConnector interface for Snowflake
type SnowflakeConnector struct {
	db      *sqlx.DB
	logger  *zap.Logger
	cfg     *config.SnowflakeConfig
	schemas []string
}

// NewSnowflakeConnector creates a new Snowflake connection. The given
// schemas are checked for existence by Validate.
func NewSnowflakeConnector(ctx context.Context, cfg *config.SnowflakeConfig, schemas ...string) (*SnowflakeConnector, error) {
	logger := zap.L().Named("snowflake-connector")

	// Log connection attempt (without credentials)
	logger.Info("Connecting to Snowflake",
		zap.String("account", cfg.Account),
		zap.String("user", cfg.User),
		zap.String("database", cfg.Database),
		zap.String("warehouse", cfg.Warehouse),
		zap.String("role", cfg.Role),
		zap.Duration("statement_timeout", cfg.StatementTimeout))

	dsn, err := sf.DSN(cfg.DriverConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to build Snowflake DSN: %w", err)
	}

	// Open connection pool
	db, err := sqlx.Open("snowflake", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Snowflake connection: %w", err)
	}

	// One connection per raw table is enough
	ApplyConnectionSettings(db.DB, cfg.MaxOpenConns, cfg.MaxOpenConns, cfg.ConnMaxLifetime, 0)

	// Verify connection
	if err := PingWithTimeout(ctx, db.DB, 10*time.Second); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to Snowflake: %w", err)
	}

	connector := &SnowflakeConnector{
		db:      db,
		logger:  logger,
		cfg:     cfg,
		schemas: schemas,
	}

	LogConnectionStats(logger, cfg.Database, db.DB)
	return connector, nil
}

// DB returns the underlying database connection
func (c *SnowflakeConnector) DB() *sqlx.DB {
	return c.db
}

// Validate verifies the Snowflake connection and access rights
func (c *SnowflakeConnector) Validate(ctx context.Context) error {
	// Check basic connectivity and permissions
	var role, database, warehouse sql.NullString
	err := c.db.QueryRowxContext(ctx, "SELECT CURRENT_ROLE(), CURRENT_DATABASE(), CURRENT_WAREHOUSE()").Scan(
		&role, &database, &warehouse)
	if err != nil {
		return fmt.Errorf("failed to verify Snowflake access: %w", err)
	}

	c.logger.Info("Connected to Snowflake",
		zap.String("role", role.String),
		zap.String("database", database.String),
		zap.String("warehouse", warehouse.String))

	// Verify we're connected to the correct database
	if !strings.EqualFold(database.String, c.cfg.Database) {
		return fmt.Errorf("connected to wrong database: %s (expected: %s)",
			database.String, c.cfg.Database)
	}

	missingSchemas, err := c.verifySchemas(ctx)
	if err != nil {
		return fmt.Errorf("failed to verify schemas: %w", err)
	}

	if len(missingSchemas) > 0 {
		return fmt.Errorf("required schemas not found in %s: %s",
			c.cfg.Database, strings.Join(missingSchemas, ", "))
	}

	return nil
}

// Close closes the database connection
func (c *SnowflakeConnector) Close() error {
	c.logger.Info("Closing Snowflake connection")
	LogConnectionStats(c.logger, c.cfg.Database, c.db.DB)
	return c.db.Close()
}

// ReadTable loads a Snowflake table into memory
func (c *SnowflakeConnector) ReadTable(ctx context.Context, ref config.TableRef) (*model.Table, error) {
	name, err := plainQualifiedName(ref)
	if err != nil {
		return nil, err
	}

	table, err := ReadTable(ctx, c.db, name, ref)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Read table",
		zap.String("table", ref.String()),
		zap.Int("rows", table.NumRows()),
		zap.Int("columns", table.NumCols()))
	return table, nil
}

// verifySchemas returns the configured schemas missing from the database
func (c *SnowflakeConnector) verifySchemas(ctx context.Context) ([]string, error) {
	var names []string
	if err := c.db.SelectContext(ctx, &names, "SELECT SCHEMA_NAME FROM INFORMATION_SCHEMA.SCHEMATA"); err != nil {
		return nil, fmt.Errorf("failed to query schemas: %w", err)
	}

	existing := make(map[string]bool, len(names))
	for _, name := range names {
		existing[strings.ToUpper(name)] = true
	}

	var missingSchemas []string
	for _, schema := range c.schemas {
		upperSchema := strings.ToUpper(schema)
		if !existing[upperSchema] {
			missingSchemas = append(missingSchemas, upperSchema)
		}
	}

	return missingSchemas, nil
}
