// pkg/connector/factory.go
package connector

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/David-Botos/experiment-cleaning/pkg/config"
)

// ConnectorFactory creates database connectors
type ConnectorFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewConnectorFactory creates a new connector factory
func NewConnectorFactory(cfg *config.Config, logger *zap.Logger) *ConnectorFactory {
	return &ConnectorFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateSnowflakeConnector creates a new Snowflake connector
func (f *ConnectorFactory) CreateSnowflakeConnector(ctx context.Context) (*SnowflakeConnector, error) {
	f.logger.Info("Creating Snowflake connector")

	if f.cfg.Snowflake == nil {
		return nil, fmt.Errorf("snowflake configuration not loaded")
	}

	connector, err := NewSnowflakeConnector(ctx, f.cfg.Snowflake, f.cfg.Schemas()...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Snowflake connector: %w", err)
	}

	return connector, nil
}

// CreatePostgresConnector creates a new PostgreSQL connector
func (f *ConnectorFactory) CreatePostgresConnector(ctx context.Context) (*PostgresConnector, error) {
	f.logger.Info("Creating PostgreSQL connector")

	connector, err := NewPostgresConnector(ctx, f.cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("failed to create PostgreSQL connector: %w", err)
	}

	return connector, nil
}

// CreateAllConnectors creates the source connector for the configured source
// and the PostgreSQL connector that receives the cleaned tables. When the
// source is PostgreSQL both return values share one connector.
func (f *ConnectorFactory) CreateAllConnectors(ctx context.Context) (DatabaseConnector, *PostgresConnector, error) {
	pgConn, err := f.CreatePostgresConnector(ctx)
	if err != nil {
		return nil, nil, err
	}

	if f.cfg.Source != config.SourceSnowflake {
		return pgConn, pgConn, nil
	}

	snowConn, err := f.CreateSnowflakeConnector(ctx)
	if err != nil {
		pgConn.Close() // Clean up the PostgreSQL connection if Snowflake fails
		return nil, nil, err
	}

	return snowConn, pgConn, nil
}
