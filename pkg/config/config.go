// pkg/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config represents the application configuration
type Config struct {
	// Database connections
	Snowflake *SnowflakeConfig
	Postgres  *PostgresConfig

	// Where the raw datasets are read from
	Source string
	SourceTables

	// Where the cleaned datasets are written
	TargetSchema string
	ChunkSize    int
	RecordAudit  bool

	// Cleaning rules
	Policy CleaningPolicy

	// Logging
	LogLevel  string
	LogFormat string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Source:       strings.ToLower(getEnv("SOURCE", SourcePostgres)),
		SourceTables: LoadSourceTables(),
		TargetSchema: getEnv("TARGET_SCHEMA", "cleaned"),
		ChunkSize:    getEnvAsInt("CHUNK_SIZE", 5000),
		RecordAudit:  getEnvAsBool("RECORD_AUDIT", true),
		Policy:       LoadPolicy(),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogFormat:    getEnv("LOG_FORMAT", "json"),
	}

	// Snowflake is only needed when it is the source
	if cfg.Source == SourceSnowflake {
		snowConfig, err := LoadSnowflakeConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to load Snowflake configuration: %w", err)
		}
		cfg.Snowflake = snowConfig
	}

	pgConfig, err := LoadPostgresConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load PostgreSQL configuration: %w", err)
	}
	cfg.Postgres = pgConfig

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures all required configuration is present and valid
func (c *Config) Validate() error {
	switch c.Source {
	case SourceSnowflake:
		if c.Snowflake == nil {
			return errors.New("snowflake configuration is required when source is snowflake")
		}
	case SourcePostgres:
	default:
		return fmt.Errorf("unsupported source %q", c.Source)
	}

	if c.Postgres == nil {
		return errors.New("postgreSQL configuration is required")
	}

	for _, ref := range c.Refs() {
		if ref.Table == "" {
			return errors.New("source table names cannot be empty")
		}
	}

	if c.TargetSchema == "" {
		return errors.New("target schema is required")
	}

	if c.ChunkSize <= 0 {
		return errors.New("chunk size must be positive")
	}

	if err := c.Policy.Validate(); err != nil {
		return fmt.Errorf("invalid cleaning policy: %w", err)
	}

	return nil
}

// Helper functions for environment variables
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsStringSlice parses a comma-separated list
func getEnvAsStringSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var result []string
	for _, v := range strings.Split(value, ",") {
		v = strings.Trim(strings.TrimSpace(v), `"`)
		if v != "" {
			result = append(result, v)
		}
	}

	if len(result) == 0 {
		return defaultValue
	}

	return result
}
