// pkg/config/database.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/snowflakedb/gosnowflake"
)

// Supported sources for the raw datasets
const (
	SourceSnowflake = "snowflake"
	SourcePostgres  = "postgres"
)

// Supported PostgreSQL drivers
const (
	DriverPgx = "pgx"
	DriverPq  = "postgres"
)

// Default names of the three raw experiment tables
const (
	DefaultClientsTable = "df_final_demo"
	DefaultTraceTable   = "df_final_web_data"
	DefaultRosterTable  = "df_final_experiment_clients"
)

// TableRef names a table inside a schema
type TableRef struct {
	Schema string
	Table  string
}

// String returns the qualified table name
func (r TableRef) String() string {
	if r.Schema == "" {
		return r.Table
	}
	return r.Schema + "." + r.Table
}

// SourceTables locates the raw Clients, Trace and Roster tables
type SourceTables struct {
	Clients TableRef
	Trace   TableRef
	Roster  TableRef
}

// Refs returns the three tables in load order
func (s SourceTables) Refs() []TableRef {
	return []TableRef{s.Clients, s.Trace, s.Roster}
}

// Schemas returns the distinct schemas holding the raw tables, in load order
func (s SourceTables) Schemas() []string {
	seen := make(map[string]bool, 3)
	var schemas []string
	for _, ref := range s.Refs() {
		if ref.Schema == "" || seen[ref.Schema] {
			continue
		}
		seen[ref.Schema] = true
		schemas = append(schemas, ref.Schema)
	}
	return schemas
}

// LoadSourceTables reads the raw table locations. SOURCE_SCHEMA applies to
// every table unless a per-table SOURCE_<NAME>_SCHEMA overrides it.
func LoadSourceTables() SourceTables {
	schema := getEnv("SOURCE_SCHEMA", "public")
	ref := func(name, table string) TableRef {
		return TableRef{
			Schema: getEnv("SOURCE_"+name+"_SCHEMA", schema),
			Table:  getEnv("SOURCE_"+name+"_TABLE", table),
		}
	}

	return SourceTables{
		Clients: ref("CLIENTS", DefaultClientsTable),
		Trace:   ref("TRACE", DefaultTraceTable),
		Roster:  ref("ROSTER", DefaultRosterTable),
	}
}

// SnowflakeConfig holds the settings for reading the raw tables from Snowflake
type SnowflakeConfig struct {
	User          string
	Password      string
	Token         string // OAuth access token
	Account       string
	Warehouse     string
	Database      string // Default: EXPERIMENTS
	Role          string
	Authenticator gosnowflake.AuthType

	// Reads are a handful of full-table scans
	MaxOpenConns    int
	ConnMaxLifetime time.Duration

	// Session STATEMENT_TIMEOUT_IN_SECONDS, zero leaves the account default
	StatementTimeout time.Duration
}

// authenticators lists the Snowflake login flows a batch run can use
var authenticators = map[string]gosnowflake.AuthType{
	"snowflake":             gosnowflake.AuthTypeSnowflake,
	"oauth":                 gosnowflake.AuthTypeOAuth,
	"externalbrowser":       gosnowflake.AuthTypeExternalBrowser,
	"username_password_mfa": gosnowflake.AuthTypeUsernamePasswordMFA,
}

// LoadSnowflakeConfig loads Snowflake configuration from environment variables
func LoadSnowflakeConfig() (*SnowflakeConfig, error) {
	authName := strings.ToLower(getEnv("SNOWFLAKE_AUTHENTICATOR", "snowflake"))
	authenticator, ok := authenticators[authName]
	if !ok {
		return nil, fmt.Errorf("unsupported SNOWFLAKE_AUTHENTICATOR %q", authName)
	}

	cfg := &SnowflakeConfig{
		User:          os.Getenv("SNOWFLAKE_USER"),
		Password:      os.Getenv("SNOWFLAKE_PASSWORD"),
		Token:         os.Getenv("SNOWFLAKE_TOKEN"),
		Account:       os.Getenv("SNOWFLAKE_ACCOUNT"),
		Warehouse:     os.Getenv("SNOWFLAKE_WAREHOUSE"),
		Database:      getEnv("SNOWFLAKE_DATABASE", "EXPERIMENTS"),
		Role:          os.Getenv("SNOWFLAKE_ROLE"),
		Authenticator: authenticator,

		MaxOpenConns:     getEnvAsInt("SNOWFLAKE_MAX_OPEN_CONNS", 3),
		ConnMaxLifetime:  time.Duration(getEnvAsInt("SNOWFLAKE_CONN_MAX_LIFETIME_SECONDS", 600)) * time.Second,
		StatementTimeout: time.Duration(getEnvAsInt("SNOWFLAKE_STATEMENT_TIMEOUT_SECONDS", 300)) * time.Second,
	}

	required := []struct{ key, value string }{
		{"SNOWFLAKE_USER", cfg.User},
		{"SNOWFLAKE_ACCOUNT", cfg.Account},
		{"SNOWFLAKE_WAREHOUSE", cfg.Warehouse},
	}
	switch authenticator {
	case gosnowflake.AuthTypeOAuth:
		required = append(required, struct{ key, value string }{"SNOWFLAKE_TOKEN", cfg.Token})
	case gosnowflake.AuthTypeExternalBrowser:
	default:
		required = append(required, struct{ key, value string }{"SNOWFLAKE_PASSWORD", cfg.Password})
	}
	for _, r := range required {
		if r.value == "" {
			return nil, fmt.Errorf("%s environment variable is required", r.key)
		}
	}

	return cfg, nil
}

// DriverConfig returns the gosnowflake settings for a DSN
func (c *SnowflakeConfig) DriverConfig() *gosnowflake.Config {
	sfConfig := &gosnowflake.Config{
		Account:       c.Account,
		User:          c.User,
		Password:      c.Password,
		Token:         c.Token,
		Database:      c.Database,
		Warehouse:     c.Warehouse,
		Role:          c.Role,
		Authenticator: c.Authenticator,
	}

	// Session parameters travel with every pooled connection
	if c.StatementTimeout > 0 {
		timeout := fmt.Sprintf("%d", int(c.StatementTimeout.Seconds()))
		sfConfig.Params = map[string]*string{"STATEMENT_TIMEOUT_IN_SECONDS": &timeout}
	}

	return sfConfig
}

// PostgresConfig holds the settings for the PostgreSQL database that may
// hold the raw tables and always receives the cleaned ones
type PostgresConfig struct {
	Driver   string // database/sql driver name: pgx (default) or postgres (lib/pq)
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	// Loads and writes run in parallel, one connection per table
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// statement_timeout for every session, zero disables it
	StatementTimeout time.Duration
}

// LoadPostgresConfig loads PostgreSQL configuration from environment variables
func LoadPostgresConfig() (*PostgresConfig, error) {
	driver := getEnv("POSTGRES_DRIVER", DriverPgx)
	if driver != DriverPgx && driver != DriverPq {
		return nil, fmt.Errorf("unsupported POSTGRES_DRIVER %q", driver)
	}

	cfg := &PostgresConfig{
		Driver:   driver,
		Host:     getEnv("POSTGRES_HOST", "localhost"),
		Port:     getEnvAsInt("POSTGRES_PORT", 5432),
		User:     os.Getenv("POSTGRES_USER"),
		Password: os.Getenv("POSTGRES_PASSWORD"),
		Database: os.Getenv("POSTGRES_DB"),
		SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		MaxOpenConns:     getEnvAsInt("POSTGRES_MAX_OPEN_CONNS", 8),
		MaxIdleConns:     getEnvAsInt("POSTGRES_MAX_IDLE_CONNS", 4),
		ConnMaxLifetime:  time.Duration(getEnvAsInt("POSTGRES_CONN_MAX_LIFETIME_SECONDS", 1800)) * time.Second,
		StatementTimeout: time.Duration(getEnvAsInt("POSTGRES_STATEMENT_TIMEOUT_SECONDS", 300)) * time.Second,
	}

	switch {
	case cfg.User == "":
		return nil, errors.New("POSTGRES_USER environment variable is required")
	case cfg.Password == "":
		return nil, errors.New("POSTGRES_PASSWORD environment variable is required")
	case cfg.Database == "":
		return nil, errors.New("POSTGRES_DB environment variable is required")
	}

	return cfg, nil
}

// ConnectionString returns a key/value DSN understood by both pgx and lib/pq.
// statement_timeout is sent as a startup parameter so it applies to every
// pooled connection.
func (c *PostgresConfig) ConnectionString() string {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Database,
		c.SSLMode,
	)
	if c.StatementTimeout > 0 {
		dsn += fmt.Sprintf(" statement_timeout=%d", c.StatementTimeout.Milliseconds())
	}
	return dsn
}
