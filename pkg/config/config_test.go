package config

import (
	"testing"
	"time"

	"github.com/snowflakedb/gosnowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setPostgresEnv(t *testing.T) {
	t.Helper()
	t.Setenv("POSTGRES_USER", "analyst")
	t.Setenv("POSTGRES_PASSWORD", "secret")
	t.Setenv("POSTGRES_DB", "experiments")
}

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()

	assert.Equal(t, 7, p.MaxMissing)
	assert.Equal(t, "client_id", p.IDColumn)
	assert.Equal(t, "Variation", p.VariationColumn)
	assert.Equal(t, "Undefined", p.UndefinedLabel)
	assert.Equal(t, "2006-01-02 15:04:05", p.TimestampLayout)
	assert.Equal(t, DefaultMetricColumns, p.MetricColumns)
	require.NoError(t, p.Validate())

	// The returned slice must not alias the package default
	p.MetricColumns[0] = "changed"
	assert.Equal(t, "clnt_tenure_yr", DefaultMetricColumns[0])
}

func TestPolicyValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *CleaningPolicy)
		errMsg string
	}{
		{name: "negative threshold", mutate: func(p *CleaningPolicy) { p.MaxMissing = -1 }, errMsg: "negative"},
		{name: "no id column", mutate: func(p *CleaningPolicy) { p.IDColumn = " " }, errMsg: "identifier"},
		{name: "no layout", mutate: func(p *CleaningPolicy) { p.TimestampLayout = "" }, errMsg: "layout"},
		{name: "empty metric", mutate: func(p *CleaningPolicy) { p.MetricColumns = []string{"a", ""} }, errMsg: "metric column 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultPolicy()
			tt.mutate(&p)
			err := p.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoadPolicyOverrides(t *testing.T) {
	t.Setenv("CLEAN_MAX_MISSING", "3")
	t.Setenv("CLEAN_UNDEFINED_LABEL", "Unknown")
	t.Setenv("CLEAN_METRIC_COLUMNS", ` num_accts , "calls_6_mnth",,`)

	p := LoadPolicy()
	assert.Equal(t, 3, p.MaxMissing)
	assert.Equal(t, "Unknown", p.UndefinedLabel)
	assert.Equal(t, []string{"num_accts", "calls_6_mnth"}, p.MetricColumns)
}

func TestLoadConfigPostgresSource(t *testing.T) {
	setPostgresEnv(t)
	t.Setenv("SOURCE_SCHEMA", "raw")
	t.Setenv("RECORD_AUDIT", "false")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, SourcePostgres, cfg.Source)
	assert.Nil(t, cfg.Snowflake)
	assert.Equal(t, "raw.df_final_demo", cfg.Clients.String())
	assert.Equal(t, "raw", cfg.Trace.Schema)
	assert.False(t, cfg.RecordAudit)
	assert.Equal(t, DriverPgx, cfg.Postgres.Driver)
	assert.Equal(t, 5432, cfg.Postgres.Port)
	assert.Contains(t, cfg.Postgres.ConnectionString(), "dbname=experiments")
}

func TestLoadConfigSnowflakeSourceRequiresCredentials(t *testing.T) {
	setPostgresEnv(t)
	t.Setenv("SOURCE", "snowflake")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SNOWFLAKE_USER")

	t.Setenv("SNOWFLAKE_USER", "u")
	t.Setenv("SNOWFLAKE_ACCOUNT", "acct")
	t.Setenv("SNOWFLAKE_WAREHOUSE", "wh")

	_, err = LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SNOWFLAKE_PASSWORD")

	t.Setenv("SNOWFLAKE_PASSWORD", "p")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.NotNil(t, cfg.Snowflake)
	assert.Equal(t, "EXPERIMENTS", cfg.Snowflake.Database)
	assert.Equal(t, gosnowflake.AuthTypeSnowflake, cfg.Snowflake.Authenticator)
}

func TestLoadSnowflakeConfigAuthenticators(t *testing.T) {
	t.Setenv("SNOWFLAKE_USER", "u")
	t.Setenv("SNOWFLAKE_ACCOUNT", "acct")
	t.Setenv("SNOWFLAKE_WAREHOUSE", "wh")

	t.Setenv("SNOWFLAKE_AUTHENTICATOR", "okta")
	_, err := LoadSnowflakeConfig()
	assert.ErrorContains(t, err, `unsupported SNOWFLAKE_AUTHENTICATOR "okta"`)

	t.Setenv("SNOWFLAKE_AUTHENTICATOR", "OAuth")
	_, err = LoadSnowflakeConfig()
	assert.ErrorContains(t, err, "SNOWFLAKE_TOKEN")

	t.Setenv("SNOWFLAKE_TOKEN", "tok")
	cfg, err := LoadSnowflakeConfig()
	require.NoError(t, err)
	assert.Equal(t, gosnowflake.AuthTypeOAuth, cfg.Authenticator)
	assert.Equal(t, "tok", cfg.DriverConfig().Token)

	t.Setenv("SNOWFLAKE_AUTHENTICATOR", "externalbrowser")
	cfg, err = LoadSnowflakeConfig()
	require.NoError(t, err, "browser login needs no password")
	assert.Equal(t, gosnowflake.AuthTypeExternalBrowser, cfg.Authenticator)
}

func TestSnowflakeDriverConfigStatementTimeout(t *testing.T) {
	cfg := &SnowflakeConfig{Account: "acct", User: "u", StatementTimeout: 90 * time.Second}

	params := cfg.DriverConfig().Params
	require.Contains(t, params, "STATEMENT_TIMEOUT_IN_SECONDS")
	assert.Equal(t, "90", *params["STATEMENT_TIMEOUT_IN_SECONDS"])

	cfg.StatementTimeout = 0
	assert.Empty(t, cfg.DriverConfig().Params)
}

func TestPostgresConnectionString(t *testing.T) {
	cfg := &PostgresConfig{Host: "db", Port: 5433, User: "u", Password: "p", Database: "experiments", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=experiments sslmode=disable", cfg.ConnectionString())

	cfg.StatementTimeout = 2 * time.Second
	assert.Contains(t, cfg.ConnectionString(), " statement_timeout=2000")
}

func TestLoadSourceTables(t *testing.T) {
	t.Setenv("SOURCE_SCHEMA", "raw")
	t.Setenv("SOURCE_ROSTER_SCHEMA", "experiments")
	t.Setenv("SOURCE_TRACE_TABLE", "web_events")

	tables := LoadSourceTables()
	assert.Equal(t, TableRef{Schema: "raw", Table: DefaultClientsTable}, tables.Clients)
	assert.Equal(t, TableRef{Schema: "raw", Table: "web_events"}, tables.Trace)
	assert.Equal(t, TableRef{Schema: "experiments", Table: DefaultRosterTable}, tables.Roster)
	assert.Equal(t, []string{"raw", "experiments"}, tables.Schemas())
	assert.Len(t, tables.Refs(), 3)
}

func TestLoadPostgresConfigRejectsUnknownDriver(t *testing.T) {
	setPostgresEnv(t)
	t.Setenv("POSTGRES_DRIVER", "mysql")

	_, err := LoadPostgresConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mysql")
}

func TestConfigValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Source:       SourcePostgres,
			Postgres:     &PostgresConfig{},
			SourceTables: SourceTables{
				Clients: TableRef{Table: "c"},
				Trace:   TableRef{Table: "t"},
				Roster:  TableRef{Table: "r"},
			},
			TargetSchema: "cleaned",
			ChunkSize:    10,
			Policy:       DefaultPolicy(),
		}
	}

	require.NoError(t, valid().Validate())

	cfg := valid()
	cfg.Source = "csv"
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Source = SourceSnowflake
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.ChunkSize = 0
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Roster.Table = ""
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Policy.MaxMissing = -2
	assert.ErrorContains(t, cfg.Validate(), "invalid cleaning policy")
}
