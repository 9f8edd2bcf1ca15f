// pkg/config/policy.go
package config

import (
	"errors"
	"fmt"
	"strings"
)

// Default cleaning policy
const (
	DefaultMaxMissing      = 7
	DefaultIDColumn        = "client_id"
	DefaultDateTimeColumn  = "date_time"
	DefaultVariationColumn = "Variation"
	DefaultUndefinedLabel  = "Undefined"
	DefaultTimestampLayout = "2006-01-02 15:04:05"
)

// DefaultMetricColumns are the Clients columns that hold whole numbers
var DefaultMetricColumns = []string{
	"clnt_tenure_yr",
	"clnt_tenure_mnth",
	"num_accts",
	"calls_6_mnth",
	"logons_6_mnth",
}

// CleaningPolicy holds the rules applied by the dataset cleaner
type CleaningPolicy struct {
	// Clients rows with more missing cells than this are discarded
	MaxMissing int
	// Identifier column present in all three datasets
	IDColumn string
	// Trace event timestamp column
	DateTimeColumn string
	// Roster test-group column
	VariationColumn string
	// Replacement for missing variations
	UndefinedLabel string
	// Go reference layout for DateTimeColumn values
	TimestampLayout string
	// Clients columns coerced to integers
	MetricColumns []string
}

// DefaultPolicy returns the standard cleaning rules
func DefaultPolicy() CleaningPolicy {
	metrics := make([]string, len(DefaultMetricColumns))
	copy(metrics, DefaultMetricColumns)

	return CleaningPolicy{
		MaxMissing:      DefaultMaxMissing,
		IDColumn:        DefaultIDColumn,
		DateTimeColumn:  DefaultDateTimeColumn,
		VariationColumn: DefaultVariationColumn,
		UndefinedLabel:  DefaultUndefinedLabel,
		TimestampLayout: DefaultTimestampLayout,
		MetricColumns:   metrics,
	}
}

// LoadPolicy reads policy overrides from environment variables
func LoadPolicy() CleaningPolicy {
	p := DefaultPolicy()
	p.MaxMissing = getEnvAsInt("CLEAN_MAX_MISSING", p.MaxMissing)
	p.UndefinedLabel = getEnv("CLEAN_UNDEFINED_LABEL", p.UndefinedLabel)
	p.TimestampLayout = getEnv("CLEAN_TIMESTAMP_LAYOUT", p.TimestampLayout)
	p.MetricColumns = getEnvAsStringSlice("CLEAN_METRIC_COLUMNS", p.MetricColumns)
	return p
}

// Validate ensures the policy can be applied
func (p CleaningPolicy) Validate() error {
	if p.MaxMissing < 0 {
		return errors.New("max missing threshold cannot be negative")
	}
	if strings.TrimSpace(p.IDColumn) == "" {
		return errors.New("identifier column is required")
	}
	if strings.TrimSpace(p.DateTimeColumn) == "" {
		return errors.New("date time column is required")
	}
	if strings.TrimSpace(p.VariationColumn) == "" {
		return errors.New("variation column is required")
	}
	if p.TimestampLayout == "" {
		return errors.New("timestamp layout is required")
	}
	for i, col := range p.MetricColumns {
		if strings.TrimSpace(col) == "" {
			return fmt.Errorf("metric column %d is empty", i)
		}
	}
	return nil
}
