// pkg/cleaner/cleaner.go
package cleaner

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/David-Botos/experiment-cleaning/pkg/config"
	"github.com/David-Botos/experiment-cleaning/pkg/model"
)

// Input holds the three raw datasets
type Input struct {
	Clients *model.Table
	Trace   *model.Table
	Roster  *model.Table
}

// Result holds the cleaned datasets and the audit trail of one run
type Result struct {
	RunID            string
	Clients          *model.Table
	Trace            *model.Table
	Roster           *model.Table
	ClientsDiscarded *model.Table
	Operations       []model.CleaningOperation
	Summary          Summary
}

// Summary counts what a cleaning run did
type Summary struct {
	ClientsIn         int
	ClientsKept       int
	ClientsDiscarded  int
	TraceIn           int
	TraceKept         int
	DuplicatesRemoved int
	RosterRows        int
	VariationsFilled  int
	HeadersRenamed    int
	Duration          time.Duration
}

// DatasetCleaner cleans the client, trace and roster datasets
type DatasetCleaner struct {
	policy config.CleaningPolicy
	logger *zap.Logger
}

// NewDatasetCleaner creates a new DatasetCleaner with the given policy
func NewDatasetCleaner(policy config.CleaningPolicy, logger *zap.Logger) (*DatasetCleaner, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cleaning policy: %w", err)
	}

	return &DatasetCleaner{
		policy: policy,
		logger: logger.Named("cleaner"),
	}, nil
}

// Policy returns the rules the cleaner applies
func (c *DatasetCleaner) Policy() config.CleaningPolicy {
	return c.policy
}

// Clean runs every cleaning step and returns fresh output tables. The input
// tables are not modified but should not be reused by the caller. Any shape
// or coercion failure aborts the run without partial output.
func (c *DatasetCleaner) Clean(in Input) (*Result, error) {
	start := time.Now()

	if err := c.checkShape(in); err != nil {
		return nil, err
	}

	p := c.policy
	runID := uuid.New().String()
	logger := c.logger.With(zap.String("run_id", runID))
	var operations []model.CleaningOperation

	// Completeness filter
	clients, discarded, ops := FilterIncomplete(in.Clients, p.MaxMissing, p.IDColumn)
	operations = append(operations, ops...)
	logger.Info("Filtered incomplete client rows",
		zap.Int("kept", clients.NumRows()),
		zap.Int("discarded", discarded.NumRows()),
		zap.Int("max_missing", p.MaxMissing))

	// Deduplication
	trace, ops := Deduplicate(in.Trace, p.IDColumn)
	operations = append(operations, ops...)
	duplicates := len(ops)
	logger.Info("Removed duplicate trace rows",
		zap.Int("kept", trace.NumRows()),
		zap.Int("duplicates", duplicates))

	// Missing-value fill
	roster, ops, err := FillMissing(in.Roster, p.VariationColumn, p.UndefinedLabel, p.IDColumn)
	if err != nil {
		return nil, fmt.Errorf("failed to fill missing variations: %w", err)
	}
	operations = append(operations, ops...)
	filled := len(ops)
	logger.Info("Filled missing variations",
		zap.Int("filled", filled),
		zap.String("label", p.UndefinedLabel))

	// Header normalization
	roster, ops, err = LowercaseHeaders(roster)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize roster headers: %w", err)
	}
	operations = append(operations, ops...)
	renamed := len(ops)
	logger.Debug("Normalized roster headers", zap.Strings("columns", roster.Columns))

	// Type coercion
	roster, err = CoerceText(roster, strings.ToLower(p.IDColumn))
	if err != nil {
		return nil, fmt.Errorf("failed to coerce roster identifiers: %w", err)
	}

	clients, err = CoerceText(clients, p.IDColumn)
	if err != nil {
		return nil, fmt.Errorf("failed to coerce client identifiers: %w", err)
	}

	clients, err = CoerceInteger(clients, p.MetricColumns...)
	if err != nil {
		return nil, fmt.Errorf("failed to coerce client metrics: %w", err)
	}

	trace, err = CoerceText(trace, p.IDColumn)
	if err != nil {
		return nil, fmt.Errorf("failed to coerce trace identifiers: %w", err)
	}

	trace, err = CoerceTimestamp(trace, p.DateTimeColumn, p.TimestampLayout)
	if err != nil {
		return nil, fmt.Errorf("failed to parse trace timestamps: %w", err)
	}

	cleanedAt := time.Now().UTC()
	for i := range operations {
		operations[i].RunID = runID
		operations[i].CleanedAt = cleanedAt
	}

	summary := Summary{
		ClientsIn:         in.Clients.NumRows(),
		ClientsKept:       clients.NumRows(),
		ClientsDiscarded:  discarded.NumRows(),
		TraceIn:           in.Trace.NumRows(),
		TraceKept:         trace.NumRows(),
		DuplicatesRemoved: duplicates,
		RosterRows:        roster.NumRows(),
		VariationsFilled:  filled,
		HeadersRenamed:    renamed,
		Duration:          time.Since(start),
	}

	logger.Info("Cleaning complete",
		zap.Int("operations", len(operations)),
		zap.Duration("duration", summary.Duration))

	return &Result{
		RunID:            runID,
		Clients:          clients,
		Trace:            trace,
		Roster:           roster,
		ClientsDiscarded: discarded,
		Operations:       operations,
		Summary:          summary,
	}, nil
}

// checkShape verifies every expected column before any transformation
func (c *DatasetCleaner) checkShape(in Input) error {
	p := c.policy

	if in.Clients == nil {
		return fmt.Errorf("clients: %w", ErrNilTable)
	}
	if in.Trace == nil {
		return fmt.Errorf("trace: %w", ErrNilTable)
	}
	if in.Roster == nil {
		return fmt.Errorf("roster: %w", ErrNilTable)
	}

	clientColumns := append([]string{p.IDColumn}, p.MetricColumns...)
	if err := in.Clients.RequireColumns(clientColumns...); err != nil {
		return err
	}

	if err := in.Trace.RequireColumns(p.IDColumn, p.DateTimeColumn); err != nil {
		return err
	}

	// The roster is matched case-insensitively since its headers are lowercased
	for _, col := range []string{p.IDColumn, p.VariationColumn} {
		if in.Roster.ColumnIndexFold(col) < 0 {
			return fmt.Errorf("%w: %s.%s", model.ErrMissingColumn, in.Roster.Name, col)
		}
	}

	return nil
}
