// Package pipeline runs one cleaning pass: load the raw tables, clean them,
// write the cleaned outputs, verify them and record the audit trail.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/David-Botos/experiment-cleaning/pkg/cleaner"
	"github.com/David-Botos/experiment-cleaning/pkg/config"
	"github.com/David-Botos/experiment-cleaning/pkg/frame"
	"github.com/David-Botos/experiment-cleaning/pkg/model"
)

// Output table names in the target schema
const (
	OutputClientsCleaned   = "clients_cleaned"
	OutputTraceCleaned     = "trace_cleaned"
	OutputRosterCleaned    = "roster_cleaned"
	OutputClientsDiscarded = "clients_discarded"
)

// Source provides the raw tables
type Source interface {
	ReadTable(ctx context.Context, ref config.TableRef) (*model.Table, error)
}

// Sink receives the cleaned tables
type Sink interface {
	EnsureSchema(ctx context.Context, schema string) error
	WriteTable(ctx context.Context, schema string, t *model.Table, batchSize int) (int64, error)
	CountRows(ctx context.Context, ref config.TableRef) (int64, error)
}

// Recorder persists the cleaning audit trail
type Recorder interface {
	EnsureTable(ctx context.Context) error
	RecordCleaningOperations(ctx context.Context, operations []model.CleaningOperation) error
}

// Runner executes cleaning runs
type Runner struct {
	source   Source
	sink     Sink
	recorder Recorder
	cleaner  *cleaner.DatasetCleaner
	verifier *Verifier
	cfg      *config.Config
	logger   *zap.Logger
}

// NewRunner creates a runner. recorder may be nil when auditing is disabled.
func NewRunner(
	source Source,
	sink Sink,
	recorder Recorder,
	c *cleaner.DatasetCleaner,
	cfg *config.Config,
	logger *zap.Logger,
) (*Runner, error) {
	if source == nil || sink == nil {
		return nil, errors.New("source and sink are required")
	}
	if c == nil {
		return nil, errors.New("cleaner cannot be nil")
	}
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.RecordAudit && recorder == nil {
		return nil, errors.New("audit recording enabled without a recorder")
	}

	logger = logger.Named("pipeline")
	return &Runner{
		source:   source,
		sink:     sink,
		recorder: recorder,
		cleaner:  c,
		verifier: NewVerifier(sink, logger),
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// Run performs one cleaning run. The returned metrics are populated up to
// the point of failure when an error is returned.
func (r *Runner) Run(ctx context.Context) (*RunMetrics, error) {
	metrics := NewRunMetrics(r.logger)
	defer metrics.Complete()

	fail := func(stage string, err error) (*RunMetrics, error) {
		metrics.Fail(stage, err)
		r.logger.Error("Cleaning run failed", zap.String("stage", stage), zap.Error(err))
		return metrics, &StageError{Stage: stage, Err: err}
	}

	// Load
	metrics.StartStage(StageLoad)
	input, err := r.load(ctx, metrics)
	if err != nil {
		return fail(StageLoad, err)
	}
	metrics.EndStage(StageLoad)

	// Clean
	metrics.StartStage(StageClean)
	result, err := r.cleaner.Clean(input)
	if err != nil {
		return fail(StageClean, err)
	}
	metrics.RecordCleaning(result)
	metrics.RecordResourceUtilization(currentMemoryUsage())
	metrics.EndStage(StageClean)

	outputs := outputTables(result)

	// Profile
	metrics.StartStage(StageProfile)
	if err := r.profile(outputs, metrics); err != nil {
		return fail(StageProfile, err)
	}
	metrics.EndStage(StageProfile)

	// Write
	metrics.StartStage(StageWrite)
	if err := r.write(ctx, outputs, metrics); err != nil {
		return fail(StageWrite, err)
	}
	metrics.EndStage(StageWrite)

	// Verify
	metrics.StartStage(StageVerify)
	if err := r.verify(ctx, outputs, metrics); err != nil {
		return fail(StageVerify, err)
	}
	metrics.EndStage(StageVerify)

	// Audit
	if r.cfg.RecordAudit {
		metrics.StartStage(StageAudit)
		if err := r.audit(ctx, result.Operations); err != nil {
			return fail(StageAudit, err)
		}
		metrics.EndStage(StageAudit)
	}

	return metrics, nil
}

// load reads the three source tables concurrently
func (r *Runner) load(ctx context.Context, metrics *RunMetrics) (cleaner.Input, error) {
	var input cleaner.Input
	g, gctx := errgroup.WithContext(ctx)

	read := func(ref config.TableRef, dst **model.Table) func() error {
		return func() error {
			t, err := r.source.ReadTable(gctx, ref)
			if err != nil {
				return fmt.Errorf("failed to load %s: %w", ref, err)
			}
			metrics.RecordRead(ref.String(), t.NumRows())
			*dst = t
			return nil
		}
	}

	g.Go(read(r.cfg.Clients, &input.Clients))
	g.Go(read(r.cfg.Trace, &input.Trace))
	g.Go(read(r.cfg.Roster, &input.Roster))

	if err := g.Wait(); err != nil {
		return cleaner.Input{}, err
	}
	return input, nil
}

// outputTables names the cleaned tables for the target schema
func outputTables(result *cleaner.Result) []*model.Table {
	named := []struct {
		name  string
		table *model.Table
	}{
		{OutputClientsCleaned, result.Clients},
		{OutputTraceCleaned, result.Trace},
		{OutputRosterCleaned, result.Roster},
		{OutputClientsDiscarded, result.ClientsDiscarded},
	}

	tables := make([]*model.Table, len(named))
	for i, n := range named {
		n.table.Name = n.name
		tables[i] = n.table
	}
	return tables
}

// profile counts the missing cells left in every output
func (r *Runner) profile(outputs []*model.Table, metrics *RunMetrics) error {
	for _, t := range outputs {
		missing := map[string]int{}
		if t.NumCols() > 0 {
			df, err := frame.ToDataFrame(t, r.cfg.Policy.TimestampLayout)
			if err != nil {
				return err
			}
			missing = frame.MissingCounts(df)
		}
		metrics.RecordOutput(t.Name, t.NumRows(), missing)
	}
	return nil
}

// write replaces the output tables in the target schema
func (r *Runner) write(ctx context.Context, outputs []*model.Table, metrics *RunMetrics) error {
	if err := r.sink.EnsureSchema(ctx, r.cfg.TargetSchema); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, t := range outputs {
		t := t
		g.Go(func() error {
			written, err := r.sink.WriteTable(gctx, r.cfg.TargetSchema, t, r.cfg.ChunkSize)
			if err != nil {
				return fmt.Errorf("failed to write %s: %w", t.Name, err)
			}
			metrics.RecordWritten(t.Name, written)
			return nil
		})
	}
	return g.Wait()
}

// verify checks every output's row count in the target schema
func (r *Runner) verify(ctx context.Context, outputs []*model.Table, metrics *RunMetrics) error {
	var mismatched []string
	for _, t := range outputs {
		ref := config.TableRef{Schema: r.cfg.TargetSchema, Table: t.Name}
		report, err := r.verifier.VerifyRowCount(ctx, ref, int64(t.NumRows()))
		if err != nil {
			return err
		}
		metrics.RecordVerified(t.Name, report.RowCountMatches)
		if !report.RowCountMatches {
			mismatched = append(mismatched, fmt.Sprintf("%s (expected %d, found %d)",
				ref, report.ExpectedRowCount, report.TargetRowCount))
		}
	}

	if len(mismatched) > 0 {
		return fmt.Errorf("%w: %v", ErrRowCountMismatch, mismatched)
	}
	return nil
}

// audit records the cleaning operations of the run
func (r *Runner) audit(ctx context.Context, operations []model.CleaningOperation) error {
	if err := r.recorder.EnsureTable(ctx); err != nil {
		return err
	}
	return r.recorder.RecordCleaningOperations(ctx, operations)
}

// currentMemoryUsage returns the bytes of allocated heap objects
func currentMemoryUsage() int64 {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	return int64(memStats.Alloc)
}
