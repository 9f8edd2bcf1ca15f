// pkg/audit/recorder.go
package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/David-Botos/experiment-cleaning/pkg/model"
)

// TableName is the audit table created in the target schema
const TableName = "cleaning_audit"

// defaultBatchSize keeps one insert well under the bind parameter limit
const defaultBatchSize = 500

// Recorder persists cleaning operations to the audit table
type Recorder struct {
	db        *sqlx.DB
	schema    string
	logger    *zap.Logger
	batchSize int
	timeout   time.Duration
}

// NewRecorder creates a recorder writing to schema.cleaning_audit
func NewRecorder(db *sqlx.DB, schema string, logger *zap.Logger) (*Recorder, error) {
	if db == nil {
		return nil, errors.New("database connection cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	return &Recorder{
		db:        db,
		schema:    schema,
		logger:    logger.Named("audit"),
		batchSize: defaultBatchSize,
		timeout:   30 * time.Second,
	}, nil
}

func (r *Recorder) qualifiedTable() string {
	return pq.QuoteIdentifier(r.schema) + "." + pq.QuoteIdentifier(TableName)
}

// EnsureTable creates the audit table if it doesn't exist
func (r *Recorder) EnsureTable(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			run_id TEXT NOT NULL,
			table_name TEXT NOT NULL,
			column_name TEXT NOT NULL,
			original_value TEXT NULL,
			new_value TEXT NOT NULL,
			row_identifier TEXT NOT NULL,
			cleaning_operation TEXT NOT NULL,
			cleaning_reason TEXT NOT NULL,
			cleaned_at TIMESTAMPTZ NOT NULL
		)`, r.qualifiedTable()))
	if err != nil {
		return fmt.Errorf("failed to create audit table: %w", err)
	}
	return nil
}

// RecordCleaningOperations batch inserts cleaning operations into the audit
// table. Either every operation is recorded or none is.
func (r *Recorder) RecordCleaningOperations(ctx context.Context, operations []model.CleaningOperation) (err error) {
	if len(operations) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	// Begin transaction
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				r.logger.Error("Failed to rollback transaction",
					zap.Error(rbErr),
					zap.NamedError("cause", err))
			}
		}
	}()

	query := fmt.Sprintf(`INSERT INTO %s
		(run_id, table_name, column_name, original_value, new_value,
		 row_identifier, cleaning_operation, cleaning_reason, cleaned_at)
		VALUES (:run_id, :table_name, :column_name, :original_value, :new_value,
		 :row_identifier, :cleaning_operation, :cleaning_reason, :cleaned_at)`, r.qualifiedTable())

	for start := 0; start < len(operations); start += r.batchSize {
		end := start + r.batchSize
		if end > len(operations) {
			end = len(operations)
		}

		if _, err = tx.NamedExecContext(ctx, query, operations[start:end]); err != nil {
			return fmt.Errorf("failed to insert cleaning operations: %w", err)
		}
	}

	// Commit transaction
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.logger.Info("Recorded cleaning operations", zap.Int("count", len(operations)))
	return nil
}
