package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/David-Botos/experiment-cleaning/pkg/config"
)

// ErrRowCountMismatch is returned when a written table holds a different
// number of rows than the cleaned table it was written from
var ErrRowCountMismatch = errors.New("row count mismatch")

// VerificationReport contains the result of verifying one output table
type VerificationReport struct {
	Table            config.TableRef
	VerificationTime time.Time
	RowCountMatches  bool
	ExpectedRowCount int64
	TargetRowCount   int64
	Duration         time.Duration
}

// Verifier checks written outputs against the cleaned tables
type Verifier struct {
	sink    Sink
	logger  *zap.Logger
	timeout time.Duration
}

// NewVerifier creates a new verifier
func NewVerifier(sink Sink, logger *zap.Logger) *Verifier {
	return &Verifier{
		sink:    sink,
		logger:  logger,
		timeout: time.Minute * 5,
	}
}

// WithTimeout sets a custom timeout for verification operations
func (v *Verifier) WithTimeout(timeout time.Duration) *Verifier {
	v.timeout = timeout
	return v
}

// VerifyRowCount compares the target row count with the expected count
func (v *Verifier) VerifyRowCount(ctx context.Context, ref config.TableRef, expected int64) (*VerificationReport, error) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	actual, err := v.sink.CountRows(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to count rows in %s: %w", ref, err)
	}

	report := &VerificationReport{
		Table:            ref,
		VerificationTime: start,
		RowCountMatches:  actual == expected,
		ExpectedRowCount: expected,
		TargetRowCount:   actual,
		Duration:         time.Since(start),
	}

	if report.RowCountMatches {
		v.logger.Info("Row count verification successful",
			zap.String("table", ref.String()),
			zap.Int64("count", actual))
	} else {
		v.logger.Warn("Row count mismatch",
			zap.String("table", ref.String()),
			zap.Int64("expectedCount", expected),
			zap.Int64("targetCount", actual),
			zap.Int64("difference", expected-actual))
	}

	return report, nil
}
