package pipeline

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/David-Botos/experiment-cleaning/pkg/cleaner"
)

// StageMetrics tracks the timing of one pipeline stage
type StageMetrics struct {
	Name      string
	StartTime time.Time
	EndTime   time.Time
}

// Duration returns how long the stage ran
func (sm *StageMetrics) Duration() time.Duration {
	if sm.EndTime.IsZero() {
		return time.Since(sm.StartTime)
	}
	return sm.EndTime.Sub(sm.StartTime)
}

// OutputMetrics tracks one cleaned output table
type OutputMetrics struct {
	Table        string
	Rows         int
	RowsWritten  int64
	Verified     bool
	MissingCells map[string]int // column -> missing cells
}

// TotalMissing returns the missing cells across all columns
func (om *OutputMetrics) TotalMissing() int {
	total := 0
	for _, n := range om.MissingCells {
		total += n
	}
	return total
}

// RunMetrics tracks metrics for one cleaning run
type RunMetrics struct {
	mu               sync.Mutex
	logger           *zap.Logger
	RunID            string
	StartTime        time.Time
	EndTime          time.Time
	Stages           []*StageMetrics
	RowsRead         map[string]int
	Outputs          map[string]*OutputMetrics
	CleaningOps      int
	OperationCounts  map[string]int
	Summary          cleaner.Summary
	FailedStage      string
	ErrorMessage     string
	ErrorCategory    cleaner.ErrorCategory
	PeakMemoryUsage  int64
	stageIndexByName map[string]int
}

// NewRunMetrics creates a new RunMetrics instance
func NewRunMetrics(logger *zap.Logger) *RunMetrics {
	return &RunMetrics{
		logger:           logger,
		StartTime:        time.Now(),
		RowsRead:         make(map[string]int),
		Outputs:          make(map[string]*OutputMetrics),
		OperationCounts:  make(map[string]int),
		stageIndexByName: make(map[string]int),
	}
}

// StartStage begins tracking a stage
func (rm *RunMetrics) StartStage(name string) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.stageIndexByName[name] = len(rm.Stages)
	rm.Stages = append(rm.Stages, &StageMetrics{Name: name, StartTime: time.Now()})

	if rm.logger != nil {
		rm.logger.Debug("Started stage", zap.String("stage", name))
	}
}

// EndStage completes tracking a stage
func (rm *RunMetrics) EndStage(name string) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	idx, ok := rm.stageIndexByName[name]
	if !ok {
		return
	}

	sm := rm.Stages[idx]
	sm.EndTime = time.Now()

	if rm.logger != nil {
		rm.logger.Info("Completed stage",
			zap.String("stage", name),
			zap.Duration("duration", sm.Duration()))
	}
}

// StageDuration returns the duration of a stage, zero if it never started
func (rm *RunMetrics) StageDuration(name string) time.Duration {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	idx, ok := rm.stageIndexByName[name]
	if !ok {
		return 0
	}
	return rm.Stages[idx].Duration()
}

// RecordRead records the rows loaded from a source table
func (rm *RunMetrics) RecordRead(table string, rows int) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.RowsRead[table] = rows
}

// RecordCleaning records what the cleaner did
func (rm *RunMetrics) RecordCleaning(result *cleaner.Result) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.RunID = result.RunID
	rm.Summary = result.Summary
	rm.CleaningOps = len(result.Operations)
	for _, op := range result.Operations {
		rm.OperationCounts[op.CleaningOperation]++
	}
}

// output returns the metrics for an output, creating them on first use.
// Callers must hold the lock.
func (rm *RunMetrics) output(table string) *OutputMetrics {
	om, ok := rm.Outputs[table]
	if !ok {
		om = &OutputMetrics{Table: table, MissingCells: make(map[string]int)}
		rm.Outputs[table] = om
	}
	return om
}

// RecordOutput records the size and missing cells of a cleaned output
func (rm *RunMetrics) RecordOutput(table string, rows int, missing map[string]int) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	om := rm.output(table)
	om.Rows = rows
	for col, n := range missing {
		om.MissingCells[col] = n
	}
}

// RecordWritten records the rows written for an output
func (rm *RunMetrics) RecordWritten(table string, rows int64) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.output(table).RowsWritten = rows
}

// RecordVerified marks an output whose target row count matched
func (rm *RunMetrics) RecordVerified(table string, verified bool) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.output(table).Verified = verified
}

// RecordResourceUtilization tracks peak memory usage
func (rm *RunMetrics) RecordResourceUtilization(memoryUsage int64) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if memoryUsage > rm.PeakMemoryUsage {
		rm.PeakMemoryUsage = memoryUsage
	}
}

// Fail records the stage that aborted the run
func (rm *RunMetrics) Fail(stage string, err error) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.FailedStage = stage
	rm.ErrorMessage = err.Error()
	rm.ErrorCategory = cleaner.CategorizeError(err)

	if idx, ok := rm.stageIndexByName[stage]; ok && rm.Stages[idx].EndTime.IsZero() {
		rm.Stages[idx].EndTime = time.Now()
	}
}

// Complete marks the run as complete
func (rm *RunMetrics) Complete() {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.EndTime = time.Now()

	if rm.logger != nil {
		rm.logger.Info("Cleaning run completed",
			zap.String("run_id", rm.RunID),
			zap.Duration("totalDuration", rm.duration()),
			zap.Int("rowsRead", rm.totalRowsRead()),
			zap.Int64("rowsWritten", rm.totalRowsWritten()),
			zap.Int("cleaningOps", rm.CleaningOps),
			zap.Bool("success", rm.FailedStage == ""))
	}
}

// Succeeded reports whether the run finished without failing a stage
func (rm *RunMetrics) Succeeded() bool {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	return rm.FailedStage == ""
}

// Duration returns the total duration of the run
func (rm *RunMetrics) Duration() time.Duration {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	return rm.duration()
}

func (rm *RunMetrics) duration() time.Duration {
	if rm.EndTime.IsZero() {
		return time.Since(rm.StartTime)
	}
	return rm.EndTime.Sub(rm.StartTime)
}

// TotalRowsRead returns the rows loaded across source tables
func (rm *RunMetrics) TotalRowsRead() int {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	return rm.totalRowsRead()
}

func (rm *RunMetrics) totalRowsRead() int {
	total := 0
	for _, n := range rm.RowsRead {
		total += n
	}
	return total
}

// TotalRowsWritten returns the rows written across outputs
func (rm *RunMetrics) TotalRowsWritten() int64 {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	return rm.totalRowsWritten()
}

func (rm *RunMetrics) totalRowsWritten() int64 {
	var total int64
	for _, om := range rm.Outputs {
		total += om.RowsWritten
	}
	return total
}

// formatBytes converts bytes to a human-readable string
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// formatDuration formats a duration to a human-readable string
func formatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	} else if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// GenerateReport creates a human-readable run report
func (rm *RunMetrics) GenerateReport() string {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	status := "succeeded"
	if rm.FailedStage != "" {
		status = fmt.Sprintf("failed in %s stage", rm.FailedStage)
	}

	var b strings.Builder
	fmt.Fprintf(&b, `
Cleaning Run Report
===================
Run ID:                  %s
Status:                  %s
Duration:                %s
Start Time:              %s
End Time:                %s

Data Summary
------------
Total Rows Read:         %d
Total Rows Written:      %d
Clients Discarded:       %d
Duplicates Removed:      %d
Variations Filled:       %d
Headers Renamed:         %d
Total Cleaning Ops:      %d
Peak Memory Usage:       %s
`,
		rm.RunID,
		status,
		formatDuration(rm.duration()),
		rm.StartTime.Format(time.RFC3339),
		rm.EndTime.Format(time.RFC3339),

		rm.totalRowsRead(),
		rm.totalRowsWritten(),
		rm.Summary.ClientsDiscarded,
		rm.Summary.DuplicatesRemoved,
		rm.Summary.VariationsFilled,
		rm.Summary.HeadersRenamed,
		rm.CleaningOps,
		formatBytes(rm.PeakMemoryUsage),
	)

	b.WriteString("\nStages\n------\n")
	for _, sm := range rm.Stages {
		fmt.Fprintf(&b, "- %s: %s\n", sm.Name, formatDuration(sm.Duration()))
	}

	if len(rm.RowsRead) > 0 {
		b.WriteString("\nSources\n-------\n")
		for _, table := range sortedKeys(rm.RowsRead) {
			fmt.Fprintf(&b, "- %s: %d rows\n", table, rm.RowsRead[table])
		}
	}

	if len(rm.Outputs) > 0 {
		b.WriteString("\nOutputs\n-------\n")
		for _, table := range sortedKeys(rm.Outputs) {
			om := rm.Outputs[table]
			verified := "unverified"
			if om.Verified {
				verified = "verified"
			}
			fmt.Fprintf(&b, "- %s: %d rows, %d written, %s, %d missing cells\n",
				table, om.Rows, om.RowsWritten, verified, om.TotalMissing())
		}
	}

	if rm.FailedStage != "" {
		fmt.Fprintf(&b, "\nError\n-----\n- [%s] %s\n", rm.ErrorCategory, rm.ErrorMessage)
	}

	return b.String()
}

// ToJSON serializes metrics to JSON
func (rm *RunMetrics) ToJSON() ([]byte, error) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	stages := make(map[string]string, len(rm.Stages))
	for _, sm := range rm.Stages {
		stages[sm.Name] = formatDuration(sm.Duration())
	}

	outputs := make(map[string]map[string]interface{}, len(rm.Outputs))
	for table, om := range rm.Outputs {
		outputs[table] = map[string]interface{}{
			"rows":         om.Rows,
			"rowsWritten":  om.RowsWritten,
			"verified":     om.Verified,
			"missingCells": om.MissingCells,
		}
	}

	return json.Marshal(struct {
		RunID            string                            `json:"runId"`
		Success          bool                              `json:"success"`
		FailedStage      string                            `json:"failedStage,omitempty"`
		Error            string                            `json:"error,omitempty"`
		Duration         string                            `json:"duration"`
		Stages           map[string]string                 `json:"stages"`
		RowsRead         map[string]int                    `json:"rowsRead"`
		TotalRowsWritten int64                             `json:"totalRowsWritten"`
		CleaningOps      int                               `json:"cleaningOps"`
		OperationCounts  map[string]int                    `json:"operationCounts"`
		Outputs          map[string]map[string]interface{} `json:"outputs"`
	}{
		RunID:            rm.RunID,
		Success:          rm.FailedStage == "",
		FailedStage:      rm.FailedStage,
		Error:            rm.ErrorMessage,
		Duration:         formatDuration(rm.duration()),
		Stages:           stages,
		RowsRead:         rm.RowsRead,
		TotalRowsWritten: rm.totalRowsWritten(),
		CleaningOps:      rm.CleaningOps,
		OperationCounts:  rm.OperationCounts,
		Outputs:          outputs,
	})
}
