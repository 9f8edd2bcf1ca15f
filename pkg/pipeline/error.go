package pipeline

import (
	"errors"
	"fmt"
)

// Pipeline stages, in execution order
const (
	StageLoad    = "load"
	StageClean   = "clean"
	StageProfile = "profile"
	StageWrite   = "write"
	StageVerify  = "verify"
	StageAudit   = "audit"
)

// StageError reports the stage in which a run failed
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// FailedStage returns the stage named by a StageError in err's chain
func FailedStage(err error) string {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Stage
	}
	return ""
}
