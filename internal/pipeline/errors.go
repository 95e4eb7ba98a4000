package pipeline

import (
	"errors"
	"fmt"
)

// Stage names the step an ingestion failed in.
type Stage string

const (
	StageStaging     Stage = "stage"
	StageExtraction  Stage = "extract"
	StagePersistence Stage = "persist"
)

// StageError is the terminal failure of an ingestion.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("ingestion failed at %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// FailedStage returns the stage recorded in err, or "" when err carries none.
func FailedStage(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
