// Package coordinator implements the two pipeline coordinators. Each
// owns the ordering of its stages, derives the refined instruction
// handed to every worker, and decides which stage failures are absorbed
// and which end the pipeline.
package coordinator

import (
	"fmt"

	"github.com/knowflow/knowflow/internal/envelope"
)

// Failure describes why a pipeline stopped: the stage that failed and
// the classified cause, after retries were exhausted.
type Failure struct {
	// Stage is the task kind that failed.
	Stage envelope.Kind
	// Class is the failure classification of the last attempt.
	Class envelope.Class
	// Err is the underlying cause.
	Err error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("stage %s failed (%s): %v", f.Stage, f.Class, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// failureFrom converts a non-success result into a Failure.
func failureFrom(stage envelope.Kind, res envelope.Result) *Failure {
	return &Failure{Stage: stage, Class: res.Class, Err: res.Err}
}
