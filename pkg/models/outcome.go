package models

import "time"

// GraphStatus reports the knowledge-graph side of an orchestration run.
type GraphStatus string

const (
	// GraphStatusUpdated indicates the graph merge committed.
	GraphStatusUpdated GraphStatus = "updated"
	// GraphStatusAbsent indicates the graph stage failed or never ran;
	// the plan result stands on its own.
	GraphStatusAbsent GraphStatus = "absent"
)

// ErrorClass is a stable classification attached to failed outcomes so
// callers can decide whether resubmitting is worthwhile.
type ErrorClass string

const (
	// ErrorClassNone is set on successful outcomes.
	ErrorClassNone ErrorClass = ""
	// ErrorClassTransientProvider covers provider timeouts, rate limits,
	// and connection failures that exhausted their retries.
	ErrorClassTransientProvider ErrorClass = "transient_provider"
	// ErrorClassSchemaValidation covers worker output that did not
	// conform to the expected artifact shape.
	ErrorClassSchemaValidation ErrorClass = "schema_validation"
	// ErrorClassPersistenceConflict covers optimistic-concurrency write
	// conflicts that exhausted their retries.
	ErrorClassPersistenceConflict ErrorClass = "persistence_conflict"
	// ErrorClassUnauthorized covers authorization failures and unknown users.
	ErrorClassUnauthorized ErrorClass = "unauthorized"
	// ErrorClassInternal covers everything else.
	ErrorClassInternal ErrorClass = "internal"
)

// Retryable reports whether a whole-submission retry may usefully succeed.
func (c ErrorClass) Retryable() bool {
	switch c {
	case ErrorClassTransientProvider, ErrorClassPersistenceConflict:
		return true
	default:
		return false
	}
}

// Outcome is the aggregated result of one orchestration run.
type Outcome struct {
	// Success is true when the lesson plan was generated and persisted.
	// A failed graph merge does not clear it.
	Success bool `json:"success"`
	// UserID is the user the run was executed for.
	UserID string `json:"user_id"`
	// PlanID identifies the persisted plan; empty on failure.
	PlanID string `json:"plan_id,omitempty"`
	// GraphStatus reports whether the knowledge graph was updated.
	GraphStatus GraphStatus `json:"graph_status"`
	// QualityScore is the advisory [0,1] score of the produced plan.
	QualityScore float64 `json:"quality_score"`
	// Elapsed is the wall-clock duration of the run.
	Elapsed time.Duration `json:"elapsed"`
	// ErrorClass classifies the failure; empty on success.
	ErrorClass ErrorClass `json:"error_class,omitempty"`
	// Error is a human-readable failure message; empty on success.
	Error string `json:"error,omitempty"`
	// Retryable reports whether resubmitting the same prompt may succeed.
	Retryable bool `json:"retryable,omitempty"`
}
