// Package envelope defines the typed messages passed at every delegation
// boundary: the task handed to a worker and the result it must return.
// Envelopes are ephemeral; they live and die within one orchestration run.
package envelope

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/knowflow/knowflow/pkg/models"
)

// Kind identifies the type of work a task envelope delegates.
type Kind string

const (
	// KindGeneratePlan asks a generator for a lesson plan draft.
	KindGeneratePlan Kind = "generate_plan"
	// KindResearchTopic asks a retriever for external references.
	KindResearchTopic Kind = "research_topic"
	// KindWritePlan asks a persister to durably write a plan.
	KindWritePlan Kind = "write_plan"
	// KindGenerateGraph asks a generator for a knowledge-graph fragment.
	KindGenerateGraph Kind = "generate_graph"
	// KindWriteGraph asks a persister to merge-write a graph fragment.
	KindWriteGraph Kind = "write_graph"
)

// Valid returns true if the kind is a known value.
func (k Kind) Valid() bool {
	switch k {
	case KindGeneratePlan, KindResearchTopic, KindWritePlan, KindGenerateGraph, KindWriteGraph:
		return true
	default:
		return false
	}
}

// Payload carries the kind-specific input of a task. Exactly the fields
// the kind requires are set; Task.Validate enforces that.
type Payload struct {
	// PlanID references an existing plan (GenerateGraph revisions, or a
	// caller-supplied id a generator must not overwrite).
	PlanID string
	// Draft is the plan being enriched or written (ResearchTopic, WritePlan).
	Draft *models.LessonPlan
	// Plan is the stored plan a graph is generated from (GenerateGraph).
	Plan *models.LessonPlan
	// Existing is the user's current graph, empty when none is stored
	// (GenerateGraph).
	Existing *models.KnowledgeGraph
	// Fragment is the graph fragment to merge-write (WriteGraph).
	Fragment *models.KnowledgeGraph
}

// Task is the envelope delegated to a worker. A retry never reuses a
// task: Retry builds a fresh envelope with a new TaskID, the same
// CorrelationID, and an incremented attempt counter.
type Task struct {
	// TaskID uniquely identifies this delegation, including retries.
	TaskID string
	// CorrelationID ties retries of the same logical delegation together.
	CorrelationID string
	// Kind is the type of work delegated.
	Kind Kind
	// UserID is the user the work is performed for.
	UserID string
	// SourcePrompt is the original user prompt, passed through unchanged.
	SourcePrompt string
	// RefinedInstruction is the instruction derived by the delegating
	// coordinator. User text never reaches a worker as the instruction.
	RefinedInstruction string
	// Payload is the kind-specific input.
	Payload Payload
	// Context is an opaque key-value map passed through unchanged.
	Context map[string]string
	// Attempt starts at 0 and is incremented per retry.
	Attempt int
}

// NewTask creates a task envelope with a fresh TaskID that doubles as
// the correlation id for any retries of this delegation.
func NewTask(kind Kind, userID, sourcePrompt, refined string, payload Payload, context map[string]string) Task {
	id := uuid.NewString()
	return Task{
		TaskID:             id,
		CorrelationID:      id,
		Kind:               kind,
		UserID:             userID,
		SourcePrompt:       sourcePrompt,
		RefinedInstruction: refined,
		Payload:            payload,
		Context:            context,
	}
}

// Retry returns a new envelope for the next attempt of the same logical
// delegation: fresh TaskID, same CorrelationID, attempt incremented.
func (t Task) Retry() Task {
	next := t
	next.TaskID = uuid.NewString()
	next.Attempt = t.Attempt + 1
	return next
}

// Validate checks that the payload carries the fields its kind requires.
// A validation failure here is a structural bug in the calling code, not
// something a retry can fix.
func (t Task) Validate() error {
	if !t.Kind.Valid() {
		return fmt.Errorf("unknown task kind %q", t.Kind)
	}
	if t.TaskID == "" {
		return fmt.Errorf("task missing task_id")
	}
	if t.UserID == "" {
		return fmt.Errorf("task %s missing user_id", t.TaskID)
	}
	switch t.Kind {
	case KindGeneratePlan:
		if t.SourcePrompt == "" {
			return fmt.Errorf("generate_plan task %s missing source_prompt", t.TaskID)
		}
	case KindResearchTopic:
		if t.Payload.Draft == nil || len(t.Payload.Draft.Lessons) == 0 {
			return fmt.Errorf("research_topic task %s missing draft plan", t.TaskID)
		}
	case KindWritePlan:
		if t.Payload.Draft == nil {
			return fmt.Errorf("write_plan task %s missing draft plan", t.TaskID)
		}
	case KindGenerateGraph:
		if t.Payload.PlanID == "" {
			return fmt.Errorf("generate_graph task %s missing plan_id", t.TaskID)
		}
		if t.Payload.Plan == nil {
			return fmt.Errorf("generate_graph task %s missing plan", t.TaskID)
		}
	case KindWriteGraph:
		if t.Payload.Fragment == nil {
			return fmt.Errorf("write_graph task %s missing graph fragment", t.TaskID)
		}
	}
	return nil
}

// Status classifies a worker result.
type Status string

const (
	// StatusSuccess indicates the worker produced its artifact.
	StatusSuccess Status = "success"
	// StatusRetryableFailure indicates a transient failure worth retrying.
	StatusRetryableFailure Status = "retryable_failure"
	// StatusFatalFailure indicates a structural failure; retrying the
	// same delegation cannot fix it.
	StatusFatalFailure Status = "fatal_failure"
)

// Class refines a failure status for caller-visible reporting. It maps
// onto models.ErrorClass at the orchestrator boundary.
type Class string

const (
	// ClassNone is set on successful results.
	ClassNone Class = ""
	// ClassTransientProvider covers provider timeouts, rate limits, and
	// connection errors.
	ClassTransientProvider Class = "transient_provider"
	// ClassSchemaValidation covers output that violates the artifact schema.
	ClassSchemaValidation Class = "schema_validation"
	// ClassPersistenceConflict covers optimistic-concurrency write conflicts.
	ClassPersistenceConflict Class = "persistence_conflict"
	// ClassUnauthorized covers authorization failures and unknown users.
	ClassUnauthorized Class = "unauthorized"
	// ClassInternal covers everything else.
	ClassInternal Class = "internal"
)

// ErrorClass converts a result class to the caller-visible taxonomy.
func (c Class) ErrorClass() models.ErrorClass {
	switch c {
	case ClassTransientProvider:
		return models.ErrorClassTransientProvider
	case ClassSchemaValidation:
		return models.ErrorClassSchemaValidation
	case ClassPersistenceConflict:
		return models.ErrorClassPersistenceConflict
	case ClassUnauthorized:
		return models.ErrorClassUnauthorized
	case ClassNone:
		return models.ErrorClassNone
	default:
		return models.ErrorClassInternal
	}
}

// Ack acknowledges a durable write, naming where the artifact landed.
type Ack struct {
	// Collection is the document collection written to.
	Collection string
	// Key is the stored document key.
	Key string
	// Version is the document version after the write.
	Version int64
}

// Result is the envelope a worker returns. Err is non-nil iff the status
// is not StatusSuccess; exactly one artifact field is set on success,
// matching the task kind.
type Result struct {
	// TaskID correlates to the task that produced this result.
	TaskID string
	// Status classifies the result.
	Status Status
	// Class refines a failure for reporting; ClassNone on success.
	Class Class
	// Plan is the plan artifact (GeneratePlan, ResearchTopic).
	Plan *models.LessonPlan
	// Graph is the graph artifact (GenerateGraph).
	Graph *models.KnowledgeGraph
	// Ack is the write acknowledgement (WritePlan, WriteGraph).
	Ack *Ack
	// Err is the failure cause; nil on success.
	Err error
	// Elapsed is how long the worker ran.
	Elapsed time.Duration
}

// Success builds a successful result envelope.
func Success(taskID string, elapsed time.Duration) Result {
	return Result{TaskID: taskID, Status: StatusSuccess, Elapsed: elapsed}
}

// Retryable builds a retryable-failure result envelope.
func Retryable(taskID string, class Class, err error, elapsed time.Duration) Result {
	return Result{TaskID: taskID, Status: StatusRetryableFailure, Class: class, Err: err, Elapsed: elapsed}
}

// Fatal builds a fatal-failure result envelope.
func Fatal(taskID string, class Class, err error, elapsed time.Duration) Result {
	return Result{TaskID: taskID, Status: StatusFatalFailure, Class: class, Err: err, Elapsed: elapsed}
}
