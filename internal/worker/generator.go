package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/knowflow/knowflow/internal/envelope"
	"github.com/knowflow/knowflow/internal/provider"
	"github.com/knowflow/knowflow/pkg/models"
)

// planSchema is handed to the provider so the model emits a lesson plan
// matching the persisted document shape.
const planSchema = `{
  "user_id": "string",
  "plan_id": "string",
  "title": "string",
  "description": "string",
  "status": "active or archived: default to active",
  "source_prompt": "string",
  "lessons": [
    {
      "lesson_id": "string",
      "title": "string",
      "objectives": ["string"],
      "content": "string",
      "external_resources": ["string"],
      "order": 0
    }
  ]
}`

const generatorRole = "You generate comprehensive syllabi (lesson plans) from vague prompts, " +
	"matched to the user's knowledge history and learning pace."

// PlanGenerator produces a structured lesson plan draft from a prompt.
type PlanGenerator struct {
	provider   provider.Provider
	logger     *zap.Logger
	maxLessons int
	timeout    time.Duration

	// now and newID are swapped in tests for determinism.
	now   func() time.Time
	newID func() string
}

// NewPlanGenerator creates a plan generator worker.
func NewPlanGenerator(p provider.Provider, logger *zap.Logger, maxLessons int, timeout time.Duration) *PlanGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxLessons <= 0 {
		maxLessons = 10
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &PlanGenerator{
		provider:   p,
		logger:     logger,
		maxLessons: maxLessons,
		timeout:    timeout,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// Execute generates a lesson plan draft. The plan id is assigned here,
// exactly once: a plan_id supplied in the payload is always kept, and a
// missing one is filled with a collision-resistant identifier.
func (g *PlanGenerator) Execute(ctx context.Context, task envelope.Task) envelope.Result {
	start := time.Now()

	if err := requireKind(task, envelope.KindGeneratePlan); err != nil {
		return envelope.Fatal(task.TaskID, envelope.ClassInternal, err, time.Since(start))
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.provider.Infer(callCtx, provider.Request{
		System:      generatorRole,
		Instruction: instructionPreamble(task),
		Schema:      planSchema,
	})
	if err != nil {
		return fromProviderError(task.TaskID, err, time.Since(start))
	}

	var plan models.LessonPlan
	if err := decodeModelJSON(resp.Text, &plan); err != nil {
		return envelope.Fatal(task.TaskID, envelope.ClassSchemaValidation, err, time.Since(start))
	}

	now := g.now()
	plan.UserID = task.UserID
	plan.SourcePrompt = task.SourcePrompt
	plan.CreatedAt = now
	plan.LastAccessed = now
	if plan.Status == "" {
		plan.Status = models.PlanStatusActive
	}
	switch {
	case task.Payload.PlanID != "":
		// Caller-supplied ids are never overwritten.
		plan.PlanID = task.Payload.PlanID
	case plan.PlanID == "":
		plan.PlanID = g.newID()
	}
	for i := range plan.Lessons {
		if plan.Lessons[i].LessonID == "" {
			plan.Lessons[i].LessonID = g.newID()
		}
	}
	plan.TruncateLessons(g.maxLessons)
	plan.NormalizeOrder()

	if err := plan.Validate(); err != nil {
		return envelope.Fatal(task.TaskID, envelope.ClassSchemaValidation, err, time.Since(start))
	}

	g.logger.Debug("plan draft generated",
		zap.String("task_id", task.TaskID),
		zap.String("plan_id", plan.PlanID),
		zap.Int("lessons", len(plan.Lessons)),
		zap.Int64("input_tokens", resp.InputTokens),
		zap.Int64("output_tokens", resp.OutputTokens))

	res := envelope.Success(task.TaskID, time.Since(start))
	res.Plan = &plan
	return res
}
