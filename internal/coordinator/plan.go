package coordinator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/knowflow/knowflow/internal/control"
	"github.com/knowflow/knowflow/internal/envelope"
	"github.com/knowflow/knowflow/pkg/models"
)

// PlanResult is what a completed plan pipeline hands back.
type PlanResult struct {
	// Plan is the persisted lesson plan.
	Plan *models.LessonPlan
	// Ack names where the plan landed.
	Ack *envelope.Ack
	// Degraded is true when research failed and the plan was persisted
	// without enrichment.
	Degraded bool
}

// Plan runs the lesson-plan pipeline: generate a draft, enrich it with
// external resources, persist it. Research failure is absorbed; the
// pipeline persists the unenriched draft rather than losing the plan.
type Plan struct {
	controller *control.Controller
	generator  control.Worker
	retriever  control.Worker
	persister  control.Worker
	logger     *zap.Logger
}

// NewPlan creates a plan coordinator from its three stage workers.
func NewPlan(c *control.Controller, generator, retriever, persister control.Worker, logger *zap.Logger) *Plan {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Plan{controller: c, generator: generator, retriever: retriever, persister: persister, logger: logger}
}

// Run executes the pipeline for one user prompt. The returned failure is
// nil iff a plan was durably persisted.
func (p *Plan) Run(ctx context.Context, userID, prompt string, taskCtx map[string]string) (*PlanResult, *Failure) {
	refined := fmt.Sprintf("Create a complete lesson plan for: %s", prompt)
	genTask := envelope.NewTask(envelope.KindGeneratePlan, userID, prompt, refined, envelope.Payload{}, taskCtx)

	genRes := p.controller.Execute(ctx, p.generator, genTask)
	if genRes.Status != envelope.StatusSuccess {
		return nil, failureFrom(envelope.KindGeneratePlan, genRes)
	}
	draft := genRes.Plan

	degraded := false
	refined = fmt.Sprintf("Find external resources for the lessons of plan %s", draft.PlanID)
	resTask := envelope.NewTask(envelope.KindResearchTopic, userID, prompt, refined,
		envelope.Payload{Draft: draft}, taskCtx)
	resRes := p.controller.Execute(ctx, p.retriever, resTask)
	if resRes.Status == envelope.StatusSuccess {
		draft = resRes.Plan
	} else {
		// A plan without references is still a plan. Persist the draft
		// and report the degradation instead of failing the pipeline.
		degraded = true
		p.logger.Warn("research failed, persisting unenriched plan",
			zap.String("user_id", userID),
			zap.String("plan_id", draft.PlanID),
			zap.String("class", string(resRes.Class)),
			zap.Error(resRes.Err))
	}

	refined = fmt.Sprintf("Persist plan %s for user %s", draft.PlanID, userID)
	writeTask := envelope.NewTask(envelope.KindWritePlan, userID, prompt, refined,
		envelope.Payload{Draft: draft}, taskCtx)
	writeRes := p.controller.Execute(ctx, p.persister, writeTask)
	if writeRes.Status != envelope.StatusSuccess {
		return nil, failureFrom(envelope.KindWritePlan, writeRes)
	}

	p.logger.Info("plan pipeline complete",
		zap.String("user_id", userID),
		zap.String("plan_id", writeRes.Plan.PlanID),
		zap.Int("lessons", len(writeRes.Plan.Lessons)),
		zap.Bool("degraded", degraded))

	return &PlanResult{Plan: writeRes.Plan, Ack: writeRes.Ack, Degraded: degraded}, nil
}
