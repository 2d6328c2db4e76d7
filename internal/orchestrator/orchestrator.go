// Package orchestrator ties the two pipelines into one run per user
// prompt: plan first, graph second, with the graph derived only from
// the persisted plan. A plan failure ends the run; a graph failure
// degrades it.
package orchestrator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/knowflow/knowflow/internal/control"
	"github.com/knowflow/knowflow/internal/coordinator"
	"github.com/knowflow/knowflow/internal/metrics"
	"github.com/knowflow/knowflow/pkg/models"
)

// Run outcome labels for the runs counter.
const (
	outcomeSuccess  = "success"
	outcomeDegraded = "degraded"
	outcomeFailure  = "failure"
)

// Orchestrator runs the full pipeline for one prompt submission.
type Orchestrator struct {
	plans   *coordinator.Plan
	graphs  *coordinator.Graph
	scorer  *control.Scorer
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// New creates an orchestrator. A nil scorer, logger, or metrics gets a
// usable default.
func New(plans *coordinator.Plan, graphs *coordinator.Graph, scorer *control.Scorer, logger *zap.Logger, m *metrics.Metrics) *Orchestrator {
	if scorer == nil {
		scorer = control.NewScorer()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.Nop()
	}
	return &Orchestrator{plans: plans, graphs: graphs, scorer: scorer, logger: logger, metrics: m, now: time.Now}
}

// Run executes one orchestration: generate, enrich, and persist a plan,
// then derive and merge the knowledge graph from what was persisted.
// The graph pipeline is never started when the plan pipeline fails, and
// its failure never turns a persisted plan into a failed run.
func (o *Orchestrator) Run(ctx context.Context, userID, prompt string, taskCtx map[string]string) models.Outcome {
	start := o.now()

	planRes, failure := o.plans.Run(ctx, userID, prompt, taskCtx)
	if failure != nil {
		elapsed := o.now().Sub(start)
		o.metrics.Runs.WithLabelValues(outcomeFailure).Inc()
		o.metrics.RunDuration.Observe(elapsed.Seconds())
		o.logger.Error("run failed",
			zap.String("user_id", userID),
			zap.String("stage", string(failure.Stage)),
			zap.String("class", string(failure.Class)),
			zap.Error(failure.Err))
		class := failure.Class.ErrorClass()
		return models.Outcome{
			UserID:      userID,
			GraphStatus: models.GraphStatusAbsent,
			Elapsed:     elapsed,
			ErrorClass:  class,
			Error:       failure.Error(),
			Retryable:   class.Retryable(),
		}
	}

	outcome := models.Outcome{
		Success:      true,
		UserID:       userID,
		PlanID:       planRes.Plan.PlanID,
		QualityScore: o.scorer.Score(planRes.Plan),
		GraphStatus:  models.GraphStatusAbsent,
	}

	label := outcomeSuccess
	graphRes, graphFailure := o.graphs.Run(ctx, userID, planRes.Plan.PlanID, prompt, taskCtx)
	if graphFailure != nil {
		// The plan is durable; report the graph failure without
		// clearing the run's success.
		label = outcomeDegraded
		class := graphFailure.Class.ErrorClass()
		outcome.ErrorClass = class
		outcome.Error = graphFailure.Error()
		outcome.Retryable = class.Retryable()
		o.logger.Warn("graph pipeline failed, plan stands alone",
			zap.String("user_id", userID),
			zap.String("plan_id", outcome.PlanID),
			zap.String("class", string(graphFailure.Class)),
			zap.Error(graphFailure.Err))
	} else {
		outcome.GraphStatus = models.GraphStatusUpdated
		o.logger.Info("run complete",
			zap.String("user_id", userID),
			zap.String("plan_id", outcome.PlanID),
			zap.Float64("quality_score", outcome.QualityScore),
			zap.Int("graph_nodes", len(graphRes.Graph.Nodes)))
	}
	if planRes.Degraded && label == outcomeSuccess {
		label = outcomeDegraded
	}

	outcome.Elapsed = o.now().Sub(start)
	o.metrics.Runs.WithLabelValues(label).Inc()
	o.metrics.RunDuration.Observe(outcome.Elapsed.Seconds())
	return outcome
}
