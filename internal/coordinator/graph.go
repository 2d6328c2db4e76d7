package coordinator

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/knowflow/knowflow/internal/control"
	"github.com/knowflow/knowflow/internal/envelope"
	"github.com/knowflow/knowflow/internal/store"
	"github.com/knowflow/knowflow/pkg/models"
)

// GraphResult is what a completed graph pipeline hands back.
type GraphResult struct {
	// Graph is the merged graph after the write.
	Graph *models.KnowledgeGraph
	// Ack names where the graph landed.
	Ack *envelope.Ack
}

// Graph runs the knowledge-graph pipeline: read the persisted plan and
// the learner's current graph, generate a fragment, merge-write it. The
// pipeline works from stored state, never from in-flight drafts, so a
// graph is only ever derived from a plan that survived persistence.
type Graph struct {
	controller *control.Controller
	generator  control.Worker
	persister  control.Worker
	gateway    store.Gateway
	logger     *zap.Logger
}

// NewGraph creates a graph coordinator.
func NewGraph(c *control.Controller, generator, persister control.Worker, gateway store.Gateway, logger *zap.Logger) *Graph {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Graph{controller: c, generator: generator, persister: persister, gateway: gateway, logger: logger}
}

// Run executes the pipeline for one persisted plan.
func (g *Graph) Run(ctx context.Context, userID, planID, prompt string, taskCtx map[string]string) (*GraphResult, *Failure) {
	plan, failure := g.readPlan(ctx, userID, planID)
	if failure != nil {
		return nil, failure
	}
	existing, failure := g.readGraph(ctx, userID)
	if failure != nil {
		return nil, failure
	}

	refined := fmt.Sprintf("Extract the concepts plan %s teaches and relate them to the learner's existing graph", planID)
	genTask := envelope.NewTask(envelope.KindGenerateGraph, userID, prompt, refined,
		envelope.Payload{PlanID: planID, Plan: plan, Existing: existing}, taskCtx)
	genRes := g.controller.Execute(ctx, g.generator, genTask)
	if genRes.Status != envelope.StatusSuccess {
		return nil, failureFrom(envelope.KindGenerateGraph, genRes)
	}

	refined = fmt.Sprintf("Merge the concept fragment from plan %s into the graph of user %s", planID, userID)
	writeTask := envelope.NewTask(envelope.KindWriteGraph, userID, prompt, refined,
		envelope.Payload{Fragment: genRes.Graph}, taskCtx)
	writeRes := g.controller.Execute(ctx, g.persister, writeTask)
	if writeRes.Status != envelope.StatusSuccess {
		return nil, failureFrom(envelope.KindWriteGraph, writeRes)
	}

	g.logger.Info("graph pipeline complete",
		zap.String("user_id", userID),
		zap.String("plan_id", planID),
		zap.Int("nodes", len(writeRes.Graph.Nodes)),
		zap.Int("edges", len(writeRes.Graph.Edges)))

	return &GraphResult{Graph: writeRes.Graph, Ack: writeRes.Ack}, nil
}

func (g *Graph) readPlan(ctx context.Context, userID, planID string) (*models.LessonPlan, *Failure) {
	doc, err := g.gateway.Get(ctx, store.PlansCollection(userID), planID)
	if err != nil {
		class := envelope.ClassTransientProvider
		if errors.Is(err, store.ErrNotFound) {
			class = envelope.ClassInternal
			err = fmt.Errorf("plan %s not persisted for user %s: %w", planID, userID, err)
		}
		return nil, &Failure{Stage: envelope.KindGenerateGraph, Class: class, Err: err}
	}
	plan := &models.LessonPlan{}
	if err := doc.Decode(plan); err != nil {
		return nil, &Failure{Stage: envelope.KindGenerateGraph, Class: envelope.ClassInternal, Err: err}
	}
	return plan, nil
}

// readGraph returns the learner's stored graph, or nil when no graph
// exists yet. Absence is a normal first-run state, not an error.
func (g *Graph) readGraph(ctx context.Context, userID string) (*models.KnowledgeGraph, *Failure) {
	doc, err := g.gateway.Get(ctx, store.GraphsCollection, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, &Failure{Stage: envelope.KindGenerateGraph, Class: envelope.ClassTransientProvider, Err: err}
	}
	existing := &models.KnowledgeGraph{}
	if err := doc.Decode(existing); err != nil {
		return nil, &Failure{Stage: envelope.KindGenerateGraph, Class: envelope.ClassInternal, Err: err}
	}
	return existing, nil
}
