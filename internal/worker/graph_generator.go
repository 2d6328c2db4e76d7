package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/knowflow/knowflow/internal/envelope"
	"github.com/knowflow/knowflow/internal/provider"
	"github.com/knowflow/knowflow/pkg/models"
)

const graphSchema = `{
  "nodes": [
    {
      "concept_id": "string, stable id, reuse an existing id when the concept is already known",
      "name": "string",
      "description": "string",
      "mastery_level": 0,
      "source_lesson_id": "string, the lesson the concept came from"
    }
  ],
  "edges": [
    {
      "edge_id": "string",
      "source_concept_id": "string, must name a node",
      "target_concept_id": "string, must name a node",
      "relationship_type": "related_to | prerequisite_for | part_of"
    }
  ]
}`

const graphRole = "You maintain a learner's knowledge graph. Extract the concepts a lesson plan " +
	"teaches and relate them to each other and to concepts the learner already has. " +
	"Reuse existing concept ids when a concept is already present."

// GraphGenerator derives a knowledge graph fragment from a persisted
// lesson plan and the learner's existing graph.
type GraphGenerator struct {
	provider provider.Provider
	logger   *zap.Logger
	timeout  time.Duration
	newID    func() string
}

// NewGraphGenerator creates a graph generator worker. newID is swapped
// in tests for determinism; nil falls back to uuid generation.
func NewGraphGenerator(p provider.Provider, logger *zap.Logger, timeout time.Duration, newID func() string) *GraphGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	if newID == nil {
		newID = uuid.NewString
	}
	return &GraphGenerator{provider: p, logger: logger, timeout: timeout, newID: newID}
}

// Execute produces a graph fragment for the plan in the task payload.
// Edges may reference concepts from the existing graph; edges whose
// endpoints resolve to neither the fragment nor the existing graph are
// dropped rather than failing the task. The fragment only ever adds or
// supersedes concepts, never removes them.
func (g *GraphGenerator) Execute(ctx context.Context, task envelope.Task) envelope.Result {
	start := time.Now()

	if err := requireKind(task, envelope.KindGenerateGraph); err != nil {
		return envelope.Fatal(task.TaskID, envelope.ClassInternal, err, time.Since(start))
	}

	plan := task.Payload.Plan
	existing := task.Payload.Existing

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.provider.Infer(callCtx, provider.Request{
		System:      graphRole,
		Instruction: fmt.Sprintf("%s\n\n%s", instructionPreamble(task), graphInstruction(plan, existing)),
		Schema:      graphSchema,
	})
	if err != nil {
		return fromProviderError(task.TaskID, err, time.Since(start))
	}

	var parsed struct {
		Nodes []models.ConceptNode `json:"nodes"`
		Edges []models.ConceptEdge `json:"edges"`
	}
	if err := decodeModelJSON(resp.Text, &parsed); err != nil {
		return envelope.Fatal(task.TaskID, envelope.ClassSchemaValidation, err, time.Since(start))
	}

	fragment := models.NewKnowledgeGraph(task.UserID)
	known := make(map[string]bool)
	if existing != nil {
		for i := range existing.Nodes {
			known[existing.Nodes[i].ConceptID] = true
		}
	}
	seen := make(map[string]bool, len(parsed.Nodes))
	for _, n := range parsed.Nodes {
		if strings.TrimSpace(n.Name) == "" {
			continue
		}
		if strings.TrimSpace(n.ConceptID) == "" {
			n.ConceptID = g.newID()
		}
		if seen[n.ConceptID] {
			continue
		}
		if n.MasteryLevel < 0 {
			n.MasteryLevel = 0
		}
		if n.MasteryLevel > 100 {
			n.MasteryLevel = 100
		}
		seen[n.ConceptID] = true
		known[n.ConceptID] = true
		fragment.Nodes = append(fragment.Nodes, n)
	}

	dropped := 0
	edgeIDs := make(map[string]bool, len(parsed.Edges))
	for _, e := range parsed.Edges {
		if !e.RelationshipType.Valid() || !known[e.SourceConceptID] || !known[e.TargetConceptID] {
			dropped++
			continue
		}
		if strings.TrimSpace(e.EdgeID) == "" || edgeIDs[e.EdgeID] {
			e.EdgeID = g.newID()
		}
		edgeIDs[e.EdgeID] = true
		fragment.Edges = append(fragment.Edges, e)
	}
	if dropped > 0 {
		g.logger.Debug("dropped dangling or malformed edges",
			zap.String("task_id", task.TaskID),
			zap.Int("dropped", dropped))
	}

	g.logger.Debug("graph fragment generated",
		zap.String("task_id", task.TaskID),
		zap.String("user_id", task.UserID),
		zap.Int("nodes", len(fragment.Nodes)),
		zap.Int("edges", len(fragment.Edges)))

	res := envelope.Success(task.TaskID, time.Since(start))
	res.Graph = fragment
	return res
}

func graphInstruction(plan *models.LessonPlan, existing *models.KnowledgeGraph) string {
	var b strings.Builder
	b.WriteString("Lesson plan:\n")
	fmt.Fprintf(&b, "title: %s\n", plan.Title)
	for i := range plan.Lessons {
		l := &plan.Lessons[i]
		fmt.Fprintf(&b, "- lesson %s: %s", l.LessonID, l.Title)
		if len(l.Objectives) > 0 {
			fmt.Fprintf(&b, " (objectives: %s)", strings.Join(l.Objectives, "; "))
		}
		b.WriteByte('\n')
	}
	if existing != nil && len(existing.Nodes) > 0 {
		b.WriteString("\nExisting concepts:\n")
		if data, err := json.Marshal(existing.Nodes); err == nil {
			b.Write(data)
			b.WriteByte('\n')
		}
	}
	return b.String()
}
