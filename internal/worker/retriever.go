package worker

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/knowflow/knowflow/internal/envelope"
	"github.com/knowflow/knowflow/internal/provider"
	"github.com/knowflow/knowflow/pkg/models"
)

const retrieverRole = "You find relevant, reliable, educational web resources for lesson topics. " +
	"Only include the most relevant results, between 2-3 links per lesson."

const resourcesSchema = `{
  "resources": {
    "<lesson_id>": ["https://example.org/resource"]
  }
}`

// Retriever enriches a plan draft with external references per lesson.
// References are deduplicated, bounded by the configured per-lesson
// maximum, and dropped when they lack a resolvable locator.
type Retriever struct {
	provider     provider.Provider
	logger       *zap.Logger
	maxPerLesson int
	timeout      time.Duration
}

// NewRetriever creates a retriever worker.
func NewRetriever(p provider.Provider, logger *zap.Logger, maxPerLesson int, timeout time.Duration) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxPerLesson <= 0 {
		maxPerLesson = 5
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Retriever{provider: p, logger: logger, maxPerLesson: maxPerLesson, timeout: timeout}
}

// Execute fetches references for every lesson of the draft and returns
// an enriched copy. The draft in the task is never mutated.
func (r *Retriever) Execute(ctx context.Context, task envelope.Task) envelope.Result {
	start := time.Now()

	if err := requireKind(task, envelope.KindResearchTopic); err != nil {
		return envelope.Fatal(task.TaskID, envelope.ClassInternal, err, time.Since(start))
	}

	draft := task.Payload.Draft

	var topics strings.Builder
	for i := range draft.Lessons {
		l := &draft.Lessons[i]
		fmt.Fprintf(&topics, "- lesson_id %s: %s", l.LessonID, l.Title)
		if len(l.Objectives) > 0 {
			fmt.Fprintf(&topics, " (objectives: %s)", strings.Join(l.Objectives, "; "))
		}
		topics.WriteByte('\n')
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	resp, err := r.provider.Infer(callCtx, provider.Request{
		System: retrieverRole,
		Instruction: fmt.Sprintf("%s\n\nFind external resources for these lessons:\n%s",
			instructionPreamble(task), topics.String()),
		Schema: resourcesSchema,
	})
	if err != nil {
		return fromProviderError(task.TaskID, err, time.Since(start))
	}

	var parsed struct {
		Resources map[string][]string `json:"resources"`
	}
	if err := decodeModelJSON(resp.Text, &parsed); err != nil {
		return envelope.Fatal(task.TaskID, envelope.ClassSchemaValidation, err, time.Since(start))
	}

	enriched := clonePlan(draft)
	total := 0
	for i := range enriched.Lessons {
		l := &enriched.Lessons[i]
		merged := mergeResources(l.ExternalResources, parsed.Resources[l.LessonID], r.maxPerLesson)
		total += len(merged) - len(l.ExternalResources)
		l.ExternalResources = merged
	}

	r.logger.Debug("resources retrieved",
		zap.String("task_id", task.TaskID),
		zap.String("plan_id", enriched.PlanID),
		zap.Int("added", total))

	res := envelope.Success(task.TaskID, time.Since(start))
	res.Plan = enriched
	return res
}

// mergeResources appends candidates to existing, deduplicating and
// dropping entries without a resolvable http(s) locator, bounded by max.
func mergeResources(existing, candidates []string, max int) []string {
	seen := make(map[string]bool, len(existing)+len(candidates))
	out := make([]string, 0, max)
	for _, lists := range [][]string{existing, candidates} {
		for _, raw := range lists {
			ref := strings.TrimSpace(raw)
			if ref == "" || seen[ref] || !resolvable(ref) {
				continue
			}
			if len(out) >= max {
				return out
			}
			seen[ref] = true
			out = append(out, ref)
		}
	}
	return out
}

// resolvable reports whether ref parses as an absolute http(s) URL.
func resolvable(ref string) bool {
	u, err := url.Parse(ref)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// clonePlan copies a plan deeply enough that lesson mutations do not
// alias the source.
func clonePlan(p *models.LessonPlan) *models.LessonPlan {
	out := *p
	out.Lessons = make([]models.Lesson, len(p.Lessons))
	copy(out.Lessons, p.Lessons)
	for i := range out.Lessons {
		if n := len(out.Lessons[i].ExternalResources); n > 0 {
			resources := make([]string, n)
			copy(resources, out.Lessons[i].ExternalResources)
			out.Lessons[i].ExternalResources = resources
		}
		if n := len(out.Lessons[i].Objectives); n > 0 {
			objectives := make([]string, n)
			copy(objectives, out.Lessons[i].Objectives)
			out.Lessons[i].Objectives = objectives
		}
	}
	return &out
}
