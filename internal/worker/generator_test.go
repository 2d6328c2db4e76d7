package worker

import (
	"context"
	"testing"
	"time"

	"github.com/knowflow/knowflow/internal/envelope"
	"github.com/knowflow/knowflow/internal/provider"
	"github.com/knowflow/knowflow/pkg/models"
)

const planJSON = `{
  "title": "Intro to Compilers",
  "description": "A short course",
  "lessons": [
    {"title": "Lexing", "objectives": ["tokenize"], "content": "about lexing", "order": 2},
    {"title": "Parsing", "content": "about parsing", "order": 5}
  ]
}`

func generateTask(userID, prompt string) envelope.Task {
	return envelope.NewTask(envelope.KindGeneratePlan, userID, prompt,
		"build a lesson plan for: "+prompt, envelope.Payload{}, nil)
}

func TestPlanGeneratorStampsAndNormalizes(t *testing.T) {
	p := &fakeProvider{resp: provider.Response{Text: planJSON, InputTokens: 10, OutputTokens: 20}}
	g := NewPlanGenerator(p, nil, 10, time.Minute)
	g.newID = sequenceIDs()
	fixed := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return fixed }

	task := generateTask("u1", "teach me compilers")
	res := g.Execute(context.Background(), task)
	if res.Status != envelope.StatusSuccess {
		t.Fatalf("status = %s, err = %v", res.Status, res.Err)
	}
	plan := res.Plan
	if plan.UserID != "u1" {
		t.Errorf("user_id = %q, want u1", plan.UserID)
	}
	if plan.SourcePrompt != "teach me compilers" {
		t.Errorf("source_prompt = %q", plan.SourcePrompt)
	}
	if plan.Status != models.PlanStatusActive {
		t.Errorf("status = %q, want active", plan.Status)
	}
	if !plan.CreatedAt.Equal(fixed) || !plan.LastAccessed.Equal(fixed) {
		t.Errorf("timestamps not stamped: %v / %v", plan.CreatedAt, plan.LastAccessed)
	}
	if plan.PlanID == "" {
		t.Error("plan_id not assigned")
	}
	for i, l := range plan.Lessons {
		if l.LessonID == "" {
			t.Errorf("lesson %d missing id", i)
		}
		if l.Order != i {
			t.Errorf("lesson %d order = %d, want %d", i, l.Order, i)
		}
	}
	if plan.Lessons[0].Title != "Lexing" || plan.Lessons[1].Title != "Parsing" {
		t.Errorf("lesson order not preserved: %q, %q", plan.Lessons[0].Title, plan.Lessons[1].Title)
	}
	if err := plan.Validate(); err != nil {
		t.Errorf("generated plan invalid: %v", err)
	}
}

func TestPlanGeneratorKeepsCallerPlanID(t *testing.T) {
	modelOut := `{"title": "T", "plan_id": "model-chose-this", "lessons": [{"title": "L", "order": 0}]}`
	p := &fakeProvider{resp: provider.Response{Text: modelOut}}
	g := NewPlanGenerator(p, nil, 10, time.Minute)
	g.newID = sequenceIDs()

	task := generateTask("u1", "anything")
	task.Payload.PlanID = "caller-id"
	res := g.Execute(context.Background(), task)
	if res.Status != envelope.StatusSuccess {
		t.Fatalf("status = %s, err = %v", res.Status, res.Err)
	}
	if res.Plan.PlanID != "caller-id" {
		t.Errorf("plan_id = %q, want caller-id", res.Plan.PlanID)
	}
}

func TestPlanGeneratorKeepsModelPlanIDWhenUnset(t *testing.T) {
	modelOut := `{"title": "T", "plan_id": "model-chose-this", "lessons": [{"title": "L", "order": 0}]}`
	p := &fakeProvider{resp: provider.Response{Text: modelOut}}
	g := NewPlanGenerator(p, nil, 10, time.Minute)
	g.newID = sequenceIDs()

	res := g.Execute(context.Background(), generateTask("u1", "anything"))
	if res.Status != envelope.StatusSuccess {
		t.Fatalf("status = %s, err = %v", res.Status, res.Err)
	}
	if res.Plan.PlanID != "model-chose-this" {
		t.Errorf("plan_id = %q, want model-chose-this", res.Plan.PlanID)
	}
}

func TestPlanGeneratorTruncatesLessons(t *testing.T) {
	modelOut := `{"title": "Long", "lessons": [
		{"title": "A", "order": 0}, {"title": "B", "order": 1}, {"title": "C", "order": 2},
		{"title": "D", "order": 3}, {"title": "E", "order": 4}]}`
	p := &fakeProvider{resp: provider.Response{Text: modelOut}}
	g := NewPlanGenerator(p, nil, 3, time.Minute)
	g.newID = sequenceIDs()

	res := g.Execute(context.Background(), generateTask("u1", "x"))
	if res.Status != envelope.StatusSuccess {
		t.Fatalf("status = %s, err = %v", res.Status, res.Err)
	}
	if len(res.Plan.Lessons) != 3 {
		t.Fatalf("lessons = %d, want 3", len(res.Plan.Lessons))
	}
	if res.Plan.Lessons[0].Title != "A" || res.Plan.Lessons[2].Title != "C" {
		t.Errorf("truncate kept wrong lessons: %+v", res.Plan.Lessons)
	}
}

func TestPlanGeneratorProviderFailures(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus envelope.Status
		wantClass  envelope.Class
	}{
		{"rate limit retries", &provider.Error{Kind: provider.KindRateLimited, Backend: "fake"},
			envelope.StatusRetryableFailure, envelope.ClassTransientProvider},
		{"auth is fatal", &provider.Error{Kind: provider.KindAuth, Backend: "fake"},
			envelope.StatusFatalFailure, envelope.ClassUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewPlanGenerator(&fakeProvider{err: tt.err}, nil, 10, time.Minute)
			res := g.Execute(context.Background(), generateTask("u1", "x"))
			if res.Status != tt.wantStatus {
				t.Errorf("status = %s, want %s", res.Status, tt.wantStatus)
			}
			if res.Class != tt.wantClass {
				t.Errorf("class = %s, want %s", res.Class, tt.wantClass)
			}
		})
	}
}

func TestPlanGeneratorMalformedOutputIsFatal(t *testing.T) {
	p := &fakeProvider{resp: provider.Response{Text: "sorry, no JSON today"}}
	g := NewPlanGenerator(p, nil, 10, time.Minute)
	res := g.Execute(context.Background(), generateTask("u1", "x"))
	if res.Status != envelope.StatusFatalFailure {
		t.Fatalf("status = %s, want fatal_failure", res.Status)
	}
	if res.Class != envelope.ClassSchemaValidation {
		t.Errorf("class = %s, want schema_validation", res.Class)
	}
}

func TestPlanGeneratorRejectsWrongKind(t *testing.T) {
	g := NewPlanGenerator(&fakeProvider{}, nil, 10, time.Minute)
	task := envelope.NewTask(envelope.KindWriteGraph, "u1", "x", "y",
		envelope.Payload{Fragment: models.NewKnowledgeGraph("u1")}, nil)
	res := g.Execute(context.Background(), task)
	if res.Status != envelope.StatusFatalFailure || res.Class != envelope.ClassInternal {
		t.Errorf("status = %s class = %s, want fatal internal", res.Status, res.Class)
	}
}
