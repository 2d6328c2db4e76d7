package worker

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/knowflow/knowflow/internal/envelope"
	"github.com/knowflow/knowflow/internal/provider"
	"github.com/knowflow/knowflow/pkg/models"
)

func draftPlan() *models.LessonPlan {
	return &models.LessonPlan{
		UserID: "u1",
		PlanID: "p1",
		Title:  "Networking",
		Status: models.PlanStatusActive,
		Lessons: []models.Lesson{
			{LessonID: "l1", Title: "TCP", Order: 0, ExternalResources: []string{"https://existing.example/tcp"}},
			{LessonID: "l2", Title: "UDP", Order: 1},
		},
	}
}

func researchTask(draft *models.LessonPlan) envelope.Task {
	return envelope.NewTask(envelope.KindResearchTopic, "u1", "teach me networking",
		"find resources", envelope.Payload{Draft: draft}, nil)
}

func TestRetrieverMergesAndFiltersResources(t *testing.T) {
	modelOut := `{"resources": {
		"l1": ["https://a.example/1", "https://a.example/1", "ftp://bad.example/x", "not a url", "https://a.example/2"],
		"l2": ["http://b.example/1"],
		"unknown-lesson": ["https://c.example/1"]
	}}`
	p := &fakeProvider{resp: provider.Response{Text: modelOut}}
	r := NewRetriever(p, nil, 5, time.Minute)

	draft := draftPlan()
	res := r.Execute(context.Background(), researchTask(draft))
	if res.Status != envelope.StatusSuccess {
		t.Fatalf("status = %s, err = %v", res.Status, res.Err)
	}

	want := []string{"https://existing.example/tcp", "https://a.example/1", "https://a.example/2"}
	if got := res.Plan.Lessons[0].ExternalResources; !reflect.DeepEqual(got, want) {
		t.Errorf("l1 resources = %v, want %v", got, want)
	}
	if got := res.Plan.Lessons[1].ExternalResources; !reflect.DeepEqual(got, []string{"http://b.example/1"}) {
		t.Errorf("l2 resources = %v", got)
	}
}

func TestRetrieverClampsPerLesson(t *testing.T) {
	modelOut := `{"resources": {"l1": [
		"https://x.example/1", "https://x.example/2", "https://x.example/3", "https://x.example/4"
	]}}`
	p := &fakeProvider{resp: provider.Response{Text: modelOut}}
	r := NewRetriever(p, nil, 2, time.Minute)

	res := r.Execute(context.Background(), researchTask(draftPlan()))
	if res.Status != envelope.StatusSuccess {
		t.Fatalf("status = %s, err = %v", res.Status, res.Err)
	}
	if got := len(res.Plan.Lessons[0].ExternalResources); got != 2 {
		t.Errorf("l1 resources = %d, want 2", got)
	}
}

func TestRetrieverDoesNotMutateDraft(t *testing.T) {
	modelOut := `{"resources": {"l2": ["https://b.example/1"]}}`
	p := &fakeProvider{resp: provider.Response{Text: modelOut}}
	r := NewRetriever(p, nil, 5, time.Minute)

	draft := draftPlan()
	res := r.Execute(context.Background(), researchTask(draft))
	if res.Status != envelope.StatusSuccess {
		t.Fatalf("status = %s, err = %v", res.Status, res.Err)
	}
	if len(draft.Lessons[1].ExternalResources) != 0 {
		t.Errorf("draft mutated: %v", draft.Lessons[1].ExternalResources)
	}
	if res.Plan == draft {
		t.Error("result aliases the draft")
	}
}

func TestRetrieverProviderTimeoutIsRetryable(t *testing.T) {
	p := &fakeProvider{err: &provider.Error{Kind: provider.KindTimeout, Backend: "fake"}}
	r := NewRetriever(p, nil, 5, time.Minute)
	res := r.Execute(context.Background(), researchTask(draftPlan()))
	if res.Status != envelope.StatusRetryableFailure {
		t.Errorf("status = %s, want retryable_failure", res.Status)
	}
	if res.Class != envelope.ClassTransientProvider {
		t.Errorf("class = %s, want transient_provider", res.Class)
	}
}

func TestRetrieverMalformedOutputIsFatal(t *testing.T) {
	p := &fakeProvider{resp: provider.Response{Text: "resources: none"}}
	r := NewRetriever(p, nil, 5, time.Minute)
	res := r.Execute(context.Background(), researchTask(draftPlan()))
	if res.Status != envelope.StatusFatalFailure || res.Class != envelope.ClassSchemaValidation {
		t.Errorf("status = %s class = %s, want fatal schema_validation", res.Status, res.Class)
	}
}
