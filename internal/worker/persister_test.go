package worker

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/knowflow/knowflow/internal/envelope"
	"github.com/knowflow/knowflow/internal/store"
	"github.com/knowflow/knowflow/pkg/models"
)

func seedUser(t *testing.T, g *memGateway, userID string) {
	t.Helper()
	profile, _ := json.Marshal(map[string]string{"user_id": userID})
	if _, err := g.Upsert(context.Background(), store.UsersCollection, userID, profile, store.AnyVersion); err != nil {
		t.Fatalf("seeding user: %v", err)
	}
}

func writePlanTask(plan *models.LessonPlan) envelope.Task {
	return envelope.NewTask(envelope.KindWritePlan, plan.UserID, plan.SourcePrompt,
		"persist the plan", envelope.Payload{Draft: plan}, nil)
}

func TestPlanPersisterWritesPlan(t *testing.T) {
	gw := newMemGateway()
	seedUser(t, gw, "u1")
	w := NewPlanPersister(gw, nil, 0)

	plan := draftPlan()
	res := w.Execute(context.Background(), writePlanTask(plan))
	if res.Status != envelope.StatusSuccess {
		t.Fatalf("status = %s, err = %v", res.Status, res.Err)
	}
	if res.Ack == nil {
		t.Fatal("no write ack")
	}
	wantCollection := store.PlansCollection("u1")
	if res.Ack.Collection != wantCollection || res.Ack.Key != "p1" || res.Ack.Version != 1 {
		t.Errorf("ack = %+v", res.Ack)
	}

	doc, err := gw.Get(context.Background(), wantCollection, "p1")
	if err != nil {
		t.Fatalf("stored plan missing: %v", err)
	}
	var stored models.LessonPlan
	if err := doc.Decode(&stored); err != nil {
		t.Fatalf("decoding stored plan: %v", err)
	}
	if stored.PlanID != "p1" || len(stored.Lessons) != 2 {
		t.Errorf("stored plan = %+v", stored)
	}
	if stored.LastAccessed.IsZero() {
		t.Error("last_accessed not stamped")
	}
}

func TestPlanPersisterRewriteKeepsOneDocument(t *testing.T) {
	gw := newMemGateway()
	seedUser(t, gw, "u1")
	w := NewPlanPersister(gw, nil, 0)

	plan := draftPlan()
	if res := w.Execute(context.Background(), writePlanTask(plan)); res.Status != envelope.StatusSuccess {
		t.Fatalf("first write: %v", res.Err)
	}
	res := w.Execute(context.Background(), writePlanTask(plan))
	if res.Status != envelope.StatusSuccess {
		t.Fatalf("second write: %v", res.Err)
	}
	if res.Ack.Version != 2 {
		t.Errorf("version = %d, want 2", res.Ack.Version)
	}
	docs, err := gw.Query(context.Background(), store.PlansCollection("u1"), store.Filter{}, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 {
		t.Errorf("documents = %d, want 1", len(docs))
	}
}

func TestPlanPersisterUnknownUserIsFatal(t *testing.T) {
	w := NewPlanPersister(newMemGateway(), nil, 0)
	res := w.Execute(context.Background(), writePlanTask(draftPlan()))
	if res.Status != envelope.StatusFatalFailure {
		t.Fatalf("status = %s, want fatal_failure", res.Status)
	}
	if res.Class != envelope.ClassUnauthorized {
		t.Errorf("class = %s, want unauthorized", res.Class)
	}
}

func TestPlanPersisterInvalidPlanIsFatal(t *testing.T) {
	gw := newMemGateway()
	seedUser(t, gw, "u1")
	w := NewPlanPersister(gw, nil, 0)

	plan := draftPlan()
	plan.Lessons = nil
	res := w.Execute(context.Background(), writePlanTask(plan))
	if res.Status != envelope.StatusFatalFailure || res.Class != envelope.ClassSchemaValidation {
		t.Errorf("status = %s class = %s, want fatal schema_validation", res.Status, res.Class)
	}
	if gw.upserts != 1 {
		t.Errorf("upserts = %d, want 1 (user seed only)", gw.upserts)
	}
}

// deadlineGateway records whether each store call arrived with a
// deadline on its context.
type deadlineGateway struct {
	*memGateway
	getDeadline    bool
	upsertDeadline bool
}

func (g *deadlineGateway) Get(ctx context.Context, collection, key string) (store.Document, error) {
	_, g.getDeadline = ctx.Deadline()
	return g.memGateway.Get(ctx, collection, key)
}

func (g *deadlineGateway) Upsert(ctx context.Context, collection, key string, data json.RawMessage, expected int64) (int64, error) {
	_, g.upsertDeadline = ctx.Deadline()
	return g.memGateway.Upsert(ctx, collection, key, data, expected)
}

func TestPlanPersisterBoundsStoreCalls(t *testing.T) {
	gw := &deadlineGateway{memGateway: newMemGateway()}
	seedUser(t, gw.memGateway, "u1")
	w := NewPlanPersister(gw, nil, 0)

	res := w.Execute(context.Background(), writePlanTask(draftPlan()))
	if res.Status != envelope.StatusSuccess {
		t.Fatalf("status = %s, err = %v", res.Status, res.Err)
	}
	if !gw.getDeadline {
		t.Error("read reached the store without a deadline")
	}
	if !gw.upsertDeadline {
		t.Error("write reached the store without a deadline")
	}
}

func TestGraphPersisterBoundsStoreCalls(t *testing.T) {
	gw := &deadlineGateway{memGateway: newMemGateway()}
	w := NewGraphPersister(gw, nil, 0)

	fragment := models.NewKnowledgeGraph("u1")
	fragment.Nodes = []models.ConceptNode{{ConceptID: "tcp", Name: "TCP"}}

	res := w.Execute(context.Background(), writeGraphTask("u1", fragment))
	if res.Status != envelope.StatusSuccess {
		t.Fatalf("status = %s, err = %v", res.Status, res.Err)
	}
	if !gw.getDeadline || !gw.upsertDeadline {
		t.Errorf("deadlines: get = %v, upsert = %v, want both true", gw.getDeadline, gw.upsertDeadline)
	}
}

func TestPlanPersisterUserMismatchIsFatal(t *testing.T) {
	gw := newMemGateway()
	seedUser(t, gw, "u2")
	w := NewPlanPersister(gw, nil, 0)

	plan := draftPlan()
	task := envelope.NewTask(envelope.KindWritePlan, "u2", "x", "persist",
		envelope.Payload{Draft: plan}, nil)
	res := w.Execute(context.Background(), task)
	if res.Status != envelope.StatusFatalFailure || res.Class != envelope.ClassUnauthorized {
		t.Errorf("status = %s class = %s, want fatal unauthorized", res.Status, res.Class)
	}
}
