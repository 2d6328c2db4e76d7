package envelope

import (
	"testing"

	"github.com/knowflow/knowflow/pkg/models"
)

func draftPlan() *models.LessonPlan {
	return &models.LessonPlan{
		UserID: "u1",
		PlanID: "p1",
		Title:  "Test Plan",
		Status: models.PlanStatusActive,
		Lessons: []models.Lesson{
			{LessonID: "l1", Title: "Intro", Order: 0},
		},
	}
}

func TestNewTask_IDs(t *testing.T) {
	task := NewTask(KindGeneratePlan, "u1", "learn go", "generate a plan", Payload{}, nil)

	if task.TaskID == "" {
		t.Fatal("TaskID should be assigned")
	}
	if task.CorrelationID != task.TaskID {
		t.Error("CorrelationID should equal TaskID on a fresh task")
	}
	if task.Attempt != 0 {
		t.Errorf("Attempt = %d, want 0", task.Attempt)
	}
}

func TestTask_Retry(t *testing.T) {
	task := NewTask(KindGeneratePlan, "u1", "learn go", "generate a plan", Payload{}, nil)

	retry := task.Retry()

	if retry.TaskID == task.TaskID {
		t.Error("retry must get a fresh TaskID")
	}
	if retry.CorrelationID != task.CorrelationID {
		t.Error("retry must keep the correlation id")
	}
	if retry.Attempt != 1 {
		t.Errorf("retry Attempt = %d, want 1", retry.Attempt)
	}
	if retry.Kind != task.Kind || retry.UserID != task.UserID {
		t.Error("retry must preserve kind and user")
	}
}

func TestTask_Validate(t *testing.T) {
	tests := []struct {
		name    string
		task    Task
		wantErr bool
	}{
		{
			name: "valid generate_plan",
			task: NewTask(KindGeneratePlan, "u1", "learn go", "instr", Payload{}, nil),
		},
		{
			name:    "generate_plan without prompt",
			task:    NewTask(KindGeneratePlan, "u1", "", "instr", Payload{}, nil),
			wantErr: true,
		},
		{
			name: "valid research_topic",
			task: NewTask(KindResearchTopic, "u1", "learn go", "instr", Payload{Draft: draftPlan()}, nil),
		},
		{
			name:    "research_topic without draft",
			task:    NewTask(KindResearchTopic, "u1", "learn go", "instr", Payload{}, nil),
			wantErr: true,
		},
		{
			name: "valid write_plan",
			task: NewTask(KindWritePlan, "u1", "learn go", "instr", Payload{Draft: draftPlan()}, nil),
		},
		{
			name:    "write_plan without draft",
			task:    NewTask(KindWritePlan, "u1", "learn go", "instr", Payload{}, nil),
			wantErr: true,
		},
		{
			name: "valid generate_graph",
			task: NewTask(KindGenerateGraph, "u1", "learn go", "instr", Payload{PlanID: "p1", Plan: draftPlan()}, nil),
		},
		{
			name:    "generate_graph without plan_id",
			task:    NewTask(KindGenerateGraph, "u1", "learn go", "instr", Payload{Plan: draftPlan()}, nil),
			wantErr: true,
		},
		{
			name: "valid write_graph",
			task: NewTask(KindWriteGraph, "u1", "learn go", "instr", Payload{Fragment: models.NewKnowledgeGraph("u1")}, nil),
		},
		{
			name:    "write_graph without fragment",
			task:    NewTask(KindWriteGraph, "u1", "learn go", "instr", Payload{}, nil),
			wantErr: true,
		},
		{
			name:    "missing user",
			task:    NewTask(KindGeneratePlan, "", "learn go", "instr", Payload{}, nil),
			wantErr: true,
		},
		{
			name:    "unknown kind",
			task:    NewTask(Kind("refactor"), "u1", "learn go", "instr", Payload{}, nil),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.task.Validate()
			if tt.wantErr && err == nil {
				t.Error("Validate should have returned an error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Validate returned unexpected error: %v", err)
			}
		})
	}
}

func TestClass_ErrorClass(t *testing.T) {
	tests := []struct {
		class Class
		want  models.ErrorClass
	}{
		{ClassNone, models.ErrorClassNone},
		{ClassTransientProvider, models.ErrorClassTransientProvider},
		{ClassSchemaValidation, models.ErrorClassSchemaValidation},
		{ClassPersistenceConflict, models.ErrorClassPersistenceConflict},
		{ClassUnauthorized, models.ErrorClassUnauthorized},
		{ClassInternal, models.ErrorClassInternal},
		{Class("wat"), models.ErrorClassInternal},
	}

	for _, tt := range tests {
		if got := tt.class.ErrorClass(); got != tt.want {
			t.Errorf("ErrorClass(%q) = %q, want %q", tt.class, got, tt.want)
		}
	}
}
