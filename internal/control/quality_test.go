package control

import (
	"strings"
	"testing"

	"github.com/knowflow/knowflow/pkg/models"
)

func scoredPlan(contentLen int) *models.LessonPlan {
	return &models.LessonPlan{
		UserID: "u1",
		PlanID: "p1",
		Title:  "Plan",
		Status: models.PlanStatusActive,
		Lessons: []models.Lesson{
			{LessonID: "l1", Title: "Lesson", Content: strings.Repeat("a", contentLen), Order: 0},
		},
	}
}

func TestScorer_Score(t *testing.T) {
	s := NewScorer()

	tests := []struct {
		name string
		plan *models.LessonPlan
		want float64
	}{
		{"nil plan", nil, 0},
		{"short valid plan", scoredPlan(10), 0.7},
		{"past first threshold", scoredPlan(s.FirstThreshold + 1), 0.9},
		{"past both thresholds", scoredPlan(s.SecondThreshold + 1), 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Score(tt.plan)
			if got != tt.want {
				t.Errorf("Score = %v, want %v", got, tt.want)
			}
			if got < 0 || got > 1 {
				t.Errorf("Score = %v outside [0,1]", got)
			}
		})
	}
}

func TestScorer_InvalidPlanLosesStructureBonus(t *testing.T) {
	s := NewScorer()
	p := scoredPlan(10)
	p.Lessons[0].Order = 5 // break the order invariant

	if got := s.Score(p); got != 0.5 {
		t.Errorf("Score = %v, want 0.5 (no structure bonus)", got)
	}
}

func TestScorer_LongInvalidPlanStillScored(t *testing.T) {
	// A low-quality or invalid shape still gets a score; scoring never
	// gates persistence.
	s := NewScorer()
	p := scoredPlan(s.SecondThreshold + 1)
	p.Lessons[0].LessonID = ""

	if got := s.Score(p); got != 0.8 {
		t.Errorf("Score = %v, want 0.8", got)
	}
}
