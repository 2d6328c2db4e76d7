// Package models defines the durable artifacts produced by the knowflow
// orchestration core: lesson plans and per-user knowledge graphs.
package models

import (
	"fmt"
	"sort"
	"time"
)

// PlanStatus represents the lifecycle state of a lesson plan.
type PlanStatus string

const (
	// PlanStatusActive indicates the plan is in active use.
	PlanStatusActive PlanStatus = "active"
	// PlanStatusArchived indicates the plan has been archived.
	PlanStatusArchived PlanStatus = "archived"
)

// Valid returns true if the status is a known value.
func (s PlanStatus) Valid() bool {
	switch s {
	case PlanStatusActive, PlanStatusArchived:
		return true
	default:
		return false
	}
}

// Lesson is one ordered unit of a lesson plan.
type Lesson struct {
	// LessonID is the unique identifier for this lesson.
	LessonID string `json:"lesson_id"`
	// Title is the short name of the lesson.
	Title string `json:"title"`
	// Objectives lists what the learner should be able to do afterwards.
	Objectives []string `json:"objectives,omitempty"`
	// Content is the lesson body.
	Content string `json:"content"`
	// ExternalResources holds supporting reference links, bounded by
	// the configured per-lesson maximum.
	ExternalResources []string `json:"external_resources,omitempty"`
	// Order is the zero-based position of the lesson within its plan.
	Order int `json:"order"`
}

// LessonPlan is a structured syllabus generated from a user prompt.
// A plan's PlanID is assigned exactly once and never reassigned; later
// revisions may only amend status, last_accessed, and the lesson set.
type LessonPlan struct {
	// UserID is the owner of the plan.
	UserID string `json:"user_id"`
	// PlanID is the unique identifier for the plan.
	PlanID string `json:"plan_id"`
	// Title is the plan title.
	Title string `json:"title"`
	// Description summarizes what the plan covers.
	Description string `json:"description,omitempty"`
	// CreatedAt is when the plan was first generated.
	CreatedAt time.Time `json:"created_at"`
	// LastAccessed is when the plan was last read or amended.
	LastAccessed time.Time `json:"last_accessed"`
	// Status is the lifecycle state of the plan.
	Status PlanStatus `json:"status"`
	// SourcePrompt is the original user prompt the plan was built from.
	SourcePrompt string `json:"source_prompt"`
	// Lessons is the ordered lesson sequence.
	Lessons []Lesson `json:"lessons"`
}

// Validate checks the structural invariants of the plan: required
// identifiers, a known status, at least one lesson, and a contiguous,
// duplicate-free lesson order 0..N-1.
func (p *LessonPlan) Validate() error {
	if p.UserID == "" {
		return fmt.Errorf("lesson plan missing user_id")
	}
	if p.PlanID == "" {
		return fmt.Errorf("lesson plan missing plan_id")
	}
	if p.Title == "" {
		return fmt.Errorf("lesson plan missing title")
	}
	if !p.Status.Valid() {
		return fmt.Errorf("lesson plan has unknown status %q", p.Status)
	}
	if len(p.Lessons) == 0 {
		return fmt.Errorf("lesson plan has no lessons")
	}
	seen := make(map[int]bool, len(p.Lessons))
	for i := range p.Lessons {
		l := &p.Lessons[i]
		if l.LessonID == "" {
			return fmt.Errorf("lesson %d missing lesson_id", i)
		}
		if l.Title == "" {
			return fmt.Errorf("lesson %s missing title", l.LessonID)
		}
		if l.Order < 0 || l.Order >= len(p.Lessons) {
			return fmt.Errorf("lesson %s order %d outside 0..%d", l.LessonID, l.Order, len(p.Lessons)-1)
		}
		if seen[l.Order] {
			return fmt.Errorf("duplicate lesson order %d", l.Order)
		}
		seen[l.Order] = true
	}
	return nil
}

// NormalizeOrder sorts lessons by their current order and rewrites the
// order values to a contiguous 0..N-1 sequence. Generators call this
// before validation so gaps or duplicates from model output do not
// survive into storage.
func (p *LessonPlan) NormalizeOrder() {
	sort.SliceStable(p.Lessons, func(i, j int) bool {
		return p.Lessons[i].Order < p.Lessons[j].Order
	})
	for i := range p.Lessons {
		p.Lessons[i].Order = i
	}
}

// TruncateLessons drops lessons beyond max, keeping the leading sequence.
// A non-positive max leaves the plan unchanged.
func (p *LessonPlan) TruncateLessons(max int) {
	if max <= 0 || len(p.Lessons) <= max {
		return
	}
	p.NormalizeOrder()
	p.Lessons = p.Lessons[:max]
}

// ContentLength returns the total rune-counted length of all lesson
// content, used by quality scoring.
func (p *LessonPlan) ContentLength() int {
	total := 0
	for i := range p.Lessons {
		total += len([]rune(p.Lessons[i].Content))
	}
	return total
}
