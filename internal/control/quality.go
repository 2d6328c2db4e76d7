package control

import "github.com/knowflow/knowflow/pkg/models"

// Scorer computes the advisory quality score of a finished lesson plan.
// The score is metadata on the outcome, never a persistence gate.
type Scorer struct {
	// FirstThreshold is the content length that earns the first bonus.
	FirstThreshold int
	// SecondThreshold is the larger content length that earns the
	// additional bonus.
	SecondThreshold int
}

// NewScorer returns a scorer with the default length thresholds.
func NewScorer() *Scorer {
	return &Scorer{FirstThreshold: 600, SecondThreshold: 2400}
}

// Score rates a plan's shape deterministically: base 0.5, +0.2 past the
// first content-length threshold, +0.1 past the second, +0.2 when the
// artifact is schema-conformant, clamped to [0,1].
func (s *Scorer) Score(plan *models.LessonPlan) float64 {
	if plan == nil {
		return 0
	}
	score := 0.5
	length := plan.ContentLength()
	if length > s.FirstThreshold {
		score += 0.2
	}
	if length > s.SecondThreshold {
		score += 0.1
	}
	if plan.Validate() == nil {
		score += 0.2
	}
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score
}
