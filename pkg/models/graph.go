package models

import (
	"fmt"
	"time"
)

// RelationshipType classifies the edge between two concepts.
type RelationshipType string

const (
	// RelatedTo links two concepts that share context.
	RelatedTo RelationshipType = "related_to"
	// PrerequisiteFor marks the source concept as required before the target.
	PrerequisiteFor RelationshipType = "prerequisite_for"
	// PartOf marks the source concept as a component of the target.
	PartOf RelationshipType = "part_of"
)

// Valid returns true if the relationship type is a known value.
func (r RelationshipType) Valid() bool {
	switch r {
	case RelatedTo, PrerequisiteFor, PartOf:
		return true
	default:
		return false
	}
}

// ConceptNode is a single concept in a user's knowledge graph.
type ConceptNode struct {
	// ConceptID is the unique identifier for this concept.
	ConceptID string `json:"concept_id"`
	// Name is the concept name.
	Name string `json:"name"`
	// Description summarizes the concept.
	Description string `json:"description,omitempty"`
	// MasteryLevel is the learner's mastery, 0-100.
	MasteryLevel int `json:"mastery_level"`
	// LastReviewed is when the concept was last reviewed.
	LastReviewed time.Time `json:"last_reviewed"`
	// NextReview is when the concept is next due for review.
	NextReview time.Time `json:"next_review"`
	// SourceLessonID weakly references the lesson the concept came from.
	// It is lookup metadata only; the graph does not own the lesson.
	SourceLessonID string `json:"source_lesson_id,omitempty"`
}

// ConceptEdge is a typed relationship between two concepts in the same graph.
type ConceptEdge struct {
	// EdgeID is the unique identifier for this edge.
	EdgeID string `json:"edge_id"`
	// SourceConceptID is the concept the edge starts from.
	SourceConceptID string `json:"source_concept_id"`
	// TargetConceptID is the concept the edge points to.
	TargetConceptID string `json:"target_concept_id"`
	// RelationshipType classifies the edge.
	RelationshipType RelationshipType `json:"relationship_type"`
}

// KnowledgeGraph is the single per-user graph document. It is updated by
// merge: existing nodes and edges survive unless superseded by an entry
// carrying the same id.
type KnowledgeGraph struct {
	// UserID is the owner of the graph.
	UserID string `json:"user_id"`
	// Nodes is the concept set, keyed logically by ConceptID.
	Nodes []ConceptNode `json:"nodes"`
	// Edges is the relationship set, keyed logically by EdgeID.
	Edges []ConceptEdge `json:"edges"`
	// UpdatedAt is when the graph was last merged.
	UpdatedAt time.Time `json:"updated_at"`
}

// NewKnowledgeGraph returns an empty graph for the given user.
func NewKnowledgeGraph(userID string) *KnowledgeGraph {
	return &KnowledgeGraph{UserID: userID}
}

// Node returns the node with the given concept id, or nil.
func (g *KnowledgeGraph) Node(conceptID string) *ConceptNode {
	for i := range g.Nodes {
		if g.Nodes[i].ConceptID == conceptID {
			return &g.Nodes[i]
		}
	}
	return nil
}

// Validate checks graph invariants: unique node ids, mastery within
// [0,100], known relationship types, and edge endpoints that resolve to
// nodes present in this graph.
func (g *KnowledgeGraph) Validate() error {
	if g.UserID == "" {
		return fmt.Errorf("knowledge graph missing user_id")
	}
	ids := make(map[string]bool, len(g.Nodes))
	for i := range g.Nodes {
		n := &g.Nodes[i]
		if n.ConceptID == "" {
			return fmt.Errorf("node %d missing concept_id", i)
		}
		if ids[n.ConceptID] {
			return fmt.Errorf("duplicate concept_id %s", n.ConceptID)
		}
		ids[n.ConceptID] = true
		if n.Name == "" {
			return fmt.Errorf("node %s missing name", n.ConceptID)
		}
		if n.MasteryLevel < 0 || n.MasteryLevel > 100 {
			return fmt.Errorf("node %s mastery_level %d outside 0..100", n.ConceptID, n.MasteryLevel)
		}
	}
	edgeIDs := make(map[string]bool, len(g.Edges))
	for i := range g.Edges {
		e := &g.Edges[i]
		if e.EdgeID == "" {
			return fmt.Errorf("edge %d missing edge_id", i)
		}
		if edgeIDs[e.EdgeID] {
			return fmt.Errorf("duplicate edge_id %s", e.EdgeID)
		}
		edgeIDs[e.EdgeID] = true
		if !e.RelationshipType.Valid() {
			return fmt.Errorf("edge %s has unknown relationship_type %q", e.EdgeID, e.RelationshipType)
		}
		if !ids[e.SourceConceptID] {
			return fmt.Errorf("edge %s source %s not in graph", e.EdgeID, e.SourceConceptID)
		}
		if !ids[e.TargetConceptID] {
			return fmt.Errorf("edge %s target %s not in graph", e.EdgeID, e.TargetConceptID)
		}
	}
	return nil
}

// Merge applies a fragment to the graph in place. Nodes and edges from
// the fragment replace existing entries with the same id; everything
// else in the receiver is preserved. Merge never removes entries.
func (g *KnowledgeGraph) Merge(fragment *KnowledgeGraph) {
	if fragment == nil {
		return
	}
	nodeIdx := make(map[string]int, len(g.Nodes))
	for i := range g.Nodes {
		nodeIdx[g.Nodes[i].ConceptID] = i
	}
	for _, n := range fragment.Nodes {
		if i, ok := nodeIdx[n.ConceptID]; ok {
			g.Nodes[i] = n
		} else {
			nodeIdx[n.ConceptID] = len(g.Nodes)
			g.Nodes = append(g.Nodes, n)
		}
	}
	edgeIdx := make(map[string]int, len(g.Edges))
	for i := range g.Edges {
		edgeIdx[g.Edges[i].EdgeID] = i
	}
	for _, e := range fragment.Edges {
		if i, ok := edgeIdx[e.EdgeID]; ok {
			g.Edges[i] = e
		} else {
			edgeIdx[e.EdgeID] = len(g.Edges)
			g.Edges = append(g.Edges, e)
		}
	}
	if fragment.UpdatedAt.After(g.UpdatedAt) {
		g.UpdatedAt = fragment.UpdatedAt
	}
}
