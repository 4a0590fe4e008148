package models

import (
	"time"
)

// Intent represents the detected intent of a customer query
type Intent string

const (
	IntentTroubleshooting Intent = "troubleshooting"
	IntentFeatureRequest  Intent = "feature_request"
	IntentBugReport       Intent = "bug_report"
	IntentGeneralInquiry  Intent = "general_inquiry"
)

// EntityMention is one entity extracted from a query string. Ephemeral,
// scoped to the query that produced it.
type EntityMention struct {
	SectionTypeGuess string  `json:"section_type_guess"`
	SurfaceValue     string  `json:"surface_value"`
	Confidence       float64 `json:"confidence"`
}

// MatchSource records how a node entered the candidate set
type MatchSource string

const (
	// MatchVector means the node survived the vector-search shortlist
	MatchVector MatchSource = "vector"
	// MatchEntity means the node matched an entity mention by value/type
	MatchEntity MatchSource = "entity"
	// MatchTraversal means the node was pulled in as a graph hop only.
	// Traversal-only nodes provide context but carry no similarity signal.
	MatchTraversal MatchSource = "traversal"
)

// MatchedNode is a node in a candidate subgraph together with its match
// provenance and similarity to the query
type MatchedNode struct {
	Key        NodeKey     `json:"key"`
	Section    SectionType `json:"section_type"`
	Value      string      `json:"value"`
	Source     MatchSource `json:"source"`
	Similarity float64     `json:"similarity"`
}

// CandidateSubgraph is the bounded node/edge set retrieved for one query.
// Owned by that query's lifecycle and discarded after scoring.
type CandidateSubgraph struct {
	Tickets []Ticket                `json:"tickets"`
	Edges   []Edge                  `json:"edges"`
	Matched map[string][]MatchedNode `json:"matched"` // ticket ID -> matched nodes
	Partial bool                    `json:"partial"` // true when one retrieval leg was degraded away
}

// Empty reports whether the subgraph carries no evidence at all. An empty
// subgraph is a valid terminal state, not an error.
func (s *CandidateSubgraph) Empty() bool {
	return len(s.Tickets) == 0
}

// TicketScore is the aggregate relevance of one ticket within a query's
// candidate subgraph
type TicketScore struct {
	TicketID     string        `json:"ticket_id"`
	Score        float64       `json:"score"`
	MatchedNodes []MatchedNode `json:"matched_nodes"`
	UpdatedAt    time.Time     `json:"-"`
}

// EvidenceTicket is one ticket's contribution to the assembled context
type EvidenceTicket struct {
	TicketID   string   `json:"ticket_id"`
	Title      string   `json:"title"`
	Resolution string   `json:"resolution,omitempty"`
	Score      float64  `json:"score"`
	Highlights []string `json:"highlights,omitempty"`
	Excerpts   []string `json:"excerpts,omitempty"`
	Truncated  bool     `json:"truncated,omitempty"`
}

// EvidenceContext is the ordered evidence handed to answer generation
type EvidenceContext struct {
	Query   string           `json:"query"`
	Intent  Intent           `json:"intent"`
	Tickets []EvidenceTicket `json:"tickets"`
	Chars   int              `json:"chars"`
	Stale   bool             `json:"stale,omitempty"`
}

// RetrievalResult is what the engine's Retrieve entry point returns
type RetrievalResult struct {
	Ranked  []TicketScore   `json:"ranked"`
	Context EvidenceContext `json:"context"`
	Partial bool            `json:"partial,omitempty"`
}
