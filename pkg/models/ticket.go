package models

import (
	"time"
)

// SectionType represents the type of a node in a ticket's intra-issue tree
type SectionType string

const (
	SectionRoot        SectionType = "root"
	SectionDescription SectionType = "description"
	SectionComment     SectionType = "comment"
	SectionResolution  SectionType = "resolution"
	SectionEntity      SectionType = "entity"
	SectionTag         SectionType = "tag"
	SectionStatus      SectionType = "status"
	SectionPriority    SectionType = "priority"
)

// ValidSectionTypes lists every section type a tree node may carry
var ValidSectionTypes = []SectionType{
	SectionRoot,
	SectionDescription,
	SectionComment,
	SectionResolution,
	SectionEntity,
	SectionTag,
	SectionStatus,
	SectionPriority,
}

// IsValidSectionType reports whether t is a known section type
func IsValidSectionType(t SectionType) bool {
	for _, v := range ValidSectionTypes {
		if v == t {
			return true
		}
	}
	return false
}

// Comment represents one comment on a raw ticket, ordered by timestamp
type Comment struct {
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// ExtractedEntity represents one entity mention attached to a ticket by the
// ingestion pipeline, with the extractor's confidence
type ExtractedEntity struct {
	Type       string  `json:"type"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// RawTicket is the parsed ticket record handed to the tree builder. It is
// owned by the ingestion pipeline and treated as immutable here.
type RawTicket struct {
	TicketID    string            `json:"ticket_id"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Comments    []Comment         `json:"comments,omitempty"`
	Resolution  string            `json:"resolution,omitempty"`
	Status      string            `json:"status,omitempty"`
	Priority    string            `json:"priority,omitempty"`
	Product     string            `json:"product,omitempty"`
	Tags        []string          `json:"tags,omitempty"`
	Entities    []ExtractedEntity `json:"entities,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Node is one element of a ticket's intra-issue tree. NodeID is unique
// within its ticket; every node except the root has exactly one parent.
type Node struct {
	NodeID      string      `json:"node_id"`
	TicketID    string      `json:"ticket_id"`
	SectionType SectionType `json:"section_type"`
	Value       string      `json:"value"`
	// EntityType is the extractor's category (product, error, action,
	// root-cause, ...) and is set only on entity nodes.
	EntityType  string  `json:"entity_type,omitempty"`
	Confidence  float64 `json:"confidence,omitempty"`
	EmbeddingID string  `json:"embedding_id,omitempty"`
}

// NodeKey identifies a node across the whole corpus
type NodeKey struct {
	TicketID string `json:"ticket_id"`
	NodeID   string `json:"node_id"`
}

// Ticket is a ticket with its built intra-issue tree. Nodes are stored in
// an arena slice; Parents maps a node's arena index to its parent's index
// (-1 for the root). Storing indexes instead of embedded references keeps
// the structure acyclic by construction.
type Ticket struct {
	TicketID  string    `json:"ticket_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Nodes     []Node    `json:"nodes"`
	Parents   []int     `json:"parents"`
}

// Root returns the ticket's root node
func (t *Ticket) Root() *Node {
	for i := range t.Nodes {
		if t.Parents[i] < 0 {
			return &t.Nodes[i]
		}
	}
	return nil
}

// NodeByID returns the node with the given id, or nil
func (t *Ticket) NodeByID(nodeID string) *Node {
	for i := range t.Nodes {
		if t.Nodes[i].NodeID == nodeID {
			return &t.Nodes[i]
		}
	}
	return nil
}

// NodesOfType returns all nodes carrying the given section type
func (t *Ticket) NodesOfType(st SectionType) []Node {
	var out []Node
	for _, n := range t.Nodes {
		if n.SectionType == st {
			out = append(out, n)
		}
	}
	return out
}
