package graph

import (
	"context"

	"github.com/supportkg/pkg/models"
)

// Store defines operations against the dual-level knowledge graph. The
// tree builder and the linker are the only writers; query-time callers
// only read.
type Store interface {
	// UpsertTicketTree replaces the ticket's intra-issue tree
	// atomically. Re-ingesting a ticket replaces the prior version.
	UpsertTicketTree(ctx context.Context, t *models.Ticket) error

	// UpsertEdges writes inter-issue edges as idempotent upserts keyed
	// by (source, target, kind), so concurrent retries are safe.
	UpsertEdges(ctx context.Context, edges []models.Edge) error

	// DeleteTicketEdges removes all derived edges touching the ticket,
	// used before the linker recomputes them.
	DeleteTicketEdges(ctx context.Context, ticketID string) error

	// GetTickets loads whole trees for the given ticket ids. Unknown
	// ids are skipped, not errors.
	GetTickets(ctx context.Context, ids []string) ([]models.Ticket, error)

	// GetEdges returns the inter-issue edges between any two tickets in
	// ids.
	GetEdges(ctx context.Context, ids []string) ([]models.Edge, error)

	// TicketExists reports whether a ticket root is present.
	TicketExists(ctx context.Context, id string) (bool, error)

	// FindReferencingTickets returns ids of tickets whose text contains
	// ticketID. Rebuilding a ticket drops every edge touching it, so the
	// linker uses this to re-derive references held by older tickets.
	// Matching is substring-based; callers confirm a literal mention.
	FindReferencingTickets(ctx context.Context, ticketID string) ([]string, error)

	// ListTicketIDs returns every ticket id in the corpus, ordered.
	ListTicketIDs(ctx context.Context) ([]string, error)

	// RunTraversal executes a parameterized traversal produced by the
	// query synthesizer. Queries referencing unknown node or edge types
	// are rejected with an error, never silently empty.
	RunTraversal(ctx context.Context, q TraversalQuery) (*TraversalResult, error)

	// ExpandTickets walks inter-issue edges from the seed tickets up to
	// hops away and returns the reachable ticket ids (seeds included).
	ExpandTickets(ctx context.Context, seeds []string, hops int) ([]string, error)

	// Stats returns corpus-level counts for the stats endpoint.
	Stats(ctx context.Context) (Stats, error)

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// TraversalQuery is a parameterized Cypher traversal
type TraversalQuery struct {
	Cypher string                 `json:"cypher"`
	Params map[string]interface{} `json:"params"`
	Limit  int                    `json:"limit"`
}

// TraversalRow is one matched node on a returned path
type TraversalRow struct {
	TicketID    string             `json:"ticket_id"`
	NodeID      string             `json:"node_id"`
	SectionType models.SectionType `json:"section_type"`
	Value       string             `json:"value"`
}

// TraversalResult is the set of paths a traversal returned
type TraversalResult struct {
	Rows []TraversalRow `json:"rows"`
}

// TicketIDs returns the distinct ticket ids across all rows
func (r *TraversalResult) TicketIDs() []string {
	seen := make(map[string]bool, len(r.Rows))
	var out []string
	for _, row := range r.Rows {
		if row.TicketID != "" && !seen[row.TicketID] {
			seen[row.TicketID] = true
			out = append(out, row.TicketID)
		}
	}
	return out
}

// Stats holds corpus-level graph counts
type Stats struct {
	Tickets       int64 `json:"tickets"`
	Nodes         int64 `json:"nodes"`
	Relationships int64 `json:"relationships"`
	ExplicitEdges int64 `json:"explicit_edges"`
	ImplicitEdges int64 `json:"implicit_edges"`
}
