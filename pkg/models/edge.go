package models

import (
	"fmt"
)

// EdgeKind represents the kind of inter-issue edge
type EdgeKind string

const (
	// EdgeExplicitReference links a ticket to one it literally mentions.
	// Direction is preserved and the weight is always 1.0.
	EdgeExplicitReference EdgeKind = "EXPLICIT_REFERENCE"

	// EdgeImplicitSimilar links tickets whose embeddings are similar.
	// Undirected; the weight is the cosine similarity in [0,1].
	EdgeImplicitSimilar EdgeKind = "IMPLICIT_SIMILAR"
)

// Edge is a relation between the root nodes of two distinct tickets.
// Edges are derived data: the linker recomputes them, nothing hand-edits
// them.
type Edge struct {
	SourceTicket string   `json:"source_ticket"`
	TargetTicket string   `json:"target_ticket"`
	Kind         EdgeKind `json:"kind"`
	Weight       float64  `json:"weight"`
}

// Key returns the idempotent upsert key (source, target, kind). Implicit
// edges are undirected, so endpoints are ordered lexically to give both
// directions the same key.
func (e Edge) Key() string {
	src, dst := e.SourceTicket, e.TargetTicket
	if e.Kind == EdgeImplicitSimilar && dst < src {
		src, dst = dst, src
	}
	return fmt.Sprintf("%s|%s|%s", src, dst, e.Kind)
}

// Validate checks the edge invariants
func (e Edge) Validate() error {
	if e.SourceTicket == "" || e.TargetTicket == "" {
		return fmt.Errorf("edge endpoints must be non-empty")
	}
	if e.SourceTicket == e.TargetTicket {
		return fmt.Errorf("edge %s connects a ticket to itself", e.Key())
	}
	switch e.Kind {
	case EdgeExplicitReference:
		if e.Weight != 1.0 {
			return fmt.Errorf("explicit reference edge %s must carry weight 1.0, got %g", e.Key(), e.Weight)
		}
	case EdgeImplicitSimilar:
		if e.Weight < 0 || e.Weight > 1 {
			return fmt.Errorf("implicit edge %s weight %g outside [0,1]", e.Key(), e.Weight)
		}
	default:
		return fmt.Errorf("unknown edge kind %q", e.Kind)
	}
	return nil
}
