// Package synthesis turns entity mentions and detected intent into
// parameterized graph traversals.
package synthesis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/supportkg/internal/graph"
	"github.com/supportkg/pkg/logger"
	"github.com/supportkg/pkg/models"
)

// Error marks an invalid generated traversal. Never fatal: the
// synthesizer falls back to the default template instead of aborting
// the query.
type Error struct {
	Query  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("query synthesis rejected: %s", e.Reason)
}

// Assist is the capability interface for LLM-backed Cypher generation.
// A nil Assist leaves the synthesizer fully template-driven.
type Assist interface {
	SynthesizeCypher(ctx context.Context, query string, mentions []models.EntityMention, intent models.Intent) (string, error)
}

// Synthesizer builds traversal queries, preferring deterministic
// templates and reaching for the assist only when the mention set is
// too entangled for the template language.
type Synthesizer struct {
	assist Assist
	log    *slog.Logger
}

// New creates a synthesizer. assist may be nil.
func New(assist Assist) *Synthesizer {
	return &Synthesizer{assist: assist, log: logger.With("synthesis")}
}

// Synthesize produces a validated traversal for the query. The returned
// query always passes graph.ValidateTraversal: an assist output that
// does not is discarded with a logged synthesis error and the default
// two-hop template takes its place.
func (s *Synthesizer) Synthesize(ctx context.Context, queryText string, mentions []models.EntityMention, intent models.Intent, hops, limit int) graph.TraversalQuery {
	if s.assist != nil && needsAssist(mentions) {
		q, err := s.trySynthesize(ctx, queryText, mentions, intent, limit)
		if err == nil {
			return q
		}
		s.log.Warn("assist synthesis failed, falling back to template", "error", err)
	}

	q := typedTemplate(mentions, hops, limit)
	if err := graph.ValidateTraversal(q.Cypher); err != nil {
		// The typed template only narrows the default one; a schema
		// drift that breaks it would break both, but the default is
		// the documented floor.
		s.log.Error("typed template rejected", "error", err)
		return DefaultTemplate(mentions, hops, limit)
	}
	return q
}

// needsAssist reports whether the mention set expresses a multi-entity
// conjunction beyond what the union template states cleanly
func needsAssist(mentions []models.EntityMention) bool {
	types := map[string]bool{}
	for _, m := range mentions {
		if m.SectionTypeGuess != "" {
			types[m.SectionTypeGuess] = true
		}
	}
	return len(types) > 2
}

func (s *Synthesizer) trySynthesize(ctx context.Context, queryText string, mentions []models.EntityMention, intent models.Intent, limit int) (graph.TraversalQuery, error) {
	cypher, err := s.assist.SynthesizeCypher(ctx, queryText, mentions, intent)
	if err != nil {
		return graph.TraversalQuery{}, err
	}

	cypher = sanitizeCypher(cypher)
	if !strings.HasPrefix(strings.ToUpper(cypher), "MATCH") {
		return graph.TraversalQuery{}, &Error{Query: cypher, Reason: "generated query does not start with MATCH"}
	}
	if err := graph.ValidateTraversal(cypher); err != nil {
		return graph.TraversalQuery{}, &Error{Query: cypher, Reason: err.Error()}
	}
	if !strings.Contains(strings.ToUpper(cypher), "LIMIT") {
		cypher = fmt.Sprintf("%s\nLIMIT %d", cypher, limit)
	}

	values := make([]string, 0, len(mentions))
	for _, m := range mentions {
		values = append(values, m.SurfaceValue)
	}
	return graph.TraversalQuery{
		Cypher: cypher,
		Params: map[string]interface{}{"values": values, "limit": limit},
		Limit:  limit,
	}, nil
}

// sanitizeCypher strips markdown fences and surrounding chatter from
// model output
func sanitizeCypher(s string) string {
	s = strings.ReplaceAll(s, "```cypher", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}
