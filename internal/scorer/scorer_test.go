package scorer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supportkg/internal/config"
	"github.com/supportkg/pkg/models"
)

func node(ticketID, nodeID string, src models.MatchSource, sim float64) models.MatchedNode {
	return models.MatchedNode{
		Key:        models.NodeKey{TicketID: ticketID, NodeID: nodeID},
		Source:     src,
		Similarity: sim,
	}
}

func subgraph(matched map[string][]models.MatchedNode, updated map[string]time.Time) *models.CandidateSubgraph {
	sub := &models.CandidateSubgraph{Matched: matched}
	for id := range matched {
		sub.Tickets = append(sub.Tickets, models.Ticket{
			TicketID:  id,
			UpdatedAt: updated[id],
		})
	}
	return sub
}

func TestRankSumsMatchedSimilarities(t *testing.T) {
	s := New(config.ScorerConfig{TopN: 10})

	sub := subgraph(map[string][]models.MatchedNode{
		"SUP-1": {
			node("SUP-1", "SUP-1", models.MatchVector, 0.9),
			node("SUP-1", "SUP-1_res", models.MatchEntity, 0.7),
		},
		"SUP-2": {
			node("SUP-2", "SUP-2", models.MatchVector, 0.4),
		},
	}, nil)

	ranked := s.Rank(sub)
	require.Len(t, ranked, 2)
	assert.Equal(t, "SUP-1", ranked[0].TicketID)
	assert.InDelta(t, 1.6, ranked[0].Score, 1e-9)
	assert.Equal(t, "SUP-2", ranked[1].TicketID)
	assert.InDelta(t, 0.4, ranked[1].Score, 1e-9)
}

func TestRankIgnoresTraversalOnlyNodes(t *testing.T) {
	s := New(config.ScorerConfig{TopN: 10})

	sub := subgraph(map[string][]models.MatchedNode{
		"SUP-1": {
			node("SUP-1", "SUP-1", models.MatchVector, 0.5),
			node("SUP-1", "SUP-1_desc", models.MatchTraversal, 0),
		},
		// Only reached by traversal; contributes context, not rank
		"SUP-2": {
			node("SUP-2", "SUP-2", models.MatchTraversal, 0),
		},
	}, nil)

	ranked := s.Rank(sub)
	require.Len(t, ranked, 1)
	assert.Equal(t, "SUP-1", ranked[0].TicketID)
	assert.InDelta(t, 0.5, ranked[0].Score, 1e-9)
	// The traversal node does not appear among the scoring nodes
	require.Len(t, ranked[0].MatchedNodes, 1)
}

func TestRankTieBreaks(t *testing.T) {
	s := New(config.ScorerConfig{TopN: 10})

	older := time.Unix(100, 0)
	newer := time.Unix(900, 0)

	// Equal scores: more matched nodes wins
	sub := subgraph(map[string][]models.MatchedNode{
		"SUP-1": {node("SUP-1", "SUP-1", models.MatchVector, 0.8)},
		"SUP-2": {
			node("SUP-2", "SUP-2", models.MatchVector, 0.5),
			node("SUP-2", "SUP-2_res", models.MatchEntity, 0.3),
		},
	}, nil)
	ranked := s.Rank(sub)
	require.Len(t, ranked, 2)
	assert.Equal(t, "SUP-2", ranked[0].TicketID)

	// Equal scores and node counts: more recently updated wins
	sub = subgraph(map[string][]models.MatchedNode{
		"SUP-OLD": {node("SUP-OLD", "SUP-OLD", models.MatchVector, 0.6)},
		"SUP-NEW": {node("SUP-NEW", "SUP-NEW", models.MatchVector, 0.6)},
	}, map[string]time.Time{"SUP-OLD": older, "SUP-NEW": newer})
	ranked = s.Rank(sub)
	require.Len(t, ranked, 2)
	assert.Equal(t, "SUP-NEW", ranked[0].TicketID)

	// A difference within tolerance still counts as a tie
	sub = subgraph(map[string][]models.MatchedNode{
		"SUP-A": {node("SUP-A", "SUP-A", models.MatchVector, 0.6)},
		"SUP-B": {node("SUP-B", "SUP-B", models.MatchVector, 0.6 + 5e-7)},
	}, map[string]time.Time{"SUP-A": newer, "SUP-B": older})
	ranked = s.Rank(sub)
	assert.Equal(t, "SUP-A", ranked[0].TicketID)
}

func TestRankDeterministic(t *testing.T) {
	s := New(config.ScorerConfig{TopN: 10})

	sub := subgraph(map[string][]models.MatchedNode{
		"SUP-3": {node("SUP-3", "SUP-3", models.MatchVector, 0.5)},
		"SUP-1": {node("SUP-1", "SUP-1", models.MatchVector, 0.5)},
		"SUP-2": {node("SUP-2", "SUP-2", models.MatchVector, 0.5)},
	}, nil)

	first := s.Rank(sub)
	second := s.Rank(sub)
	assert.Equal(t, first, second)
	// Full ties fall back to ticket id
	assert.Equal(t, "SUP-1", first[0].TicketID)
	assert.Equal(t, "SUP-3", first[2].TicketID)
}

func TestRankTruncatesToTopN(t *testing.T) {
	s := New(config.ScorerConfig{TopN: 2})

	sub := subgraph(map[string][]models.MatchedNode{
		"SUP-1": {node("SUP-1", "SUP-1", models.MatchVector, 0.9)},
		"SUP-2": {node("SUP-2", "SUP-2", models.MatchVector, 0.8)},
		"SUP-3": {node("SUP-3", "SUP-3", models.MatchVector, 0.7)},
	}, nil)

	ranked := s.Rank(sub)
	require.Len(t, ranked, 2)
	assert.Equal(t, "SUP-1", ranked[0].TicketID)
	assert.Equal(t, "SUP-2", ranked[1].TicketID)
}

func TestRankEmptySubgraph(t *testing.T) {
	s := New(config.ScorerConfig{TopN: 10})
	assert.Nil(t, s.Rank(nil))
	assert.Nil(t, s.Rank(&models.CandidateSubgraph{}))
}
