// Package scorer ranks candidate tickets by aggregating matched-node
// similarities.
package scorer

import (
	"math"
	"sort"
	"time"

	"github.com/supportkg/internal/config"
	"github.com/supportkg/pkg/models"
)

// tieTolerance is the floating tolerance within which two ticket scores
// count as equal
const tieTolerance = 1e-6

// Scorer computes per-ticket relevance over a candidate subgraph
type Scorer struct {
	cfg config.ScorerConfig
}

// New creates a scorer
func New(cfg config.ScorerConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

// Rank scores every ticket in the subgraph and returns them descending,
// truncated to the configured top-N.
//
// A ticket's score is the sum of sim(node, query) over its matched
// nodes — nodes that matched an entity mention or survived the vector
// shortlist. Traversal-only hops provide context, not score. Scores are
// not normalized into [0,1]; they compare only within one query's
// result set.
//
// Ties within the floating tolerance prefer the ticket with more
// matched nodes, then the more recently updated ticket, then the lower
// ticket id, so re-running over the same subgraph yields the same order.
func (s *Scorer) Rank(sub *models.CandidateSubgraph) []models.TicketScore {
	if sub == nil || sub.Empty() {
		return nil
	}

	updated := make(map[string]time.Time, len(sub.Tickets))
	for _, t := range sub.Tickets {
		updated[t.TicketID] = t.UpdatedAt
	}

	scores := make([]models.TicketScore, 0, len(sub.Matched))
	for ticketID, nodes := range sub.Matched {
		var sum float64
		var contributing []models.MatchedNode
		for _, n := range nodes {
			if n.Source == models.MatchTraversal {
				continue
			}
			sum += n.Similarity
			contributing = append(contributing, n)
		}
		if len(contributing) == 0 {
			continue
		}
		// Strongest contributions first within the ticket
		sort.SliceStable(contributing, func(i, j int) bool {
			if contributing[i].Similarity != contributing[j].Similarity {
				return contributing[i].Similarity > contributing[j].Similarity
			}
			return contributing[i].Key.NodeID < contributing[j].Key.NodeID
		})
		scores = append(scores, models.TicketScore{
			TicketID:     ticketID,
			Score:        sum,
			MatchedNodes: contributing,
			UpdatedAt:    updated[ticketID],
		})
	}

	sort.Slice(scores, func(i, j int) bool {
		a, b := scores[i], scores[j]
		if math.Abs(a.Score-b.Score) > tieTolerance {
			return a.Score > b.Score
		}
		if len(a.MatchedNodes) != len(b.MatchedNodes) {
			return len(a.MatchedNodes) > len(b.MatchedNodes)
		}
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		return a.TicketID < b.TicketID
	})

	if s.cfg.TopN > 0 && len(scores) > s.cfg.TopN {
		scores = scores[:s.cfg.TopN]
	}
	return scores
}
