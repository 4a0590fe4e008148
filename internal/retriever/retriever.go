// Package retriever selects a bounded, query-relevant candidate
// subgraph by joining vector search with graph traversal.
package retriever

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/supportkg/internal/config"
	"github.com/supportkg/internal/graph"
	"github.com/supportkg/internal/vector"
	"github.com/supportkg/pkg/logger"
	"github.com/supportkg/pkg/metrics"
	"github.com/supportkg/pkg/models"
)

// ErrRetrievalUnavailable means both retrieval legs failed outright.
// Everything milder degrades to whichever partial result exists.
var ErrRetrievalUnavailable = errors.New("retrieval backends unavailable")

// Retriever runs the combined vector + graph candidate retrieval
type Retriever struct {
	cfg    config.RetrieverConfig
	store  graph.Store
	search vector.SearchService
	log    *slog.Logger
}

// New creates a retriever
func New(cfg config.RetrieverConfig, store graph.Store, search vector.SearchService) *Retriever {
	return &Retriever{
		cfg:    cfg,
		store:  store,
		search: search,
		log:    logger.With("retriever"),
	}
}

// Retrieve produces the candidate subgraph for one query. The vector
// and graph legs are independent reads and run concurrently, each under
// its own timeout; when one leg times out or fails the other's partial
// result is used and the subgraph is marked partial. An empty subgraph
// is a valid "no evidence found" outcome, not an error — only both legs
// failing outright is.
//
// With zero usable mentions the traversal leg is skipped entirely and
// retrieval is vector-only over the query embedding.
func (r *Retriever) Retrieve(ctx context.Context, mentions []models.EntityMention, queryVec []float32, traversal graph.TraversalQuery) (*models.CandidateSubgraph, error) {
	var (
		wg       sync.WaitGroup
		hits     []vector.Hit
		rows     []graph.TraversalRow
		vecErr   error
		graphErr error
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		callCtx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
		defer cancel()
		hits, vecErr = r.search.Search(callCtx, queryVec, r.cfg.VectorK, nil)
	}()

	graphLeg := len(mentions) > 0
	if graphLeg {
		wg.Add(1)
		go func() {
			defer wg.Done()
			callCtx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
			defer cancel()
			rows, graphErr = r.traverse(callCtx, traversal)
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		// Caller cancelled; discard whatever the legs returned.
		return nil, err
	}
	if vecErr != nil && graphLeg && graphErr != nil {
		return nil, errors.Join(ErrRetrievalUnavailable, vecErr, graphErr)
	}
	if vecErr != nil && !graphLeg {
		return nil, errors.Join(ErrRetrievalUnavailable, vecErr)
	}

	partial := vecErr != nil || (graphLeg && graphErr != nil)
	if vecErr != nil {
		r.log.Warn("vector leg degraded", "error", vecErr)
	}
	if graphErr != nil {
		r.log.Warn("graph leg degraded", "error", graphErr)
	}

	matched := r.joinLegs(ctx, mentions, queryVec, hits, rows)
	if len(matched) == 0 {
		return &models.CandidateSubgraph{Partial: partial}, nil
	}

	return r.assemble(ctx, matched, rows, partial)
}

// traverse runs the synthesized traversal and widens the seed tickets
// across inter-issue edges up to the hop limit
func (r *Retriever) traverse(ctx context.Context, q graph.TraversalQuery) ([]graph.TraversalRow, error) {
	res, err := r.store.RunTraversal(ctx, q)
	if err != nil {
		return nil, err
	}
	seeds := res.TicketIDs()
	if len(seeds) == 0 {
		return res.Rows, nil
	}

	expanded, err := r.store.ExpandTickets(ctx, seeds, r.cfg.HopLimit)
	if err != nil {
		// The direct matches are still usable without the expansion.
		r.log.Warn("inter-issue expansion failed", "error", err)
		return res.Rows, nil
	}

	rows := res.Rows
	seen := make(map[string]bool, len(seeds))
	for _, id := range seeds {
		seen[id] = true
	}
	for _, id := range expanded {
		if !seen[id] {
			rows = append(rows, graph.TraversalRow{
				TicketID:    id,
				NodeID:      id,
				SectionType: models.SectionRoot,
			})
		}
	}
	return rows, nil
}

// joinLegs unions the two candidate node sets, attaching match
// provenance and a similarity signal to each node. Traversal rows that
// match a mention by value count as entity matches; their similarity is
// looked up against the vector index so they contribute to scoring.
// Rows with no mention match stay traversal-only context.
func (r *Retriever) joinLegs(ctx context.Context, mentions []models.EntityMention, queryVec []float32, hits []vector.Hit, rows []graph.TraversalRow) map[string][]models.MatchedNode {
	matched := make(map[string][]models.MatchedNode)
	have := make(map[models.NodeKey]bool)

	for _, h := range hits {
		if have[h.Key] {
			continue
		}
		have[h.Key] = true
		matched[h.Key.TicketID] = append(matched[h.Key.TicketID], models.MatchedNode{
			Key:        h.Key,
			Section:    h.SectionType,
			Value:      h.Value,
			Source:     models.MatchVector,
			Similarity: h.Score,
		})
	}

	mentionValues := make(map[string]bool, len(mentions))
	for _, m := range mentions {
		mentionValues[m.SurfaceValue] = true
	}

	var entityKeys []models.NodeKey
	var entityRows []graph.TraversalRow
	for _, row := range rows {
		key := models.NodeKey{TicketID: row.TicketID, NodeID: row.NodeID}
		if key.TicketID == "" || have[key] {
			continue
		}
		have[key] = true
		if mentionValues[strings.ToLower(row.Value)] {
			entityKeys = append(entityKeys, key)
			entityRows = append(entityRows, row)
			continue
		}
		matched[key.TicketID] = append(matched[key.TicketID], models.MatchedNode{
			Key:        key,
			Section:    row.SectionType,
			Value:      row.Value,
			Source:     models.MatchTraversal,
			Similarity: 0,
		})
	}

	var sims map[models.NodeKey]float64
	if len(entityKeys) > 0 {
		var err error
		simCtx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
		defer cancel()
		sims, err = r.search.Similarities(simCtx, queryVec, entityKeys)
		if err != nil {
			r.log.Warn("entity similarity lookup failed", "error", err)
		}
	}
	for i, row := range entityRows {
		key := entityKeys[i]
		matched[key.TicketID] = append(matched[key.TicketID], models.MatchedNode{
			Key:        key,
			Section:    row.SectionType,
			Value:      row.Value,
			Source:     models.MatchEntity,
			Similarity: sims[key],
		})
	}
	return matched
}

// assemble caps the candidate set by combined signal strength and loads
// whole trees for the survivors
func (r *Retriever) assemble(ctx context.Context, matched map[string][]models.MatchedNode, rows []graph.TraversalRow, partial bool) (*models.CandidateSubgraph, error) {
	type signal struct {
		ticketID string
		strength float64
	}
	signals := make([]signal, 0, len(matched))
	for id, nodes := range matched {
		var sum float64
		for _, n := range nodes {
			sum += n.Similarity
		}
		signals = append(signals, signal{ticketID: id, strength: sum})
	}
	sort.Slice(signals, func(i, j int) bool {
		if signals[i].strength != signals[j].strength {
			return signals[i].strength > signals[j].strength
		}
		return signals[i].ticketID < signals[j].ticketID
	})
	metrics.CandidateTickets.Observe(float64(len(signals)))
	if len(signals) > r.cfg.MaxTickets {
		for _, dropped := range signals[r.cfg.MaxTickets:] {
			delete(matched, dropped.ticketID)
		}
		signals = signals[:r.cfg.MaxTickets]
	}

	ids := make([]string, 0, len(signals))
	for _, s := range signals {
		ids = append(ids, s.ticketID)
	}

	tickets, err := r.store.GetTickets(ctx, ids)
	if err != nil {
		// Degrade to the bare matched rows; the scorer only needs
		// similarities, full trees just enrich the context.
		r.log.Warn("failed to load candidate trees", "error", err)
		partial = true
		tickets = ticketsFromRows(ids, matched, rows)
	}

	edges, err := r.store.GetEdges(ctx, ids)
	if err != nil {
		r.log.Warn("failed to load candidate edges", "error", err)
		partial = true
	}

	return &models.CandidateSubgraph{
		Tickets: tickets,
		Edges:   edges,
		Matched: matched,
		Partial: partial,
	}, nil
}

// ticketsFromRows reconstructs minimal tickets from whatever the legs
// already returned, used when the tree load degrades away
func ticketsFromRows(ids []string, matched map[string][]models.MatchedNode, rows []graph.TraversalRow) []models.Ticket {
	titles := make(map[string]string)
	for _, row := range rows {
		if row.SectionType == models.SectionRoot && row.Value != "" {
			titles[row.TicketID] = row.Value
		}
	}

	var tickets []models.Ticket
	for _, id := range ids {
		t := models.Ticket{TicketID: id, Title: titles[id]}
		t.Nodes = append(t.Nodes, models.Node{
			NodeID:      id,
			TicketID:    id,
			SectionType: models.SectionRoot,
			Value:       titles[id],
		})
		t.Parents = append(t.Parents, -1)
		for _, n := range matched[id] {
			if n.Key.NodeID == id {
				continue
			}
			t.Nodes = append(t.Nodes, models.Node{
				NodeID:      n.Key.NodeID,
				TicketID:    id,
				SectionType: n.Section,
				Value:       n.Value,
			})
			t.Parents = append(t.Parents, 0)
		}
		tickets = append(tickets, t)
	}
	return tickets
}
