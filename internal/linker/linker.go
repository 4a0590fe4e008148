// Package linker computes inter-issue edges between ticket roots:
// explicit references from literal ticket-id mentions and implicit
// similarity links from embedding cosine similarity.
package linker

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/supportkg/internal/config"
	"github.com/supportkg/internal/graph"
	"github.com/supportkg/internal/vector"
	"github.com/supportkg/pkg/logger"
	"github.com/supportkg/pkg/metrics"
	"github.com/supportkg/pkg/models"
)

// Linker derives the inter-issue graph for a batch of tickets
type Linker struct {
	cfg    config.LinkerConfig
	store  graph.Store
	search vector.SearchService
	log    *slog.Logger
}

// New creates a linker
func New(cfg config.LinkerConfig, store graph.Store, search vector.SearchService) *Linker {
	return &Linker{
		cfg:    cfg,
		store:  store,
		search: search,
		log:    logger.With("linker"),
	}
}

// Run recomputes edges for the batch and upserts them. rootVecs maps
// ticket id to the ticket's root embedding; tickets without one only get
// explicit edges. Edge writes are idempotent MERGE upserts keyed
// (source, target, kind), so re-running over the same batch and
// embeddings yields an identical edge set.
func (l *Linker) Run(ctx context.Context, tickets []models.Ticket, rootVecs map[string][]float32) ([]models.Edge, error) {
	inBatch := make(map[string]*models.Ticket, len(tickets))
	for i := range tickets {
		inBatch[tickets[i].TicketID] = &tickets[i]
	}

	var (
		mu    sync.Mutex
		edges = make(map[string]models.Edge)
	)
	add := func(batch []models.Edge) {
		mu.Lock()
		defer mu.Unlock()
		for _, e := range batch {
			// First nomination wins; symmetric similarities make
			// the duplicate identical anyway.
			if _, ok := edges[e.Key()]; !ok {
				edges[e.Key()] = e
			}
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.cfg.BuildWorkers)
	for i := range tickets {
		t := &tickets[i]
		g.Go(func() error {
			explicit, err := l.explicitEdges(gctx, t, inBatch)
			if err != nil {
				return err
			}
			add(explicit)

			inbound, err := l.inboundEdges(gctx, t, inBatch)
			if err != nil {
				return err
			}
			add(inbound)

			if vec, ok := rootVecs[t.TicketID]; ok {
				implicit, err := l.implicitEdges(gctx, t, vec, inBatch)
				if err != nil {
					return err
				}
				add(implicit)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]models.Edge, 0, len(edges))
	for _, e := range edges {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })

	if err := l.store.UpsertEdges(ctx, out); err != nil {
		return nil, fmt.Errorf("failed to write edges: %w", err)
	}
	for _, e := range out {
		metrics.EdgesCreated.WithLabelValues(string(e.Kind)).Inc()
	}
	l.log.Info("edge set recomputed", "tickets", len(tickets), "edges", len(out))
	return out, nil
}

// explicitEdges resolves literal ticket-id mentions against the batch
// and the store. References to unknown tickets are ignored.
func (l *Linker) explicitEdges(ctx context.Context, t *models.Ticket, inBatch map[string]*models.Ticket) ([]models.Edge, error) {
	var edges []models.Edge
	for _, ref := range ExplicitRefs(t) {
		exists := inBatch[ref] != nil
		if !exists {
			var err error
			exists, err = l.store.TicketExists(ctx, ref)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve reference %s: %w", ref, err)
			}
		}
		if exists {
			edges = append(edges, models.Edge{
				SourceTicket: t.TicketID,
				TargetTicket: ref,
				Kind:         models.EdgeExplicitReference,
				Weight:       1.0,
			})
		}
	}
	return edges, nil
}

// inboundEdges re-derives explicit references into t held by tickets
// outside the batch. Rebuilding t deletes every edge touching it, so a
// reference written by an older ticket must be restored from that
// ticket's text.
func (l *Linker) inboundEdges(ctx context.Context, t *models.Ticket, inBatch map[string]*models.Ticket) ([]models.Edge, error) {
	ids, err := l.store.FindReferencingTickets(ctx, t.TicketID)
	if err != nil {
		return nil, fmt.Errorf("failed to find referrers of %s: %w", t.TicketID, err)
	}

	// Batch members derive their outbound references from their own
	// current text already.
	var outside []string
	for _, id := range ids {
		if inBatch[id] == nil {
			outside = append(outside, id)
		}
	}
	if len(outside) == 0 {
		return nil, nil
	}

	referrers, err := l.store.GetTickets(ctx, outside)
	if err != nil {
		return nil, fmt.Errorf("failed to load referrers of %s: %w", t.TicketID, err)
	}

	var edges []models.Edge
	for i := range referrers {
		// The store match is substring-based; SUP-21 contains SUP-2.
		// Confirm a literal mention before restoring the edge.
		for _, ref := range ExplicitRefs(&referrers[i]) {
			if ref == t.TicketID {
				edges = append(edges, models.Edge{
					SourceTicket: referrers[i].TicketID,
					TargetTicket: t.TicketID,
					Kind:         models.EdgeExplicitReference,
					Weight:       1.0,
				})
				break
			}
		}
	}
	return edges, nil
}

// candidate is one nominated similar ticket
type candidate struct {
	ticketID  string
	score     float64
	createdAt time.Time
}

// implicitEdges nominates the top-k most similar other tickets whose
// root similarity clears the threshold. Comparison goes through the
// ANN shortlist, never all pairs.
func (l *Linker) implicitEdges(ctx context.Context, t *models.Ticket, vec []float32, inBatch map[string]*models.Ticket) ([]models.Edge, error) {
	hits, err := l.search.Search(ctx, vec, l.cfg.ShortlistSize, &vector.SearchFilter{
		SectionTypes:  []models.SectionType{models.SectionRoot},
		ExcludeTicket: t.TicketID,
	})
	if err != nil {
		return nil, fmt.Errorf("shortlist search for %s failed: %w", t.TicketID, err)
	}

	var cands []candidate
	var unknown []string
	for _, h := range hits {
		if h.Score < l.cfg.SimilarityThreshold {
			continue
		}
		c := candidate{ticketID: h.Key.TicketID, score: h.Score}
		if bt := inBatch[c.ticketID]; bt != nil {
			c.createdAt = bt.CreatedAt
		} else {
			unknown = append(unknown, c.ticketID)
		}
		cands = append(cands, c)
	}

	// Creation times break ties at the k-th position; load them for
	// candidates outside the batch.
	if len(unknown) > 0 {
		loaded, err := l.store.GetTickets(ctx, unknown)
		if err != nil {
			return nil, fmt.Errorf("failed to load tie-break candidates: %w", err)
		}
		created := make(map[string]time.Time, len(loaded))
		for _, lt := range loaded {
			created[lt.TicketID] = lt.CreatedAt
		}
		for i := range cands {
			if ts, ok := created[cands[i].ticketID]; ok && cands[i].createdAt.IsZero() {
				cands[i].createdAt = ts
			}
		}
	}

	// Equal similarity at the cut prefers the more recently created
	// ticket; ticket id settles full ties deterministically.
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].score != cands[j].score {
			return cands[i].score > cands[j].score
		}
		if !cands[i].createdAt.Equal(cands[j].createdAt) {
			return cands[i].createdAt.After(cands[j].createdAt)
		}
		return cands[i].ticketID < cands[j].ticketID
	})
	if len(cands) > l.cfg.TopK {
		cands = cands[:l.cfg.TopK]
	}

	edges := make([]models.Edge, 0, len(cands))
	for _, c := range cands {
		edges = append(edges, models.Edge{
			SourceTicket: t.TicketID,
			TargetTicket: c.ticketID,
			Kind:         models.EdgeImplicitSimilar,
			Weight:       c.score,
		})
	}
	return edges, nil
}
