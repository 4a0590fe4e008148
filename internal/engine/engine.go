// Package engine orchestrates the two entry points of the system: graph
// construction from raw tickets and dual-level retrieval for a query.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/supportkg/internal/cache"
	"github.com/supportkg/internal/config"
	"github.com/supportkg/internal/contextpack"
	"github.com/supportkg/internal/entity"
	"github.com/supportkg/internal/graph"
	"github.com/supportkg/internal/linker"
	"github.com/supportkg/internal/retriever"
	"github.com/supportkg/internal/scorer"
	"github.com/supportkg/internal/synthesis"
	"github.com/supportkg/internal/tree"
	"github.com/supportkg/internal/vector"
	"github.com/supportkg/pkg/logger"
	"github.com/supportkg/pkg/metrics"
	"github.com/supportkg/pkg/models"
)

// Engine wires the pipeline components behind the two public
// operations, BuildGraph and Retrieve
type Engine struct {
	cfg config.Config
	log *slog.Logger

	store    graph.Store
	vectors  vector.Store
	embedder vector.Embedder

	builder     *tree.Builder
	linker      *linker.Linker
	mapper      *entity.Mapper
	synthesizer *synthesis.Synthesizer
	retriever   *retriever.Retriever
	scorer      *scorer.Scorer
	assembler   *contextpack.Assembler
	queryCache  *cache.QueryCache
}

// Options carries the backends the engine runs on. QueryCache is
// optional; the others are required.
type Options struct {
	Store      graph.Store
	Vectors    vector.Store
	Embedder   vector.Embedder
	Extractor  entity.Extractor
	Assist     synthesis.Assist
	QueryCache *cache.QueryCache
}

// New assembles an engine from configuration and backends
func New(cfg config.Config, opts Options) (*Engine, error) {
	if opts.Store == nil || opts.Vectors == nil || opts.Embedder == nil {
		return nil, fmt.Errorf("engine requires graph store, vector store and embedder")
	}
	extractor := opts.Extractor
	if extractor == nil {
		extractor = entity.NewRuleExtractor()
	}
	return &Engine{
		cfg:         cfg,
		log:         logger.With("engine"),
		store:       opts.Store,
		vectors:     opts.Vectors,
		embedder:    opts.Embedder,
		builder:     tree.NewBuilder(cfg.Tree),
		linker:      linker.New(cfg.Linker, opts.Store, opts.Vectors),
		mapper:      entity.NewMapper(cfg.Entity, extractor),
		synthesizer: synthesis.New(opts.Assist),
		retriever:   retriever.New(cfg.Retriever, opts.Store, opts.Vectors),
		scorer:      scorer.New(cfg.Scorer),
		assembler:   contextpack.New(cfg.Context),
		queryCache:  opts.QueryCache,
	}, nil
}

// BuildReport summarizes one graph build batch
type BuildReport struct {
	Built   []string          `json:"built"`
	Skipped map[string]string `json:"skipped,omitempty"` // ticket id -> reason
	Edges   int               `json:"edges"`
}

// BuildGraph ingests a batch of raw tickets: builds each intra-issue
// tree, embeds its nodes, persists tree and embeddings, then recomputes
// inter-issue edges for the batch. Malformed tickets are skipped and
// reported; they never abort the batch.
func (e *Engine) BuildGraph(ctx context.Context, batch []models.RawTicket) (*BuildReport, error) {
	report := &BuildReport{Skipped: make(map[string]string)}
	if len(batch) == 0 {
		return report, nil
	}

	start := time.Now()

	var mu sync.Mutex
	var built []models.Ticket
	rootVecs := make(map[string][]float32)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Linker.BuildWorkers)
	for _, raw := range batch {
		raw := raw
		g.Go(func() error {
			t, err := e.buildOne(gctx, raw)
			if err != nil {
				if tree.IsMalformed(err) {
					metrics.GraphBuildsTotal.WithLabelValues("skipped").Inc()
					e.log.Warn("skipping malformed ticket",
						"ticket_id", raw.TicketID, "error", err)
					mu.Lock()
					report.Skipped[raw.TicketID] = err.Error()
					mu.Unlock()
					return nil
				}
				metrics.GraphBuildsTotal.WithLabelValues("error").Inc()
				return fmt.Errorf("build ticket %s: %w", raw.TicketID, err)
			}
			metrics.GraphBuildsTotal.WithLabelValues("ok").Inc()
			mu.Lock()
			built = append(built, *t.ticket)
			rootVecs[t.ticket.TicketID] = t.rootVec
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	// Deterministic linker input regardless of worker completion order
	sort.Slice(built, func(i, j int) bool { return built[i].TicketID < built[j].TicketID })
	for _, t := range built {
		report.Built = append(report.Built, t.TicketID)
	}

	if len(built) > 0 {
		edges, err := e.linker.Run(ctx, built, rootVecs)
		if err != nil {
			return report, fmt.Errorf("link tickets: %w", err)
		}
		report.Edges = len(edges)
	}

	if e.queryCache != nil {
		if err := e.queryCache.Flush(ctx); err != nil {
			e.log.Warn("cache flush after build failed", "error", err)
		}
	}

	e.log.Info("graph build finished",
		"built", len(report.Built),
		"skipped", len(report.Skipped),
		"edges", report.Edges,
		"duration", time.Since(start))
	return report, nil
}

type builtTicket struct {
	ticket  *models.Ticket
	rootVec []float32
}

// buildOne constructs, embeds and persists a single ticket tree
func (e *Engine) buildOne(ctx context.Context, raw models.RawTicket) (*builtTicket, error) {
	t, err := e.builder.Build(raw)
	if err != nil {
		return nil, err
	}

	records := make([]vector.Record, 0, len(t.Nodes))
	var rootVec []float32
	for i := range t.Nodes {
		n := &t.Nodes[i]
		text := tree.EmbedText(t, n)
		vec, err := e.embedder.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed node %s: %w", n.NodeID, err)
		}
		if n.SectionType == models.SectionRoot {
			rootVec = vec
		}
		n.EmbeddingID = n.NodeID
		records = append(records, vector.Record{
			Key:         models.NodeKey{TicketID: t.TicketID, NodeID: n.NodeID},
			SectionType: n.SectionType,
			EntityType:  n.EntityType,
			Text:        text,
			Vector:      vec,
		})
	}

	// Re-ingest replaces the prior version everywhere
	if err := e.vectors.DeleteTicket(ctx, t.TicketID); err != nil {
		return nil, fmt.Errorf("clear embeddings for %s: %w", t.TicketID, err)
	}
	if err := e.vectors.UpsertEmbeddings(ctx, records); err != nil {
		return nil, fmt.Errorf("store embeddings for %s: %w", t.TicketID, err)
	}
	if err := e.store.UpsertTicketTree(ctx, t); err != nil {
		return nil, fmt.Errorf("store tree for %s: %w", t.TicketID, err)
	}
	if err := e.store.DeleteTicketEdges(ctx, t.TicketID); err != nil {
		return nil, fmt.Errorf("clear edges for %s: %w", t.TicketID, err)
	}
	return &builtTicket{ticket: t, rootVec: rootVec}, nil
}

// Retrieve answers a customer query: extract entities, synthesize a
// traversal, retrieve the candidate subgraph, score and rank tickets,
// and assemble the evidence context. A query matching nothing returns
// an empty context with no error.
func (e *Engine) Retrieve(ctx context.Context, queryText string, queryVec []float32) (*models.RetrievalResult, error) {
	if e.queryCache != nil {
		if cached, found, err := e.queryCache.Get(ctx, queryText); err != nil {
			e.log.Warn("query cache read failed", "error", err)
		} else if found && !cached.Context.Stale {
			metrics.RetrievalsTotal.WithLabelValues("ok").Inc()
			return cached, nil
		}
	}

	result, err := e.retrieveLive(ctx, queryText, queryVec)
	if err != nil {
		if e.queryCache != nil {
			if cached, found, cerr := e.queryCache.Get(ctx, queryText); cerr == nil && found {
				cached.Context.Stale = true
				e.log.Warn("serving stale cached result", "error", err)
				metrics.RetrievalsTotal.WithLabelValues("partial").Inc()
				return cached, nil
			}
		}
		metrics.RetrievalsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	switch {
	case result.Partial:
		metrics.RetrievalsTotal.WithLabelValues("partial").Inc()
	case len(result.Ranked) == 0:
		metrics.RetrievalsTotal.WithLabelValues("empty").Inc()
	default:
		metrics.RetrievalsTotal.WithLabelValues("ok").Inc()
	}

	if e.queryCache != nil {
		if err := e.queryCache.Set(ctx, queryText, result); err != nil {
			e.log.Warn("query cache write failed", "error", err)
		}
	}
	return result, nil
}

func (e *Engine) retrieveLive(ctx context.Context, queryText string, queryVec []float32) (*models.RetrievalResult, error) {
	degraded := false

	if queryVec == nil {
		vec, err := e.embedder.Embed(ctx, queryText)
		if err != nil {
			if !errors.Is(err, vector.ErrEmbeddingUnavailable) {
				return nil, fmt.Errorf("embed query: %w", err)
			}
			// Entity-only retrieval still works without a vector
			degraded = true
			e.log.Warn("embedding unavailable, degrading to entity-only retrieval", "error", err)
		} else {
			queryVec = vec
		}
	}

	stageStart := time.Now()
	mentions, err := e.mapper.Map(ctx, queryText)
	if err != nil && !errors.Is(err, entity.ErrExtractionUnavailable) {
		return nil, fmt.Errorf("map query entities: %w", err)
	}
	if err != nil {
		degraded = true
	}
	intent := entity.DetectIntent(queryText)
	metrics.RetrievalDuration.WithLabelValues("entity").Observe(time.Since(stageStart).Seconds())

	stageStart = time.Now()
	traversal := e.synthesizer.Synthesize(ctx, queryText, mentions, intent,
		e.cfg.Retriever.HopLimit, e.cfg.Retriever.VectorK)
	metrics.RetrievalDuration.WithLabelValues("synthesis").Observe(time.Since(stageStart).Seconds())

	if queryVec == nil && len(mentions) == 0 {
		return nil, fmt.Errorf("query has no retrieval signal: %w", retriever.ErrRetrievalUnavailable)
	}

	stageStart = time.Now()
	sub, err := e.retriever.Retrieve(ctx, mentions, queryVec, traversal)
	metrics.RetrievalDuration.WithLabelValues("retrieve").Observe(time.Since(stageStart).Seconds())
	if err != nil {
		return nil, err
	}

	stageStart = time.Now()
	ranked := e.scorer.Rank(sub)
	metrics.RetrievalDuration.WithLabelValues("score").Observe(time.Since(stageStart).Seconds())

	stageStart = time.Now()
	evidence := e.assembler.Assemble(queryText, intent, ranked, sub)
	metrics.RetrievalDuration.WithLabelValues("assemble").Observe(time.Since(stageStart).Seconds())

	return &models.RetrievalResult{
		Ranked:  ranked,
		Context: evidence,
		Partial: sub.Partial || degraded,
	}, nil
}

// Stats reports corpus-level counts for the stats endpoint
func (e *Engine) Stats(ctx context.Context) (graph.Stats, error) {
	return e.store.Stats(ctx)
}
