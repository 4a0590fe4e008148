// graph-builder ingests ticket JSON files from disk and builds the
// knowledge graph, for bootstrapping a corpus without Kafka.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/supportkg/internal/config"
	"github.com/supportkg/internal/engine"
	"github.com/supportkg/internal/entity"
	"github.com/supportkg/internal/graph"
	"github.com/supportkg/internal/vector"
	"github.com/supportkg/pkg/logger"
	"github.com/supportkg/pkg/models"
)

func main() {
	var (
		configFile = flag.String("config", "config/config.yaml", "Configuration file path")
		inputPath  = flag.String("input", "", "Ticket JSON file or directory of JSON files")
		batchSize  = flag.Int("batch", 100, "Tickets per build batch")
	)
	flag.Parse()

	if *inputPath == "" {
		fmt.Fprintln(os.Stderr, "usage: graph-builder -input <file-or-dir> [-config path] [-batch n]")
		os.Exit(2)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.Default()

	tickets, err := loadTickets(*inputPath)
	if err != nil {
		log.Error("failed to load tickets", "error", err)
		os.Exit(1)
	}
	if len(tickets) == 0 {
		log.Info("no tickets found", "input", *inputPath)
		return
	}
	log.Info("loaded tickets", "count", len(tickets), "input", *inputPath)

	ctx := context.Background()

	store, err := graph.NewNeo4jStore(ctx, cfg.Graph)
	if err != nil {
		log.Error("failed to initialize graph store", "error", err)
		os.Exit(1)
	}
	defer store.Close(context.Background())

	vectors, err := vector.NewPgStore(ctx, cfg.Vector)
	if err != nil {
		log.Error("failed to initialize vector store", "error", err)
		os.Exit(1)
	}
	defer vectors.Close()

	eng, err := engine.New(*cfg, engine.Options{
		Store:     store,
		Vectors:   vectors,
		Embedder:  vector.NewOpenAIEmbedder(cfg.Embedding),
		Extractor: entity.NewRuleExtractor(),
	})
	if err != nil {
		log.Error("failed to assemble engine", "error", err)
		os.Exit(1)
	}

	var built, skipped, edges int
	for start := 0; start < len(tickets); start += *batchSize {
		end := start + *batchSize
		if end > len(tickets) {
			end = len(tickets)
		}
		report, err := eng.BuildGraph(ctx, tickets[start:end])
		if err != nil {
			log.Error("batch failed", "from", start, "to", end, "error", err)
			os.Exit(1)
		}
		built += len(report.Built)
		skipped += len(report.Skipped)
		edges += report.Edges
		for id, reason := range report.Skipped {
			log.Warn("skipped ticket", "ticket_id", id, "reason", reason)
		}
	}

	log.Info("graph build complete", "built", built, "skipped", skipped, "edges", edges)

	stats, err := store.Stats(ctx)
	if err == nil {
		log.Info("corpus stats",
			"tickets", stats.Tickets,
			"nodes", stats.Nodes,
			"explicit_edges", stats.ExplicitEdges,
			"implicit_edges", stats.ImplicitEdges)
	}
}

// loadTickets reads one JSON file or every *.json file in a directory.
// Each file may hold a single ticket object or an array of tickets.
func loadTickets(path string) ([]models.RawTicket, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	var files []string
	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if !e.IsDir() && filepath.Ext(e.Name()) == ".json" {
				files = append(files, filepath.Join(path, e.Name()))
			}
		}
		sort.Strings(files)
	} else {
		files = []string{path}
	}

	var tickets []models.RawTicket
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f, err)
		}
		batch, err := decodeTickets(data)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", f, err)
		}
		tickets = append(tickets, batch...)
	}
	return tickets, nil
}

func decodeTickets(data []byte) ([]models.RawTicket, error) {
	var batch []models.RawTicket
	if err := json.Unmarshal(data, &batch); err == nil {
		return batch, nil
	}
	var one models.RawTicket
	if err := json.Unmarshal(data, &one); err != nil {
		return nil, err
	}
	return []models.RawTicket{one}, nil
}
