package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/supportkg/internal/api"
	"github.com/supportkg/internal/cache"
	"github.com/supportkg/internal/config"
	"github.com/supportkg/internal/engine"
	"github.com/supportkg/internal/entity"
	"github.com/supportkg/internal/graph"
	"github.com/supportkg/internal/health"
	"github.com/supportkg/internal/ingest"
	"github.com/supportkg/internal/synthesis"
	"github.com/supportkg/internal/vector"
	"github.com/supportkg/pkg/logger"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	var (
		configFile  = flag.String("config", "config/config.yaml", "Configuration file path")
		showVersion = flag.Bool("version", false, "Show version information")
		showHelp    = flag.Bool("help", false, "Show help information")
	)
	flag.Parse()

	if *showHelp {
		printHelp()
		return
	}
	if *showVersion {
		printVersion()
		return
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.Default()
	log.Info("starting supportkg", "version", version, "commit", commit, "built", date)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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

	embedder := vector.NewOpenAIEmbedder(cfg.Embedding)

	var extractor entity.Extractor = entity.NewRuleExtractor()
	var assist synthesis.Assist
	if cfg.LLM.Enabled {
		extractor = entity.NewLLMExtractor(cfg.LLM, entity.NewRuleExtractor())
		assist = synthesis.NewOpenAIAssist(cfg.LLM)
	}

	var queryCache *cache.QueryCache
	if cfg.Cache.Enabled {
		queryCache, err = cache.NewQueryCache(ctx, cfg.Cache)
		if err != nil {
			// Cache is best-effort; run without it rather than refuse to start
			log.Warn("query cache unavailable, continuing without it", "error", err)
		} else {
			defer queryCache.Close()
		}
	}

	eng, err := engine.New(*cfg, engine.Options{
		Store:      store,
		Vectors:    vectors,
		Embedder:   embedder,
		Extractor:  extractor,
		Assist:     assist,
		QueryCache: queryCache,
	})
	if err != nil {
		log.Error("failed to assemble engine", "error", err)
		os.Exit(1)
	}

	checker := health.NewChecker()
	checker.Register("graph", store)
	checker.Register("vector", vectors)
	if queryCache != nil {
		checker.RegisterOptional("cache", queryCache)
	}

	var consumer *ingest.Consumer
	if cfg.Kafka.Enabled {
		producer, err := ingest.NewProducer(cfg.Kafka)
		if err != nil {
			log.Error("failed to initialize event producer", "error", err)
			os.Exit(1)
		}
		defer producer.Close()

		consumer, err = ingest.NewConsumer(cfg.Kafka, eng, producer)
		if err != nil {
			log.Error("failed to initialize ingest consumer", "error", err)
			os.Exit(1)
		}
		defer consumer.Close()

		go func() {
			if err := consumer.Run(ctx); err != nil {
				log.Error("ingest consumer stopped", "error", err)
			}
		}()
	}

	gateway := api.NewGateway(cfg.API, eng, checker)
	go func() {
		if err := gateway.Start(); err != nil && err != http.ErrServerClosed {
			log.Error("gateway failed", "error", err)
			cancel()
		}
	}()

	waitForShutdown(cancel, gateway, log.Info)
}

func printHelp() {
	fmt.Print(`supportkg - Knowledge-graph retrieval engine for support tickets

Usage:
  supportkg [flags]

Flags:
  -config string
        Configuration file path (default "config/config.yaml")
  -version
        Show version information
  -help
        Show this help message

Examples:
  supportkg                                  # Start with default config
  supportkg -config config/production.yaml   # Start with production config
`)
}

func printVersion() {
	fmt.Printf("supportkg version %s\n", version)
	fmt.Printf("Commit: %s\n", commit)
	fmt.Printf("Built: %s\n", date)
}

func waitForShutdown(cancel context.CancelFunc, gateway *api.Gateway, logf func(string, ...any)) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	logf("shutdown signal received, stopping services")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := gateway.Stop(shutdownCtx); err != nil {
		logf("error during gateway shutdown", "error", err)
	}

	cancel()
	logf("supportkg stopped")
}
