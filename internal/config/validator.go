package config

import (
	"fmt"
	"strings"
)

// Validate performs validation of the configuration
func (c *Config) Validate() error {
	if err := c.validateGraph(); err != nil {
		return fmt.Errorf("graph config error: %w", err)
	}
	if err := c.validateVector(); err != nil {
		return fmt.Errorf("vector config error: %w", err)
	}
	if err := c.validateLinker(); err != nil {
		return fmt.Errorf("linker config error: %w", err)
	}
	if err := c.validateRetriever(); err != nil {
		return fmt.Errorf("retriever config error: %w", err)
	}
	if err := c.validateKafka(); err != nil {
		return fmt.Errorf("kafka config error: %w", err)
	}
	if c.Entity.ConfidenceFloor < 0 || c.Entity.ConfidenceFloor > 1 {
		return fmt.Errorf("entity config error: confidence_floor %g outside [0,1]", c.Entity.ConfidenceFloor)
	}
	if c.Scorer.TopN <= 0 {
		return fmt.Errorf("scorer config error: top_n must be positive")
	}
	if c.Context.BudgetChars <= 0 {
		return fmt.Errorf("context config error: budget_chars must be positive")
	}
	return nil
}

func (c *Config) validateGraph() error {
	if c.Graph.URI == "" {
		return fmt.Errorf("uri is required")
	}
	if !strings.Contains(c.Graph.URI, "://") {
		return fmt.Errorf("invalid uri %q (expected scheme://host:port)", c.Graph.URI)
	}
	if c.Graph.Username == "" {
		return fmt.Errorf("username is required")
	}
	return nil
}

func (c *Config) validateVector() error {
	if c.Vector.DSN == "" {
		return fmt.Errorf("dsn is required")
	}
	if c.Vector.Dimensions <= 0 {
		return fmt.Errorf("dimensions must be positive")
	}
	if c.Vector.Table == "" {
		return fmt.Errorf("table is required")
	}
	return nil
}

func (c *Config) validateLinker() error {
	if c.Linker.SimilarityThreshold < 0 || c.Linker.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold %g outside [0,1]", c.Linker.SimilarityThreshold)
	}
	if c.Linker.TopK <= 0 {
		return fmt.Errorf("top_k must be positive")
	}
	if c.Linker.ShortlistSize < c.Linker.TopK {
		return fmt.Errorf("shortlist_size %d smaller than top_k %d", c.Linker.ShortlistSize, c.Linker.TopK)
	}
	if c.Linker.BuildWorkers <= 0 {
		return fmt.Errorf("build_workers must be positive")
	}
	return nil
}

func (c *Config) validateRetriever() error {
	if c.Retriever.VectorK <= 0 {
		return fmt.Errorf("vector_k must be positive")
	}
	if c.Retriever.HopLimit < 1 {
		return fmt.Errorf("hop_limit must be at least 1")
	}
	if c.Retriever.MaxTickets <= 0 {
		return fmt.Errorf("max_tickets must be positive")
	}
	if c.Retriever.CallTimeout <= 0 {
		return fmt.Errorf("call_timeout must be positive")
	}
	return nil
}

func (c *Config) validateKafka() error {
	if !c.Kafka.Enabled {
		return nil
	}
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("brokers is required")
	}
	for _, b := range c.Kafka.Brokers {
		if !strings.Contains(b, ":") {
			return fmt.Errorf("invalid broker %q (expected host:port)", b)
		}
	}
	if c.Kafka.IngestTopic == "" {
		return fmt.Errorf("ingest_topic is required")
	}
	return nil
}
