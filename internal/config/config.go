package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration
type Config struct {
	Graph     GraphConfig     `yaml:"graph"`
	Vector    VectorConfig    `yaml:"vector"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Tree      TreeConfig      `yaml:"tree"`
	Linker    LinkerConfig    `yaml:"linker"`
	Entity    EntityConfig    `yaml:"entity"`
	Retriever RetrieverConfig `yaml:"retriever"`
	Scorer    ScorerConfig    `yaml:"scorer"`
	Context   ContextConfig   `yaml:"context"`
	API       APIConfig       `yaml:"api"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Cache     CacheConfig     `yaml:"cache"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// GraphConfig represents Neo4j graph store configuration
type GraphConfig struct {
	URI         string        `yaml:"uri"`
	Database    string        `yaml:"database"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	MaxPoolSize int           `yaml:"max_pool_size"`
	ConnTimeout time.Duration `yaml:"conn_timeout"`
}

// VectorConfig represents the pgvector store configuration
type VectorConfig struct {
	DSN        string `yaml:"dsn"`
	Table      string `yaml:"table"`
	Dimensions int    `yaml:"dimensions"`
	MaxConns   int    `yaml:"max_conns"`
}

// EmbeddingConfig represents the embedding service configuration
type EmbeddingConfig struct {
	APIKey         string        `yaml:"api_key"`
	BaseURL        string        `yaml:"base_url"`
	Model          string        `yaml:"model"`
	MaxRetries     int           `yaml:"max_retries"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// LLMConfig represents the optional LLM assist configuration. When
// disabled, entity extraction and query synthesis run on the
// deterministic rule-based strategies only.
type LLMConfig struct {
	Enabled     bool    `yaml:"enabled"`
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
}

// TreeConfig caps intra-issue tree size
type TreeConfig struct {
	MaxComments           int `yaml:"max_comments"`
	MaxEntitiesPerSection int `yaml:"max_entities_per_section"`
}

// LinkerConfig controls inter-issue edge construction
type LinkerConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	TopK                int     `yaml:"top_k"`
	ShortlistSize       int     `yaml:"shortlist_size"`
	BuildWorkers        int     `yaml:"build_workers"`
}

// EntityConfig controls query-time entity mapping
type EntityConfig struct {
	ConfidenceFloor float64 `yaml:"confidence_floor"`
}

// RetrieverConfig controls subgraph retrieval bounds
type RetrieverConfig struct {
	VectorK     int           `yaml:"vector_k"`
	HopLimit    int           `yaml:"hop_limit"`
	MaxTickets  int           `yaml:"max_tickets"`
	CallTimeout time.Duration `yaml:"call_timeout"`
}

// ScorerConfig controls ticket ranking
type ScorerConfig struct {
	TopN int `yaml:"top_n"`
}

// ContextConfig controls evidence context assembly
type ContextConfig struct {
	BudgetChars int `yaml:"budget_chars"`
	MaxExcerpts int `yaml:"max_excerpts"`
}

// APIConfig represents the HTTP gateway configuration
type APIConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	EnableCORS     bool          `yaml:"enable_cors"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	EnableMetrics  bool          `yaml:"enable_metrics"`
}

// KafkaConfig represents ticket ingestion configuration
type KafkaConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Brokers       []string      `yaml:"brokers"`
	ClientID      string        `yaml:"client_id"`
	IngestTopic   string        `yaml:"ingest_topic"`
	EventsTopic   string        `yaml:"events_topic"`
	ConsumerGroup string        `yaml:"consumer_group"`
	MinBytes      int           `yaml:"min_bytes"`
	MaxBytes      int           `yaml:"max_bytes"`
	MaxWait       time.Duration `yaml:"max_wait"`
}

// CacheConfig represents the query-result cache configuration
type CacheConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration defaults
func Default() *Config {
	return &Config{
		Graph: GraphConfig{
			URI:         "bolt://localhost:7687",
			Database:    "neo4j",
			Username:    "neo4j",
			MaxPoolSize: 50,
			ConnTimeout: 30 * time.Second,
		},
		Vector: VectorConfig{
			DSN:        "postgres://localhost:5432/supportkg?sslmode=disable",
			Table:      "node_embeddings",
			Dimensions: 768,
			MaxConns:   20,
		},
		Embedding: EmbeddingConfig{
			Model:          "text-embedding-3-small",
			MaxRetries:     3,
			InitialBackoff: 200 * time.Millisecond,
			RequestTimeout: 15 * time.Second,
		},
		LLM: LLMConfig{
			Model:       "gpt-4o-mini",
			Temperature: 0.1,
		},
		Tree: TreeConfig{
			MaxComments:           50,
			MaxEntitiesPerSection: 20,
		},
		Linker: LinkerConfig{
			SimilarityThreshold: 0.3,
			TopK:                10,
			ShortlistSize:       50,
			BuildWorkers:        4,
		},
		Entity: EntityConfig{
			ConfidenceFloor: 0.35,
		},
		Retriever: RetrieverConfig{
			VectorK:     50,
			HopLimit:    2,
			MaxTickets:  25,
			CallTimeout: 5 * time.Second,
		},
		Scorer: ScorerConfig{
			TopN: 10,
		},
		Context: ContextConfig{
			BudgetChars: 8000,
			MaxExcerpts: 3,
		},
		API: APIConfig{
			Host:          "0.0.0.0",
			Port:          8080,
			ReadTimeout:   15 * time.Second,
			WriteTimeout:  30 * time.Second,
			IdleTimeout:   60 * time.Second,
			EnableCORS:    true,
			EnableMetrics: true,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ClientID:      "supportkg",
			IngestTopic:   "supportkg.tickets",
			EventsTopic:   "supportkg.events",
			ConsumerGroup: "supportkg-builder",
			MinBytes:      1,
			MaxBytes:      10 << 20,
			MaxWait:       500 * time.Millisecond,
		},
		Cache: CacheConfig{
			Addr:   "localhost:6379",
			Prefix: "supportkg",
			TTL:    5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads the YAML file at path over the defaults. Environment
// variables SUPPORTKG_OPENAI_KEY, SUPPORTKG_NEO4J_PASSWORD and
// SUPPORTKG_PG_DSN override their file counterparts so secrets stay out
// of the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if v := os.Getenv("SUPPORTKG_OPENAI_KEY"); v != "" {
		cfg.Embedding.APIKey = v
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("SUPPORTKG_NEO4J_PASSWORD"); v != "" {
		cfg.Graph.Password = v
	}
	if v := os.Getenv("SUPPORTKG_PG_DSN"); v != "" {
		cfg.Vector.DSN = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
