package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
graph:
  uri: "bolt://graph.internal:7687"
linker:
  similarity_threshold: 0.45
  top_k: 5
retriever:
  call_timeout: 2s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "bolt://graph.internal:7687", cfg.Graph.URI)
	assert.Equal(t, 0.45, cfg.Linker.SimilarityThreshold)
	assert.Equal(t, 5, cfg.Linker.TopK)
	assert.Equal(t, 2*time.Second, cfg.Retriever.CallTimeout)

	// Untouched sections keep their defaults
	assert.Equal(t, "neo4j", cfg.Graph.Username)
	assert.Equal(t, 50, cfg.Retriever.VectorK)
	assert.Equal(t, 8000, cfg.Context.BudgetChars)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SUPPORTKG_OPENAI_KEY", "sk-test")
	t.Setenv("SUPPORTKG_NEO4J_PASSWORD", "secret")
	t.Setenv("SUPPORTKG_PG_DSN", "postgres://db.internal:5432/kg")

	path := writeConfig(t, `
embedding:
  api_key: "from-file"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sk-test", cfg.Embedding.APIKey)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, "secret", cfg.Graph.Password)
	assert.Equal(t, "postgres://db.internal:5432/kg", cfg.Vector.DSN)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"threshold above one", func(c *Config) { c.Linker.SimilarityThreshold = 1.2 }},
		{"zero top_k", func(c *Config) { c.Linker.TopK = 0 }},
		{"shortlist below top_k", func(c *Config) { c.Linker.ShortlistSize = 3; c.Linker.TopK = 10 }},
		{"graph uri without scheme", func(c *Config) { c.Graph.URI = "localhost:7687" }},
		{"zero dimensions", func(c *Config) { c.Vector.Dimensions = 0 }},
		{"zero hop limit", func(c *Config) { c.Retriever.HopLimit = 0 }},
		{"negative confidence floor", func(c *Config) { c.Entity.ConfidenceFloor = -0.1 }},
		{"zero scorer top_n", func(c *Config) { c.Scorer.TopN = 0 }},
		{"zero context budget", func(c *Config) { c.Context.BudgetChars = 0 }},
		{"kafka enabled without brokers", func(c *Config) { c.Kafka.Enabled = true; c.Kafka.Brokers = nil }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
