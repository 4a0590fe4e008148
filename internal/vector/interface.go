// Package vector provides embedding generation and nearest-neighbor
// search over intra-issue tree nodes.
package vector

import (
	"context"
	"errors"

	"github.com/supportkg/pkg/models"
)

// ErrEmbeddingUnavailable means the embedding backend stayed down
// through the configured retry budget
var ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

// Embedder turns text into a vector. Deterministic for identical input
// within one model version.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// SearchFilter restricts a similarity search to a payload subset
type SearchFilter struct {
	SectionTypes []models.SectionType
	TicketIDs    []string
	EntityType   string
	ExcludeTicket string
}

// Hit is one nearest-neighbor result. Score is cosine similarity
// clamped to [0,1].
type Hit struct {
	Key         models.NodeKey     `json:"key"`
	SectionType models.SectionType `json:"section_type"`
	Value       string             `json:"value"`
	Score       float64            `json:"score"`
}

// Record is one node embedding to index
type Record struct {
	Key         models.NodeKey
	SectionType models.SectionType
	EntityType  string
	Text        string
	Vector      []float32
}

// SearchService is the read side consumed at query time
type SearchService interface {
	Search(ctx context.Context, vec []float32, k int, filter *SearchFilter) ([]Hit, error)

	// Similarities returns the cosine similarity of vec against the
	// given nodes. Nodes without an indexed embedding are absent from
	// the result.
	Similarities(ctx context.Context, vec []float32, keys []models.NodeKey) (map[models.NodeKey]float64, error)
}

// Store is the full vector index contract
type Store interface {
	SearchService

	// UpsertEmbeddings writes records idempotently keyed by
	// (ticket_id, node_id)
	UpsertEmbeddings(ctx context.Context, records []Record) error

	// DeleteTicket drops every embedding of the ticket, used on
	// re-ingestion
	DeleteTicket(ctx context.Context, ticketID string) error

	// Count returns the number of indexed vectors
	Count(ctx context.Context) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}
