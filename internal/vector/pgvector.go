package vector

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/supportkg/internal/config"
	"github.com/supportkg/pkg/models"
)

// PgStore implements Store on Postgres with the pgvector extension
type PgStore struct {
	db    *sql.DB
	table string
	dims  int
}

// NewPgStore opens the database, ensures the extension and the
// embeddings table exist and returns the store
func NewPgStore(ctx context.Context, cfg config.VectorConfig) (*PgStore, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxConns)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	s := &PgStore{db: db, table: cfg.Table, dims: cfg.Dimensions}
	if err := s.initializeSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PgStore) initializeSchema(ctx context.Context) error {
	statements := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			ticket_id    text NOT NULL,
			node_id      text NOT NULL,
			section_type text NOT NULL,
			entity_type  text NOT NULL DEFAULT '',
			content      text NOT NULL,
			embedding    vector(%d) NOT NULL,
			PRIMARY KEY (ticket_id, node_id)
		)`, s.table, s.dims),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_section_idx ON %s (section_type)", s.table, s.table),
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("vector schema statement failed: %w", err)
		}
	}
	return nil
}

// Search runs cosine nearest-neighbor search with an optional payload
// filter. Results come back ordered by similarity descending.
func (s *PgStore) Search(ctx context.Context, vec []float32, k int, filter *SearchFilter) ([]Hit, error) {
	if len(vec) == 0 {
		return nil, fmt.Errorf("empty query vector")
	}
	if k <= 0 {
		k = 10
	}

	var (
		conds []string
		args  []interface{}
	)
	args = append(args, pgvector.NewVector(vec))
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter != nil {
		if len(filter.SectionTypes) > 0 {
			var ph []string
			for _, st := range filter.SectionTypes {
				ph = append(ph, arg(string(st)))
			}
			conds = append(conds, fmt.Sprintf("section_type IN (%s)", strings.Join(ph, ", ")))
		}
		if len(filter.TicketIDs) > 0 {
			var ph []string
			for _, id := range filter.TicketIDs {
				ph = append(ph, arg(id))
			}
			conds = append(conds, fmt.Sprintf("ticket_id IN (%s)", strings.Join(ph, ", ")))
		}
		if filter.EntityType != "" {
			conds = append(conds, fmt.Sprintf("entity_type = %s", arg(filter.EntityType)))
		}
		if filter.ExcludeTicket != "" {
			conds = append(conds, fmt.Sprintf("ticket_id <> %s", arg(filter.ExcludeTicket)))
		}
	}

	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT ticket_id, node_id, section_type, content,
		       1 - (embedding <=> $1) AS score
		FROM %s
		%s
		ORDER BY embedding <=> $1
		LIMIT %s`, s.table, where, arg(k))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		var section string
		if err := rows.Scan(&h.Key.TicketID, &h.Key.NodeID, &section, &h.Value, &h.Score); err != nil {
			return nil, fmt.Errorf("vector search scan failed: %w", err)
		}
		h.SectionType = models.SectionType(section)
		// Cosine similarity of arbitrary vectors lands in [-1,1];
		// the contract promises [0,1].
		if h.Score < 0 {
			h.Score = 0
		} else if h.Score > 1 {
			h.Score = 1
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// Similarities computes cosine similarity of vec against specific nodes
func (s *PgStore) Similarities(ctx context.Context, vec []float32, keys []models.NodeKey) (map[models.NodeKey]float64, error) {
	if len(vec) == 0 || len(keys) == 0 {
		return nil, nil
	}

	args := []interface{}{pgvector.NewVector(vec)}
	tuples := make([]string, 0, len(keys))
	for _, k := range keys {
		args = append(args, k.TicketID, k.NodeID)
		tuples = append(tuples, fmt.Sprintf("($%d, $%d)", len(args)-1, len(args)))
	}

	query := fmt.Sprintf(`
		SELECT ticket_id, node_id, 1 - (embedding <=> $1) AS score
		FROM %s
		WHERE (ticket_id, node_id) IN (%s)`, s.table, strings.Join(tuples, ", "))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("similarity lookup failed: %w", err)
	}
	defer rows.Close()

	out := make(map[models.NodeKey]float64, len(keys))
	for rows.Next() {
		var key models.NodeKey
		var score float64
		if err := rows.Scan(&key.TicketID, &key.NodeID, &score); err != nil {
			return nil, fmt.Errorf("similarity scan failed: %w", err)
		}
		if score < 0 {
			score = 0
		} else if score > 1 {
			score = 1
		}
		out[key] = score
	}
	return out, rows.Err()
}

// UpsertEmbeddings writes records keyed by (ticket_id, node_id)
func (s *PgStore) UpsertEmbeddings(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (ticket_id, node_id, section_type, entity_type, content, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (ticket_id, node_id) DO UPDATE SET
			section_type = EXCLUDED.section_type,
			entity_type  = EXCLUDED.entity_type,
			content      = EXCLUDED.content,
			embedding    = EXCLUDED.embedding`, s.table))
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if len(r.Vector) != s.dims {
			return fmt.Errorf("embedding for %s/%s has %d dimensions, want %d",
				r.Key.TicketID, r.Key.NodeID, len(r.Vector), s.dims)
		}
		_, err := stmt.ExecContext(ctx,
			r.Key.TicketID, r.Key.NodeID, string(r.SectionType),
			r.EntityType, r.Text, pgvector.NewVector(r.Vector))
		if err != nil {
			return fmt.Errorf("failed to upsert embedding %s/%s: %w", r.Key.TicketID, r.Key.NodeID, err)
		}
	}
	return tx.Commit()
}

// DeleteTicket drops all embeddings belonging to the ticket
func (s *PgStore) DeleteTicket(ctx context.Context, ticketID string) error {
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE ticket_id = $1", s.table), ticketID)
	if err != nil {
		return fmt.Errorf("failed to delete embeddings for %s: %w", ticketID, err)
	}
	return nil
}

// Count returns the number of indexed vectors
func (s *PgStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT count(*) FROM %s", s.table)).Scan(&n)
	return n, err
}

// Ping verifies connectivity
func (s *PgStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the connection pool
func (s *PgStore) Close() error {
	return s.db.Close()
}
