package graph

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/supportkg/internal/config"
	"github.com/supportkg/pkg/logger"
	"github.com/supportkg/pkg/models"
)

// Neo4jStore implements Store on the Neo4j driver
type Neo4jStore struct {
	driver neo4j.DriverWithContext
	cfg    config.GraphConfig
	log    *slog.Logger
}

// NewNeo4jStore connects to Neo4j, verifies connectivity and ensures the
// schema constraints exist
func NewNeo4jStore(ctx context.Context, cfg config.GraphConfig) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriverWithContext(
		cfg.URI,
		neo4j.BasicAuth(cfg.Username, cfg.Password, ""),
		func(c *neo4j.Config) {
			c.MaxConnectionPoolSize = cfg.MaxPoolSize
			c.MaxConnectionLifetime = time.Hour
			c.ConnectionAcquisitionTimeout = cfg.ConnTimeout
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Neo4j driver: %w", err)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, cfg.ConnTimeout)
	defer cancel()
	if err := driver.VerifyConnectivity(verifyCtx); err != nil {
		return nil, fmt.Errorf("failed to verify Neo4j connectivity: %w", err)
	}

	s := &Neo4jStore{driver: driver, cfg: cfg, log: logger.With("graph")}
	if err := s.initializeSchema(ctx); err != nil {
		s.log.Warn("failed to initialize schema", "error", err)
	}
	return s, nil
}

func (s *Neo4jStore) initializeSchema(ctx context.Context) error {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	statements := []string{
		fmt.Sprintf("CREATE CONSTRAINT issue_id IF NOT EXISTS FOR (n:%s) REQUIRE n.id IS UNIQUE", LabelIssue),
		fmt.Sprintf("CREATE INDEX entity_value IF NOT EXISTS FOR (n:%s) ON (n.value)", LabelEntity),
		fmt.Sprintf("CREATE INDEX tag_value IF NOT EXISTS FOR (n:%s) ON (n.value)", LabelTag),
	}
	for _, stmt := range statements {
		if _, err := session.Run(ctx, stmt, nil); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	return nil
}

func (s *Neo4jStore) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   mode,
		DatabaseName: s.cfg.Database,
	})
}

// UpsertTicketTree replaces the ticket's tree in a single write
// transaction: detach-delete the previous section nodes, then recreate
// the root and its children.
func (s *Neo4jStore) UpsertTicketTree(ctx context.Context, t *models.Ticket) error {
	root := t.Root()
	if root == nil {
		return fmt.Errorf("ticket %s has no root node", t.TicketID)
	}

	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, fmt.Sprintf(`
			MATCH (i:%s {id: $id})
			OPTIONAL MATCH (i)-[:%s|%s|%s|%s|%s|%s|%s]->(child)
			DETACH DELETE child, i`,
			LabelIssue,
			RelHasDescription, RelHasComment, RelHasResolution,
			RelMentionsEntity, RelHasTag, RelHasStatus, RelHasPriority),
			map[string]interface{}{"id": t.TicketID})
		if err != nil {
			return nil, err
		}

		_, err = tx.Run(ctx, fmt.Sprintf(`
			CREATE (i:%s {
				id: $id,
				title: $title,
				created_at: $created_at,
				updated_at: $updated_at
			})`, LabelIssue),
			map[string]interface{}{
				"id":         t.TicketID,
				"title":      t.Title,
				"created_at": t.CreatedAt.UTC().Format(time.RFC3339),
				"updated_at": t.UpdatedAt.UTC().Format(time.RFC3339),
			})
		if err != nil {
			return nil, err
		}

		for i := range t.Nodes {
			n := &t.Nodes[i]
			if n.SectionType == models.SectionRoot {
				continue
			}
			label, rel, ok := sectionLabel(n.SectionType)
			if !ok {
				return nil, fmt.Errorf("node %s has unknown section type %q", n.NodeID, n.SectionType)
			}
			_, err = tx.Run(ctx, fmt.Sprintf(`
				MATCH (i:%s {id: $ticket_id})
				CREATE (i)-[:%s]->(c:%s {
					node_id: $node_id,
					ticket_id: $ticket_id,
					section_type: $section_type,
					value: $value,
					entity_type: $entity_type,
					confidence: $confidence
				})`, LabelIssue, rel, label),
				map[string]interface{}{
					"ticket_id":    t.TicketID,
					"node_id":      n.NodeID,
					"section_type": string(n.SectionType),
					"value":        n.Value,
					"entity_type":  n.EntityType,
					"confidence":   n.Confidence,
				})
			if err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("failed to upsert ticket tree %s: %w", t.TicketID, err)
	}
	return nil
}

// UpsertEdges writes edges with MERGE so re-running the linker or racing
// retries produce the same edge set
func (s *Neo4jStore) UpsertEdges(ctx context.Context, edges []models.Edge) error {
	if len(edges) == 0 {
		return nil
	}
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, e := range edges {
			if err := e.Validate(); err != nil {
				return nil, err
			}
			var cypher string
			switch e.Kind {
			case models.EdgeExplicitReference:
				cypher = fmt.Sprintf(`
					MATCH (a:%s {id: $src}), (b:%s {id: $dst})
					MERGE (a)-[r:%s]->(b)
					SET r.weight = $weight`, LabelIssue, LabelIssue, RelReferences)
			case models.EdgeImplicitSimilar:
				// Undirected merge: one edge regardless of the
				// direction it was nominated from.
				cypher = fmt.Sprintf(`
					MATCH (a:%s {id: $src}), (b:%s {id: $dst})
					MERGE (a)-[r:%s]-(b)
					SET r.weight = $weight`, LabelIssue, LabelIssue, RelSimilarTo)
			}
			_, err := tx.Run(ctx, cypher, map[string]interface{}{
				"src":    e.SourceTicket,
				"dst":    e.TargetTicket,
				"weight": e.Weight,
			})
			if err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("failed to upsert edges: %w", err)
	}
	return nil
}

// DeleteTicketEdges drops every derived inter-issue edge touching the
// ticket
func (s *Neo4jStore) DeleteTicketEdges(ctx context.Context, ticketID string) error {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.Run(ctx, fmt.Sprintf(`
		MATCH (i:%s {id: $id})-[r:%s|%s]-()
		DELETE r`, LabelIssue, RelReferences, RelSimilarTo),
		map[string]interface{}{"id": ticketID})
	if err != nil {
		return fmt.Errorf("failed to delete edges for %s: %w", ticketID, err)
	}
	return nil
}

// GetTickets loads whole trees for the given ids
func (s *Neo4jStore) GetTickets(ctx context.Context, ids []string) ([]models.Ticket, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	res, err := session.Run(ctx, fmt.Sprintf(`
		MATCH (i:%s)
		WHERE i.id IN $ids
		OPTIONAL MATCH (i)-->(c)
		RETURN i.id AS id, i.title AS title,
		       i.created_at AS created_at, i.updated_at AS updated_at,
		       collect(c) AS children`, LabelIssue),
		map[string]interface{}{"ids": ids})
	if err != nil {
		return nil, fmt.Errorf("failed to load tickets: %w", err)
	}

	var tickets []models.Ticket
	for res.Next(ctx) {
		rec := res.Record()
		t := models.Ticket{
			TicketID:  stringValue(rec, "id"),
			Title:     stringValue(rec, "title"),
			CreatedAt: timeValue(rec, "created_at"),
			UpdatedAt: timeValue(rec, "updated_at"),
		}
		t.Nodes = append(t.Nodes, models.Node{
			NodeID:      t.TicketID,
			TicketID:    t.TicketID,
			SectionType: models.SectionRoot,
			Value:       t.Title,
		})
		t.Parents = append(t.Parents, -1)

		children, _ := rec.Get("children")
		if list, ok := children.([]any); ok {
			for _, item := range list {
				node, ok := item.(neo4j.Node)
				if !ok {
					continue
				}
				props := node.Props
				t.Nodes = append(t.Nodes, models.Node{
					NodeID:      propString(props, "node_id"),
					TicketID:    t.TicketID,
					SectionType: models.SectionType(propString(props, "section_type")),
					Value:       propString(props, "value"),
					EntityType:  propString(props, "entity_type"),
					Confidence:  propFloat(props, "confidence"),
				})
				t.Parents = append(t.Parents, 0)
			}
		}
		tickets = append(tickets, t)
	}
	if err := res.Err(); err != nil {
		return nil, fmt.Errorf("failed to load tickets: %w", err)
	}
	return tickets, nil
}

// GetEdges returns inter-issue edges whose both endpoints are in ids
func (s *Neo4jStore) GetEdges(ctx context.Context, ids []string) ([]models.Edge, error) {
	if len(ids) < 2 {
		return nil, nil
	}
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	res, err := session.Run(ctx, fmt.Sprintf(`
		MATCH (a:%s)-[r:%s|%s]->(b:%s)
		WHERE a.id IN $ids AND b.id IN $ids
		RETURN a.id AS src, b.id AS dst, type(r) AS kind, r.weight AS weight`,
		LabelIssue, RelReferences, RelSimilarTo, LabelIssue),
		map[string]interface{}{"ids": ids})
	if err != nil {
		return nil, fmt.Errorf("failed to load edges: %w", err)
	}

	var edges []models.Edge
	for res.Next(ctx) {
		rec := res.Record()
		kind := models.EdgeImplicitSimilar
		if stringValue(rec, "kind") == RelReferences {
			kind = models.EdgeExplicitReference
		}
		edges = append(edges, models.Edge{
			SourceTicket: stringValue(rec, "src"),
			TargetTicket: stringValue(rec, "dst"),
			Kind:         kind,
			Weight:       floatValue(rec, "weight"),
		})
	}
	return edges, res.Err()
}

// TicketExists reports whether the ticket root is present
func (s *Neo4jStore) TicketExists(ctx context.Context, id string) (bool, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	res, err := session.Run(ctx, fmt.Sprintf(
		"MATCH (i:%s {id: $id}) RETURN count(i) AS n", LabelIssue),
		map[string]interface{}{"id": id})
	if err != nil {
		return false, err
	}
	rec, err := res.Single(ctx)
	if err != nil {
		return false, err
	}
	n, _ := rec.Get("n")
	count, _ := n.(int64)
	return count > 0, nil
}

// FindReferencingTickets returns ids of tickets whose title or section
// text contains ticketID as a substring
func (s *Neo4jStore) FindReferencingTickets(ctx context.Context, ticketID string) ([]string, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	res, err := session.Run(ctx, fmt.Sprintf(`
		MATCH (i:%s) WHERE i.id <> $id
		OPTIONAL MATCH (i)-[:%s|%s|%s]->(s)
		WITH i, collect(s.value) AS vals
		WHERE i.title CONTAINS $id OR any(v IN vals WHERE v CONTAINS $id)
		RETURN i.id AS id ORDER BY id`,
		LabelIssue, RelHasDescription, RelHasComment, RelHasResolution),
		map[string]interface{}{"id": ticketID})
	if err != nil {
		return nil, fmt.Errorf("failed to find referrers of %s: %w", ticketID, err)
	}
	var ids []string
	for res.Next(ctx) {
		ids = append(ids, stringValue(res.Record(), "id"))
	}
	return ids, res.Err()
}

// ListTicketIDs returns every ticket id, ordered
func (s *Neo4jStore) ListTicketIDs(ctx context.Context) ([]string, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	res, err := session.Run(ctx, fmt.Sprintf(
		"MATCH (i:%s) RETURN i.id AS id ORDER BY id", LabelIssue), nil)
	if err != nil {
		return nil, err
	}
	var ids []string
	for res.Next(ctx) {
		ids = append(ids, stringValue(res.Record(), "id"))
	}
	return ids, res.Err()
}

// RunTraversal validates and executes a synthesized traversal
func (s *Neo4jStore) RunTraversal(ctx context.Context, q TraversalQuery) (*TraversalResult, error) {
	if err := ValidateTraversal(q.Cypher); err != nil {
		return nil, fmt.Errorf("traversal rejected: %w", err)
	}

	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	res, err := session.Run(ctx, q.Cypher, q.Params)
	if err != nil {
		return nil, fmt.Errorf("traversal failed: %w", err)
	}

	out := &TraversalResult{}
	for res.Next(ctx) {
		rec := res.Record()
		for _, key := range rec.Keys {
			v, _ := rec.Get(key)
			node, ok := v.(neo4j.Node)
			if !ok {
				continue
			}
			out.Rows = append(out.Rows, rowFromNode(node))
		}
		if q.Limit > 0 && len(out.Rows) >= q.Limit {
			break
		}
	}
	if err := res.Err(); err != nil {
		return nil, fmt.Errorf("traversal failed: %w", err)
	}
	return out, nil
}

func rowFromNode(node neo4j.Node) TraversalRow {
	props := node.Props
	row := TraversalRow{
		TicketID: propString(props, "ticket_id"),
		NodeID:   propString(props, "node_id"),
		Value:    propString(props, "value"),
	}
	if st := propString(props, "section_type"); st != "" {
		row.SectionType = models.SectionType(st)
	} else if len(node.Labels) > 0 {
		row.SectionType = sectionForLabel(node.Labels[0])
	}
	// Issue roots carry id/title instead of node_id/value
	if row.NodeID == "" {
		row.TicketID = propString(props, "id")
		row.NodeID = row.TicketID
		row.Value = propString(props, "title")
		row.SectionType = models.SectionRoot
	}
	return row
}

// ExpandTickets walks REFERENCES and SIMILAR_TO edges from the seeds
func (s *Neo4jStore) ExpandTickets(ctx context.Context, seeds []string, hops int) ([]string, error) {
	if len(seeds) == 0 {
		return nil, nil
	}
	if hops < 1 {
		return seeds, nil
	}
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	// Variable-length bounds cannot be parameterized in Cypher, so the
	// hop limit is interpolated after range clamping.
	if hops > 5 {
		hops = 5
	}
	res, err := session.Run(ctx, fmt.Sprintf(`
		MATCH (i:%s)
		WHERE i.id IN $seeds
		OPTIONAL MATCH (i)-[:%s|%s*1..%d]-(j:%s)
		RETURN i.id AS seed, collect(DISTINCT j.id) AS reached`,
		LabelIssue, RelReferences, RelSimilarTo, hops, LabelIssue),
		map[string]interface{}{"seeds": seeds})
	if err != nil {
		return nil, fmt.Errorf("failed to expand tickets: %w", err)
	}

	seen := make(map[string]bool)
	var out []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for res.Next(ctx) {
		rec := res.Record()
		add(stringValue(rec, "seed"))
		if reached, ok := rec.Get("reached"); ok {
			if list, ok := reached.([]any); ok {
				for _, v := range list {
					if id, ok := v.(string); ok {
						add(id)
					}
				}
			}
		}
	}
	return out, res.Err()
}

// Stats returns corpus-level counts
func (s *Neo4jStore) Stats(ctx context.Context) (Stats, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	var stats Stats
	queries := []struct {
		cypher string
		target *int64
	}{
		{"MATCH (n) RETURN count(n) AS n", &stats.Nodes},
		{"MATCH ()-[r]->() RETURN count(r) AS n", &stats.Relationships},
		{fmt.Sprintf("MATCH (i:%s) RETURN count(i) AS n", LabelIssue), &stats.Tickets},
		{fmt.Sprintf("MATCH ()-[r:%s]->() RETURN count(r) AS n", RelReferences), &stats.ExplicitEdges},
		{fmt.Sprintf("MATCH ()-[r:%s]-() RETURN count(DISTINCT r) AS n", RelSimilarTo), &stats.ImplicitEdges},
	}
	for _, q := range queries {
		res, err := session.Run(ctx, q.cypher, nil)
		if err != nil {
			return stats, fmt.Errorf("stats query failed: %w", err)
		}
		rec, err := res.Single(ctx)
		if err != nil {
			return stats, fmt.Errorf("stats query failed: %w", err)
		}
		v, _ := rec.Get("n")
		if n, ok := v.(int64); ok {
			*q.target = n
		}
	}
	return stats, nil
}

// Ping verifies connectivity
func (s *Neo4jStore) Ping(ctx context.Context) error {
	return s.driver.VerifyConnectivity(ctx)
}

// Close releases the driver
func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func stringValue(rec *neo4j.Record, key string) string {
	v, ok := rec.Get(key)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func floatValue(rec *neo4j.Record, key string) float64 {
	v, ok := rec.Get(key)
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	}
	return 0
}

func timeValue(rec *neo4j.Record, key string) time.Time {
	s := stringValue(rec, key)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func propString(props map[string]any, key string) string {
	s, _ := props[key].(string)
	return s
}

func propFloat(props map[string]any, key string) float64 {
	switch n := props[key].(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	}
	return 0
}
