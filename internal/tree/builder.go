// Package tree converts parsed tickets into intra-issue trees.
package tree

import (
	"fmt"
	"sort"
	"strings"

	"github.com/supportkg/internal/config"
	"github.com/supportkg/pkg/models"
)

// Builder turns one parsed ticket record into the ticket's node tree.
// Builders are stateless and safe for concurrent use across tickets.
type Builder struct {
	cfg config.TreeConfig
}

// NewBuilder creates a tree builder with the given size caps
func NewBuilder(cfg config.TreeConfig) *Builder {
	return &Builder{cfg: cfg}
}

// Build constructs the intra-issue tree for raw. The root node represents
// the ticket itself; every section becomes a child of the root. Partial
// data (no resolution, no comments) just omits that subtree.
//
// Caps are deterministic: when a ticket carries more comments than
// max_comments the newest are kept, and when a section carries more
// entities than max_entities_per_section the highest-confidence ones are
// kept.
func (b *Builder) Build(raw models.RawTicket) (*models.Ticket, error) {
	if strings.TrimSpace(raw.TicketID) == "" {
		return nil, &MalformedTicketError{Reason: "missing ticket identifier"}
	}
	if strings.TrimSpace(raw.Title) == "" {
		return nil, &MalformedTicketError{TicketID: raw.TicketID, Reason: "empty title"}
	}

	t := &models.Ticket{
		TicketID:  raw.TicketID,
		Title:     raw.Title,
		CreatedAt: raw.CreatedAt,
		UpdatedAt: raw.UpdatedAt,
	}

	root := b.addNode(t, -1, models.Node{
		NodeID:      raw.TicketID,
		SectionType: models.SectionRoot,
		Value:       raw.Title,
	})

	if raw.Description != "" {
		b.addNode(t, root, models.Node{
			NodeID:      raw.TicketID + "_desc",
			SectionType: models.SectionDescription,
			Value:       raw.Description,
		})
	}

	for i, c := range cappedComments(raw.Comments, b.cfg.MaxComments) {
		value := c.Text
		if c.Author != "" {
			value = fmt.Sprintf("%s: %s", c.Author, c.Text)
		}
		b.addNode(t, root, models.Node{
			NodeID:      fmt.Sprintf("%s_comment_%d", raw.TicketID, i),
			SectionType: models.SectionComment,
			Value:       value,
		})
	}

	if raw.Resolution != "" {
		b.addNode(t, root, models.Node{
			NodeID:      raw.TicketID + "_res",
			SectionType: models.SectionResolution,
			Value:       raw.Resolution,
		})
	}

	if raw.Status != "" {
		b.addNode(t, root, models.Node{
			NodeID:      raw.TicketID + "_status",
			SectionType: models.SectionStatus,
			Value:       strings.ToLower(raw.Status),
		})
	}
	if raw.Priority != "" {
		b.addNode(t, root, models.Node{
			NodeID:      raw.TicketID + "_priority",
			SectionType: models.SectionPriority,
			Value:       strings.ToLower(raw.Priority),
		})
	}

	entities := raw.Entities
	if raw.Product != "" {
		entities = append(entities, models.ExtractedEntity{
			Type:       "product",
			Value:      raw.Product,
			Confidence: 1.0,
		})
	}
	for i, e := range cappedEntities(entities, b.cfg.MaxEntitiesPerSection) {
		b.addNode(t, root, models.Node{
			NodeID:      fmt.Sprintf("%s_entity_%d", raw.TicketID, i),
			SectionType: models.SectionEntity,
			Value:       strings.ToLower(strings.TrimSpace(e.Value)),
			EntityType:  e.Type,
			Confidence:  e.Confidence,
		})
	}

	for i, tag := range raw.Tags {
		b.addNode(t, root, models.Node{
			NodeID:      fmt.Sprintf("%s_tag_%d", raw.TicketID, i),
			SectionType: models.SectionTag,
			Value:       strings.ToLower(strings.TrimSpace(tag)),
		})
	}

	return t, nil
}

func (b *Builder) addNode(t *models.Ticket, parent int, n models.Node) int {
	n.TicketID = t.TicketID
	t.Nodes = append(t.Nodes, n)
	t.Parents = append(t.Parents, parent)
	return len(t.Nodes) - 1
}

// cappedComments keeps the newest max comments in original order. A zero
// or negative max means unbounded.
func cappedComments(comments []models.Comment, max int) []models.Comment {
	if max <= 0 || len(comments) <= max {
		return comments
	}
	sorted := make([]models.Comment, len(comments))
	copy(sorted, comments)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	return sorted[len(sorted)-max:]
}

// cappedEntities keeps the max highest-confidence entities per section
// type, dropping normalized duplicates first.
func cappedEntities(entities []models.ExtractedEntity, max int) []models.ExtractedEntity {
	seen := make(map[string]bool, len(entities))
	byType := make(map[string][]models.ExtractedEntity)
	var types []string
	for _, e := range entities {
		key := e.Type + "|" + strings.ToLower(strings.TrimSpace(e.Value))
		if e.Value == "" || seen[key] {
			continue
		}
		seen[key] = true
		if _, ok := byType[e.Type]; !ok {
			types = append(types, e.Type)
		}
		byType[e.Type] = append(byType[e.Type], e)
	}

	var out []models.ExtractedEntity
	for _, typ := range types {
		group := byType[typ]
		if max > 0 && len(group) > max {
			sort.SliceStable(group, func(i, j int) bool {
				return group[i].Confidence > group[j].Confidence
			})
			group = group[:max]
		}
		out = append(out, group...)
	}
	return out
}

// Verify checks the tree invariant: exactly one root, every other node
// exactly one in-ticket parent, no cycles.
func Verify(t *models.Ticket) error {
	if len(t.Nodes) != len(t.Parents) {
		return fmt.Errorf("ticket %s: node/parent arena length mismatch", t.TicketID)
	}
	roots := 0
	for i, p := range t.Parents {
		switch {
		case p < 0:
			roots++
			if t.Nodes[i].SectionType != models.SectionRoot {
				return fmt.Errorf("ticket %s: parentless node %s is not the root", t.TicketID, t.Nodes[i].NodeID)
			}
		case p >= len(t.Nodes):
			return fmt.Errorf("ticket %s: node %s has out-of-range parent", t.TicketID, t.Nodes[i].NodeID)
		}
	}
	if roots != 1 {
		return fmt.Errorf("ticket %s: expected exactly one root, found %d", t.TicketID, roots)
	}
	// Walk parent chains; revisiting a node within one chain means a cycle.
	for i := range t.Nodes {
		visited := make(map[int]bool)
		for j := i; j >= 0; j = t.Parents[j] {
			if visited[j] {
				return fmt.Errorf("ticket %s: cycle through node %s", t.TicketID, t.Nodes[j].NodeID)
			}
			visited[j] = true
		}
	}
	return nil
}

// EmbedText renders the text that gets embedded for a node, typed the
// same way the index was built so query-time similarities stay
// comparable.
func EmbedText(t *models.Ticket, n *models.Node) string {
	switch n.SectionType {
	case models.SectionRoot:
		var sb strings.Builder
		fmt.Fprintf(&sb, "Title: %s.", t.Title)
		if d := t.NodesOfType(models.SectionDescription); len(d) > 0 {
			fmt.Fprintf(&sb, " Description: %s.", d[0].Value)
		}
		if s := t.NodesOfType(models.SectionStatus); len(s) > 0 {
			fmt.Fprintf(&sb, " Status: %s.", s[0].Value)
		}
		if p := t.NodesOfType(models.SectionPriority); len(p) > 0 {
			fmt.Fprintf(&sb, " Priority: %s.", p[0].Value)
		}
		return sb.String()
	case models.SectionDescription:
		return "Description: " + n.Value
	case models.SectionComment:
		return "Comment by " + n.Value
	case models.SectionResolution:
		return "Resolution: " + n.Value
	case models.SectionEntity:
		return "Entity: " + n.Value
	case models.SectionTag:
		return "Tag: " + n.Value
	default:
		return fmt.Sprintf("%s: %s", n.SectionType, n.Value)
	}
}
