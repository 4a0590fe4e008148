package synthesis

import (
	"fmt"
	"strings"

	"github.com/supportkg/internal/graph"
	"github.com/supportkg/pkg/models"
)

// expandRels is the relationship set the default traversal may walk:
// every intra-issue edge plus both inter-issue kinds.
var expandRels = strings.Join([]string{
	graph.RelHasDescription,
	graph.RelHasComment,
	graph.RelHasResolution,
	graph.RelMentionsEntity,
	graph.RelHasTag,
	graph.RelReferences,
	graph.RelSimilarTo,
}, "|")

// DefaultTemplate fills the two-hop traversal: match tickets whose
// entity or tag nodes intersect the mention values, expand up to hops
// along intra- and inter-issue edges, return the touched nodes bounded
// by limit. This template is the floor every synthesis strategy can
// fall back to.
func DefaultTemplate(mentions []models.EntityMention, hops, limit int) graph.TraversalQuery {
	if hops < 1 {
		hops = 1
	}
	if limit <= 0 {
		limit = 100
	}

	values := make([]string, 0, len(mentions))
	for _, m := range mentions {
		values = append(values, m.SurfaceValue)
	}

	cypher := fmt.Sprintf(`MATCH (i:%s)-[:%s|%s]->(e)
WHERE e.value IN $values
OPTIONAL MATCH (i)-[:%s*1..%d]-(related)
RETURN i, e, related
LIMIT $limit`,
		graph.LabelIssue, graph.RelMentionsEntity, graph.RelHasTag,
		expandRels, hops)

	return graph.TraversalQuery{
		Cypher: cypher,
		Params: map[string]interface{}{
			"values": values,
			"limit":  limit,
		},
		Limit: limit,
	}
}

// typedTemplate narrows the match to entity nodes of the mentioned
// section types when every mention carries a usable type guess
func typedTemplate(mentions []models.EntityMention, hops, limit int) graph.TraversalQuery {
	q := DefaultTemplate(mentions, hops, limit)

	types := make([]string, 0, len(mentions))
	seen := map[string]bool{}
	for _, m := range mentions {
		if m.SectionTypeGuess == "" {
			return q
		}
		if !seen[m.SectionTypeGuess] {
			seen[m.SectionTypeGuess] = true
			types = append(types, m.SectionTypeGuess)
		}
	}

	q.Cypher = strings.Replace(q.Cypher,
		"WHERE e.value IN $values",
		"WHERE e.value IN $values AND (e.entity_type IN $types OR e.entity_type = '')",
		1)
	q.Params["types"] = types
	return q
}
