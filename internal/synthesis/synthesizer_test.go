package synthesis

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supportkg/internal/graph"
	"github.com/supportkg/pkg/models"
)

// stubAssist returns a fixed Cypher string or error
type stubAssist struct {
	cypher string
	err    error
}

func (s *stubAssist) SynthesizeCypher(context.Context, string, []models.EntityMention, models.Intent) (string, error) {
	return s.cypher, s.err
}

func mentionSet(types ...string) []models.EntityMention {
	var out []models.EntityMention
	for i, typ := range types {
		out = append(out, models.EntityMention{
			SectionTypeGuess: typ,
			SurfaceValue:     string(rune('a' + i)),
			Confidence:       0.6,
		})
	}
	return out
}

func TestDefaultTemplateValidates(t *testing.T) {
	q := DefaultTemplate(mentionSet("error"), 2, 100)
	require.NoError(t, graph.ValidateTraversal(q.Cypher))
	assert.Contains(t, q.Cypher, "*1..2")
	assert.Equal(t, []string{"a"}, q.Params["values"])
	assert.Equal(t, 100, q.Limit)
}

func TestTypedTemplateCarriesTypes(t *testing.T) {
	q := typedTemplate(mentionSet("error", "product"), 2, 50)
	require.NoError(t, graph.ValidateTraversal(q.Cypher))
	assert.Contains(t, q.Cypher, "$types")
	assert.Equal(t, []string{"error", "product"}, q.Params["types"])
}

func TestTypedTemplateFallsBackWhenGuessMissing(t *testing.T) {
	mentions := mentionSet("error")
	mentions = append(mentions, models.EntityMention{SurfaceValue: "mystery", Confidence: 0.5})

	q := typedTemplate(mentions, 2, 50)
	assert.NotContains(t, q.Cypher, "$types")
}

func TestSynthesizeWithoutAssistUsesTemplate(t *testing.T) {
	s := New(nil)
	q := s.Synthesize(context.Background(), "login broken", mentionSet("error", "action"), models.IntentTroubleshooting, 2, 100)
	require.NoError(t, graph.ValidateTraversal(q.Cypher))
	assert.Contains(t, q.Cypher, "MATCH")
}

func TestSynthesizeAcceptsValidAssistOutput(t *testing.T) {
	s := New(&stubAssist{cypher: "```cypher\nMATCH (i:Issue)-[:MENTIONS_ENTITY]->(e:Entity) WHERE e.value IN $values RETURN i, e\n```"})
	// Three distinct type guesses route through the assist
	mentions := mentionSet("error", "product", "action")

	q := s.Synthesize(context.Background(), "complex query", mentions, models.IntentTroubleshooting, 2, 40)
	assert.Contains(t, q.Cypher, "MATCH (i:Issue)")
	assert.NotContains(t, q.Cypher, "```")
	// A missing LIMIT clause is appended
	assert.Contains(t, q.Cypher, "LIMIT 40")
}

func TestSynthesizeRejectsUnknownSchema(t *testing.T) {
	s := New(&stubAssist{cypher: "MATCH (u:User)-[:OWNS]->(x) RETURN u"})
	mentions := mentionSet("error", "product", "action")

	q := s.Synthesize(context.Background(), "complex query", mentions, models.IntentTroubleshooting, 2, 100)
	// Invalid assist output silently degrades to the validated template
	require.NoError(t, graph.ValidateTraversal(q.Cypher))
	assert.NotContains(t, q.Cypher, "User")
}

func TestSynthesizeRejectsNonMatchOutput(t *testing.T) {
	s := New(&stubAssist{cypher: "DROP DATABASE neo4j"})
	mentions := mentionSet("error", "product", "action")

	q := s.Synthesize(context.Background(), "complex query", mentions, models.IntentTroubleshooting, 2, 100)
	require.NoError(t, graph.ValidateTraversal(q.Cypher))
	assert.NotContains(t, q.Cypher, "DROP")
}

func TestSynthesizeSurvivesAssistError(t *testing.T) {
	s := New(&stubAssist{err: errors.New("model unavailable")})
	mentions := mentionSet("error", "product", "action")

	q := s.Synthesize(context.Background(), "complex query", mentions, models.IntentTroubleshooting, 2, 100)
	require.NoError(t, graph.ValidateTraversal(q.Cypher))
	assert.NotEmpty(t, q.Cypher)
}
