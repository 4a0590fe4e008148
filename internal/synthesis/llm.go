package synthesis

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/supportkg/internal/config"
	"github.com/supportkg/pkg/models"
)

const cypherPrompt = `You are a Neo4j Cypher expert for a support ticket knowledge graph.

User query: %q
Detected intent: %s
Entity mentions (type=value): %s

Graph schema:
Node labels: Issue, Description, Comment, Resolution, Entity, Tag, Status, Priority.
Issue properties: id, title, created_at, updated_at.
Section node properties: node_id, ticket_id, section_type, value, entity_type, confidence.
Relationships from Issue: HAS_DESCRIPTION, HAS_COMMENT, HAS_RESOLUTION, MENTIONS_ENTITY, HAS_TAG, HAS_STATUS, HAS_PRIORITY.
Relationships between Issues: REFERENCES, SIMILAR_TO.

Write one Cypher query that finds the Issue nodes most relevant to the
user query together with their related section nodes. The query MUST
start with MATCH, may use the parameters $values (mention values) and
$limit, and must not reference labels or relationship types outside the
schema. Return ONLY the Cypher query, no explanation.`

// OpenAIAssist implements Assist on a chat model
type OpenAIAssist struct {
	client *openai.Client
	cfg    config.LLMConfig
}

// NewOpenAIAssist creates the assist strategy
func NewOpenAIAssist(cfg config.LLMConfig) *OpenAIAssist {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIAssist{client: openai.NewClientWithConfig(clientCfg), cfg: cfg}
}

// SynthesizeCypher asks the model for a traversal. Output is validated
// by the synthesizer before anything executes it.
func (a *OpenAIAssist) SynthesizeCypher(ctx context.Context, query string, mentions []models.EntityMention, intent models.Intent) (string, error) {
	pairs := make([]string, 0, len(mentions))
	for _, m := range mentions {
		pairs = append(pairs, fmt.Sprintf("%s=%s", m.SectionTypeGuess, m.SurfaceValue))
	}

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       a.cfg.Model,
		Temperature: a.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: fmt.Sprintf(cypherPrompt, query, intent, strings.Join(pairs, ", ")),
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("cypher generation failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("cypher generation returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
