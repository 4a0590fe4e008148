package entity

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/supportkg/internal/config"
	"github.com/supportkg/pkg/logger"
	"github.com/supportkg/pkg/models"
)

const extractionPrompt = `Analyze this customer support query and extract key entities. Return JSON only.

Query: %s

Extract mentions as a JSON array of objects with fields "section" (one of:
product, error, action, status, priority, root-cause), "value" and
"confidence" (0 to 1).

Example: [{"section":"product","value":"mobile app","confidence":0.9}]`

// LLMExtractor extracts mentions with a chat model and falls back to the
// rule-based extractor when the model is unreachable or returns garbage.
type LLMExtractor struct {
	client   *openai.Client
	cfg      config.LLMConfig
	fallback Extractor
	log      *slog.Logger
}

// NewLLMExtractor creates the LLM-backed extractor
func NewLLMExtractor(cfg config.LLMConfig, fallback Extractor) *LLMExtractor {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &LLMExtractor{
		client:   openai.NewClientWithConfig(clientCfg),
		cfg:      cfg,
		fallback: fallback,
		log:      logger.With("extractor"),
	}
}

type llmMention struct {
	Section    string  `json:"section"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// Extract queries the model and merges its mentions over the rule-based
// baseline, so an LLM outage never loses the deterministic matches.
func (e *LLMExtractor) Extract(ctx context.Context, text string) ([]models.EntityMention, error) {
	base, _ := e.fallback.Extract(ctx, text)

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       e.cfg.Model,
		Temperature: e.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf(extractionPrompt, text)},
		},
	})
	if err != nil {
		e.log.Warn("llm extraction failed, using rule-based only", "error", err)
		return base, fmt.Errorf("%w: %v", ErrExtractionUnavailable, err)
	}

	if len(resp.Choices) == 0 {
		e.log.Warn("llm extraction returned no choices, using rule-based only")
		return base, fmt.Errorf("%w: empty completion", ErrExtractionUnavailable)
	}

	parsed, err := parseLLMMentions(resp.Choices[0].Message.Content)
	if err != nil {
		e.log.Warn("unparseable llm extraction output", "error", err)
		return base, nil
	}
	return append(base, parsed...), nil
}

func parseLLMMentions(content string) ([]models.EntityMention, error) {
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start == -1 || end <= start {
		return nil, fmt.Errorf("no JSON array in model output")
	}

	var raw []llmMention
	if err := json.Unmarshal([]byte(content[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("invalid mention JSON: %w", err)
	}

	mentions := make([]models.EntityMention, 0, len(raw))
	for _, m := range raw {
		if m.Value == "" {
			continue
		}
		mentions = append(mentions, models.EntityMention{
			SectionTypeGuess: strings.ToLower(m.Section),
			SurfaceValue:     m.Value,
			Confidence:       m.Confidence,
		})
	}
	return mentions, nil
}
