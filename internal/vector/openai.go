package vector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/supportkg/internal/config"
	"github.com/supportkg/pkg/logger"
	"github.com/supportkg/pkg/metrics"
)

// OpenAIEmbedder implements Embedder on the OpenAI embeddings API with a
// bounded retry budget. After the budget is exhausted the error wraps
// ErrEmbeddingUnavailable so call sites can degrade instead of failing.
type OpenAIEmbedder struct {
	client *openai.Client
	cfg    config.EmbeddingConfig
	log    *slog.Logger
}

// NewOpenAIEmbedder creates the embedder
func NewOpenAIEmbedder(cfg config.EmbeddingConfig) *OpenAIEmbedder {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(clientCfg),
		cfg:    cfg,
		log:    logger.With("embedder"),
	}
}

// Embed returns the embedding for text
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	backoff := e.cfg.InitialBackoff
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	attempts := e.cfg.MaxRetries
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			metrics.ExternalCallRetries.WithLabelValues("embedding").Inc()
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		callCtx := ctx
		if e.cfg.RequestTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, e.cfg.RequestTimeout)
			defer cancel()
		}

		resp, err := e.client.CreateEmbeddings(callCtx, openai.EmbeddingRequest{
			Input: []string{text},
			Model: openai.EmbeddingModel(e.cfg.Model),
		})
		if err != nil {
			lastErr = err
			e.log.Warn("embedding call failed", "attempt", attempt+1, "error", err)
			continue
		}
		if len(resp.Data) == 0 {
			lastErr = fmt.Errorf("empty embedding response")
			continue
		}
		return resp.Data[0].Embedding, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, lastErr)
}
