package entity

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/supportkg/internal/config"
	"github.com/supportkg/pkg/models"
)

// Mapper validates and normalizes extractor output: surface values are
// lowercased and trimmed, near-identical mentions deduplicated keeping
// the highest confidence, confidences clamped to [0,1], and anything
// below the confidence floor dropped.
type Mapper struct {
	cfg       config.EntityConfig
	extractor Extractor
}

// NewMapper creates a mapper over the given extractor
func NewMapper(cfg config.EntityConfig, extractor Extractor) *Mapper {
	return &Mapper{cfg: cfg, extractor: extractor}
}

// Map extracts and normalizes the mentions for one query. An
// unavailable extraction service is not fatal: whatever mentions the
// fallback produced still come back alongside the wrapped error, and
// the caller decides whether vector-only retrieval is good enough.
func (m *Mapper) Map(ctx context.Context, query string) ([]models.EntityMention, error) {
	raw, err := m.extractor.Extract(ctx, query)
	if err != nil && !errors.Is(err, ErrExtractionUnavailable) {
		return nil, err
	}

	best := make(map[string]models.EntityMention)
	var order []string
	for _, mention := range raw {
		value := normalize(mention.SurfaceValue)
		if value == "" {
			continue
		}
		conf := clamp01(mention.Confidence)
		if conf < m.cfg.ConfidenceFloor {
			continue
		}

		key := mention.SectionTypeGuess + "|" + value
		prev, ok := best[key]
		if !ok {
			order = append(order, key)
		}
		if !ok || conf > prev.Confidence {
			best[key] = models.EntityMention{
				SectionTypeGuess: mention.SectionTypeGuess,
				SurfaceValue:     value,
				Confidence:       conf,
			}
		}
	}

	mentions := make([]models.EntityMention, 0, len(order))
	for _, key := range order {
		mentions = append(mentions, best[key])
	}
	// Strongest mentions first so bounded consumers keep the best ones
	sort.SliceStable(mentions, func(i, j int) bool {
		return mentions[i].Confidence > mentions[j].Confidence
	})
	return mentions, err
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
