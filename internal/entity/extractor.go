// Package entity maps free-text queries to typed entity mentions.
package entity

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/supportkg/pkg/models"
)

// ErrExtractionUnavailable means the extraction backend stayed down
// through its retry budget. The mapper degrades to the rule-based
// extractor when the LLM path reports it.
var ErrExtractionUnavailable = errors.New("extraction service unavailable")

// Extractor is the capability interface for entity extraction. The
// rule-based implementation is the deterministic default; an LLM-backed
// one can be layered on top by configuration.
type Extractor interface {
	Extract(ctx context.Context, text string) ([]models.EntityMention, error)
}

// entityPatterns drive the rule-based extractor, keyed by the section
// type guess attached to each match
var entityPatterns = map[string][]*regexp.Regexp{
	"product": {
		regexp.MustCompile(`(?i)\b(mobile app|web portal|api|desktop client|mobile website)\b`),
		regexp.MustCompile(`(?i)\b(ios|android|windows|mac|linux)\b`),
		regexp.MustCompile(`(?i)\b(browser|chrome|firefox|safari|edge)\b`),
	},
	"error": {
		regexp.MustCompile(`(?i)\b(error|exception|failed|crash|bug)\b`),
		regexp.MustCompile(`\b(404|500|403|401|502)\b`),
		regexp.MustCompile(`(?i)\b(null|undefined|timeout|connection)\b`),
	},
	"action": {
		regexp.MustCompile(`(?i)\b(login|logout|click|submit|upload|download|search|refresh)\b`),
		regexp.MustCompile(`(?i)\b(reset|change|update|create|delete|install|uninstall|restart)\b`),
	},
	"status": {
		regexp.MustCompile(`(?i)\b(open|closed|resolved|pending|in progress)\b`),
	},
	"priority": {
		regexp.MustCompile(`(?i)\b(urgent|critical|high priority|low priority)\b`),
	},
}

// ruleConfidence is the fixed confidence the rule-based extractor
// assigns; pattern matches are reliable but shallow.
const ruleConfidence = 0.6

// RuleExtractor extracts mentions with regex tables. Deterministic and
// dependency-free, it is the fallback for every richer strategy.
type RuleExtractor struct{}

// NewRuleExtractor creates the rule-based extractor
func NewRuleExtractor() *RuleExtractor {
	return &RuleExtractor{}
}

// Extract never fails; an unmatchable query yields an empty list
func (e *RuleExtractor) Extract(_ context.Context, text string) ([]models.EntityMention, error) {
	var mentions []models.EntityMention
	for _, section := range []string{"product", "error", "action", "status", "priority"} {
		for _, pattern := range entityPatterns[section] {
			for _, m := range pattern.FindAllString(text, -1) {
				mentions = append(mentions, models.EntityMention{
					SectionTypeGuess: section,
					SurfaceValue:     strings.ToLower(m),
					Confidence:       ruleConfidence,
				})
			}
		}
	}
	return mentions, nil
}

var intentPatterns = []struct {
	intent   models.Intent
	patterns []*regexp.Regexp
}{
	{models.IntentBugReport, []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(bug|defect|crash|freeze|hang)\b`),
	}},
	{models.IntentTroubleshooting, []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(problem|issue|error|not working|broken|stuck)\b`),
		regexp.MustCompile(`(?i)\b(help|fix|solve|resolve)\b`),
	}},
	{models.IntentFeatureRequest, []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(add|implement|feature|enhancement|improvement)\b`),
		regexp.MustCompile(`(?i)\b(would like|missing)\b`),
	}},
}

// DetectIntent classifies a query by pattern matching. Bug reports win
// over troubleshooting because their keywords overlap; anything
// unmatched is a general inquiry.
func DetectIntent(text string) models.Intent {
	for _, entry := range intentPatterns {
		for _, p := range entry.patterns {
			if p.MatchString(text) {
				return entry.intent
			}
		}
	}
	return models.IntentGeneralInquiry
}
