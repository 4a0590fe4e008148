package entity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supportkg/internal/config"
	"github.com/supportkg/pkg/models"
)

// stubExtractor returns fixed mentions, optionally alongside an error
type stubExtractor struct {
	mentions []models.EntityMention
	err      error
}

func (s *stubExtractor) Extract(context.Context, string) ([]models.EntityMention, error) {
	return s.mentions, s.err
}

func mapperConfig() config.EntityConfig {
	return config.EntityConfig{ConfidenceFloor: 0.35}
}

func TestRuleExtractor(t *testing.T) {
	e := NewRuleExtractor()

	mentions, err := e.Extract(context.Background(), "Login fails with a 500 error on the mobile app")
	require.NoError(t, err)

	byValue := make(map[string]models.EntityMention)
	for _, m := range mentions {
		byValue[m.SurfaceValue] = m
	}
	assert.Equal(t, "product", byValue["mobile app"].SectionTypeGuess)
	assert.Equal(t, "error", byValue["500"].SectionTypeGuess)
	assert.Equal(t, "action", byValue["login"].SectionTypeGuess)

	// Gibberish matches nothing and that is not an error
	none, err := e.Extract(context.Background(), "asdkjASDKJ999")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMapNormalizesAndDeduplicates(t *testing.T) {
	m := NewMapper(mapperConfig(), &stubExtractor{mentions: []models.EntityMention{
		{SectionTypeGuess: "error", SurfaceValue: "  Timeout  ", Confidence: 0.5},
		{SectionTypeGuess: "error", SurfaceValue: "TIMEOUT", Confidence: 0.8},
		{SectionTypeGuess: "product", SurfaceValue: "Mobile   App", Confidence: 0.6},
	}})

	mentions, err := m.Map(context.Background(), "timeout on mobile app")
	require.NoError(t, err)
	require.Len(t, mentions, 2)

	// Duplicate keeps the higher confidence; values are normalized
	assert.Equal(t, "timeout", mentions[0].SurfaceValue)
	assert.Equal(t, 0.8, mentions[0].Confidence)
	assert.Equal(t, "mobile app", mentions[1].SurfaceValue)
}

func TestMapClampsAndFloors(t *testing.T) {
	m := NewMapper(mapperConfig(), &stubExtractor{mentions: []models.EntityMention{
		{SectionTypeGuess: "error", SurfaceValue: "crash", Confidence: 1.7},
		{SectionTypeGuess: "error", SurfaceValue: "noise", Confidence: 0.1},
		{SectionTypeGuess: "error", SurfaceValue: "", Confidence: 0.9},
	}})

	mentions, err := m.Map(context.Background(), "crash")
	require.NoError(t, err)
	require.Len(t, mentions, 1)
	assert.Equal(t, "crash", mentions[0].SurfaceValue)
	assert.Equal(t, 1.0, mentions[0].Confidence)
}

func TestMapPassesThroughUnavailableError(t *testing.T) {
	m := NewMapper(mapperConfig(), &stubExtractor{
		mentions: []models.EntityMention{
			{SectionTypeGuess: "action", SurfaceValue: "login", Confidence: 0.6},
		},
		err: ErrExtractionUnavailable,
	})

	mentions, err := m.Map(context.Background(), "login broken")
	require.ErrorIs(t, err, ErrExtractionUnavailable)
	// Fallback mentions still come through alongside the error
	require.Len(t, mentions, 1)
	assert.Equal(t, "login", mentions[0].SurfaceValue)
}

func TestDetectIntent(t *testing.T) {
	cases := []struct {
		query string
		want  models.Intent
	}{
		{"the app crashes when I export", models.IntentBugReport},
		{"login is not working, please help", models.IntentTroubleshooting},
		{"would like a dark mode enhancement", models.IntentFeatureRequest},
		{"what are your opening hours", models.IntentGeneralInquiry},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, DetectIntent(tc.query), tc.query)
	}
}
