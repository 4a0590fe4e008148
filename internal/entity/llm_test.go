package entity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supportkg/internal/config"
)

func newStubCompletionServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestLLMExtractor(srv *httptest.Server) *LLMExtractor {
	return NewLLMExtractor(config.LLMConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Model:   "gpt-4o-mini",
	}, NewRuleExtractor())
}

func TestLLMExtractorEmptyChoicesDegrades(t *testing.T) {
	srv := newStubCompletionServer(t, `{"id":"cmpl-1","object":"chat.completion","choices":[]}`)
	e := newTestLLMExtractor(srv)

	mentions, err := e.Extract(context.Background(), "timeout on login")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExtractionUnavailable)

	// The rule-based baseline survives the degenerate response.
	values := make(map[string]bool)
	for _, m := range mentions {
		values[m.SurfaceValue] = true
	}
	assert.True(t, values["timeout"])
	assert.True(t, values["login"])
}

func TestLLMExtractorMergesModelMentions(t *testing.T) {
	srv := newStubCompletionServer(t, `{"choices":[{"message":{"role":"assistant",`+
		`"content":"[{\"section\":\"product\",\"value\":\"billing portal\",\"confidence\":0.9}]"}}]}`)
	e := newTestLLMExtractor(srv)

	mentions, err := e.Extract(context.Background(), "timeout in the billing portal")
	require.NoError(t, err)

	values := make(map[string]bool)
	for _, m := range mentions {
		values[m.SurfaceValue] = true
	}
	assert.True(t, values["timeout"], "rule-based mention kept")
	assert.True(t, values["billing portal"], "model mention merged")
}

func TestLLMExtractorBackendErrorDegrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	e := newTestLLMExtractor(srv)

	mentions, err := e.Extract(context.Background(), "crash on upload")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExtractionUnavailable)
	assert.NotEmpty(t, mentions)
}
