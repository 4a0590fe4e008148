package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/supportkg/internal/retriever"
	"github.com/supportkg/pkg/models"
)

// QueryRequest is the body of POST /api/v1/query. Embedding is
// optional; when absent the engine embeds the query text itself.
type QueryRequest struct {
	Query     string    `json:"query"`
	Embedding []float32 `json:"embedding,omitempty"`
}

// GraphBuildRequest is the body of POST /api/v1/graph/build
type GraphBuildRequest struct {
	Tickets []models.RawTicket `json:"tickets"`
}

func (g *Gateway) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := parseRequestBody(r, &req); err != nil {
		g.writeError(w, http.StatusBadRequest, "invalid_request", "failed to parse request body", err.Error())
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		g.writeError(w, http.StatusBadRequest, "invalid_request", "query must not be empty", "")
		return
	}

	result, err := g.engine.Retrieve(r.Context(), req.Query, req.Embedding)
	if err != nil {
		if errors.Is(err, retriever.ErrRetrievalUnavailable) {
			g.writeError(w, http.StatusServiceUnavailable, "retrieval_unavailable",
				"retrieval backends unavailable", err.Error())
			return
		}
		g.log.Error("query failed", "error", err)
		g.writeError(w, http.StatusInternalServerError, "internal_error", "query failed", err.Error())
		return
	}

	g.writeSuccess(w, result)
}

func (g *Gateway) handleGraphBuild(w http.ResponseWriter, r *http.Request) {
	var req GraphBuildRequest
	if err := parseRequestBody(r, &req); err != nil {
		g.writeError(w, http.StatusBadRequest, "invalid_request", "failed to parse request body", err.Error())
		return
	}
	if len(req.Tickets) == 0 {
		g.writeError(w, http.StatusBadRequest, "invalid_request", "tickets must not be empty", "")
		return
	}

	report, err := g.engine.BuildGraph(r.Context(), req.Tickets)
	if err != nil {
		g.log.Error("graph build failed", "error", err)
		g.writeError(w, http.StatusInternalServerError, "build_failed", "graph build failed", err.Error())
		return
	}

	g.writeSuccess(w, report)
}

func (g *Gateway) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := g.engine.Stats(r.Context())
	if err != nil {
		g.log.Error("stats failed", "error", err)
		g.writeError(w, http.StatusInternalServerError, "internal_error", "stats unavailable", err.Error())
		return
	}
	g.writeSuccess(w, stats)
}
