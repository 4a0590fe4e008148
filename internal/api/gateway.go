// Package api exposes the retrieval engine over HTTP.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/supportkg/internal/config"
	"github.com/supportkg/internal/engine"
	"github.com/supportkg/internal/health"
	"github.com/supportkg/pkg/logger"
	"github.com/supportkg/pkg/metrics"
)

// Gateway is the HTTP front door for queries and graph builds
type Gateway struct {
	server *http.Server
	router *mux.Router
	engine *engine.Engine
	health *health.Checker
	cfg    config.APIConfig
	log    *slog.Logger
}

// NewGateway wires routes and middleware around the engine
func NewGateway(cfg config.APIConfig, eng *engine.Engine, checker *health.Checker) *Gateway {
	router := mux.NewRouter()

	g := &Gateway{
		router: router,
		engine: eng,
		health: checker,
		cfg:    cfg,
		log:    logger.With("api"),
	}

	g.setupRoutes()
	g.setupMiddleware()

	g.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return g
}

func (g *Gateway) setupRoutes() {
	api := g.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/query", g.handleQuery).Methods("POST")
	api.HandleFunc("/graph/build", g.handleGraphBuild).Methods("POST")
	api.HandleFunc("/stats", g.handleStats).Methods("GET")

	g.router.HandleFunc("/health", g.health.HTTPHandler()).Methods("GET")
	if g.cfg.EnableMetrics {
		g.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	}
}

func (g *Gateway) setupMiddleware() {
	if g.cfg.EnableCORS {
		origins := g.cfg.AllowedOrigins
		if len(origins) == 0 {
			origins = []string{"*"}
		}
		c := cors.New(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: true,
		})
		g.router.Use(c.Handler)
	}

	g.router.Use(g.metricsMiddleware)
}

// Start begins serving; it blocks until the listener fails or the
// server is stopped
func (g *Gateway) Start() error {
	g.log.Info("starting http gateway", "addr", g.server.Addr)
	return g.server.ListenAndServe()
}

// Stop drains in-flight requests and shuts down
func (g *Gateway) Stop(ctx context.Context) error {
	g.log.Info("stopping http gateway")
	return g.server.Shutdown(ctx)
}

// APIResponse is the uniform response envelope
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (g *Gateway) writeJSON(w http.ResponseWriter, status int, response APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		g.log.Error("encode response failed", "error", err)
	}
}

func (g *Gateway) writeError(w http.ResponseWriter, status int, code, message, details string) {
	g.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   &APIError{Code: code, Message: message, Details: details},
	})
}

func (g *Gateway) writeSuccess(w http.ResponseWriter, data interface{}) {
	g.writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: data})
}

func parseRequestBody(r *http.Request, target interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(target)
}

func (g *Gateway) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				path = tpl
			}
		}
		metrics.HTTPRequestsTotal.WithLabelValues(
			r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(
			r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
