// Package health runs liveness checks against the engine's backing
// stores and exposes them over HTTP.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Pinger is the minimal surface a backend needs to expose for a
// liveness check
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingerFunc adapts a plain function to Pinger
type PingerFunc func(ctx context.Context) error

func (f PingerFunc) Ping(ctx context.Context) error { return f(ctx) }

type Result struct {
	Name     string        `json:"name"`
	Status   Status        `json:"status"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
}

type check struct {
	name     string
	pinger   Pinger
	slowOver time.Duration
	required bool
}

// Checker runs registered checks concurrently and aggregates an overall
// status. Optional backends (cache, kafka) degrade the status; required
// ones (graph, vector) make it unhealthy.
type Checker struct {
	mu     sync.RWMutex
	checks []check
}

func NewChecker() *Checker {
	return &Checker{}
}

// Register adds a required backend check
func (c *Checker) Register(name string, p Pinger) {
	c.register(name, p, true)
}

// RegisterOptional adds a check whose failure only degrades overall
// status
func (c *Checker) RegisterOptional(name string, p Pinger) {
	c.register(name, p, false)
}

func (c *Checker) register(name string, p Pinger, required bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks = append(c.checks, check{
		name:     name,
		pinger:   p,
		slowOver: 100 * time.Millisecond,
		required: required,
	})
}

// Check runs every registered check concurrently
func (c *Checker) Check(ctx context.Context) map[string]Result {
	c.mu.RLock()
	checks := make([]check, len(c.checks))
	copy(checks, c.checks)
	c.mu.RUnlock()

	results := make(map[string]Result, len(checks))
	var wg sync.WaitGroup
	var mu sync.Mutex
	for _, ch := range checks {
		wg.Add(1)
		go func(ch check) {
			defer wg.Done()
			res := runCheck(ctx, ch)
			mu.Lock()
			results[ch.name] = res
			mu.Unlock()
		}(ch)
	}
	wg.Wait()
	return results
}

func runCheck(ctx context.Context, ch check) Result {
	start := time.Now()
	err := ch.pinger.Ping(ctx)
	duration := time.Since(start)
	res := Result{Name: ch.name, Duration: duration}
	switch {
	case err != nil && ch.required:
		res.Status = StatusUnhealthy
		res.Message = err.Error()
	case err != nil:
		res.Status = StatusDegraded
		res.Message = err.Error()
	case duration > ch.slowOver:
		res.Status = StatusDegraded
		res.Message = "responding slowly"
	default:
		res.Status = StatusHealthy
	}
	return res
}

// Overall folds per-check results into one status
func (c *Checker) Overall(results map[string]Result) Status {
	degraded := false
	for _, r := range results {
		switch r.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			degraded = true
		}
	}
	if degraded {
		return StatusDegraded
	}
	return StatusHealthy
}

// HTTPHandler serves the aggregated health report. Unhealthy maps to
// 503 so load balancers can act on it.
func (c *Checker) HTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()
		results := c.Check(ctx)
		overall := c.Overall(results)
		resp := map[string]interface{}{
			"status":    overall,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"checks":    results,
		}
		w.Header().Set("Content-Type", "application/json")
		code := http.StatusOK
		if overall == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(resp)
	}
}
