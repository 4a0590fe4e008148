package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okPinger() Pinger {
	return PingerFunc(func(context.Context) error { return nil })
}

func failingPinger(msg string) Pinger {
	return PingerFunc(func(context.Context) error { return errors.New(msg) })
}

func TestCheckAllHealthy(t *testing.T) {
	c := NewChecker()
	c.Register("graph", okPinger())
	c.Register("vector", okPinger())

	results := c.Check(context.Background())
	require.Len(t, results, 2)
	assert.Equal(t, StatusHealthy, results["graph"].Status)
	assert.Equal(t, StatusHealthy, results["vector"].Status)
	assert.Equal(t, StatusHealthy, c.Overall(results))
}

func TestRequiredFailureIsUnhealthy(t *testing.T) {
	c := NewChecker()
	c.Register("graph", failingPinger("connection refused"))
	c.Register("vector", okPinger())

	results := c.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, results["graph"].Status)
	assert.Equal(t, "connection refused", results["graph"].Message)
	assert.Equal(t, StatusUnhealthy, c.Overall(results))
}

func TestOptionalFailureOnlyDegrades(t *testing.T) {
	c := NewChecker()
	c.Register("graph", okPinger())
	c.RegisterOptional("cache", failingPinger("redis down"))

	results := c.Check(context.Background())
	assert.Equal(t, StatusDegraded, results["cache"].Status)
	assert.Equal(t, StatusDegraded, c.Overall(results))
}

func TestOverallEmptyIsHealthy(t *testing.T) {
	c := NewChecker()
	assert.Equal(t, StatusHealthy, c.Overall(c.Check(context.Background())))
}

func TestHTTPHandlerStatusCodes(t *testing.T) {
	c := NewChecker()
	c.Register("graph", okPinger())

	rec := httptest.NewRecorder()
	c.HTTPHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status Status            `json:"status"`
		Checks map[string]Result `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, StatusHealthy, body.Status)
	assert.Contains(t, body.Checks, "graph")

	c.Register("vector", failingPinger("no route to host"))
	rec = httptest.NewRecorder()
	c.HTTPHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
