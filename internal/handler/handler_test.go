package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouter(reg *prometheus.Registry, checks map[string]Checker) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(reg, checks).RegisterRoutes(r.Group("/api/v1"))
	return r
}

func get(r *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestLivenessCheck(t *testing.T) {
	r := setupRouter(prometheus.NewRegistry(), nil)

	w := get(r, "/api/v1/health/live")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"alive"`)
}

func TestReadinessCheck(t *testing.T) {
	healthy := map[string]Checker{
		"backend": func(ctx context.Context) error { return nil },
	}
	w := get(setupRouter(prometheus.NewRegistry(), healthy), "/api/v1/health/ready")
	assert.Equal(t, http.StatusOK, w.Code)

	failing := map[string]Checker{
		"backend": func(ctx context.Context) error { return nil },
		"redis":   func(ctx context.Context) error { return errors.New("connection refused") },
	}
	w = get(setupRouter(prometheus.NewRegistry(), failing), "/api/v1/health/ready")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "DOWN", body.Status)
	assert.Equal(t, map[string]string{"redis": "connection refused"}, body.Checks)
}

func TestMetricsHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "portal_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	w := get(setupRouter(reg, nil), "/api/v1/health/metrics")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "portal_test_total 1")
}
