package router

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appointmentHandler "github.com/jwalitptl/portal-api/internal/handler/appointment"
	"github.com/jwalitptl/portal-api/internal/middleware"
	"github.com/jwalitptl/portal-api/internal/model"
	"github.com/jwalitptl/portal-api/internal/service/notification"
	"github.com/jwalitptl/portal-api/pkg/logger"
	"github.com/jwalitptl/portal-api/pkg/messaging"
)

type stubResolver struct{}

func (stubResolver) Resolve(_ context.Context, id string) model.Session {
	if id == "s1" {
		return model.Session{ID: "s1", DoctorID: "42", Token: "tok"}
	}
	return model.Session{}
}

type routeFunc func(*gin.RouterGroup)

func (f routeFunc) RegisterRoutes(g *gin.RouterGroup) { f(g) }

func newTestRouter(t *testing.T, reg *prometheus.Registry, cfg RouterConfig) *Router {
	t.Helper()
	cfg.Mode = gin.TestMode
	cfg.Registerer = reg
	cfg.CORSConfig = middleware.DefaultCORSConfig()

	health := routeFunc(func(g *gin.RouterGroup) {
		g.GET("/health/live", func(c *gin.Context) { c.Status(http.StatusOK) })
	})
	sessions := routeFunc(func(g *gin.RouterGroup) {
		g.GET("/session", func(c *gin.Context) {
			c.String(http.StatusOK, middleware.CurrentSession(c).DoctorID)
		})
	})
	doctor := routeFunc(func(g *gin.RouterGroup) {
		g.GET("/doctor/deadline", func(c *gin.Context) {
			_, ok := c.Request.Context().Deadline()
			if !ok {
				c.Status(http.StatusInternalServerError)
				return
			}
			c.Status(http.StatusOK)
		})
		g.GET("/doctor/panic", func(c *gin.Context) { panic("boom") })
	})

	return NewRouter(stubResolver{}, health, sessions, doctor, cfg)
}

func TestRouterWiring(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := newTestRouter(t, reg, RouterConfig{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/session", nil)
	req.Header.Set(middleware.HeaderSessionID, "s1")
	r.Engine().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "42", w.Body.String())
	assert.Equal(t, "1.0", w.Header().Get("X-API-Version"))
	assert.NotEmpty(t, w.Header().Get(middleware.HeaderXRequestID))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	count, err := testutil.GatherAndCount(reg, "portal_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRouterDoctorRoutesHaveDeadline(t *testing.T) {
	r := newTestRouter(t, prometheus.NewRegistry(), RouterConfig{RequestTimeout: 5 * time.Second})

	w := httptest.NewRecorder()
	r.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/doctor/deadline", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouterRecoversPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := newTestRouter(t, reg, RouterConfig{})

	w := httptest.NewRecorder()
	r.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/doctor/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "Internal server error"))
}

func TestRouterRateLimit(t *testing.T) {
	r := newTestRouter(t, prometheus.NewRegistry(), RouterConfig{RateLimit: 0.001, RateBurst: 1})

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health/live", nil))
		codes = append(codes, w.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRouterNotificationStreamOutlivesRequestTimeout(t *testing.T) {
	adapter := messaging.NewBrokerAdapter(messaging.NewMemoryBroker(0), logger.Nop())
	t.Cleanup(func() { _ = adapter.Close() })
	notifier := notification.NewService(adapter, logger.Nop())

	none := routeFunc(func(*gin.RouterGroup) {})
	r := NewRouter(stubResolver{}, none, none, appointmentHandler.NewHandler(nil, notifier, nil), RouterConfig{
		Mode:           gin.TestMode,
		RequestTimeout: 100 * time.Millisecond,
		CORSConfig:     middleware.DefaultCORSConfig(),
		Registerer:     prometheus.NewRegistry(),
	})

	srv := httptest.NewUnstartedServer(r.Engine())
	srv.Config.WriteTimeout = 200 * time.Millisecond
	srv.Start()
	t.Cleanup(srv.Close)

	go func() {
		time.Sleep(400 * time.Millisecond)
		err := notifier.Notify(context.Background(), &model.NotificationEvent{
			DoctorID:     "42",
			Type:         "appointment_status_updated",
			Notification: model.Notification{Title: "Status Updated"},
		})
		assert.NoError(t, err)
	}()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/doctor/notifications", nil)
	require.NoError(t, err)
	req.Header.Set(middleware.HeaderSessionID, "s1")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	reader := bufio.NewReader(resp.Body)
	event, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, event, "notification")

	data, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, data, "Status Updated")
}
