package session

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/portal-api/internal/middleware"
	"github.com/jwalitptl/portal-api/internal/model"
	"github.com/jwalitptl/portal-api/pkg/errors"
	"github.com/jwalitptl/portal-api/pkg/httputil"
)

// Sessions starts and ends portal sessions.
type Sessions interface {
	Start(ctx context.Context, req model.CreateSessionRequest) (model.Session, error)
	End(ctx context.Context, id string) error
}

// ViewCloser tears down the views opened under a session.
type ViewCloser interface {
	CloseSession(sessionID string) int
}

type CookieConfig struct {
	Secure bool
	Domain string
}

type Handler struct {
	sessions Sessions
	views    ViewCloser
	cookie   CookieConfig
}

func NewHandler(sessions Sessions, views ViewCloser, cookie CookieConfig) *Handler {
	return &Handler{sessions: sessions, views: views, cookie: cookie}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	session := r.Group("/session")
	{
		session.POST("", h.Create)
		session.GET("", h.Current)
		session.DELETE("", h.Delete)
	}
}

type sessionResponse struct {
	SessionID string            `json:"session_id"`
	DoctorID  string            `json:"doctor_id"`
	User      model.SessionUser `json:"user"`
	ExpiresAt time.Time         `json:"expires_at"`
}

func toResponse(s model.Session) sessionResponse {
	return sessionResponse{
		SessionID: s.ID,
		DoctorID:  s.DoctorID,
		User:      s.User,
		ExpiresAt: s.ExpiresAt,
	}
}

// Create stores the login result and sets the session cookie.
func (h *Handler) Create(c *gin.Context) {
	var req model.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, errors.BadRequest("invalid session request", err))
		return
	}

	sess, err := h.sessions.Start(c.Request.Context(), req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	maxAge := int(time.Until(sess.ExpiresAt).Seconds())
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookieName, sess.ID, maxAge, "/", h.cookie.Domain, h.cookie.Secure, true)

	httputil.RespondWithSuccess(c, http.StatusCreated, toResponse(sess))
}

// Current describes the caller's session without its credential.
func (h *Handler) Current(c *gin.Context) {
	sess := middleware.CurrentSession(c)
	if sess.ID == "" {
		httputil.RespondWithError(c, errors.MissingSession("No active session. Please login again."))
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, toResponse(sess))
}

// Delete ends the session and every view opened under it.
func (h *Handler) Delete(c *gin.Context) {
	id := middleware.SessionID(c)
	closed := 0
	if id != "" {
		if err := h.sessions.End(c.Request.Context(), id); err != nil {
			httputil.RespondWithError(c, errors.Internal(err))
			return
		}
		closed = h.views.CloseSession(id)
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookieName, "", -1, "/", h.cookie.Domain, h.cookie.Secure, true)
	httputil.RespondWithSuccess(c, http.StatusOK, gin.H{"closed_views": closed})
}
