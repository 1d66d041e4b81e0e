package appointment

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/portal-api/internal/middleware"
	"github.com/jwalitptl/portal-api/internal/model"
	"github.com/jwalitptl/portal-api/internal/service/appointment"
	"github.com/jwalitptl/portal-api/pkg/errors"
	"github.com/jwalitptl/portal-api/pkg/httputil"
	"github.com/jwalitptl/portal-api/pkg/validator"
)

const notificationBuffer = 16

// Listener streams a doctor's notifications.
type Listener interface {
	Listen(ctx context.Context, doctorID string, fn func(model.NotificationEvent)) error
}

// History lists a doctor's status change attempts.
type History interface {
	History(ctx context.Context, doctorID string, since time.Time, limit int) ([]*model.TransitionAudit, error)
}

type Handler struct {
	service   *appointment.Service
	listener  Listener
	history   History
	validator validator.Validator
}

// NewHandler wires the doctor view endpoints. listener and history may be nil,
// in which case their routes are not registered.
func NewHandler(service *appointment.Service, listener Listener, history History) *Handler {
	return &Handler{
		service:   service,
		listener:  listener,
		history:   history,
		validator: validator.New(),
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	doctor := r.Group("/doctor")
	{
		views := doctor.Group("/views")
		views.POST("", h.ActivateView)
		views.GET("/:viewID", h.GetView)
		views.DELETE("/:viewID", h.DeactivateView)
		views.PUT("/:viewID/appointments/:id/status", h.UpdateStatus)
		views.GET("/:viewID/patients", h.ListPatients)

		if h.history != nil {
			doctor.GET("/audit", h.ListTransitions)
		}
	}
}

// RegisterStreamRoutes registers the long-lived notification stream. The group
// must not carry a request deadline.
func (h *Handler) RegisterStreamRoutes(r *gin.RouterGroup) {
	if h.listener != nil {
		r.GET("/doctor/notifications", h.StreamNotifications)
	}
}

// ActivateView creates a view and runs its single load. A failed load still
// returns the view so the caller can show the error and tear it down later.
func (h *Handler) ActivateView(c *gin.Context) {
	vm, err := h.service.Activate(c.Request.Context(), middleware.CurrentSession(c))
	if err != nil {
		if errors.IsMissingSession(err) {
			httputil.RespondWithError(c, err)
			return
		}
		httputil.RespondWithErrorData(c, err, gin.H{"view_id": vm.ID(), "snapshot": vm.Snapshot()})
		return
	}

	httputil.RespondWithSuccess(c, http.StatusCreated, gin.H{"view_id": vm.ID(), "snapshot": vm.Snapshot()})
}

func (h *Handler) GetView(c *gin.Context) {
	vm, err := h.service.View(c.Param("viewID"), middleware.CurrentSession(c))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, vm.Snapshot())
}

func (h *Handler) DeactivateView(c *gin.Context) {
	if err := h.service.Deactivate(c.Param("viewID"), middleware.CurrentSession(c)); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		httputil.RespondWithError(c, errors.BadRequest("invalid appointment ID", err))
		return
	}

	var req model.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, errors.BadRequest("invalid status request", err))
		return
	}
	if err := h.validator.Validate(req); err != nil {
		httputil.RespondWithError(c, errors.BadRequest(err.Error(), err))
		return
	}

	vm, err := h.service.View(c.Param("viewID"), middleware.CurrentSession(c))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	notification, err := vm.RequestTransition(c.Request.Context(), id, req.Status, req.PatientName)
	if errors.Is(err, appointment.ErrViewClosed) {
		httputil.RespondWithError(c, errors.NotFound("appointment view", err))
		return
	}
	if err != nil {
		httputil.RespondWithErrorData(c, err, gin.H{"notification": notification, "snapshot": vm.Snapshot()})
		return
	}

	httputil.RespondWithSuccess(c, http.StatusOK, gin.H{"notification": notification, "snapshot": vm.Snapshot()})
}

func (h *Handler) ListPatients(c *gin.Context) {
	vm, err := h.service.View(c.Param("viewID"), middleware.CurrentSession(c))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, vm.Patients(c.Query("q")))
}

// StreamNotifications pushes the doctor's status change toasts as server-sent
// events until the client goes away.
func (h *Handler) StreamNotifications(c *gin.Context) {
	sess := middleware.CurrentSession(c)
	if !sess.Complete() {
		httputil.RespondWithError(c, errors.MissingSession("Missing doctor info. Please login again."))
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	events := make(chan model.NotificationEvent, notificationBuffer)
	err := h.listener.Listen(ctx, sess.DoctorID, func(e model.NotificationEvent) {
		select {
		case events <- e:
		default:
		}
	})
	if err != nil {
		httputil.RespondWithError(c, errors.Internal(err))
		return
	}

	// the server write timeout would otherwise end the stream
	_ = http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{})

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case e := <-events:
			c.SSEvent("notification", e)
			return true
		}
	})
}

func (h *Handler) ListTransitions(c *gin.Context) {
	sess := middleware.CurrentSession(c)
	if !sess.Complete() {
		httputil.RespondWithError(c, errors.MissingSession("Missing doctor info. Please login again."))
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 0 {
		httputil.RespondWithError(c, errors.BadRequest("limit must be a non-negative integer", err))
		return
	}
	var since time.Time
	if s := c.Query("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			httputil.RespondWithError(c, errors.BadRequest("since must be an RFC 3339 timestamp", err))
			return
		}
		since = t
	}

	entries, err := h.history.History(c.Request.Context(), sess.DoctorID, since, limit)
	if err != nil {
		httputil.RespondWithError(c, errors.Internal(err))
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, entries)
}
