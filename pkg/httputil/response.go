package httputil

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/portal-api/pkg/errors"
)

// Response wraps all API responses
type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// StatusCode maps an error to the HTTP status it is reported with.
func StatusCode(err error) int {
	switch errors.CodeOf(err) {
	case errors.ErrNotFound:
		return http.StatusNotFound
	case errors.ErrBadRequest:
		return http.StatusBadRequest
	case errors.ErrUnauthorized, errors.ErrMissingSession:
		return http.StatusUnauthorized
	case errors.ErrForbidden:
		return http.StatusForbidden
	case errors.ErrFetchFailed:
		return http.StatusBadGateway
	case errors.ErrTransitionFailed:
		var appErr *errors.AppError
		if errors.As(err, &appErr) && appErr.Err == nil {
			// refused locally, the backend was never asked
			return http.StatusConflict
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// RespondWithSuccess sends a success response
func RespondWithSuccess(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{
		Status: "success",
		Data:   data,
	})
}

// RespondWithError sends an error response. Internal errors never leak their
// text.
func RespondWithError(c *gin.Context, err error) {
	RespondWithErrorData(c, err, nil)
}

// RespondWithErrorData sends an error response that still carries a payload,
// such as the notification for a failed transition.
func RespondWithErrorData(c *gin.Context, err error, data interface{}) {
	status := StatusCode(err)
	message := errors.MessageOf(err)
	if status == http.StatusInternalServerError {
		message = "Internal server error"
	}
	_ = c.Error(err)
	c.JSON(status, Response{
		Status:  "error",
		Message: message,
		Data:    data,
	})
}
