package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/golang/glog"
	"github.com/pkg/errors"

	"quizsession/services"
	"quizsession/session"
)

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var (
		loadErr   *session.LoadError
		submitErr *session.SubmitError
	)
	switch {
	case errors.Is(err, session.ErrQuizNotFound),
		errors.Is(err, services.ErrSessionNotFound),
		errors.Is(err, services.ErrAttemptNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrUnknownQuestion),
		errors.Is(err, session.ErrInvalidOption),
		errors.Is(err, session.ErrIndexOutOfRange),
		errors.Is(err, session.ErrNoHint),
		errors.Is(err, services.ErrInvalidQuiz),
		errors.Is(err, services.ErrInvalidDraft):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrAlreadyLoaded),
		errors.Is(err, session.ErrNotReady),
		errors.Is(err, session.ErrNotInProgress),
		errors.Is(err, session.ErrSubmitInFlight),
		errors.Is(err, session.ErrAlreadySubmitted),
		errors.Is(err, session.ErrSessionClosed):
		return http.StatusConflict
	case errors.As(err, &loadErr), errors.As(err, &submitErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		glog.Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func paramID(c *gin.Context, name string) (uint, bool) {
	id, err := services.ParseID(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, false
	}
	return id, true
}
