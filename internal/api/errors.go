package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/david/pimm/internal/batch"
	"github.com/david/pimm/internal/db"
	"github.com/david/pimm/internal/importer"
	"github.com/david/pimm/internal/invitation"
	"github.com/david/pimm/internal/projects"
	"github.com/david/pimm/internal/registration"
	"github.com/david/pimm/internal/tracking"
)

var statusByError = []struct {
	err    error
	status int
}{
	{db.ErrNotFound, http.StatusNotFound},
	{db.ErrConflict, http.StatusConflict},

	{importer.ErrSessionNotFound, http.StatusNotFound},
	{importer.ErrInvalidTransition, http.StatusConflict},
	{importer.ErrInvalidDelimiter, http.StatusBadRequest},

	{tracking.ErrAlreadyTracked, http.StatusConflict},
	{tracking.ErrNotTracked, http.StatusNotFound},
	{tracking.ErrInvalidStatus, http.StatusBadRequest},
	{tracking.ErrProjectNotFound, http.StatusNotFound},

	{batch.ErrJobRunning, http.StatusConflict},
	{batch.ErrJobNotFound, http.StatusNotFound},

	{projects.ErrNotFound, http.StatusNotFound},
	{projects.ErrInvalidProject, http.StatusBadRequest},
	{projects.ErrDuplicateAward, http.StatusConflict},
	{projects.ErrUnknownUser, http.StatusBadRequest},

	{invitation.ErrListNotFound, http.StatusNotFound},
	{invitation.ErrEmptyTitle, http.StatusBadRequest},
	{invitation.ErrNoProjects, http.StatusBadRequest},
	{invitation.ErrUnknownUser, http.StatusBadRequest},
	{invitation.ErrInvalidFilter, http.StatusBadRequest},

	{registration.ErrListNotFound, http.StatusNotFound},
	{registration.ErrInviteeListNotFound, http.StatusNotFound},
	{registration.ErrWebformNotFound, http.StatusNotFound},
	{registration.ErrUserNotFound, http.StatusNotFound},
	{registration.ErrEmptyInviteeList, http.StatusUnprocessableEntity},
	{registration.ErrEmptyTitle, http.StatusBadRequest},
	{registration.ErrNoWebforms, http.StatusBadRequest},
	{registration.ErrWebformExists, http.StatusConflict},
	{registration.ErrInvalidWebform, http.StatusBadRequest},
	{registration.ErrInvalidSubmission, http.StatusBadRequest},
	{registration.ErrUnknownField, http.StatusBadRequest},
}

func errorStatus(err error) int {
	var perr *importer.ParseError
	if errors.As(err, &perr) {
		return http.StatusBadRequest
	}
	for _, e := range statusByError {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

// respondError maps a service error to a JSON error response. Server errors
// are logged and their details withheld.
func (s *Server) respondError(c echo.Context, err error) error {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed",
			zap.String("method", c.Request().Method),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
		return c.JSON(status, map[string]string{"error": "Internal Server Error"})
	}
	return c.JSON(status, map[string]string{"error": err.Error()})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, map[string]string{"error": msg})
}

func paramID(c echo.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

func attachment(c echo.Context, filename, contentType string, data []byte) error {
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
	return c.Blob(http.StatusOK, contentType, data)
}
