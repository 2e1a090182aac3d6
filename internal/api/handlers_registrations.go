package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/david/pimm/internal/models"
	"github.com/david/pimm/internal/registration"
)

func (s *Server) handleCreateRegistrationList(c echo.Context) error {
	var req registration.CreateRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request")
	}
	res, err := s.Registrations.Create(c.Request().Context(), req)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusCreated, res)
}

func (s *Server) handleListRegistrationLists(c echo.Context) error {
	lists, err := s.Registrations.Lists(c.Request().Context())
	if err != nil {
		return s.respondError(c, err)
	}
	if lists == nil {
		lists = []models.RegistrationList{}
	}
	return c.JSON(http.StatusOK, lists)
}

func (s *Server) handleViewRegistrationList(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid list ID")
	}
	view, err := s.Registrations.View(c.Request().Context(), id, registration.Sort{
		WebformID: c.QueryParam("webform"),
		Key:       c.QueryParam("sort"),
	})
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

func (s *Server) handleUserSubmissions(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid list ID")
	}
	uid, ok := paramID(c, "uid")
	if !ok {
		return badRequest(c, "Invalid user ID")
	}
	subs, err := s.Registrations.UserSubmissions(c.Request().Context(), id, uid)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, subs)
}

func (s *Server) handleExportRegistrants(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid list ID")
	}
	filename, data, err := s.Registrations.ExportEmails(c.Request().Context(), id)
	if err != nil {
		return s.respondError(c, err)
	}
	return attachment(c, filename, "text/csv; charset=utf-8", data)
}

func (s *Server) handleListWebforms(c echo.Context) error {
	forms, err := s.Registrations.Webforms(c.Request().Context())
	if err != nil {
		return s.respondError(c, err)
	}
	if forms == nil {
		forms = []models.Webform{}
	}
	return c.JSON(http.StatusOK, forms)
}

func (s *Server) handleCreateWebform(c echo.Context) error {
	var w models.Webform
	if err := c.Bind(&w); err != nil {
		return badRequest(c, "Invalid request")
	}
	if err := s.Registrations.CreateWebform(c.Request().Context(), &w); err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusCreated, w)
}

func (s *Server) handleWebformFields(c echo.Context) error {
	fields, err := s.Registrations.WebformFields(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, fields)
}

type submissionRequest struct {
	UserID int64             `json:"user_id"`
	Data   map[string]string `json:"data"`
}

func (s *Server) handleCreateSubmission(c echo.Context) error {
	var req submissionRequest
	if err := c.Bind(&req); err != nil || req.UserID <= 0 {
		return badRequest(c, "user_id is required")
	}
	sub, err := s.Registrations.AddSubmission(c.Request().Context(), c.Param("id"), req.UserID, req.Data)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusCreated, sub)
}
