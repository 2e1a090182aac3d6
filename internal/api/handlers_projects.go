package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/david/pimm/internal/projects"
)

func (s *Server) handleListProjects(c echo.Context) error {
	q := projects.Query{Search: c.QueryParam("q")}
	if l, err := strconv.Atoi(c.QueryParam("limit")); err == nil {
		q.Limit = l
	}
	if o, err := strconv.Atoi(c.QueryParam("offset")); err == nil {
		q.Offset = o
	}

	res, err := s.Projects.List(c.Request().Context(), q)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleGetProject(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid project ID")
	}
	p, err := s.Projects.Get(c.Request().Context(), id)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

func (s *Server) handleCreateProject(c echo.Context) error {
	var in projects.Input
	if err := c.Bind(&in); err != nil {
		return badRequest(c, "Invalid request")
	}
	p, err := s.Projects.Create(c.Request().Context(), in)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusCreated, p)
}
