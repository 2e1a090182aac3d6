package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/david/pimm/internal/invitation"
	"github.com/david/pimm/internal/models"
)

type filterRequest struct {
	Filters []invitation.Filter `json:"filters"`
}

func (s *Server) handleFilterProjects(c echo.Context) error {
	var req filterRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request")
	}
	list, err := s.Invitations.FilterProjects(c.Request().Context(), req.Filters)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, list)
}

type matchRequest struct {
	ProjectIDs []int64 `json:"project_ids"`
}

func (s *Server) handleMatchPIs(c echo.Context) error {
	var req matchRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request")
	}
	if len(req.ProjectIDs) == 0 {
		return badRequest(c, invitation.ErrNoProjects.Error())
	}
	res, err := s.Invitations.Match(c.Request().Context(), req.ProjectIDs)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleCreateInviteeList(c echo.Context) error {
	var req invitation.CreateListRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request")
	}
	res, err := s.Invitations.CreateList(c.Request().Context(), req)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusCreated, res)
}

func (s *Server) handleListInviteeLists(c echo.Context) error {
	lists, err := s.Invitations.Lists(c.Request().Context())
	if err != nil {
		return s.respondError(c, err)
	}
	if lists == nil {
		lists = []models.InviteeList{}
	}
	return c.JSON(http.StatusOK, lists)
}

func (s *Server) handleGetInviteeList(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid list ID")
	}
	ctx := c.Request().Context()
	list, err := s.Invitations.Get(ctx, id)
	if err != nil {
		return s.respondError(c, err)
	}
	users, err := s.Invitations.Users(ctx, id)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"list": list, "users": users})
}

type addInviteesRequest struct {
	UserIDs []int64 `json:"user_ids"`
}

func (s *Server) handleAddInvitees(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid list ID")
	}
	var req addInviteesRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request")
	}
	added, err := s.Invitations.AddUsers(c.Request().Context(), id, req.UserIDs)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]int{"added": added})
}

func (s *Server) handleExportInviteeList(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid list ID")
	}
	filename, data, err := s.Invitations.Export(c.Request().Context(), id)
	if err != nil {
		return s.respondError(c, err)
	}
	return attachment(c, filename, "text/csv; charset=utf-8", data)
}
