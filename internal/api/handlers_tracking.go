package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/david/pimm/internal/auth"
	"github.com/david/pimm/internal/batch"
	"github.com/david/pimm/internal/db"
	"github.com/david/pimm/internal/models"
	"github.com/david/pimm/internal/tracking"
)

const bulkJobName = "tracking_bulk_add"

func (s *Server) handleListTracking(c echo.Context) error {
	list, err := s.Tracking.List(c.Request().Context(), db.TrackingQuery{
		Status:    models.TrackingStatus(c.QueryParam("status")),
		Sort:      c.QueryParam("sort"),
		Direction: c.QueryParam("direction"),
	})
	if err != nil {
		return s.respondError(c, err)
	}
	if list == nil {
		list = []tracking.TrackedProject{}
	}
	return c.JSON(http.StatusOK, list)
}

type addTrackingRequest struct {
	ProjectID int64  `json:"project_id"`
	Notes     string `json:"notes"`
}

func (s *Server) handleAddTracking(c echo.Context) error {
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	var req addTrackingRequest
	if err := c.Bind(&req); err != nil || req.ProjectID <= 0 {
		return badRequest(c, "project_id is required")
	}

	entry, err := s.Tracking.Add(c.Request().Context(), req.ProjectID, userID, req.Notes)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusCreated, entry)
}

type updateTrackingRequest struct {
	Status models.TrackingStatus `json:"status"`
	Notes  *string               `json:"notes"`
}

func (s *Server) handleUpdateTracking(c echo.Context) error {
	nid, ok := paramID(c, "nid")
	if !ok {
		return badRequest(c, "Invalid project ID")
	}
	var req updateTrackingRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request")
	}
	if err := s.Tracking.UpdateStatus(c.Request().Context(), nid, req.Status, req.Notes); err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"nid": nid, "status": req.Status})
}

func (s *Server) handleRemoveTracking(c echo.Context) error {
	nid, ok := paramID(c, "nid")
	if !ok {
		return badRequest(c, "Invalid project ID")
	}
	if err := s.Tracking.Remove(c.Request().Context(), nid); err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "removed"})
}

func (s *Server) handleTrackingCounts(c echo.Context) error {
	counts, err := s.Tracking.StatusCounts(c.Request().Context())
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, counts)
}

func (s *Server) handleUntrackedCount(c echo.Context) error {
	ids, err := s.Tracking.UntrackedIDs(c.Request().Context())
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]int{"count": len(ids)})
}

func (s *Server) handleBulkAdd(c echo.Context) error {
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	job, err := s.Jobs.Start(c.Request().Context(), bulkJobName, s.BulkAdder.Task(userID))
	if errors.Is(err, batch.ErrJobRunning) {
		return c.JSON(http.StatusConflict, map[string]any{
			"error":  "A bulk add job is already running",
			"job_id": job.ID,
		})
	}
	if err != nil {
		return s.respondError(c, err)
	}

	return c.JSON(http.StatusAccepted, map[string]any{
		"message": "Bulk add job started",
		"job_id":  job.ID,
		"poll":    fmt.Sprintf("/api/v1/jobs/%s", job.ID),
	})
}

func (s *Server) handleJobStatus(c echo.Context) error {
	job, err := s.Jobs.Get(c.Param("id"))
	if err != nil {
		return s.respondError(c, err)
	}

	resp := map[string]any{
		"id":         job.ID,
		"name":       job.Name,
		"status":     job.Status,
		"started_at": job.StartedAt,
		"progress":   job.Progress,
	}
	if !job.EndedAt.IsZero() {
		resp["ended_at"] = job.EndedAt
		resp["duration"] = job.EndedAt.Sub(job.StartedAt).String()
	}
	if job.Result != nil {
		resp["result"] = job.Result
	}
	if job.Error != "" {
		resp["error"] = job.Error
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleJobCancel(c echo.Context) error {
	if err := s.Jobs.Cancel(c.Param("id")); err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "cancelling"})
}
