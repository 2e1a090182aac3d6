package api

import (
	"fmt"
	"io"
	"net/http"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/david/pimm/internal/importer"
)

type previewResponse struct {
	importer.Session
	HTML string `json:"html"`
}

func (s *Server) handleImportPreview(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return badRequest(c, "file is required")
	}
	limit := s.cfg.Import.MaxUploadBytes
	if limit > 0 && fh.Size > limit {
		return c.JSON(http.StatusRequestEntityTooLarge, map[string]string{
			"error": fmt.Sprintf("file exceeds the %d byte upload limit", limit),
		})
	}

	delimiter := ','
	if raw := c.FormValue("delimiter"); raw != "" {
		if utf8.RuneCountInString(raw) != 1 {
			return badRequest(c, importer.ErrInvalidDelimiter.Error())
		}
		delimiter, _ = utf8.DecodeRuneInString(raw)
	}

	f, err := fh.Open()
	if err != nil {
		return badRequest(c, "could not read upload")
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return badRequest(c, "could not read upload")
	}

	sess, err := s.Importer.Preview(c.Request().Context(), importer.Upload{
		Filename:  fh.Filename,
		Data:      data,
		Delimiter: delimiter,
	})
	if err != nil {
		return s.respondError(c, err)
	}
	html, err := sess.Summary.HTML()
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, previewResponse{Session: sess, HTML: html})
}

func sessionID(c echo.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	return id, err == nil
}

func (s *Server) handleImportSession(c echo.Context) error {
	id, ok := sessionID(c)
	if !ok {
		return badRequest(c, "Invalid session ID")
	}
	sess, err := s.Importer.Session(id)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, sess)
}

func (s *Server) handleImportConfirm(c echo.Context) error {
	id, ok := sessionID(c)
	if !ok {
		return badRequest(c, "Invalid session ID")
	}
	res, err := s.Importer.Confirm(c.Request().Context(), id)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleImportCancel(c echo.Context) error {
	id, ok := sessionID(c)
	if !ok {
		return badRequest(c, "Invalid session ID")
	}
	if err := s.Importer.Cancel(id); err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "cancelled"})
}
