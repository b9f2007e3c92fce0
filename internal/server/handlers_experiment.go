package server

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	apperrors "github.com/agokrani/moltbook-api/internal/errors"
)

func (s *Server) handleResults(c echo.Context) error {
	rows, err := s.app.GetResults(c.Request().Context())
	if err != nil {
		return apperrors.ExternalError("failed to build experiment results", err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"count":   len(rows),
		"results": rows,
	})
}

func (s *Server) handleExperimentStatus(c echo.Context) error {
	status, err := s.app.ExperimentStatus(c.Request().Context())
	if err != nil {
		return apperrors.ExternalError("failed to read experiment status", err)
	}
	return c.JSON(http.StatusOK, status)
}

func (s *Server) handleListTreatments(c echo.Context) error {
	limit := defaultPageLimit
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > maxPageLimit {
			return apperrors.ValidationError("limit must be between 1 and 1000")
		}
		limit = parsed
	}

	offset := 0
	if raw := c.QueryParam("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return apperrors.ValidationError("offset must be non-negative")
		}
		offset = parsed
	}

	treatments, err := s.app.ListTreatments(c.Request().Context(), limit, offset)
	if err != nil {
		return mapDomainError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"count":      len(treatments),
		"treatments": treatments,
	})
}

func (s *Server) handleGetTreatment(c echo.Context) error {
	postID, err := parseIDParam(c, "post_id")
	if err != nil {
		return err
	}

	treatment, err := s.app.GetTreatment(c.Request().Context(), postID)
	if err != nil {
		return mapDomainError(err)
	}
	return c.JSON(http.StatusOK, treatment)
}

func (s *Server) handleWorldFeedStart(c echo.Context) error {
	if err := s.app.StartWorldFeed(); err != nil {
		return apperrors.ConflictError(err.Error())
	}
	status, err := s.app.WorldFeedStatus()
	if err != nil {
		return apperrors.InternalError("failed to read world feed status", err)
	}
	return c.JSON(http.StatusOK, status)
}

func (s *Server) handleWorldFeedStop(c echo.Context) error {
	if err := s.app.StopWorldFeed(); err != nil {
		return apperrors.ConflictError(err.Error())
	}
	status, err := s.app.WorldFeedStatus()
	if err != nil {
		return apperrors.InternalError("failed to read world feed status", err)
	}
	return c.JSON(http.StatusOK, status)
}

func (s *Server) handleWorldFeedStatus(c echo.Context) error {
	status, err := s.app.WorldFeedStatus()
	if err != nil {
		return apperrors.NotFoundError("world feed not configured")
	}
	return c.JSON(http.StatusOK, status)
}
