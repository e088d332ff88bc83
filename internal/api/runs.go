package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"imageflow/internal/services"
)

// CreateRun creates a new run
// (POST /runs)
func (s *Server) CreateRun(c echo.Context) error {
	ctx := c.Request().Context()

	var input services.CreateRunInput
	if err := c.Bind(&input); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}

	run, err := s.Runs.CreateRun(ctx, input)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, run)
}

// ListRuns lists runs for the review dashboard
// (GET /runs?status=)
func (s *Server) ListRuns(c echo.Context) error {
	ctx := c.Request().Context()

	list, err := s.Runs.ListRuns(ctx, c.QueryParam("status"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, list)
}

// GetRun returns a single run with its images
// (GET /runs/:run_id)
func (s *Server) GetRun(c echo.Context) error {
	ctx := c.Request().Context()

	run, err := s.Runs.GetRun(ctx, c.Param("run_id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, run)
}

type updateRunStatusRequest struct {
	Status string `json:"status"`
}

// UpdateRunStatus applies an administrative status override
// (POST /runs/:run_id/status)
func (s *Server) UpdateRunStatus(c echo.Context) error {
	ctx := c.Request().Context()

	var req updateRunStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}

	run, err := s.Runs.UpdateRunStatus(ctx, c.Param("run_id"), req.Status)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, run)
}

// AppendImages attaches generated images to an existing run
// (POST /runs/:run_id/images)
func (s *Server) AppendImages(c echo.Context) error {
	ctx := c.Request().Context()

	var inputs []services.RunImageInput
	if err := c.Bind(&inputs); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}

	run, err := s.Runs.AppendImages(ctx, c.Param("run_id"), inputs)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, run)
}

type reviewRequest struct {
	ApprovedBy string  `json:"approved_by"`
	Notes      *string `json:"notes,omitempty"`
}

// ApproveImage approves one image and promotes its run
// (POST /runs/:run_id/images/:image_id/approve)
func (s *Server) ApproveImage(c echo.Context) error {
	ctx := c.Request().Context()

	var req reviewRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}

	result, err := s.Runs.ApproveImage(ctx, c.Param("run_id"), c.Param("image_id"), req.ApprovedBy, req.Notes)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, result)
}

// RejectImage rejects one image, leaving the run untouched
// (POST /runs/:run_id/images/:image_id/reject)
func (s *Server) RejectImage(c echo.Context) error {
	ctx := c.Request().Context()

	var req reviewRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}

	result, err := s.Runs.RejectImage(ctx, c.Param("run_id"), c.Param("image_id"), req.Notes)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, result)
}
