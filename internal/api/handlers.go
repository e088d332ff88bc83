// Package api contains the HTTP handlers for the run service
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"imageflow/internal/repository"
	"imageflow/internal/services"
)

// Server holds the dependencies for the API server.
type Server struct {
	Runs  *services.RunService
	Links *services.LinkService
}

// NewServer creates a new Server.
func NewServer(runs *services.RunService, links *services.LinkService) *Server {
	return &Server{Runs: runs, Links: links}
}

// RegisterRoutes mounts all handlers on the given echo instance.
func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", s.HandleHealth)

	runs := e.Group("/runs")
	runs.POST("", s.CreateRun)
	runs.GET("", s.ListRuns)
	runs.GET("/:run_id", s.GetRun)
	runs.POST("/:run_id/status", s.UpdateRunStatus)
	runs.POST("/:run_id/images", s.AppendImages)
	runs.POST("/:run_id/images/:image_id/approve", s.ApproveImage)
	runs.POST("/:run_id/images/:image_id/reject", s.RejectImage)

	links := e.Group("/links")
	links.POST("", s.CreateLinkSubmission)
	links.GET("", s.ListLinkSubmissions)
}

// HealthStatus represents the health check response
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
}

// HandleHealth returns basic health status (always returns 200 OK)
func (s *Server) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		Service:   "imageflow",
	})
}

// httpError maps service and repository errors onto HTTP status codes.
func httpError(err error) error {
	switch {
	case errors.Is(err, services.ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
