package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"imageflow/internal/services"
	"imageflow/pkg/models"
)

type createLinkRequest struct {
	URL       string  `json:"url"`
	SourceURL *string `json:"source_url,omitempty"`
}

// LinkSubmissionList is the listing response for link submissions.
type LinkSubmissionList struct {
	Submissions []*models.LinkSubmission `json:"submissions"`
}

// CreateLinkSubmission accepts a link for downstream processing
// (POST /links)
func (s *Server) CreateLinkSubmission(c echo.Context) error {
	ctx := c.Request().Context()

	var req createLinkRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}

	input := services.CreateLinkSubmissionInput{
		URL:       req.URL,
		SourceURL: req.SourceURL,
	}
	if ip := c.RealIP(); ip != "" {
		input.ClientIP = &ip
	}
	if ua := c.Request().UserAgent(); ua != "" {
		input.UserAgent = &ua
	}

	submission, err := s.Links.CreateLinkSubmission(ctx, input)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, submission)
}

// ListLinkSubmissions lists recent submissions
// (GET /links?limit=)
func (s *Server) ListLinkSubmissions(c echo.Context) error {
	ctx := c.Request().Context()

	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "Invalid limit: "+raw)
		}
		limit = parsed
	}

	submissions, err := s.Links.ListLinkSubmissions(ctx, limit)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, LinkSubmissionList{Submissions: submissions})
}
