package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imageflow/internal/logging"
	"imageflow/internal/repository"
	"imageflow/internal/services"
	"imageflow/pkg/models"
)

func newTestServer(t *testing.T) (*echo.Echo, repository.Store) {
	t.Helper()
	store := repository.NewMemoryStore()
	logger := logging.NewLogger()
	dispatcher := services.NewWebhookDispatcher(store, "", "", 5*time.Second, logger)
	server := NewServer(
		services.NewRunService(store, dispatcher, logger),
		services.NewLinkService(store, dispatcher, logger),
	)
	e := echo.New()
	server.RegisterRoutes(e)
	return e, store
}

func doJSON(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doJSON(e, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var health HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "imageflow", health.Service)
}

func TestCreateRunEndpoint(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doJSON(e, http.MethodPost, "/runs", `{"prompt":"a red fox","parameter_blob":{"num_images":2}}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var run models.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, models.RunStatusQueued, run.Status)
	assert.Equal(t, "a red fox", run.Prompt)
}

func TestCreateRunEndpointValidation(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doJSON(e, http.MethodPost, "/runs", `{"prompt":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(e, http.MethodPost, "/runs", `{"prompt":"x","status":"done"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(e, http.MethodPost, "/runs", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetRunEndpoint(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doJSON(e, http.MethodPost, "/runs", `{"prompt":"p","images":[{"ordinal":1,"asset_uri":"s3://runs/x/1.png"}]}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created models.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doJSON(e, http.MethodGet, "/runs/"+created.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var fetched models.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fetched))
	assert.Equal(t, created.ID, fetched.ID)
	require.Len(t, fetched.Images, 1)

	rec = doJSON(e, http.MethodGet, "/runs/does-not-exist", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListRunsEndpoint(t *testing.T) {
	e, _ := newTestServer(t)

	for _, status := range []string{"queued", "generating", "ready", "error"} {
		rec := doJSON(e, http.MethodPost, "/runs", fmt.Sprintf(`{"prompt":"p","status":%q}`, status))
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := doJSON(e, http.MethodGet, "/runs", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var list services.RunList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 1, list.QueuedCount)
	assert.Len(t, list.Runs, 2)

	rec = doJSON(e, http.MethodGet, "/runs?status=error", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Runs, 1)
	assert.Equal(t, models.RunStatusError, list.Runs[0].Status)

	rec = doJSON(e, http.MethodGet, "/runs?status=bogus", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateRunStatusEndpoint(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doJSON(e, http.MethodPost, "/runs", `{"prompt":"p"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var run models.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))

	rec = doJSON(e, http.MethodPost, "/runs/"+run.ID+"/status", `{"status":"posted"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, models.RunStatusPosted, run.Status)

	rec = doJSON(e, http.MethodPost, "/runs/missing/status", `{"status":"posted"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAppendImagesEndpoint(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doJSON(e, http.MethodPost, "/runs", `{"prompt":"p"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var run models.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))

	rec = doJSON(e, http.MethodPost, "/runs/"+run.ID+"/images",
		`[{"ordinal":1,"asset_uri":"s3://runs/x/1.png"},{"ordinal":2,"asset_uri":"s3://runs/x/2.png"}]`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	require.Len(t, run.Images, 2)
	assert.Equal(t, 1, run.Images[0].Ordinal)
	assert.Equal(t, 2, run.Images[1].Ordinal)
}

func TestApproveImageEndpoint(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doJSON(e, http.MethodPost, "/runs", `{"prompt":"p","images":[{"ordinal":1,"asset_uri":"s3://runs/x/1.png"}]}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var run models.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	imageID := run.Images[0].ID

	rec = doJSON(e, http.MethodPost, "/runs/"+run.ID+"/images/"+imageID+"/approve", `{"approved_by":"alice"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var result services.ApprovalResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, imageID, result.ImageID)
	assert.NotEmpty(t, result.ApprovalID)

	rec = doJSON(e, http.MethodGet, "/runs/"+run.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, models.RunStatusApproved, run.Status)

	rec = doJSON(e, http.MethodPost, "/runs/"+run.ID+"/images/"+imageID+"/approve", `{"approved_by":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(e, http.MethodPost, "/runs/"+run.ID+"/images/missing/approve", `{"approved_by":"alice"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRejectImageEndpoint(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doJSON(e, http.MethodPost, "/runs", `{"prompt":"p","images":[{"ordinal":1,"asset_uri":"s3://runs/x/1.png"}]}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var run models.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	imageID := run.Images[0].ID

	rec = doJSON(e, http.MethodPost, "/runs/"+run.ID+"/images/"+imageID+"/reject", `{"notes":"too dark"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var result services.RejectionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, models.RunImageStatusRejected, result.Status)

	rec = doJSON(e, http.MethodGet, "/runs/"+run.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, models.RunStatusReady, run.Status, "rejection leaves the run status alone")
}

func TestCreateLinkSubmissionEndpoint(t *testing.T) {
	e, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/links",
		strings.NewReader(`{"url":"https://example.com/image/42","source_url":"https://example.com/gallery"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("User-Agent", "imageflow-test/1.0")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var submission models.LinkSubmission
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &submission))
	assert.NotEmpty(t, submission.ID)
	assert.Equal(t, "https://example.com/image/42", submission.URL)
	require.NotNil(t, submission.UserAgent)
	assert.Equal(t, "imageflow-test/1.0", *submission.UserAgent)

	rec = doJSON(e, http.MethodPost, "/links", `{"url":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListLinkSubmissionsEndpoint(t *testing.T) {
	e, _ := newTestServer(t)

	for i := 0; i < 3; i++ {
		rec := doJSON(e, http.MethodPost, "/links", fmt.Sprintf(`{"url":"https://example.com/%d"}`, i))
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := doJSON(e, http.MethodGet, "/links?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var list LinkSubmissionList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Submissions, 2)

	rec = doJSON(e, http.MethodGet, "/links?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(e, http.MethodGet, "/links?limit=-5", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
