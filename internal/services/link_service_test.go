package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imageflow/internal/logging"
	"imageflow/internal/repository"
	"imageflow/pkg/models"
)

func newTestLinkService(t *testing.T) (*LinkService, repository.Store) {
	t.Helper()
	store := repository.NewMemoryStore()
	logger := logging.NewLogger()
	dispatcher := NewWebhookDispatcher(store, "", "", 5*time.Second, logger)
	return NewLinkService(store, dispatcher, logger), store
}

func TestCreateLinkSubmission(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestLinkService(t)

	sourceURL := "https://example.com/gallery"
	clientIP := "203.0.113.9"
	submission, err := svc.CreateLinkSubmission(ctx, CreateLinkSubmissionInput{
		URL:       "https://example.com/image/42",
		SourceURL: &sourceURL,
		ClientIP:  &clientIP,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, submission.ID)
	assert.Equal(t, models.WebhookStatusPending, submission.WebhookStatus)

	require.Eventually(t, func() bool {
		stored, err := store.GetLinkSubmission(ctx, submission.ID)
		if err != nil {
			return false
		}
		return stored.WebhookStatus == models.WebhookStatusSent && stored.WebhookAttempts == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCreateLinkSubmissionRequiresURL(t *testing.T) {
	svc, _ := newTestLinkService(t)

	_, err := svc.CreateLinkSubmission(context.Background(), CreateLinkSubmissionInput{URL: " "})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestListLinkSubmissionsLimit(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestLinkService(t)

	base := time.Now().UTC()
	for i := 0; i < 60; i++ {
		require.NoError(t, store.CreateLinkSubmission(ctx, &models.LinkSubmission{
			ID:            fmt.Sprintf("sub-%02d", i),
			URL:           fmt.Sprintf("https://example.com/%d", i),
			CreatedAt:     base.Add(time.Duration(i) * time.Second),
			WebhookStatus: models.WebhookStatusPending,
		}))
	}

	subs, err := svc.ListLinkSubmissions(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, subs, 50, "default limit")
	assert.Equal(t, "sub-59", subs[0].ID, "newest first")

	subs, err = svc.ListLinkSubmissions(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, subs, 5)

	subs, err = svc.ListLinkSubmissions(ctx, 10000)
	require.NoError(t, err)
	assert.Len(t, subs, 60, "clamped limit still covers all rows")

	_, err = svc.ListLinkSubmissions(ctx, -1)
	assert.ErrorIs(t, err, ErrValidation)
}
