package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"imageflow/pkg/models"
)

func newRun(prompt string, status models.RunStatus, createdAt time.Time) *models.Run {
	return &models.Run{
		ID:            uuid.New().String(),
		Prompt:        prompt,
		ParameterBlob: json.RawMessage(`{"num_images": 1}`),
		Status:        status,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}
}

func TestPostgresStore(t *testing.T) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test-db"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2)),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("failed to terminate container: %s", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatal(err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()

	if err := Migrate(pool); err != nil {
		t.Fatal(err)
	}

	store := NewPostgresStore(pool)

	t.Run("CreateRun and GetRun", func(t *testing.T) {
		run := newRun("a red fox", models.RunStatusQueued, time.Now().UTC())
		thumb := "s3://runs/thumb.png"
		run.Images = []*models.RunImage{
			{
				ID:        uuid.New().String(),
				RunID:     run.ID,
				Ordinal:   2,
				AssetURI:  "s3://runs/2.png",
				Status:    models.RunImageStatusGenerated,
				CreatedAt: run.CreatedAt,
			},
			{
				ID:        uuid.New().String(),
				RunID:     run.ID,
				Ordinal:   1,
				AssetURI:  "s3://runs/1.png",
				ThumbURI:  &thumb,
				Status:    models.RunImageStatusGenerated,
				CreatedAt: run.CreatedAt,
			},
		}
		require.NoError(t, store.CreateRun(ctx, run))

		got, err := store.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, run.ID, got.ID)
		assert.Equal(t, run.Prompt, got.Prompt)
		assert.Equal(t, models.RunStatusQueued, got.Status)
		assert.JSONEq(t, string(run.ParameterBlob), string(got.ParameterBlob))
		require.Len(t, got.Images, 2)
		assert.Equal(t, 1, got.Images[0].Ordinal, "images ordered by ordinal")
		assert.Equal(t, 2, got.Images[1].Ordinal)
		require.NotNil(t, got.Images[0].ThumbURI)
		assert.Equal(t, thumb, *got.Images[0].ThumbURI)
	})

	t.Run("GetRun missing", func(t *testing.T) {
		_, err := store.GetRun(ctx, uuid.New().String())
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("UpdateRunStatus", func(t *testing.T) {
		run := newRun("p", models.RunStatusQueued, time.Now().UTC())
		require.NoError(t, store.CreateRun(ctx, run))

		require.NoError(t, store.UpdateRunStatus(ctx, run.ID, models.RunStatusError))
		got, err := store.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RunStatusError, got.Status)

		err = store.UpdateRunStatus(ctx, uuid.New().String(), models.RunStatusError)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("ListRuns filter and posted exclusion", func(t *testing.T) {
		base := time.Now().UTC()
		ready := newRun("ready run", models.RunStatusReady, base)
		posted := newRun("posted run", models.RunStatusPosted, base.Add(time.Second))
		require.NoError(t, store.CreateRun(ctx, ready))
		require.NoError(t, store.CreateRun(ctx, posted))

		runs, err := store.ListRuns(ctx, []models.RunStatus{models.RunStatusReady, models.RunStatusPosted})
		require.NoError(t, err)
		ids := make([]string, 0, len(runs))
		for _, r := range runs {
			ids = append(ids, r.ID)
		}
		assert.Contains(t, ids, ready.ID)
		assert.NotContains(t, ids, posted.ID)
	})

	t.Run("ClaimNextQueuedRun oldest first", func(t *testing.T) {
		// Drain anything queued by earlier subtests.
		for {
			if _, err := store.ClaimNextQueuedRun(ctx); err != nil {
				require.ErrorIs(t, err, ErrNotFound)
				break
			}
		}

		base := time.Now().UTC()
		older := newRun("older", models.RunStatusQueued, base.Add(-time.Minute))
		newer := newRun("newer", models.RunStatusQueued, base)
		require.NoError(t, store.CreateRun(ctx, newer))
		require.NoError(t, store.CreateRun(ctx, older))

		claimed, err := store.ClaimNextQueuedRun(ctx)
		require.NoError(t, err)
		assert.Equal(t, older.ID, claimed.ID)
		assert.Equal(t, models.RunStatusGenerating, claimed.Status)

		claimed, err = store.ClaimNextQueuedRun(ctx)
		require.NoError(t, err)
		assert.Equal(t, newer.ID, claimed.ID)

		_, err = store.ClaimNextQueuedRun(ctx)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("AddRunImages and SetRunImageStatus", func(t *testing.T) {
		run := newRun("p", models.RunStatusGenerating, time.Now().UTC())
		require.NoError(t, store.CreateRun(ctx, run))

		img := &models.RunImage{
			ID:        uuid.New().String(),
			RunID:     run.ID,
			Ordinal:   1,
			AssetURI:  "s3://runs/1.png",
			Status:    models.RunImageStatusGenerated,
			CreatedAt: time.Now().UTC(),
		}
		require.NoError(t, store.AddRunImages(ctx, run.ID, []*models.RunImage{img}))

		notes := "grainy"
		require.NoError(t, store.SetRunImageStatus(ctx, img.ID, models.RunImageStatusRejected, &notes))

		got, err := store.GetRunImage(ctx, run.ID, img.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RunImageStatusRejected, got.Status)
		require.NotNil(t, got.Notes)
		assert.Equal(t, notes, *got.Notes)

		_, err = store.GetRunImage(ctx, uuid.New().String(), img.ID)
		assert.ErrorIs(t, err, ErrNotFound, "image lookups are scoped to the run")

		byID, err := store.GetRunImageByID(ctx, img.ID)
		require.NoError(t, err)
		assert.Equal(t, img.ID, byID.ID)

		err = store.AddRunImages(ctx, uuid.New().String(), []*models.RunImage{img})
		assert.Error(t, err)

		dup := &models.RunImage{
			ID:        uuid.New().String(),
			RunID:     run.ID,
			Ordinal:   1,
			AssetURI:  "s3://runs/1-again.png",
			Status:    models.RunImageStatusGenerated,
			CreatedAt: time.Now().UTC(),
		}
		err = store.AddRunImages(ctx, run.ID, []*models.RunImage{dup})
		assert.Error(t, err, "ordinals are unique within a run")
	})

	t.Run("TouchRun", func(t *testing.T) {
		run := newRun("p", models.RunStatusReady, time.Now().UTC().Add(-time.Hour))
		require.NoError(t, store.CreateRun(ctx, run))

		require.NoError(t, store.TouchRun(ctx, run.ID))

		got, err := store.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.True(t, got.UpdatedAt.After(run.UpdatedAt))
		assert.Equal(t, models.RunStatusReady, got.Status)

		assert.ErrorIs(t, store.TouchRun(ctx, uuid.New().String()), ErrNotFound)
	})

	t.Run("ListStuckRuns", func(t *testing.T) {
		stale := newRun("stale", models.RunStatusGenerating, time.Now().UTC().Add(-2*time.Hour))
		require.NoError(t, store.CreateRun(ctx, stale))

		runs, err := store.ListStuckRuns(ctx, time.Hour)
		require.NoError(t, err)
		ids := make([]string, 0, len(runs))
		for _, r := range runs {
			ids = append(ids, r.ID)
		}
		assert.Contains(t, ids, stale.ID)

		runs, err = store.ListStuckRuns(ctx, 3*time.Hour)
		require.NoError(t, err)
		for _, r := range runs {
			assert.NotEqual(t, stale.ID, r.ID)
		}
	})

	t.Run("Approval webhook bookkeeping", func(t *testing.T) {
		run := newRun("p", models.RunStatusReady, time.Now().UTC())
		img := &models.RunImage{
			ID:        uuid.New().String(),
			RunID:     run.ID,
			Ordinal:   1,
			AssetURI:  "s3://runs/1.png",
			Status:    models.RunImageStatusApproved,
			CreatedAt: run.CreatedAt,
		}
		run.Images = []*models.RunImage{img}
		require.NoError(t, store.CreateRun(ctx, run))

		approval := &models.RunImageApproval{
			ID:            uuid.New().String(),
			RunImageID:    img.ID,
			ApprovedBy:    "alice",
			ApprovedAt:    time.Now().UTC(),
			WebhookStatus: models.WebhookStatusPending,
		}
		require.NoError(t, store.CreateApproval(ctx, approval))

		require.NoError(t, store.IncrementApprovalWebhookAttempts(ctx, approval.ID))
		require.NoError(t, store.IncrementApprovalWebhookAttempts(ctx, approval.ID))
		msg := "unexpected status 502"
		require.NoError(t, store.SetApprovalWebhookResult(ctx, approval.ID, models.WebhookStatusFailed, &msg))

		got, err := store.GetApproval(ctx, approval.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, got.WebhookAttempts)
		assert.Equal(t, models.WebhookStatusFailed, got.WebhookStatus)
		require.NotNil(t, got.WebhookLastError)
		assert.Equal(t, msg, *got.WebhookLastError)

		require.NoError(t, store.SetApprovalWebhookResult(ctx, approval.ID, models.WebhookStatusSent, nil))
		got, err = store.GetApproval(ctx, approval.ID)
		require.NoError(t, err)
		assert.Equal(t, models.WebhookStatusSent, got.WebhookStatus)
		assert.Nil(t, got.WebhookLastError)
	})

	t.Run("Link submissions", func(t *testing.T) {
		sourceURL := "https://example.com/gallery"
		submission := &models.LinkSubmission{
			ID:            uuid.New().String(),
			URL:           "https://example.com/image/42",
			SourceURL:     &sourceURL,
			CreatedAt:     time.Now().UTC(),
			WebhookStatus: models.WebhookStatusPending,
		}
		require.NoError(t, store.CreateLinkSubmission(ctx, submission))

		require.NoError(t, store.IncrementLinkWebhookAttempts(ctx, submission.ID))
		require.NoError(t, store.SetLinkWebhookResult(ctx, submission.ID, models.WebhookStatusSent, nil))

		got, err := store.GetLinkSubmission(ctx, submission.ID)
		require.NoError(t, err)
		assert.Equal(t, submission.URL, got.URL)
		assert.Equal(t, 1, got.WebhookAttempts)
		assert.Equal(t, models.WebhookStatusSent, got.WebhookStatus)

		subs, err := store.ListLinkSubmissions(ctx, 10)
		require.NoError(t, err)
		require.NotEmpty(t, subs)
		assert.Equal(t, submission.ID, subs[0].ID)
	})

	t.Run("CountRunsByStatus", func(t *testing.T) {
		before, err := store.CountRunsByStatus(ctx, models.RunStatusQueued)
		require.NoError(t, err)

		require.NoError(t, store.CreateRun(ctx, newRun("p", models.RunStatusQueued, time.Now().UTC())))
		after, err := store.CountRunsByStatus(ctx, models.RunStatusQueued)
		require.NoError(t, err)
		assert.Equal(t, before+1, after)
	})
}
