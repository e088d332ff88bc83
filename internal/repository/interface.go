package repository

import (
	"context"
	"errors"
	"time"

	"imageflow/pkg/models"
)

// ErrNotFound is returned when a requested record does not exist, or when an
// image id does not belong to the given run.
var ErrNotFound = errors.New("record not found")

// Store is the persistence interface for runs, images, approvals and link
// submissions. The postgres implementation is the source of truth; the
// memory implementation backs unit tests.
type Store interface {
	// CreateRun inserts a run together with any caller-supplied images.
	CreateRun(ctx context.Context, run *models.Run) error
	// GetRun retrieves a run with its images ordered by ordinal.
	GetRun(ctx context.Context, id string) (*models.Run, error)
	// ListRuns returns runs in any of the given statuses, newest first,
	// images included. Runs in the posted state are never returned.
	ListRuns(ctx context.Context, statuses []models.RunStatus) ([]*models.Run, error)
	// CountRunsByStatus counts runs currently in the given status.
	CountRunsByStatus(ctx context.Context, status models.RunStatus) (int, error)
	// UpdateRunStatus sets a run's status and bumps updated_at.
	UpdateRunStatus(ctx context.Context, id string, status models.RunStatus) error
	// TouchRun bumps a run's updated_at without changing its status.
	TouchRun(ctx context.Context, id string) error
	// AddRunImages appends images to a run, preserving the caller-supplied
	// ordinals, and bumps the run's updated_at.
	AddRunImages(ctx context.Context, runID string, images []*models.RunImage) error
	// GetRunImage retrieves an image scoped to its run.
	GetRunImage(ctx context.Context, runID, imageID string) (*models.RunImage, error)
	// GetRunImageByID retrieves an image by id alone. Used when rebuilding
	// webhook payloads from an approval record.
	GetRunImageByID(ctx context.Context, imageID string) (*models.RunImage, error)
	// SetRunImageStatus updates an image's status and, when notes is
	// non-nil, its notes.
	SetRunImageStatus(ctx context.Context, imageID string, status models.RunImageStatus, notes *string) error
	// ClaimNextQueuedRun atomically transitions the oldest queued run to
	// generating and returns it. ErrNotFound means the queue is empty.
	ClaimNextQueuedRun(ctx context.Context) (*models.Run, error)
	// ListStuckRuns returns generating runs that have not been updated for
	// at least the given duration.
	ListStuckRuns(ctx context.Context, olderThan time.Duration) ([]*models.Run, error)

	// CreateApproval inserts an approval audit record.
	CreateApproval(ctx context.Context, approval *models.RunImageApproval) error
	// GetApproval retrieves an approval by id.
	GetApproval(ctx context.Context, id string) (*models.RunImageApproval, error)
	// IncrementApprovalWebhookAttempts adds one delivery attempt. It is
	// called before the network call so attempts counts tries, not wins.
	IncrementApprovalWebhookAttempts(ctx context.Context, id string) error
	// SetApprovalWebhookResult records the outcome of the last attempt.
	SetApprovalWebhookResult(ctx context.Context, id string, status models.WebhookStatus, lastError *string) error

	// CreateLinkSubmission inserts a link submission.
	CreateLinkSubmission(ctx context.Context, submission *models.LinkSubmission) error
	// GetLinkSubmission retrieves a link submission by id.
	GetLinkSubmission(ctx context.Context, id string) (*models.LinkSubmission, error)
	// ListLinkSubmissions returns submissions newest first, up to limit.
	ListLinkSubmissions(ctx context.Context, limit int) ([]*models.LinkSubmission, error)
	// IncrementLinkWebhookAttempts adds one delivery attempt.
	IncrementLinkWebhookAttempts(ctx context.Context, id string) error
	// SetLinkWebhookResult records the outcome of the last attempt.
	SetLinkWebhookResult(ctx context.Context, id string, status models.WebhookStatus, lastError *string) error
}
