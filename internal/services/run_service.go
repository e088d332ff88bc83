package services

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"imageflow/internal/logging"
	"imageflow/internal/repository"
	"imageflow/pkg/models"
)

// RunService implements the run lifecycle: creation, listing, status
// overrides, image attachment and the approve/reject review step.
type RunService struct {
	store      repository.Store
	dispatcher *WebhookDispatcher
	logger     *logging.Logger
}

// NewRunService creates a new RunService.
func NewRunService(store repository.Store, dispatcher *WebhookDispatcher, logger *logging.Logger) *RunService {
	return &RunService{
		store:      store,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// RunImageInput is a caller-supplied image attached at creation or appended
// later. The ordinal is taken as given and never renumbered.
type RunImageInput struct {
	Ordinal  int     `json:"ordinal"`
	AssetURI string  `json:"asset_uri"`
	ThumbURI *string `json:"thumb_uri,omitempty"`
	Notes    *string `json:"notes,omitempty"`
}

// CreateRunInput is the command to create a run. Status is optional: it
// defaults to ready when images are supplied and queued otherwise.
type CreateRunInput struct {
	WorkflowID    *string         `json:"workflow_id,omitempty"`
	Prompt        string          `json:"prompt"`
	ParameterBlob json.RawMessage `json:"parameter_blob,omitempty"`
	Status        string          `json:"status,omitempty"`
	Images        []RunImageInput `json:"images"`
}

// RunList is the listing response. QueuedCount counts all queued runs
// regardless of the requested filter, for dashboard use.
type RunList struct {
	Runs        []*models.Run `json:"runs"`
	QueuedCount int           `json:"queued_count"`
}

// ApprovalResult is returned from ApproveImage.
type ApprovalResult struct {
	ApprovalID    string               `json:"approval_id"`
	ImageID       string               `json:"image_id"`
	WebhookStatus models.WebhookStatus `json:"webhook_status"`
}

// RejectionResult is returned from RejectImage.
type RejectionResult struct {
	ImageID string                `json:"image_id"`
	Status  models.RunImageStatus `json:"status"`
	Message string                `json:"message"`
}

func newRunImage(runID string, in RunImageInput, now time.Time) *models.RunImage {
	return &models.RunImage{
		ID:        uuid.New().String(),
		RunID:     runID,
		Ordinal:   in.Ordinal,
		AssetURI:  in.AssetURI,
		ThumbURI:  in.ThumbURI,
		Status:    models.RunImageStatusGenerated,
		Notes:     in.Notes,
		CreatedAt: now,
	}
}

// CreateRun creates a new run with any already-generated images.
func (s *RunService) CreateRun(ctx context.Context, input CreateRunInput) (*models.Run, error) {
	if strings.TrimSpace(input.Prompt) == "" {
		return nil, validationErr("prompt must not be empty")
	}

	status := models.RunStatusQueued
	if len(input.Images) > 0 {
		status = models.RunStatusReady
	}
	if input.Status != "" {
		parsed, err := models.ParseRunStatus(input.Status)
		if err != nil {
			return nil, validationErr("%v", err)
		}
		status = parsed
	}

	now := time.Now().UTC()
	run := &models.Run{
		ID:            uuid.New().String(),
		WorkflowID:    input.WorkflowID,
		Prompt:        input.Prompt,
		ParameterBlob: input.ParameterBlob,
		Status:        status,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for _, in := range input.Images {
		run.Images = append(run.Images, newRunImage(run.ID, in, now))
	}

	if err := s.store.CreateRun(ctx, run); err != nil {
		return nil, err
	}

	s.logger.Info("run created", "run_id", run.ID, "status", string(run.Status))
	return run, nil
}

// ListRuns returns runs for the review dashboard. Without a filter only
// generating and ready runs are shown; queued, finished and errored runs are
// reachable through an explicit filter.
func (s *RunService) ListRuns(ctx context.Context, statusFilter string) (*RunList, error) {
	queuedCount, err := s.store.CountRunsByStatus(ctx, models.RunStatusQueued)
	if err != nil {
		return nil, err
	}

	statuses := []models.RunStatus{models.RunStatusGenerating, models.RunStatusReady}
	if statusFilter != "" {
		parsed, err := models.ParseRunStatus(statusFilter)
		if err != nil {
			return nil, validationErr("%v", err)
		}
		statuses = []models.RunStatus{parsed}
	}

	runs, err := s.store.ListRuns(ctx, statuses)
	if err != nil {
		return nil, err
	}
	return &RunList{Runs: runs, QueuedCount: queuedCount}, nil
}

// GetRun retrieves a run with its images.
func (s *RunService) GetRun(ctx context.Context, id string) (*models.Run, error) {
	return s.store.GetRun(ctx, id)
}

// UpdateRunStatus is the administrative status override.
func (s *RunService) UpdateRunStatus(ctx context.Context, id, status string) (*models.Run, error) {
	parsed, err := models.ParseRunStatus(status)
	if err != nil {
		return nil, validationErr("%v", err)
	}
	if err := s.store.UpdateRunStatus(ctx, id, parsed); err != nil {
		return nil, err
	}
	return s.store.GetRun(ctx, id)
}

// AppendImages attaches generated images to an existing run.
func (s *RunService) AppendImages(ctx context.Context, runID string, inputs []RunImageInput) (*models.Run, error) {
	now := time.Now().UTC()
	images := make([]*models.RunImage, 0, len(inputs))
	for _, in := range inputs {
		images = append(images, newRunImage(runID, in, now))
	}
	if err := s.store.AddRunImages(ctx, runID, images); err != nil {
		return nil, err
	}
	return s.store.GetRun(ctx, runID)
}

// ApproveImage marks an image approved, records the audit row, promotes the
// parent run and triggers the approval webhook out-of-band. Approving an
// already-approved image is an idempotent success that still adds an audit
// row. Webhook failure never fails the approval.
func (s *RunService) ApproveImage(ctx context.Context, runID, imageID, approvedBy string, notes *string) (*ApprovalResult, error) {
	if strings.TrimSpace(approvedBy) == "" {
		return nil, validationErr("approved_by must not be empty")
	}

	image, err := s.store.GetRunImage(ctx, runID, imageID)
	if err != nil {
		return nil, err
	}

	if err := s.store.SetRunImageStatus(ctx, image.ID, models.RunImageStatusApproved, notes); err != nil {
		return nil, err
	}
	if err := s.store.UpdateRunStatus(ctx, runID, models.RunStatusApproved); err != nil {
		return nil, err
	}

	approval := &models.RunImageApproval{
		ID:            uuid.New().String(),
		RunImageID:    image.ID,
		ApprovedBy:    approvedBy,
		Notes:         notes,
		ApprovedAt:    time.Now().UTC(),
		WebhookStatus: models.WebhookStatusPending,
	}
	if err := s.store.CreateApproval(ctx, approval); err != nil {
		return nil, err
	}

	s.logger.Info("image approved",
		"run_id", runID, "image_id", image.ID, "approved_by", approvedBy)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := s.dispatcher.DeliverApproval(ctx, approval.ID); err != nil {
			s.logger.Error("approval webhook delivery failed",
				"approval_id", approval.ID, "error", err.Error())
		}
	}()

	return &ApprovalResult{
		ApprovalID:    approval.ID,
		ImageID:       image.ID,
		WebhookStatus: approval.WebhookStatus,
	}, nil
}

// RejectImage marks an image rejected. The parent run keeps its status and
// no webhook is emitted.
func (s *RunService) RejectImage(ctx context.Context, runID, imageID string, notes *string) (*RejectionResult, error) {
	image, err := s.store.GetRunImage(ctx, runID, imageID)
	if err != nil {
		return nil, err
	}

	if err := s.store.SetRunImageStatus(ctx, image.ID, models.RunImageStatusRejected, notes); err != nil {
		return nil, err
	}
	// The run's status is untouched, but the rejection still counts as
	// activity on it.
	if err := s.store.TouchRun(ctx, runID); err != nil {
		return nil, err
	}

	s.logger.Info("image rejected", "run_id", runID, "image_id", image.ID)

	return &RejectionResult{
		ImageID: image.ID,
		Status:  models.RunImageStatusRejected,
		Message: "Image rejected successfully",
	}, nil
}
