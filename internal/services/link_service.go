package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"imageflow/internal/logging"
	"imageflow/internal/repository"
	"imageflow/pkg/models"
)

// LinkService accepts link submissions and hands them to downstream
// workflows through the link webhook.
type LinkService struct {
	store      repository.Store
	dispatcher *WebhookDispatcher
	logger     *logging.Logger
}

// NewLinkService creates a new LinkService.
func NewLinkService(store repository.Store, dispatcher *WebhookDispatcher, logger *logging.Logger) *LinkService {
	return &LinkService{
		store:      store,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// CreateLinkSubmissionInput is the command to submit a link.
type CreateLinkSubmissionInput struct {
	URL       string  `json:"url"`
	SourceURL *string `json:"source_url,omitempty"`
	ClientIP  *string `json:"-"`
	UserAgent *string `json:"-"`
}

// CreateLinkSubmission persists a submission and triggers the link webhook
// in the background.
func (s *LinkService) CreateLinkSubmission(ctx context.Context, input CreateLinkSubmissionInput) (*models.LinkSubmission, error) {
	if strings.TrimSpace(input.URL) == "" {
		return nil, validationErr("url must not be empty")
	}

	submission := &models.LinkSubmission{
		ID:            uuid.New().String(),
		URL:           input.URL,
		SourceURL:     input.SourceURL,
		ClientIP:      input.ClientIP,
		UserAgent:     input.UserAgent,
		CreatedAt:     time.Now().UTC(),
		WebhookStatus: models.WebhookStatusPending,
	}
	if err := s.store.CreateLinkSubmission(ctx, submission); err != nil {
		return nil, err
	}

	s.logger.Info("link submitted", "submission_id", submission.ID, "url", submission.URL)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := s.dispatcher.DeliverLinkSubmission(ctx, submission.ID); err != nil {
			s.logger.Error("link webhook delivery failed",
				"submission_id", submission.ID, "error", err.Error())
		}
	}()

	return submission, nil
}

// ListLinkSubmissions returns submissions newest first. The limit defaults
// to 50 when zero, is capped at 200, and must not be negative.
func (s *LinkService) ListLinkSubmissions(ctx context.Context, limit int) ([]*models.LinkSubmission, error) {
	if limit < 0 {
		return nil, validationErr("limit must not be negative")
	}
	if limit == 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	return s.store.ListLinkSubmissions(ctx, limit)
}
