package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"imageflow/internal/logging"
	"imageflow/internal/repository"
	"imageflow/pkg/models"
)

// WebhookDispatcher delivers notification payloads to downstream workflow
// endpoints. Each trigger is exactly one POST attempt: the attempt counter
// is incremented before the network call, the outcome lands in the record's
// webhook_status, and a failed delivery stays failed until an operator
// redelivers it. An unconfigured URL short-circuits to sent so records never
// hang in pending.
type WebhookDispatcher struct {
	store       repository.Store
	client      *http.Client
	approvalURL string
	linkURL     string
	logger      *logging.Logger
	deliveries  metric.Int64Counter
}

// NewWebhookDispatcher creates a dispatcher. Empty URLs disable the
// corresponding webhook.
func NewWebhookDispatcher(store repository.Store, approvalURL, linkURL string, timeout time.Duration, logger *logging.Logger) *WebhookDispatcher {
	meter := otel.Meter("imageflow/webhooks")
	deliveries, _ := meter.Int64Counter("webhook.deliveries")
	return &WebhookDispatcher{
		store:       store,
		client:      &http.Client{Timeout: timeout},
		approvalURL: approvalURL,
		linkURL:     linkURL,
		logger:      logger,
		deliveries:  deliveries,
	}
}

type approvalPayload struct {
	ApprovalID string  `json:"approval_id"`
	RunID      string  `json:"run_id"`
	ImageID    string  `json:"image_id"`
	AssetURI   string  `json:"asset_uri"`
	ApprovedBy string  `json:"approved_by"`
	ApprovedAt string  `json:"approved_at"`
	Notes      *string `json:"notes"`
}

type linkPayload struct {
	ID        string  `json:"id"`
	URL       string  `json:"url"`
	SourceURL *string `json:"source_url,omitempty"`
	CreatedAt string  `json:"created_at"`
	ClientIP  *string `json:"client_ip,omitempty"`
	UserAgent *string `json:"user_agent,omitempty"`
}

// DeliverApproval performs one delivery attempt for an approval record.
// The returned error reports the delivery outcome; the outcome is already
// persisted either way.
func (d *WebhookDispatcher) DeliverApproval(ctx context.Context, approvalID string) error {
	approval, err := d.store.GetApproval(ctx, approvalID)
	if err != nil {
		return fmt.Errorf("deliver approval: %w", err)
	}
	image, err := d.store.GetRunImageByID(ctx, approval.RunImageID)
	if err != nil {
		return fmt.Errorf("deliver approval: %w", err)
	}

	if err := d.store.IncrementApprovalWebhookAttempts(ctx, approvalID); err != nil {
		return fmt.Errorf("deliver approval: %w", err)
	}

	if d.approvalURL == "" {
		return d.recordApproval(ctx, approvalID, models.WebhookStatusSent, nil)
	}

	payload := approvalPayload{
		ApprovalID: approval.ID,
		RunID:      image.RunID,
		ImageID:    image.ID,
		AssetURI:   image.AssetURI,
		ApprovedBy: approval.ApprovedBy,
		ApprovedAt: approval.ApprovedAt.Format(time.RFC3339Nano),
		Notes:      approval.Notes,
	}

	if postErr := d.post(ctx, d.approvalURL, payload); postErr != nil {
		msg := postErr.Error()
		if err := d.recordApproval(ctx, approvalID, models.WebhookStatusFailed, &msg); err != nil {
			return err
		}
		return fmt.Errorf("deliver approval: %w", postErr)
	}
	return d.recordApproval(ctx, approvalID, models.WebhookStatusSent, nil)
}

func (d *WebhookDispatcher) recordApproval(ctx context.Context, id string, status models.WebhookStatus, lastError *string) error {
	d.deliveries.Add(ctx, 1, metric.WithAttributes(
		attribute.String("webhook", "approval"),
		attribute.String("outcome", string(status)),
	))
	if err := d.store.SetApprovalWebhookResult(ctx, id, status, lastError); err != nil {
		return fmt.Errorf("deliver approval: record outcome: %w", err)
	}
	return nil
}

// DeliverLinkSubmission performs one delivery attempt for a link submission.
func (d *WebhookDispatcher) DeliverLinkSubmission(ctx context.Context, submissionID string) error {
	submission, err := d.store.GetLinkSubmission(ctx, submissionID)
	if err != nil {
		return fmt.Errorf("deliver link submission: %w", err)
	}

	if err := d.store.IncrementLinkWebhookAttempts(ctx, submissionID); err != nil {
		return fmt.Errorf("deliver link submission: %w", err)
	}

	if d.linkURL == "" {
		return d.recordLink(ctx, submissionID, models.WebhookStatusSent, nil)
	}

	payload := linkPayload{
		ID:        submission.ID,
		URL:       submission.URL,
		SourceURL: submission.SourceURL,
		CreatedAt: submission.CreatedAt.Format(time.RFC3339Nano),
		ClientIP:  submission.ClientIP,
		UserAgent: submission.UserAgent,
	}

	if postErr := d.post(ctx, d.linkURL, payload); postErr != nil {
		msg := postErr.Error()
		if err := d.recordLink(ctx, submissionID, models.WebhookStatusFailed, &msg); err != nil {
			return err
		}
		return fmt.Errorf("deliver link submission: %w", postErr)
	}
	return d.recordLink(ctx, submissionID, models.WebhookStatusSent, nil)
}

func (d *WebhookDispatcher) recordLink(ctx context.Context, id string, status models.WebhookStatus, lastError *string) error {
	d.deliveries.Add(ctx, 1, metric.WithAttributes(
		attribute.String("webhook", "link_submission"),
		attribute.String("outcome", string(status)),
	))
	if err := d.store.SetLinkWebhookResult(ctx, id, status, lastError); err != nil {
		return fmt.Errorf("deliver link submission: record outcome: %w", err)
	}
	return nil
}

func (d *WebhookDispatcher) post(ctx context.Context, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
