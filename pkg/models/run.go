package models

import (
	"encoding/json"
	"time"
)

// Run represents one generation job. A run owns its images; deleting a run
// deletes them.
type Run struct {
	ID            string          `json:"id"`
	WorkflowID    *string         `json:"workflow_id,omitempty"`
	Prompt        string          `json:"prompt"`
	ParameterBlob json.RawMessage `json:"parameter_blob,omitempty"`
	Status        RunStatus       `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Images        []*RunImage     `json:"images"`
}

// RunImage is a single produced artifact belonging to a run. The ordinal is
// assigned once in submission order and never renumbered, so ordinals may be
// non-contiguous after rejections.
type RunImage struct {
	ID        string         `json:"id"`
	RunID     string         `json:"run_id"`
	Ordinal   int            `json:"ordinal"`
	AssetURI  string         `json:"asset_uri"`
	ThumbURI  *string        `json:"thumb_uri,omitempty"`
	Status    RunImageStatus `json:"status"`
	Notes     *string        `json:"notes,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// RunImageApproval is an immutable audit record of one approval decision
// together with the delivery state of its webhook.
type RunImageApproval struct {
	ID               string        `json:"id"`
	RunImageID       string        `json:"run_image_id"`
	ApprovedBy       string        `json:"approved_by"`
	Notes            *string       `json:"notes,omitempty"`
	ApprovedAt       time.Time     `json:"approved_at"`
	WebhookStatus    WebhookStatus `json:"webhook_status"`
	WebhookAttempts  int           `json:"webhook_attempts"`
	WebhookLastError *string       `json:"webhook_last_error,omitempty"`
}
