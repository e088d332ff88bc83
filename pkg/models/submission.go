package models

import "time"

// LinkSubmission is a submitted external link waiting to be picked up by a
// downstream workflow. It reuses the same webhook tracking triple as
// RunImageApproval.
type LinkSubmission struct {
	ID               string        `json:"id"`
	URL              string        `json:"url"`
	SourceURL        *string       `json:"source_url,omitempty"`
	ClientIP         *string       `json:"client_ip,omitempty"`
	UserAgent        *string       `json:"user_agent,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	WebhookStatus    WebhookStatus `json:"webhook_status"`
	WebhookAttempts  int           `json:"webhook_attempts"`
	WebhookLastError *string       `json:"webhook_last_error,omitempty"`
}
