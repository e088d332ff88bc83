// Package models defines the domain models for the image run service
package models

import "fmt"

// RunStatus represents the lifecycle state of a generation run.
type RunStatus string

const (
	RunStatusQueued     RunStatus = "queued"
	RunStatusGenerating RunStatus = "generating"
	RunStatusReady      RunStatus = "ready"
	RunStatusApproved   RunStatus = "approved"
	RunStatusError      RunStatus = "error"
	RunStatusPosted     RunStatus = "posted"
)

// ParseRunStatus validates a status string at the boundary. Unknown values
// are rejected rather than stored.
func ParseRunStatus(s string) (RunStatus, error) {
	switch RunStatus(s) {
	case RunStatusQueued, RunStatusGenerating, RunStatusReady,
		RunStatusApproved, RunStatusError, RunStatusPosted:
		return RunStatus(s), nil
	}
	return "", fmt.Errorf("unknown run status %q", s)
}

// RunImageStatus represents the review state of a single generated image.
type RunImageStatus string

const (
	RunImageStatusGenerated RunImageStatus = "generated"
	RunImageStatusApproved  RunImageStatus = "approved"
	RunImageStatusRejected  RunImageStatus = "rejected"
	RunImageStatusPosted    RunImageStatus = "posted"
)

// ParseRunImageStatus validates an image status string.
func ParseRunImageStatus(s string) (RunImageStatus, error) {
	switch RunImageStatus(s) {
	case RunImageStatusGenerated, RunImageStatusApproved,
		RunImageStatusRejected, RunImageStatusPosted:
		return RunImageStatus(s), nil
	}
	return "", fmt.Errorf("unknown run image status %q", s)
}

// WebhookStatus tracks the outcome of the most recent delivery attempt for a
// record that carries webhook state.
type WebhookStatus string

const (
	WebhookStatusPending WebhookStatus = "pending"
	WebhookStatusSent    WebhookStatus = "sent"
	WebhookStatusFailed  WebhookStatus = "failed"
)
