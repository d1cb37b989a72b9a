package models

import (
	"strings"
	"time"
)

type TaskStatus string

// Task statuses are stored capitalized; Display returns the lower-case form
// callers see.
const (
	TaskStatusProcessing TaskStatus = "Processing"
	TaskStatusSucceeded  TaskStatus = "Succeeded"
	TaskStatusFailed     TaskStatus = "Failed"
	TaskStatusCanceled   TaskStatus = "Canceled"
)

func (s TaskStatus) Display() string {
	return strings.ToLower(string(s))
}

// IsTerminal reports whether the status admits no further synchronization.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusSucceeded, TaskStatusFailed, TaskStatusCanceled:
		return true
	}
	return false
}

// NormalizeStatus maps the lower-case and alias forms used at the API surface
// onto the canonical capitalized enum. Unknown values fall back to Processing.
func NormalizeStatus(raw string) TaskStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "succeeded", "success":
		return TaskStatusSucceeded
	case "failed", "failure":
		return TaskStatusFailed
	case "canceled", "cancelled":
		return TaskStatusCanceled
	case "processing", "queued", "pending", "running":
		return TaskStatusProcessing
	default:
		return TaskStatusProcessing
	}
}

// Task is the local record tracking one generation request end-to-end.
// ExternalTaskID stays empty until the provider accepts the job; it is the
// join key used to resolve inbound webhook notifications.
type Task struct {
	ID             int64      `json:"id" db:"id"`
	UserID         *string    `json:"user_id,omitempty" db:"user_id"`
	Model          string     `json:"model" db:"model"`
	Status         TaskStatus `json:"status" db:"status"`
	InputURL       *string    `json:"input_url,omitempty" db:"input_url"`
	OutputURL      *string    `json:"output_url,omitempty" db:"output_url"`
	ExternalTaskID string     `json:"external_task_id" db:"external_task_id"`
	ErrorMsg       *string    `json:"error_msg,omitempty" db:"error_msg"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}
