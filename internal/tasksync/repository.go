package tasksync

import (
	"context"

	"github.com/fluxhive/fluxhive/internal/models"
)

// TaskUpdate is a partial merge update: nil fields are left untouched by the
// repository. The repository normalizes status aliases to the canonical
// capitalized enum and stamps a completion time when the status transitions
// to Succeeded or Failed.
type TaskUpdate struct {
	Status         *models.TaskStatus
	OutputURL      *string
	ErrorMsg       *string
	ExternalTaskID *string
}

// WithStatus returns an update setting only the status.
func WithStatus(status models.TaskStatus) TaskUpdate {
	return TaskUpdate{Status: &status}
}

// Repository is the persistence boundary the engine writes through. The full
// repository contract (create, find by external id) lives with the concrete
// implementation; the engine only ever updates.
type Repository interface {
	Update(ctx context.Context, id int64, update TaskUpdate) error
}
