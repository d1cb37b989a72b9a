package tasksync_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fluxhive/fluxhive/internal/tasksync"
)

func TestMapRawStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want tasksync.Status
	}{
		{"RUNNING", tasksync.StatusProcessing},
		{"running", tasksync.StatusProcessing},
		{"Queued", tasksync.StatusProcessing},
		{"QUEUE", tasksync.StatusProcessing},
		{"PENDING", tasksync.StatusProcessing},
		{"processing", tasksync.StatusProcessing},
		{"STARTED", tasksync.StatusProcessing},
		{"Queued_Running", tasksync.StatusProcessing},
		{"SUCCESS", tasksync.StatusSucceeded},
		{"succeeded", tasksync.StatusSucceeded},
		{"COMPLETED", tasksync.StatusSucceeded},
		{"complete", tasksync.StatusSucceeded},
		{"FAILED", tasksync.StatusFailed},
		{"failure", tasksync.StatusFailed},
		{"CANCELED", tasksync.StatusCanceled},
		{"cancelled", tasksync.StatusCanceled},
		// CANCEL wins over other fragments in combined strings.
		{"CANCEL_FAILED", tasksync.StatusCanceled},
		{"", tasksync.StatusUnknown},
		{"   ", tasksync.StatusUnknown},
		{"WEIRD_STATE", tasksync.StatusUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, tasksync.MapRawStatus(tt.raw))
		})
	}
}

func TestResultFirstOutput(t *testing.T) {
	assert.Empty(t, tasksync.Result{}.FirstOutput())
	assert.Equal(t, "a", tasksync.Result{OutputURLs: []string{"a", "b"}}.FirstOutput())
}

func TestUnavailableWrapsSentinel(t *testing.T) {
	err := tasksync.Unavailable("workflow", assert.AnError)
	assert.ErrorIs(t, err, tasksync.ErrProviderUnavailable)
	assert.Contains(t, err.Error(), "workflow")
}
