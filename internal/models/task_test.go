package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTaskStatusIsTerminal(t *testing.T) {
	tests := []struct {
		status   TaskStatus
		terminal bool
	}{
		{TaskStatusProcessing, false},
		{TaskStatusSucceeded, true},
		{TaskStatusFailed, true},
		{TaskStatusCanceled, true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.terminal, tt.status.IsTerminal(), "status %s", tt.status)
	}
}

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want TaskStatus
	}{
		{"succeeded", TaskStatusSucceeded},
		{"success", TaskStatusSucceeded},
		{"Succeeded", TaskStatusSucceeded},
		{"failed", TaskStatusFailed},
		{"failure", TaskStatusFailed},
		{"canceled", TaskStatusCanceled},
		{"cancelled", TaskStatusCanceled},
		{"processing", TaskStatusProcessing},
		{"queued", TaskStatusProcessing},
		{"pending", TaskStatusProcessing},
		{"running", TaskStatusProcessing},
		{"", TaskStatusProcessing},
		{"garbage", TaskStatusProcessing},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeStatus(tt.raw))
		})
	}
}

func TestDisplay(t *testing.T) {
	assert.Equal(t, "succeeded", TaskStatusSucceeded.Display())
	assert.Equal(t, "processing", TaskStatusProcessing.Display())
}

func TestUsesWorkflowProvider(t *testing.T) {
	assert.True(t, UsesWorkflowProvider(ModelClothingTryon))
	assert.False(t, UsesWorkflowProvider(ModelPro))
	assert.False(t, UsesWorkflowProvider(ModelSchnell))
}
