package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/fluxhive/fluxhive/internal/models"
	"github.com/fluxhive/fluxhive/pkg/logger"
)

// taskView is the wire shape of a task. Statuses are stored capitalized but
// presented lower-case.
type taskView struct {
	ID          int64      `json:"id"`
	Model       string     `json:"model"`
	Status      string     `json:"status"`
	InputURL    string     `json:"input_url,omitempty"`
	OutputURL   string     `json:"output_url,omitempty"`
	ErrorMsg    string     `json:"error_msg,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func viewOf(task *models.Task) taskView {
	v := taskView{
		ID:          task.ID,
		Model:       task.Model,
		Status:      task.Status.Display(),
		CreatedAt:   task.CreatedAt,
		CompletedAt: task.CompletedAt,
	}
	if task.InputURL != nil {
		v.InputURL = *task.InputURL
	}
	if task.OutputURL != nil {
		v.OutputURL = *task.OutputURL
	}
	if task.ErrorMsg != nil {
		v.ErrorMsg = *task.ErrorMsg
	}
	return v
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		lg := logger.Get()
		lg.Error().Err(err).Msg("Failed to encode response")
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
