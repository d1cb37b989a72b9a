package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/fluxhive/fluxhive/internal/api/middleware"
	"github.com/fluxhive/fluxhive/internal/database/repositories"
	"github.com/fluxhive/fluxhive/internal/models"
	"github.com/fluxhive/fluxhive/internal/services"
	"github.com/fluxhive/fluxhive/pkg/logger"
)

// TaskHandler serves the generation and task-status endpoints.
type TaskHandler struct {
	service  *services.GenerationService
	repo     services.TaskRepository
	upgrader websocket.Upgrader
}

func NewTaskHandler(service *services.GenerationService, repo services.TaskRepository) *TaskHandler {
	return &TaskHandler{
		service: service,
		repo:    repo,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Generate handles POST /api/generate.
func (h *TaskHandler) Generate(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	var req services.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	task, err := h.service.Generate(r.Context(), userID, req)
	if err != nil {
		status, message := submissionErrorStatus(err)
		respondError(w, status, message)
		return
	}

	respondJSON(w, http.StatusCreated, viewOf(task))
}

// GenerateBatch handles POST /api/generate/batch. Items are submitted
// sequentially with queue pacing between them; per-item failures are reported
// in place rather than failing the batch.
func (h *TaskHandler) GenerateBatch(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	var req struct {
		Items []services.GenerateRequest `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.Items) == 0 {
		respondError(w, http.StatusBadRequest, "Batch is empty")
		return
	}

	results := h.service.GenerateTryonBatch(r.Context(), userID, req.Items)

	views := make([]map[string]interface{}, 0, len(results))
	for _, item := range results {
		entry := map[string]interface{}{}
		if item.Task != nil {
			entry["task"] = viewOf(item.Task)
		}
		if item.Error != "" {
			entry["error"] = item.Error
		}
		views = append(views, entry)
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"results": views})
}

// PollStatus handles POST /api/tasks/status: synchronize one task against its
// provider and return the (possibly updated) record.
func (h *TaskHandler) PollStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	var req struct {
		TaskID int64 `json:"task_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TaskID == 0 {
		respondError(w, http.StatusBadRequest, "task_id is required")
		return
	}

	task, err := h.service.PollTask(r.Context(), userID, req.TaskID)
	if err != nil {
		if errors.Is(err, repositories.ErrTaskNotFound) {
			respondError(w, http.StatusNotFound, "Task not found")
			return
		}
		lg := logger.WithComponent("api")
		lg.Error().Err(err).Int64("task_id", req.TaskID).Msg("Poll failed")
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondJSON(w, http.StatusOK, viewOf(task))
}

// ListTasks handles GET /api/tasks: one page of the caller's task history,
// newest first, optionally filtered by model.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "pageSize", 10)
	model := r.URL.Query().Get("model")
	if model != "" && !models.KnownModel(model) {
		respondError(w, http.StatusBadRequest, "Unknown model")
		return
	}

	tasks, total, err := h.repo.ListForUser(r.Context(), userID, model, page, pageSize)
	if err != nil {
		lg := logger.WithComponent("api")
		lg.Error().Err(err).Str("user_id", userID).Msg("List tasks failed")
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	views := make([]taskView, 0, len(tasks))
	for _, task := range tasks {
		views = append(views, viewOf(task))
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"total":     total,
		"page":      page,
		"page_size": pageSize,
		"data":      views,
	})
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v < 1 {
		return def
	}
	return v
}

// GetTask handles GET /api/tasks/{id}: return the stored record without
// touching the provider.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid task id")
		return
	}

	task, err := h.repo.GetForUser(r.Context(), id, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrTaskNotFound) {
			respondError(w, http.StatusNotFound, "Task not found")
			return
		}
		lg := logger.WithComponent("api")
		lg.Error().Err(err).Int64("task_id", id).Msg("Get task failed")
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondJSON(w, http.StatusOK, viewOf(task))
}

// StreamTask handles GET /api/tasks/{id}/ws: push the task state over a
// websocket once per second until it reaches a terminal status or the client
// goes away.
func (h *TaskHandler) StreamTask(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("api")

	userID, ok := middleware.UserID(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid task id")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		task, err := h.service.PollTask(r.Context(), userID, id)
		if err != nil {
			conn.WriteJSON(map[string]string{"error": "Task not found"})
			return
		}
		if err := conn.WriteJSON(viewOf(task)); err != nil {
			return
		}
		if task.Status.IsTerminal() {
			return
		}

		select {
		case <-ticker.C:
		case <-r.Context().Done():
			return
		}
	}
}

func submissionErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrInvalidRequest), errors.Is(err, services.ErrUnknownModel):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, services.ErrInsufficientCredit):
		return http.StatusPaymentRequired, "Insufficient credit"
	case errors.Is(err, services.ErrFreeTierExhausted):
		return http.StatusForbidden, "Free tier monthly limit reached"
	default:
		lg := logger.WithComponent("api")
		lg.Error().Err(err).Msg("Generation failed")
		return http.StatusBadGateway, "Generation submission failed"
	}
}
