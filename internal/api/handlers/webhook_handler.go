package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/fluxhive/fluxhive/internal/models"
	"github.com/fluxhive/fluxhive/internal/monitoring/metrics"
	"github.com/fluxhive/fluxhive/internal/services"
	"github.com/fluxhive/fluxhive/internal/tasksync"
	"github.com/fluxhive/fluxhive/pkg/logger"
)

// WebhookHandler receives workflow provider completion callbacks. The
// provider retries on non-2xx responses, so every reachable outcome answers
// 200: a malformed or unresolvable notification is acknowledged and dropped,
// and the periodic sweep covers anything that was lost here.
type WebhookHandler struct {
	repo     services.TaskRepository
	provider tasksync.Provider
	hook     tasksync.ResultHook
}

func NewWebhookHandler(repo services.TaskRepository, provider tasksync.Provider, hook tasksync.ResultHook) *WebhookHandler {
	return &WebhookHandler{repo: repo, provider: provider, hook: hook}
}

// webhookPayload tolerates the provider's two field spellings.
type webhookPayload struct {
	TaskID       string `json:"taskId"`
	ID           string `json:"id"`
	Status       string `json:"status"`
	TaskStatus   string `json:"taskStatus"`
	Error        string `json:"error"`
	ErrorMessage string `json:"errorMessage"`
}

func (p webhookPayload) taskID() string {
	if p.TaskID != "" {
		return p.TaskID
	}
	return p.ID
}

func (p webhookPayload) status() string {
	if p.Status != "" {
		return p.Status
	}
	return p.TaskStatus
}

func (p webhookPayload) errorMsg() string {
	if p.Error != "" {
		return p.Error
	}
	return p.ErrorMessage
}

// HandleWorkflowWebhook handles POST /api/webhooks/workflow.
func (h *WebhookHandler) HandleWorkflowWebhook(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("webhook")

	var payload webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		log.Warn().Err(err).Msg("Undecodable webhook payload")
		metrics.WebhookDeliveries.WithLabelValues("malformed").Inc()
		respondJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	externalID := payload.taskID()
	if externalID == "" {
		log.Warn().Msg("Webhook payload carries no task id")
		metrics.WebhookDeliveries.WithLabelValues("malformed").Inc()
		respondJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	task, err := h.repo.FindByExternalID(r.Context(), models.ModelClothingTryon, externalID)
	if err != nil {
		log.Warn().Err(err).Str("external_id", externalID).Msg("Webhook for unknown task")
		metrics.WebhookDeliveries.WithLabelValues("unmatched").Inc()
		respondJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	if task.Status.IsTerminal() {
		log.Debug().
			Int64("task_id", task.ID).
			Str("status", task.Status.Display()).
			Msg("Webhook for already terminal task, skipping")
		metrics.WebhookDeliveries.WithLabelValues("ignored").Inc()
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	outcome, err := h.apply(r, task, payload)
	if err != nil {
		log.Error().Err(err).Int64("task_id", task.ID).Msg("Failed to apply webhook")
		metrics.WebhookDeliveries.WithLabelValues("failed").Inc()
		respondJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	metrics.WebhookDeliveries.WithLabelValues(outcome).Inc()
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// apply routes the mapped status to the matching repository write. The
// returned label distinguishes deliveries that persisted something from ones
// acknowledged without a write.
func (h *WebhookHandler) apply(r *http.Request, task *models.Task, payload webhookPayload) (string, error) {
	log := logger.WithComponent("webhook")
	ctx := r.Context()

	mapped := tasksync.MapRawStatus(payload.status())
	switch mapped {
	case tasksync.StatusSucceeded:
		return h.applySuccess(r, task)

	case tasksync.StatusFailed, tasksync.StatusCanceled:
		status := models.TaskStatusFailed
		if mapped == tasksync.StatusCanceled {
			status = models.TaskStatusCanceled
		}
		errMsg := payload.errorMsg()
		if errMsg == "" {
			errMsg = "task " + status.Display()
		}
		log.Info().
			Int64("task_id", task.ID).
			Str("status", status.Display()).
			Str("error", errMsg).
			Msg("Webhook reported failure")
		return "applied", h.repo.Update(ctx, task.ID, tasksync.TaskUpdate{Status: &status, ErrorMsg: &errMsg})

	case tasksync.StatusProcessing:
		return "applied", h.repo.Update(ctx, task.ID, tasksync.WithStatus(models.TaskStatusProcessing))

	default:
		log.Warn().
			Int64("task_id", task.ID).
			Str("raw_status", payload.status()).
			Msg("Webhook carried unrecognized status, leaving task untouched")
		return "ignored", nil
	}
}

// applySuccess fetches and relocates the result. A relocation failure still
// records the success; the completion signal must not be lost to a storage
// hiccup.
func (h *WebhookHandler) applySuccess(r *http.Request, task *models.Task) (string, error) {
	log := logger.WithComponent("webhook")
	ctx := r.Context()
	status := models.TaskStatusSucceeded

	result, err := h.provider.GetResult(ctx, task.ExternalTaskID)
	if err != nil {
		return "", fmt.Errorf("get result: %w", err)
	}
	if result.State == tasksync.ResultPending {
		// Success signal arrived before the artifact; the next poll or sweep
		// picks it up. Nothing is written.
		log.Debug().Int64("task_id", task.ID).Msg("Result not ready yet, deferring to sync")
		return "deferred", nil
	}

	var outputURL string
	var hookErr error
	if result.State == tasksync.ResultUnavailable {
		hookErr = fmt.Errorf("provider has no result for task %s", task.ExternalTaskID)
	} else {
		outputURL, hookErr = h.hook(ctx, result, task)
	}

	if hookErr != nil {
		errMsg := fmt.Sprintf("result relocation failed: %v", hookErr)
		log.Warn().Int64("task_id", task.ID).Err(hookErr).Msg("Webhook success without usable result")
		return "applied", h.repo.Update(ctx, task.ID, tasksync.TaskUpdate{Status: &status, ErrorMsg: &errMsg})
	}

	log.Info().
		Int64("task_id", task.ID).
		Str("output_url", outputURL).
		Msg("Webhook completed task")
	return "applied", h.repo.Update(ctx, task.ID, tasksync.TaskUpdate{Status: &status, OutputURL: &outputURL})
}
