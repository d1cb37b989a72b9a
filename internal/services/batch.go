package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fluxhive/fluxhive/internal/models"
	"github.com/fluxhive/fluxhive/pkg/logger"
)

// BatchItemResult reports one submission of a batch.
type BatchItemResult struct {
	Task  *models.Task `json:"task,omitempty"`
	Error string       `json:"error,omitempty"`
}

// GenerateTryonBatch submits try-on requests sequentially. After each
// accepted job the dispatcher waits for the provider to report it queued
// before creating the next one; submitting faster trips the provider's
// queue-full rejection. Failed submissions are retried a bounded number of
// times, and one item's failure does not stop the rest.
func (s *GenerationService) GenerateTryonBatch(ctx context.Context, userID string, reqs []GenerateRequest) []BatchItemResult {
	log := logger.WithComponent("generation")

	results := make([]BatchItemResult, 0, len(reqs))
	for i, req := range reqs {
		task, err := s.generateWithRetry(ctx, userID, req)
		if err != nil {
			log.Warn().Err(err).Int("item", i).Msg("Batch item submission failed")
			results = append(results, BatchItemResult{Error: err.Error()})
			continue
		}
		results = append(results, BatchItemResult{Task: task})

		if i < len(reqs)-1 {
			if err := s.workflow.WaitUntilQueued(ctx, task.ExternalTaskID); err != nil {
				log.Warn().Err(err).Int64("task_id", task.ID).Msg("Job not confirmed queued, continuing anyway")
			}
		}
	}
	return results
}

func (s *GenerationService) generateWithRetry(ctx context.Context, userID string, req GenerateRequest) (*models.Task, error) {
	maxRetries := s.workflow.SubmitMaxRetries()
	delay := s.workflow.SubmitRetryDelay()

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		task, err := s.Generate(ctx, userID, req)
		if err == nil {
			return task, nil
		}
		lastErr = err

		// Validation and credit problems will not heal with a retry.
		if isTerminalSubmissionError(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("gave up after %d retries: %w", maxRetries, lastErr)
}

func isTerminalSubmissionError(err error) bool {
	for _, terminal := range []error{ErrInvalidRequest, ErrUnknownModel, ErrInsufficientCredit, ErrFreeTierExhausted} {
		if errors.Is(err, terminal) {
			return true
		}
	}
	return false
}
