package tasksync

import (
	"context"
	"fmt"

	"github.com/fluxhive/fluxhive/internal/models"
	"github.com/fluxhive/fluxhive/internal/monitoring/metrics"
	"github.com/fluxhive/fluxhive/pkg/logger"
)

// ResultHook post-processes a fetched result, typically by relocating the
// provider-hosted artifact into the application's own storage. It returns the
// output reference to persist. A hook error is treated as data: the task is
// still marked Succeeded, with the error recorded and no output URL, because
// the provider's completion signal is authoritative.
type ResultHook func(ctx context.Context, result Result, task *models.Task) (string, error)

// Options controls how SyncOne handles a provider-reported success.
type Options struct {
	// FetchResultOnSuccess makes the engine call Provider.GetResult before
	// persisting a success. Required for providers whose success signal
	// precedes artifact readiness.
	FetchResultOnSuccess bool
	// OnResultFetched is invoked with the fetched result. When nil, the first
	// output URL of the result is persisted as-is.
	OnResultFetched ResultHook
}

// Outcome reports what SyncOne decided for a single task.
type Outcome struct {
	Status    models.TaskStatus
	OutputURL string
	ErrorMsg  string
	// Changed is true when the local record was mutated.
	Changed bool
}

// BatchResult aggregates a SyncBatch run. Updated counts tasks that changed
// local state (succeeded + failed); StillProcessing counts tasks left
// untouched because the provider has not reached a terminal state or reported
// success without a ready result.
type BatchResult struct {
	Total           int      `json:"total"`
	Updated         int      `json:"updated"`
	Succeeded       int      `json:"succeeded"`
	Failed          int      `json:"failed"`
	StillProcessing int      `json:"still_processing"`
	Errors          []string `json:"errors"`
}

// SyncOne reconciles one local task record against its provider and persists
// the resulting transition through the repository.
//
// Terminal records and records without an external id are never re-queried:
// the former have converged, the latter are queued locally and have nothing
// to reconcile. Provider call failures leave the record unchanged and are
// returned to the caller; they are never translated into a Failed status.
func SyncOne(ctx context.Context, task *models.Task, provider Provider, repo Repository, opts Options) (Outcome, error) {
	log := logger.WithComponent("task_sync")

	if task.Status.IsTerminal() {
		return Outcome{
			Status:    task.Status,
			OutputURL: deref(task.OutputURL),
			ErrorMsg:  deref(task.ErrorMsg),
		}, nil
	}

	if task.ExternalTaskID == "" {
		return Outcome{Status: models.TaskStatusProcessing}, nil
	}

	info, err := provider.GetStatus(ctx, task.ExternalTaskID)
	if err != nil {
		metrics.RecordSyncOutcome(provider.Name(), "provider_error")
		return Outcome{Status: task.Status}, fmt.Errorf("get status for task %d: %w", task.ID, err)
	}

	switch info.Status {
	case StatusProcessing, StatusUnknown:
		metrics.RecordSyncOutcome(provider.Name(), "still_processing")
		return Outcome{Status: models.TaskStatusProcessing}, nil

	case StatusFailed, StatusCanceled:
		status := models.TaskStatusFailed
		if info.Status == StatusCanceled {
			status = models.TaskStatusCanceled
		}
		errMsg := info.ErrorMsg
		if errMsg == "" {
			errMsg = "task " + status.Display()
		}
		if err := repo.Update(ctx, task.ID, TaskUpdate{Status: &status, ErrorMsg: &errMsg}); err != nil {
			return Outcome{Status: task.Status}, fmt.Errorf("persist failure for task %d: %w", task.ID, err)
		}
		log.Info().
			Int64("task_id", task.ID).
			Str("external_id", task.ExternalTaskID).
			Str("status", status.Display()).
			Str("error", errMsg).
			Msg("Task reached failed state")
		metrics.RecordSyncOutcome(provider.Name(), "failed")
		return Outcome{Status: status, ErrorMsg: errMsg, Changed: true}, nil

	case StatusSucceeded:
		if !opts.FetchResultOnSuccess {
			if err := repo.Update(ctx, task.ID, WithStatus(models.TaskStatusSucceeded)); err != nil {
				return Outcome{Status: task.Status}, fmt.Errorf("persist success for task %d: %w", task.ID, err)
			}
			log.Info().
				Int64("task_id", task.ID).
				Str("external_id", task.ExternalTaskID).
				Msg("Task succeeded")
			metrics.RecordSyncOutcome(provider.Name(), "succeeded")
			return Outcome{Status: models.TaskStatusSucceeded, OutputURL: info.Output, Changed: true}, nil
		}
		return syncSuccessWithResult(ctx, task, provider, repo, opts)

	default:
		metrics.RecordSyncOutcome(provider.Name(), "still_processing")
		return Outcome{Status: models.TaskStatusProcessing}, nil
	}
}

// syncSuccessWithResult handles a provider-reported success when the caller
// opted into result fetching. A pending result keeps the task processing; a
// hook failure or missing output still persists the success, recording the
// relocation failure instead of losing the completion signal.
func syncSuccessWithResult(ctx context.Context, task *models.Task, provider Provider, repo Repository, opts Options) (Outcome, error) {
	log := logger.WithComponent("task_sync")

	result, err := provider.GetResult(ctx, task.ExternalTaskID)
	if err != nil {
		metrics.RecordSyncOutcome(provider.Name(), "provider_error")
		return Outcome{Status: task.Status}, fmt.Errorf("get result for task %d: %w", task.ID, err)
	}

	if result.State == ResultPending {
		log.Debug().
			Int64("task_id", task.ID).
			Str("external_id", task.ExternalTaskID).
			Msg("Provider reported success but result is not ready yet")
		metrics.RecordSyncOutcome(provider.Name(), "still_processing")
		return Outcome{Status: models.TaskStatusProcessing}, nil
	}

	var outputURL string
	var hookErr error
	switch {
	case result.State == ResultUnavailable:
		hookErr = fmt.Errorf("provider has no result for task %s", task.ExternalTaskID)
	case opts.OnResultFetched != nil:
		outputURL, hookErr = opts.OnResultFetched(ctx, result, task)
		if hookErr == nil && outputURL == "" {
			hookErr = fmt.Errorf("result hook returned no output for task %s", task.ExternalTaskID)
		}
	default:
		outputURL = result.FirstOutput()
		if outputURL == "" {
			hookErr = fmt.Errorf("provider returned empty result for task %s", task.ExternalTaskID)
		}
	}

	status := models.TaskStatusSucceeded
	if hookErr != nil {
		errMsg := fmt.Sprintf("result relocation failed: %v", hookErr)
		if err := repo.Update(ctx, task.ID, TaskUpdate{Status: &status, ErrorMsg: &errMsg}); err != nil {
			return Outcome{Status: task.Status}, fmt.Errorf("persist success for task %d: %w", task.ID, err)
		}
		log.Warn().
			Int64("task_id", task.ID).
			Str("external_id", task.ExternalTaskID).
			Err(hookErr).
			Msg("Task succeeded but result relocation failed")
		metrics.RecordSyncOutcome(provider.Name(), "succeeded_without_result")
		return Outcome{Status: status, ErrorMsg: errMsg, Changed: true}, nil
	}

	if err := repo.Update(ctx, task.ID, TaskUpdate{Status: &status, OutputURL: &outputURL}); err != nil {
		return Outcome{Status: task.Status}, fmt.Errorf("persist success for task %d: %w", task.ID, err)
	}
	log.Info().
		Int64("task_id", task.ID).
		Str("external_id", task.ExternalTaskID).
		Str("output_url", outputURL).
		Msg("Task succeeded")
	metrics.RecordSyncOutcome(provider.Name(), "succeeded")
	return Outcome{Status: status, OutputURL: outputURL, Changed: true}, nil
}

// SyncBatch applies SyncOne across a set of tasks with per-task error
// isolation: one task's provider or repository failure is recorded and does
// not abort the rest. Tasks are processed sequentially.
func SyncBatch(ctx context.Context, tasks []*models.Task, provider Provider, repo Repository, opts Options) BatchResult {
	result := BatchResult{Total: len(tasks), Errors: []string{}}

	for _, task := range tasks {
		outcome, err := SyncOne(ctx, task, provider, repo, opts)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("task %d (%s): %v", task.ID, task.ExternalTaskID, err))
			continue
		}

		if !outcome.Changed {
			if !task.Status.IsTerminal() {
				result.StillProcessing++
			}
			continue
		}

		result.Updated++
		switch outcome.Status {
		case models.TaskStatusSucceeded:
			result.Succeeded++
		default:
			result.Failed++
		}
	}

	return result
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
