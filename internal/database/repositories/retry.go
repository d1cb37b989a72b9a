package repositories

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/lib/pq"

	"github.com/fluxhive/fluxhive/internal/models"
	"github.com/fluxhive/fluxhive/internal/tasksync"
	"github.com/fluxhive/fluxhive/pkg/logger"
)

// Postgres error codes treated as transient.
var retryablePgCodes = map[string]bool{
	"08000": true, // connection_exception
	"08003": true, // connection_does_not_exist
	"08006": true, // connection_failure
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"42P05": true, // duplicate_prepared_statement (pooled connections)
	"57P01": true, // admin_shutdown
}

var retryableFragments = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"i/o timeout",
	"prepared statement",
}

// IsRetryable reports whether the error looks like a transient driver or
// connection fault rather than a terminal failure.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return retryablePgCodes[string(pqErr.Code)]
	}
	msg := err.Error()
	for _, fragment := range retryableFragments {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}

// RetryingTaskRepository decorates a TaskRepository with retry-with-backoff
// on transient persistence errors. The retry policy stays orthogonal to both
// the repository and the sync engine.
type RetryingTaskRepository struct {
	inner      *TaskRepository
	maxRetries uint64
	interval   time.Duration
}

func NewRetryingTaskRepository(inner *TaskRepository) *RetryingTaskRepository {
	return &RetryingTaskRepository{
		inner:      inner,
		maxRetries: 3,
		interval:   time.Second,
	}
}

func (r *RetryingTaskRepository) retry(ctx context.Context, op func() error) error {
	log := logger.WithComponent("task_repo_retry")

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.interval
	b := backoff.WithContext(backoff.WithMaxRetries(policy, r.maxRetries), ctx)

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := op()
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		log.Warn().Err(err).Int("attempt", attempt).Msg("Retrying transient database error")
		return err
	}, b)
}

func (r *RetryingTaskRepository) Create(ctx context.Context, task *models.Task) error {
	return r.retry(ctx, func() error { return r.inner.Create(ctx, task) })
}

func (r *RetryingTaskRepository) Get(ctx context.Context, id int64) (*models.Task, error) {
	var task *models.Task
	err := r.retry(ctx, func() error {
		var opErr error
		task, opErr = r.inner.Get(ctx, id)
		return opErr
	})
	return task, err
}

func (r *RetryingTaskRepository) GetForUser(ctx context.Context, id int64, userID string) (*models.Task, error) {
	var task *models.Task
	err := r.retry(ctx, func() error {
		var opErr error
		task, opErr = r.inner.GetForUser(ctx, id, userID)
		return opErr
	})
	return task, err
}

func (r *RetryingTaskRepository) ListForUser(ctx context.Context, userID, model string, page, pageSize int) ([]*models.Task, int, error) {
	var tasks []*models.Task
	var total int
	err := r.retry(ctx, func() error {
		var opErr error
		tasks, total, opErr = r.inner.ListForUser(ctx, userID, model, page, pageSize)
		return opErr
	})
	return tasks, total, err
}

func (r *RetryingTaskRepository) Update(ctx context.Context, id int64, update tasksync.TaskUpdate) error {
	return r.retry(ctx, func() error { return r.inner.Update(ctx, id, update) })
}

func (r *RetryingTaskRepository) FindByExternalID(ctx context.Context, model, externalID string) (*models.Task, error) {
	var task *models.Task
	err := r.retry(ctx, func() error {
		var opErr error
		task, opErr = r.inner.FindByExternalID(ctx, model, externalID)
		return opErr
	})
	return task, err
}

func (r *RetryingTaskRepository) ListProcessing(ctx context.Context, since time.Time, limit int) ([]*models.Task, error) {
	var tasks []*models.Task
	err := r.retry(ctx, func() error {
		var opErr error
		tasks, opErr = r.inner.ListProcessing(ctx, since, limit)
		return opErr
	})
	return tasks, err
}

func (r *RetryingTaskRepository) CountForUserModelSince(ctx context.Context, userID, model string, since time.Time) (int, error) {
	var count int
	err := r.retry(ctx, func() error {
		var opErr error
		count, opErr = r.inner.CountForUserModelSince(ctx, userID, model, since)
		return opErr
	})
	return count, err
}

func (r *RetryingTaskRepository) Delete(ctx context.Context, id int64) error {
	return r.retry(ctx, func() error { return r.inner.Delete(ctx, id) })
}
