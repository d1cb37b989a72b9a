package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/fluxhive/fluxhive/internal/models"
	"github.com/fluxhive/fluxhive/internal/tasksync"
)

var ErrTaskNotFound = errors.New("task not found")

type TaskRepository struct {
	db *sqlx.DB
}

func NewTaskRepository(db *sqlx.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// Create inserts a new task record. Status defaults to Processing and the
// external task id starts empty; the provider assigns it later.
func (r *TaskRepository) Create(ctx context.Context, task *models.Task) error {
	if task.Status == "" {
		task.Status = models.TaskStatusProcessing
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	task.UpdatedAt = time.Now()

	query := `
		INSERT INTO tasks (
			user_id, model, status, input_url, output_url,
			external_task_id, error_msg, created_at, updated_at
		) VALUES (
			:user_id, :model, :status, :input_url, :output_url,
			:external_task_id, :error_msg, :created_at, :updated_at
		) RETURNING id
	`

	rows, err := r.db.NamedQueryContext(ctx, query, task)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	defer rows.Close()

	if rows.Next() {
		if err := rows.Scan(&task.ID); err != nil {
			return fmt.Errorf("failed to read created task id: %w", err)
		}
	}
	return rows.Err()
}

// Get returns the task with the given id.
func (r *TaskRepository) Get(ctx context.Context, id int64) (*models.Task, error) {
	var task models.Task
	err := r.db.GetContext(ctx, &task, `SELECT * FROM tasks WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return &task, nil
}

// GetForUser returns the task only when it belongs to the given user.
func (r *TaskRepository) GetForUser(ctx context.Context, id int64, userID string) (*models.Task, error) {
	var task models.Task
	err := r.db.GetContext(ctx, &task, `SELECT * FROM tasks WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return &task, nil
}

// ListForUser returns one page of the user's tasks, newest first, optionally
// filtered by model, along with the total row count for the same filter.
func (r *TaskRepository) ListForUser(ctx context.Context, userID, model string, page, pageSize int) ([]*models.Task, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}

	where := `WHERE user_id = $1`
	args := []interface{}{userID}
	if model != "" {
		where += ` AND model = $2`
		args = append(args, model)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM tasks `+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count tasks: %w", err)
	}

	query := fmt.Sprintf(`SELECT * FROM tasks %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		where, len(args)+1, len(args)+2)
	args = append(args, pageSize, (page-1)*pageSize)

	var tasks []*models.Task
	if err := r.db.SelectContext(ctx, &tasks, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, total, nil
}

// Update applies a partial merge update: only non-nil fields are written.
// Status aliases are normalized to the canonical capitalized enum, and a
// completion timestamp is stamped when the status transitions to Succeeded
// or Failed.
func (r *TaskRepository) Update(ctx context.Context, id int64, update tasksync.TaskUpdate) error {
	sets := []string{"updated_at = now()"}
	args := map[string]interface{}{"id": id}

	if update.Status != nil {
		status := models.NormalizeStatus(string(*update.Status))
		sets = append(sets, "status = :status")
		args["status"] = status
		if status == models.TaskStatusSucceeded || status == models.TaskStatusFailed {
			sets = append(sets, "completed_at = now()")
		}
	}
	if update.OutputURL != nil {
		sets = append(sets, "output_url = :output_url")
		args["output_url"] = *update.OutputURL
	}
	if update.ErrorMsg != nil {
		sets = append(sets, "error_msg = :error_msg")
		args["error_msg"] = *update.ErrorMsg
	}
	if update.ExternalTaskID != nil {
		sets = append(sets, "external_task_id = :external_task_id")
		args["external_task_id"] = *update.ExternalTaskID
	}

	query := fmt.Sprintf(`UPDATE tasks SET %s WHERE id = :id`, strings.Join(sets, ", "))

	result, err := r.db.NamedExecContext(ctx, query, args)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rows == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// FindByExternalID resolves a provider notification back to a local record.
// It filters by both the provider job id and the model tag, since external
// ids are not guaranteed globally unique across providers.
func (r *TaskRepository) FindByExternalID(ctx context.Context, model, externalID string) (*models.Task, error) {
	var task models.Task
	err := r.db.GetContext(ctx, &task,
		`SELECT * FROM tasks WHERE model = $1 AND external_task_id = $2 LIMIT 1`,
		model, externalID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to find task by external id: %w", err)
	}
	return &task, nil
}

// ListProcessing returns Processing tasks that already have an external id
// and were created within the recent window, oldest first.
func (r *TaskRepository) ListProcessing(ctx context.Context, since time.Time, limit int) ([]*models.Task, error) {
	var tasks []*models.Task
	err := r.db.SelectContext(ctx, &tasks, `
		SELECT * FROM tasks
		WHERE status = $1 AND external_task_id <> '' AND created_at >= $2
		ORDER BY created_at ASC
		LIMIT $3`,
		models.TaskStatusProcessing, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list processing tasks: %w", err)
	}
	return tasks, nil
}

// CountForUserModelSince counts a user's tasks for one model created after
// the given time. Used for the free-tier monthly cap.
func (r *TaskRepository) CountForUserModelSince(ctx context.Context, userID, model string, since time.Time) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM tasks WHERE user_id = $1 AND model = $2 AND created_at >= $3`,
		userID, model, since)
	if err != nil {
		return 0, fmt.Errorf("failed to count tasks: %w", err)
	}
	return count, nil
}

// Delete removes a task record. Only the submission path uses this, when the
// provider rejects a job that was just recorded.
func (r *TaskRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if rows == 0 {
		return ErrTaskNotFound
	}
	return nil
}
