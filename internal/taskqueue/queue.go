package taskqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kosarica/feed-service/internal/database"
	"github.com/kosarica/feed-service/internal/types"
)

type TaskQueue struct {
	db database.Querier
}

func New(db database.Querier) *TaskQueue {
	return &TaskQueue{db: db}
}

type ScheduleTaskInput struct {
	TaskType    TaskType
	Payload     any
	Priority    int
	ScheduledAt *time.Time
	MaxRetries  int
}

// ScheduleTask inserts a pending task and returns its ID.
func (q *TaskQueue) ScheduleTask(ctx context.Context, input ScheduleTaskInput) (string, error) {
	payload, err := json.Marshal(input.Payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s payload: %w", input.TaskType, err)
	}

	maxRetries := 3
	if input.MaxRetries > 0 {
		maxRetries = input.MaxRetries
	}

	var id string
	if input.ScheduledAt != nil {
		err = q.db.QueryRow(ctx, `
			INSERT INTO task_queue (task_type, payload, priority, scheduled_for, max_retries)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id::text
		`, string(input.TaskType), payload, input.Priority, *input.ScheduledAt, maxRetries).Scan(&id)
	} else {
		err = q.db.QueryRow(ctx, `
			INSERT INTO task_queue (task_type, payload, priority, scheduled_for, max_retries)
			VALUES ($1, $2, $3, NOW(), $4)
			RETURNING id::text
		`, string(input.TaskType), payload, input.Priority, maxRetries).Scan(&id)
	}
	if err != nil {
		return "", fmt.Errorf("failed to schedule %s task: %w", input.TaskType, err)
	}
	return id, nil
}

// ScheduleContentGeneration enqueues a content_generation task for feed.
func (q *TaskQueue) ScheduleContentGeneration(ctx context.Context, feed *types.Feed, products int) error {
	importedAt := time.Now().UTC()
	if feed.LastImportedAt != nil {
		importedAt = *feed.LastImportedAt
	}
	_, err := q.ScheduleTask(ctx, ScheduleTaskInput{
		TaskType: TaskTypeContentGeneration,
		Payload: ContentGenerationPayload{
			TenantID:     feed.TenantID,
			FeedID:       feed.ID,
			ProductCount: products,
			ImportedAt:   importedAt,
		},
	})
	return err
}

// CancelPending cancels pending tasks of taskType for one feed, e.g. when
// the feed is deleted.
func (q *TaskQueue) CancelPending(ctx context.Context, taskType TaskType, feedID string) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE task_queue
		SET status = 'cancelled'
		WHERE task_type = $1 AND status = 'pending' AND payload->>'feedId' = $2
	`, string(taskType), feedID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (q *TaskQueue) GetTask(ctx context.Context, taskID string) (*Task, error) {
	var task Task
	err := q.db.QueryRow(ctx, `
		SELECT id::text, task_type, payload, priority, status,
		       retry_count, max_retries, scheduled_for, created_at
		FROM task_queue
		WHERE id = $1
	`, taskID).Scan(
		&task.ID, &task.TaskType, &task.Payload, &task.Priority, &task.Status,
		&task.RetryCount, &task.MaxRetries, &task.ScheduledFor, &task.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// CancelFeedTasks cancels every pending follow-up task of a feed.
func (q *TaskQueue) CancelFeedTasks(ctx context.Context, feedID string) error {
	_, err := q.CancelPending(ctx, TaskTypeContentGeneration, feedID)
	return err
}
