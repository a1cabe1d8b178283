package taskqueue

import (
	"encoding/json"
	"time"
)

type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusClaimed   TaskStatus = "claimed"
	StatusCompleted TaskStatus = "completed"
	StatusFailed    TaskStatus = "failed"
	StatusCancelled TaskStatus = "cancelled"
)

type TaskType string

// TaskTypeContentGeneration asks downstream workers to build content for the
// products of a freshly imported feed.
const TaskTypeContentGeneration TaskType = "content_generation"

type Task struct {
	ID           string          `db:"id"`
	TaskType     TaskType        `db:"task_type"`
	Payload      json.RawMessage `db:"payload"`
	Priority     int             `db:"priority"`
	Status       TaskStatus      `db:"status"`
	RetryCount   int             `db:"retry_count"`
	MaxRetries   int             `db:"max_retries"`
	ScheduledFor time.Time       `db:"scheduled_for"`
	CreatedAt    time.Time       `db:"created_at"`
}

// ContentGenerationPayload is the payload of a content_generation task.
type ContentGenerationPayload struct {
	TenantID     string    `json:"tenantId"`
	FeedID       string    `json:"feedId"`
	ProductCount int       `json:"productCount"`
	ImportedAt   time.Time `json:"importedAt"`
}
