package taskqueue

import (
	"time"

	"github.com/google/uuid"
)

// Priority represents task priority tiers; higher is more urgent
type Priority int

const (
	PriorityBackground Priority = 10
	PriorityLow        Priority = 25
	PriorityNormal     Priority = 50
	PriorityHigh       Priority = 75
	PriorityCritical   Priority = 100
)

// Status represents the lifecycle status of a task
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusBlocked    Status = "blocked"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Task represents a unit of schedulable, retryable work
type Task struct {
	ID          string                 `json:"id"`
	Title       string                 `json:"title"`
	Description string                 `json:"description,omitempty"`
	Project     string                 `json:"project,omitempty"`
	Priority    Priority               `json:"priority"`
	Type        string                 `json:"type,omitempty"`
	Status      Status                 `json:"status"`
	CreatedAt   time.Time              `json:"created_at"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	Attempts    int                    `json:"attempts"`
	MaxAttempts int                    `json:"max_attempts"`
	BlockedBy   string                 `json:"blocked_by,omitempty"`
	BlockReason string                 `json:"block_reason,omitempty"`
	Context     map[string]interface{} `json:"context,omitempty"`
	Result      map[string]interface{} `json:"result,omitempty"`
}

// NewTask creates a new pending task
func NewTask(taskType, title string, priority Priority) *Task {
	return &Task{
		ID:          uuid.New().String(),
		Title:       title,
		Type:        taskType,
		Priority:    priority,
		Status:      StatusPending,
		CreatedAt:   time.Now(),
		MaxAttempts: 3,
	}
}

// WithDescription sets the task description
func (t *Task) WithDescription(description string) *Task {
	t.Description = description
	return t
}

// WithProject associates the task with a project
func (t *Task) WithProject(project string) *Task {
	t.Project = project
	return t
}

// WithMaxAttempts sets the attempt ceiling
func (t *Task) WithMaxAttempts(maxAttempts int) *Task {
	if maxAttempts > 0 {
		t.MaxAttempts = maxAttempts
	}
	return t
}

// WithContext sets the opaque context payload
func (t *Task) WithContext(context map[string]interface{}) *Task {
	t.Context = context
	return t
}

// Executable reports whether the task is pending with attempts remaining
func (t *Task) Executable() bool {
	return t.Status == StatusPending && t.Attempts < t.MaxAttempts
}

// Terminal reports whether the task reached a terminal status
func (t *Task) Terminal() bool {
	return t.Status == StatusCompleted || t.Status == StatusFailed
}
