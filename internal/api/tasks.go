package api

import (
	"github.com/gin-gonic/gin"

	"github.com/frankfrisby/backbone/internal/taskqueue"
	"github.com/frankfrisby/backbone/pkg/errors"
)

// TaskHandler exposes the task queue over HTTP
type TaskHandler struct {
	queue *taskqueue.Queue
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(queue *taskqueue.Queue) *TaskHandler {
	return &TaskHandler{queue: queue}
}

// CreateTaskRequest is the payload for creating a task
type CreateTaskRequest struct {
	Title       string                 `json:"title" binding:"required"`
	Description string                 `json:"description"`
	Project     string                 `json:"project"`
	Type        string                 `json:"type"`
	Priority    int                    `json:"priority"`
	MaxAttempts int                    `json:"max_attempts"`
	Context     map[string]interface{} `json:"context"`
}

// CreateTask adds a task to the queue
func (h *TaskHandler) CreateTask(c *gin.Context) {
	var req CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponseFromError(c, errors.NewValidationError(err.Error()))
		return
	}

	priority := taskqueue.Priority(req.Priority)
	if priority == 0 {
		priority = taskqueue.PriorityNormal
	}

	task := taskqueue.NewTask(req.Type, req.Title, priority).
		WithDescription(req.Description).
		WithProject(req.Project).
		WithMaxAttempts(req.MaxAttempts).
		WithContext(req.Context)

	if added := h.queue.Add(task); added == nil {
		ErrorResponseFromError(c, errors.NewConflictError("duplicate task"))
		return
	}

	CreatedResponse(c, task)
}

// ListTasks returns the active task list in execution order
func (h *TaskHandler) ListTasks(c *gin.Context) {
	SuccessResponse(c, gin.H{
		"active":  h.queue.Active(),
		"stats":   h.queue.Stats(),
		"history": len(h.queue.History()),
	})
}

// GetTask returns a single task from the active set or history
func (h *TaskHandler) GetTask(c *gin.Context) {
	task := h.queue.Get(c.Param("id"))
	if task == nil {
		ErrorResponseFromError(c, errors.NewNotFoundError("task "+c.Param("id")))
		return
	}
	SuccessResponse(c, task)
}

// ListHistory returns the bounded completed-task history
func (h *TaskHandler) ListHistory(c *gin.Context) {
	SuccessResponse(c, h.queue.History())
}

// CompleteTaskRequest carries an optional result payload
type CompleteTaskRequest struct {
	Result map[string]interface{} `json:"result"`
}

// CompleteTask marks a task completed
func (h *TaskHandler) CompleteTask(c *gin.Context) {
	var req CompleteTaskRequest
	_ = c.ShouldBindJSON(&req)

	task := h.queue.Complete(c.Param("id"), req.Result)
	if task == nil {
		ErrorResponseFromError(c, errors.NewNotFoundError("task "+c.Param("id")))
		return
	}
	SuccessResponse(c, task)
}

// FailTaskRequest carries the failure reason
type FailTaskRequest struct {
	Reason string `json:"reason"`
}

// FailTask records a failed attempt; the task retries until its ceiling
func (h *TaskHandler) FailTask(c *gin.Context) {
	var req FailTaskRequest
	_ = c.ShouldBindJSON(&req)
	if req.Reason == "" {
		req.Reason = "unspecified failure"
	}

	task := h.queue.Fail(c.Param("id"), req.Reason)
	if task == nil {
		ErrorResponseFromError(c, errors.NewNotFoundError("task "+c.Param("id")))
		return
	}
	SuccessResponse(c, task)
}

// BlockTaskRequest names the blocking task and reason
type BlockTaskRequest struct {
	Reason    string `json:"reason"`
	BlockedBy string `json:"blocked_by"`
}

// BlockTask marks a task as waiting on another
func (h *TaskHandler) BlockTask(c *gin.Context) {
	var req BlockTaskRequest
	_ = c.ShouldBindJSON(&req)

	task := h.queue.Block(c.Param("id"), req.Reason, req.BlockedBy)
	if task == nil {
		ErrorResponseFromError(c, errors.NewNotFoundError("task "+c.Param("id")))
		return
	}
	SuccessResponse(c, task)
}

// UnblockTask returns a blocked task to pending
func (h *TaskHandler) UnblockTask(c *gin.Context) {
	task := h.queue.Unblock(c.Param("id"))
	if task == nil {
		ErrorResponseFromError(c, errors.NewNotFoundError("task "+c.Param("id")))
		return
	}
	SuccessResponse(c, task)
}
