package taskqueue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/frankfrisby/backbone/pkg/events"
	"github.com/frankfrisby/backbone/pkg/logging"
	"github.com/frankfrisby/backbone/pkg/metrics"
)

// Config contains task queue configuration
type Config struct {
	// PersistPath is the queue report file; empty disables persistence
	PersistPath string `json:"persist_path"`
	// HistoryLimit caps the completed-history list, oldest evicted first
	HistoryLimit int `json:"history_limit"`
}

// DefaultConfig returns default queue configuration
func DefaultConfig() Config {
	return Config{
		PersistPath:  "task-queue.md",
		HistoryLimit: 50,
	}
}

// Queue owns an ordered collection of active tasks plus a bounded
// completed-history list. It assumes a single logical worker driving
// mutations; the internal lock only makes status snapshots safe.
type Queue struct {
	config  Config
	bus     *events.Bus
	metrics *metrics.Metrics
	logger  *logging.Logger

	mutex   sync.Mutex
	active  []*Task
	history []*Task
}

// NewQueue creates a new task queue
func NewQueue(config Config, bus *events.Bus, m *metrics.Metrics, logger *logging.Logger) *Queue {
	if logger == nil {
		logger = logging.GetLogger()
	}
	if config.HistoryLimit <= 0 {
		config.HistoryLimit = 50
	}
	return &Queue{
		config:  config,
		bus:     bus,
		metrics: m,
		logger:  logger,
	}
}

// Add inserts a task. Duplicate identifiers and duplicate title+project
// pairs that are still pending are rejected as no-ops.
func (q *Queue) Add(task *Task) *Task {
	if task == nil {
		return nil
	}

	q.mutex.Lock()
	for _, existing := range q.active {
		if existing.ID == task.ID {
			q.mutex.Unlock()
			q.logger.Debug("Duplicate task id rejected", "task_id", task.ID)
			return nil
		}
		if existing.Status == StatusPending && existing.Title == task.Title && existing.Project == task.Project {
			q.mutex.Unlock()
			q.logger.Debug("Duplicate pending task rejected",
				"title", task.Title,
				"project", task.Project,
			)
			return nil
		}
	}

	if task.Status == "" {
		task.Status = StatusPending
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	if task.MaxAttempts <= 0 {
		task.MaxAttempts = 3
	}

	q.active = append(q.active, task)
	q.resort()
	q.mutex.Unlock()

	q.logger.Info("Task added",
		"task_id", task.ID,
		"title", task.Title,
		"priority", int(task.Priority),
	)
	q.afterMutation()
	return task
}

// Next returns the first executable pending task, or nil. It does not
// mutate state.
func (q *Queue) Next() *Task {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for _, task := range q.active {
		if task.Executable() {
			return task
		}
	}
	return nil
}

// Start marks an executable task in progress and counts the attempt.
// Returns nil when the task is missing or not executable.
func (q *Queue) Start(id string) *Task {
	q.mutex.Lock()
	task := q.findActive(id)
	if task == nil || !task.Executable() {
		q.mutex.Unlock()
		return nil
	}

	now := time.Now()
	task.Status = StatusInProgress
	task.StartedAt = &now
	task.Attempts++
	q.resort()
	q.mutex.Unlock()

	q.logger.Info("Task started",
		"task_id", task.ID,
		"title", task.Title,
		"attempt", task.Attempts,
		"max_attempts", task.MaxAttempts,
	)
	if q.metrics != nil && q.metrics.Enabled() {
		q.metrics.TaskAttempts.WithLabelValues(task.Type).Inc()
	}
	q.afterMutation()
	return task
}

// Complete moves the task to history as COMPLETED and unblocks every
// active task whose blocking reference points at it.
func (q *Queue) Complete(id string, result map[string]interface{}) *Task {
	q.mutex.Lock()
	task := q.removeActive(id)
	if task == nil {
		q.mutex.Unlock()
		return nil
	}

	now := time.Now()
	task.Status = StatusCompleted
	task.CompletedAt = &now
	task.Result = result
	q.pushHistory(task)

	unblocked := q.unblockDependents(task.ID)
	q.resort()
	q.mutex.Unlock()

	q.logger.Info("Task completed",
		"task_id", task.ID,
		"title", task.Title,
		"unblocked", len(unblocked),
	)
	if q.metrics != nil && q.metrics.Enabled() {
		q.metrics.TasksTotal.WithLabelValues(string(StatusCompleted), task.Type).Inc()
	}
	if q.bus != nil {
		q.bus.Publish(context.Background(), events.Event{
			Type:   events.TypeTaskCompleted,
			Source: task.ID,
			Fields: map[string]interface{}{"title": task.Title},
		})
	}
	q.afterMutation()
	return task
}

// Fail returns the task to pending while attempts remain; once the
// ceiling is reached it moves to history as FAILED with the reason in
// its result payload.
func (q *Queue) Fail(id, reason string) *Task {
	q.mutex.Lock()
	task := q.findActive(id)
	if task == nil {
		q.mutex.Unlock()
		return nil
	}

	if task.Attempts < task.MaxAttempts {
		task.Status = StatusPending
		q.resort()
		q.mutex.Unlock()

		q.logger.Warn("Task failed, will retry",
			"task_id", task.ID,
			"title", task.Title,
			"attempt", task.Attempts,
			"max_attempts", task.MaxAttempts,
			"reason", reason,
		)
		q.afterMutation()
		return task
	}

	q.removeActive(id)
	now := time.Now()
	task.Status = StatusFailed
	task.CompletedAt = &now
	task.Result = map[string]interface{}{"error": reason}
	q.pushHistory(task)
	q.resort()
	q.mutex.Unlock()

	q.logger.Error("Task failed permanently",
		"task_id", task.ID,
		"title", task.Title,
		"attempts", task.Attempts,
		"reason", reason,
	)
	if q.metrics != nil && q.metrics.Enabled() {
		q.metrics.TasksTotal.WithLabelValues(string(StatusFailed), task.Type).Inc()
	}
	if q.bus != nil {
		q.bus.Publish(context.Background(), events.Event{
			Type:   events.TypeTaskFailed,
			Source: task.ID,
			Fields: map[string]interface{}{
				"title":  task.Title,
				"reason": reason,
			},
		})
	}
	q.afterMutation()
	return task
}

// Block marks a task as waiting on another task
func (q *Queue) Block(id, reason, blockingID string) *Task {
	q.mutex.Lock()
	task := q.findActive(id)
	if task == nil || task.Terminal() {
		q.mutex.Unlock()
		return nil
	}

	task.Status = StatusBlocked
	task.BlockedBy = blockingID
	task.BlockReason = reason
	q.resort()
	q.mutex.Unlock()

	q.logger.Info("Task blocked",
		"task_id", id,
		"blocked_by", blockingID,
		"reason", reason,
	)
	q.afterMutation()
	return task
}

// Unblock returns a blocked task to pending
func (q *Queue) Unblock(id string) *Task {
	q.mutex.Lock()
	task := q.findActive(id)
	if task == nil || task.Status != StatusBlocked {
		q.mutex.Unlock()
		return nil
	}

	task.Status = StatusPending
	task.BlockedBy = ""
	task.BlockReason = ""
	q.resort()
	q.mutex.Unlock()

	q.logger.Info("Task unblocked", "task_id", id)
	q.afterMutation()
	return task
}

// Get returns a task by id from the active set or the history
func (q *Queue) Get(id string) *Task {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if task := q.findActive(id); task != nil {
		return task
	}
	for _, task := range q.history {
		if task.ID == id {
			return task
		}
	}
	return nil
}

// Active returns a snapshot of the active task list in sort order
func (q *Queue) Active() []*Task {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	tasks := make([]*Task, len(q.active))
	copy(tasks, q.active)
	return tasks
}

// History returns a snapshot of the completed-history list, oldest first
func (q *Queue) History() []*Task {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	tasks := make([]*Task, len(q.history))
	copy(tasks, q.history)
	return tasks
}

// Stats returns active task counts by status
func (q *Queue) Stats() map[Status]int {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	stats := make(map[Status]int)
	for _, task := range q.active {
		stats[task.Status]++
	}
	return stats
}

// findActive must be called with the mutex held
func (q *Queue) findActive(id string) *Task {
	for _, task := range q.active {
		if task.ID == id {
			return task
		}
	}
	return nil
}

// removeActive must be called with the mutex held
func (q *Queue) removeActive(id string) *Task {
	for i, task := range q.active {
		if task.ID == id {
			q.active = append(q.active[:i], q.active[i+1:]...)
			return task
		}
	}
	return nil
}

// pushHistory must be called with the mutex held
func (q *Queue) pushHistory(task *Task) {
	q.history = append(q.history, task)
	if len(q.history) > q.config.HistoryLimit {
		q.history = q.history[len(q.history)-q.config.HistoryLimit:]
	}
}

// unblockDependents must be called with the mutex held
func (q *Queue) unblockDependents(id string) []*Task {
	var unblocked []*Task
	for _, task := range q.active {
		if task.Status == StatusBlocked && task.BlockedBy == id {
			task.Status = StatusPending
			task.BlockedBy = ""
			task.BlockReason = ""
			unblocked = append(unblocked, task)
		}
	}
	return unblocked
}

// resort orders executable pending tasks first, then by priority
// descending; ties keep insertion order. Must be called with the mutex
// held.
func (q *Queue) resort() {
	sort.SliceStable(q.active, func(i, j int) bool {
		a, b := q.active[i], q.active[j]
		if a.Executable() != b.Executable() {
			return a.Executable()
		}
		return a.Priority > b.Priority
	})
}

// afterMutation updates gauges and persists best-effort. Called without
// the mutex held.
func (q *Queue) afterMutation() {
	if q.metrics != nil && q.metrics.Enabled() {
		stats := q.Stats()
		for _, status := range []Status{StatusPending, StatusInProgress, StatusBlocked} {
			q.metrics.QueueDepth.WithLabelValues(string(status)).Set(float64(stats[status]))
		}
	}

	if q.config.PersistPath == "" {
		return
	}
	if err := q.Save(); err != nil {
		q.logger.Warn("Failed to persist task queue",
			"path", q.config.PersistPath,
			"error", err,
		)
	}
}
