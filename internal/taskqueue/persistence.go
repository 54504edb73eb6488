package taskqueue

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// queueState is the structured block embedded in the persisted report
type queueState struct {
	SavedAt time.Time `json:"saved_at"`
	Active  []*Task   `json:"active"`
	History []*Task   `json:"history"`
}

const (
	fenceOpen  = "```json"
	fenceClose = "```"
)

// Save writes the queue as a human-readable report with a trailing fenced
// JSON block holding the full serialized state.
func (q *Queue) Save() error {
	if q.config.PersistPath == "" {
		return nil
	}

	q.mutex.Lock()
	state := queueState{
		SavedAt: time.Now(),
		Active:  append([]*Task(nil), q.active...),
		History: append([]*Task(nil), q.history...),
	}
	q.mutex.Unlock()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("serialize queue state: %w", err)
	}

	var b strings.Builder
	b.WriteString("# Task Queue\n\n")
	b.WriteString(fmt.Sprintf("Updated: %s\n\n", state.SavedAt.Format(time.RFC3339)))

	b.WriteString("## Pending Tasks\n\n")
	wrote := false
	for _, task := range state.Active {
		if task.Status != StatusPending && task.Status != StatusInProgress {
			continue
		}
		marker := ""
		if task.Status == StatusInProgress {
			marker = " (in progress)"
		}
		b.WriteString(fmt.Sprintf("- [%d] %s%s - attempt %d/%d\n",
			int(task.Priority), task.Title, marker, task.Attempts, task.MaxAttempts))
		wrote = true
	}
	if !wrote {
		b.WriteString("_none_\n")
	}

	b.WriteString("\n## Blocked Tasks\n\n")
	wrote = false
	for _, task := range state.Active {
		if task.Status != StatusBlocked {
			continue
		}
		b.WriteString(fmt.Sprintf("- %s - waiting on %s: %s\n",
			task.Title, task.BlockedBy, task.BlockReason))
		wrote = true
	}
	if !wrote {
		b.WriteString("_none_\n")
	}

	b.WriteString("\n## Recently Completed\n\n")
	wrote = false
	for i := len(state.History) - 1; i >= 0; i-- {
		task := state.History[i]
		line := fmt.Sprintf("- %s - %s", task.Title, task.Status)
		if task.Status == StatusFailed && task.Result != nil {
			if reason, ok := task.Result["error"].(string); ok {
				line += ": " + reason
			}
		}
		b.WriteString(line + "\n")
		wrote = true
	}
	if !wrote {
		b.WriteString("_none_\n")
	}

	b.WriteString("\n## State\n\n")
	b.WriteString(fenceOpen + "\n")
	b.Write(data)
	b.WriteString("\n" + fenceClose + "\n")

	return atomicWrite(q.config.PersistPath, []byte(b.String()))
}

// Load restores the queue from the persisted report, parsing only the
// trailing fenced JSON block. A missing or unparsable file leaves the
// queue empty; durability is best-effort, not transactional.
func (q *Queue) Load() error {
	if q.config.PersistPath == "" {
		return nil
	}

	content, err := os.ReadFile(q.config.PersistPath)
	if err != nil {
		if os.IsNotExist(err) {
			q.logger.Debug("No persisted queue found, starting empty",
				"path", q.config.PersistPath)
			return nil
		}
		q.logger.Warn("Failed to read persisted queue, starting empty",
			"path", q.config.PersistPath,
			"error", err,
		)
		return nil
	}

	block, ok := extractStateBlock(string(content))
	if !ok {
		q.logger.Warn("Persisted queue has no state block, starting empty",
			"path", q.config.PersistPath)
		return nil
	}

	var state queueState
	if err := json.Unmarshal([]byte(block), &state); err != nil {
		q.logger.Warn("Failed to parse persisted queue, starting empty",
			"path", q.config.PersistPath,
			"error", err,
		)
		return nil
	}

	q.mutex.Lock()
	q.active = state.Active
	q.history = state.History
	if len(q.history) > q.config.HistoryLimit {
		q.history = q.history[len(q.history)-q.config.HistoryLimit:]
	}
	q.resort()
	active := len(q.active)
	history := len(q.history)
	q.mutex.Unlock()

	q.logger.Info("Task queue restored",
		"path", q.config.PersistPath,
		"active", active,
		"history", history,
	)
	return nil
}

// extractStateBlock returns the contents of the last fenced JSON block;
// the prose sections exist purely for human inspection and are ignored.
func extractStateBlock(content string) (string, bool) {
	start := strings.LastIndex(content, fenceOpen)
	if start < 0 {
		return "", false
	}
	rest := content[start+len(fenceOpen):]
	end := strings.Index(rest, fenceClose)
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}

// atomicWrite writes via a temp file and rename so a crash mid-write
// never truncates the previous report
func atomicWrite(path string, content []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".backbone-queue-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	return os.Rename(tmpName, path)
}
