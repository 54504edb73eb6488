package taskqueue

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPersistentQueue(t *testing.T) *Queue {
	t.Helper()
	path := filepath.Join(t.TempDir(), "task-queue.md")
	return NewQueue(Config{PersistPath: path, HistoryLimit: 50}, nil, nil, nil)
}

func TestSaveAndReload(t *testing.T) {
	q := newPersistentQueue(t)

	pending := q.Add(NewTask("analysis", "inspect logs", PriorityHigh).WithProject("backbone"))
	blocked := q.Add(NewTask("deploy", "ship it", PriorityNormal))
	done := q.Add(NewTask("misc", "already done", PriorityLow))

	require.NotNil(t, q.Block(blocked.ID, "waiting for review", pending.ID))
	require.NotNil(t, q.Start(done.ID))
	require.NotNil(t, q.Complete(done.ID, map[string]interface{}{"note": "fine"}))

	require.NoError(t, q.Save())

	restored := NewQueue(Config{PersistPath: q.config.PersistPath, HistoryLimit: 50}, nil, nil, nil)
	require.NoError(t, restored.Load())

	active := restored.Active()
	require.Len(t, active, 2)

	got := restored.Get(pending.ID)
	require.NotNil(t, got)
	assert.Equal(t, "inspect logs", got.Title)
	assert.Equal(t, "backbone", got.Project)
	assert.Equal(t, PriorityHigh, got.Priority)
	assert.Equal(t, StatusPending, got.Status)

	gotBlocked := restored.Get(blocked.ID)
	require.NotNil(t, gotBlocked)
	assert.Equal(t, StatusBlocked, gotBlocked.Status)
	assert.Equal(t, pending.ID, gotBlocked.BlockedBy)
	assert.Equal(t, "waiting for review", gotBlocked.BlockReason)

	history := restored.History()
	require.Len(t, history, 1)
	assert.Equal(t, StatusCompleted, history[0].Status)
	assert.Equal(t, "fine", history[0].Result["note"])
}

func TestSavedReportIsHumanReadable(t *testing.T) {
	q := newPersistentQueue(t)
	q.Add(NewTask("analysis", "inspect logs", PriorityHigh))
	require.NoError(t, q.Save())

	content, err := os.ReadFile(q.config.PersistPath)
	require.NoError(t, err)

	report := string(content)
	assert.True(t, strings.HasPrefix(report, "# Task Queue"))
	assert.Contains(t, report, "## Pending Tasks")
	assert.Contains(t, report, "inspect logs")
	assert.Contains(t, report, "```json")
}

func TestLoadMissingFileStartsEmpty(t *testing.T) {
	q := NewQueue(Config{
		PersistPath:  filepath.Join(t.TempDir(), "does-not-exist.md"),
		HistoryLimit: 50,
	}, nil, nil, nil)

	require.NoError(t, q.Load())
	assert.Empty(t, q.Active())
	assert.Empty(t, q.History())
}

func TestLoadCorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "task-queue.md")
	require.NoError(t, os.WriteFile(path, []byte("# Task Queue\n\n```json\n{not valid json\n```\n"), 0o644))

	q := NewQueue(Config{PersistPath: path, HistoryLimit: 50}, nil, nil, nil)
	require.NoError(t, q.Load())
	assert.Empty(t, q.Active())
	assert.Empty(t, q.History())
}

func TestLoadFileWithoutStateBlockStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "task-queue.md")
	require.NoError(t, os.WriteFile(path, []byte("just some notes, no state\n"), 0o644))

	q := NewQueue(Config{PersistPath: path, HistoryLimit: 50}, nil, nil, nil)
	require.NoError(t, q.Load())
	assert.Empty(t, q.Active())
}

func TestMutationsPersistAutomatically(t *testing.T) {
	q := newPersistentQueue(t)
	task := q.Add(NewTask("analysis", "auto saved", PriorityNormal))
	require.NotNil(t, task)

	// Add already persisted; a fresh queue sees the task without an
	// explicit Save
	restored := NewQueue(Config{PersistPath: q.config.PersistPath, HistoryLimit: 50}, nil, nil, nil)
	require.NoError(t, restored.Load())
	assert.NotNil(t, restored.Get(task.ID))
}

func TestLoadTruncatesOversizedHistory(t *testing.T) {
	q := NewQueue(Config{
		PersistPath:  filepath.Join(t.TempDir(), "task-queue.md"),
		HistoryLimit: 50,
	}, nil, nil, nil)

	for i := 0; i < 5; i++ {
		task := q.Add(NewTask("misc", "work", PriorityNormal))
		require.NotNil(t, task)
		require.NotNil(t, q.Start(task.ID))
		require.NotNil(t, q.Complete(task.ID, nil))
	}
	require.NoError(t, q.Save())

	// A tighter limit on reload drops the oldest entries
	restored := NewQueue(Config{PersistPath: q.config.PersistPath, HistoryLimit: 2}, nil, nil, nil)
	require.NoError(t, restored.Load())
	assert.Len(t, restored.History(), 2)
}
