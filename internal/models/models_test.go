package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to TaskStatus
		want     error
	}{
		{TaskStatusPending, TaskStatusInProgress, nil},
		{TaskStatusInProgress, TaskStatusInProgress, nil},
		{TaskStatusInProgress, TaskStatusCompleted, nil},
		{TaskStatusInProgress, TaskStatusFailed, nil},
		{TaskStatusPending, TaskStatusCompleted, ErrInvalidTransition},
		{TaskStatusPending, TaskStatusFailed, ErrInvalidTransition},
		{TaskStatusInProgress, TaskStatusPending, ErrInvalidTransition},
		{TaskStatusCompleted, TaskStatusInProgress, ErrTerminal},
		{TaskStatusCompleted, TaskStatusFailed, ErrTerminal},
		{TaskStatusFailed, TaskStatusPending, ErrTerminal},
		{TaskStatusFailed, TaskStatusInProgress, ErrTerminal},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			err := CanTransition(tt.from, tt.to)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestTaskLifecycle(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	task := &Task{ID: "t1", Status: TaskStatusPending, CreatedAt: created, UpdatedAt: created}

	require.NoError(t, task.Claim(created.Add(time.Second)))
	assert.Equal(t, TaskStatusInProgress, task.Status)
	assert.Equal(t, created.Add(time.Second), task.UpdatedAt)

	require.NoError(t, task.Complete(created.Add(2*time.Second), &Result{Artifacts: []string{"a.md"}}))
	assert.Equal(t, TaskStatusCompleted, task.Status)
	assert.Equal(t, []string{"a.md"}, task.Result.Artifacts)

	before := *task
	err := task.Claim(created.Add(3 * time.Second))
	assert.ErrorIs(t, err, ErrTerminal)
	assert.Equal(t, before.Status, task.Status)
	assert.Equal(t, before.UpdatedAt, task.UpdatedAt)

	assert.ErrorIs(t, task.Fail(created, errors.New("late"), nil), ErrTerminal)
	assert.Empty(t, task.Result.Error)
}

func TestTaskFailCapturesError(t *testing.T) {
	task := &Task{Status: TaskStatusInProgress}
	require.NoError(t, task.Fail(time.Now(), errors.New("disk full"), nil))
	assert.Equal(t, TaskStatusFailed, task.Status)
	require.NotNil(t, task.Result)
	assert.Equal(t, "disk full", task.Result.Error)

	assert.ErrorIs(t, task.Claim(time.Now()), ErrTerminal)
}

func TestParsePriority(t *testing.T) {
	for in, want := range map[string]Priority{
		"critical": PriorityCritical,
		"HIGH":     PriorityHigh,
		" low ":    PriorityLow,
		"7":        Priority(7),
	} {
		got, err := ParsePriority(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParsePriority("urgent")
	assert.Error(t, err)
	assert.Equal(t, "medium", PriorityMedium.String())
	assert.Equal(t, "9", Priority(9).String())
}

func TestTimeFormatSortable(t *testing.T) {
	a := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	b := a.Add(1500 * time.Microsecond)
	sa, sb := FormatTime(a), FormatTime(b)
	assert.Len(t, sa, len(sb))
	assert.Less(t, sa, sb)

	parsed, err := ParseTime(sb)
	require.NoError(t, err)
	assert.True(t, parsed.Equal(b))
}

func TestCloneIsDeep(t *testing.T) {
	orig := &Task{Dependencies: []string{"a"}, Result: &Result{Artifacts: []string{"x"}}}
	c := orig.Clone()
	c.Dependencies[0] = "b"
	c.Result.Artifacts[0] = "y"
	assert.Equal(t, "a", orig.Dependencies[0])
	assert.Equal(t, "x", orig.Result.Artifacts[0])
}

func TestTaskJSONUsesFixedWidthTimes(t *testing.T) {
	created := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	task := &Task{ID: "t1", Status: TaskStatusPending, CreatedAt: created, UpdatedAt: created.Add(1500 * time.Millisecond)}

	data, err := json.Marshal(task)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"created_at":"2024-03-01T09:30:00.000000000Z"`)
	assert.Contains(t, string(data), `"updated_at":"2024-03-01T09:30:01.500000000Z"`)

	var back Task
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, created.Equal(back.CreatedAt))
	assert.True(t, task.UpdatedAt.Equal(back.UpdatedAt))
	assert.Equal(t, "t1", back.ID)
}
