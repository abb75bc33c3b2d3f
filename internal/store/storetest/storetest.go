// Package storetest is a conformance suite every store.Backend must pass.
package storetest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fentz26/aiorg/internal/models"
	"github.com/fentz26/aiorg/internal/store"
)

// Factory returns a fresh, empty backend. Cleanup is the factory's job.
type Factory func(t *testing.T) store.Backend

// Run executes the suite against backends produced by newBackend.
func Run(t *testing.T, newBackend Factory) {
	t.Run("TaskCRUD", func(t *testing.T) { testTaskCRUD(t, newBackend(t)) })
	t.Run("DuplicateTask", func(t *testing.T) { testDuplicateTask(t, newBackend(t)) })
	t.Run("ConditionalUpdate", func(t *testing.T) { testConditionalUpdate(t, newBackend(t)) })
	t.Run("TerminalImmutable", func(t *testing.T) { testTerminalImmutable(t, newBackend(t)) })
	t.Run("ConcurrentClaim", func(t *testing.T) { testConcurrentClaim(t, newBackend(t)) })
	t.Run("ScanTasks", func(t *testing.T) { testScanTasks(t, newBackend(t)) })
	t.Run("Projects", func(t *testing.T) { testProjects(t, newBackend(t)) })
	t.Run("Messages", func(t *testing.T) { testMessages(t, newBackend(t)) })
	t.Run("Audit", func(t *testing.T) { testAudit(t, newBackend(t)) })
}

var base = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

// NewTask builds a pending task for tests.
func NewTask(id, project, assignee string, priority models.Priority, created time.Time, deps ...string) *models.Task {
	return &models.Task{
		ID:              id,
		Title:           "task " + id,
		Description:     "description of " + id,
		Project:         project,
		AssignedTo:      assignee,
		CreatedBy:       "system",
		Status:          models.TaskStatusPending,
		Priority:        priority,
		Dependencies:    deps,
		EstimatedEffort: 1,
		CreatedAt:       created,
		UpdatedAt:       created,
	}
}

func testTaskCRUD(t *testing.T, b store.Backend) {
	ctx := context.Background()
	require.NoError(t, b.Ping(ctx))

	task := NewTask("t1", "shop", "ai-ceo", models.PriorityHigh, base, "t0")
	require.NoError(t, b.CreateTask(ctx, task), "CreateTask")
	assert.Equal(t, int64(1), task.Version)

	got, err := b.GetTask(ctx, "t1")
	require.NoError(t, err, "GetTask")
	assert.Equal(t, "task t1", got.Title)
	assert.Equal(t, "description of t1", got.Description)
	assert.Equal(t, "shop", got.Project)
	assert.Equal(t, "ai-ceo", got.AssignedTo)
	assert.Equal(t, "system", got.CreatedBy)
	assert.Equal(t, models.TaskStatusPending, got.Status)
	assert.Equal(t, models.PriorityHigh, got.Priority)
	assert.Equal(t, []string{"t0"}, got.Dependencies)
	assert.InDelta(t, 1.0, got.EstimatedEffort, 0.0001)
	assert.True(t, got.CreatedAt.Equal(base), "created_at round trip")
	assert.Nil(t, got.Result)
	assert.Equal(t, int64(1), got.Version)

	_, err = b.GetTask(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testDuplicateTask(t *testing.T, b store.Backend) {
	ctx := context.Background()
	require.NoError(t, b.CreateTask(ctx, NewTask("dup", "p", "a", 1, base)))
	err := b.CreateTask(ctx, NewTask("dup", "p", "a", 1, base))
	assert.ErrorIs(t, err, store.ErrAlreadyExists)
}

func testConditionalUpdate(t *testing.T, b store.Backend) {
	ctx := context.Background()
	require.NoError(t, b.CreateTask(ctx, NewTask("cas", "p", "a", 1, base)))

	first, err := b.GetTask(ctx, "cas")
	require.NoError(t, err)
	second, err := b.GetTask(ctx, "cas")
	require.NoError(t, err)

	require.NoError(t, first.Claim(base.Add(time.Second)))
	require.NoError(t, b.UpdateTask(ctx, first, first.Version), "first claim")
	assert.Equal(t, int64(2), first.Version)

	require.NoError(t, second.Claim(base.Add(2*time.Second)))
	err = b.UpdateTask(ctx, second, second.Version)
	assert.ErrorIs(t, err, store.ErrConflict, "stale claim must lose")

	stored, err := b.GetTask(ctx, "cas")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusInProgress, stored.Status)
	assert.True(t, stored.UpdatedAt.Equal(base.Add(time.Second)), "loser must not overwrite")

	// AnyVersion skips the comparison.
	require.NoError(t, stored.Complete(base.Add(3*time.Second), &models.Result{Artifacts: []string{"out.md"}, Output: "ok"}))
	require.NoError(t, b.UpdateTask(ctx, stored, store.AnyVersion))

	final, err := b.GetTask(ctx, "cas")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusCompleted, final.Status)
	require.NotNil(t, final.Result)
	assert.Equal(t, []string{"out.md"}, final.Result.Artifacts)
	assert.Equal(t, "ok", final.Result.Output)
	assert.Equal(t, int64(3), final.Version)

	missing := NewTask("ghost", "p", "a", 1, base)
	assert.ErrorIs(t, b.UpdateTask(ctx, missing, store.AnyVersion), store.ErrNotFound)
}

func testTerminalImmutable(t *testing.T, b store.Backend) {
	ctx := context.Background()
	for _, terminal := range []models.TaskStatus{models.TaskStatusCompleted, models.TaskStatusFailed} {
		id := "term-" + string(terminal)
		task := NewTask(id, "p", "a", 1, base)
		require.NoError(t, b.CreateTask(ctx, task))
		require.NoError(t, task.Claim(base))
		require.NoError(t, b.UpdateTask(ctx, task, task.Version))
		if terminal == models.TaskStatusCompleted {
			require.NoError(t, task.Complete(base, nil))
		} else {
			require.NoError(t, task.Fail(base, fmt.Errorf("boom"), nil))
		}
		require.NoError(t, b.UpdateTask(ctx, task, task.Version))
		before, err := b.GetTask(ctx, id)
		require.NoError(t, err)

		// Bypass the model guard to prove the store holds on its own.
		forged := before.Clone()
		forged.Status = models.TaskStatusPending
		forged.Title = "rewritten"
		assert.ErrorIs(t, b.UpdateTask(ctx, forged, forged.Version), store.ErrTerminal)
		assert.ErrorIs(t, b.UpdateTask(ctx, forged, store.AnyVersion), store.ErrTerminal)

		after, err := b.GetTask(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, before, after, "terminal record must be unchanged")
	}
}

func testConcurrentClaim(t *testing.T, b store.Backend) {
	ctx := context.Background()
	require.NoError(t, b.CreateTask(ctx, NewTask("race", "p", "a", 1, base)))

	const racers = 8
	var wg, ready sync.WaitGroup
	var mu sync.Mutex
	wins, conflicts := 0, 0
	start := make(chan struct{})
	ready.Add(racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			task, err := b.GetTask(ctx, "race")
			ready.Done()
			if !assert.NoError(t, err) {
				return
			}
			<-start
			if err := task.Claim(time.Now()); err != nil {
				return
			}
			err = b.UpdateTask(ctx, task, task.Version)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case assert.ErrorIs(t, err, store.ErrConflict):
				conflicts++
			}
		}()
	}
	// Every racer holds the version-1 record before any of them writes.
	ready.Wait()
	close(start)
	wg.Wait()

	assert.Equal(t, 1, wins, "exactly one racer may claim")
	assert.Equal(t, racers-1, conflicts)
}

func testScanTasks(t *testing.T, b store.Backend) {
	ctx := context.Background()
	require.NoError(t, b.CreateTask(ctx, NewTask("b", "alpha", "ai-qa", 1, base.Add(time.Minute))))
	require.NoError(t, b.CreateTask(ctx, NewTask("a", "alpha", "ai-qa", 1, base.Add(time.Minute))))
	require.NoError(t, b.CreateTask(ctx, NewTask("c", "alpha", "ai-cto", 3, base)))
	require.NoError(t, b.CreateTask(ctx, NewTask("d", "beta", "ai-qa", 2, base)))

	all, err := b.ScanTasks(ctx, store.TaskQuery{})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "d", "a", "b"}, ids(all), "created_at then id")

	alpha, err := b.ScanTasks(ctx, store.TaskQuery{Project: "alpha"})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "b"}, ids(alpha))

	qa, err := b.ScanTasks(ctx, store.TaskQuery{AssignedTo: "ai-qa", Statuses: []models.TaskStatus{models.TaskStatusPending}})
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "a", "b"}, ids(qa))

	done, err := b.ScanTasks(ctx, store.TaskQuery{Statuses: []models.TaskStatus{models.TaskStatusCompleted}})
	require.NoError(t, err)
	assert.Empty(t, done)

	high, err := b.ScanTasks(ctx, store.TaskQuery{Where: func(t *models.Task) bool { return t.Priority >= 2 }})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "d"}, ids(high))
}

func testProjects(t *testing.T, b store.Backend) {
	ctx := context.Background()
	p := &models.Project{Name: "shop", Type: "web-app", CreatedAt: base, TaskIDs: []string{"x", "y"}}
	require.NoError(t, b.CreateProject(ctx, p))
	assert.ErrorIs(t, b.CreateProject(ctx, p), store.ErrAlreadyExists)

	got, err := b.GetProject(ctx, "shop")
	require.NoError(t, err)
	assert.Equal(t, "web-app", got.Type)
	assert.Equal(t, []string{"x", "y"}, got.TaskIDs)
	assert.True(t, got.CreatedAt.Equal(base))

	require.NoError(t, b.CreateProject(ctx, &models.Project{Name: "empty", Type: "unknown", CreatedAt: base.Add(time.Hour)}))
	list, err := b.ListProjects(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "shop", list[0].Name)
	assert.Equal(t, "empty", list[1].Name)
	assert.Empty(t, list[1].TaskIDs)

	_, err = b.GetProject(ctx, "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testMessages(t *testing.T, b store.Backend) {
	ctx := context.Background()
	mk := func(id, to string, at time.Time) *models.Message {
		return &models.Message{
			ID: id, From: "ai-ceo", To: to, Type: "note",
			Content:   json.RawMessage(`{"n":"` + id + `"}`),
			Status:    models.MessageStatusPending,
			Timestamp: at,
		}
	}
	require.NoError(t, b.AppendMessage(ctx, mk("m2", "ai-cto", base.Add(2*time.Second))))
	require.NoError(t, b.AppendMessage(ctx, mk("m1", "ai-cto", base.Add(time.Second))))
	require.NoError(t, b.AppendMessage(ctx, mk("m3", "ai-qa", base)))

	pending, err := b.PendingMessages(ctx, "ai-cto")
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "m1", pending[0].ID)
	assert.Equal(t, "m2", pending[1].ID)
	assert.JSONEq(t, `{"n":"m1"}`, string(pending[0].Content))

	// Fetching again redelivers until acknowledged.
	again, err := b.PendingMessages(ctx, "ai-cto")
	require.NoError(t, err)
	assert.Len(t, again, 2)

	require.NoError(t, b.MarkConsumed(ctx, "m1"))
	require.NoError(t, b.MarkConsumed(ctx, "m1"), "acknowledge is idempotent")
	pending, err = b.PendingMessages(ctx, "ai-cto")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "m2", pending[0].ID)

	assert.ErrorIs(t, b.MarkConsumed(ctx, "unknown"), store.ErrNotFound)

	none, err := b.PendingMessages(ctx, "ai-devops")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testAudit(t *testing.T, b store.Backend) {
	ctx := context.Background()
	require.NoError(t, b.WriteAudit(ctx, &models.AuditEntry{ID: "e2", Action: "task.claim", InputsHash: "h", Outcome: "success", TaskID: "t1", Timestamp: base.Add(time.Second)}))
	require.NoError(t, b.WriteAudit(ctx, &models.AuditEntry{ID: "e1", Action: "task.create", InputsHash: "h", Outcome: "success", TaskID: "t1", Timestamp: base}))
	require.NoError(t, b.WriteAudit(ctx, &models.AuditEntry{ID: "e3", Action: "task.create", InputsHash: "h", Outcome: "success", TaskID: "t2", Timestamp: base}))

	entries, err := b.ListAudit(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "task.create", entries[0].Action)
	assert.Equal(t, "task.claim", entries[1].Action)

	all, err := b.ListAudit(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func ids(tasks []*models.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}
