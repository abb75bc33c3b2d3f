package scheduler

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fentz26/aiorg/internal/models"
	"github.com/fentz26/aiorg/internal/org"
	"github.com/fentz26/aiorg/internal/store"
	"github.com/fentz26/aiorg/internal/store/memstore"
	"github.com/fentz26/aiorg/internal/store/storetest"
)

var t0 = time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)

func setStatus(t *testing.T, s store.TaskStore, id string, status models.TaskStatus) {
	t.Helper()
	ctx := context.Background()
	task, err := s.GetTask(ctx, id)
	require.NoError(t, err)
	if status == models.TaskStatusPending {
		return
	}
	require.NoError(t, task.Claim(t0))
	switch status {
	case models.TaskStatusCompleted:
		require.NoError(t, task.Complete(t0, nil))
	case models.TaskStatusFailed:
		require.NoError(t, task.Fail(t0, fmt.Errorf("failed"), nil))
	}
	require.NoError(t, s.UpdateTask(ctx, task, store.AnyVersion))
}

func ids(tasks []*models.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}

func TestEligibleTasks_PriorityOrder(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	require.NoError(t, s.CreateTask(ctx, storetest.NewTask("low", "p", "ai-qa", 1, t0)))
	require.NoError(t, s.CreateTask(ctx, storetest.NewTask("high", "p", "ai-qa", 3, t0)))
	require.NoError(t, s.CreateTask(ctx, storetest.NewTask("mid", "p", "ai-qa", 2, t0)))

	sch := New(s, org.DefaultConfig())
	tasks, err := sch.EligibleTasks(ctx, "ai-qa")
	require.NoError(t, err)
	assert.Equal(t, []string{"high", "mid", "low"}, ids(tasks))
}

func TestEligibleTasks_CreatedAtBreaksTies(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	require.NoError(t, s.CreateTask(ctx, storetest.NewTask("later", "p", "ai-qa", 3, t0.Add(time.Minute))))
	require.NoError(t, s.CreateTask(ctx, storetest.NewTask("earlier", "p", "ai-qa", 3, t0)))

	tasks, err := New(s, org.DefaultConfig()).EligibleTasks(ctx, "ai-qa")
	require.NoError(t, err)
	assert.Equal(t, []string{"earlier", "later"}, ids(tasks))
}

func TestEligibleTasks_DependencyGating(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	require.NoError(t, s.CreateTask(ctx, storetest.NewTask("fe", "p", "ai-frontend", 3, t0)))
	require.NoError(t, s.CreateTask(ctx, storetest.NewTask("be", "p", "ai-backend", 3, t0)))
	require.NoError(t, s.CreateTask(ctx, storetest.NewTask("qa", "p", "ai-qa", 3, t0, "fe", "be")))
	sch := New(s, org.DefaultConfig())

	tasks, err := sch.EligibleTasks(ctx, "ai-qa")
	require.NoError(t, err)
	assert.Empty(t, tasks, "no dependency complete")

	setStatus(t, s, "fe", models.TaskStatusCompleted)
	tasks, err = sch.EligibleTasks(ctx, "ai-qa")
	require.NoError(t, err)
	assert.Empty(t, tasks, "one dependency still pending")

	setStatus(t, s, "be", models.TaskStatusFailed)
	tasks, err = sch.EligibleTasks(ctx, "ai-qa")
	require.NoError(t, err)
	assert.Empty(t, tasks, "failed dependency never satisfies")
}

func TestEligibleTasks_DependencyCompleted(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	require.NoError(t, s.CreateTask(ctx, storetest.NewTask("a", "p", "ai-ceo", 3, t0)))
	require.NoError(t, s.CreateTask(ctx, storetest.NewTask("b", "p", "ai-cto", 3, t0, "a")))
	setStatus(t, s, "a", models.TaskStatusCompleted)

	tasks, err := New(s, org.DefaultConfig()).EligibleTasks(ctx, "ai-cto")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids(tasks))
}

func TestEligibleTasks_IncludesInProgressExcludesTerminal(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	for _, id := range []string{"pending", "running", "done", "failed"} {
		require.NoError(t, s.CreateTask(ctx, storetest.NewTask(id, "p", "ai-qa", 2, t0)))
	}
	setStatus(t, s, "running", models.TaskStatusInProgress)
	setStatus(t, s, "done", models.TaskStatusCompleted)
	setStatus(t, s, "failed", models.TaskStatusFailed)

	tasks, err := New(s, org.DefaultConfig()).EligibleTasks(ctx, "ai-qa")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"pending", "running"}, ids(tasks))
}

func TestEligibleTasks_OnlyAssignee(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	require.NoError(t, s.CreateTask(ctx, storetest.NewTask("mine", "p", "ai-qa", 2, t0)))
	require.NoError(t, s.CreateTask(ctx, storetest.NewTask("theirs", "p", "ai-devops", 4, t0)))

	tasks, err := New(s, org.DefaultConfig()).EligibleTasks(ctx, "ai-qa")
	require.NoError(t, err)
	assert.Equal(t, []string{"mine"}, ids(tasks))
}

func TestEligibleTasks_UnresolvedDependencyIsUnmet(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	require.NoError(t, s.CreateTask(ctx, storetest.NewTask("orphan", "p", "ai-qa", 2, t0, "deleted")))

	tasks, err := New(s, org.DefaultConfig()).EligibleTasks(ctx, "ai-qa")
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestEligibleTasks_UnknownAgent(t *testing.T) {
	_, err := New(memstore.New(), org.DefaultConfig()).EligibleTasks(context.Background(), "ai-intern")
	assert.ErrorIs(t, err, ErrUnknownAgent)
}

func TestEligibleTasks_IsPureRead(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	require.NoError(t, s.CreateTask(ctx, storetest.NewTask("x", "p", "ai-qa", 2, t0)))
	sch := New(s, org.DefaultConfig())

	for i := 0; i < 3; i++ {
		_, err := sch.EligibleTasks(ctx, "ai-qa")
		require.NoError(t, err)
	}
	task, err := s.GetTask(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, int64(1), task.Version)
	assert.Equal(t, models.TaskStatusPending, task.Status)
}

func TestNext(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	sch := New(s, org.DefaultConfig())

	next, err := sch.Next(ctx, "ai-qa")
	require.NoError(t, err)
	assert.Nil(t, next)

	require.NoError(t, s.CreateTask(ctx, storetest.NewTask("x", "p", "ai-qa", 2, t0)))
	next, err = sch.Next(ctx, "ai-qa")
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, "x", next.ID)
}

// Random DAGs with random statuses: a task is eligible exactly when it is
// claimable and every dependency is completed.
func TestEligibleTasks_RandomDAGProperty(t *testing.T) {
	agents := org.DefaultConfig().AgentIDs()
	rng := rand.New(rand.NewSource(42))
	statuses := models.AllStatuses

	for round := 0; round < 25; round++ {
		ctx := context.Background()
		s := memstore.New()
		n := 5 + rng.Intn(20)
		tasks := make([]*models.Task, n)
		for i := 0; i < n; i++ {
			var deps []string
			// Edges only point to lower indices, so the graph is acyclic.
			for j := 0; j < i; j++ {
				if rng.Intn(4) == 0 {
					deps = append(deps, fmt.Sprintf("r%d-t%d", round, j))
				}
			}
			task := storetest.NewTask(fmt.Sprintf("r%d-t%d", round, i), "p", agents[rng.Intn(len(agents))],
				models.Priority(1+rng.Intn(4)), t0.Add(time.Duration(rng.Intn(60))*time.Second), deps...)
			require.NoError(t, s.CreateTask(ctx, task))
			tasks[i] = task
		}
		final := make(map[string]models.TaskStatus, n)
		for _, task := range tasks {
			st := statuses[rng.Intn(len(statuses))]
			setStatus(t, s, task.ID, st)
			final[task.ID] = st
		}

		sch := New(s, org.DefaultConfig())
		for _, agent := range agents {
			got, err := sch.EligibleTasks(ctx, agent)
			require.NoError(t, err)

			want := map[string]bool{}
			for _, task := range tasks {
				if task.AssignedTo != agent || final[task.ID].IsTerminal() {
					continue
				}
				ready := true
				for _, dep := range task.Dependencies {
					if final[dep] != models.TaskStatusCompleted {
						ready = false
					}
				}
				if ready {
					want[task.ID] = true
				}
			}

			assert.Len(t, got, len(want), "round %d agent %s", round, agent)
			for i, task := range got {
				assert.True(t, want[task.ID], "round %d: %s should not be eligible", round, task.ID)
				if i > 0 {
					prev := got[i-1]
					assert.True(t, prev.Priority > task.Priority ||
						(prev.Priority == task.Priority && !prev.CreatedAt.After(task.CreatedAt)),
						"round %d: order violated at %d", round, i)
				}
			}
		}
	}
}
