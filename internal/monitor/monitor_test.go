package monitor

import (
	"context"
	"errors"
	"os"
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

var t0 = time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)

// seed registers project with one task per status entry, assigned round-robin.
func seed(t *testing.T, s *memstore.Store, project string, statuses ...models.TaskStatus) []*models.Task {
	t.Helper()
	ctx := context.Background()
	agents := []string{"ai-frontend", "ai-backend", "ai-qa"}
	p := &models.Project{Name: project, Type: "web-app", CreatedAt: t0}
	var tasks []*models.Task
	for i, st := range statuses {
		id := project + "-" + string(rune('a'+i))
		task := storetest.NewTask(id, project, agents[i%len(agents)], 2, t0)
		require.NoError(t, s.CreateTask(ctx, task))
		if st != models.TaskStatusPending {
			require.NoError(t, task.Claim(t0))
			switch st {
			case models.TaskStatusCompleted:
				require.NoError(t, task.Complete(t0, &models.Result{Artifacts: []string{id + ".md"}}))
			case models.TaskStatusFailed:
				require.NoError(t, task.Fail(t0, errors.New("broken build"), nil))
			}
			require.NoError(t, s.UpdateTask(ctx, task, store.AnyVersion))
		}
		p.TaskIDs = append(p.TaskIDs, id)
		tasks = append(tasks, task)
	}
	require.NoError(t, s.CreateProject(ctx, p))
	return tasks
}

func TestStatus_SuccessRate(t *testing.T) {
	s := memstore.New()
	seed(t, s, "shop",
		models.TaskStatusCompleted, models.TaskStatusCompleted, models.TaskStatusCompleted,
		models.TaskStatusCompleted, models.TaskStatusFailed, models.TaskStatusPending)

	sum, err := New(s, org.DefaultConfig()).Status(context.Background(), "shop")
	require.NoError(t, err)
	assert.Equal(t, 6, sum.TotalTasks)
	assert.Equal(t, 4, sum.CompletedTasks)
	assert.Equal(t, 66.7, sum.SuccessRate)
	assert.Equal(t, map[models.TaskStatus]int{
		models.TaskStatusCompleted: 4,
		models.TaskStatusFailed:    1,
		models.TaskStatusPending:   1,
	}, sum.StatusBreakdown)
	assert.Equal(t, 2, sum.AgentWorkload["ai-frontend"][models.TaskStatusCompleted])
	assert.Equal(t, 1, sum.AgentWorkload["ai-backend"][models.TaskStatusFailed])

	require.Len(t, sum.Tasks, 6)
	assert.Equal(t, "shop-a", sum.Tasks[0].ID)
	assert.Equal(t, []string{"shop-a.md"}, sum.Tasks[0].Artifacts)
	assert.Equal(t, "broken build", sum.Tasks[4].Error)
	assert.Empty(t, sum.Tasks[5].Artifacts)
}

func TestStatus_EmptyProject(t *testing.T) {
	s := memstore.New()
	seed(t, s, "empty")

	sum, err := New(s, org.DefaultConfig()).Status(context.Background(), "empty")
	require.NoError(t, err)
	assert.Zero(t, sum.TotalTasks)
	assert.Zero(t, sum.SuccessRate)
	assert.Empty(t, sum.StatusBreakdown)
	assert.NotNil(t, sum.Tasks)
}

func TestStatus_UnknownProject(t *testing.T) {
	_, err := New(memstore.New(), org.DefaultConfig()).Status(context.Background(), "ghost")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStatus_IgnoresOtherProjects(t *testing.T) {
	s := memstore.New()
	seed(t, s, "one", models.TaskStatusCompleted)
	seed(t, s, "two", models.TaskStatusPending, models.TaskStatusPending)

	sum, err := New(s, org.DefaultConfig()).Status(context.Background(), "one")
	require.NoError(t, err)
	assert.Equal(t, 1, sum.TotalTasks)
	assert.Equal(t, 100.0, sum.SuccessRate)
}

func TestSuccessRate(t *testing.T) {
	assert.Equal(t, 0.0, successRate(0, 0))
	assert.Equal(t, 33.3, successRate(1, 3))
	assert.Equal(t, 66.7, successRate(2, 3))
	assert.Equal(t, 100.0, successRate(5, 5))
}

func TestOrganization(t *testing.T) {
	s := memstore.New()
	seed(t, s, "shop", models.TaskStatusCompleted, models.TaskStatusInProgress, models.TaskStatusFailed)
	seed(t, s, "blog", models.TaskStatusPending)

	m := New(s, org.DefaultConfig())
	m.now = func() time.Time { return t0 }
	standup, err := m.Organization(context.Background())
	require.NoError(t, err)

	assert.Equal(t, t0, standup.Date)
	assert.Equal(t, 4, standup.TotalTasks)
	assert.Equal(t, 1, standup.TasksByStatus[models.TaskStatusInProgress])
	assert.Equal(t, 1, standup.TasksByStatus[models.TaskStatusCompleted])
	assert.Equal(t, 1, standup.TasksByStatus[models.TaskStatusFailed])

	require.Len(t, standup.Agents, 6, "idle agents are listed")
	byID := map[string]AgentStatus{}
	for _, a := range standup.Agents {
		byID[a.ID] = a
	}
	assert.Equal(t, 1, byID["ai-frontend"].Completed)
	assert.Equal(t, 1, byID["ai-frontend"].Pending)
	assert.Equal(t, 1, byID["ai-backend"].Active)
	assert.Equal(t, 1, byID["ai-qa"].Failed)
	assert.Zero(t, byID["ai-ceo"].Pending+byID["ai-ceo"].Active+byID["ai-ceo"].Completed)

	require.Len(t, standup.Projects, 2)
	assert.Equal(t, "blog", standup.Projects[0].Name)
	assert.Equal(t, 33.3, standup.Projects[1].SuccessRate)

	require.Len(t, standup.Blockers, 1)
	assert.Equal(t, "shop-c", standup.Blockers[0].TaskID)
	assert.Equal(t, "broken build", standup.Blockers[0].Error)
}

func TestReport(t *testing.T) {
	s := memstore.New()
	seed(t, s, "shop", models.TaskStatusCompleted, models.TaskStatusFailed, models.TaskStatusPending)
	m := New(s, org.DefaultConfig())

	body, err := m.Report(context.Background(), "shop")
	require.NoError(t, err)
	assert.Contains(t, body, "# Project Summary: shop")
	assert.Contains(t, body, "- Total Tasks: 3")
	assert.Contains(t, body, "- Success Rate: 33.3%")
	assert.Contains(t, body, "### ai-frontend: task shop-a\nCreated files:\n- shop-a.md\n")
	assert.Contains(t, body, "## Failed Tasks")
	assert.Contains(t, body, "Error: broken build")

	path, err := m.WriteReport(context.Background(), "shop", t.TempDir())
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, body, string(data))
	assert.Contains(t, path, "shop_summary.md")
}
