package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fentz26/aiorg/internal/audit"
	"github.com/fentz26/aiorg/internal/messaging"
	"github.com/fentz26/aiorg/internal/models"
	"github.com/fentz26/aiorg/internal/notify"
	"github.com/fentz26/aiorg/internal/org"
	"github.com/fentz26/aiorg/internal/scheduler"
	"github.com/fentz26/aiorg/internal/store"
	"github.com/fentz26/aiorg/internal/store/memstore"
	"github.com/fentz26/aiorg/internal/store/storetest"
	"github.com/fentz26/aiorg/internal/worker"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	store   *memstore.Store
	org     *org.Config
	workers *worker.Registry
	msgs    *messaging.Channel
	cfg     *Config
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := org.DefaultConfig()
	reg, err := worker.NewRegistry(cfg)
	require.NoError(t, err)
	st := memstore.New()
	return &harness{
		store:   st,
		org:     cfg,
		workers: reg,
		msgs:    messaging.New(st),
		cfg: &Config{
			PollInterval: 10 * time.Millisecond,
			MaxBackoff:   50 * time.Millisecond,
			StoreRetries: 3,
			RetryDelay:   time.Millisecond,
			ProjectsDir:  t.TempDir(),
		},
	}
}

func (h *harness) deps(s store.TaskStore) Deps {
	return Deps{
		Store:     s,
		Org:       h.org,
		Scheduler: scheduler.New(s, h.org),
		Workers:   h.workers,
		Audit:     audit.NewPDRWriter(h.store),
		Messages:  h.msgs,
	}
}

func (h *harness) executor(t *testing.T, agentID string) *Executor {
	t.Helper()
	ex, err := New(agentID, h.deps(h.store), h.cfg)
	require.NoError(t, err)
	return ex
}

func (h *harness) add(t *testing.T, id, agent string, deps ...string) {
	t.Helper()
	require.NoError(t, h.store.CreateTask(context.Background(), storetest.NewTask(id, "shop", agent, 2, t0, deps...)))
}

func (h *harness) get(t *testing.T, id string) *models.Task {
	t.Helper()
	task, err := h.store.GetTask(context.Background(), id)
	require.NoError(t, err)
	return task
}

func returning(result *models.Result, err error) worker.Func {
	return func(context.Context, *models.Task, string) (*models.Result, error) {
		return result, err
	}
}

func TestNew_UnknownAgent(t *testing.T) {
	h := newHarness(t)
	_, err := New("ai-intern", h.deps(h.store), h.cfg)
	assert.ErrorIs(t, err, scheduler.ErrUnknownAgent)
}

func TestStep_Idle(t *testing.T) {
	h := newHarness(t)
	outcome, err := h.executor(t, "ai-qa").Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Idle, outcome)
}

func TestStep_Completes(t *testing.T) {
	h := newHarness(t)
	h.add(t, "t1", "ai-qa")
	h.workers.Register("ai-qa", returning(&models.Result{Artifacts: []string{"tests/app_test.go"}, Output: "ok"}, nil))

	ex := h.executor(t, "ai-qa")
	outcome, err := ex.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Completed, outcome)

	task := h.get(t, "t1")
	assert.Equal(t, models.TaskStatusCompleted, task.Status)
	assert.Equal(t, []string{"tests/app_test.go"}, task.Result.Artifacts)
	assert.Equal(t, int64(3), task.Version, "create, claim, complete")

	history, err := h.store.ListAudit(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, audit.ActionClaim, history[0].Action)
	assert.Equal(t, audit.ActionComplete, history[1].Action)

	assert.Equal(t, int64(1), ex.Stats().Completed)
}

func TestStep_WorkDirIsProjectDir(t *testing.T) {
	h := newHarness(t)
	h.add(t, "t1", "ai-qa")
	var got string
	h.workers.Register("ai-qa", worker.Func(func(_ context.Context, _ *models.Task, workDir string) (*models.Result, error) {
		got = workDir
		return nil, nil
	}))

	_, err := h.executor(t, "ai-qa").Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(h.cfg.ProjectsDir, "shop"), got)
}

func TestStep_FailureCaptured(t *testing.T) {
	h := newHarness(t)
	h.add(t, "t1", "ai-qa")
	h.workers.Register("ai-qa", returning(&models.Result{Output: "half done"}, errors.New("tests did not compile")))

	outcome, err := h.executor(t, "ai-qa").Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Failed, outcome)

	task := h.get(t, "t1")
	assert.Equal(t, models.TaskStatusFailed, task.Status)
	assert.Equal(t, "tests did not compile", task.Result.Error)
	assert.Equal(t, "half done", task.Result.Output)

	// Failed is final: the task is never offered again.
	outcome, err = h.executor(t, "ai-qa").Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Idle, outcome)
}

func TestStep_PanicCaptured(t *testing.T) {
	h := newHarness(t)
	h.add(t, "t1", "ai-qa")
	h.workers.Register("ai-qa", worker.Func(func(context.Context, *models.Task, string) (*models.Result, error) {
		panic("boom")
	}))

	outcome, err := h.executor(t, "ai-qa").Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Failed, outcome)
	assert.Contains(t, h.get(t, "t1").Result.Error, "boom")
}

// racingStore lets another claimant win the first claim it sees.
type racingStore struct {
	*memstore.Store
	once sync.Once
}

func (r *racingStore) UpdateTask(ctx context.Context, t *models.Task, expected int64) error {
	r.once.Do(func() {
		rival, err := r.Store.GetTask(ctx, t.ID)
		if err == nil && rival.Claim(t0) == nil {
			_ = r.Store.UpdateTask(ctx, rival, rival.Version)
		}
	})
	return r.Store.UpdateTask(ctx, t, expected)
}

func TestStep_Contended(t *testing.T) {
	h := newHarness(t)
	h.add(t, "t1", "ai-qa")
	var calls atomic.Int32
	h.workers.Register("ai-qa", worker.Func(func(context.Context, *models.Task, string) (*models.Result, error) {
		calls.Add(1)
		return nil, nil
	}))

	ex, err := New("ai-qa", h.deps(&racingStore{Store: h.store}), h.cfg)
	require.NoError(t, err)

	outcome, err := ex.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Contended, outcome)
	assert.Zero(t, calls.Load(), "loser must not run the work function")

	history, err := h.store.ListAudit(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, audit.OutcomeContended, history[0].Outcome)
}

func TestStep_ResumesInProgress(t *testing.T) {
	h := newHarness(t)
	h.add(t, "t1", "ai-qa")
	task := h.get(t, "t1")
	require.NoError(t, task.Claim(t0))
	require.NoError(t, h.store.UpdateTask(context.Background(), task, task.Version))

	outcome, err := h.executor(t, "ai-qa").Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Completed, outcome)
}

func TestStep_ReportsToManager(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.add(t, "ok", "ai-qa")
	h.add(t, "bad", "ai-frontend")
	h.workers.Register("ai-frontend", returning(nil, errors.New("build broke")))

	_, err := h.executor(t, "ai-qa").Step(ctx)
	require.NoError(t, err)
	_, err = h.executor(t, "ai-frontend").Step(ctx)
	require.NoError(t, err)

	inbox, err := h.msgs.FetchPending(ctx, "ai-cto")
	require.NoError(t, err)
	require.Len(t, inbox, 2)
	assert.Equal(t, messaging.TypeTaskCompleted, inbox[0].Type)
	assert.Equal(t, "ai-qa", inbox[0].From)
	assert.Equal(t, messaging.TypeTaskFailed, inbox[1].Type)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(inbox[1].Content, &body))
	assert.Equal(t, "bad", body["task_id"])
	assert.Equal(t, "failed", body["status"])
}

func TestStep_NoManagerNoMessage(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.add(t, "vision", "ai-ceo")

	_, err := h.executor(t, "ai-ceo").Step(ctx)
	require.NoError(t, err)
	for _, id := range h.org.AgentIDs() {
		inbox, err := h.msgs.FetchPending(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, inbox, id)
	}
}

func TestStep_TwoTaskChain(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.add(t, "A", "ai-ceo")
	h.add(t, "B", "ai-cto", "A")
	ceo, cto := h.executor(t, "ai-ceo"), h.executor(t, "ai-cto")

	outcome, err := cto.Step(ctx)
	require.NoError(t, err)
	assert.Equal(t, Idle, outcome, "B waits for A")

	outcome, err = ceo.Step(ctx)
	require.NoError(t, err)
	assert.Equal(t, Completed, outcome)

	outcome, err = cto.Step(ctx)
	require.NoError(t, err)
	assert.Equal(t, Completed, outcome)

	assert.Equal(t, models.TaskStatusCompleted, h.get(t, "A").Status)
	assert.Equal(t, models.TaskStatusCompleted, h.get(t, "B").Status)
	assert.False(t, h.get(t, "B").UpdatedAt.Before(h.get(t, "A").UpdatedAt))
}

func TestStep_DetachedFromCancellation(t *testing.T) {
	h := newHarness(t)
	h.add(t, "t1", "ai-qa")
	ctx, cancel := context.WithCancel(context.Background())
	h.workers.Register("ai-qa", worker.Func(func(ctx context.Context, _ *models.Task, _ string) (*models.Result, error) {
		cancel()
		return nil, ctx.Err()
	}))

	outcome, err := h.executor(t, "ai-qa").Step(ctx)
	require.NoError(t, err)
	assert.Equal(t, Completed, outcome)
}

// flakyStore fails the first n scans with a transient error.
type flakyStore struct {
	*memstore.Store
	failures atomic.Int32
}

func (f *flakyStore) ScanTasks(ctx context.Context, q store.TaskQuery) ([]*models.Task, error) {
	if f.failures.Add(-1) >= 0 {
		return nil, errors.New("database is locked")
	}
	return f.Store.ScanTasks(ctx, q)
}

func TestStep_RetriesTransientStoreErrors(t *testing.T) {
	h := newHarness(t)
	h.add(t, "t1", "ai-qa")
	flaky := &flakyStore{Store: h.store}
	flaky.failures.Store(2)

	ex, err := New("ai-qa", h.deps(flaky), h.cfg)
	require.NoError(t, err)
	outcome, err := ex.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Completed, outcome)
}

func TestRun_GivesUpWhenStoreStaysDown(t *testing.T) {
	h := newHarness(t)
	flaky := &flakyStore{Store: h.store}
	flaky.failures.Store(1000)

	ex, err := New("ai-qa", h.deps(flaky), h.cfg)
	require.NoError(t, err)
	err = ex.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ai-qa")
	assert.Contains(t, err.Error(), "database is locked")
}

func TestRun_StopsOnCancel(t *testing.T) {
	h := newHarness(t)
	ex := h.executor(t, "ai-qa")
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- ex.Run(ctx) }()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_WakesOnNotify(t *testing.T) {
	h := newHarness(t)
	h.cfg.PollInterval = time.Hour
	h.cfg.MaxBackoff = time.Hour
	hub := notify.NewHub()
	deps := h.deps(h.store)
	deps.Notifier = hub

	ex, err := New("ai-qa", deps, h.cfg)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = ex.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	h.add(t, "late", "ai-qa")
	assert.Eventually(t, func() bool {
		hub.Notify()
		return h.get(t, "late").Status == models.TaskStatusCompleted
	}, 2*time.Second, 20*time.Millisecond)
}

func TestPool_SameAgentCompletesEachTaskOnce(t *testing.T) {
	h := newHarness(t)
	const n = 20
	for i := 0; i < n; i++ {
		h.add(t, fmt.Sprintf("t%02d", i), "ai-qa")
	}
	h.workers.Register("ai-qa", worker.Func(func(context.Context, *models.Task, string) (*models.Result, error) {
		time.Sleep(time.Millisecond)
		return &models.Result{}, nil
	}))

	var executors []*Executor
	for i := 0; i < 4; i++ {
		executors = append(executors, h.executor(t, "ai-qa"))
	}
	p := NewPool(executors...)
	p.Start(context.Background())

	assert.Eventually(t, func() bool {
		tasks, err := h.store.ScanTasks(context.Background(), store.TaskQuery{Statuses: []models.TaskStatus{models.TaskStatusCompleted}})
		return err == nil && len(tasks) == n
	}, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, p.Stop())

	var completed int64
	for _, s := range p.Stats() {
		completed += s.Completed
	}
	assert.Equal(t, int64(n), completed, "terminal write happens once per task")
}

func TestPool_OneAgentFailureIsolated(t *testing.T) {
	h := newHarness(t)
	flaky := &flakyStore{Store: h.store}
	flaky.failures.Store(1000)

	broken, err := New("ai-devops", h.deps(flaky), h.cfg)
	require.NoError(t, err)
	healthy := h.executor(t, "ai-qa")

	p := NewPool(broken, healthy)
	p.Start(context.Background())

	h.add(t, "t1", "ai-qa")
	assert.Eventually(t, func() bool {
		return h.get(t, "t1").Status == models.TaskStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	err = p.Stop()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ai-devops")
}
