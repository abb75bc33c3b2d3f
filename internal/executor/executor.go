package executor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/panics"

	"github.com/fentz26/aiorg/internal/audit"
	"github.com/fentz26/aiorg/internal/logging"
	"github.com/fentz26/aiorg/internal/messaging"
	"github.com/fentz26/aiorg/internal/models"
	"github.com/fentz26/aiorg/internal/org"
	"github.com/fentz26/aiorg/internal/scheduler"
	"github.com/fentz26/aiorg/internal/store"
	"github.com/fentz26/aiorg/internal/worker"
)

// Outcome is the result of one Step.
type Outcome int

const (
	// Idle means no eligible task existed.
	Idle Outcome = iota
	// Contended means another claimant won the task.
	Contended
	// Completed means a task was claimed and completed.
	Completed
	// Failed means a task was claimed and failed.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Idle:
		return "idle"
	case Contended:
		return "contended"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Notifier delivers change hints; *notify.Hub and *notify.Watcher satisfy it.
type Notifier interface {
	Subscribe(ctx context.Context) <-chan struct{}
}

// Deps are the shared components an executor works against.
type Deps struct {
	Store     store.TaskStore
	Org       *org.Config
	Scheduler *scheduler.Scheduler
	Workers   *worker.Registry
	Audit     *audit.PDRWriter
	Messages  *messaging.Channel
	// Notifier is optional; without it idle executors only poll.
	Notifier Notifier
}

// Stats counts step outcomes for one executor.
type Stats struct {
	AgentID   string `json:"agent_id"`
	Steps     int64  `json:"steps"`
	Completed int64  `json:"completed"`
	Failed    int64  `json:"failed"`
	Contended int64  `json:"contended"`
}

// Executor runs the claim/execute/record loop for one agent.
type Executor struct {
	agent org.Agent
	deps  Deps
	cfg   *Config
	log   zerolog.Logger
	now   func() time.Time

	steps, completed, failed, contended atomic.Int64
}

// New creates an executor for agentID.
func New(agentID string, deps Deps, cfg *Config) (*Executor, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	agent, ok := deps.Org.Agent(agentID)
	if !ok {
		return nil, fmt.Errorf("%s: %w", agentID, scheduler.ErrUnknownAgent)
	}
	if deps.Store == nil || deps.Scheduler == nil || deps.Workers == nil {
		return nil, errors.New("executor requires a store, scheduler and worker registry")
	}
	return &Executor{
		agent: agent,
		deps:  deps,
		cfg:   cfg,
		log:   logging.Component("executor").With().Str("agent", agentID).Logger(),
		now:   time.Now,
	}, nil
}

// AgentID returns the agent this executor works for.
func (e *Executor) AgentID() string {
	return e.agent.ID
}

// Stats returns a snapshot of the outcome counters.
func (e *Executor) Stats() Stats {
	return Stats{
		AgentID:   e.agent.ID,
		Steps:     e.steps.Load(),
		Completed: e.completed.Load(),
		Failed:    e.failed.Load(),
		Contended: e.contended.Load(),
	}
}

// Run steps until ctx is cancelled. It returns nil on cancellation and an
// error only when the store stays unavailable past the retry budget.
func (e *Executor) Run(ctx context.Context) error {
	var wake <-chan struct{}
	if e.deps.Notifier != nil {
		wake = e.deps.Notifier.Subscribe(ctx)
	}

	e.log.Info().Msg("executor started")
	defer e.log.Info().Msg("executor stopped")

	wait := e.cfg.PollInterval
	for {
		if ctx.Err() != nil {
			return nil
		}

		outcome, err := e.Step(ctx)
		if err != nil {
			e.log.Error().Err(err).Msg("store unavailable, giving up")
			return fmt.Errorf("agent %s: %w", e.agent.ID, err)
		}

		switch outcome {
		case Contended:
			continue
		case Completed, Failed:
			wait = e.cfg.PollInterval
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-wake:
			timer.Stop()
		case <-timer.C:
		}
		wait = e.cfg.nextBackoff(wait)
	}
}

// Step performs one claim/execute/record cycle. Cancellation of ctx does not
// interrupt a step that has started.
func (e *Executor) Step(ctx context.Context) (Outcome, error) {
	ctx = context.WithoutCancel(ctx)
	e.steps.Add(1)

	var eligible []*models.Task
	err := e.retry(ctx, "eligible tasks", func() error {
		var err error
		eligible, err = e.deps.Scheduler.EligibleTasks(ctx, e.agent.ID)
		return err
	})
	if err != nil {
		return Idle, err
	}
	if len(eligible) == 0 {
		return Idle, nil
	}

	task := eligible[0]
	log := e.log.With().Str("task_id", task.ID).Str("project", task.Project).Logger()

	claimed, err := e.claim(ctx, task)
	if err != nil {
		return Idle, err
	}
	if !claimed {
		e.contended.Add(1)
		log.Debug().Msg("claim lost")
		return Contended, nil
	}
	log.Info().Str("title", task.Title).Msg("task claimed")

	result, workErr := e.dispatch(ctx, task)

	outcome := Completed
	if workErr != nil {
		outcome = Failed
		err = task.Fail(e.now(), workErr, result)
	} else {
		err = task.Complete(e.now(), result)
	}
	if err != nil {
		return Idle, fmt.Errorf("finish task %s: %w", task.ID, err)
	}

	err = e.retry(ctx, "record outcome", func() error {
		return e.deps.Store.UpdateTask(ctx, task, store.AnyVersion)
	})
	if errors.Is(err, store.ErrTerminal) {
		e.contended.Add(1)
		log.Warn().Msg("task finished elsewhere, dropping result")
		return Contended, nil
	}
	if err != nil {
		return outcome, err
	}

	if outcome == Failed {
		e.failed.Add(1)
		log.Warn().Err(workErr).Msg("task failed")
	} else {
		e.completed.Add(1)
		log.Info().Msg("task completed")
	}
	e.record(ctx, task, outcome)
	e.report(ctx, task, outcome)
	return outcome, nil
}

// claim moves task to in_progress with a compare-and-update on the version
// that was read. It reports false when another claimant won.
func (e *Executor) claim(ctx context.Context, task *models.Task) (bool, error) {
	prev := task.Version
	if err := task.Claim(e.now()); err != nil {
		return false, nil
	}

	err := e.retry(ctx, "claim", func() error {
		return e.deps.Store.UpdateTask(ctx, task, prev)
	})
	switch {
	case errors.Is(err, store.ErrConflict), errors.Is(err, store.ErrTerminal), errors.Is(err, store.ErrNotFound):
		e.audit(ctx, audit.ActionClaim, task, audit.OutcomeContended, err.Error())
		return false, nil
	case err != nil:
		return false, err
	}
	e.audit(ctx, audit.ActionClaim, task, audit.OutcomeSuccess, fmt.Sprintf("claimed by %s", e.agent.ID))
	return true, nil
}

// dispatch runs the agent's work function. A panic is returned as an error.
func (e *Executor) dispatch(ctx context.Context, task *models.Task) (result *models.Result, err error) {
	w, err := e.deps.Workers.Get(e.agent.ID)
	if err != nil {
		return nil, err
	}

	workDir := filepath.Join(e.cfg.ProjectsDir, task.Project)
	var catcher panics.Catcher
	catcher.Try(func() {
		result, err = w.Do(ctx, task.Clone(), workDir)
	})
	if perr := catcher.Recovered().AsError(); perr != nil {
		return nil, fmt.Errorf("work function panicked: %w", perr)
	}
	return result, err
}

func (e *Executor) record(ctx context.Context, task *models.Task, outcome Outcome) {
	if outcome == Failed {
		e.audit(ctx, audit.ActionFail, task, audit.OutcomeError, task.Result.Error)
		return
	}
	e.audit(ctx, audit.ActionComplete, task, audit.OutcomeSuccess, fmt.Sprintf("%d artifacts", len(task.Result.Artifacts)))
}

// audit writes a decision record. The task state is already durable, so a
// failed audit write is logged and dropped.
func (e *Executor) audit(ctx context.Context, action string, task *models.Task, outcome, details string) {
	if e.deps.Audit == nil {
		return
	}
	inputs := map[string]interface{}{
		"task_id": task.ID,
		"agent":   e.agent.ID,
		"version": task.Version,
	}
	if _, err := e.deps.Audit.Record(ctx, action, inputs, outcome, task.ID, details); err != nil {
		e.log.Warn().Err(err).Str("task_id", task.ID).Str("action", action).Msg("audit write failed")
	}
}

// report notifies the agent's manager of a terminal transition.
func (e *Executor) report(ctx context.Context, task *models.Task, outcome Outcome) {
	if e.deps.Messages == nil || e.agent.ReportsTo == "" {
		return
	}
	msgType := messaging.TypeTaskCompleted
	if outcome == Failed {
		msgType = messaging.TypeTaskFailed
	}
	content := map[string]interface{}{
		"task_id": task.ID,
		"title":   task.Title,
		"project": task.Project,
		"status":  task.Status,
		"result":  task.Result,
	}
	if _, err := e.deps.Messages.Send(ctx, e.agent.ID, e.agent.ReportsTo, msgType, content); err != nil {
		e.log.Warn().Err(err).Str("task_id", task.ID).Msg("report to manager failed")
	}
}

// retry calls fn until it succeeds, returns a non-transient error or the
// attempt budget is spent. Delays double from RetryDelay up to MaxBackoff.
func (e *Executor) retry(ctx context.Context, op string, fn func() error) error {
	delay := e.cfg.RetryDelay
	attempts := e.cfg.StoreRetries
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; ; attempt++ {
		err = fn()
		if !store.IsTransient(err) {
			return err
		}
		if attempt >= attempts {
			return fmt.Errorf("%s after %d attempts: %w", op, attempt, err)
		}
		e.log.Warn().Err(err).Str("op", op).Int("attempt", attempt).Dur("delay", delay).Msg("store call failed, retrying")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
		delay = e.cfg.nextBackoff(delay)
	}
}
