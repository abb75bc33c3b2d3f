// Package scheduler answers "what can this agent work on now".
//
// EligibleTasks is a pure read. Claiming is the executor's job; two agents may
// see the same task as eligible and the store's conditional update decides.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/fentz26/aiorg/internal/logging"
	"github.com/fentz26/aiorg/internal/models"
	"github.com/fentz26/aiorg/internal/org"
	"github.com/fentz26/aiorg/internal/store"
)

// ErrUnknownAgent is returned for agent ids missing from the registry.
var ErrUnknownAgent = errors.New("unknown agent")

// claimable statuses. in_progress is included so an agent can resume work it
// claimed before a restart.
var claimable = []models.TaskStatus{models.TaskStatusPending, models.TaskStatusInProgress}

// Scheduler computes dependency-gated, priority-ordered work lists.
type Scheduler struct {
	store store.TaskStore
	org   *org.Config
	log   zerolog.Logger
}

// New creates a scheduler over s for the agents in registry.
func New(s store.TaskStore, registry *org.Config) *Scheduler {
	return &Scheduler{
		store: s,
		org:   registry,
		log:   logging.Component("scheduler"),
	}
}

// EligibleTasks returns the tasks agentID may claim, most urgent first:
// priority descending, then created_at ascending, then id.
func (sch *Scheduler) EligibleTasks(ctx context.Context, agentID string) ([]*models.Task, error) {
	if !sch.org.HasAgent(agentID) {
		return nil, fmt.Errorf("%s: %w", agentID, ErrUnknownAgent)
	}

	candidates, err := sch.store.ScanTasks(ctx, store.TaskQuery{
		AssignedTo: agentID,
		Statuses:   claimable,
	})
	if err != nil {
		return nil, fmt.Errorf("scan tasks for %s: %w", agentID, err)
	}

	deps := newDepResolver(sch.store)
	eligible := candidates[:0]
	for _, task := range candidates {
		ok, err := deps.allCompleted(ctx, task)
		if err != nil {
			return nil, err
		}
		if ok {
			eligible = append(eligible, task)
		}
	}

	Order(eligible)
	return eligible, nil
}

// Next returns the most urgent eligible task, or nil when there is none.
func (sch *Scheduler) Next(ctx context.Context, agentID string) (*models.Task, error) {
	tasks, err := sch.EligibleTasks(ctx, agentID)
	if err != nil || len(tasks) == 0 {
		return nil, err
	}
	return tasks[0], nil
}

// Order sorts tasks into scheduling order.
func Order(tasks []*models.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// depResolver caches dependency statuses for one EligibleTasks call.
type depResolver struct {
	store  store.TaskStore
	status map[string]models.TaskStatus
	log    zerolog.Logger
}

func newDepResolver(s store.TaskStore) *depResolver {
	return &depResolver{
		store:  s,
		status: make(map[string]models.TaskStatus),
		log:    logging.Component("scheduler"),
	}
}

// allCompleted reports whether every dependency of task is completed. A
// dependency that does not resolve counts as unmet.
func (r *depResolver) allCompleted(ctx context.Context, task *models.Task) (bool, error) {
	for _, id := range task.Dependencies {
		st, ok := r.status[id]
		if !ok {
			dep, err := r.store.GetTask(ctx, id)
			switch {
			case errors.Is(err, store.ErrNotFound):
				r.log.Warn().Str("task_id", task.ID).Str("dependency", id).Msg("dependency does not resolve")
				st = ""
			case err != nil:
				return false, fmt.Errorf("resolve dependency %s of %s: %w", id, task.ID, err)
			default:
				st = dep.Status
			}
			r.status[id] = st
		}
		if st != models.TaskStatusCompleted {
			return false, nil
		}
	}
	return true, nil
}
