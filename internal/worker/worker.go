// Package worker holds the per-role work functions dispatched by executors.
package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/fentz26/aiorg/internal/models"
	"github.com/fentz26/aiorg/internal/org"
)

// ErrNoWorker is returned when an agent has no registered work function.
var ErrNoWorker = errors.New("no worker for agent")

// Worker performs one task. workDir is the project's working directory.
// An error marks the task failed; the returned Result may still carry
// partial output.
type Worker interface {
	Do(ctx context.Context, task *models.Task, workDir string) (*models.Result, error)
}

// Func adapts an ordinary function to Worker.
type Func func(ctx context.Context, task *models.Task, workDir string) (*models.Result, error)

// Do calls f.
func (f Func) Do(ctx context.Context, task *models.Task, workDir string) (*models.Result, error) {
	return f(ctx, task, workDir)
}

// Registry maps agent ids to workers.
type Registry struct {
	workers map[string]Worker
}

// NewRegistry builds one worker per agent from its worker setting.
func NewRegistry(cfg *org.Config) (*Registry, error) {
	r := &Registry{workers: make(map[string]Worker, len(cfg.Agents))}
	for _, agent := range cfg.Agents {
		switch agent.Worker.Kind {
		case "", org.WorkerBrief:
			r.workers[agent.ID] = NewBrief(agent)
		case org.WorkerExec:
			r.workers[agent.ID] = NewExec(agent)
		default:
			return nil, fmt.Errorf("agent %s: unknown worker kind %q", agent.ID, agent.Worker.Kind)
		}
	}
	return r, nil
}

// Register replaces the worker for agentID.
func (r *Registry) Register(agentID string, w Worker) {
	r.workers[agentID] = w
}

// Get returns the worker for agentID.
func (r *Registry) Get(agentID string) (Worker, error) {
	w, ok := r.workers[agentID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", agentID, ErrNoWorker)
	}
	return w, nil
}
