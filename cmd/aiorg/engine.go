package main

import (
	"context"
	"encoding/json"

	"github.com/fentz26/aiorg/internal/controlplane"
	"github.com/fentz26/aiorg/internal/models"
	"github.com/fentz26/aiorg/internal/monitor"
	"github.com/fentz26/aiorg/internal/store"
)

// engine is what read/write commands need. The local service and the
// remote API client both provide it.
type engine interface {
	CreateProject(ctx context.Context, name, projectType string) (*models.Project, []*models.Task, error)
	ListProjects(ctx context.Context) ([]*models.Project, error)
	ProjectStatus(ctx context.Context, name string) (*monitor.Summary, error)
	ProjectReport(ctx context.Context, name string) (string, error)
	Standup(ctx context.Context) (*monitor.Standup, error)
	ListTasks(ctx context.Context, project, agent, status string) ([]*models.Task, error)
	GetTask(ctx context.Context, id string) (*models.Task, error)
	TaskHistory(ctx context.Context, id string) ([]*models.AuditEntry, error)
	EligibleTasks(ctx context.Context, agentID string) ([]*models.Task, error)
	SendMessage(ctx context.Context, from, to, msgType string, content json.RawMessage) (string, error)
	PendingMessages(ctx context.Context, agent string) ([]*models.Message, error)
	Acknowledge(ctx context.Context, id string) error
}

var (
	_ engine = (*controlplane.Service)(nil)
	_ engine = (*remote)(nil)
)

// localService opens the configured backend and wraps it in a Service. The
// returned closer releases the backend.
func localService(ctx context.Context) (*controlplane.Service, store.Backend, error) {
	backend, err := openBackend(ctx, env)
	if err != nil {
		return nil, nil, err
	}
	return controlplane.NewService(backend, registry), backend, nil
}

// withEngine runs fn against the daemon when --api is set, otherwise against
// the local store.
func withEngine(ctx context.Context, fn func(engine) error) error {
	if apiAddr != "" {
		return fn(newRemote(apiAddr))
	}
	svc, backend, err := localService(ctx)
	if err != nil {
		return err
	}
	defer backend.Close()
	return fn(svc)
}
