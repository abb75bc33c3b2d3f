// Package controlplane provides the HTTP API and service layer for aiorg.
package controlplane

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fentz26/aiorg/internal/audit"
	"github.com/fentz26/aiorg/internal/executor"
	"github.com/fentz26/aiorg/internal/graph"
	"github.com/fentz26/aiorg/internal/messaging"
	"github.com/fentz26/aiorg/internal/models"
	"github.com/fentz26/aiorg/internal/monitor"
	"github.com/fentz26/aiorg/internal/org"
	"github.com/fentz26/aiorg/internal/scheduler"
	"github.com/fentz26/aiorg/internal/store"
)

// Service provides the control plane business logic.
type Service struct {
	store     store.Backend
	org       *org.Config
	builder   *graph.Builder
	scheduler *scheduler.Scheduler
	monitor   *monitor.Monitor
	messages  *messaging.Channel
	pdr       *audit.PDRWriter
	pool      *executor.Pool
}

// NewService wires the engine components over one backend.
func NewService(s store.Backend, registry *org.Config) *Service {
	pdr := audit.NewPDRWriter(s)
	return &Service{
		store:     s,
		org:       registry,
		builder:   graph.NewBuilder(s, registry, pdr),
		scheduler: scheduler.New(s, registry),
		monitor:   monitor.New(s, registry),
		messages:  messaging.New(s),
		pdr:       pdr,
	}
}

// AttachPool exposes executor stats through the API.
func (s *Service) AttachPool(p *executor.Pool) {
	s.pool = p
}

// Scheduler returns the scheduler the service reads eligibility from.
func (s *Service) Scheduler() *scheduler.Scheduler { return s.scheduler }

// Messages returns the service's message channel.
func (s *Service) Messages() *messaging.Channel { return s.messages }

// Audit returns the service's decision record writer.
func (s *Service) Audit() *audit.PDRWriter { return s.pdr }

// Ping checks the backend.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// --- Agents ---

// Agents returns the organization registry in declaration order.
func (s *Service) Agents() []org.Agent {
	return s.org.Agents
}

// EligibleTasks lists what agentID may claim now.
func (s *Service) EligibleTasks(ctx context.Context, agentID string) ([]*models.Task, error) {
	return s.scheduler.EligibleTasks(ctx, agentID)
}

// Stats returns executor counters, or nil when no pool runs in this process.
func (s *Service) Stats() []executor.Stats {
	if s.pool == nil {
		return nil
	}
	return s.pool.Stats()
}

// --- Projects ---

// CreateProject expands the template for projectType into tasks.
func (s *Service) CreateProject(ctx context.Context, name, projectType string) (*models.Project, []*models.Task, error) {
	tasks, err := s.builder.Build(ctx, name, projectType)
	if err != nil {
		return nil, nil, err
	}
	p, err := s.store.GetProject(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	return p, tasks, nil
}

// ListProjects returns every project.
func (s *Service) ListProjects(ctx context.Context) ([]*models.Project, error) {
	return s.store.ListProjects(ctx)
}

// ProjectStatus summarizes one project.
func (s *Service) ProjectStatus(ctx context.Context, name string) (*monitor.Summary, error) {
	return s.monitor.Status(ctx, name)
}

// ProjectReport renders the markdown completion report.
func (s *Service) ProjectReport(ctx context.Context, name string) (string, error) {
	return s.monitor.Report(ctx, name)
}

// Standup builds the organization-wide status.
func (s *Service) Standup(ctx context.Context) (*monitor.Standup, error) {
	return s.monitor.Organization(ctx)
}

// --- Tasks ---

// ListTasks filters tasks by project, assignee and status. Empty filters
// match everything.
func (s *Service) ListTasks(ctx context.Context, project, agent, status string) ([]*models.Task, error) {
	q := store.TaskQuery{Project: project, AssignedTo: agent}
	if status != "" {
		st := models.TaskStatus(status)
		if !st.Valid() {
			return nil, fmt.Errorf("status %q: %w", status, ErrInvalidRequest)
		}
		q.Statuses = []models.TaskStatus{st}
	}
	return s.store.ScanTasks(ctx, q)
}

// GetTask retrieves a task by ID.
func (s *Service) GetTask(ctx context.Context, id string) (*models.Task, error) {
	return s.store.GetTask(ctx, id)
}

// TaskHistory returns the audit trail of a task, oldest first.
func (s *Service) TaskHistory(ctx context.Context, id string) ([]*models.AuditEntry, error) {
	if _, err := s.store.GetTask(ctx, id); err != nil {
		return nil, err
	}
	return s.pdr.History(ctx, id)
}

// --- Messages ---

// SendMessage posts a message. Sender and recipient must be registered
// agents or the system creator.
func (s *Service) SendMessage(ctx context.Context, from, to, msgType string, content json.RawMessage) (string, error) {
	for _, id := range []string{from, to} {
		if id != org.SystemCreator && !s.org.HasAgent(id) {
			return "", fmt.Errorf("agent %q: %w", id, ErrInvalidRequest)
		}
	}
	if msgType == "" {
		return "", fmt.Errorf("message type is required: %w", ErrInvalidRequest)
	}
	if len(content) == 0 {
		content = json.RawMessage("null")
	}
	return s.messages.Send(ctx, from, to, msgType, content)
}

// PendingMessages lists an agent's unacknowledged messages.
func (s *Service) PendingMessages(ctx context.Context, agent string) ([]*models.Message, error) {
	return s.messages.FetchPending(ctx, agent)
}

// Acknowledge marks a message consumed.
func (s *Service) Acknowledge(ctx context.Context, id string) error {
	return s.messages.Acknowledge(ctx, id)
}
