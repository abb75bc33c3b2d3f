// Package monitor aggregates task records into project and organization
// summaries. It only reads; every result is a best-effort snapshot.
package monitor

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/fentz26/aiorg/internal/models"
	"github.com/fentz26/aiorg/internal/org"
	"github.com/fentz26/aiorg/internal/store"
)

// Store is what the monitor reads.
type Store interface {
	store.TaskStore
	store.ProjectStore
}

// TaskDigest is the per-task line of a Summary.
type TaskDigest struct {
	ID         string            `json:"id"`
	Title      string            `json:"title"`
	AssignedTo string            `json:"assignedTo"`
	Status     models.TaskStatus `json:"status"`
	Priority   models.Priority   `json:"priority"`
	Artifacts  []string          `json:"artifacts"`
	Error      string            `json:"error,omitempty"`
}

// Summary is the status of one project.
type Summary struct {
	Project         string                               `json:"project"`
	TotalTasks      int                                  `json:"totalTasks"`
	CompletedTasks  int                                  `json:"completedTasks"`
	SuccessRate     float64                              `json:"successRate"`
	StatusBreakdown map[models.TaskStatus]int            `json:"statusBreakdown"`
	AgentWorkload   map[string]map[models.TaskStatus]int `json:"agentWorkload"`
	Tasks           []TaskDigest                         `json:"tasks"`
}

// Monitor produces summaries over a store.
type Monitor struct {
	store Store
	org   *org.Config
	now   func() time.Time
}

// New creates a monitor.
func New(s Store, registry *org.Config) *Monitor {
	return &Monitor{store: s, org: registry, now: time.Now}
}

// Status summarizes project. Tasks are listed in the order the project
// registered them. Unknown projects return store.ErrNotFound.
func (m *Monitor) Status(ctx context.Context, project string) (*Summary, error) {
	p, err := m.store.GetProject(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("project %s: %w", project, err)
	}
	tasks, err := m.store.ScanTasks(ctx, store.TaskQuery{Project: project})
	if err != nil {
		return nil, fmt.Errorf("scan project %s: %w", project, err)
	}
	return summarize(project, orderByProject(p, tasks)), nil
}

func summarize(project string, tasks []*models.Task) *Summary {
	s := &Summary{
		Project:         project,
		TotalTasks:      len(tasks),
		StatusBreakdown: make(map[models.TaskStatus]int),
		AgentWorkload:   make(map[string]map[models.TaskStatus]int),
		Tasks:           make([]TaskDigest, 0, len(tasks)),
	}
	for _, t := range tasks {
		s.StatusBreakdown[t.Status]++
		if s.AgentWorkload[t.AssignedTo] == nil {
			s.AgentWorkload[t.AssignedTo] = make(map[models.TaskStatus]int)
		}
		s.AgentWorkload[t.AssignedTo][t.Status]++
		if t.Status == models.TaskStatusCompleted {
			s.CompletedTasks++
		}
		s.Tasks = append(s.Tasks, digest(t))
	}
	s.SuccessRate = successRate(s.CompletedTasks, s.TotalTasks)
	return s
}

func digest(t *models.Task) TaskDigest {
	d := TaskDigest{
		ID:         t.ID,
		Title:      t.Title,
		AssignedTo: t.AssignedTo,
		Status:     t.Status,
		Priority:   t.Priority,
		Artifacts:  []string{},
	}
	if t.Result != nil {
		d.Artifacts = append(d.Artifacts, t.Result.Artifacts...)
		d.Error = t.Result.Error
	}
	return d
}

// successRate is completed/total as a percentage rounded to one decimal.
func successRate(completed, total int) float64 {
	if total == 0 {
		return 0
	}
	rate := float64(completed) / float64(total) * 100
	return math.Round(rate*10) / 10
}

// orderByProject puts tasks in the project's registration order. Tasks the
// project does not list follow in scan order.
func orderByProject(p *models.Project, tasks []*models.Task) []*models.Task {
	byID := make(map[string]*models.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}
	ordered := make([]*models.Task, 0, len(tasks))
	for _, id := range p.TaskIDs {
		if t, ok := byID[id]; ok {
			ordered = append(ordered, t)
			delete(byID, id)
		}
	}
	for _, t := range tasks {
		if _, ok := byID[t.ID]; ok {
			ordered = append(ordered, t)
		}
	}
	return ordered
}
