package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/fentz26/aiorg/internal/models"
	"github.com/fentz26/aiorg/internal/store"
)

// AgentStatus is one agent's line in the standup.
type AgentStatus struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	ReportsTo string `json:"reportsTo,omitempty"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
}

// ProjectProgress is one project's line in the standup.
type ProjectProgress struct {
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	TotalTasks  int     `json:"totalTasks"`
	Completed   int     `json:"completed"`
	SuccessRate float64 `json:"successRate"`
}

// Blocker is a failed task that stops its dependents.
type Blocker struct {
	TaskID     string `json:"taskId"`
	Title      string `json:"title"`
	Project    string `json:"project"`
	AssignedTo string `json:"assignedTo"`
	Error      string `json:"error"`
}

// Standup is the organization-wide status report.
type Standup struct {
	Date          time.Time                 `json:"date"`
	TotalTasks    int                       `json:"totalTasks"`
	TasksByStatus map[models.TaskStatus]int `json:"tasksByStatus"`
	Agents        []AgentStatus             `json:"agents"`
	Projects      []ProjectProgress         `json:"projects"`
	Blockers      []Blocker                 `json:"blockers"`
}

// Organization builds the standup across every project. Every registered
// agent is listed, idle ones with zero counts.
func (m *Monitor) Organization(ctx context.Context) (*Standup, error) {
	tasks, err := m.store.ScanTasks(ctx, store.TaskQuery{})
	if err != nil {
		return nil, fmt.Errorf("scan tasks: %w", err)
	}
	projects, err := m.store.ListProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}

	s := &Standup{
		Date:          m.now().UTC(),
		TotalTasks:    len(tasks),
		TasksByStatus: make(map[models.TaskStatus]int, len(models.AllStatuses)),
		Agents:        make([]AgentStatus, 0, len(m.org.Agents)),
		Projects:      make([]ProjectProgress, 0, len(projects)),
		Blockers:      []Blocker{},
	}
	for _, st := range models.AllStatuses {
		s.TasksByStatus[st] = 0
	}

	agentIdx := make(map[string]int, len(m.org.Agents))
	for _, a := range m.org.Agents {
		agentIdx[a.ID] = len(s.Agents)
		s.Agents = append(s.Agents, AgentStatus{ID: a.ID, Role: a.Role, ReportsTo: a.ReportsTo})
	}

	byProject := make(map[string][2]int)
	for _, t := range tasks {
		s.TasksByStatus[t.Status]++

		counts := byProject[t.Project]
		counts[0]++
		if t.Status == models.TaskStatusCompleted {
			counts[1]++
		}
		byProject[t.Project] = counts

		if t.Status == models.TaskStatusFailed {
			b := Blocker{TaskID: t.ID, Title: t.Title, Project: t.Project, AssignedTo: t.AssignedTo}
			if t.Result != nil {
				b.Error = t.Result.Error
			}
			s.Blockers = append(s.Blockers, b)
		}

		i, ok := agentIdx[t.AssignedTo]
		if !ok {
			continue
		}
		switch t.Status {
		case models.TaskStatusPending:
			s.Agents[i].Pending++
		case models.TaskStatusInProgress:
			s.Agents[i].Active++
		case models.TaskStatusCompleted:
			s.Agents[i].Completed++
		case models.TaskStatusFailed:
			s.Agents[i].Failed++
		}
	}

	for _, p := range projects {
		counts := byProject[p.Name]
		s.Projects = append(s.Projects, ProjectProgress{
			Name:        p.Name,
			Type:        p.Type,
			TotalTasks:  counts[0],
			Completed:   counts[1],
			SuccessRate: successRate(counts[1], counts[0]),
		})
	}
	return s, nil
}
