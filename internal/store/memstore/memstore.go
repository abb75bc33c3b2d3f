// Package memstore is an in-process store.Backend for tests and single-process runs.
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/fentz26/aiorg/internal/models"
	"github.com/fentz26/aiorg/internal/store"
)

// Store keeps every record in maps guarded by one mutex. Records are cloned on
// the way in and out.
type Store struct {
	mu       sync.Mutex
	tasks    map[string]*models.Task
	projects map[string]*models.Project
	messages map[string]*models.Message
	audit    []*models.AuditEntry
}

var _ store.Backend = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		tasks:    make(map[string]*models.Task),
		projects: make(map[string]*models.Project),
		messages: make(map[string]*models.Message),
	}
}

func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close() error               { return nil }

func (s *Store) CreateTask(_ context.Context, t *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[t.ID]; ok {
		return fmt.Errorf("task %s: %w", t.ID, store.ErrAlreadyExists)
	}
	t.Version = 1
	s.tasks[t.ID] = t.Clone()
	return nil
}

func (s *Store) GetTask(_ context.Context, id string) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, store.ErrNotFound)
	}
	return t.Clone(), nil
}

func (s *Store) UpdateTask(_ context.Context, t *models.Task, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.tasks[t.ID]
	if !ok {
		return fmt.Errorf("task %s: %w", t.ID, store.ErrNotFound)
	}
	if current.Status.IsTerminal() {
		return fmt.Errorf("task %s is %s: %w", t.ID, current.Status, store.ErrTerminal)
	}
	if expectedVersion != store.AnyVersion && current.Version != expectedVersion {
		return fmt.Errorf("task %s at version %d: %w", t.ID, current.Version, store.ErrConflict)
	}
	next := t.Clone()
	next.Version = current.Version + 1
	s.tasks[t.ID] = next
	t.Version = next.Version
	return nil
}

func (s *Store) ScanTasks(_ context.Context, q store.TaskQuery) ([]*models.Task, error) {
	s.mu.Lock()
	var out []*models.Task
	for _, t := range s.tasks {
		out = append(out, t.Clone())
	}
	s.mu.Unlock()

	// Where runs outside the lock; it may call back into the store.
	matched := out[:0]
	for _, t := range out {
		if q.Matches(t) {
			matched = append(matched, t)
		}
	}
	store.SortTasks(matched)
	return matched, nil
}

func (s *Store) CreateProject(_ context.Context, p *models.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.projects[p.Name]; ok {
		return fmt.Errorf("project %s: %w", p.Name, store.ErrAlreadyExists)
	}
	c := *p
	c.TaskIDs = append([]string(nil), p.TaskIDs...)
	s.projects[p.Name] = &c
	return nil
}

func (s *Store) GetProject(_ context.Context, name string) (*models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projects[name]
	if !ok {
		return nil, fmt.Errorf("project %s: %w", name, store.ErrNotFound)
	}
	c := *p
	c.TaskIDs = append([]string(nil), p.TaskIDs...)
	return &c, nil
}

func (s *Store) ListProjects(_ context.Context) ([]*models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*models.Project, 0, len(s.projects))
	for _, p := range s.projects {
		c := *p
		c.TaskIDs = append([]string(nil), p.TaskIDs...)
		out = append(out, &c)
	}
	store.SortProjects(out)
	return out, nil
}

func (s *Store) AppendMessage(_ context.Context, m *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.messages[m.ID]; ok {
		return fmt.Errorf("message %s: %w", m.ID, store.ErrAlreadyExists)
	}
	c := *m
	c.Content = append([]byte(nil), m.Content...)
	s.messages[m.ID] = &c
	return nil
}

func (s *Store) PendingMessages(_ context.Context, to string) ([]*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.Message
	for _, m := range s.messages {
		if m.To == to && m.Status == models.MessageStatusPending {
			c := *m
			c.Content = append([]byte(nil), m.Content...)
			out = append(out, &c)
		}
	}
	store.SortMessages(out)
	return out, nil
}

func (s *Store) MarkConsumed(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[id]
	if !ok {
		return fmt.Errorf("message %s: %w", id, store.ErrNotFound)
	}
	m.Status = models.MessageStatusConsumed
	return nil
}

func (s *Store) WriteAudit(_ context.Context, e *models.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *e
	s.audit = append(s.audit, &c)
	return nil
}

func (s *Store) ListAudit(_ context.Context, taskID string) ([]*models.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.AuditEntry
	for _, e := range s.audit {
		if taskID == "" || e.TaskID == taskID {
			c := *e
			out = append(out, &c)
		}
	}
	store.SortAudit(out)
	return out, nil
}
