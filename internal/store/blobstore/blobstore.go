// Package blobstore keeps one JSON object per record in a storage.Storage.
//
// Layout:
//
//	tasks/<id>.json
//	projects/<name>.json
//	messages/<to>_<id>.json
//	audit/<id>.json
//
// Task updates are compare-and-swap on the object token, so correctness across
// processes is exactly that of the underlying Storage's conditional write.
package blobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/fentz26/aiorg/internal/models"
	"github.com/fentz26/aiorg/internal/storage"
	"github.com/fentz26/aiorg/internal/store"
)

// maxBlindRetries bounds AnyVersion writes and acknowledgements that keep
// losing the token race.
const maxBlindRetries = 8

// Store implements store.Backend over a storage.Storage.
type Store struct {
	st storage.Storage
}

var _ store.Backend = (*Store)(nil)

// New wraps st.
func New(st storage.Storage) *Store {
	return &Store{st: st}
}

func (s *Store) Ping(ctx context.Context) error {
	_, err := s.st.Exists(ctx, "tasks")
	return err
}

func (s *Store) Close() error { return nil }

func taskPath(id string) string { return path.Join("tasks", url.PathEscape(id)+".json") }
func projectPath(name string) string { return path.Join("projects", url.PathEscape(name)+".json") }
func messagePath(to, id string) string { return path.Join("messages", url.PathEscape(to)+"_"+id+".json") }
func auditPath(id string) string { return path.Join("audit", url.PathEscape(id)+".json") }

func (s *Store) readTask(ctx context.Context, id string) (*models.Task, string, error) {
	data, token, err := s.st.Read(ctx, taskPath(id))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, "", fmt.Errorf("task %s: %w", id, store.ErrNotFound)
		}
		return nil, "", err
	}
	var t models.Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, "", fmt.Errorf("decode task %s: %w", id, err)
	}
	return &t, token, nil
}

func (s *Store) CreateTask(ctx context.Context, t *models.Task) error {
	t.Version = 1
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	if _, err := s.st.Write(ctx, taskPath(t.ID), data, storage.Condition{IfNoneMatch: true}); err != nil {
		if errors.Is(err, storage.ErrPreconditionFailed) {
			return fmt.Errorf("task %s: %w", t.ID, store.ErrAlreadyExists)
		}
		return fmt.Errorf("write task: %w", err)
	}
	return nil
}

func (s *Store) GetTask(ctx context.Context, id string) (*models.Task, error) {
	t, _, err := s.readTask(ctx, id)
	return t, err
}

func (s *Store) UpdateTask(ctx context.Context, t *models.Task, expectedVersion int64) error {
	for attempt := 0; attempt < maxBlindRetries; attempt++ {
		current, token, err := s.readTask(ctx, t.ID)
		if err != nil {
			return err
		}
		if current.Status.IsTerminal() {
			return fmt.Errorf("task %s is %s: %w", t.ID, current.Status, store.ErrTerminal)
		}
		if expectedVersion != store.AnyVersion && current.Version != expectedVersion {
			return fmt.Errorf("task %s at version %d: %w", t.ID, current.Version, store.ErrConflict)
		}

		next := t.Clone()
		next.Version = current.Version + 1
		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("encode task: %w", err)
		}
		_, err = s.st.Write(ctx, taskPath(t.ID), data, storage.Condition{IfMatch: token})
		if err == nil {
			t.Version = next.Version
			return nil
		}
		if !errors.Is(err, storage.ErrPreconditionFailed) {
			return fmt.Errorf("write task: %w", err)
		}
		// Lost the token race. A versioned write re-reads to classify it; an
		// AnyVersion write simply tries again.
	}
	return fmt.Errorf("task %s: %w", t.ID, store.ErrConflict)
}

func (s *Store) ScanTasks(ctx context.Context, q store.TaskQuery) ([]*models.Task, error) {
	paths, err := s.st.List(ctx, "tasks")
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	var tasks []*models.Task
	for _, p := range paths {
		if !strings.HasSuffix(p, ".json") {
			continue
		}
		data, _, err := s.st.Read(ctx, p)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		var t models.Task
		if err := json.Unmarshal(data, &t); err != nil {
			return nil, fmt.Errorf("decode %s: %w", p, err)
		}
		if q.Matches(&t) {
			tasks = append(tasks, &t)
		}
	}
	store.SortTasks(tasks)
	return tasks, nil
}

func (s *Store) CreateProject(ctx context.Context, p *models.Project) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode project: %w", err)
	}
	if _, err := s.st.Write(ctx, projectPath(p.Name), data, storage.Condition{IfNoneMatch: true}); err != nil {
		if errors.Is(err, storage.ErrPreconditionFailed) {
			return fmt.Errorf("project %s: %w", p.Name, store.ErrAlreadyExists)
		}
		return fmt.Errorf("write project: %w", err)
	}
	return nil
}

func (s *Store) GetProject(ctx context.Context, name string) (*models.Project, error) {
	data, _, err := s.st.Read(ctx, projectPath(name))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("project %s: %w", name, store.ErrNotFound)
		}
		return nil, err
	}
	var p models.Project
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode project %s: %w", name, err)
	}
	return &p, nil
}

func (s *Store) ListProjects(ctx context.Context) ([]*models.Project, error) {
	paths, err := s.st.List(ctx, "projects")
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	var projects []*models.Project
	for _, p := range paths {
		name, err := url.PathUnescape(strings.TrimSuffix(path.Base(p), ".json"))
		if err != nil {
			continue
		}
		proj, err := s.GetProject(ctx, name)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, err
		}
		projects = append(projects, proj)
	}
	store.SortProjects(projects)
	return projects, nil
}

func (s *Store) AppendMessage(ctx context.Context, m *models.Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if _, err := s.st.Write(ctx, messagePath(m.To, m.ID), data, storage.Condition{IfNoneMatch: true}); err != nil {
		if errors.Is(err, storage.ErrPreconditionFailed) {
			return fmt.Errorf("message %s: %w", m.ID, store.ErrAlreadyExists)
		}
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

func (s *Store) PendingMessages(ctx context.Context, to string) ([]*models.Message, error) {
	paths, err := s.st.List(ctx, "messages")
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	prefix := url.PathEscape(to) + "_"

	var msgs []*models.Message
	for _, p := range paths {
		if !strings.HasPrefix(path.Base(p), prefix) {
			continue
		}
		m, _, err := s.readMessage(ctx, p)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if m.To == to && m.Status == models.MessageStatusPending {
			msgs = append(msgs, m)
		}
	}
	store.SortMessages(msgs)
	return msgs, nil
}

func (s *Store) readMessage(ctx context.Context, p string) (*models.Message, string, error) {
	data, token, err := s.st.Read(ctx, p)
	if err != nil {
		return nil, "", err
	}
	var m models.Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, "", fmt.Errorf("decode %s: %w", p, err)
	}
	return &m, token, nil
}

func (s *Store) MarkConsumed(ctx context.Context, id string) error {
	paths, err := s.st.List(ctx, "messages")
	if err != nil {
		return fmt.Errorf("list messages: %w", err)
	}
	suffix := "_" + id + ".json"
	for _, p := range paths {
		if !strings.HasSuffix(p, suffix) {
			continue
		}
		for attempt := 0; attempt < maxBlindRetries; attempt++ {
			m, token, err := s.readMessage(ctx, p)
			if err != nil {
				return err
			}
			if m.Status == models.MessageStatusConsumed {
				return nil
			}
			m.Status = models.MessageStatusConsumed
			data, err := json.Marshal(m)
			if err != nil {
				return fmt.Errorf("encode message: %w", err)
			}
			_, err = s.st.Write(ctx, p, data, storage.Condition{IfMatch: token})
			if err == nil {
				return nil
			}
			if !errors.Is(err, storage.ErrPreconditionFailed) {
				return fmt.Errorf("write message: %w", err)
			}
		}
		return fmt.Errorf("message %s: %w", id, store.ErrConflict)
	}
	return fmt.Errorf("message %s: %w", id, store.ErrNotFound)
}

func (s *Store) WriteAudit(ctx context.Context, e *models.AuditEntry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode audit entry: %w", err)
	}
	if _, err := s.st.Write(ctx, auditPath(e.ID), data, storage.Condition{IfNoneMatch: true}); err != nil {
		return fmt.Errorf("write audit entry: %w", err)
	}
	return nil
}

func (s *Store) ListAudit(ctx context.Context, taskID string) ([]*models.AuditEntry, error) {
	paths, err := s.st.List(ctx, "audit")
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	var entries []*models.AuditEntry
	for _, p := range paths {
		data, _, err := s.st.Read(ctx, p)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return nil, err
		}
		var e models.AuditEntry
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("decode %s: %w", p, err)
		}
		if taskID == "" || e.TaskID == taskID {
			entries = append(entries, &e)
		}
	}
	store.SortAudit(entries)
	return entries, nil
}
