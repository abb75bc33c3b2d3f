// Package sqlite provides the SQLite-backed store for aiorg.
//
// Several agent processes may open the same database file. WAL mode and a busy
// timeout let them share it; the version column on tasks is the claim guard.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fentz26/aiorg/internal/models"
	"github.com/fentz26/aiorg/internal/store"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	busyTimeout = 5000 // milliseconds
	maxRetries  = 5
	initialWait = 100 * time.Millisecond
)

// Store implements store.Backend on a SQLite database file.
type Store struct {
	db *sql.DB
}

var _ store.Backend = (*Store)(nil)

// New opens (creating if needed) the database at dbPath and runs migrations.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)", dbPath, busyTimeout)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.pingWithRetry(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) pingWithRetry(ctx context.Context) error {
	wait := initialWait
	var err error
	for i := 0; i < maxRetries; i++ {
		if err = s.db.PingContext(ctx); err == nil {
			return nil
		}
		if i < maxRetries-1 {
			time.Sleep(wait)
			wait *= 2
		}
	}
	return fmt.Errorf("ping db after %d retries: %w", maxRetries, err)
}

// migrate runs idempotent schema migrations.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT,
		project TEXT NOT NULL,
		assigned_to TEXT NOT NULL,
		created_by TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		priority INTEGER NOT NULL DEFAULT 2,
		dependencies TEXT NOT NULL DEFAULT '[]',
		estimated_hours REAL NOT NULL DEFAULT 1,
		result TEXT,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS projects (
		name TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		task_ids TEXT NOT NULL DEFAULT '[]',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		sender TEXT NOT NULL,
		recipient TEXT NOT NULL,
		type TEXT NOT NULL,
		content TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		timestamp TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS pdr (
		id TEXT PRIMARY KEY,
		action TEXT NOT NULL,
		inputs_hash TEXT NOT NULL,
		outcome TEXT NOT NULL,
		task_id TEXT,
		details TEXT,
		timestamp TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_assignee_status ON tasks(assigned_to, status);
	CREATE INDEX IF NOT EXISTS idx_tasks_project ON tasks(project);
	CREATE INDEX IF NOT EXISTS idx_messages_recipient ON messages(recipient, status, timestamp);
	CREATE INDEX IF NOT EXISTS idx_pdr_task_id ON pdr(task_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

func isConstraintError(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
	}
	return false
}

// --- Task Operations ---

const taskColumns = `id, title, description, project, assigned_to, created_by, status, priority, dependencies, estimated_hours, result, version, created_at, updated_at`

// CreateTask inserts a new task with version 1.
func (s *Store) CreateTask(ctx context.Context, t *models.Task) error {
	deps, result, err := encodeTaskFields(t)
	if err != nil {
		return err
	}
	t.Version = 1

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Title, t.Description, t.Project, t.AssignedTo, t.CreatedBy, string(t.Status), int(t.Priority),
		deps, t.EstimatedEffort, result, t.Version, models.FormatTime(t.CreatedAt), models.FormatTime(t.UpdatedAt),
	)
	if err != nil {
		if isConstraintError(err) {
			return fmt.Errorf("task %s: %w", t.ID, store.ErrAlreadyExists)
		}
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// GetTask retrieves a task by ID.
func (s *Store) GetTask(ctx context.Context, id string) (*models.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("task %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query task: %w", err)
	}
	return t, nil
}

// UpdateTask performs the conditional write. The WHERE clause carries both the
// version check and the terminal guard, so the check and write are one statement.
func (s *Store) UpdateTask(ctx context.Context, t *models.Task, expectedVersion int64) error {
	deps, result, err := encodeTaskFields(t)
	if err != nil {
		return err
	}

	var newVersion int64
	err = s.db.QueryRowContext(ctx, `
		UPDATE tasks SET
			title = ?, description = ?, project = ?, assigned_to = ?, created_by = ?,
			status = ?, priority = ?, dependencies = ?, estimated_hours = ?, result = ?,
			updated_at = ?, version = version + 1
		WHERE id = ?
			AND status NOT IN ('completed', 'failed')
			AND (? < 0 OR version = ?)
		RETURNING version`,
		t.Title, t.Description, t.Project, t.AssignedTo, t.CreatedBy,
		string(t.Status), int(t.Priority), deps, t.EstimatedEffort, result,
		models.FormatTime(t.UpdatedAt),
		t.ID, expectedVersion, expectedVersion,
	).Scan(&newVersion)

	if err == sql.ErrNoRows {
		return s.explainMiss(ctx, t.ID)
	}
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	t.Version = newVersion
	return nil
}

// explainMiss classifies an UPDATE that matched no row.
func (s *Store) explainMiss(ctx context.Context, id string) error {
	current, err := s.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if current.Status.IsTerminal() {
		return fmt.Errorf("task %s is %s: %w", id, current.Status, store.ErrTerminal)
	}
	return fmt.Errorf("task %s at version %d: %w", id, current.Version, store.ErrConflict)
}

// ScanTasks pushes the field filters into SQL and applies q.Where in Go.
func (s *Store) ScanTasks(ctx context.Context, q store.TaskQuery) ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`
	var conds []string
	var args []interface{}

	if q.Project != "" {
		conds = append(conds, "project = ?")
		args = append(args, q.Project)
	}
	if q.AssignedTo != "" {
		conds = append(conds, "assigned_to = ?")
		args = append(args, q.AssignedTo)
	}
	if len(q.Statuses) > 0 {
		marks := make([]string, len(q.Statuses))
		for i, st := range q.Statuses {
			marks[i] = "?"
			args = append(args, string(st))
		}
		conds = append(conds, "status IN ("+strings.Join(marks, ", ")+")")
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		if q.Where != nil && !q.Where(t) {
			continue
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	var (
		t                    models.Task
		status               string
		priority             int
		deps                 string
		result               sql.NullString
		description          sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(&t.ID, &t.Title, &description, &t.Project, &t.AssignedTo, &t.CreatedBy,
		&status, &priority, &deps, &t.EstimatedEffort, &result, &t.Version, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	t.Description = description.String
	t.Status = models.TaskStatus(status)
	t.Priority = models.Priority(priority)
	if err := json.Unmarshal([]byte(deps), &t.Dependencies); err != nil {
		return nil, fmt.Errorf("decode dependencies: %w", err)
	}
	if result.Valid && result.String != "" {
		t.Result = &models.Result{}
		if err := json.Unmarshal([]byte(result.String), t.Result); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
	}
	if t.CreatedAt, err = models.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if t.UpdatedAt, err = models.ParseTime(updatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func encodeTaskFields(t *models.Task) (string, sql.NullString, error) {
	deps := t.Dependencies
	if deps == nil {
		deps = []string{}
	}
	depsJSON, err := json.Marshal(deps)
	if err != nil {
		return "", sql.NullString{}, fmt.Errorf("encode dependencies: %w", err)
	}
	var result sql.NullString
	if t.Result != nil {
		data, err := json.Marshal(t.Result)
		if err != nil {
			return "", sql.NullString{}, fmt.Errorf("encode result: %w", err)
		}
		result = sql.NullString{String: string(data), Valid: true}
	}
	return string(depsJSON), result, nil
}

// --- Project Operations ---

// CreateProject registers a project. Names are unique.
func (s *Store) CreateProject(ctx context.Context, p *models.Project) error {
	ids, err := json.Marshal(nonNil(p.TaskIDs))
	if err != nil {
		return fmt.Errorf("encode task ids: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO projects (name, type, task_ids, created_at) VALUES (?, ?, ?, ?)`,
		p.Name, p.Type, string(ids), models.FormatTime(p.CreatedAt),
	)
	if err != nil {
		if isConstraintError(err) {
			return fmt.Errorf("project %s: %w", p.Name, store.ErrAlreadyExists)
		}
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

// GetProject retrieves a project by name.
func (s *Store) GetProject(ctx context.Context, name string) (*models.Project, error) {
	row := s.db.QueryRowContext(ctx, `SELECT name, type, task_ids, created_at FROM projects WHERE name = ?`, name)
	p, err := scanProject(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("project %s: %w", name, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query project: %w", err)
	}
	return p, nil
}

// ListProjects returns all projects, oldest first.
func (s *Store) ListProjects(ctx context.Context) ([]*models.Project, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, type, task_ids, created_at FROM projects ORDER BY created_at ASC, name ASC`)
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer rows.Close()

	var projects []*models.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func scanProject(row rowScanner) (*models.Project, error) {
	var p models.Project
	var ids, createdAt string
	if err := row.Scan(&p.Name, &p.Type, &ids, &createdAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(ids), &p.TaskIDs); err != nil {
		return nil, fmt.Errorf("decode task ids: %w", err)
	}
	var err error
	if p.CreatedAt, err = models.ParseTime(createdAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
