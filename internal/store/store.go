// Package store defines the durable shared record behind aiorg.
//
// Every backend offers create, get, compare-and-update and scan. Concurrency
// between agents (in one process or many) is mediated entirely by
// UpdateTask's version check; no backend relies on in-process locking for
// correctness across processes unless documented.
package store

import (
	"context"
	"errors"
	"io"

	"github.com/fentz26/aiorg/internal/models"
)

// Sentinel errors shared by all backends.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	// ErrConflict means the stored version differs from the expected one.
	ErrConflict = errors.New("version conflict")
	// ErrTerminal means the stored task is completed or failed and cannot change.
	ErrTerminal = errors.New("task is terminal")
)

// AnyVersion skips the version comparison in UpdateTask. Terminal records are
// still protected.
const AnyVersion int64 = -1

// TaskStore is the task record abstraction.
type TaskStore interface {
	// CreateTask inserts t with version 1. Returns ErrAlreadyExists on id reuse.
	CreateTask(ctx context.Context, t *models.Task) error
	// GetTask returns ErrNotFound for unknown ids.
	GetTask(ctx context.Context, id string) (*models.Task, error)
	// UpdateTask writes t if the stored version equals expectedVersion (or
	// expectedVersion is AnyVersion) and the stored status is not terminal.
	// On success t.Version is advanced.
	UpdateTask(ctx context.Context, t *models.Task, expectedVersion int64) error
	// ScanTasks returns matching tasks ordered by created_at, then id.
	ScanTasks(ctx context.Context, q TaskQuery) ([]*models.Task, error)
}

// ProjectStore holds project registrations.
type ProjectStore interface {
	CreateProject(ctx context.Context, p *models.Project) error
	GetProject(ctx context.Context, name string) (*models.Project, error)
	ListProjects(ctx context.Context) ([]*models.Project, error)
}

// MessageStore is the durable mailbox keyed by recipient.
type MessageStore interface {
	AppendMessage(ctx context.Context, m *models.Message) error
	// PendingMessages returns unconsumed messages for to, ordered by timestamp then id.
	PendingMessages(ctx context.Context, to string) ([]*models.Message, error)
	// MarkConsumed is idempotent. Returns ErrNotFound for unknown ids.
	MarkConsumed(ctx context.Context, id string) error
}

// AuditStore persists decision records.
type AuditStore interface {
	WriteAudit(ctx context.Context, e *models.AuditEntry) error
	ListAudit(ctx context.Context, taskID string) ([]*models.AuditEntry, error)
}

// Backend bundles every record kind a deployment needs.
type Backend interface {
	TaskStore
	ProjectStore
	MessageStore
	AuditStore
	Ping(ctx context.Context) error
	io.Closer
}

// TaskQuery selects tasks. Zero fields match everything.
type TaskQuery struct {
	Project    string
	AssignedTo string
	Statuses   []models.TaskStatus
	// Where is an optional extra predicate applied after the field filters.
	Where func(*models.Task) bool
}

// Matches reports whether t satisfies every populated field of q.
func (q TaskQuery) Matches(t *models.Task) bool {
	if q.Project != "" && t.Project != q.Project {
		return false
	}
	if q.AssignedTo != "" && t.AssignedTo != q.AssignedTo {
		return false
	}
	if len(q.Statuses) > 0 {
		found := false
		for _, s := range q.Statuses {
			if t.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if q.Where != nil && !q.Where(t) {
		return false
	}
	return true
}

// IsTransient reports whether err may succeed on retry. Domain outcomes
// (not found, conflict, terminal, duplicate) and cancellation are not transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrAlreadyExists),
		errors.Is(err, ErrConflict),
		errors.Is(err, ErrTerminal),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}
