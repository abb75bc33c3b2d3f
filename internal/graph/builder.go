// Package graph expands project templates into dependent tasks.
package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fentz26/aiorg/internal/audit"
	"github.com/fentz26/aiorg/internal/logging"
	"github.com/fentz26/aiorg/internal/models"
	"github.com/fentz26/aiorg/internal/org"
	"github.com/fentz26/aiorg/internal/store"
)

var (
	// ErrUnknownAgent indicates a step names an agent missing from the registry.
	ErrUnknownAgent = errors.New("unknown agent")
	// ErrProjectExists indicates the project name is already registered.
	ErrProjectExists = errors.New("project already exists")
	// ErrInvalidProject indicates an unusable project name.
	ErrInvalidProject = errors.New("invalid project name")
)

// Store is what the builder writes to.
type Store interface {
	store.TaskStore
	store.ProjectStore
}

// Builder turns (project name, project type) into persisted tasks.
type Builder struct {
	store Store
	org   *org.Config
	pdr   *audit.PDRWriter
	log   zerolog.Logger
	now   func() time.Time
	newID func() string
}

// NewBuilder creates a builder. pdr may be nil.
func NewBuilder(s Store, registry *org.Config, pdr *audit.PDRWriter) *Builder {
	return &Builder{
		store: s,
		org:   registry,
		pdr:   pdr,
		log:   logging.Component("graph"),
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}
}

// Build emits the template tasks for projectType, persists them and registers
// the project. An unknown type registers an empty project and returns no tasks.
// Configuration problems are reported before anything is written. A store
// failure while writing tasks returns the tasks already written with the error.
func (b *Builder) Build(ctx context.Context, projectName, projectType string) ([]*models.Task, error) {
	if strings.TrimSpace(projectName) == "" {
		return nil, fmt.Errorf("%q: %w", projectName, ErrInvalidProject)
	}

	tmpl, known := b.org.Template(projectType)
	if known {
		if err := b.validate(tmpl); err != nil {
			return nil, fmt.Errorf("template %s: %w", projectType, err)
		}
	} else {
		b.log.Warn().Str("project", projectName).Str("type", projectType).Msg("unknown project type, registering empty project")
	}

	now := b.now().UTC()
	ids := make(map[string]string, len(tmpl.Steps))
	for _, step := range tmpl.Steps {
		ids[step.Key] = b.newID()
	}

	tasks := make([]*models.Task, 0, len(tmpl.Steps))
	taskIDs := make([]string, 0, len(tmpl.Steps))
	for i, step := range tmpl.Steps {
		// Template order is creation order, so equal-priority steps are served first-listed first.
		createdAt := now.Add(time.Duration(i) * time.Microsecond)
		deps := make([]string, 0, len(step.DependsOn))
		for _, key := range step.DependsOn {
			deps = append(deps, ids[key])
		}
		effort := step.EstimatedEffort
		if effort <= 0 {
			effort = 1
		}
		priority := step.Priority
		if priority == 0 {
			priority = models.PriorityMedium
		}
		task := &models.Task{
			ID:              ids[step.Key],
			Title:           step.Title,
			Description:     step.Description,
			Project:         projectName,
			AssignedTo:      step.AssignedTo,
			CreatedBy:       step.CreatedBy,
			Status:          models.TaskStatusPending,
			Priority:        priority,
			Dependencies:    deps,
			EstimatedEffort: effort,
			CreatedAt:       createdAt,
			UpdatedAt:       createdAt,
		}
		tasks = append(tasks, task)
		taskIDs = append(taskIDs, task.ID)
	}

	// Registering first reserves the name; a duplicate fails before any task is written.
	project := &models.Project{Name: projectName, Type: projectType, CreatedAt: now, TaskIDs: taskIDs}
	if err := b.store.CreateProject(ctx, project); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, fmt.Errorf("%s: %w", projectName, ErrProjectExists)
		}
		return nil, fmt.Errorf("register project: %w", err)
	}

	for i, task := range tasks {
		if err := b.store.CreateTask(ctx, task); err != nil {
			// The project stays registered with the tasks written so far.
			b.log.Error().Err(err).
				Str("project", projectName).
				Strs("written", taskIDs[:i]).
				Msg("project build stopped partway")
			return tasks[:i], fmt.Errorf("project %s has %d of %d tasks: create task %q: %w",
				projectName, i, len(tasks), task.Title, err)
		}
		if b.pdr != nil {
			if _, err := b.pdr.Record(ctx, audit.ActionCreate, task, audit.OutcomeSuccess, task.ID, task.Title); err != nil {
				b.log.Warn().Err(err).Str("task_id", task.ID).Msg("failed to record create")
			}
		}
	}

	b.log.Info().
		Str("project", projectName).
		Str("type", projectType).
		Int("tasks", len(tasks)).
		Msg("project built")
	return tasks, nil
}

// validate checks a template against the registry and for graph errors.
func (b *Builder) validate(tmpl org.Template) error {
	for _, step := range tmpl.Steps {
		if !b.org.HasAgent(step.AssignedTo) {
			return fmt.Errorf("step %s assigned to %q: %w", step.Key, step.AssignedTo, ErrUnknownAgent)
		}
		if step.CreatedBy != org.SystemCreator && !b.org.HasAgent(step.CreatedBy) {
			return fmt.Errorf("step %s created by %q: %w", step.Key, step.CreatedBy, ErrUnknownAgent)
		}
	}
	return validateSteps(tmpl.Steps)
}

// Validate checks every template in the registry.
func (b *Builder) Validate() error {
	for _, name := range b.org.TemplateNames() {
		tmpl, _ := b.org.Template(name)
		if err := b.validate(tmpl); err != nil {
			return fmt.Errorf("template %s: %w", name, err)
		}
	}
	return nil
}
