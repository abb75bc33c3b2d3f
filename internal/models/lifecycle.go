package models

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTerminal is returned for any transition out of completed or failed.
	ErrTerminal = errors.New("task is in a terminal state")
	// ErrInvalidTransition is returned when the requested edge is not in the lifecycle.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// CanTransition reports whether from → to is a lifecycle edge.
//
//	pending     → in_progress
//	in_progress → in_progress (resume claim)
//	in_progress → completed | failed
func CanTransition(from, to TaskStatus) error {
	if from.IsTerminal() {
		return fmt.Errorf("%s → %s: %w", from, to, ErrTerminal)
	}
	switch {
	case from == TaskStatusPending && to == TaskStatusInProgress:
		return nil
	case from == TaskStatusInProgress && to == TaskStatusInProgress:
		return nil
	case from == TaskStatusInProgress && to.IsTerminal():
		return nil
	}
	return fmt.Errorf("%s → %s: %w", from, to, ErrInvalidTransition)
}

// Claim moves the task to in_progress. Resuming an in_progress task is allowed.
func (t *Task) Claim(now time.Time) error {
	if err := CanTransition(t.Status, TaskStatusInProgress); err != nil {
		return err
	}
	t.Status = TaskStatusInProgress
	t.UpdatedAt = now.UTC()
	return nil
}

// Complete records a successful outcome.
func (t *Task) Complete(now time.Time, result *Result) error {
	if err := CanTransition(t.Status, TaskStatusCompleted); err != nil {
		return err
	}
	if result == nil {
		result = &Result{}
	}
	t.Status = TaskStatusCompleted
	t.Result = result
	t.UpdatedAt = now.UTC()
	return nil
}

// Fail records a failed outcome with its error detail. Failed is final.
func (t *Task) Fail(now time.Time, cause error, partial *Result) error {
	if err := CanTransition(t.Status, TaskStatusFailed); err != nil {
		return err
	}
	result := partial
	if result == nil {
		result = &Result{}
	}
	if cause != nil {
		result.Error = cause.Error()
	}
	t.Status = TaskStatusFailed
	t.Result = result
	t.UpdatedAt = now.UTC()
	return nil
}
