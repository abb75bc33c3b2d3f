// Package models defines the core domain types for aiorg.
package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// TimeFormat is the fixed-width timestamp layout used for persisted records.
// Fixed width keeps the textual form lexically sortable.
const TimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// FormatTime renders t in TimeFormat (UTC).
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// ParseTime parses a timestamp written by FormatTime.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(TimeFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t.UTC(), nil
}

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// AllStatuses lists every task status in lifecycle order.
var AllStatuses = []TaskStatus{
	TaskStatusPending,
	TaskStatusInProgress,
	TaskStatusCompleted,
	TaskStatusFailed,
}

// IsTerminal reports whether no further transition may leave s.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// Valid reports whether s is a known status.
func (s TaskStatus) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Priority orders tasks for scheduling. Higher is more urgent.
type Priority int

const (
	PriorityLow      Priority = 1
	PriorityMedium   Priority = 2
	PriorityHigh     Priority = 3
	PriorityCritical Priority = 4
)

var priorityNames = map[Priority]string{
	PriorityLow:      "low",
	PriorityMedium:   "medium",
	PriorityHigh:     "high",
	PriorityCritical: "critical",
}

func (p Priority) String() string {
	if name, ok := priorityNames[p]; ok {
		return name
	}
	return strconv.Itoa(int(p))
}

// ParsePriority accepts a level name (low, medium, high, critical) or an ordinal.
func ParsePriority(s string) (Priority, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for p, name := range priorityNames {
		if name == s {
			return p, nil
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid priority %q", s)
	}
	return Priority(n), nil
}

// UnmarshalYAML lets templates name priorities or give ordinals.
func (p *Priority) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := ParsePriority(value.Value)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Result holds the outcome of a task execution. Set only on terminal transition.
type Result struct {
	Artifacts []string `json:"created_files,omitempty"`
	Output    string   `json:"output,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// Task represents a unit of work assigned to one agent.
type Task struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	Project         string     `json:"project"`
	AssignedTo      string     `json:"assigned_to"`
	CreatedBy       string     `json:"created_by"`
	Status          TaskStatus `json:"status"`
	Priority        Priority   `json:"priority"`
	Dependencies    []string   `json:"dependencies"`
	EstimatedEffort float64    `json:"estimated_hours"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	Result          *Result    `json:"result,omitempty"`
	Version         int64      `json:"version"`
}

// MarshalJSON writes timestamps in TimeFormat so stored records keep the
// fixed-width, lexically sortable form. time.Time decodes it unchanged.
func (t Task) MarshalJSON() ([]byte, error) {
	type plain Task
	return json.Marshal(struct {
		plain
		CreatedAt string `json:"created_at"`
		UpdatedAt string `json:"updated_at"`
	}{plain(t), FormatTime(t.CreatedAt), FormatTime(t.UpdatedAt)})
}

// Clone returns a deep copy so callers can mutate without aliasing store state.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	c.Dependencies = append([]string(nil), t.Dependencies...)
	if t.Result != nil {
		r := *t.Result
		r.Artifacts = append([]string(nil), t.Result.Artifacts...)
		c.Result = &r
	}
	return &c
}

// Project groups the tasks emitted for one build request.
type Project struct {
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
	TaskIDs   []string  `json:"task_ids"`
}

// MessageStatus tracks delivery of a message.
type MessageStatus string

const (
	MessageStatusPending  MessageStatus = "pending"
	MessageStatusConsumed MessageStatus = "consumed"
)

// Message is an asynchronous note between agents.
type Message struct {
	ID        string          `json:"id"`
	From      string          `json:"from"`
	To        string          `json:"to"`
	Type      string          `json:"type"`
	Content   json.RawMessage `json:"content"`
	Status    MessageStatus   `json:"status"`
	Timestamp time.Time       `json:"timestamp"`
}

// AuditEntry represents a Process Decision Record for a lifecycle mutation.
type AuditEntry struct {
	ID         string    `json:"id"`
	Action     string    `json:"action"`
	InputsHash string    `json:"inputs_hash"`
	Outcome    string    `json:"outcome"`
	TaskID     string    `json:"task_id,omitempty"`
	Details    string    `json:"details,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
