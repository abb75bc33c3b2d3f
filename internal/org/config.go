// Package org holds the organization registry: agents, their reporting
// tree, and the project templates the graph builder expands.
package org

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/fentz26/aiorg/internal/models"
)

// Worker kinds.
const (
	WorkerBrief = "brief"
	WorkerExec  = "exec"
)

// Config is the organization registry. It is plain data passed to the
// components that need it; nothing reads it from a global.
type Config struct {
	Agents    []Agent             `yaml:"agents"`
	Templates map[string]Template `yaml:"templates"`
}

// Agent is a role-bound worker identity.
type Agent struct {
	ID           string     `yaml:"id"`
	Role         string     `yaml:"role"`
	Capabilities []string   `yaml:"capabilities"`
	ReportsTo    string     `yaml:"reports_to,omitempty"`
	Worker       WorkerSpec `yaml:"worker,omitempty"`
}

// WorkerSpec selects the work function for an agent.
type WorkerSpec struct {
	// Kind is brief (default) or exec.
	Kind string `yaml:"kind,omitempty"`
	// Command and Args are run in the project directory for exec workers.
	Command string   `yaml:"command,omitempty"`
	Args    []string `yaml:"args,omitempty"`
	// Allow extends the exec allowlist: command → permitted first arguments.
	Allow map[string][]string `yaml:"allow,omitempty"`
	// Outputs are project-relative paths reported as artifacts when present.
	Outputs []string `yaml:"outputs,omitempty"`
}

// Template is an ordered list of steps for one project type.
type Template struct {
	Steps []Step `yaml:"steps"`
}

// Step is one task in a template. DependsOn names earlier step keys.
type Step struct {
	Key             string          `yaml:"key"`
	Title           string          `yaml:"title"`
	Description     string          `yaml:"description"`
	AssignedTo      string          `yaml:"assigned_to"`
	CreatedBy       string          `yaml:"created_by"`
	DependsOn       []string        `yaml:"depends_on,omitempty"`
	Priority        models.Priority `yaml:"priority"`
	EstimatedEffort float64         `yaml:"estimated_hours"`
}

// SystemCreator is the creator id for tasks not created by an agent.
const SystemCreator = "system"

// DefaultConfig returns the built-in six-agent organization and web-app template.
func DefaultConfig() *Config {
	return &Config{
		Agents: []Agent{
			{ID: "ai-ceo", Role: "planning", Capabilities: []string{"strategic_planning", "requirements_analysis", "project_coordination"}},
			{ID: "ai-cto", Role: "architecture", ReportsTo: "ai-ceo", Capabilities: []string{"technical_architecture", "technology_selection", "code_review"}},
			{ID: "ai-frontend", Role: "frontend", ReportsTo: "ai-cto", Capabilities: []string{"react_development", "ui_design", "responsive_design"}},
			{ID: "ai-backend", Role: "backend", ReportsTo: "ai-cto", Capabilities: []string{"api_development", "database_design", "microservices"}},
			{ID: "ai-devops", Role: "infrastructure", ReportsTo: "ai-cto", Capabilities: []string{"docker", "kubernetes", "ci_cd", "monitoring"}},
			{ID: "ai-qa", Role: "quality", ReportsTo: "ai-cto", Capabilities: []string{"test_automation", "quality_assurance", "bug_detection"}},
		},
		Templates: map[string]Template{
			"web-app": {Steps: []Step{
				{
					Key: "vision", Title: "Product Vision & Requirements",
					Description: "Define product vision, user stories, and functional requirements",
					AssignedTo:  "ai-ceo", CreatedBy: SystemCreator,
					Priority: models.PriorityCritical, EstimatedEffort: 4,
				},
				{
					Key: "architecture", Title: "Technical Architecture Design",
					Description: "Design system architecture, technology stack, and data flow",
					AssignedTo:  "ai-cto", CreatedBy: "ai-ceo", DependsOn: []string{"vision"},
					Priority: models.PriorityHigh, EstimatedEffort: 6,
				},
				{
					Key: "frontend", Title: "Frontend Application Development",
					Description: "Build responsive frontend application with modern framework",
					AssignedTo:  "ai-frontend", CreatedBy: "ai-cto", DependsOn: []string{"architecture"},
					Priority: models.PriorityHigh, EstimatedEffort: 16,
				},
				{
					Key: "backend", Title: "Backend API Implementation",
					Description: "Implement backend APIs, authentication, and business logic",
					AssignedTo:  "ai-backend", CreatedBy: "ai-cto", DependsOn: []string{"architecture"},
					Priority: models.PriorityHigh, EstimatedEffort: 12,
				},
				{
					Key: "infrastructure", Title: "Infrastructure & DevOps Setup",
					Description: "Set up hosting, CI/CD pipelines, and monitoring",
					AssignedTo:  "ai-devops", CreatedBy: "ai-cto", DependsOn: []string{"architecture"},
					Priority: models.PriorityHigh, EstimatedEffort: 8,
				},
				{
					Key: "testing", Title: "Automated Testing Implementation",
					Description: "Implement unit, integration, and E2E test automation",
					AssignedTo:  "ai-qa", CreatedBy: "ai-cto", DependsOn: []string{"frontend", "backend"},
					Priority: models.PriorityHigh, EstimatedEffort: 10,
				},
			}},
		},
	}
}

// LoadConfig loads the registry from a YAML file. A missing file yields the
// defaults. Agents in the file replace the default agents; templates in the
// file are added to (or override) the default templates.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading org file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing org file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid org file: %w", err)
	}
	return cfg, nil
}

// LoadFromWorkspace loads <workspace>/org.yaml.
func LoadFromWorkspace(workspace string) (*Config, error) {
	return LoadConfig(filepath.Join(workspace, "org.yaml"))
}

// SaveConfig writes cfg as YAML, creating parent directories if needed.
func SaveConfig(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing org file: %w", err)
	}
	return nil
}

// Validate checks agent identities, the reports-to tree and worker settings.
// Templates are checked by the graph builder when expanded.
func (c *Config) Validate() error {
	if len(c.Agents) == 0 {
		return fmt.Errorf("at least one agent is required")
	}

	seen := make(map[string]bool, len(c.Agents))
	for _, a := range c.Agents {
		if a.ID == "" {
			return fmt.Errorf("agent id cannot be empty")
		}
		if a.ID == SystemCreator {
			return fmt.Errorf("agent id %q is reserved", a.ID)
		}
		if seen[a.ID] {
			return fmt.Errorf("duplicate agent id %q", a.ID)
		}
		seen[a.ID] = true

		switch a.Worker.Kind {
		case "", WorkerBrief:
		case WorkerExec:
			if a.Worker.Command == "" {
				return fmt.Errorf("agent %s: exec worker needs a command", a.ID)
			}
		default:
			return fmt.Errorf("agent %s: unknown worker kind %q", a.ID, a.Worker.Kind)
		}
	}

	for _, a := range c.Agents {
		if a.ReportsTo != "" && !seen[a.ReportsTo] {
			return fmt.Errorf("agent %s reports to unknown agent %s", a.ID, a.ReportsTo)
		}
	}

	// The reports-to relation must be a forest: walking up never revisits.
	for _, a := range c.Agents {
		visited := map[string]bool{a.ID: true}
		for cur := c.reportsTo(a.ID); cur != ""; cur = c.reportsTo(cur) {
			if visited[cur] {
				return fmt.Errorf("reports-to cycle through agent %s", a.ID)
			}
			visited[cur] = true
		}
	}
	return nil
}

func (c *Config) reportsTo(id string) string {
	if a, ok := c.Agent(id); ok {
		return a.ReportsTo
	}
	return ""
}

// Agent looks up an agent by id.
func (c *Config) Agent(id string) (Agent, bool) {
	for _, a := range c.Agents {
		if a.ID == id {
			return a, true
		}
	}
	return Agent{}, false
}

// HasAgent reports whether id is registered.
func (c *Config) HasAgent(id string) bool {
	_, ok := c.Agent(id)
	return ok
}

// AgentIDs returns registered agent ids in declaration order.
func (c *Config) AgentIDs() []string {
	ids := make([]string, len(c.Agents))
	for i, a := range c.Agents {
		ids[i] = a.ID
	}
	return ids
}

// DirectReports returns the agents reporting to id.
func (c *Config) DirectReports(id string) []string {
	var out []string
	for _, a := range c.Agents {
		if a.ReportsTo == id {
			out = append(out, a.ID)
		}
	}
	return out
}

// Template looks up a project template.
func (c *Config) Template(projectType string) (Template, bool) {
	t, ok := c.Templates[projectType]
	return t, ok
}

// TemplateNames returns the known project types, sorted.
func (c *Config) TemplateNames() []string {
	names := make([]string, 0, len(c.Templates))
	for name := range c.Templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
