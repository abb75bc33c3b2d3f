package org

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fentz26/aiorg/internal/models"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, []string{"ai-ceo", "ai-cto", "ai-frontend", "ai-backend", "ai-devops", "ai-qa"}, cfg.AgentIDs())

	ceo, ok := cfg.Agent("ai-ceo")
	require.True(t, ok)
	assert.Empty(t, ceo.ReportsTo)
	assert.Contains(t, ceo.Capabilities, "strategic_planning")

	assert.Equal(t, []string{"ai-cto"}, cfg.DirectReports("ai-ceo"))
	assert.ElementsMatch(t, []string{"ai-frontend", "ai-backend", "ai-devops", "ai-qa"}, cfg.DirectReports("ai-cto"))

	tmpl, ok := cfg.Template("web-app")
	require.True(t, ok)
	require.Len(t, tmpl.Steps, 6)
	assert.Equal(t, models.PriorityCritical, tmpl.Steps[0].Priority)
	assert.Equal(t, []string{"frontend", "backend"}, tmpl.Steps[5].DependsOn)

	_, ok = cfg.Template("mobile-app")
	assert.False(t, ok)
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Len(t, cfg.Agents, 6)
}

func TestLoadConfig_MergesTemplates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "org.yaml")
	data := `
templates:
  cli-tool:
    steps:
      - key: spec
        title: Command Design
        assigned_to: ai-cto
        created_by: system
        priority: high
        estimated_hours: 2
      - key: build
        title: Build CLI
        assigned_to: ai-backend
        created_by: ai-cto
        depends_on: [spec]
        priority: 2
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"cli-tool", "web-app"}, cfg.TemplateNames())

	tmpl, _ := cfg.Template("cli-tool")
	require.Len(t, tmpl.Steps, 2)
	assert.Equal(t, models.PriorityHigh, tmpl.Steps[0].Priority)
	assert.Equal(t, models.PriorityMedium, tmpl.Steps[1].Priority)
	assert.Len(t, cfg.Agents, 6, "agents keep defaults when the file omits them")
}

func TestLoadConfig_ReplacesAgents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "org.yaml")
	data := `
agents:
  - id: lead
    role: planning
  - id: builder
    role: backend
    reports_to: lead
    worker:
      kind: exec
      command: make
      args: [build]
      allow:
        make: [build]
      outputs: [bin/app]
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"lead", "builder"}, cfg.AgentIDs())
	b, _ := cfg.Agent("builder")
	assert.Equal(t, WorkerExec, b.Worker.Kind)
	assert.Equal(t, []string{"build"}, b.Worker.Allow["make"])
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		agents []Agent
	}{
		{"empty", nil},
		{"blank id", []Agent{{ID: ""}}},
		{"reserved id", []Agent{{ID: SystemCreator}}},
		{"duplicate", []Agent{{ID: "a"}, {ID: "a"}}},
		{"unknown manager", []Agent{{ID: "a", ReportsTo: "ghost"}}},
		{"cycle", []Agent{{ID: "a", ReportsTo: "b"}, {ID: "b", ReportsTo: "a"}}},
		{"self report", []Agent{{ID: "a", ReportsTo: "a"}}},
		{"exec without command", []Agent{{ID: "a", Worker: WorkerSpec{Kind: WorkerExec}}}},
		{"unknown worker", []Agent{{ID: "a", Worker: WorkerSpec{Kind: "llm"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Agents: tt.agents}
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "org.yaml")
	require.NoError(t, SaveConfig(path, DefaultConfig()))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().AgentIDs(), cfg.AgentIDs())
	tmpl, ok := cfg.Template("web-app")
	require.True(t, ok)
	assert.Equal(t, models.PriorityCritical, tmpl.Steps[0].Priority)
}
