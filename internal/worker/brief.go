package worker

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"

	"github.com/fentz26/aiorg/internal/models"
	"github.com/fentz26/aiorg/internal/org"
)

var briefTemplate = template.Must(template.New("brief").Parse(`# {{.Task.Title}}

- Task: {{.Task.ID}}
- Project: {{.Task.Project}}
- Agent: {{.Agent.ID}} ({{.Agent.Role}})
- Priority: {{.Task.Priority}}
- Estimated hours: {{printf "%.1f" .Task.EstimatedEffort}}
{{- if .Agent.ReportsTo}}
- Reports to: {{.Agent.ReportsTo}}
{{- end}}

## Description

{{.Task.Description}}
{{if .Agent.Capabilities}}
## Capabilities
{{range .Agent.Capabilities}}
- {{.}}
{{- end}}
{{end}}
{{- if .Task.Dependencies}}
## Depends on
{{range .Task.Dependencies}}
- {{.}}
{{- end}}
{{end}}`))

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Brief writes a markdown work brief for each task it receives.
type Brief struct {
	agent org.Agent
}

// NewBrief creates a brief worker for agent.
func NewBrief(agent org.Agent) *Brief {
	return &Brief{agent: agent}
}

// Do writes <workDir>/<agent>/<id8>-<slug>.md and reports it as the artifact.
func (b *Brief) Do(ctx context.Context, task *models.Task, workDir string) (*models.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	err := briefTemplate.Execute(&buf, struct {
		Task  *models.Task
		Agent org.Agent
	}{task, b.agent})
	if err != nil {
		return nil, fmt.Errorf("render brief: %w", err)
	}

	dir := filepath.Join(workDir, b.agent.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create brief dir: %w", err)
	}
	path := filepath.Join(dir, briefName(task))
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return nil, fmt.Errorf("write brief: %w", err)
	}

	return &models.Result{
		Artifacts: []string{path},
		Output:    fmt.Sprintf("brief written for %s", task.Title),
	}, nil
}

func briefName(task *models.Task) string {
	id := task.ID
	if len(id) > 8 {
		id = id[:8]
	}
	slug := strings.Trim(slugPattern.ReplaceAllString(strings.ToLower(task.Title), "-"), "-")
	if slug == "" {
		slug = "task"
	}
	return id + "-" + slug + ".md"
}
