package monitor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fentz26/aiorg/internal/models"
)

// Report renders the markdown completion report for project.
func (m *Monitor) Report(ctx context.Context, project string) (string, error) {
	s, err := m.Status(ctx, project)
	if err != nil {
		return "", err
	}
	return RenderReport(s), nil
}

// WriteReport renders the report into <dir>/<project>_summary.md and returns
// the path.
func (m *Monitor) WriteReport(ctx context.Context, project, dir string) (string, error) {
	body, err := m.Report(ctx, project)
	if err != nil {
		return "", err
	}
	return SaveReport(dir, project, body)
}

// SaveReport writes a rendered report to <dir>/<project>_summary.md.
func SaveReport(dir, project, body string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create reports dir: %w", err)
	}
	name := strings.NewReplacer("/", "_", `\`, "_").Replace(project)
	path := filepath.Join(dir, name+"_summary.md")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

// RenderReport formats a summary as markdown.
func RenderReport(s *Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Project Summary: %s\n\n", s.Project)
	b.WriteString("## Status Overview\n")
	fmt.Fprintf(&b, "- Total Tasks: %d\n", s.TotalTasks)
	fmt.Fprintf(&b, "- Completed: %d\n", s.CompletedTasks)
	for _, st := range models.AllStatuses {
		if st == models.TaskStatusCompleted {
			continue
		}
		if n := s.StatusBreakdown[st]; n > 0 {
			fmt.Fprintf(&b, "- %s: %d\n", statusLabel(st), n)
		}
	}
	fmt.Fprintf(&b, "- Success Rate: %.1f%%\n", s.SuccessRate)

	b.WriteString("\n## Completed Tasks\n")
	for _, t := range s.Tasks {
		if t.Status != models.TaskStatusCompleted {
			continue
		}
		fmt.Fprintf(&b, "\n### %s: %s\n", t.AssignedTo, t.Title)
		if len(t.Artifacts) > 0 {
			b.WriteString("Created files:\n")
			for _, a := range t.Artifacts {
				fmt.Fprintf(&b, "- %s\n", a)
			}
		}
	}

	var failed []TaskDigest
	for _, t := range s.Tasks {
		if t.Status == models.TaskStatusFailed {
			failed = append(failed, t)
		}
	}
	if len(failed) > 0 {
		b.WriteString("\n## Failed Tasks\n")
		for _, t := range failed {
			fmt.Fprintf(&b, "\n### %s: %s\n", t.AssignedTo, t.Title)
			fmt.Fprintf(&b, "Error: %s\n", t.Error)
		}
	}

	fmt.Fprintf(&b, "\n## Project Location\n`projects/%s/`\n", s.Project)
	return b.String()
}

func statusLabel(st models.TaskStatus) string {
	switch st {
	case models.TaskStatusPending:
		return "Pending"
	case models.TaskStatusInProgress:
		return "In Progress"
	case models.TaskStatusFailed:
		return "Failed"
	}
	return string(st)
}
