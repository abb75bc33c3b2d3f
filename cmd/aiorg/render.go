package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"

	"github.com/fentz26/aiorg/internal/models"
	"github.com/fentz26/aiorg/internal/monitor"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	statusPending    = lipgloss.NewStyle().Foreground(lipgloss.Color("3")) // Yellow
	statusInProgress = lipgloss.NewStyle().Foreground(lipgloss.Color("6")) // Cyan
	statusCompleted  = lipgloss.NewStyle().Foreground(lipgloss.Color("2")) // Green
	statusFailed     = lipgloss.NewStyle().Foreground(lipgloss.Color("1")) // Red
)

var asJSON bool

func renderStatus(st models.TaskStatus) string {
	switch st {
	case models.TaskStatusPending:
		return statusPending.Render(string(st))
	case models.TaskStatusInProgress:
		return statusInProgress.Render(string(st))
	case models.TaskStatusCompleted:
		return statusCompleted.Render(string(st))
	case models.TaskStatusFailed:
		return statusFailed.Render(string(st))
	}
	return string(st)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func printTasks(tasks []*models.Task) {
	if len(tasks) == 0 {
		fmt.Println("No tasks found.")
		return
	}
	w := newTable(os.Stdout)
	fmt.Fprintln(w, "ID\tPROJECT\tAGENT\tPRIORITY\tSTATUS\tTITLE")
	for _, t := range tasks {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", shortID(t.ID), t.Project, t.AssignedTo, t.Priority, renderStatus(t.Status), t.Title)
	}
	w.Flush()
}

func printTask(t *models.Task) {
	fmt.Println(titleStyle.Render(t.Title))
	field := func(label, value string) {
		fmt.Printf("%s %s\n", labelStyle.Render(label+":"), value)
	}
	field("ID", t.ID)
	field("Project", t.Project)
	field("Assigned to", t.AssignedTo)
	field("Created by", t.CreatedBy)
	field("Status", renderStatus(t.Status))
	field("Priority", t.Priority.String())
	field("Estimated hours", fmt.Sprintf("%.1f", t.EstimatedEffort))
	if len(t.Dependencies) > 0 {
		field("Depends on", strings.Join(t.Dependencies, ", "))
	}
	field("Created", models.FormatTime(t.CreatedAt))
	field("Updated", models.FormatTime(t.UpdatedAt))
	if t.Description != "" {
		fmt.Printf("\n%s\n", t.Description)
	}
	if t.Result != nil {
		fmt.Println()
		for _, a := range t.Result.Artifacts {
			field("Artifact", a)
		}
		if t.Result.Output != "" {
			field("Output", t.Result.Output)
		}
		if t.Result.Error != "" {
			field("Error", statusFailed.Render(t.Result.Error))
		}
	}
}

func printSummary(s *monitor.Summary) {
	fmt.Println(titleStyle.Render("Project " + s.Project))
	fmt.Printf("Progress: %.1f%% (%d/%d tasks)\n\n", s.SuccessRate, s.CompletedTasks, s.TotalTasks)
	for _, st := range models.AllStatuses {
		if n := s.StatusBreakdown[st]; n > 0 {
			fmt.Printf("  %s: %d\n", renderStatus(st), n)
		}
	}
	fmt.Println()
	w := newTable(os.Stdout)
	fmt.Fprintln(w, "STATUS\tAGENT\tTITLE\tARTIFACTS")
	for _, t := range s.Tasks {
		detail := strings.Join(t.Artifacts, ", ")
		if t.Error != "" {
			detail = t.Error
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", renderStatus(t.Status), t.AssignedTo, t.Title, detail)
	}
	w.Flush()
}

func printStandup(s *monitor.Standup) {
	fmt.Println(titleStyle.Render("Standup " + s.Date.Format("2006-01-02 15:04")))
	fmt.Printf("Total tasks: %d\n", s.TotalTasks)
	for _, st := range models.AllStatuses {
		fmt.Printf("  %s: %d\n", renderStatus(st), s.TasksByStatus[st])
	}

	fmt.Println()
	w := newTable(os.Stdout)
	fmt.Fprintln(w, "AGENT\tROLE\tPENDING\tACTIVE\tCOMPLETED\tFAILED")
	for _, a := range s.Agents {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\n", a.ID, a.Role, a.Pending, a.Active, a.Completed, a.Failed)
	}
	w.Flush()

	if len(s.Projects) > 0 {
		fmt.Println()
		w = newTable(os.Stdout)
		fmt.Fprintln(w, "PROJECT\tTYPE\tDONE\tRATE")
		for _, p := range s.Projects {
			fmt.Fprintf(w, "%s\t%s\t%d/%d\t%.1f%%\n", p.Name, p.Type, p.Completed, p.TotalTasks, p.SuccessRate)
		}
		w.Flush()
	}

	if len(s.Blockers) > 0 {
		fmt.Println()
		fmt.Println(statusFailed.Render("Blockers"))
		for _, b := range s.Blockers {
			fmt.Printf("  [%s] %s (%s): %s\n", b.AssignedTo, b.Title, b.Project, b.Error)
		}
	}
}
