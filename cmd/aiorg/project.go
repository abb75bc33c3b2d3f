package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fentz26/aiorg/internal/monitor"
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Create and inspect projects",
}

var projectCreateCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Expand a project template into tasks",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectCreate,
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects",
	RunE:  runProjectList,
}

var projectStatusCmd = &cobra.Command{
	Use:   "status [name]",
	Short: "Show project progress",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectStatus,
}

var projectReportCmd = &cobra.Command{
	Use:   "report [name]",
	Short: "Render the markdown completion report",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectReport,
}

var (
	projectType string
	reportWrite bool
)

func init() {
	projectCmd.AddCommand(projectCreateCmd, projectListCmd, projectStatusCmd, projectReportCmd)

	projectCreateCmd.Flags().StringVar(&projectType, "type", "web-app", "Project template")
	projectStatusCmd.Flags().BoolVar(&asJSON, "json", false, "Print the summary as JSON")
	projectReportCmd.Flags().BoolVar(&reportWrite, "write", false, "Also write the report into the workspace reports directory")
}

func runProjectCreate(cmd *cobra.Command, args []string) error {
	return withEngine(cmd.Context(), func(e engine) error {
		project, tasks, err := e.CreateProject(cmd.Context(), args[0], projectType)
		if err != nil {
			return err
		}
		fmt.Printf("Created project '%s' (%s) with %d tasks\n", project.Name, project.Type, len(tasks))
		if len(tasks) == 0 {
			fmt.Printf("No template named %q; the project has no tasks.\n", project.Type)
			return nil
		}
		printTasks(tasks)
		return nil
	})
}

func runProjectList(cmd *cobra.Command, args []string) error {
	return withEngine(cmd.Context(), func(e engine) error {
		projects, err := e.ListProjects(cmd.Context())
		if err != nil {
			return err
		}
		if len(projects) == 0 {
			fmt.Println("No projects found.")
			return nil
		}
		w := newTable(os.Stdout)
		fmt.Fprintln(w, "NAME\tTYPE\tTASKS\tCREATED")
		for _, p := range projects {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", p.Name, p.Type, len(p.TaskIDs), p.CreatedAt.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	})
}

func runProjectStatus(cmd *cobra.Command, args []string) error {
	return withEngine(cmd.Context(), func(e engine) error {
		summary, err := e.ProjectStatus(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(summary)
		}
		printSummary(summary)
		return nil
	})
}

func runProjectReport(cmd *cobra.Command, args []string) error {
	return withEngine(cmd.Context(), func(e engine) error {
		report, err := e.ProjectReport(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !reportWrite {
			fmt.Print(report)
			return nil
		}
		path, err := monitor.SaveReport(env.ReportsDir(), args[0], report)
		if err != nil {
			return err
		}
		fmt.Printf("Report written to %s\n", path)
		return nil
	})
}
