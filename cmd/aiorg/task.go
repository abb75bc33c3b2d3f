package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fentz26/aiorg/internal/models"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Inspect tasks",
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	RunE:  runTaskList,
}

var taskShowCmd = &cobra.Command{
	Use:   "show [task-id]",
	Short: "Show task details",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskShow,
}

var taskHistoryCmd = &cobra.Command{
	Use:   "history [task-id]",
	Short: "Show the decision records for a task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskHistory,
}

var (
	taskProject string
	taskAgent   string
	taskStatus  string
)

func init() {
	taskCmd.AddCommand(taskListCmd, taskShowCmd, taskHistoryCmd)

	taskListCmd.Flags().StringVar(&taskProject, "project", "", "Filter by project")
	taskListCmd.Flags().StringVar(&taskAgent, "agent", "", "Filter by assignee")
	taskListCmd.Flags().StringVar(&taskStatus, "status", "", "Filter by status (pending, in_progress, completed, failed)")
	taskListCmd.Flags().BoolVar(&asJSON, "json", false, "Print tasks as JSON")
	taskShowCmd.Flags().BoolVar(&asJSON, "json", false, "Print the task as JSON")
}

func runTaskList(cmd *cobra.Command, args []string) error {
	return withEngine(cmd.Context(), func(e engine) error {
		tasks, err := e.ListTasks(cmd.Context(), taskProject, taskAgent, taskStatus)
		if err != nil {
			return err
		}
		if asJSON {
			if tasks == nil {
				tasks = []*models.Task{}
			}
			return printJSON(tasks)
		}
		printTasks(tasks)
		return nil
	})
}

func runTaskShow(cmd *cobra.Command, args []string) error {
	return withEngine(cmd.Context(), func(e engine) error {
		task, err := e.GetTask(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(task)
		}
		printTask(task)
		return nil
	})
}

func runTaskHistory(cmd *cobra.Command, args []string) error {
	return withEngine(cmd.Context(), func(e engine) error {
		entries, err := e.TaskHistory(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No records.")
			return nil
		}
		w := newTable(os.Stdout)
		fmt.Fprintln(w, "TIME\tACTION\tOUTCOME\tDETAILS")
		for _, entry := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", entry.Timestamp.Format("2006-01-02 15:04:05"), entry.Action, entry.Outcome, entry.Details)
		}
		return w.Flush()
	})
}
