package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fentz26/aiorg/internal/controlplane"
	"github.com/fentz26/aiorg/internal/executor"
	"github.com/fentz26/aiorg/internal/store"
	"github.com/fentz26/aiorg/internal/worker"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Inspect agents and run their executors",
}

var agentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the organization's agents",
	RunE:  runAgentList,
}

var agentEligibleCmd = &cobra.Command{
	Use:   "eligible [agent-id]",
	Short: "Show the tasks an agent may claim now, most urgent first",
	Args:  cobra.ExactArgs(1),
	RunE:  runAgentEligible,
}

var agentStepCmd = &cobra.Command{
	Use:   "step [agent-id]",
	Short: "Claim and run at most one task for an agent",
	Args:  cobra.ExactArgs(1),
	RunE:  runAgentStep,
}

var agentRunCmd = &cobra.Command{
	Use:   "run [agent-id...]",
	Short: "Run executors until interrupted (all agents when none are named)",
	RunE:  runAgentRun,
}

func init() {
	agentCmd.AddCommand(agentListCmd, agentEligibleCmd, agentStepCmd, agentRunCmd)
}

func runAgentList(cmd *cobra.Command, args []string) error {
	w := newTable(os.Stdout)
	fmt.Fprintln(w, "ID\tROLE\tREPORTS TO\tWORKER\tCAPABILITIES")
	for _, a := range registry.Agents {
		kind := a.Worker.Kind
		if kind == "" {
			kind = "brief"
		}
		reportsTo := a.ReportsTo
		if reportsTo == "" {
			reportsTo = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", a.ID, a.Role, reportsTo, kind, strings.Join(a.Capabilities, ", "))
	}
	return w.Flush()
}

func runAgentEligible(cmd *cobra.Command, args []string) error {
	return withEngine(cmd.Context(), func(e engine) error {
		tasks, err := e.EligibleTasks(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printTasks(tasks)
		return nil
	})
}

func runAgentStep(cmd *cobra.Command, args []string) error {
	if apiAddr != "" {
		return errors.New("agent step runs against the local store; drop --api")
	}
	svc, backend, err := localService(cmd.Context())
	if err != nil {
		return err
	}
	defer backend.Close()

	executors, err := buildExecutors(svc, backend, args, nil)
	if err != nil {
		return err
	}
	outcome, err := executors[0].Step(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s\n", args[0], outcome)
	return nil
}

func runAgentRun(cmd *cobra.Command, args []string) error {
	if apiAddr != "" {
		return errors.New("agent run runs against the local store; drop --api")
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, backend, err := localService(ctx)
	if err != nil {
		return err
	}
	defer backend.Close()

	watcher, err := watchBackend(env)
	if err != nil {
		logger.Warn().Err(err).Msg("change notifications unavailable, polling only")
	}
	var notifier executor.Notifier
	if watcher != nil {
		defer watcher.Close()
		notifier = watcher
	}

	executors, err := buildExecutors(svc, backend, args, notifier)
	if err != nil {
		return err
	}
	return executor.NewPool(executors...).Run(ctx)
}

// buildExecutors creates one executor per agent id, or per registered agent
// when ids is empty.
func buildExecutors(svc *controlplane.Service, backend store.Backend, ids []string, notifier executor.Notifier) ([]*executor.Executor, error) {
	if len(ids) == 0 {
		ids = registry.AgentIDs()
	}
	workers, err := worker.NewRegistry(registry)
	if err != nil {
		return nil, err
	}

	cfg := executor.DefaultConfig()
	cfg.PollInterval = env.PollInterval
	cfg.MaxBackoff = env.MaxBackoff
	cfg.StoreRetries = env.StoreRetries
	cfg.ProjectsDir = env.ProjectsDir()

	deps := executor.Deps{
		Store:     backend,
		Org:       registry,
		Scheduler: svc.Scheduler(),
		Workers:   workers,
		Audit:     svc.Audit(),
		Messages:  svc.Messages(),
		Notifier:  notifier,
	}

	executors := make([]*executor.Executor, 0, len(ids))
	for _, id := range ids {
		ex, err := executor.New(id, deps, cfg)
		if err != nil {
			return nil, err
		}
		executors = append(executors, ex)
	}
	return executors, nil
}
