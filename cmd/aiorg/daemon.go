package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fentz26/aiorg/internal/controlplane"
	"github.com/fentz26/aiorg/internal/executor"
)

var (
	listenAddr string
	noAgents   bool
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Start the aiorg daemon",
	Long: `Starts the HTTP API over the configured store and, unless --no-agents is
given, one executor per registered agent.`,
	RunE: runDaemon,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check a running daemon",
	RunE:  runDaemonStatus,
}

func init() {
	daemonCmd.AddCommand(daemonStatusCmd)
	daemonCmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address for the API server (env AIORG_LISTEN_ADDR)")
	daemonCmd.Flags().BoolVar(&noAgents, "no-agents", false, "Serve the API without running executors")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	override(&env.ListenAddr, listenAddr)
	logger.Info().Str("store", env.Type).Str("workspace", env.Workspace).Msg("starting aiorg daemon")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, backend, err := localService(ctx)
	if err != nil {
		return err
	}

	var pool *executor.Pool
	if !noAgents {
		watcher, err := watchBackend(env)
		if err != nil {
			logger.Warn().Err(err).Msg("change notifications unavailable, polling only")
		}
		var notifier executor.Notifier
		if watcher != nil {
			defer watcher.Close()
			notifier = watcher
		}
		executors, err := buildExecutors(svc, backend, nil, notifier)
		if err != nil {
			backend.Close()
			return err
		}
		pool = executor.NewPool(executors...)
		svc.AttachPool(pool)
		pool.Start(ctx)
		logger.Info().Int("agents", len(executors)).Msg("executors started")
	}

	server := controlplane.NewServer(svc, env.ListenAddr)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start(ctx)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("received signal, initiating graceful shutdown")
	case runErr = <-serverErr:
		if runErr != nil {
			logger.Error().Err(runErr).Msg("server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Info().Msg("shutting down HTTP server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	if pool != nil {
		logger.Info().Msg("stopping executors")
		if err := pool.Stop(); err != nil {
			logger.Error().Err(err).Msg("executor error")
			runErr = errors.Join(runErr, err)
		}
	}

	logger.Info().Msg("closing store")
	if err := backend.Close(); err != nil {
		logger.Error().Err(err).Msg("store close error")
	}

	logger.Info().Msg("shutdown complete")
	return runErr
}

func runDaemonStatus(cmd *cobra.Command, args []string) error {
	addr := apiAddr
	if addr == "" {
		addr = env.ListenAddr
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()

	health, err := newRemote(addr).Health(ctx)
	if err != nil {
		return fmt.Errorf("daemon at %s is not reachable: %w", addr, err)
	}
	fmt.Printf("Daemon at %s is running (version %s, store %s)\n", addr, health.Version, health.Store)
	return nil
}
