package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/fentz26/aiorg/internal/config"
	"github.com/fentz26/aiorg/internal/logging"
	"github.com/fentz26/aiorg/internal/org"
)

var rootCmd = &cobra.Command{
	Use:   "aiorg",
	Short: "aiorg - task workflow orchestration for role-based agents",
	Long: `aiorg expands project templates into dependency graphs of tasks, lets one
executor per agent claim and run its work through a shared store, and reports
progress per project and across the organization.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: teardown,
	// No RunE - defaults to showing help when no subcommand is provided
}

var (
	apiAddr   string
	workspace string
	storeType string
	dbPath    string
	orgFile   string
	logLevel  string

	env       *config.Env
	registry  *org.Config
	logger    zerolog.Logger
	logCloser = func() {}
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&apiAddr, "api", "", "Talk to a running daemon at this address instead of opening the store")
	flags.StringVar(&workspace, "workspace", "", "Workspace directory (env AIORG_WORKSPACE)")
	flags.StringVar(&storeType, "store", "", "Store backend: sqlite, local, s3 or memory (env AIORG_STORE)")
	flags.StringVar(&dbPath, "db", "", "SQLite database path (env AIORG_DB_PATH)")
	flags.StringVar(&orgFile, "org", "", "Organization YAML file (env AIORG_ORG_FILE)")
	flags.StringVar(&logLevel, "log-level", "", "Log level (env AIORG_LOG_LEVEL)")

	rootCmd.AddCommand(projectCmd, agentCmd, taskCmd, msgCmd, standupCmd, daemonCmd)
}

// setup loads the environment, applies flag overrides and reads the
// organization registry.
func setup(cmd *cobra.Command, args []string) error {
	var err error
	env, err = config.LoadEnv()
	if err != nil {
		return err
	}
	override(&env.Workspace, workspace)
	override(&env.Type, storeType)
	override(&env.DBPath, dbPath)
	override(&env.OrgFile, orgFile)
	override(&env.LogLevel, logLevel)
	if err := env.Validate(); err != nil {
		return err
	}

	logger, logCloser, err = logging.New(env.LogLevel, env.LogFile)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}

	if env.OrgFile != "" {
		registry, err = org.LoadConfig(env.OrgFile)
	} else {
		registry, err = org.LoadFromWorkspace(env.Workspace)
	}
	if err != nil {
		return fmt.Errorf("load organization: %w", err)
	}
	return registry.Validate()
}

func teardown(cmd *cobra.Command, args []string) {
	logCloser()
}

func override(dst *string, flag string) {
	if flag != "" {
		*dst = flag
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
