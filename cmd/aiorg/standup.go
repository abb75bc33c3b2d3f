package main

import (
	"github.com/spf13/cobra"
)

var standupCmd = &cobra.Command{
	Use:   "standup",
	Short: "Organization-wide progress across agents and projects",
	RunE:  runStandup,
}

func init() {
	standupCmd.Flags().BoolVar(&asJSON, "json", false, "Print the standup as JSON")
}

func runStandup(cmd *cobra.Command, args []string) error {
	return withEngine(cmd.Context(), func(e engine) error {
		s, err := e.Standup(cmd.Context())
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(s)
		}
		printStandup(s)
		return nil
	})
}
