package main

import (
	"github.com/aretw0/appflow/internal/cli"
	"github.com/spf13/cobra"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run [flow]",
	Short: "Run a flow interactively",
	Long: `Starts a session of the flow and reads events from stdin, one per line.

In --json mode every input line is {"event": "...", "args": [...]} or
{"command": "reset|state|quit"} and every output line is a JSON object.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := cli.RunOptions{Config: config(cmd, args)}
		opts.SessionID, _ = cmd.Flags().GetString("session")
		opts.Headless, _ = cmd.Flags().GetBool("headless")
		opts.JSON, _ = cmd.Flags().GetBool("json")
		opts.Watch, _ = cmd.Flags().GetBool("watch")
		return cli.Execute(opts)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("session", "", "Session id (random if empty)")
	runCmd.Flags().Bool("headless", false, "Run in headless mode (no prompts, no banner)")
	runCmd.Flags().Bool("json", false, "Run in JSON mode (NDJSON input/output)")
	runCmd.Flags().BoolP("watch", "w", false, "Reload the flow when its file changes")
}
