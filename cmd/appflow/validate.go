package main

import (
	"fmt"

	"github.com/aretw0/appflow/internal/cli"
	"github.com/aretw0/appflow/internal/logging"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [flow]",
	Short: "Check the flow for consistency",
	Long: `Checks the definition against the reducer registry and compiles it,
reporting unknown names, conflicting edges, duplicate ids and unresolvable
paths.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := runValidate(config(cmd, args)); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Flow is valid! ✅")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cfg cli.Config) error {
	f, err := cli.LoadFlow(cfg, logging.NewNop())
	if err != nil {
		return err
	}
	// Compiling catches what the schema cannot see, such as duplicate ids.
	_, err = f.NewMachine()
	return err
}
