package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/appflow"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of appflow",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "appflow version %s\n", strings.TrimSpace(appflow.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
