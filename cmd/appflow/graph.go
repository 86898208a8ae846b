package main

import (
	"encoding/json"
	"fmt"

	"github.com/aretw0/appflow/internal/cli"
	"github.com/aretw0/appflow/internal/logging"
	"github.com/aretw0/appflow/internal/presentation/graph"
	"github.com/spf13/cobra"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph [flow]",
	Short: "Export the flow graph visualization",
	Long:  `Compiles the flow and outputs a Mermaid diagram (graph TD) of its nodes and edges.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := cli.LoadFlow(config(cmd, args), logging.NewNop())
		if err != nil {
			return err
		}
		m, err := f.NewMachine()
		if err != nil {
			return err
		}

		nodes := m.Inspect()
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			data, err := json.MarshalIndent(nodes, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}
		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(nodes, nil))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().Bool("json", false, "Print the compiled nodes as JSON")
}
